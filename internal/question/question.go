// Package question defines the ephemeral record extracted for every form
// question and the identity/slot rules attached to it. Records are plain
// data: live page handles stay on the driver side and are re-resolved from
// the Locator when a value is read or applied.
package question

import (
	"crypto/sha1"
	"fmt"
	"regexp"
	"strings"

	"github.com/applypilot/applypilot/internal/textnorm"
)

// Kind tags the control shape behind a question.
type Kind string

const (
	SingleChoice  Kind = "single_choice"
	MultiChoice   Kind = "multi_choice"
	Dropdown      Kind = "dropdown"
	ShortText     Kind = "short_text"
	LongText      Kind = "long_text"
	Informational Kind = "informational"
)

// Option is one selectable choice of a single/multi-choice question.
type Option struct {
	Label    string
	Selected bool
}

// Record is one extracted question. It is rebuilt on every page visit;
// only its Key survives across loads.
type Record struct {
	Text     string
	Kind     Kind
	Required bool
	Options  []Option

	// Identifying attributes of the underlying control.
	ControlID   string
	ControlName string
	TestID      string

	// Locator is a driver-owned stable locator for the question block.
	// The page driver re-resolves it lazily; nothing else interprets it.
	Locator string

	// Blob is the combined label/attribute text used for slot detection.
	Blob string
}

// Key returns the stable identity token for the question: normalized text
// combined with the control's id/name and any test identifier, hashed to a
// short fixed-length digest.
func (r *Record) Key() string {
	sig := strings.Join([]string{
		textnorm.Question(r.Text),
		r.ControlName,
		r.ControlID,
		r.TestID,
	}, "|")
	digest := sha1.Sum([]byte(sig))
	return fmt.Sprintf("q:%x", digest[:6])
}

// OptionLabels returns the labels in page order.
func (r *Record) OptionLabels() []string {
	labels := make([]string, 0, len(r.Options))
	for _, o := range r.Options {
		labels = append(labels, o.Label)
	}
	return labels
}

// SelectedLabels returns the labels currently selected on the page.
func (r *Record) SelectedLabels() []string {
	var labels []string
	for _, o := range r.Options {
		if o.Selected {
			labels = append(labels, o.Label)
		}
	}
	return labels
}

// IsChoice reports whether the question offers a bounded option set.
func (r *Record) IsChoice() bool {
	switch r.Kind {
	case SingleChoice, MultiChoice, Dropdown:
		return true
	}
	return false
}

// IsText reports whether the question takes free text.
func (r *Record) IsText() bool {
	return r.Kind == ShortText || r.Kind == LongText
}

var (
	// PlaceholderRe matches dropdown option text that is a prompt rather
	// than a value ("Select an option", "Choose...").
	PlaceholderRe = regexp.MustCompile(`(?i)^(select|choose|pick)\b`)

	// ErrorTextRe matches inline error text that marks a field required.
	ErrorTextRe = regexp.MustCompile(`(?i)(required|must (be )?(answer|select|complet)|cannot be (blank|empty)|please (answer|select|enter))`)
)

// RequiredSignals are the independent page signals that can mark a
// question required. Any one firing makes the question required.
type RequiredSignals struct {
	Asterisk     bool
	RequiredAttr bool
	Invalid      bool
	ErrorText    string
}

// Required folds the signals into the final flag.
func (s RequiredSignals) Required() bool {
	return s.Asterisk || s.RequiredAttr || s.Invalid ||
		(s.ErrorText != "" && ErrorTextRe.MatchString(s.ErrorText))
}
