package browser

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-rod/rod"
	"go.uber.org/zap"

	"github.com/applypilot/applypilot/internal/question"
)

const questionItemSelector = ".ia-Questions-item"

// questionItemXPath enumerates the same blocks in document order, so a
// positional locator survives after the cached handle goes stale.
const questionItemXPath = `//*[contains(concat(" ", normalize-space(@class), " "), " ia-Questions-item ")]`

// blobAttrs are the control attributes folded into the slot-detection
// blob alongside the visible label text.
var blobAttrs = []string{"name", "id", "placeholder", "aria-label", "data-testid", "type"}

var trailingAsteriskRe = regexp.MustCompile(`\s*\*\s*$`)

// questionLocator addresses the index-th question block positionally.
// The class check is token-exact so sibling elements whose class merely
// starts with the same prefix cannot shift the numbering.
func questionLocator(index int) string {
	return fmt.Sprintf("(%s)[%d]", questionItemXPath, index+1)
}

// ExtractQuestions walks the question blocks on the current step and
// builds one record per answerable question. File-upload prompts are
// skipped; the resume is handled on its own step.
func (p *ApplyPage) ExtractQuestions(ctx context.Context) ([]*question.Record, error) {
	items, err := p.page.Context(ctx).Elements(questionItemSelector)
	if err != nil {
		return nil, fmt.Errorf("find question blocks: %w", err)
	}

	p.items = make(map[string]*rod.Element, len(items))

	var records []*question.Record
	for i, item := range items {
		text := questionText(item)
		if text == "" {
			continue
		}
		if strings.Contains(strings.ToLower(text), "upload") {
			p.logger.Debug("skipping upload question", zap.String("question", text))
			continue
		}

		rec := p.buildRecord(item, text)
		rec.Locator = questionLocator(i)
		rec.Required = requiredSignals(item).Required()
		rec.Blob = slotBlob(item)

		p.items[rec.Locator] = item
		records = append(records, rec)
	}

	p.logger.Info("extracted questions", zap.Int("count", len(records)))
	return records, nil
}

// questionText finds the label for a question block: rich text first,
// then informational blocks, then any bare label with the required
// asterisk stripped.
func questionText(item *rod.Element) string {
	if has, el, err := item.Has(`[data-testid="rich-text"] span`); err == nil && has {
		if text, err := el.Text(); err == nil {
			if t := strings.TrimSpace(text); t != "" {
				return t
			}
		}
	}
	if has, el, err := item.Has(`[data-testid="information-question"]`); err == nil && has {
		if text, err := el.Text(); err == nil {
			if t := strings.TrimSpace(text); t != "" {
				return t
			}
		}
	}
	if has, el, err := item.Has("label"); err == nil && has {
		if text, err := el.Text(); err == nil {
			return strings.TrimSpace(trailingAsteriskRe.ReplaceAllString(text, ""))
		}
	}
	return ""
}

// buildRecord classifies the control shape and collects options and
// identifying attributes.
func (p *ApplyPage) buildRecord(item *rod.Element, text string) *question.Record {
	rec := &question.Record{Text: text}

	if has, el, err := item.Has("[data-testid]"); err == nil && has {
		if v, err := el.Attribute("data-testid"); err == nil && v != nil {
			rec.TestID = *v
		}
	}

	if opts, err := p.optionControls(item, "radio"); err == nil && len(opts) > 0 {
		rec.Kind = question.SingleChoice
		fillOptions(rec, opts)
		return rec
	}
	if opts, err := p.optionControls(item, "checkbox"); err == nil && len(opts) > 0 {
		rec.Kind = question.MultiChoice
		fillOptions(rec, opts)
		return rec
	}

	if has, sel, err := item.Has("select"); err == nil && has {
		rec.Kind = question.Dropdown
		fillControlIdentity(rec, sel)
		return rec
	}

	if has, ctl, err := item.Has(`textarea, input:not([type="radio"]):not([type="checkbox"])`); err == nil && has {
		rec.Kind = question.ShortText
		if isTextarea(ctl) {
			rec.Kind = question.LongText
		}
		fillControlIdentity(rec, ctl)
		return rec
	}

	rec.Kind = question.Informational
	return rec
}

func fillOptions(rec *question.Record, opts []*optionControl) {
	for _, opt := range opts {
		rec.Options = append(rec.Options, question.Option{
			Label:    opt.label,
			Selected: opt.selected(),
		})
	}
	if len(opts) > 0 {
		fillControlIdentity(rec, opts[0].input)
	}
}

func fillControlIdentity(rec *question.Record, ctl *rod.Element) {
	if v, err := ctl.Attribute("id"); err == nil && v != nil {
		rec.ControlID = *v
	}
	if v, err := ctl.Attribute("name"); err == nil && v != nil {
		rec.ControlName = *v
	}
}

func isTextarea(el *rod.Element) bool {
	obj, err := el.Eval(`() => this.tagName.toLowerCase()`)
	return err == nil && obj.Value.Str() == "textarea"
}

// requiredSignals gathers the independent page hints that a question must
// be answered.
func requiredSignals(item *rod.Element) question.RequiredSignals {
	var s question.RequiredSignals

	if els, err := item.ElementsX(`.//label//*[normalize-space(text())="*"] | .//*[normalize-space(text())="*" and (@aria-hidden="true" or self::span or self::div)]`); err == nil && len(els) > 0 {
		s.Asterisk = true
	}
	if has, _, err := item.Has(`input[required], select[required], textarea[required], [aria-required="true"]`); err == nil && has {
		s.RequiredAttr = true
	}
	if has, _, err := item.Has(`[aria-invalid="true"]`); err == nil && has {
		s.Invalid = true
	}

	if nodes, err := item.Elements(`[id*="error"], [class*="error"], [role="alert"], [aria-live="assertive"]`); err == nil {
		var parts []string
		for _, node := range nodes {
			if text, err := node.Text(); err == nil {
				if t := strings.TrimSpace(text); t != "" {
					parts = append(parts, t)
				}
			}
		}
		s.ErrorText = strings.Join(parts, " ")
	}

	return s
}

// slotBlob joins the block's visible text with its control attributes so
// slot rules can match on either.
func slotBlob(item *rod.Element) string {
	parts := []string{}
	if text, err := item.Text(); err == nil {
		parts = append(parts, text)
	}

	if ctls, err := item.Elements("input,textarea,select"); err == nil {
		for _, ctl := range ctls {
			for _, attr := range blobAttrs {
				if v, err := ctl.Attribute(attr); err == nil && v != nil && *v != "" {
					parts = append(parts, *v)
				}
			}
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}
