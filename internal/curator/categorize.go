// Package curator provides offline maintenance for the answer memory:
// semantic deduplication of equivalent questions, conflict resolution,
// slot-consistency pruning, and slot-candidate discovery. It never edits
// a memory file in place; cleaned documents are written to new files for
// review.
package curator

import (
	"regexp"
	"strings"

	"github.com/applypilot/applypilot/internal/memory"
	"github.com/applypilot/applypilot/internal/textnorm"
)

// Category buckets a stored question by the shape and polarity of its
// answer. Clustering runs within a category so a yes and a no to the same
// wording never merge silently.
type Category string

const (
	// CategoryBoolPositive holds yes/no questions framed so that "Yes" is
	// the favorable answer ("Are you authorized to work?").
	CategoryBoolPositive Category = "boolean_positive"
	// CategoryBoolNegative holds yes/no questions framed so that "No" is
	// the favorable answer ("Will you require sponsorship?").
	CategoryBoolNegative Category = "boolean_negative"
	CategoryNumeric      Category = "numeric"
	CategoryList         Category = "list"
	CategoryMapping      Category = "mapping"
	CategoryText         Category = "text"
)

// DefaultNegativeTriggers mark a boolean question as negatively framed.
var DefaultNegativeTriggers = []string{"require", "future", "need visa"}

var (
	numericRe = regexp.MustCompile(`^\d+(\.\d+)?$`)
	booleanRe = regexp.MustCompile(`^(yes|no|true|false)$`)
)

// Categorize assigns a stored question/answer pair to a category.
// negativeTriggers defaults to DefaultNegativeTriggers when nil.
func Categorize(questionText string, ans memory.Answer, negativeTriggers []string) Category {
	switch ans.Shape {
	case memory.ShapeList:
		return CategoryList
	case memory.ShapePair:
		return CategoryMapping
	}

	value := strings.ToLower(strings.TrimSpace(ans.Text))
	if numericRe.MatchString(value) {
		return CategoryNumeric
	}
	if !booleanRe.MatchString(value) {
		return CategoryText
	}

	if negativeTriggers == nil {
		negativeTriggers = DefaultNegativeTriggers
	}
	q := textnorm.Text(questionText)
	for _, trigger := range negativeTriggers {
		if strings.Contains(q, strings.ToLower(trigger)) {
			return CategoryBoolNegative
		}
	}
	return CategoryBoolPositive
}
