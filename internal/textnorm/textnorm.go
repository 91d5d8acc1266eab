// Package textnorm canonicalizes question and answer text so that memory
// keys stay stable across page loads and phrasing variants.
package textnorm

import (
	"regexp"
	"strings"
)

var (
	// Collapses ordinary whitespace along with non-breaking and zero-width
	// spaces that rich-text question blocks tend to carry.
	spaceRe = regexp.MustCompile(`[\s\x{00a0}\x{200b}]+`)

	questionPrefixes = []string{
		"do you ",
		"have you ",
		"are you ",
		"what is ",
		"how many ",
		"please ",
	}
)

// canonicalRule rewrites a free-form answer value to its canonical spelling.
// Rules are tried in order; the first match wins.
type canonicalRule struct {
	pattern   *regexp.Regexp
	canonical string
}

var answerRules = []canonicalRule{
	{regexp.MustCompile(`(?i)^(yes|y|yeah|yep|true|sure|of course|affirmative)$`), "Yes"},
	{regexp.MustCompile(`(?i)^(no|n|nope|false|negative)$`), "No"},
	{regexp.MustCompile(`(?i)^(male|man|m)$`), "Male"},
	{regexp.MustCompile(`(?i)^(female|woman|f)$`), "Female"},
	{regexp.MustCompile(`(?i)^(ba|b\.a\.|bs|b\.s\.|bachelors?( degree)?)$`), "Bachelor's Degree"},
	{regexp.MustCompile(`(?i)^(ma|m\.a\.|ms|m\.s\.|masters?( degree)?)$`), "Master's Degree"},
	{regexp.MustCompile(`(?i)^(phd|ph\.d\.|doctorate)$`), "PhD"},
}

// Text lower-cases, collapses whitespace runs to single spaces and trims.
// It is used for option labels and free values, never for question keys.
func Text(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(strings.ToLower(s), " "))
}

// Question derives the stable memory key for a question prompt: Text
// plus stripping leading interrogative prefixes and trailing punctuation.
// Prefixes are stripped repeatedly so the function is idempotent.
func Question(s string) string {
	t := Text(s)
	t = strings.TrimRight(t, "?.! ")

	for {
		stripped := false
		for _, prefix := range questionPrefixes {
			if strings.HasPrefix(t, prefix) {
				t = strings.TrimSpace(t[len(prefix):])
				stripped = true
			}
		}
		if !stripped {
			break
		}
	}

	return strings.TrimRight(t, "?.! ")
}

// Answer maps a string answer onto its canonical form ("Yes", "No",
// canonical degree spellings). Unmatched values pass through unchanged.
func Answer(s string) string {
	trimmed := strings.TrimSpace(s)
	for _, rule := range answerRules {
		if rule.pattern.MatchString(trimmed) {
			return rule.canonical
		}
	}
	return s
}
