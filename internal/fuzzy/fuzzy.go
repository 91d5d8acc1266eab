// Package fuzzy scores string similarity for question and option matching.
// Scoring is token-order-insensitive so "authorized to work in the US" and
// "US work authorized" land close together.
package fuzzy

import (
	"strings"

	fuzz "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/applypilot/applypilot/internal/textnorm"
)

const (
	// QuestionThreshold is the minimum score for treating two differently
	// worded questions as the same question.
	QuestionThreshold = 85
	// OptionThreshold is the minimum score for mapping a stored value onto
	// a live option label.
	OptionThreshold = 80
)

// Similar returns a similarity score in [0,100] between the normalized
// forms of a and b.
func Similar(a, b string) int {
	return fuzz.TokenSortRatio(textnorm.Text(a), textnorm.Text(b))
}

// MatchQuestion reports whether stored and current refer to the same
// question: identical normalized keys, or similarity at or above threshold.
func MatchQuestion(stored, current string, threshold int) bool {
	ns, nc := textnorm.Question(stored), textnorm.Question(current)
	if ns == nc {
		return true
	}
	return fuzz.TokenSortRatio(ns, nc) >= threshold
}

// MatchOption maps a stored value onto one of the candidate labels. An
// exact normalized match wins immediately, then word-boundary containment
// ("United States" inside "United States of America"), then the
// highest-scoring candidate at or above threshold, ties broken by
// candidate order. The second result is false when nothing is acceptable.
func MatchOption(stored string, candidates []string, threshold int) (string, bool) {
	normStored := textnorm.Text(stored)
	if normStored == "" {
		return "", false
	}

	for _, c := range candidates {
		if textnorm.Text(c) == normStored {
			return c, true
		}
	}

	// Containment only counts for multi-word values. Single words like
	// "no" embed in too many labels to be a safe signal.
	if strings.ContainsRune(normStored, ' ') {
		for _, c := range candidates {
			if containsPhrase(textnorm.Text(c), normStored) {
				return c, true
			}
		}
	}

	best := ""
	bestScore := 0
	for _, c := range candidates {
		score := fuzz.TokenSortRatio(normStored, textnorm.Text(c))
		if score >= threshold && score > bestScore {
			best = c
			bestScore = score
		}
	}

	if bestScore == 0 {
		return "", false
	}
	return best, true
}

// containsPhrase reports whether phrase occurs in s on word boundaries.
// Both arguments are already normalized.
func containsPhrase(s, phrase string) bool {
	idx := strings.Index(s, phrase)
	for idx >= 0 {
		beforeOK := idx == 0 || s[idx-1] == ' '
		end := idx + len(phrase)
		afterOK := end == len(s) || s[end] == ' '
		if beforeOK && afterOK {
			return true
		}
		next := strings.Index(s[idx+1:], phrase)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}
