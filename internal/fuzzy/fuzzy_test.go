package fuzzy

import "testing"

func TestMatchQuestionNormalizedForms(t *testing.T) {
	t.Parallel()

	// Prefix and trailing punctuation differences normalize away entirely,
	// so the match holds even before similarity scoring engages.
	if !MatchQuestion("Do you have a forklift certification?", "have a forklift certification", QuestionThreshold) {
		t.Fatal("expected prefixed and bare forms to match")
	}

	if MatchQuestion("years of Java experience", "willing to relocate", QuestionThreshold) {
		t.Fatal("unrelated questions must not match")
	}
}

func TestMatchOption(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		stored     string
		candidates []string
		expect     string
		ok         bool
	}{
		{
			name:       "exact normalized match wins",
			stored:     "  YES ",
			candidates: []string{"Yes", "No"},
			expect:     "Yes",
			ok:         true,
		},
		{
			name:       "fuzzy match across phrasing",
			stored:     "United States",
			candidates: []string{"Canada", "United States of America", "Mexico"},
			expect:     "United States of America",
			ok:         true,
		},
		{
			name:       "nothing acceptable",
			stored:     "Maybe",
			candidates: []string{"Yes", "No"},
			ok:         false,
		},
		{
			name:       "empty candidates",
			stored:     "Yes",
			candidates: nil,
			ok:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MatchOption(tt.stored, tt.candidates, OptionThreshold)
			if ok != tt.ok {
				t.Fatalf("MatchOption ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.expect {
				t.Fatalf("MatchOption = %q, want %q", got, tt.expect)
			}
		})
	}
}

func TestSimilarBounds(t *testing.T) {
	t.Parallel()

	if got := Similar("relocate", "relocate"); got != 100 {
		t.Fatalf("identical strings should score 100, got %d", got)
	}
	if got := Similar("relocate", "zzzz"); got < 0 || got > 100 {
		t.Fatalf("score out of range: %d", got)
	}
}
