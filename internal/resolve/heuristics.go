package resolve

import (
	"strings"

	"github.com/applypilot/applypilot/internal/question"
	"github.com/applypilot/applypilot/internal/textnorm"
)

// educationRank orders degree levels; option text is scanned for these
// markers and the highest-ranked option wins. Options matching nothing
// rank below every known level. Abbreviations only count as standalone
// words so "diploma" does not read as an MA.
var educationRank = []struct {
	marker string
	word   bool
	rank   int
}{
	{"high school", false, 1},
	{"associate", false, 2},
	{"bachelor", false, 3},
	{"ba", true, 3},
	{"bs", true, 3},
	{"master", false, 4},
	{"ms", true, 4},
	{"ma", true, 4},
	{"mba", true, 4},
	{"phd", false, 5},
	{"doctor", false, 5},
}

func educationLevel(normOption string) int {
	rank := 0
	for _, m := range educationRank {
		if m.rank <= rank {
			continue
		}
		if m.word {
			for _, w := range strings.Fields(normOption) {
				if strings.Trim(w, "'.()") == m.marker {
					rank = m.rank
					break
				}
			}
		} else if strings.Contains(normOption, m.marker) {
			rank = m.rank
		}
	}
	return rank
}

// heuristicPick applies the fixed per-slot priority rules to the live
// option set. It returns the chosen option text, or "" when the rule
// yields nothing. Ties keep the first option in page order.
func heuristicPick(slotKey string, options []string) string {
	norm := make([]string, len(options))
	for i, o := range options {
		norm[i] = textnorm.Text(o)
	}

	switch slotKey {
	case question.SlotCountry:
		for i, t := range norm {
			if strings.Contains(t, "united states") || (strings.Contains(t, "(+1)") && strings.Contains(t, "united states")) {
				return options[i]
			}
		}
		for i, t := range norm {
			if t == "usa" || t == "us" {
				return options[i]
			}
		}

	case question.SlotWorkAuth:
		for i, t := range norm {
			if t == "yes" || (strings.Contains(t, "authorized") && !strings.Contains(t, "not")) {
				return options[i]
			}
		}

	case question.SlotRelocate:
		for i, t := range norm {
			if t == "no" {
				return options[i]
			}
		}

	case question.SlotEducation:
		bestIdx, bestRank := -1, 0
		for i, t := range norm {
			rank := educationLevel(t)
			if rank > bestRank {
				bestRank = rank
				bestIdx = i
			}
		}
		if bestIdx >= 0 {
			return options[bestIdx]
		}
	}

	return ""
}
