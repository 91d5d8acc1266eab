package memory

import (
	"github.com/applypilot/applypilot/internal/fuzzy"
)

// Adapt reshapes a stored answer into a value usable against the options
// actually present on the current page. Option phrasing drifts across
// otherwise-identical questions ("United States" vs "United States of
// America"), so stored values are fuzzy-mapped onto the live labels and
// values with no acceptable match are dropped. The second result is false
// when nothing usable remains.
func Adapt(stored Answer, available []string) (Answer, bool) {
	if stored.Empty() {
		return Answer{}, false
	}

	// Pairs reduce to their display text before matching.
	if stored.Shape == ShapePair {
		stored = String(stored.Text)
	}

	if len(available) == 0 {
		return stored, true
	}

	switch stored.Shape {
	case ShapeList:
		matched := make([]string, 0, len(stored.List))
		for _, item := range stored.List {
			if m, ok := fuzzy.MatchOption(item, available, fuzzy.OptionThreshold); ok {
				matched = append(matched, m)
			}
		}
		if len(matched) == 0 {
			return Answer{}, false
		}
		return List(matched), true
	default:
		m, ok := fuzzy.MatchOption(stored.Text, available, fuzzy.OptionThreshold)
		if !ok {
			return Answer{}, false
		}
		return String(m), true
	}
}
