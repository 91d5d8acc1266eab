package memory

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Shape discriminates the stored form of an answer.
type Shape int

const (
	// ShapeString is a single label or free-text value.
	ShapeString Shape = iota
	// ShapeList is the ordered selection of a multi-choice question.
	ShapeList
	// ShapePair is a dropdown selection: display text plus option value.
	ShapePair
)

// Answer is the polymorphic answer value persisted in the memory file.
// On the wire it is a JSON string, an array of strings, or a
// {"text","value"} object, matching the store's historical format.
type Answer struct {
	Shape Shape
	Text  string
	Value string
	List  []string
}

func String(s string) Answer { return Answer{Shape: ShapeString, Text: s} }

func List(items []string) Answer { return Answer{Shape: ShapeList, List: items} }

func Pair(text, value string) Answer { return Answer{Shape: ShapePair, Text: text, Value: value} }

// Primary extracts the answer's primary text: the string itself, a pair's
// display text, or the joined list items.
func (a Answer) Primary() string {
	switch a.Shape {
	case ShapeList:
		return strings.Join(a.List, ", ")
	default:
		return a.Text
	}
}

// Empty reports whether the answer carries no usable value.
func (a Answer) Empty() bool {
	switch a.Shape {
	case ShapeList:
		return len(a.List) == 0
	default:
		return strings.TrimSpace(a.Text) == ""
	}
}

// Equal compares two answers structurally.
func (a Answer) Equal(b Answer) bool {
	if a.Shape != b.Shape {
		return false
	}
	switch a.Shape {
	case ShapeList:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if a.List[i] != b.List[i] {
				return false
			}
		}
		return true
	case ShapePair:
		return a.Text == b.Text && a.Value == b.Value
	default:
		return a.Text == b.Text
	}
}

type pairJSON struct {
	Text  string `json:"text"`
	Value string `json:"value,omitempty"`
}

func (a Answer) MarshalJSON() ([]byte, error) {
	switch a.Shape {
	case ShapeList:
		items := a.List
		if items == nil {
			items = []string{}
		}
		return json.Marshal(items)
	case ShapePair:
		return json.Marshal(pairJSON{Text: a.Text, Value: a.Value})
	default:
		return json.Marshal(a.Text)
	}
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*a = Answer{}
		return nil
	}

	switch trimmed[0] {
	case '[':
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("list answer: %w", err)
		}
		*a = List(items)
	case '{':
		var p pairJSON
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("pair answer: %w", err)
		}
		*a = Pair(p.Text, p.Value)
	default:
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			// Legacy entries occasionally hold bare numbers.
			var n json.Number
			if err2 := json.Unmarshal(data, &n); err2 != nil {
				return fmt.Errorf("string answer: %w", err)
			}
			s = n.String()
		}
		*a = String(s)
	}

	return nil
}
