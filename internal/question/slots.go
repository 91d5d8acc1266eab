package question

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Slot keys for canonical facts that recur across differently worded
// questions.
const (
	SlotWorkAuth    = "work_auth"
	SlotRelocate    = "relocate"
	SlotCountry     = "country"
	SlotEducation   = "education_level"
	SlotLinkedInURL = "linkedin_url"
)

// SlotRule maps a pattern over the question's combined label/attribute
// blob to a slot key. Rules are ordered; the first match wins.
type SlotRule struct {
	Key     string
	Pattern *regexp.Regexp
}

var defaultSlotRules = []SlotRule{
	{SlotWorkAuth, regexp.MustCompile(`(?i)(legally\s+)?authori[sz]ed\s+to\s+work|work\s+authori[sz]ation|eligible\s+to\s+work`)},
	{SlotRelocate, regexp.MustCompile(`(?i)relocat`)},
	{SlotCountry, regexp.MustCompile(`(?i)\bcountry\b`)},
	{SlotEducation, regexp.MustCompile(`(?i)(highest\s+)?(level\s+of\s+)?education(\s+level)?|\bdegree\b`)},
	{SlotLinkedInURL, regexp.MustCompile(`(?i)linkedin`)},
}

// domainFallbacks map a bare domain mention in the blob to a URL slot,
// catching questions whose label never names the site.
var domainFallbacks = map[string]string{
	"linkedin.com": SlotLinkedInURL,
}

// SlotTable is the ordered rule set used for slot detection.
type SlotTable struct {
	rules []SlotRule
}

// DefaultSlotTable returns the built-in rule set.
func DefaultSlotTable() *SlotTable {
	rules := make([]SlotRule, len(defaultSlotRules))
	copy(rules, defaultSlotRules)
	return &SlotTable{rules: rules}
}

// NewSlotTable builds a table from configured key -> expression overrides.
// Override keys replace the built-in rule with the same key in place;
// unknown keys are appended in lexical order for determinism.
func NewSlotTable(overrides map[string]string) (*SlotTable, error) {
	table := DefaultSlotTable()

	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		re, err := regexp.Compile(overrides[key])
		if err != nil {
			return nil, fmt.Errorf("slot pattern %q: %w", key, err)
		}

		replaced := false
		for i := range table.rules {
			if table.rules[i].Key == key {
				table.rules[i].Pattern = re
				replaced = true
				break
			}
		}
		if !replaced {
			table.rules = append(table.rules, SlotRule{Key: key, Pattern: re})
		}
	}

	return table, nil
}

// Detect maps a question to a slot key, or "" when no rule matches. The
// blob carries the label text plus control attributes so attribute-only
// hints (name="country") still fire.
func (t *SlotTable) Detect(r *Record) string {
	blob := r.Blob
	if blob == "" {
		blob = r.Text
	}
	blob = strings.ToLower(blob)

	for _, rule := range t.rules {
		if rule.Pattern.MatchString(blob) {
			// URL slots only make sense for free-text controls.
			if strings.HasSuffix(rule.Key, "_url") && !r.IsText() {
				continue
			}
			return rule.Key
		}
	}

	for domain, key := range domainFallbacks {
		if strings.Contains(blob, domain) && r.IsText() {
			return key
		}
	}

	return ""
}
