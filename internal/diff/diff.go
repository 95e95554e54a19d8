// Package diff computes field-level deltas between two versions of a
// document's data and renders them as stable, displayable change lists.
package diff

import (
	"reflect"
	"sort"
)

// Change kinds.
const (
	KindAdded    = "added"
	KindModified = "modified"
	KindDeleted  = "deleted"
)

// Change describes one field that differs between two document versions.
type Change struct {
	Field  string `json:"field"`
	Label  string `json:"label"`
	Before any    `json:"before"`
	After  any    `json:"after"`
	Kind   string `json:"kind"`
}

// Compute returns the field-level delta between before and after. Unchanged
// fields are omitted, so Compute(x, x, order) is always empty. Fields are
// emitted in the order given by order (the caller's insertion order of the
// after mapping, with deleted fields retaining their original position);
// fields missing from order are appended sorted by name so the result stays
// deterministic.
func Compute(before, after map[string]any, order []string) []Change {
	seen := make(map[string]bool, len(order))
	fields := make([]string, 0, len(order))
	for _, f := range order {
		if seen[f] {
			continue
		}
		seen[f] = true
		fields = append(fields, f)
	}

	var rest []string
	for f := range after {
		if !seen[f] {
			seen[f] = true
			rest = append(rest, f)
		}
	}
	for f := range before {
		if !seen[f] {
			seen[f] = true
			rest = append(rest, f)
		}
	}
	sort.Strings(rest)
	fields = append(fields, rest...)

	var changes []Change
	for _, f := range fields {
		b, a := before[f], after[f]
		kind := Classify(b, a)
		if kind == "" {
			continue
		}
		changes = append(changes, Change{
			Field:  f,
			Label:  FormatFieldPath(f),
			Before: b,
			After:  a,
			Kind:   kind,
		})
	}
	return changes
}

// Classify returns the change kind for a before/after value pair, or the
// empty string when the field is unchanged. An absent or empty-string value
// counts as missing for added/deleted classification.
func Classify(before, after any) string {
	switch {
	case isEmpty(before) && isEmpty(after):
		return ""
	case isEmpty(before):
		return KindAdded
	case isEmpty(after):
		return KindDeleted
	case !reflect.DeepEqual(before, after):
		return KindModified
	default:
		return ""
	}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// fieldLabels maps known field paths to human-readable labels.
var fieldLabels = map[string]string{
	"party_a_name":     "Disclosing party name",
	"party_a_email":    "Disclosing party email",
	"party_a_address":  "Disclosing party address",
	"party_b_name":     "Receiving party name",
	"party_b_email":    "Receiving party email",
	"party_b_address":  "Receiving party address",
	"effective_date":   "Effective date",
	"governing_law":    "Governing law",
	"term_months":      "Term (months)",
	"purpose":          "Purpose of disclosure",
	"confidential_def": "Definition of confidential information",
	"mutual":           "Mutual obligations",
	"non_solicit":      "Non-solicitation clause",
}

// FormatFieldPath renders a field path as a human-readable label. Unknown
// paths render as themselves.
func FormatFieldPath(path string) string {
	if label, ok := fieldLabels[path]; ok {
		return label
	}
	return path
}
