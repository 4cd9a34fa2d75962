// Package match compares concept labels against schema identifiers and
// values. All functions are pure predicates.
package match

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// Role selects the partial-match rules: values compare as raw substrings,
// identifiers compare normalized.
type Role string

const (
	RoleValue  Role = "value"
	RoleColumn Role = "column"
	RoleTable  Role = "table"
)

// Normalize lower-cases s and removes separators, whitespace and punctuation.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Exact reports whether a and b name the same thing: equal after
// normalization, or equal once singular/plural inflection is undone. Inputs
// that normalize to empty never match.
func Exact(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	return inflection.Singular(na) == inflection.Singular(nb) ||
		inflection.Plural(na) == inflection.Plural(nb)
}

// Partial reports whether one of a, b contains the other. Values compare
// case-insensitively as typed; identifiers are normalized first and retried in
// plural form.
func Partial(a, b string, role Role) bool {
	if role == RoleValue {
		if a == "" || b == "" {
			return false
		}
		la, lb := strings.ToLower(a), strings.ToLower(b)
		return strings.Contains(la, lb) || strings.Contains(lb, la)
	}

	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}
	pa, pb := inflection.Plural(na), inflection.Plural(nb)
	return strings.Contains(pa, pb) || strings.Contains(pb, pa)
}

// Fragment returns the part of the longer string that the shorter one
// matched, keeping the longer string's casing. It returns "" when neither
// contains the other.
func Fragment(label, found string) string {
	ll, lf := strings.ToLower(label), strings.ToLower(found)
	if len(ll) != len(label) || len(lf) != len(found) {
		// case folding changed byte widths; fall back to the shorter input
		if len(label) < len(found) {
			return label
		}
		return found
	}
	if i := strings.Index(lf, ll); i >= 0 {
		return found[i : i+len(label)]
	}
	if i := strings.Index(ll, lf); i >= 0 {
		return label[i : i+len(found)]
	}
	return ""
}
