package match

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// Strategy is one name-matching mode.
type Strategy struct {
	Name string
	// Like is set for modes whose database lookups use LIKE predicates on a
	// fragment instead of equality.
	Like  bool
	Match func(label, candidate string, role Role) bool
}

var (
	ExactStrategy = Strategy{
		Name:  "exact",
		Match: func(label, candidate string, _ Role) bool { return Exact(label, candidate) },
	}
	SubstringStrategy = Strategy{
		Name:  "substring",
		Like:  true,
		Match: Partial,
	}
)

// Strategies is the preference order every lookup applies: a complete pass in
// exact mode before any pass in substring mode.
var Strategies = []Strategy{ExactStrategy, SubstringStrategy}

// Search runs fn once per strategy in preference order and returns the first
// result fn reports as found. A non-nil error stops the search.
func Search[T any](fn func(s Strategy) (T, bool, error)) (T, Strategy, bool, error) {
	var zero T
	for _, s := range Strategies {
		v, ok, err := fn(s)
		if err != nil {
			return zero, s, false, err
		}
		if ok {
			return v, s, true, nil
		}
	}
	return zero, Strategy{}, false, nil
}

// IndexOf returns the index of the first candidate that matches label under
// s, or -1.
func IndexOf(label string, candidates []string, s Strategy, role Role) int {
	for i, c := range candidates {
		if s.Match(label, c, role) {
			return i
		}
	}
	return -1
}

type lowered []string

func (l lowered) String(i int) string { return strings.ToLower(l[i]) }
func (l lowered) Len() int            { return len(l) }

// Suggest ranks candidates by fuzzy similarity to label and returns at most n
// of them, best first.
func Suggest(label string, candidates []string, n int) []string {
	if label == "" || len(candidates) == 0 || n <= 0 {
		return nil
	}

	matches := fuzzy.FindFrom(strings.ToLower(label), lowered(candidates))
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	out := make([]string, 0, n)
	for _, m := range matches {
		if len(out) == n {
			break
		}
		out = append(out, candidates[m.Index])
	}
	return out
}
