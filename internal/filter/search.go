package filter

import (
	"strings"

	"github.com/neexbeast/campusnav/internal/campus"
)

// Match reports whether query finds name, case-insensitively, either as a
// substring or as an ordered (not necessarily contiguous) subsequence.
// An empty query matches everything.
func Match(query, name string) bool {
	q := strings.ToLower(query)
	n := strings.ToLower(name)
	if strings.Contains(n, q) {
		return true
	}
	return isSubsequence(q, n)
}

// isSubsequence is a two-pointer scan over runes, O(len(s)).
func isSubsequence(sub, s string) bool {
	want := []rune(sub)
	if len(want) == 0 {
		return true
	}
	i := 0
	for _, r := range s {
		if r == want[i] {
			i++
			if i == len(want) {
				return true
			}
		}
	}
	return false
}

// Search keeps the POIs whose name matches query.
func Search(pois []*campus.POI, query string) []*campus.POI {
	out := make([]*campus.POI, 0, len(pois))
	for _, p := range pois {
		if Match(query, p.Name) {
			out = append(out, p)
		}
	}
	return out
}
