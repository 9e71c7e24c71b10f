package levenshtein

import (
	"iter"
	"slices"

	"github.com/agnivade/levenshtein"
)

// ClosestStrings returns every candidate whose edit distance to a is the
// smallest seen, capped at maxDistance, used to suggest a likely-intended
// library or symbol name in "missing exporter" error messages. Ties are
// all kept and returned sorted.
func ClosestStrings(maxDistance int, a string, candidates iter.Seq[string]) []string {
	best := maxDistance
	var matches []string
	for c := range candidates {
		d := levenshtein.ComputeDistance(a, c)
		if d > best {
			continue
		}
		if d < best {
			best = d
			matches = matches[:0]
		}
		matches = append(matches, c)
	}
	sorted := slices.Clone(matches)
	slices.Sort(sorted)
	return sorted
}
