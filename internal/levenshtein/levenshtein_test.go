package levenshtein

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func seqOf(s []string) func(yield func(string) bool) {
	return func(yield func(string) bool) {
		for _, v := range s {
			if !yield(v) {
				return
			}
		}
	}
}

func TestClosestStringsSingleBestMatch(t *testing.T) {
	got := ClosestStrings(4, "malloc", seqOf([]string{"mallocx", "something_unrelated"}))
	require.Equal(t, []string{"mallocx"}, got)
}

func TestClosestStringsTiesAreSortedAndAllReturned(t *testing.T) {
	got := ClosestStrings(4, "cat", seqOf([]string{"bat", "rat", "dog"}))
	require.Equal(t, []string{"bat", "rat"}, got)
}

func TestClosestStringsNoneWithinMaxDistance(t *testing.T) {
	got := ClosestStrings(1, "cat", seqOf([]string{"xyz", "qqq"}))
	require.Empty(t, got)
}

func TestClosestStringsEmptyCandidates(t *testing.T) {
	got := ClosestStrings(4, "cat", seqOf(nil))
	require.Empty(t, got)
}

func TestClosestStringsResultSorted(t *testing.T) {
	got := ClosestStrings(4, "x", seqOf([]string{"z", "a", "y"}))
	require.True(t, slices.IsSorted(got))
}
