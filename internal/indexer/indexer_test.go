package indexer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joacorob/evmsync/internal/interval"
)

func TestMissingRangesNoCoverage(t *testing.T) {
	gaps := missingRanges(1, 100, nil)
	require.Equal(t, []interval.Interval{{Start: 1, End: 100}}, gaps)
}

func TestMissingRangesFullCoverage(t *testing.T) {
	gaps := missingRanges(1, 100, []interval.Interval{{Start: 1, End: 100}})
	require.Empty(t, gaps)
}

func TestMissingRangesPartialCoverageLeavesGapsOnBothSides(t *testing.T) {
	gaps := missingRanges(1, 100, []interval.Interval{{Start: 20, End: 50}})
	require.Equal(t, []interval.Interval{
		{Start: 1, End: 19},
		{Start: 51, End: 100},
	}, gaps)
}

func TestMissingRangesMultipleCoveredSegments(t *testing.T) {
	gaps := missingRanges(1, 100, []interval.Interval{
		{Start: 10, End: 20},
		{Start: 30, End: 40},
	})
	require.Equal(t, []interval.Interval{
		{Start: 1, End: 9},
		{Start: 21, End: 29},
		{Start: 41, End: 100},
	}, gaps)
}

func TestMissingRangesCoverageExceedsTarget(t *testing.T) {
	gaps := missingRanges(1, 100, []interval.Interval{{Start: 0, End: 200}})
	require.Empty(t, gaps)
}
