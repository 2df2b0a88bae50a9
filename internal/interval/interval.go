// Package interval implements union and intersection of closed integer
// intervals — the algebra backing the sync store's coverage bookkeeping.
package interval

import "sort"

// Interval is a closed range [Start, End] with Start <= End.
type Interval struct {
	Start uint64
	End   uint64
}

// Union returns the minimal list of disjoint, non-touching intervals whose
// union equals the input. Intervals that overlap or touch (b+1 == a') are
// merged. The result is sorted ascending by Start.
func Union(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}

	sorted := append([]Interval(nil), intervals...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	merged := make([]Interval, 0, len(sorted))
	cur := sorted[0]
	for _, next := range sorted[1:] {
		if next.Start <= cur.End || next.Start == cur.End+1 {
			if next.End > cur.End {
				cur.End = next.End
			}
			continue
		}
		merged = append(merged, cur)
		cur = next
	}
	merged = append(merged, cur)
	return merged
}

// IntersectionMany returns the intersection of k interval lists by folding
// them pairwise, each step a two-pointer sweep in ascending order. If any
// list is empty, the result is empty.
func IntersectionMany(lists [][]Interval) []Interval {
	if len(lists) == 0 {
		return nil
	}
	for _, l := range lists {
		if len(l) == 0 {
			return nil
		}
	}
	if len(lists) == 1 {
		return Union(lists[0])
	}

	result := Union(lists[0])
	for _, next := range lists[1:] {
		result = intersectTwo(result, Union(next))
		if len(result) == 0 {
			return nil
		}
	}
	return result
}

// intersectTwo intersects two already-disjoint, sorted interval lists via a
// two-pointer sweep.
func intersectTwo(a, b []Interval) []Interval {
	var out []Interval
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		start := a[i].Start
		if b[j].Start > start {
			start = b[j].Start
		}
		end := a[i].End
		if b[j].End < end {
			end = b[j].End
		}
		if start <= end {
			out = append(out, Interval{Start: start, End: end})
		}
		if a[i].End < b[j].End {
			i++
		} else {
			j++
		}
	}
	return out
}
