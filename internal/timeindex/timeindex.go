// Package timeindex provides ordered-search primitives over monotonic
// timestamp arrays: inclusive range lookup, nearest-record lookup, and bounded
// interval walks.
//
// Conventions: i is an index, times is a non-decreasing array of timestamps,
// and end indices are exclusive (one past the last included record).
package timeindex

import (
	"math"
	"sort"
)

// Range returns the index range [s, e) of records with start <= times[i] <= end.
// Both bounds are inclusive of exact matches. s == e means the window holds no
// records; callers treat that as an empty result, not an error.
func Range(times []float64, start, end float64) (int, int) {
	s := sort.SearchFloat64s(times, start)
	e := s + sort.Search(len(times)-s, func(i int) bool { return times[s+i] > end })
	return s, e
}

// Nearest returns the index of the record closest in time to target. The
// result is always one of the two indices bracketing target after a
// lower-bound search; ties break toward the earlier record. times must be
// non-empty.
func Nearest(times []float64, target float64) int {
	i := sort.SearchFloat64s(times, target)
	last := len(times) - 1
	if i > last {
		return last
	}
	if i == 0 || times[i] == target {
		return i
	}
	return Closest(i-1, i, times, target)
}

// Closest returns whichever of i1, i2 indexes the timestamp nearer to target,
// preferring i1 on ties.
func Closest(i1, i2 int, times []float64, target float64) int {
	if math.Abs(times[i1]-target) <= math.Abs(times[i2]-target) {
		return i1
	}
	return i2
}

// Interval is the timestamp span covered by a walk, plus whether the walk ran
// off either end of the array.
type Interval struct {
	Lo float64
	Hi float64
	// Overflow is +1 when the walk was clamped at the last index, -1 when it
	// was clamped at index 0, and 0 when it stayed in bounds.
	Overflow int
}

// Walk spans n records from index i. Negative n walks backward, zero stays
// put. The walk clamps at the array bounds and reports the direction of any
// overflow so the caller can continue in an adjacent segment.
func Walk(times []float64, i, n int) Interval {
	last := len(times) - 1
	overflow := 0
	if i+n > last {
		overflow = 1
	} else if i+n < 0 {
		overflow = -1
	}
	if n >= 0 {
		return Interval{Lo: times[i], Hi: times[min(i+n, last)], Overflow: overflow}
	}
	return Interval{Lo: times[max(0, i+n)], Hi: times[i], Overflow: overflow}
}

// Combine concatenates two walk intervals from adjacent segments into one
// timestamp span. It is a pure concatenation: the intervals are not checked
// for contiguity.
func Combine(lo, hi Interval) (float64, float64) {
	return lo.Lo, hi.Hi
}
