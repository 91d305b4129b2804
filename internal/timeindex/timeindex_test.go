package timeindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRange(t *testing.T) {
	times := []float64{10, 20, 30, 40, 50}

	tests := []struct {
		name       string
		start, end float64
		wantS      int
		wantE      int
	}{
		{"interior", 15, 45, 1, 4},
		{"inclusive bounds", 20, 40, 1, 4},
		{"exact single", 30, 30, 2, 3},
		{"whole array", 0, 100, 0, 5},
		{"before all", 0, 5, 0, 0},
		{"after all", 60, 100, 5, 5},
		{"between records", 21, 29, 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, e := Range(times, tt.start, tt.end)
			assert.Equal(t, tt.wantS, s)
			assert.Equal(t, tt.wantE, e)
		})
	}
}

func TestRangeEmptyMeansNoRecords(t *testing.T) {
	s, e := Range([]float64{10, 20, 30}, 11, 19)
	assert.Equal(t, s, e)
}

func TestNearest(t *testing.T) {
	times := []float64{10, 20, 30, 40}

	tests := []struct {
		name   string
		target float64
		want   int
	}{
		{"exact match", 30, 2},
		{"closer to lower", 21, 1},
		{"closer to upper", 29, 2},
		{"tie breaks earlier", 25, 1},
		{"before first", 5, 0},
		{"after last", 99, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Nearest(times, tt.target))
		})
	}
}

func TestClosest(t *testing.T) {
	times := []float64{10, 20}
	assert.Equal(t, 0, Closest(0, 1, times, 14))
	assert.Equal(t, 1, Closest(0, 1, times, 16))
	// Equidistant prefers the first index
	assert.Equal(t, 0, Closest(0, 1, times, 15))
}

func TestWalk(t *testing.T) {
	times := []float64{10, 20, 30, 40, 50}

	tests := []struct {
		name         string
		i, n         int
		wantLo       float64
		wantHi       float64
		wantOverflow int
	}{
		{"forward in bounds", 1, 2, 20, 40, 0},
		{"backward in bounds", 3, -2, 20, 40, 0},
		{"zero stays put", 2, 0, 30, 30, 0},
		{"forward clamped", 3, 5, 40, 50, 1},
		{"backward clamped", 1, -5, 10, 20, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iv := Walk(times, tt.i, tt.n)
			assert.Equal(t, tt.wantLo, iv.Lo)
			assert.Equal(t, tt.wantHi, iv.Hi)
			assert.Equal(t, tt.wantOverflow, iv.Overflow)
		})
	}
}

func TestCombine(t *testing.T) {
	lo := Interval{Lo: 10, Hi: 50}
	hi := Interval{Lo: 60, Hi: 90}
	start, end := Combine(lo, hi)
	assert.Equal(t, 10.0, start)
	assert.Equal(t, 90.0, end)
}
