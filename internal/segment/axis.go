package segment

import (
	"fmt"
	"math"
)

// Axis reconstructs the time values of a displacement segment. Displacement
// files store no per-record timestamps; time is derived from the deployment
// start time, the sample rate, and the instrument filter delay.
type Axis struct {
	// Start is the timestamp of record 0 before the filter delay is applied.
	Start float64
	// SampleRate is in records per second.
	SampleRate float64
	// FilterDelay is in seconds. Older instruments report it as a fill value,
	// which is treated as zero.
	FilterDelay float64
}

// Timestamp returns the derived timestamp of record i.
func (a Axis) Timestamp(i int) float64 {
	return a.Start - a.FilterDelay + float64(i)/a.SampleRate
}

// Index returns the record index nearest to ts. Timestamp and Index round-trip
// exactly for any in-range index.
func (a Axis) Index(ts float64) int {
	return int(math.Round(a.SampleRate * (ts - a.Start + a.FilterDelay)))
}

// Timestamps materializes the derived timestamps for records [start, end).
func (a Axis) Timestamps(start, end int) []float64 {
	if end <= start {
		return nil
	}
	out := make([]float64, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, a.Timestamp(i))
	}
	return out
}

// DisplacementAxis builds the synthetic time axis of a displacement segment
// from its <prefix>StartTime, <prefix>SampleRate, and <prefix>FilterDelay
// scalar variables. A missing or fill-valued filter delay is treated as zero.
func DisplacementAxis(s Segment, prefix string) (Axis, error) {
	start, err := readScalar(s, prefix+"StartTime")
	if err != nil {
		return Axis{}, err
	}
	rate, err := readScalar(s, prefix+"SampleRate")
	if err != nil {
		return Axis{}, err
	}
	if rate == 0 {
		return Axis{}, fmt.Errorf("variable %sSampleRate: zero sample rate", prefix)
	}
	axis := Axis{Start: start, SampleRate: rate}
	if delay, err := readScalar(s, prefix+"FilterDelay"); err == nil && !math.IsNaN(delay) {
		axis.FilterDelay = delay
	}
	return axis, nil
}

// readScalar reads the single value of a scalar variable. Fill values come
// back as an error so callers fall through to their defaults.
func readScalar(s Segment, name string) (float64, error) {
	v, ok := s.Variable(name)
	if !ok {
		return 0, fmt.Errorf("variable %s: %w", name, ErrNotFound)
	}
	block, err := v.Read(0, 1)
	if err != nil {
		return 0, fmt.Errorf("variable %s: %w", name, err)
	}
	if block.Rows() == 0 || !block.Valid[0] {
		return 0, fmt.Errorf("variable %s: no valid value", name)
	}
	return block.Values[0], nil
}
