// Package series resolves variable requests against segments and stitches the
// per-segment results into one chronological series.
//
// A Request is resolved against one segment at a time (Resolve); the Stitcher
// dispatches requests across the realtime segment, the historic segment, and
// the archive deployment chain, and merges what comes back.
package series

import (
	"errors"

	"github.com/buoyworks/swell/internal/quality"
	"github.com/buoyworks/swell/internal/segment"
)

// ErrNoAnchor reports that a target-time query found no record in either the
// realtime or the historic segment to anchor the walk.
var ErrNoAnchor = errors.New("no anchor record for target time")

// Request describes one query: variables sharing a dimension family, a time
// window, a publication-quality set, and whether excluded records are removed
// or merely flagged. A Request is immutable; build a new one per call.
type Request struct {
	Variables []string
	Window    segment.Window
	Set       quality.Set
	// ApplyMask removes quality-excluded records from the result. When false,
	// excluded records stay in place with Valid set to false.
	ApplyMask bool
}

// Column is one index-aligned value sequence of a resolved series. Stride is
// the number of values per record (1 for scalar-per-record variables); Valid
// flags each record. A Column owns its backing slices.
type Column struct {
	Values []float64
	Stride int
	Valid  []bool
}

// Rows reports the number of records in the column.
func (c *Column) Rows() int { return len(c.Valid) }

// Row returns the values of record i.
func (c *Column) Row(i int) []float64 {
	return c.Values[i*c.Stride : (i+1)*c.Stride]
}

// drop returns a copy of the column without the records mask marks true.
func (c *Column) drop(mask []bool) *Column {
	out := &Column{Stride: c.Stride}
	for i := 0; i < c.Rows(); i++ {
		if i < len(mask) && mask[i] {
			continue
		}
		out.Values = append(out.Values, c.Row(i)...)
		out.Valid = append(out.Valid, c.Valid[i])
	}
	return out
}

// invalidate clears Valid for the records mask marks true.
func (c *Column) invalidate(mask []bool) {
	for i := 0; i < c.Rows() && i < len(mask); i++ {
		if mask[i] {
			c.Valid[i] = false
		}
	}
}

func newColumn(b segment.Block) *Column {
	stride := b.Stride
	if stride == 0 {
		stride = 1
	}
	c := &Column{
		Values: make([]float64, len(b.Values)),
		Stride: stride,
		Valid:  make([]bool, len(b.Valid)),
	}
	copy(c.Values, b.Values)
	copy(c.Valid, b.Valid)
	return c
}

func columnFromSlice(values []float64) *Column {
	c := &Column{
		Values: make([]float64, len(values)),
		Stride: 1,
		Valid:  make([]bool, len(values)),
	}
	copy(c.Values, values)
	for i := range c.Valid {
		c.Valid[i] = true
	}
	return c
}

// Series is the engine's output: variable name to value column, with
// fixed-width text variables decoded into Strings. Columns sharing a dimension
// are index-aligned. A Series owns its values; nothing aliases into the
// storage collaborator's buffers.
type Series struct {
	Columns map[string]*Column
	Strings map[string]string
}

// NewSeries returns an empty series.
func NewSeries() *Series {
	return &Series{
		Columns: make(map[string]*Column),
		Strings: make(map[string]string),
	}
}

// Empty reports whether the series holds no columns and no strings.
func (s *Series) Empty() bool {
	return len(s.Columns) == 0 && len(s.Strings) == 0
}

// Merge concatenates two series, older records first. Columns present in both
// are appended older-then-newer; columns present in one pass through. Strings
// prefer the newer series. Merge does not deduplicate overlapping records;
// callers dispatch windows so segments do not double-count.
func Merge(older, newer *Series) *Series {
	if older == nil || older.Empty() {
		if newer == nil {
			return NewSeries()
		}
		return newer
	}
	if newer == nil || newer.Empty() {
		return older
	}
	out := NewSeries()
	for name, col := range older.Columns {
		if ncol, ok := newer.Columns[name]; ok {
			out.Columns[name] = concat(col, ncol)
		} else {
			out.Columns[name] = col
		}
	}
	for name, col := range newer.Columns {
		if _, ok := older.Columns[name]; !ok {
			out.Columns[name] = col
		}
	}
	for name, v := range older.Strings {
		out.Strings[name] = v
	}
	for name, v := range newer.Strings {
		out.Strings[name] = v
	}
	return out
}

func concat(a, b *Column) *Column {
	stride := a.Stride
	if a.Rows() == 0 {
		stride = b.Stride
	}
	out := &Column{
		Values: make([]float64, 0, len(a.Values)+len(b.Values)),
		Stride: stride,
		Valid:  make([]bool, 0, a.Rows()+b.Rows()),
	}
	out.Values = append(out.Values, a.Values...)
	out.Values = append(out.Values, b.Values...)
	out.Valid = append(out.Valid, a.Valid...)
	out.Valid = append(out.Valid, b.Valid...)
	return out
}
