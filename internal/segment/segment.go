// Package segment defines the storage boundary of the engine: time-ordered
// segments of station records and the variables they carry.
//
// A segment is one physical source file (realtime, historic, or a numbered
// archive deployment). Segments are read-only and internally time-ordered;
// adjacent segments may overlap or leave gaps. How the bytes of a segment are
// located and parsed is a collaborator concern behind the Opener and Decoder
// interfaces.
package segment

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Kind identifies which class of segment file a Segment was opened from.
type Kind string

const (
	// Realtime is the rolling near-present segment for a station.
	Realtime Kind = "realtime"
	// Historic is the consolidated older record for a station.
	Historic Kind = "historic"
	// Archive is one numbered instrument-deployment segment.
	Archive Kind = "archive"
	// RealtimeXY is the rolling displacement (xyz) segment.
	RealtimeXY Kind = "realtime-xy"
)

// Engine errors. Per-segment gaps surface as empty results, not errors; these
// sentinels cover the cases a caller has to distinguish.
var (
	// ErrNotFound reports that a segment does not exist at all. Callers
	// scanning a deployment chain use it to bound the scan.
	ErrNotFound = errors.New("segment not found")

	// ErrNotText reports a text read against a numeric variable.
	ErrNotText = errors.New("variable is not a text variable")
)

// Segment is one time-ordered source of station records.
//
// A Segment handle is borrowed for a single request flow; the engine does not
// assume it stays valid afterward and does not share it across requests.
type Segment interface {
	// Kind reports the segment class.
	Kind() Kind

	// Station reports the station label the segment belongs to, e.g. "100p1".
	Station() string

	// Deployment reports the deployment ordinal for archive segments, 0 otherwise.
	Deployment() int

	// Variable looks up a variable by name. The second return is false when the
	// segment does not carry the variable.
	Variable(name string) (Variable, bool)

	// Attribute looks up a global attribute, e.g. "time_coverage_start".
	Attribute(name string) (string, bool)
}

// Variable is a named container of numeric or fixed-width text values with at
// most one leading record dimension.
type Variable interface {
	// Name returns the variable name, e.g. "waveHs".
	Name() string

	// Dimensions returns the dimension names in order.
	Dimensions() []string

	// Shape returns the extent of each dimension. Scalar variables have an
	// empty shape.
	Shape() []int

	// Attribute looks up a variable attribute, e.g. "units" or
	// "ancillary_variables".
	Attribute(name string) (string, bool)

	// Read returns records [start, end) along the first axis. Scalar variables
	// are read as a single record. Fill values come back as NaN with the
	// record marked invalid.
	Read(start, end int) (Block, error)

	// ReadText decodes a fixed-width text variable into a string, trimming
	// trailing NUL fill bytes. Numeric variables return ErrNotText.
	ReadText() (string, error)
}

// Block is a row-major slab of variable values. Stride is the number of values
// per record (1 for one-dimensional variables); Valid flags each record.
type Block struct {
	Values []float64
	Stride int
	Valid  []bool
}

// Rows reports the number of records in the block.
func (b Block) Rows() int { return len(b.Valid) }

// Row returns the values of record i.
func (b Block) Row(i int) []float64 {
	return b.Values[i*b.Stride : (i+1)*b.Stride]
}

// Opener opens segments by kind. Implementations decide where segment files
// live (local directory, object store, remote catalog) and how their bytes are
// parsed. Open returns ErrNotFound (possibly wrapped) when the segment does
// not exist; deployment is ignored for non-archive kinds.
type Opener interface {
	Open(ctx context.Context, kind Kind, station string, deployment int) (Segment, error)
}

// Decoder parses the raw bytes of one segment file. Wire-level parsing lives
// outside the engine; a Decoder is how it plugs in.
type Decoder interface {
	Decode(kind Kind, station string, deployment int, data []byte) (Segment, error)
}

// TimeUnitsPrefix marks a dimension variable as a time dimension when its
// units attribute starts with it ("seconds since ...").
const TimeUnitsPrefix = "seconds"

// IsTimeDimension reports whether v carries time values, judged by its units
// attribute.
func IsTimeDimension(v Variable) bool {
	units, ok := v.Attribute("units")
	return ok && strings.HasPrefix(units, TimeUnitsPrefix)
}

// coverageLayout is the timestamp layout of coverage and modification
// attributes.
const coverageLayout = "2006-01-02T15:04:05Z"

// Coverage returns the declared time coverage of a segment from its
// time_coverage_start/time_coverage_end attributes. The second return is false
// when either attribute is missing or malformed.
func Coverage(s Segment) (Window, bool) {
	start, ok := attrTime(s, "time_coverage_start")
	if !ok {
		return Window{}, false
	}
	end, ok := attrTime(s, "time_coverage_end")
	if !ok {
		return Window{}, false
	}
	return Window{Start: float64(start.Unix()), End: float64(end.Unix())}, true
}

// DateModified returns the last modification time declared by the segment.
func DateModified(s Segment) (time.Time, bool) {
	return attrTime(s, "date_modified")
}

func attrTime(s Segment, name string) (time.Time, bool) {
	raw, ok := s.Attribute(name)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(coverageLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
