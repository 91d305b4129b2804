package segment

import (
	"fmt"
	"math"
	"strings"
)

// MemorySegment is a Segment held entirely in memory. It backs decoded segment
// files, the latest-observations snapshot, and test fixtures.
type MemorySegment struct {
	kind       Kind
	station    string
	deployment int
	attrs      map[string]string
	vars       map[string]*MemoryVariable
}

// NewMemorySegment creates an empty in-memory segment.
func NewMemorySegment(kind Kind, station string, deployment int) *MemorySegment {
	return &MemorySegment{
		kind:       kind,
		station:    station,
		deployment: deployment,
		attrs:      make(map[string]string),
		vars:       make(map[string]*MemoryVariable),
	}
}

func (s *MemorySegment) Kind() Kind      { return s.kind }
func (s *MemorySegment) Station() string { return s.station }
func (s *MemorySegment) Deployment() int { return s.deployment }

// Variable looks up a variable by name.
func (s *MemorySegment) Variable(name string) (Variable, bool) {
	v, ok := s.vars[name]
	if !ok {
		return nil, false
	}
	return v, true
}

// Attribute looks up a global attribute.
func (s *MemorySegment) Attribute(name string) (string, bool) {
	v, ok := s.attrs[name]
	return v, ok
}

// SetAttribute sets a global attribute.
func (s *MemorySegment) SetAttribute(name, value string) {
	s.attrs[name] = value
}

// AddVariable registers a variable and returns it for further configuration.
func (s *MemorySegment) AddVariable(v *MemoryVariable) *MemoryVariable {
	s.vars[v.name] = v
	return v
}

// MemoryVariable implements Variable over slices in memory.
type MemoryVariable struct {
	name   string
	dims   []string
	shape  []int
	attrs  map[string]string
	values []float64 // row-major
	stride int
	text   string
	isText bool
}

// NewVar creates a one-dimensional numeric variable. NaN values are treated as
// fill.
func NewVar(name, dim string, values []float64) *MemoryVariable {
	return &MemoryVariable{
		name:   name,
		dims:   []string{dim},
		shape:  []int{len(values)},
		attrs:  make(map[string]string),
		values: values,
		stride: 1,
	}
}

// NewVar2D creates a two-dimensional numeric variable with the given trailing
// extent. len(values) must be rows*cols.
func NewVar2D(name, dim, colDim string, values []float64, cols int) *MemoryVariable {
	if cols <= 0 || len(values)%cols != 0 {
		panic(fmt.Sprintf("segment: variable %s: %d values do not divide into %d columns", name, len(values), cols))
	}
	return &MemoryVariable{
		name:   name,
		dims:   []string{dim, colDim},
		shape:  []int{len(values) / cols, cols},
		attrs:  make(map[string]string),
		values: values,
		stride: cols,
	}
}

// NewScalar creates a scalar (shapeless) variable.
func NewScalar(name string, value float64) *MemoryVariable {
	return &MemoryVariable{
		name:   name,
		attrs:  make(map[string]string),
		values: []float64{value},
		stride: 1,
	}
}

// NewTextVar creates a fixed-width text variable.
func NewTextVar(name, text string) *MemoryVariable {
	return &MemoryVariable{
		name:   name,
		dims:   []string{"maxStrlen64"},
		shape:  []int{64},
		attrs:  make(map[string]string),
		isText: true,
		text:   text,
	}
}

// WithAttr sets a variable attribute and returns the variable.
func (v *MemoryVariable) WithAttr(name, value string) *MemoryVariable {
	v.attrs[name] = value
	return v
}

func (v *MemoryVariable) Name() string         { return v.name }
func (v *MemoryVariable) Dimensions() []string { return v.dims }
func (v *MemoryVariable) Shape() []int         { return v.shape }

func (v *MemoryVariable) Attribute(name string) (string, bool) {
	val, ok := v.attrs[name]
	return val, ok
}

// Read returns records [start, end) along the first axis, clamped to the
// variable's extent. Scalar variables read as one record.
func (v *MemoryVariable) Read(start, end int) (Block, error) {
	if v.isText {
		return Block{}, fmt.Errorf("variable %s: text variables are read with ReadText", v.name)
	}
	rows := 1
	if len(v.shape) > 0 {
		rows = v.shape[0]
	}
	if start < 0 {
		start = 0
	}
	if end > rows {
		end = rows
	}
	if end <= start {
		return Block{Stride: v.stride}, nil
	}
	n := end - start
	block := Block{
		Values: make([]float64, n*v.stride),
		Stride: v.stride,
		Valid:  make([]bool, n),
	}
	copy(block.Values, v.values[start*v.stride:end*v.stride])
	for i := 0; i < n; i++ {
		row := block.Row(i)
		for _, x := range row {
			if !math.IsNaN(x) {
				block.Valid[i] = true
				break
			}
		}
	}
	return block, nil
}

// ReadText decodes the variable as a string, trimming trailing NUL bytes.
func (v *MemoryVariable) ReadText() (string, error) {
	if !v.isText {
		return "", fmt.Errorf("variable %s: %w", v.name, ErrNotText)
	}
	return strings.TrimRight(v.text, "\x00"), nil
}
