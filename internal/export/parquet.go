// Package export renders stitched series as Apache Parquet for downstream
// analysis tools.
package export

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/parquet-go/parquet-go"

	"github.com/buoyworks/swell/internal/series"
)

// WriteParquet writes a series as one Parquet file, one row per record.
//
// Every numeric column becomes an optional double field; invalid cells and
// NaN fills are written as nulls. Multi-bin columns expand into one field
// per bin with a _NN suffix. Text columns are carried as required string
// fields repeated on every row so the file is self-describing.
func WriteParquet(w io.Writer, s *series.Series) error {
	if s == nil || s.Empty() {
		return fmt.Errorf("cannot export an empty series")
	}

	fields, rows := flatten(s)

	group := make(parquet.Group, len(fields))
	for _, f := range fields {
		if f.text {
			group[f.name] = parquet.String()
		} else {
			group[f.name] = parquet.Optional(parquet.Leaf(parquet.DoubleType))
		}
	}
	schema := parquet.NewSchema("series", group)

	// The schema decides column order; keep field lookup in that order
	byName := make(map[string]field, len(fields))
	for _, f := range fields {
		byName[f.name] = f
	}
	ordered := make([]field, 0, len(fields))
	for _, sf := range schema.Fields() {
		ordered = append(ordered, byName[sf.Name()])
	}

	buf := parquet.NewBuffer(schema)
	for r := 0; r < rows; r++ {
		row := make(parquet.Row, 0, len(ordered))
		for col, f := range ordered {
			if f.text {
				row = append(row, parquet.ValueOf(f.str).Level(0, 0, col))
				continue
			}
			v := f.values[r]
			if math.IsNaN(v) {
				row = append(row, parquet.NullValue().Level(0, 0, col))
			} else {
				row = append(row, parquet.ValueOf(v).Level(0, 1, col))
			}
		}
		if _, err := buf.WriteRows([]parquet.Row{row}); err != nil {
			return fmt.Errorf("parquet: write row %d: %w", r, err)
		}
	}

	pw := parquet.NewWriter(w, schema, parquet.Compression(&parquet.Snappy))
	if _, err := pw.WriteRowGroup(buf); err != nil {
		_ = pw.Close()
		return fmt.Errorf("parquet: write row group: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("parquet: close writer: %w", err)
	}

	return nil
}

type field struct {
	name   string
	values []float64 // per row, NaN when absent; nil for text fields
	text   bool
	str    string
}

// flatten expands series columns into flat per-row fields padded to the
// longest column.
func flatten(s *series.Series) ([]field, int) {
	rows := 0
	names := make([]string, 0, len(s.Columns))
	for name, col := range s.Columns {
		names = append(names, name)
		if col.Rows() > rows {
			rows = col.Rows()
		}
	}
	sort.Strings(names)

	var fields []field
	for _, name := range names {
		col := s.Columns[name]
		stride := col.Stride
		if stride < 1 {
			stride = 1
		}
		for bin := 0; bin < stride; bin++ {
			fname := name
			if stride > 1 {
				fname = fmt.Sprintf("%s_%02d", name, bin)
			}
			values := make([]float64, rows)
			for r := range values {
				if r < col.Rows() && col.Valid[r] {
					values[r] = col.Values[r*stride+bin]
				} else {
					values[r] = math.NaN()
				}
			}
			fields = append(fields, field{name: fname, values: values})
		}
	}

	textNames := make([]string, 0, len(s.Strings))
	for name := range s.Strings {
		textNames = append(textNames, name)
	}
	sort.Strings(textNames)
	for _, name := range textNames {
		fields = append(fields, field{name: name, text: true, str: s.Strings[name]})
	}

	return fields, rows
}
