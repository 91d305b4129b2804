package series

import (
	"fmt"
	"strings"

	"github.com/buoyworks/swell/internal/quality"
	"github.com/buoyworks/swell/internal/segment"
	"github.com/buoyworks/swell/internal/timeindex"
)

// displacementPrefix names the variable family whose time axis is derived
// rather than stored. Requests for it resolve through the segment's synthetic
// axis instead of a time dimension variable.
const displacementPrefix = "xyz"

// textDimPrefix marks the dimension of fixed-width text variables.
const textDimPrefix = "maxStrlen"

// XYZData is shorthand for the three displacement components.
var XYZData = []string{"xyzXDisplacement", "xyzYDisplacement", "xyzZDisplacement"}

// Resolve answers one request against a single segment. Gaps are not errors:
// a window with no records, or a segment missing the leading variable, yields
// an empty series. Variables absent from the segment are skipped. Errors are
// reserved for failed reads from the storage collaborator.
func Resolve(seg segment.Segment, req Request) (*Series, error) {
	if len(req.Variables) == 0 {
		return NewSeries(), nil
	}
	if quality.VarPrefix(req.Variables[0]) == displacementPrefix {
		return resolveDisplacement(seg, req)
	}
	return resolveStored(seg, req)
}

// resolveStored handles variable families whose time dimension is physically
// stored (wave, sst, gps, meta).
func resolveStored(seg segment.Segment, req Request) (*Series, error) {
	out := NewSeries()

	first, ok := seg.Variable(req.Variables[0])
	if !ok {
		return out, nil
	}

	// The leading variable decides the time dimension for the whole request.
	timeDim := ""
	var sIdx, eIdx int
	for _, dimName := range first.Dimensions() {
		dimVar, ok := seg.Variable(dimName)
		if !ok {
			// Pure count dimensions have no backing variable.
			continue
		}
		if !segment.IsTimeDimension(dimVar) {
			continue
		}
		blk, err := dimVar.Read(0, extent(dimVar))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", dimName, err)
		}
		sIdx, eIdx = timeindex.Range(blk.Values, req.Window.Start, req.Window.End)
		if sIdx == eIdx {
			return out, nil
		}
		timeDim = dimName
		out.Columns[dimName] = newColumn(slice(blk, sIdx, eIdx))
		break
	}

	// sliced collects the columns cut to the time window; only those
	// participate in quality masking.
	sliced := []string{}
	if timeDim != "" {
		sliced = append(sliced, timeDim)
	}

	for _, name := range req.Variables {
		v, ok := seg.Variable(name)
		if !ok {
			continue
		}
		if isText(v) {
			txt, err := v.ReadText()
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", name, err)
			}
			out.Strings[name] = txt
			continue
		}
		if timeDim != "" && hasDimension(v, timeDim) {
			blk, err := v.Read(sIdx, eIdx)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", name, err)
			}
			out.Columns[name] = newColumn(blk)
			sliced = append(sliced, name)
			continue
		}
		// No time dimension: the full extent is returned, scalars as length 1.
		blk, err := v.Read(0, extent(v))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		out.Columns[name] = newColumn(blk)
	}

	mask, err := ancillaryMask(seg, first, req.Set, timeDim != "", sIdx, eIdx)
	if err != nil {
		return nil, err
	}
	if mask == nil {
		return out, nil
	}
	for _, name := range sliced {
		if req.ApplyMask {
			out.Columns[name] = out.Columns[name].drop(mask)
		} else {
			out.Columns[name].invalidate(mask)
		}
	}
	return out, nil
}

// ancillaryMask builds the exclusion mask declared by the leading variable's
// ancillary flag variable, over the same index range the data was sliced to.
// A nil mask means no exclusion applies.
func ancillaryMask(seg segment.Segment, first segment.Variable, set quality.Set, timeSliced bool, sIdx, eIdx int) ([]bool, error) {
	anc, ok := first.Attribute("ancillary_variables")
	if !ok {
		return nil, nil
	}
	fields := strings.Fields(anc)
	if len(fields) == 0 {
		return nil, nil
	}
	flagName := fields[0]
	primaryVar, ok := seg.Variable(flagName)
	if !ok {
		return nil, nil
	}
	if !timeSliced {
		sIdx, eIdx = 0, extent(primaryVar)
	}
	primary, err := primaryVar.Read(sIdx, eIdx)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", flagName, err)
	}
	var secondary []float64
	secondaryName := quality.VarPrefix(flagName) + "FlagSecondary"
	if secondaryVar, ok := seg.Variable(secondaryName); ok {
		blk, err := secondaryVar.Read(sIdx, eIdx)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", secondaryName, err)
		}
		secondary = blk.Values
	}
	return quality.MaskFor(flagName, set, primary.Values, secondary), nil
}

// resolveDisplacement handles the xyz family: indices come from the synthetic
// axis and the time column is materialized, never read. No quality mask is
// defined for displacement records.
func resolveDisplacement(seg segment.Segment, req Request) (*Series, error) {
	out := NewSeries()

	vars := req.Variables
	if vars[0] == "xyzData" {
		vars = XYZData
	}

	axis, err := segment.DisplacementAxis(seg, displacementPrefix)
	if err != nil {
		// No derivable time axis means no locatable records in this segment.
		return out, nil
	}
	z, ok := seg.Variable("xyzZDisplacement")
	if !ok {
		return out, nil
	}
	n := extent(z)
	if n == 0 {
		return out, nil
	}

	sIdx := axis.Index(req.Window.Start)
	eIdx := axis.Index(req.Window.End)
	requested := segment.Window{Start: float64(sIdx), End: float64(eIdx)}
	available := segment.Window{Start: 0, End: float64(n - 1)}
	if !requested.Overlaps(available) {
		return out, nil
	}
	sIdx = max(0, sIdx)
	eIdx = min(n-1, eIdx)

	out.Columns["xyzTime"] = columnFromSlice(axis.Timestamps(sIdx, eIdx))
	for _, name := range vars {
		v, ok := seg.Variable(name)
		if !ok {
			continue
		}
		blk, err := v.Read(sIdx, eIdx)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		out.Columns[name] = newColumn(blk)
	}
	return out, nil
}

// extent is the first-axis length of a variable; scalar-shaped variables count
// as one record.
func extent(v segment.Variable) int {
	shape := v.Shape()
	if len(shape) == 0 {
		return 1
	}
	return shape[0]
}

func hasDimension(v segment.Variable, dim string) bool {
	for _, d := range v.Dimensions() {
		if d == dim {
			return true
		}
	}
	return false
}

func isText(v segment.Variable) bool {
	dims := v.Dimensions()
	return len(dims) == 1 && strings.HasPrefix(dims[0], textDimPrefix)
}

func slice(b segment.Block, start, end int) segment.Block {
	stride := b.Stride
	if stride == 0 {
		stride = 1
	}
	return segment.Block{
		Values: b.Values[start*stride : end*stride],
		Stride: stride,
		Valid:  b.Valid[start:end],
	}
}
