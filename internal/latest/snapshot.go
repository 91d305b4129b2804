// Package latest extracts the most recent observation per station from the
// rolling multi-station snapshot segment and keeps it refreshed on a
// schedule.
package latest

import (
	"fmt"
	"math"
	"strings"

	"github.com/buoyworks/swell/internal/quality"
	"github.com/buoyworks/swell/internal/segment"
)

// Observation is the newest published record of one station.
type Observation struct {
	Label     string  `json:"label"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Depth     float64 `json:"depth"`

	WaveTime float64 `json:"wave_time"`
	Hs       float64 `json:"hs"`
	Tp       float64 `json:"tp"`
	Dp       float64 `json:"dp"`

	SSTTime float64 `json:"sst_time,omitempty"`
	SST     float64 `json:"sst,omitempty"`
}

// Extract pulls per-station latest observations from a snapshot segment.
//
// The snapshot stores wave and sst records in two-dimensional variables
// indexed [record, station], with per-cell offset variables locating each
// station's records on the shared time axis. A station's latest record is
// the last cell of its offset column that is present and passes the quality
// set; stations with no passing cell are omitted.
func Extract(seg segment.Segment, set quality.Set) ([]Observation, error) {
	waveTime, err := read1D(seg, "waveTime")
	if err != nil {
		return nil, err
	}

	waveOffset, waveStations, err := read2D(seg, "waveTimeOffset")
	if err != nil {
		return nil, err
	}
	records := len(waveOffset) / waveStations

	// Exclusions from the primary wave flag apply cell-wise
	waveExcl := flagMask(seg, "waveFlagPrimary", set, len(waveOffset))

	hs, _, _ := read2D(seg, "waveHs")
	tp, _, _ := read2D(seg, "waveTp")
	dp, _, _ := read2D(seg, "waveDp")

	sstTime, _ := read1D(seg, "sstTime")
	sstOffset, _, sstErr := read2D(seg, "sstTimeOffset")
	sst, _, _ := read2D(seg, "sstSeaSurfaceTemperature")
	sstExcl := flagMask(seg, "sstFlagPrimary", set, len(sstOffset))

	lat, _ := read1D(seg, "metaLatitude")
	lon, _ := read1D(seg, "metaLongitude")
	depth, _ := read1D(seg, "metaWaterDepth")

	labels, err := readStrings(seg, "metaSiteLabel")
	if err != nil {
		return nil, err
	}
	names, _ := readStrings(seg, "metaStationName")

	var obs []Observation
	for s := 0; s < waveStations; s++ {
		ix := latestIndex(waveOffset, waveExcl, records, waveStations, s)
		if ix < 0 {
			continue
		}

		o := Observation{
			WaveTime: waveTime[ix] + waveOffset[ix*waveStations+s],
			Hs:       cell(hs, ix, waveStations, s),
			Tp:       cell(tp, ix, waveStations, s),
			Dp:       cell(dp, ix, waveStations, s),
		}

		if s < len(labels) {
			o.Label = labels[s]
		}
		if s < len(names) {
			o.Name = names[s]
		}
		if s < len(lat) {
			o.Latitude = lat[s]
		}
		if s < len(lon) {
			o.Longitude = lon[s]
		}
		if s < len(depth) {
			o.Depth = depth[s]
		}

		if sstErr == nil && len(sstTime) > 0 {
			sstRecords := len(sstOffset) / waveStations
			if sstIx := latestIndex(sstOffset, sstExcl, sstRecords, waveStations, s); sstIx >= 0 {
				o.SSTTime = sstTime[sstIx] + sstOffset[sstIx*waveStations+s]
				o.SST = cell(sst, sstIx, waveStations, s)
			}
		}

		obs = append(obs, o)
	}

	return obs, nil
}

// latestIndex finds the last record index whose cell for station s is
// present and not excluded. Returns -1 when none qualifies.
func latestIndex(offset []float64, excluded []bool, records, stations, s int) int {
	for ix := records - 1; ix >= 0; ix-- {
		cell := ix*stations + s
		if cell >= len(offset) || math.IsNaN(offset[cell]) {
			continue
		}
		if excluded != nil && cell < len(excluded) && excluded[cell] {
			continue
		}
		return ix
	}
	return -1
}

// flagMask computes the cell-wise exclusion mask of a primary flag variable,
// or nil when the variable is absent.
func flagMask(seg segment.Segment, flagName string, set quality.Set, n int) []bool {
	v, ok := seg.Variable(flagName)
	if !ok {
		return nil
	}
	block, err := v.Read(0, extent(v))
	if err != nil || len(block.Values) < n {
		return nil
	}
	return quality.Mask(set, block.Values[:n], nil)
}

func read1D(seg segment.Segment, name string) ([]float64, error) {
	v, ok := seg.Variable(name)
	if !ok {
		return nil, fmt.Errorf("snapshot variable %s is absent", name)
	}
	block, err := v.Read(0, extent(v))
	if err != nil {
		return nil, err
	}
	return block.Values, nil
}

// read2D reads a [record, station] variable and returns its flattened
// values with the station extent.
func read2D(seg segment.Segment, name string) ([]float64, int, error) {
	v, ok := seg.Variable(name)
	if !ok {
		return nil, 0, fmt.Errorf("snapshot variable %s is absent", name)
	}
	block, err := v.Read(0, extent(v))
	if err != nil {
		return nil, 0, err
	}
	if block.Stride <= 0 {
		return nil, 0, fmt.Errorf("snapshot variable %s is not two-dimensional", name)
	}
	return block.Values, block.Stride, nil
}

// readStrings decodes a per-station character-code variable into strings,
// one per row.
func readStrings(seg segment.Segment, name string) ([]string, error) {
	v, ok := seg.Variable(name)
	if !ok {
		return nil, fmt.Errorf("snapshot variable %s is absent", name)
	}
	block, err := v.Read(0, extent(v))
	if err != nil {
		return nil, err
	}

	out := make([]string, block.Rows())
	for i := range out {
		var sb strings.Builder
		for _, code := range block.Row(i) {
			if math.IsNaN(code) || code <= 0 {
				continue
			}
			sb.WriteByte(byte(int(code)))
		}
		out[i] = strings.TrimSpace(sb.String())
	}
	return out, nil
}

func cell(values []float64, row, stride, col int) float64 {
	i := row*stride + col
	if i >= len(values) {
		return math.NaN()
	}
	return values[i]
}

func extent(v segment.Variable) int {
	shape := v.Shape()
	if len(shape) == 0 {
		return 1
	}
	return shape[0]
}
