package series

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/buoyworks/swell/internal/quality"
	"github.com/buoyworks/swell/internal/segment"
	"github.com/buoyworks/swell/internal/timeindex"
)

// DefaultMaxDeployments bounds the archive chain scan. The chain normally ends
// at the first missing deployment; the cap guarantees termination when that
// signal is unreliable.
const DefaultMaxDeployments = 99

// Commonly requested variable sets.
var (
	ParameterVars = []string{"waveHs", "waveTp", "waveDp", "waveTa"}
	SpectrumVars  = []string{
		"waveEnergyDensity", "waveMeanDirection",
		"waveA1Value", "waveB1Value", "waveA2Value", "waveB2Value",
		"waveCheckFactor",
	}
	MetaVars = []string{
		"metaStationName",
		"metaDeployLatitude", "metaDeployLongitude", "metaWaterDepth",
		"metaDeclination",
	}
	MetaAttributes = []string{
		"wmo_id",
		"geospatial_lat_min", "geospatial_lat_max", "geospatial_lat_units", "geospatial_lat_resolution",
		"geospatial_lon_min", "geospatial_lon_max", "geospatial_lon_units", "geospatial_lon_resolution",
		"geospatial_vertical_min", "geospatial_vertical_max", "geospatial_vertical_units", "geospatial_vertical_resolution",
		"time_coverage_start", "time_coverage_end",
		"date_created", "date_modified",
	}
)

// Stitcher answers station-level queries by dispatching per-segment requests
// across the realtime segment, the historic segment, and the archive
// deployment chain, and merging the results chronologically.
//
// Segments are opened per call and not retained, so a Stitcher is safe for
// concurrent use as long as its Opener is.
type Stitcher struct {
	opener         segment.Opener
	station        string
	maxDeployments int
	logger         zerolog.Logger
}

// NewStitcher creates a stitcher for one station. maxDeployments <= 0 selects
// DefaultMaxDeployments.
func NewStitcher(opener segment.Opener, station string, maxDeployments int, logger zerolog.Logger) *Stitcher {
	if maxDeployments <= 0 {
		maxDeployments = DefaultMaxDeployments
	}
	return &Stitcher{
		opener:         opener,
		station:        station,
		maxDeployments: maxDeployments,
		logger:         logger.With().Str("component", "stitcher").Str("station", station).Logger(),
	}
}

// Station returns the station label the stitcher serves.
func (st *Stitcher) Station() string { return st.station }

// GetSeries answers a window query. Displacement-family requests walk the
// archive deployment chain; every other family is stitched from the historic
// and realtime segments, historic records first.
func (st *Stitcher) GetSeries(ctx context.Context, req Request) (*Series, error) {
	if len(req.Variables) == 0 {
		return NewSeries(), nil
	}
	if quality.VarPrefix(req.Variables[0]) == displacementPrefix {
		return st.chainQuery(ctx, req)
	}
	return st.windowQuery(ctx, req)
}

// GetSeriesAt answers a target-time query: the record nearest target plus
// records walked records forward (or backward when negative), even when the
// walk crosses the historic/realtime boundary. It returns ErrNoAnchor when
// neither segment holds any record to anchor on.
func (st *Stitcher) GetSeriesAt(ctx context.Context, target float64, records int, req Request) (*Series, error) {
	if len(req.Variables) == 0 {
		return NewSeries(), nil
	}
	timeVar := quality.VarPrefix(req.Variables[0]) + "Time"
	win, err := st.targetWindow(ctx, target, records, timeVar)
	if err != nil {
		return nil, err
	}
	req.Window = win
	return st.GetSeries(ctx, req)
}

// Parameters fetches the standard wave parameter set.
func (st *Stitcher) Parameters(ctx context.Context, win segment.Window, set quality.Set, applyMask bool) (*Series, error) {
	return st.GetSeries(ctx, Request{Variables: ParameterVars, Window: win, Set: set, ApplyMask: applyMask})
}

// Spectra fetches the standard spectral variable set.
func (st *Stitcher) Spectra(ctx context.Context, win segment.Window, set quality.Set, applyMask bool) (*Series, error) {
	return st.GetSeries(ctx, Request{Variables: SpectrumVars, Window: win, Set: set, ApplyMask: applyMask})
}

// XYZ fetches the displacement components across the deployment chain.
func (st *Stitcher) XYZ(ctx context.Context, win segment.Window, set quality.Set) (*Series, error) {
	return st.GetSeries(ctx, Request{Variables: XYZData, Window: win, Set: set, ApplyMask: true})
}

// StationMeta carries station metadata: decoded meta variables plus selected
// global attributes.
type StationMeta struct {
	Series     *Series
	Attributes map[string]string
}

// Meta returns station metadata from the historic segment, falling back to
// realtime when no historic segment exists.
func (st *Stitcher) Meta(ctx context.Context) (*StationMeta, error) {
	seg, err := st.open(ctx, segment.Historic, 0)
	if err != nil {
		seg, err = st.open(ctx, segment.Realtime, 0)
		if err != nil {
			return nil, fmt.Errorf("station %s: %w", st.station, err)
		}
	}
	req := Request{
		Variables: MetaVars,
		Window:    segment.Window{Start: 0, End: float64(time.Now().Unix()) + 86400},
		Set:       quality.Default,
	}
	res, err := Resolve(seg, req)
	if err != nil {
		return nil, err
	}
	meta := &StationMeta{Series: res, Attributes: make(map[string]string)}
	for _, name := range MetaAttributes {
		if v, ok := seg.Attribute(name); ok {
			meta.Attributes[name] = v
		}
	}
	return meta, nil
}

// windowQuery stitches historic and realtime results for one window. The
// realtime segment participates when its first record is no newer than the
// window end; the historic segment when its last record is no older than the
// window start. Historic records come first in the merge.
func (st *Stitcher) windowQuery(ctx context.Context, req Request) (*Series, error) {
	timeVar := quality.VarPrefix(req.Variables[0]) + "Time"

	realtime := NewSeries()
	if seg, err := st.open(ctx, segment.Realtime, 0); err == nil {
		if first, ok := firstTime(seg, timeVar); ok && first <= req.Window.End {
			realtime, err = Resolve(seg, req)
			if err != nil {
				st.logger.Warn().Err(err).Msg("realtime segment unreadable, continuing without it")
				realtime = NewSeries()
			}
		}
	}

	historic := NewSeries()
	if seg, err := st.open(ctx, segment.Historic, 0); err == nil {
		if last, ok := lastTime(seg, timeVar); ok && last >= req.Window.Start {
			historic, err = Resolve(seg, req)
			if err != nil {
				st.logger.Warn().Err(err).Msg("historic segment unreadable, continuing without it")
				historic = NewSeries()
			}
		}
	}

	return Merge(historic, realtime), nil
}

// chainQuery walks the displacement chain: the realtime-xy segment first, then
// archive deployments in ascending order. The scan stops at the first missing
// deployment, once a deployment starts after the window ends, or at the
// configured cap. Results accumulate oldest deployment first with realtime-xy
// last.
func (st *Stitcher) chainQuery(ctx context.Context, req Request) (*Series, error) {
	var realtime *Series
	// Until the realtime-xy coverage is known, assume it starts at the window
	// start so the archive scan is not skipped.
	rtStart := req.Window.Start
	if seg, err := st.open(ctx, segment.RealtimeXY, 0); err == nil {
		res, segStart, err := st.resolveChainSegment(seg, req)
		if err != nil {
			st.logger.Warn().Err(err).Msg("realtime-xy segment unreadable, continuing without it")
		} else {
			realtime = res
			rtStart = segStart
		}
	}

	// A window entirely inside realtime-xy coverage needs no archive scan.
	if req.Window.Start > rtStart {
		return Merge(NewSeries(), realtime), nil
	}

	archives := NewSeries()
	for dep := 1; dep <= st.maxDeployments; dep++ {
		seg, err := st.open(ctx, segment.Archive, dep)
		if err != nil {
			// The first missing deployment bounds the chain.
			break
		}
		res, segStart, err := st.resolveChainSegment(seg, req)
		if err != nil {
			st.logger.Warn().Err(err).Int("deployment", dep).Msg("deployment segment unreadable, skipped")
			continue
		}
		archives = Merge(archives, res)
		// Later deployments are strictly newer; once one starts past the
		// window end nothing further can overlap.
		if segStart > req.Window.End {
			break
		}
	}
	return Merge(archives, realtime), nil
}

// resolveChainSegment resolves req against one displacement segment when its
// derived coverage overlaps the window. It reports the segment's earliest
// derived timestamp for the caller's scan decisions; segments without a
// derivable axis report the window start so the scan continues.
func (st *Stitcher) resolveChainSegment(seg segment.Segment, req Request) (*Series, float64, error) {
	z, ok := seg.Variable("xyzZDisplacement")
	if !ok {
		return NewSeries(), req.Window.Start, nil
	}
	axis, err := segment.DisplacementAxis(seg, displacementPrefix)
	if err != nil {
		return NewSeries(), req.Window.Start, nil
	}
	n := extent(z)
	if n == 0 {
		return NewSeries(), req.Window.Start, nil
	}
	covered := segment.Window{Start: axis.Timestamp(0), End: axis.Timestamp(n - 1)}
	if !req.Window.Overlaps(covered) {
		return NewSeries(), covered.Start, nil
	}
	res, err := Resolve(seg, req)
	if err != nil {
		return nil, covered.Start, err
	}
	return res, covered.Start, nil
}

// targetWindow locates the record nearest target in the realtime segment
// (authoritative near the present), falling back to historic, then walks
// records entries from that anchor. A walk that runs off one segment continues
// in the adjacent one and the two spans are concatenated.
func (st *Stitcher) targetWindow(ctx context.Context, target float64, records int, timeVar string) (segment.Window, error) {
	rStamps := st.loadStamps(ctx, segment.Realtime, timeVar)
	var hStamps []float64
	hLoaded := false
	loadHistoric := func() []float64 {
		if !hLoaded {
			hStamps = st.loadStamps(ctx, segment.Historic, timeVar)
			hLoaded = true
		}
		return hStamps
	}

	var rClosest, hClosest *int
	if len(rStamps) > 0 {
		last := len(rStamps) - 1
		i := sort.SearchFloat64s(rStamps, target)
		if i > last {
			i = last
		}
		switch {
		case i == last || rStamps[i] == target:
			rClosest = &i
		case i > 0:
			c := timeindex.Closest(i-1, i, rStamps, target)
			rClosest = &c
		}
		// i == 0 without an exact match means the target precedes realtime
		// coverage; the historic segment decides.
	}

	if rClosest == nil {
		if h := loadHistoric(); len(h) > 0 {
			hLast := len(h) - 1
			i := sort.SearchFloat64s(h, target)
			switch {
			case i > hLast:
				// Target falls in the gap between historic and realtime.
				if len(rStamps) > 0 && math.Abs(rStamps[0]-target) < math.Abs(h[hLast]-target) {
					zero := 0
					rClosest = &zero
				} else {
					hClosest = &hLast
				}
			case h[i] == target || i == 0:
				hClosest = &i
			default:
				c := timeindex.Closest(i-1, i, h, target)
				hClosest = &c
			}
		}
	}

	switch {
	case rClosest != nil:
		ri := timeindex.Walk(rStamps, *rClosest, records)
		if ri.Overflow < 0 {
			if h := loadHistoric(); len(h) > 0 {
				hi := timeindex.Walk(h, len(h)-1, records+*rClosest+1)
				lo, end := timeindex.Combine(hi, ri)
				return segment.Window{Start: lo, End: end}, nil
			}
		}
		return segment.Window{Start: ri.Lo, End: ri.Hi}, nil
	case hClosest != nil:
		hi := timeindex.Walk(hStamps, *hClosest, records)
		if hi.Overflow > 0 && len(rStamps) > 0 {
			ri := timeindex.Walk(rStamps, 0, records+*hClosest-(len(hStamps)-1)-1)
			lo, end := timeindex.Combine(hi, ri)
			return segment.Window{Start: lo, End: end}, nil
		}
		return segment.Window{Start: hi.Lo, End: hi.Hi}, nil
	}
	return segment.Window{}, fmt.Errorf("station %s, %s at %.0f: %w", st.station, timeVar, target, ErrNoAnchor)
}

// loadStamps reads the full time axis of one segment. Absent segments or
// variables yield nil; the caller treats that as "segment cannot anchor".
func (st *Stitcher) loadStamps(ctx context.Context, kind segment.Kind, timeVar string) []float64 {
	seg, err := st.open(ctx, kind, 0)
	if err != nil {
		return nil
	}
	v, ok := seg.Variable(timeVar)
	if !ok {
		return nil
	}
	blk, err := v.Read(0, extent(v))
	if err != nil {
		st.logger.Warn().Err(err).Str("kind", string(kind)).Str("variable", timeVar).Msg("time axis unreadable")
		return nil
	}
	return blk.Values
}

func (st *Stitcher) open(ctx context.Context, kind segment.Kind, deployment int) (segment.Segment, error) {
	seg, err := st.opener.Open(ctx, kind, st.station, deployment)
	if err != nil {
		if !errors.Is(err, segment.ErrNotFound) {
			st.logger.Debug().Err(err).Str("kind", string(kind)).Int("deployment", deployment).Msg("segment open failed")
		}
		return nil, err
	}
	return seg, nil
}

func firstTime(seg segment.Segment, timeVar string) (float64, bool) {
	v, ok := seg.Variable(timeVar)
	if !ok {
		return 0, false
	}
	blk, err := v.Read(0, 1)
	if err != nil || blk.Rows() == 0 {
		return 0, false
	}
	return blk.Values[0], true
}

func lastTime(seg segment.Segment, timeVar string) (float64, bool) {
	v, ok := seg.Variable(timeVar)
	if !ok {
		return 0, false
	}
	n := extent(v)
	blk, err := v.Read(n-1, n)
	if err != nil || blk.Rows() == 0 {
		return 0, false
	}
	return blk.Values[0], true
}
