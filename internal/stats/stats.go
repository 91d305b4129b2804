// Package stats produces data-availability summaries for a station: quality
// flag counts over the whole record (totals and by month) and per-deployment
// coverage.
package stats

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/buoyworks/swell/internal/quality"
	"github.com/buoyworks/swell/internal/segment"
	"github.com/buoyworks/swell/internal/series"
)

// DefaultFlags are the flag variables summarized when none are named.
var DefaultFlags = []string{"waveFlagPrimary", "sstFlagPrimary", "gpsStatusFlags"}

// recordStart bounds flag scans at the front; no station data predates it.
var recordStart = time.Date(1975, 1, 1, 0, 0, 0, 0, time.UTC)

// FlagCounts holds counts of flag values, total and grouped by month.
type FlagCounts struct {
	// Totals maps flag name to flag value to count.
	Totals map[string]map[int]int `json:"totals"`
	// ByMonth maps flag name to "YYYYMM" to flag value to count.
	ByMonth map[string]map[string]map[int]int `json:"by_month"`
}

// DeploymentInfo is the published coverage of one archived deployment.
type DeploymentInfo struct {
	Deployment string `json:"deployment"`
	Start      string `json:"time_coverage_start,omitempty"`
	End        string `json:"time_coverage_end,omitempty"`
}

// Summary is the full availability report of a station.
type Summary struct {
	FlagCounts  FlagCounts       `json:"flag_counts"`
	Deployments []DeploymentInfo `json:"deployments"`
}

// Reporter computes availability summaries through a station's stitcher.
type Reporter struct {
	stitcher       *series.Stitcher
	opener         segment.Opener
	maxDeployments int
	logger         zerolog.Logger
}

// NewReporter creates a reporter for one station
func NewReporter(st *series.Stitcher, opener segment.Opener, maxDeployments int, logger zerolog.Logger) *Reporter {
	if maxDeployments <= 0 {
		maxDeployments = series.DefaultMaxDeployments
	}
	return &Reporter{
		stitcher:       st,
		opener:         opener,
		maxDeployments: maxDeployments,
		logger:         logger.With().Str("component", "stats").Str("station", st.Station()).Logger(),
	}
}

// Summarize builds the full availability report
func (r *Reporter) Summarize(ctx context.Context) (*Summary, error) {
	counts, err := r.FlagCounts(ctx, DefaultFlags)
	if err != nil {
		return nil, err
	}

	deps, err := r.DeploymentSummary(ctx)
	if err != nil {
		return nil, err
	}

	return &Summary{FlagCounts: *counts, Deployments: deps}, nil
}

// FlagCounts counts the values of each flag variable over the entire station
// record. Flags are scanned with the all-inclusive quality set so nonpub
// records are counted too.
func (r *Reporter) FlagCounts(ctx context.Context, flags []string) (*FlagCounts, error) {
	if len(flags) == 0 {
		flags = DefaultFlags
	}

	win := segment.Window{
		Start: float64(recordStart.Unix()),
		End:   float64(time.Now().UTC().Unix()),
	}

	result := &FlagCounts{
		Totals:  make(map[string]map[int]int),
		ByMonth: make(map[string]map[string]map[int]int),
	}

	for _, flagName := range flags {
		prefix := quality.VarPrefix(flagName)
		timeVar := prefix + "Time"

		s, err := r.stitcher.GetSeries(ctx, series.Request{
			Variables: []string{flagName},
			Window:    win,
			Set:       quality.BothAll,
		})
		if err != nil {
			if errors.Is(err, segment.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to scan %s: %w", flagName, err)
		}

		flagCol := s.Columns[flagName]
		timeCol := s.Columns[timeVar]
		if flagCol == nil {
			r.logger.Debug().Str("flag", flagName).Msg("Flag variable absent, skipping")
			continue
		}

		totals := make(map[int]int)
		byMonth := make(map[string]map[int]int)

		for i := 0; i < flagCol.Rows(); i++ {
			v := flagCol.Values[i*max(flagCol.Stride, 1)]
			if math.IsNaN(v) {
				continue
			}
			val := int(v)
			totals[val]++

			if timeCol != nil && i < timeCol.Rows() {
				mon := monthKey(timeCol.Values[i])
				if byMonth[mon] == nil {
					byMonth[mon] = make(map[int]int)
				}
				byMonth[mon][val]++
			}
		}

		result.Totals[flagName] = totals
		result.ByMonth[flagName] = byMonth
	}

	return result, nil
}

// DeploymentSummary reports the published coverage of each archived
// deployment, stopping at the first missing one.
func (r *Reporter) DeploymentSummary(ctx context.Context) ([]DeploymentInfo, error) {
	var deps []DeploymentInfo

	for dep := 1; dep <= r.maxDeployments; dep++ {
		seg, err := r.opener.Open(ctx, segment.Archive, r.stitcher.Station(), dep)
		if err != nil {
			if errors.Is(err, segment.ErrNotFound) {
				break
			}
			return nil, fmt.Errorf("failed to open deployment %d: %w", dep, err)
		}

		info := DeploymentInfo{Deployment: fmt.Sprintf("d%02d", dep)}
		if v, ok := seg.Attribute("time_coverage_start"); ok {
			info.Start = v
		}
		if v, ok := seg.Attribute("time_coverage_end"); ok {
			info.End = v
		}
		deps = append(deps, info)
	}

	return deps, nil
}

// monthKey formats an epoch stamp as "YYYYMM"
func monthKey(ts float64) string {
	t := time.Unix(int64(ts), 0).UTC()
	return fmt.Sprintf("%04d%02d", t.Year(), int(t.Month()))
}
