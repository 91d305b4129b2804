package latest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/buoyworks/swell/internal/quality"
	"github.com/buoyworks/swell/internal/segment"
)

// Source opens the current multi-station snapshot segment.
type Source interface {
	OpenLatest(ctx context.Context) (segment.Segment, error)
}

// Refresher keeps an in-memory copy of the latest observations, re-extracted
// from the snapshot segment on a cron schedule.
type Refresher struct {
	source   Source
	set      quality.Set
	schedule string
	cron     *cron.Cron
	logger   zerolog.Logger

	mu        sync.RWMutex
	obs       []Observation
	refreshed time.Time
}

// NewRefresher creates a refresher for the given snapshot source
func NewRefresher(source Source, set quality.Set, schedule string, logger zerolog.Logger) *Refresher {
	return &Refresher{
		source:   source,
		set:      set,
		schedule: schedule,
		logger:   logger.With().Str("component", "latest-refresher").Logger(),
	}
}

// Start performs an initial refresh and schedules periodic ones
func (r *Refresher) Start(ctx context.Context) error {
	if err := r.Refresh(ctx); err != nil {
		// A cold start without a reachable snapshot is tolerable; the
		// schedule keeps trying.
		r.logger.Warn().Err(err).Msg("Initial snapshot refresh failed")
	}

	r.cron = cron.New()
	_, err := r.cron.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := r.Refresh(ctx); err != nil {
			r.logger.Error().Err(err).Msg("Snapshot refresh failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", r.schedule, err)
	}

	r.cron.Start()
	r.logger.Info().Str("schedule", r.schedule).Msg("Latest-observations refresher started")
	return nil
}

// Stop halts scheduled refreshes
func (r *Refresher) Stop() {
	if r.cron != nil {
		r.cron.Stop()
	}
}

// Refresh re-extracts observations from the current snapshot
func (r *Refresher) Refresh(ctx context.Context) error {
	seg, err := r.source.OpenLatest(ctx)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}

	obs, err := Extract(seg, r.set)
	if err != nil {
		return fmt.Errorf("failed to extract observations: %w", err)
	}

	r.mu.Lock()
	r.obs = obs
	r.refreshed = time.Now().UTC()
	r.mu.Unlock()

	r.logger.Info().Int("stations", len(obs)).Msg("Refreshed latest observations")
	return nil
}

// Observations returns the cached observations with their refresh time
func (r *Refresher) Observations() ([]Observation, time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.obs, r.refreshed
}

// Station returns the cached observation for one station label
func (r *Refresher) Station(label string) (Observation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.obs {
		if o.Label == label {
			return o, true
		}
	}
	return Observation{}, false
}
