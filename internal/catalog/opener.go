package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/buoyworks/swell/internal/segment"
	"github.com/buoyworks/swell/internal/store"
)

// FetchOpener opens segments by fetching their raw bytes from an object
// store and handing them to a decoder. Compressed deployment objects
// (".nc.gz") are tried when the plain path is absent.
type FetchOpener struct {
	store   store.Backend
	locator *Locator
	decoder segment.Decoder
	logger  zerolog.Logger
}

// NewFetchOpener creates an opener backed by the given store and decoder
func NewFetchOpener(backend store.Backend, locator *Locator, decoder segment.Decoder, logger zerolog.Logger) *FetchOpener {
	return &FetchOpener{
		store:   backend,
		locator: locator,
		decoder: decoder,
		logger:  logger.With().Str("component", "fetch-opener").Logger(),
	}
}

// Open fetches and decodes one segment file. A missing object maps to
// segment.ErrNotFound so callers can treat absence as end-of-chain.
func (o *FetchOpener) Open(ctx context.Context, kind segment.Kind, station string, deployment int) (segment.Segment, error) {
	path := o.locator.Path(kind, station, deployment)

	data, err := o.fetch(ctx, path)
	if err != nil {
		if errors.Is(err, store.ErrObjectNotFound) {
			return nil, fmt.Errorf("%s: %w", path, segment.ErrNotFound)
		}
		return nil, err
	}

	seg, err := o.decoder.Decode(kind, station, deployment, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	o.logger.Debug().
		Str("station", station).
		Str("kind", string(kind)).
		Int("bytes", len(data)).
		Msg("Opened segment")

	return seg, nil
}

// OpenLatest fetches and decodes the rolling multi-station snapshot
func (o *FetchOpener) OpenLatest(ctx context.Context) (segment.Segment, error) {
	path := o.locator.LatestPath()

	data, err := o.fetch(ctx, path)
	if err != nil {
		if errors.Is(err, store.ErrObjectNotFound) {
			return nil, fmt.Errorf("%s: %w", path, segment.ErrNotFound)
		}
		return nil, err
	}

	seg, err := o.decoder.Decode(segment.Realtime, "", 0, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return seg, nil
}

// fetch reads an object, falling back to its gzip-compressed sibling
func (o *FetchOpener) fetch(ctx context.Context, path string) ([]byte, error) {
	data, err := o.store.Read(ctx, path)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, store.ErrObjectNotFound) {
		return nil, err
	}

	gzPath := path + ".gz"
	data, gzErr := o.store.Read(ctx, gzPath)
	if gzErr != nil {
		// Report the plain-path absence, not the fallback's
		return nil, err
	}
	return store.MaybeGunzip(gzPath, data)
}

// StationFiles describes the segment files a station currently publishes.
type StationFiles struct {
	Realtime    bool  `json:"realtime"`
	RealtimeXY  bool  `json:"realtime_xy"`
	Historic    bool  `json:"historic"`
	Deployments []int `json:"deployments"`
}

// ListStation probes a station's segment files concurrently: the three fixed
// files in parallel with a sequential deployment scan that stops at the
// first gap.
func (o *FetchOpener) ListStation(ctx context.Context, station string, maxDeployments int) (*StationFiles, error) {
	files := &StationFiles{}

	g, ctx := errgroup.WithContext(ctx)

	probe := func(kind segment.Kind, flag *bool) func() error {
		return func() error {
			ok, err := o.exists(ctx, o.locator.Path(kind, station, 0))
			if err != nil {
				return err
			}
			*flag = ok
			return nil
		}
	}

	g.Go(probe(segment.Realtime, &files.Realtime))
	g.Go(probe(segment.RealtimeXY, &files.RealtimeXY))
	g.Go(probe(segment.Historic, &files.Historic))
	g.Go(func() error {
		for dep := 1; dep <= maxDeployments; dep++ {
			ok, err := o.exists(ctx, o.locator.Path(segment.Archive, station, dep))
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			files.Deployments = append(files.Deployments, dep)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to list station %s: %w", station, err)
	}

	return files, nil
}

// exists checks for an object or its gzip-compressed sibling
func (o *FetchOpener) exists(ctx context.Context, path string) (bool, error) {
	ok, err := o.store.Exists(ctx, path)
	if err != nil || ok {
		return ok, err
	}
	return o.store.Exists(ctx, path+".gz")
}
