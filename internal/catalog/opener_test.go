package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buoyworks/swell/internal/segment"
	"github.com/buoyworks/swell/internal/store"
)

func writeSegmentFile(t *testing.T, root, relPath string, seg *segment.MemorySegment, compress bool) {
	t.Helper()
	data, err := segment.EncodeJSON(seg)
	require.NoError(t, err)

	full := filepath.Join(root, filepath.FromSlash(relPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0700))

	if compress {
		f, err := os.Create(full)
		require.NoError(t, err)
		zw := gzip.NewWriter(f)
		_, err = zw.Write(data)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		require.NoError(t, f.Close())
		return
	}
	require.NoError(t, os.WriteFile(full, data, 0600))
}

func fixtureSegment(kind segment.Kind, deployment int) *segment.MemorySegment {
	seg := segment.NewMemorySegment(kind, "100p1", deployment)
	seg.AddVariable(segment.NewVar("waveTime", "waveTime", []float64{100, 200}).
		WithAttr("units", "seconds since 1970-01-01 00:00:00 UTC"))
	return seg
}

func newTestOpener(t *testing.T) (*FetchOpener, string) {
	t.Helper()
	root := t.TempDir()
	backend, err := store.NewLocalBackend(root, zerolog.Nop())
	require.NoError(t, err)
	locator := &Locator{Domain: "http://thredds.cdip.ucsd.edu"}
	return NewFetchOpener(backend, locator, segment.JSONDecoder{}, zerolog.Nop()), root
}

func TestFetchOpenerOpen(t *testing.T) {
	opener, root := newTestOpener(t)
	writeSegmentFile(t, root, "REALTIME/100p1_rt.nc", fixtureSegment(segment.Realtime, 0), false)

	seg, err := opener.Open(context.Background(), segment.Realtime, "100p1", 0)
	require.NoError(t, err)
	assert.Equal(t, segment.Realtime, seg.Kind())
	assert.Equal(t, "100p1", seg.Station())

	_, ok := seg.Variable("waveTime")
	assert.True(t, ok)
}

func TestFetchOpenerGzipFallback(t *testing.T) {
	opener, root := newTestOpener(t)
	writeSegmentFile(t, root, "ARCHIVE/100p1/100p1_d02.nc.gz", fixtureSegment(segment.Archive, 2), true)

	seg, err := opener.Open(context.Background(), segment.Archive, "100p1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, seg.Deployment())
}

func TestFetchOpenerNotFound(t *testing.T) {
	opener, _ := newTestOpener(t)

	_, err := opener.Open(context.Background(), segment.Historic, "100p1", 0)
	assert.ErrorIs(t, err, segment.ErrNotFound)
}

func TestFetchOpenerOpenLatest(t *testing.T) {
	opener, root := newTestOpener(t)
	snap := segment.NewMemorySegment(segment.Realtime, "", 0)
	snap.AddVariable(segment.NewVar("waveTime", "waveTime", []float64{1000}))
	writeSegmentFile(t, root, "REALTIME/latest_3day.nc", snap, false)

	seg, err := opener.OpenLatest(context.Background())
	require.NoError(t, err)
	_, ok := seg.Variable("waveTime")
	assert.True(t, ok)
}

func TestListStation(t *testing.T) {
	opener, root := newTestOpener(t)
	writeSegmentFile(t, root, "REALTIME/100p1_rt.nc", fixtureSegment(segment.Realtime, 0), false)
	writeSegmentFile(t, root, "ARCHIVE/100p1/100p1_historic.nc", fixtureSegment(segment.Historic, 0), false)
	writeSegmentFile(t, root, "ARCHIVE/100p1/100p1_d01.nc", fixtureSegment(segment.Archive, 1), false)
	writeSegmentFile(t, root, "ARCHIVE/100p1/100p1_d02.nc.gz", fixtureSegment(segment.Archive, 2), true)
	// d03 absent bounds the scan; d04 is unreachable
	writeSegmentFile(t, root, "ARCHIVE/100p1/100p1_d04.nc", fixtureSegment(segment.Archive, 4), false)

	files, err := opener.ListStation(context.Background(), "100p1", 10)
	require.NoError(t, err)

	assert.True(t, files.Realtime)
	assert.False(t, files.RealtimeXY)
	assert.True(t, files.Historic)
	assert.Equal(t, []int{1, 2}, files.Deployments)
}
