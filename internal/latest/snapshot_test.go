package latest

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buoyworks/swell/internal/quality"
	"github.com/buoyworks/swell/internal/segment"
)

// snapshotFixture builds a two-station snapshot with three wave records.
// Station 0's newest cell is record 1; station 1's newest passing cell is
// record 0 because its record 2 is flagged bad.
func snapshotFixture() *segment.MemorySegment {
	nan := math.NaN()
	seg := segment.NewMemorySegment(segment.Realtime, "", 0)

	seg.AddVariable(segment.NewVar("waveTime", "waveTime", []float64{1000, 2000, 3000}))
	seg.AddVariable(segment.NewVar2D("waveTimeOffset", "waveTime", "metaStationCount",
		[]float64{
			0, 1,
			5, nan,
			nan, 7,
		}, 2))
	seg.AddVariable(segment.NewVar2D("waveFlagPrimary", "waveTime", "metaStationCount",
		[]float64{
			1, 1,
			1, 1,
			1, 3,
		}, 2))
	seg.AddVariable(segment.NewVar2D("waveHs", "waveTime", "metaStationCount",
		[]float64{
			1.0, 1.1,
			2.0, 2.1,
			3.0, 3.1,
		}, 2))
	seg.AddVariable(segment.NewVar2D("waveTp", "waveTime", "metaStationCount",
		[]float64{
			10, 11,
			12, 13,
			14, 15,
		}, 2))
	seg.AddVariable(segment.NewVar2D("waveDp", "waveTime", "metaStationCount",
		[]float64{
			100, 110,
			120, 130,
			140, 150,
		}, 2))

	// "100p1" and "142p1" as character codes, one row per station
	seg.AddVariable(segment.NewVar2D("metaSiteLabel", "metaStationCount", "maxStrlen05",
		[]float64{
			49, 48, 48, 112, 49,
			49, 52, 50, 112, 49,
		}, 5))
	seg.AddVariable(segment.NewVar("metaLatitude", "metaStationCount", []float64{32.9, 33.5}))
	seg.AddVariable(segment.NewVar("metaLongitude", "metaStationCount", []float64{-117.3, -118.1}))
	seg.AddVariable(segment.NewVar("metaWaterDepth", "metaStationCount", []float64{550, 300}))

	seg.AddVariable(segment.NewVar("sstTime", "sstTime", []float64{1500}))
	seg.AddVariable(segment.NewVar2D("sstTimeOffset", "sstTime", "metaStationCount",
		[]float64{0, nan}, 2))
	seg.AddVariable(segment.NewVar2D("sstSeaSurfaceTemperature", "sstTime", "metaStationCount",
		[]float64{15.5, nan}, 2))

	return seg
}

func TestExtract(t *testing.T) {
	obs, err := Extract(snapshotFixture(), quality.PublicGood)
	require.NoError(t, err)
	require.Len(t, obs, 2)

	first := obs[0]
	assert.Equal(t, "100p1", first.Label)
	assert.Equal(t, 2005.0, first.WaveTime)
	assert.Equal(t, 2.0, first.Hs)
	assert.Equal(t, 12.0, first.Tp)
	assert.Equal(t, 120.0, first.Dp)
	assert.Equal(t, 32.9, first.Latitude)
	assert.Equal(t, -117.3, first.Longitude)
	assert.Equal(t, 550.0, first.Depth)
	assert.Equal(t, 1500.0, first.SSTTime)
	assert.Equal(t, 15.5, first.SST)

	second := obs[1]
	assert.Equal(t, "142p1", second.Label)
	// Record 2 is excluded by its flag, record 1 has no cell; record 0 wins
	assert.Equal(t, 1001.0, second.WaveTime)
	assert.Equal(t, 1.1, second.Hs)
	assert.Zero(t, second.SSTTime)
}

func TestExtractAllFlagsPass(t *testing.T) {
	obs, err := Extract(snapshotFixture(), quality.BothAll)
	require.NoError(t, err)
	require.Len(t, obs, 2)

	// Under both-all the flagged record is no longer excluded
	assert.Equal(t, 3007.0, obs[1].WaveTime)
	assert.Equal(t, 3.1, obs[1].Hs)
}

func TestExtractMissingCoreVariable(t *testing.T) {
	seg := segment.NewMemorySegment(segment.Realtime, "", 0)
	_, err := Extract(seg, quality.PublicGood)
	assert.Error(t, err)
}

// staticSource serves a fixed snapshot segment.
type staticSource struct {
	seg segment.Segment
	err error
}

func (s staticSource) OpenLatest(ctx context.Context) (segment.Segment, error) {
	return s.seg, s.err
}

func TestRefresherRefresh(t *testing.T) {
	r := NewRefresher(staticSource{seg: snapshotFixture()}, quality.PublicGood, "*/30 * * * *", zerolog.Nop())

	obs, refreshed := r.Observations()
	assert.Empty(t, obs)
	assert.True(t, refreshed.IsZero())

	require.NoError(t, r.Refresh(context.Background()))

	obs, refreshed = r.Observations()
	assert.Len(t, obs, 2)
	assert.False(t, refreshed.IsZero())

	o, ok := r.Station("142p1")
	require.True(t, ok)
	assert.Equal(t, 1001.0, o.WaveTime)

	_, ok = r.Station("000p0")
	assert.False(t, ok)
}

func TestRefresherRefreshFailure(t *testing.T) {
	r := NewRefresher(staticSource{err: errors.New("offline")}, quality.PublicGood, "*/30 * * * *", zerolog.Nop())
	assert.Error(t, r.Refresh(context.Background()))
}
