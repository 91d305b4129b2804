package segment

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowOverlaps(t *testing.T) {
	w := Window{Start: 100, End: 200}

	tests := []struct {
		name  string
		other Window
		want  bool
	}{
		{"inside", Window{120, 180}, true},
		{"covering", Window{0, 300}, true},
		{"touching start", Window{50, 100}, true},
		{"touching end", Window{200, 250}, true},
		{"before", Window{0, 99}, false},
		{"after", Window{201, 300}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.Overlaps(tt.other))
		})
	}
}

func TestMemoryVariableRead(t *testing.T) {
	v := NewVar("waveHs", "waveTime", []float64{1.5, math.NaN(), 2.5})

	blk, err := v.Read(0, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, blk.Rows())
	assert.Equal(t, 1, blk.Stride)
	assert.Equal(t, []bool{true, false, true}, blk.Valid)
	assert.Equal(t, 1.5, blk.Values[0])
	assert.True(t, math.IsNaN(blk.Values[1]))
}

func TestMemoryVariableReadClamps(t *testing.T) {
	v := NewVar("waveHs", "waveTime", []float64{1, 2, 3})

	blk, err := v.Read(-5, 99)
	require.NoError(t, err)
	assert.Equal(t, 3, blk.Rows())

	blk, err = v.Read(2, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, blk.Rows())
}

func TestMemoryVariable2D(t *testing.T) {
	// Two records of three frequency bins each
	v := NewVar2D("waveEnergyDensity", "waveTime", "waveFrequency",
		[]float64{1, 2, 3, 4, 5, 6}, 3)

	assert.Equal(t, []int{2, 3}, v.Shape())

	blk, err := v.Read(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, blk.Rows())
	assert.Equal(t, 3, blk.Stride)
	assert.Equal(t, []float64{4, 5, 6}, blk.Row(0))
}

func TestMemoryVariableScalar(t *testing.T) {
	v := NewScalar("xyzSampleRate", 1.28)
	assert.Empty(t, v.Shape())

	blk, err := v.Read(0, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, blk.Rows())
	assert.Equal(t, 1.28, blk.Values[0])
}

func TestTextVariable(t *testing.T) {
	v := NewTextVar("metaStationName", "Torrey Pines Outer\x00\x00\x00")

	txt, err := v.ReadText()
	require.NoError(t, err)
	assert.Equal(t, "Torrey Pines Outer", txt)

	_, err = v.Read(0, 1)
	assert.Error(t, err)
}

func TestReadTextOnNumeric(t *testing.T) {
	v := NewVar("waveHs", "waveTime", []float64{1})
	_, err := v.ReadText()
	assert.ErrorIs(t, err, ErrNotText)
}

func TestIsTimeDimension(t *testing.T) {
	timeVar := NewVar("waveTime", "waveTime", []float64{1}).
		WithAttr("units", "seconds since 1970-01-01 00:00:00 UTC")
	assert.True(t, IsTimeDimension(timeVar))

	hsVar := NewVar("waveHs", "waveTime", []float64{1}).WithAttr("units", "meter")
	assert.False(t, IsTimeDimension(hsVar))

	noUnits := NewVar("waveBandwidth", "waveFrequency", []float64{1})
	assert.False(t, IsTimeDimension(noUnits))
}

func TestCoverage(t *testing.T) {
	seg := NewMemorySegment(Historic, "100p1", 0)
	seg.SetAttribute("time_coverage_start", "2000-01-01T00:00:00Z")
	seg.SetAttribute("time_coverage_end", "2000-01-02T00:00:00Z")

	win, ok := Coverage(seg)
	require.True(t, ok)
	assert.Equal(t, 946684800.0, win.Start)
	assert.Equal(t, 946771200.0, win.End)
}

func TestCoverageMissing(t *testing.T) {
	seg := NewMemorySegment(Historic, "100p1", 0)
	seg.SetAttribute("time_coverage_start", "2000-01-01T00:00:00Z")

	_, ok := Coverage(seg)
	assert.False(t, ok)
}

func TestDateModified(t *testing.T) {
	seg := NewMemorySegment(Realtime, "100p1", 0)
	seg.SetAttribute("date_modified", "2024-06-01T12:00:00Z")

	ts, ok := DateModified(seg)
	require.True(t, ok)
	assert.Equal(t, 2024, ts.Year())

	_, ok = DateModified(NewMemorySegment(Realtime, "100p1", 0))
	assert.False(t, ok)
}
