package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceNM(t *testing.T) {
	// Nashville to Los Angeles, a standard haversine fixture: 2887.26 km
	bna := Point{Lat: 36.12, Lon: -86.67}
	lax := Point{Lat: 33.94, Lon: -118.40}

	assert.InDelta(t, 2887.26*0.539957, DistanceNM(bna, lax), 0.01)
	assert.InDelta(t, DistanceNM(bna, lax), DistanceNM(lax, bna), 1e-9)
	assert.Equal(t, 0.0, DistanceNM(bna, bna))
}

func TestBearing(t *testing.T) {
	origin := Point{Lat: 0, Lon: 0}

	tests := []struct {
		name string
		to   Point
		want float64
	}{
		{"north", Point{Lat: 1, Lon: 0}, 0},
		{"east", Point{Lat: 0, Lon: 1}, 90},
		{"south", Point{Lat: -1, Lon: 0}, 180},
		{"west", Point{Lat: 0, Lon: -1}, 270},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Bearing(origin, tt.to), 1e-9)
		})
	}
}

func TestSplit(t *testing.T) {
	// Torrey Pines Outer buoy position
	dm := Point{Lat: 32.866667, Lon: -117.257167}.Split()

	assert.Equal(t, 32.0, dm.DegLat)
	assert.Equal(t, "52.000", dm.MinLat)
	assert.Equal(t, -117.0, dm.DegLon)
	assert.Equal(t, "15.430", dm.MinLon)
}

func TestSplitWholeDegrees(t *testing.T) {
	dm := Point{Lat: 33, Lon: -118}.Split()
	assert.Equal(t, 33.0, dm.DegLat)
	assert.Equal(t, "0.000", dm.MinLat)
	assert.Equal(t, -118.0, dm.DegLon)
}

func TestString(t *testing.T) {
	assert.Equal(t, "32.9 N -117.5", Point{Lat: 32.9, Lon: -117.5}.String())
}
