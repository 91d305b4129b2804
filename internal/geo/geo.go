// Package geo carries the small amount of geodesy the station metadata
// endpoints need: great-circle distance, initial bearing and degree-minute
// formatting of buoy positions.
package geo

import (
	"fmt"
	"math"
)

const (
	earthRadiusKm = 6372.8
	kmToNm        = 0.539957
)

// Point is a latitude/longitude position in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// DistanceNM returns the great-circle distance between two points in
// nautical miles (haversine formula).
func DistanceNM(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Asin(math.Sqrt(h))

	return earthRadiusKm * c * kmToNm
}

// Bearing returns the initial bearing from a to b in degrees [0, 360)
func Bearing(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLon := radians(b.Lon - a.Lon)

	x := math.Sin(dLon) * math.Cos(lat2)
	y := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	deg := degrees(math.Atan2(x, y))
	return math.Mod(deg+360, 360)
}

// DegreeMinutes holds a position split into signed whole degrees and
// positive decimal minutes, the form used on station metadata pages.
type DegreeMinutes struct {
	DegLat float64
	MinLat string
	DegLon float64
	MinLon string
}

// Split converts a point into degree-minute form
func (p Point) Split() DegreeMinutes {
	degLat, minLat := splitDegrees(p.Lat)
	degLon, minLon := splitDegrees(p.Lon)
	return DegreeMinutes{
		DegLat: degLat,
		MinLat: fmt.Sprintf("%2.3f", minLat),
		DegLon: degLon,
		MinLon: fmt.Sprintf("%2.3f", minLon),
	}
}

func splitDegrees(v float64) (deg, min float64) {
	abs := math.Abs(v)
	whole := math.Trunc(abs)
	min = (abs - whole) * 60
	deg = whole
	if v < 0 {
		deg = -whole
	}
	return deg, min
}

// String formats the point as "<lat> N <lon>"
func (p Point) String() string {
	return fmt.Sprintf("%v N %v", p.Lat, p.Lon)
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }
