// Package geo holds the coordinate type shared by the campus navigation engine
// and the great-circle distance helpers built on top of it.
package geo

import (
	"fmt"
	"math"

	"github.com/golang/geo/s2"
)

// earthRadiusInMeters is the Earth's volumetric mean radius.
const earthRadiusInMeters = 6371000

// Coordinate is a WGS84 latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Sentinel is the (0,0) pair used to mean "no destination set".
// It is never a valid destination even though it is a real place.
var Sentinel = Coordinate{}

// IsSentinel reports whether c is exactly (0,0).
func (c Coordinate) IsSentinel() bool {
	return c.Lat == 0 && c.Lon == 0
}

// Valid reports whether c is finite and within geographic bounds.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", c.Lat, c.Lon)
}

// Distance returns the great-circle distance between a and b in meters.
// NaN inputs yield NaN.
func Distance(a, b Coordinate) float64 {
	if math.IsNaN(a.Lat) || math.IsNaN(a.Lon) || math.IsNaN(b.Lat) || math.IsNaN(b.Lon) {
		return math.NaN()
	}
	p1 := s2.LatLngFromDegrees(a.Lat, a.Lon)
	p2 := s2.LatLngFromDegrees(b.Lat, b.Lon)
	return p1.Distance(p2).Radians() * earthRadiusInMeters
}

// Moved reports whether to lies strictly more than threshold meters from from.
func Moved(from, to Coordinate, threshold float64) bool {
	return Distance(from, to) > threshold
}

// FormatDistance renders meters the way the list and map surfaces show them:
// two decimals, in kilometers from 1000 m upwards and in meters below.
// The value is rounded to centimeters before choosing the unit so that
// 999.999 reads "1.00 km" rather than "1000.00 m".
func FormatDistance(meters float64) string {
	rounded := math.Round(meters*100) / 100
	if rounded >= 1000 {
		return fmt.Sprintf("%.2f km", rounded/1000)
	}
	return fmt.Sprintf("%.2f m", rounded)
}
