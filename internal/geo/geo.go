// Package geo provides coordinate validation and distance calculations
// used for duplicate detection and resolution evidence verification.
package geo

import (
	"errors"
	"math"
)

// earthRadiusMeters is the mean Earth radius (WGS84).
const earthRadiusMeters = 6371000.0

var ErrInvalidCoordinates = errors.New("invalid coordinates")

// Valid reports whether lat/lng fall inside the WGS84 coordinate ranges.
func Valid(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Distance returns the Haversine distance in meters between two coordinates.
// Invalid inputs return an error rather than a bogus distance.
func Distance(lat1, lng1, lat2, lng2 float64) (float64, error) {
	if !Valid(lat1, lng1) || !Valid(lat2, lng2) {
		return 0, ErrInvalidCoordinates
	}

	rlat1 := lat1 * math.Pi / 180
	rlng1 := lng1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	rlng2 := lng2 * math.Pi / 180

	dlat := rlat2 - rlat1
	dlng := rlng2 - rlng1

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlng/2)*math.Sin(dlng/2)
	// Clamp to avoid domain errors from floating point drift.
	if a > 1 {
		a = 1
	} else if a < 0 {
		a = 0
	}

	c := 2 * math.Asin(math.Sqrt(a))
	return earthRadiusMeters * c, nil
}

// Within reports whether the two coordinates are at most radius meters
// apart. Invalid coordinates are never within range.
func Within(lat1, lng1, lat2, lng2, radius float64) (bool, float64) {
	d, err := Distance(lat1, lng1, lat2, lng2)
	if err != nil {
		return false, math.Inf(1)
	}
	return d <= radius, d
}
