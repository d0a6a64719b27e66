package geo

import (
	"math"
	"testing"
)

func TestDistanceZero(t *testing.T) {
	d, err := Distance(12.9716, 77.5946, 12.9716, 77.5946)
	if err != nil {
		t.Fatalf("Distance failed: %v", err)
	}
	if d != 0 {
		t.Errorf("expected zero distance, got %v", d)
	}
}

func TestDistanceKnownPair(t *testing.T) {
	// Two points roughly 157m apart (0.001 degrees of latitude at the equator
	// is ~111m; this pair is a classic haversine check).
	d, err := Distance(0, 0, 0.001, 0.001)
	if err != nil {
		t.Fatalf("Distance failed: %v", err)
	}
	if d < 150 || d > 165 {
		t.Errorf("expected ~157m, got %v", d)
	}
}

func TestDistanceInvalidCoordinates(t *testing.T) {
	cases := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
	}{
		{"latitude out of range", 91, 0, 0, 0},
		{"longitude out of range", 0, 181, 0, 0},
		{"second point invalid", 0, 0, -95, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Distance(tc.lat1, tc.lng1, tc.lat2, tc.lng2); err == nil {
				t.Error("expected error for invalid coordinates, got nil")
			}
		})
	}
}

func TestWithin(t *testing.T) {
	ok, d := Within(12.9716, 77.5946, 12.97162, 77.59462, 30)
	if !ok {
		t.Errorf("expected points within 30m, distance %v", d)
	}

	ok, d = Within(12.9716, 77.5946, 12.98, 77.60, 30)
	if ok {
		t.Errorf("expected points outside 30m, distance %v", d)
	}

	ok, d = Within(200, 0, 0, 0, 30)
	if ok {
		t.Error("expected invalid coordinates to fail the radius check")
	}
	if !math.IsInf(d, 1) {
		t.Errorf("expected infinite distance for invalid input, got %v", d)
	}
}
