package geopose

import (
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/num/quat"
)

// nadirQuat returns an ENU orientation for a camera pointing straight down.
func nadirQuat() quat.Number {
	s := math.Sqrt2 / 2
	return quat.Number{Real: s, Jmag: s}
}

func TestUTMZone(t *testing.T) {
	cases := []struct {
		lon  float64
		zone int
	}{
		{-180, 1},
		{-177.001, 1},
		{-174, 2},
		{0, 31},
		{24.9, 35},
		{179.9, 60},
	}
	for _, tc := range cases {
		if got := UTMZone(tc.lon); got != tc.zone {
			t.Errorf("UTMZone(%v) = %d, want %d", tc.lon, got, tc.zone)
		}
	}
}

func TestUTMProjString(t *testing.T) {
	north := UTMProjString(60.0, 24.0)
	if !strings.Contains(north, "+zone=35") {
		t.Errorf("expected zone 35 in %q", north)
	}
	if strings.Contains(north, "+south") {
		t.Errorf("unexpected +south for northern latitude: %q", north)
	}

	south := UTMProjString(-33.9, 18.4)
	if !strings.Contains(south, "+south") {
		t.Errorf("expected +south in %q", south)
	}
}

func TestOffNadirPitch_Nadir(t *testing.T) {
	pitch := OffNadirPitch(nadirQuat())
	if math.Abs(pitch) > 1e-9 {
		t.Errorf("nadir orientation gave off-nadir pitch %v deg, want 0", pitch)
	}
}

func TestOffNadirPitch_Level(t *testing.T) {
	// Identity orientation: camera level with the horizon, 90 degrees off
	// nadir.
	pitch := OffNadirPitch(quat.Number{Real: 1})
	if math.Abs(pitch-90) > 1e-9 {
		t.Errorf("level orientation gave off-nadir pitch %v deg, want 90", pitch)
	}
}

func TestHeadingFromQuaternion(t *testing.T) {
	cases := []struct {
		name    string
		yawDeg  float64
		heading float64
	}{
		{"east", 0, 90},
		{"north", 90, 0},
		{"west", 180, 270},
		{"south", -90, 180},
	}
	for _, tc := range cases {
		// Pure yaw rotation about the ENU up axis.
		half := tc.yawDeg * math.Pi / 360
		q := quat.Number{Real: math.Cos(half), Kmag: math.Sin(half)}
		if got := HeadingFromQuaternion(q); math.Abs(got-tc.heading) > 1e-9 {
			t.Errorf("%s: heading = %v, want %v", tc.name, got, tc.heading)
		}
	}
}
