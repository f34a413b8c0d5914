package geopose

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/golang/geo/s2"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// identityRaw builds the pose a matcher reports for a camera hovering
// straight above pixel (c, c) of the aligned image at the given height.
func identityRaw(t *testing.T, c, height float64) RawPoseEstimate {
	t.Helper()
	raw, err := NewRawPoseEstimate(
		[]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		[]float64{-c, -c, height},
	)
	if err != nil {
		t.Fatalf("NewRawPoseEstimate failed: %v", err)
	}
	return raw
}

func nadirContext(stack RasterStack) PoseEstimationContext {
	return PoseEstimationContext{
		Stack: stack,
		CameraGeoPose: CameraGeoPose{
			LatLng:       s2.LatLngFromDegrees(60, 24),
			AltitudeAMSL: 135,
			Orientation:  quat.Number{Real: math.Sqrt2 / 2, Jmag: math.Sqrt2 / 2},
		},
		GroundElevationAMSL: 15,
		Stamp:               time.Unix(1700000000, 0),
	}
}

func TestReconstructGeoPose_NadirAboveCenter(t *testing.T) {
	stack := testStack(t, 64, 64)
	_, align, err := RotateAndCrop(stack, 0, 64, 64)
	if err != nil {
		t.Fatalf("RotateAndCrop failed: %v", err)
	}

	const agl = 120.0
	pose, err := ReconstructGeoPose(identityRaw(t, 32, agl), align, nadirContext(stack))
	if err != nil {
		t.Fatalf("ReconstructGeoPose failed: %v", err)
	}

	wantLon, wantLat := stack.Transform.Apply(32, 32)
	if math.Abs(pose.LatLng.Lat.Degrees()-wantLat) > 1e-9 {
		t.Errorf("latitude %v, want %v", pose.LatLng.Lat.Degrees(), wantLat)
	}
	if math.Abs(pose.LatLng.Lng.Degrees()-wantLon) > 1e-9 {
		t.Errorf("longitude %v, want %v", pose.LatLng.Lng.Degrees(), wantLon)
	}
	if math.Abs(pose.AltitudeAGL-agl) > 1e-9 {
		t.Errorf("AGL %v, want %v", pose.AltitudeAGL, agl)
	}
	if math.Abs(pose.AltitudeAMSL-(agl+15)) > 1e-9 {
		t.Errorf("AMSL %v, want %v", pose.AltitudeAMSL, agl+15)
	}
	if pose.ProjString != "+proj=utm +zone=35 +datum=WGS84 +units=m +no_defs" {
		t.Errorf("proj string %q", pose.ProjString)
	}

	q := pose.Orientation
	norm := math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if math.IsNaN(norm) || math.Abs(norm-1) > 1e-9 {
		t.Errorf("orientation quaternion not unit: %v (norm %v)", q, norm)
	}
}

func TestReconstructGeoPose_CenterHeadingInvariant(t *testing.T) {
	// A camera directly above the rotation pivot lands on the same geodetic
	// point no matter how the reference was rotated before matching.
	stack := testStack(t, 64, 64)
	raw := identityRaw(t, 32, 90)
	pctx := nadirContext(stack)

	var first *GeodeticPose
	for _, heading := range []float64{0, 90, 180, 270} {
		_, align, err := RotateAndCrop(stack, heading, 64, 64)
		if err != nil {
			t.Fatalf("RotateAndCrop(%v) failed: %v", heading, err)
		}
		pose, err := ReconstructGeoPose(raw, align, pctx)
		if err != nil {
			t.Fatalf("ReconstructGeoPose at heading %v failed: %v", heading, err)
		}
		if first == nil {
			first = pose
			continue
		}
		if math.Abs(pose.LatLng.Lat.Degrees()-first.LatLng.Lat.Degrees()) > 1e-9 ||
			math.Abs(pose.LatLng.Lng.Degrees()-first.LatLng.Lng.Degrees()) > 1e-9 {
			t.Errorf("heading %v moved the fix: %v vs %v", heading, pose.LatLng, first.LatLng)
		}
		if math.Abs(pose.AltitudeAGL-first.AltitudeAGL) > 1e-9 {
			t.Errorf("heading %v changed AGL: %v vs %v", heading, pose.AltitudeAGL, first.AltitudeAGL)
		}
	}
}

func TestReconstructGeoPose_SingularAlignment(t *testing.T) {
	stack := testStack(t, 32, 32)
	singular, err := NewAlignmentTransform(mat.NewDense(4, 4, []float64{
		0, 0, 0, 1,
		0, 0, 0, 2,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}))
	if err != nil {
		t.Fatalf("NewAlignmentTransform failed: %v", err)
	}

	_, err = ReconstructGeoPose(identityRaw(t, 16, 50), singular, nadirContext(stack))
	if !errors.Is(err, ErrNonInvertibleTransform) {
		t.Errorf("expected ErrNonInvertibleTransform, got %v", err)
	}
}

func TestReconstructGeoPose_MissingRaw(t *testing.T) {
	stack := testStack(t, 32, 32)
	_, align, err := RotateAndCrop(stack, 0, 32, 32)
	if err != nil {
		t.Fatalf("RotateAndCrop failed: %v", err)
	}
	_, err = ReconstructGeoPose(RawPoseEstimate{}, align, nadirContext(stack))
	if !errors.Is(err, ErrMissingInput) {
		t.Errorf("expected ErrMissingInput, got %v", err)
	}
}
