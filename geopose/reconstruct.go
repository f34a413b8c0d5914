package geopose

import (
	"fmt"

	"github.com/golang/geo/s2"
	"go.viam.com/rdk/spatialmath"
	"gonum.org/v1/gonum/mat"
)

// ReconstructGeoPose converts a raw pose estimate, expressed in the aligned
// reference raster's local frame, into a geodetic pose: it recovers the
// camera position in the aligned world frame, inverts the alignment to map it
// back into the original raster pixel frame, applies the raster's
// geotransform, and recovers a compass-frame orientation quaternion.
//
// Any non-invertible matrix along the way returns ErrNonInvertibleTransform
// and the cycle must be aborted; a partially computed pose is never emitted.
func ReconstructGeoPose(raw RawPoseEstimate, align AlignmentTransform, pctx PoseEstimationContext) (*GeodeticPose, error) {
	if raw.R == nil || raw.T == nil {
		return nil, fmt.Errorf("%w: raw pose estimate", ErrMissingInput)
	}

	// Camera position in the aligned-image world frame: t_world = R^T * (-t).
	negT := mat.NewVecDense(3, nil)
	negT.ScaleVec(-1, raw.T)
	tWorld := mat.NewVecDense(3, nil)
	tWorld.MulVec(raw.R.T(), negT)

	// Map back to the original, unrotated and uncropped raster pixel frame.
	inv, err := align.Inverse()
	if err != nil {
		return nil, fmt.Errorf("revert rotation and crop: %w", err)
	}
	orig := inv.ApplyHomogeneous(tWorld)

	// The solver world frame has x along image width and z pointing down
	// into the raster; reorder to (col, row) and flip z up before applying
	// the pixel-to-geodetic geotransform.
	col, row := orig.AtVec(1), orig.AtVec(0)
	elevRel := -orig.AtVec(2)
	lon, lat := pctx.Stack.Transform.Apply(col, row)

	// Recover orientation: revert the alignment rotation, then permute the
	// solver's south-east-up world convention into NED. Inversion failure
	// here aborts the cycle independently of the position path above.
	invRot := mat.NewDense(3, 3, nil)
	if err := invRot.Inverse(align.RotationBlock()); err != nil {
		return nil, fmt.Errorf("revert alignment rotation: %w: %v", ErrNonInvertibleTransform, err)
	}
	unaligned := mat.NewDense(3, 3, nil)
	unaligned.Mul(invRot, raw.R.T())
	rNED := mat.NewDense(3, 3, nil)
	rNED.Mul(seuToNED(), unaligned)

	rm, err := spatialmath.NewRotationMatrix(rNED.RawMatrix().Data)
	if err != nil {
		return nil, fmt.Errorf("orientation from rotation matrix: %w", err)
	}

	return &GeodeticPose{
		LatLng:       s2.LatLngFromDegrees(lat, lon),
		AltitudeAMSL: elevRel + pctx.GroundElevationAMSL,
		AltitudeAGL:  elevRel,
		Orientation:  rm.Quaternion(),
		ProjString:   UTMProjString(lat, lon),
	}, nil
}
