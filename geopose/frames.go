package geopose

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// OffNadirPitch returns the camera's pitch angle in degrees measured from
// straight down, given its orientation quaternion in the ENU frame. A camera
// pointing at nadir returns 0.
func OffNadirPitch(q quat.Number) float64 {
	pitch := math.Asin(2 * (q.Real*q.Jmag - q.Imag*q.Kmag))
	offNadir := math.Pi/2 - pitch
	return offNadir * 180 / math.Pi
}

// HeadingFromQuaternion returns the compass heading in degrees [0, 360) for
// an orientation quaternion in the ENU frame. ENU yaw has its origin at East;
// heading shifts the origin to North and grows clockwise.
func HeadingFromQuaternion(q quat.Number) float64 {
	yaw := math.Atan2(2*(q.Real*q.Kmag+q.Imag*q.Jmag), 1-2*(q.Jmag*q.Jmag+q.Kmag*q.Kmag))
	heading := 90 - yaw*180/math.Pi
	heading = math.Mod(heading+360, 360)
	return heading
}

// UTMZone returns the UTM zone number (1..60) for a longitude in degrees.
func UTMZone(lonDeg float64) int {
	return int(math.Floor((lonDeg+180)/6)) + 1
}

// UTMProjString returns a proj string identifying the local UTM projection
// for the given coordinates. It only tags output for downstream consumers and
// does not affect the geodetic coordinates themselves.
func UTMProjString(latDeg, lonDeg float64) string {
	zone := UTMZone(lonDeg)
	if latDeg < 0 {
		return fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs", zone)
	}
	return fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", zone)
}

// seuToNED returns the fixed permutation that maps the solver's world axis
// convention (south-east-up variant) to the NED compass/down convention:
// S->N, E->E, U->D.
func seuToNED() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		-1, 0, 0,
		0, 1, 0,
		0, 0, -1,
	})
}
