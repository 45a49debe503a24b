// Package render applies received poses to a rendered object on a fixed
// tick. It only ever reads the latest published pose.
package render

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"posebridge/pkg/protocol"
)

// Scale maps raw sender position units to world units, per axis.
type Scale struct {
	X float64 `toml:"x" env:"X"`
	Y float64 `toml:"y" env:"Y"`
	Z float64 `toml:"z" env:"Z"`
}

func UnitScale() Scale {
	return Scale{X: 1, Y: 1, Z: 1}
}

// Transform is a pose in world units.
type Transform struct {
	Rotation quat.Number
	Position r3.Vec
}

// Apply converts pose to a Transform. The quaternion is passed through
// unchanged; unit length is the sender's responsibility.
func Apply(pose protocol.Pose, scale Scale) Transform {
	q := pose.Orientation
	p := pose.Position
	return Transform{
		Rotation: quat.Number{
			Real: float64(q.W),
			Imag: float64(q.X),
			Jmag: float64(q.Y),
			Kmag: float64(q.Z),
		},
		Position: r3.Vec{
			X: float64(p.X) * scale.X,
			Y: float64(p.Y) * scale.Y,
			Z: float64(p.Z) * scale.Z,
		},
	}
}

// Euler returns roll, pitch and yaw in degrees (ZYX order). A zero
// quaternion is reported as no rotation.
func (t Transform) Euler() (roll, pitch, yaw float64) {
	q := t.Rotation
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, 0, 0
	}
	q = quat.Scale(1/n, q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag

	roll = math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))
	sinp := 2 * (w*y - z*x)
	switch {
	case sinp >= 1:
		pitch = math.Pi / 2
	case sinp <= -1:
		pitch = -math.Pi / 2
	default:
		pitch = math.Asin(sinp)
	}
	yaw = math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
	return deg(roll), deg(pitch), deg(yaw)
}

func deg(rad float64) float64 {
	return rad * 180 / math.Pi
}
