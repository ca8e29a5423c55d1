// Package rigid contains rigid transforms and the least squares estimator used to
// register one camera's marker points onto another's.
package rigid

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/rdk/spatialmath"
)

// OrthonormalTolerance is how far a rotation block may drift from orthonormal (and its
// determinant from +1) before it is rejected.
const OrthonormalTolerance = 1e-6

// ErrNotRigid is returned when a matrix does not describe a proper rigid transform.
var ErrNotRigid = errors.New("matrix is not a rigid transform")

// Transform is a 4x4 homogeneous rigid transform stored row-major. It maps points
// from a source frame into a destination frame.
type Transform [16]float64

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// New builds a transform from a 3x3 rotation and a translation. The rotation is not
// validated; use FromFlat for untrusted input.
func New(rot mat.Matrix, t r3.Vector) Transform {
	var out Transform
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*4+c] = rot.At(r, c)
		}
	}
	out[3] = t.X
	out[7] = t.Y
	out[11] = t.Z
	out[15] = 1
	return out
}

// FromAxisAngle returns the rotation of angle radians about axis followed by translation t.
func FromAxisAngle(axis r3.Vector, angle float64, t r3.Vector) Transform {
	if axis.Norm() == 0 {
		out := Identity()
		out[3], out[7], out[11] = t.X, t.Y, t.Z
		return out
	}
	k := axis.Normalize()
	c := math.Cos(angle)
	s := math.Sin(angle)
	v := 1 - c

	rot := mat.NewDense(3, 3, []float64{
		c + k.X*k.X*v, k.X*k.Y*v - k.Z*s, k.X*k.Z*v + k.Y*s,
		k.Y*k.X*v + k.Z*s, c + k.Y*k.Y*v, k.Y*k.Z*v - k.X*s,
		k.Z*k.X*v - k.Y*s, k.Z*k.Y*v + k.X*s, c + k.Z*k.Z*v,
	})
	return New(rot, t)
}

// FromFlat parses a row-major 4x4 matrix and checks that it is rigid.
func FromFlat(data []float64) (Transform, error) {
	var out Transform
	if len(data) != len(out) {
		return out, errors.Wrapf(ErrNotRigid, "need %d values, got %d", len(out), len(data))
	}
	copy(out[:], data)

	for i, want := range []float64{0, 0, 0, 1} {
		if math.Abs(out[12+i]-want) > OrthonormalTolerance {
			return out, errors.Wrapf(ErrNotRigid, "bottom row is %v", out[12:])
		}
	}

	rot := out.Rotation()
	var rrt mat.Dense
	rrt.Mul(rot, rot.T())
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			want := 0.0
			if r == c {
				want = 1
			}
			if math.Abs(rrt.At(r, c)-want) > OrthonormalTolerance {
				return out, errors.Wrap(ErrNotRigid, "rotation block is not orthonormal")
			}
		}
	}
	if det := mat.Det(rot); math.Abs(det-1) > OrthonormalTolerance {
		return out, errors.Wrapf(ErrNotRigid, "rotation determinant is %f", det)
	}
	return out, nil
}

// Rotation returns a copy of the 3x3 rotation block.
func (t Transform) Rotation() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		t[0], t[1], t[2],
		t[4], t[5], t[6],
		t[8], t[9], t[10],
	})
}

// Translation returns the translation column.
func (t Transform) Translation() r3.Vector {
	return r3.Vector{X: t[3], Y: t[7], Z: t[11]}
}

// Apply maps p from the source frame into the destination frame.
func (t Transform) Apply(p r3.Vector) r3.Vector {
	return r3.Vector{
		X: t[0]*p.X + t[1]*p.Y + t[2]*p.Z + t[3],
		Y: t[4]*p.X + t[5]*p.Y + t[6]*p.Z + t[7],
		Z: t[8]*p.X + t[9]*p.Y + t[10]*p.Z + t[11],
	}
}

// Compose returns t·other: other is applied first, then t.
func (t Transform) Compose(other Transform) Transform {
	var out Transform
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			sum := 0.0
			for k := 0; k < 4; k++ {
				sum += t[r*4+k] * other[k*4+c]
			}
			out[r*4+c] = sum
		}
	}
	return out
}

// Inverse returns the transform mapping the destination frame back into the source frame.
func (t Transform) Inverse() Transform {
	back := New(t.Rotation().T(), r3.Vector{})
	moved := back.Apply(t.Translation())
	back[3], back[7], back[11] = -moved.X, -moved.Y, -moved.Z
	return back
}

// Scaled returns the same transform with its translation expressed in units f times smaller,
// e.g. Scaled(1000) turns a transform in meters into one in millimeters.
func (t Transform) Scaled(f float64) Transform {
	t[3] *= f
	t[7] *= f
	t[11] *= f
	return t
}

// Flatten returns the matrix as a row-major slice.
func (t Transform) Flatten() []float64 {
	out := make([]float64, len(t))
	copy(out, t[:])
	return out
}

// AlmostEqual reports whether every element differs from other's by at most tol.
func (t Transform) AlmostEqual(other Transform, tol float64) bool {
	for i := range t {
		if math.Abs(t[i]-other[i]) > tol {
			return false
		}
	}
	return true
}

// Pose converts the transform into an rdk pose so it can be handed to the point cloud tooling.
func (t Transform) Pose() (spatialmath.Pose, error) {
	// spatialmath wants the rotation column-major
	colMajor := mat.DenseCopyOf(t.Rotation().T())
	rot, err := spatialmath.NewRotationMatrix(colMajor.RawMatrix().Data)
	if err != nil {
		return nil, err
	}
	return spatialmath.NewPose(t.Translation(), rot), nil
}

func (t Transform) String() string {
	return fmt.Sprintf("[%.4f %.4f %.4f %.4f; %.4f %.4f %.4f %.4f; %.4f %.4f %.4f %.4f]",
		t[0], t[1], t[2], t[3], t[4], t[5], t[6], t[7], t[8], t[9], t[10], t[11])
}
