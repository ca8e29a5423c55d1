package rigid

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// MinCorrespondences is the smallest number of point pairs that pins down a rigid transform.
const MinCorrespondences = 3

// degenerateRatio bounds the second singular value of the cross-covariance relative to the
// first. Below it the correspondences are treated as collinear.
const degenerateRatio = 1e-9

var (
	// ErrTooFewPoints is returned when fewer than MinCorrespondences pairs are given.
	ErrTooFewPoints = errors.New("too few correspondences")
	// ErrDegenerate is returned when the correspondences are collinear or coincident.
	ErrDegenerate = errors.New("degenerate correspondences")
	// ErrLengthMismatch is returned when the two point lists differ in length.
	ErrLengthMismatch = errors.New("point lists differ in length")
)

// Estimate computes the least squares rigid transform taking src[i] onto dst[i] (Kabsch)
// and returns it with the RMS residual of the fit.
func Estimate(src, dst []r3.Vector) (Transform, float64, error) {
	if len(src) != len(dst) {
		return Transform{}, 0, errors.Wrapf(ErrLengthMismatch, "%d source vs %d destination", len(src), len(dst))
	}
	if len(src) < MinCorrespondences {
		return Transform{}, 0, errors.Wrapf(ErrTooFewPoints, "need %d, got %d", MinCorrespondences, len(src))
	}

	cs := Centroid(src)
	cd := Centroid(dst)

	h := mat.NewDense(3, 3, nil)
	for i := range src {
		a := src[i].Sub(cs)
		b := dst[i].Sub(cd)
		av := [3]float64{a.X, a.Y, a.Z}
		bv := [3]float64{b.X, b.Y, b.Z}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				h.Set(r, c, h.At(r, c)+av[r]*bv[c])
			}
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(h, mat.SVDFull); !ok {
		return Transform{}, 0, errors.New("failed to factorize cross-covariance")
	}

	s := svd.Values(nil)
	if s[0] == 0 || s[1] <= s[0]*degenerateRatio {
		return Transform{}, 0, errors.Wrapf(ErrDegenerate, "singular values %v", s)
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// without the sign fix a near planar set can come back as a reflection
	var vut mat.Dense
	vut.Mul(&v, u.T())
	d := 1.0
	if mat.Det(&vut) < 0 {
		d = -1
	}

	var rot mat.Dense
	rot.Product(&v, mat.NewDiagDense(3, []float64{1, 1, d}), u.T())

	t := New(&rot, r3.Vector{})
	moved := t.Apply(cs)
	trans := cd.Sub(moved)
	t[3], t[7], t[11] = trans.X, trans.Y, trans.Z

	return t, Residual(t, src, dst), nil
}

// Residual is the RMS distance between t applied to src and dst.
func Residual(t Transform, src, dst []r3.Vector) float64 {
	if len(src) == 0 {
		return 0
	}
	sum := 0.0
	for i := range src {
		diff := t.Apply(src[i]).Sub(dst[i])
		sum += diff.Norm2()
	}
	return math.Sqrt(sum / float64(len(src)))
}

// Centroid is the mean of pts, or the zero vector for an empty slice.
func Centroid(pts []r3.Vector) r3.Vector {
	var c r3.Vector
	if len(pts) == 0 {
		return c
	}
	for _, p := range pts {
		c = c.Add(p)
	}
	return c.Mul(1 / float64(len(pts)))
}
