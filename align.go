package camarray

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/erh/camarray/observation"
	"github.com/erh/camarray/rigid"
)

// AlignWorld computes the transform from the base camera's frame into the world frame spanned
// by the anchor markers, and applies it on top of every relative transform. The world axes keep
// the measured anchor distances but are forced orthogonal.
func AlignWorld(base *observation.Camera, relative Graph) (rigid.Transform, Graph, float64, error) {
	src := make([]r3.Vector, 0, len(WorldAnchors))
	for _, id := range []int{AnchorX, AnchorZ, AnchorOrigin} {
		p, ok := base.Point(id)
		if !ok {
			return rigid.Transform{}, nil, 0, &CameraError{
				CameraID: base.ID,
				Err:      errors.Wrapf(ErrMissingAnchor, "marker %d", id),
			}
		}
		src = append(src, p)
	}
	px, pz, origin := src[0], src[1], src[2]

	dst := []r3.Vector{
		{X: origin.Distance(px)},
		{Z: origin.Distance(pz)},
		{},
	}

	world, residual, err := rigid.Estimate(src, dst)
	if err != nil {
		return rigid.Transform{}, nil, 0, &CameraError{CameraID: base.ID, Err: fmt.Errorf("%w: anchor markers: %w", ErrUnsatisfiable, err)}
	}

	absolute := make(Graph, len(relative))
	for id, t := range relative {
		absolute[id] = world.Compose(t)
	}
	return world, absolute, residual, nil
}
