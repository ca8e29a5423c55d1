package camarray

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/erh/camarray/observation"
	"github.com/erh/camarray/rigid"
)

// CameraResult records how a camera fared while being registered onto the base camera.
type CameraResult struct {
	CameraID      string
	SharedMarkers []int
	Residual      float64
	Err           error
}

// ComposeRelative registers every camera onto the base camera. The returned graph maps each
// successfully registered camera's frame into the base camera's frame; cameras that could not
// be registered are left out of it and reported through their CameraResult. The error is only
// set when the base camera itself is unknown.
func ComposeRelative(obs observation.Set, baseID string) (Graph, []CameraResult, error) {
	base, ok := obs[baseID]
	if !ok {
		return nil, nil, errors.Errorf("base camera %q has no observations", baseID)
	}

	g := Graph{baseID: rigid.Identity()}
	results := []CameraResult{{CameraID: baseID, SharedMarkers: append([]int{}, base.MarkerIDs...)}}

	for _, id := range obs.IDs() {
		if id == baseID {
			continue
		}
		c := obs[id]

		res := CameraResult{CameraID: id, SharedMarkers: c.Shared(base)}
		if len(res.SharedMarkers) < rigid.MinCorrespondences {
			res.Err = &CameraError{
				CameraID: id,
				Err: errors.Wrapf(ErrInsufficientOverlap, "shares %d markers %v, need %d",
					len(res.SharedMarkers), res.SharedMarkers, rigid.MinCorrespondences),
			}
			results = append(results, res)
			continue
		}

		t, residual, err := rigid.Estimate(c.PointsFor(res.SharedMarkers), base.PointsFor(res.SharedMarkers))
		if err != nil {
			res.Err = &CameraError{CameraID: id, Err: fmt.Errorf("%w: %w", ErrInsufficientOverlap, err)}
			results = append(results, res)
			continue
		}

		res.Residual = residual
		g[id] = t
		results = append(results, res)
	}

	return g, results, nil
}
