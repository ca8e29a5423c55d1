// Package camarray registers an array of depth cameras into one world frame using fiducial
// markers that several cameras can see at once.
//
// A run picks a base camera, registers every other camera onto it through the markers they
// share, then anchors the base camera to the floor markers that define the world axes.
package camarray

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/erh/camarray/rigid"
)

// World anchor markers. They lie on the floor: AnchorOrigin is the world origin, AnchorX lies
// along +X and AnchorZ along +Z.
const (
	AnchorX      = 1
	AnchorOrigin = 2
	AnchorZ      = 3
)

// WorldAnchors lists the anchor marker ids.
var WorldAnchors = []int{AnchorX, AnchorOrigin, AnchorZ}

var (
	// ErrUnsatisfiable means no world frame can be established.
	ErrUnsatisfiable = errors.New("unsatisfiable calibration")
	// ErrInsufficientOverlap means a camera shares too few markers with the base camera.
	ErrInsufficientOverlap = errors.New("insufficient marker overlap with base camera")
	// ErrMissingAnchor means the base camera lacks a world anchor marker.
	ErrMissingAnchor = errors.New("base camera is missing a world anchor marker")
)

// CameraError ties a failure to the camera it happened for.
type CameraError struct {
	CameraID string
	Err      error
}

func (e *CameraError) Error() string {
	return fmt.Sprintf("camera %s: %v", e.CameraID, e.Err)
}

func (e *CameraError) Unwrap() error {
	return e.Err
}

// Graph maps camera ids to the transform taking that camera's sensor frame into a common frame.
type Graph map[string]rigid.Transform

// IDs returns the camera ids in lexicographic order.
func (g Graph) IDs() []string {
	ids := make([]string, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Flatten returns every transform as a row-major 16 element slice.
func (g Graph) Flatten() map[string][]float64 {
	out := make(map[string][]float64, len(g))
	for id, t := range g {
		out[id] = t.Flatten()
	}
	return out
}
