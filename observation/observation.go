// Package observation loads the per camera marker observations that feed the calibration.
//
// Each camera contributes one record: the ids of the markers it saw and the 3D position of
// every marker center in that camera's own sensor frame, in meters.
package observation

import (
	"sort"

	"github.com/golang/geo/r3"
)

// Record is the on-disk form of one camera's observations. Centers and Points are
// alternative spellings of the same list; exactly one of them may be set.
type Record struct {
	CameraID string      `json:"camera_id"`
	Aruco    []int       `json:"aruco"`
	Centers  [][]float64 `json:"centers"`
	Points   [][]float64 `json:"points,omitempty"`
}

// Camera holds the validated observations of a single camera. MarkerIDs[i] is the marker
// whose center was measured at Points[i].
type Camera struct {
	ID        string
	MarkerIDs []int
	Points    []r3.Vector
}

// Point returns the measured position of a marker.
func (c *Camera) Point(markerID int) (r3.Vector, bool) {
	for i, id := range c.MarkerIDs {
		if id == markerID {
			return c.Points[i], true
		}
	}
	return r3.Vector{}, false
}

// Has reports whether the camera saw every one of the given markers.
func (c *Camera) Has(markerIDs ...int) bool {
	for _, id := range markerIDs {
		if _, ok := c.Point(id); !ok {
			return false
		}
	}
	return true
}

// Shared returns, in ascending order, the marker ids seen by both cameras.
func (c *Camera) Shared(other *Camera) []int {
	shared := []int{}
	for _, id := range c.MarkerIDs {
		if other.Has(id) {
			shared = append(shared, id)
		}
	}
	sort.Ints(shared)
	return shared
}

// PointsFor returns the camera's points for ids, in the order given. Every id must be observed.
func (c *Camera) PointsFor(ids []int) []r3.Vector {
	out := make([]r3.Vector, 0, len(ids))
	for _, id := range ids {
		p, _ := c.Point(id)
		out = append(out, p)
	}
	return out
}

func (c *Camera) Record() Record {
	r := Record{
		CameraID: c.ID,
		Aruco:    append([]int{}, c.MarkerIDs...),
		Centers:  make([][]float64, 0, len(c.Points)),
	}
	for _, p := range c.Points {
		r.Centers = append(r.Centers, []float64{p.X, p.Y, p.Z})
	}
	return r
}

// Set maps camera ids to their observations.
type Set map[string]*Camera

// IDs returns the camera ids in lexicographic order.
func (s Set) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
