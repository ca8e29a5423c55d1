package camarray

import (
	"bytes"
	"errors"
	"math"
	"sort"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/rdk/logging"

	"github.com/erh/camarray/observation"
	"github.com/erh/camarray/rigid"
)

// marker centers in the world frame, meters
var layout = map[int]r3.Vector{
	AnchorX:      {X: .4},
	AnchorOrigin: {},
	AnchorZ:      {Z: .3},
	10:           {X: 1, Y: .5, Z: 1},
	11:           {X: -.5, Y: .8, Z: 1.2},
	12:           {X: .3, Y: 1.5, Z: -.6},
	13:           {X: -1, Y: .2, Z: -.4},
	14:           {X: .8, Y: 1.1, Z: .2},
	15:           {X: .1, Y: .9, Z: .9},
}

// seenFrom builds the observations of a camera whose sensor frame maps into the world by
// worldFromCam.
func seenFrom(id string, worldFromCam rigid.Transform, markers ...int) *observation.Camera {
	camFromWorld := worldFromCam.Inverse()
	sort.Ints(markers)
	c := &observation.Camera{ID: id}
	for _, m := range markers {
		c.MarkerIDs = append(c.MarkerIDs, m)
		c.Points = append(c.Points, camFromWorld.Apply(layout[m]))
	}
	return c
}

func setOf(cams ...*observation.Camera) observation.Set {
	s := observation.Set{}
	for _, c := range cams {
		s[c.ID] = c
	}
	return s
}

func TestSelectBase(t *testing.T) {
	id := rigid.Identity()

	obs := setOf(
		seenFrom("c", id, 1, 2, 3, 10, 11),
		seenFrom("b", id, 1, 2, 3, 10, 11),
		seenFrom("a", id, 1, 2, 10, 11, 12, 13, 14),
		seenFrom("d", id, 1, 2, 3, 10),
	)

	base, err := SelectBase(obs)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, base, test.ShouldEqual, "b")

	for i := 0; i < 20; i++ {
		again, err := SelectBase(obs)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, again, test.ShouldEqual, base)
	}

	obs["e"] = seenFrom("e", id, 1, 2, 3, 10, 11, 12)
	base, err = SelectBase(obs)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, base, test.ShouldEqual, "e")
}

func TestSelectBaseUnsatisfiable(t *testing.T) {
	obs := setOf(
		seenFrom("a", rigid.Identity(), 1, 2, 10, 11, 12),
		seenFrom("b", rigid.Identity(), 2, 3, 10, 11, 12),
	)
	_, err := SelectBase(obs)
	test.That(t, errors.Is(err, ErrUnsatisfiable), test.ShouldBeTrue)

	_, err = SelectBase(observation.Set{})
	test.That(t, errors.Is(err, ErrUnsatisfiable), test.ShouldBeTrue)
}

func TestComposeRelativePartialFailure(t *testing.T) {
	tb := rigid.FromAxisAngle(r3.Vector{Y: 1}, .4, r3.Vector{X: 2})
	tc := rigid.FromAxisAngle(r3.Vector{X: 1, Z: 1}, -1.1, r3.Vector{Y: 1, Z: -3})

	obs := setOf(
		seenFrom("A", rigid.Identity(), 1, 2, 3, 10, 11, 12),
		seenFrom("B", tb, 10, 11, 13, 14),
		seenFrom("C", tc, 10, 11, 12, 15),
	)

	g, results, err := ComposeRelative(obs, "A")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, g.IDs(), test.ShouldResemble, []string{"A", "C"})
	test.That(t, g["A"], test.ShouldEqual, rigid.Identity())
	test.That(t, g["C"].AlmostEqual(tc, 1e-9), test.ShouldBeTrue)

	test.That(t, len(results), test.ShouldEqual, 3)
	byID := map[string]CameraResult{}
	for _, r := range results {
		byID[r.CameraID] = r
	}

	b := byID["B"]
	test.That(t, b.SharedMarkers, test.ShouldResemble, []int{10, 11})
	test.That(t, errors.Is(b.Err, ErrInsufficientOverlap), test.ShouldBeTrue)
	var ce *CameraError
	test.That(t, errors.As(b.Err, &ce), test.ShouldBeTrue)
	test.That(t, ce.CameraID, test.ShouldEqual, "B")

	c := byID["C"]
	test.That(t, c.Err, test.ShouldBeNil)
	test.That(t, c.SharedMarkers, test.ShouldResemble, []int{10, 11, 12})
	test.That(t, c.Residual, test.ShouldAlmostEqual, 0, 1e-9)

	_, _, err = ComposeRelative(obs, "nope")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestComposeRelativeCollinearOverlap(t *testing.T) {
	line := map[int]r3.Vector{20: {X: 1}, 21: {X: 2}, 22: {X: 3}}
	a := &observation.Camera{ID: "a", MarkerIDs: []int{1, 2, 3, 20, 21, 22}}
	b := &observation.Camera{ID: "b", MarkerIDs: []int{20, 21, 22}}
	for _, m := range a.MarkerIDs {
		p, ok := line[m]
		if !ok {
			p = layout[m]
		}
		a.Points = append(a.Points, p)
	}
	b.Points = []r3.Vector{line[20], line[21], line[22]}

	g, results, err := ComposeRelative(setOf(a, b), "a")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, g.IDs(), test.ShouldResemble, []string{"a"})
	test.That(t, errors.Is(results[1].Err, ErrInsufficientOverlap), test.ShouldBeTrue)
	test.That(t, errors.Is(results[1].Err, rigid.ErrDegenerate), test.ShouldBeTrue)
}

func TestAlignWorldUnitAnchors(t *testing.T) {
	base := &observation.Camera{
		ID:        "base",
		MarkerIDs: []int{1, 2, 3},
		Points:    []r3.Vector{{X: 1}, {}, {Z: 1}},
	}

	world, absolute, residual, err := AlignWorld(base, Graph{"base": rigid.Identity()})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, residual, test.ShouldAlmostEqual, 0, 1e-9)

	check := func(in, want r3.Vector) {
		got := world.Apply(in)
		test.That(t, got.X, test.ShouldAlmostEqual, want.X, 1e-9)
		test.That(t, got.Y, test.ShouldAlmostEqual, want.Y, 1e-9)
		test.That(t, got.Z, test.ShouldAlmostEqual, want.Z, 1e-9)
	}
	check(r3.Vector{}, r3.Vector{})
	check(r3.Vector{X: 1}, r3.Vector{X: 1})
	check(r3.Vector{Z: 1}, r3.Vector{Z: 1})

	test.That(t, absolute["base"].AlmostEqual(world, 1e-12), test.ShouldBeTrue)
}

func TestAlignWorldComposition(t *testing.T) {
	base := &observation.Camera{
		ID:        "base",
		MarkerIDs: []int{1, 2, 3},
		Points:    []r3.Vector{{X: 1}, {}, {Z: 1}},
	}
	rel := rigid.FromAxisAngle(r3.Vector{Y: 1}, math.Pi/2, r3.Vector{})

	_, absolute, _, err := AlignWorld(base, Graph{"base": rigid.Identity(), "C": rel})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, absolute["C"].AlmostEqual(rel, 1e-9), test.ShouldBeTrue)
}

func TestAlignWorldMissingAnchor(t *testing.T) {
	base := &observation.Camera{ID: "base", MarkerIDs: []int{1, 2}, Points: []r3.Vector{{X: 1}, {}}}
	_, _, _, err := AlignWorld(base, Graph{"base": rigid.Identity()})
	test.That(t, errors.Is(err, ErrMissingAnchor), test.ShouldBeTrue)
}

func TestAlignWorldCoincidentAnchors(t *testing.T) {
	base := &observation.Camera{ID: "base", MarkerIDs: []int{1, 2, 3}, Points: []r3.Vector{{X: 1}, {X: 1}, {X: 1}}}
	_, _, _, err := AlignWorld(base, Graph{"base": rigid.Identity()})
	test.That(t, errors.Is(err, ErrUnsatisfiable), test.ShouldBeTrue)
}

func TestCalibrateRig(t *testing.T) {
	logger := logging.NewTestLogger(t)

	truth := map[string]rigid.Transform{
		"front": rigid.FromAxisAngle(r3.Vector{X: 1}, -2.4, r3.Vector{Y: 2, Z: -1.5}),
		"left":  rigid.FromAxisAngle(r3.Vector{X: .3, Y: 1, Z: .2}, 1.9, r3.Vector{X: -1.8, Y: 1.7}),
		"right": rigid.FromAxisAngle(r3.Vector{X: -.2, Y: 1, Z: -.5}, -1.6, r3.Vector{X: 1.9, Y: 1.6, Z: .3}),
		"blind": rigid.FromAxisAngle(r3.Vector{Z: 1}, .5, r3.Vector{Y: 3}),
	}

	obs := setOf(
		seenFrom("front", truth["front"], 1, 2, 3, 10, 11, 12, 14, 15),
		seenFrom("left", truth["left"], 11, 12, 13, 15),
		seenFrom("right", truth["right"], 1, 2, 10, 14, 15),
		seenFrom("blind", truth["blind"], 13, 14),
	)

	cal, err := Calibrate(obs, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cal.RunID, test.ShouldNotBeEmpty)
	test.That(t, cal.State, test.ShouldEqual, StateWorldAligned)
	test.That(t, cal.Base, test.ShouldEqual, "front")
	test.That(t, cal.Absolute.IDs(), test.ShouldResemble, []string{"front", "left", "right"})
	test.That(t, cal.WorldResidual, test.ShouldAlmostEqual, 0, 1e-9)

	for _, id := range cal.Absolute.IDs() {
		got := cal.Absolute[id]
		test.That(t, got.AlmostEqual(truth[id], 1e-9), test.ShouldBeTrue)
		test.That(t, mat.Det(got.Rotation()), test.ShouldAlmostEqual, 1, rigid.OrthonormalTolerance)
	}

	failed := cal.Failed()
	test.That(t, len(failed), test.ShouldEqual, 1)
	test.That(t, failed[0].CameraID, test.ShouldEqual, "blind")
	test.That(t, errors.Is(cal.Err(), ErrInsufficientOverlap), test.ShouldBeTrue)
}

func TestCalibrateFatalKeepsEarlierStages(t *testing.T) {
	logger := logging.NewTestLogger(t)

	cal, err := Calibrate(setOf(seenFrom("a", rigid.Identity(), 1, 2, 10, 11)), logger)
	test.That(t, errors.Is(err, ErrUnsatisfiable), test.ShouldBeTrue)
	test.That(t, cal.State, test.ShouldEqual, StateLoaded)

	// anchors that collapse onto one point select fine but cannot be aligned
	bad := &observation.Camera{ID: "a", MarkerIDs: []int{1, 2, 3, 10}, Points: []r3.Vector{{X: 1}, {X: 1}, {X: 1}, {Y: 1}}}
	cal, err = Calibrate(setOf(bad, seenFrom("b", rigid.Identity(), 10, 11, 12)), logger)
	test.That(t, errors.Is(err, ErrUnsatisfiable), test.ShouldBeTrue)
	test.That(t, cal.State, test.ShouldEqual, StateRelativeComposed)
	test.That(t, cal.Base, test.ShouldEqual, "a")
	test.That(t, cal.Relative.IDs(), test.ShouldResemble, []string{"a"})
	test.That(t, cal.Absolute, test.ShouldBeNil)

	var buf bytes.Buffer
	test.That(t, cal.Serialize(&buf), test.ShouldNotBeNil)
}

func TestSerialize(t *testing.T) {
	logger := logging.NewTestLogger(t)

	tb := rigid.FromAxisAngle(r3.Vector{Y: 1}, math.Pi/2, r3.Vector{X: 1})
	obs := setOf(
		seenFrom("a", rigid.Identity(), 1, 2, 3, 10, 11, 12),
		seenFrom("b", tb, 1, 10, 11, 12),
	)
	cal, err := Calibrate(obs, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cal.Err(), test.ShouldBeNil)

	var buf bytes.Buffer
	test.That(t, cal.Serialize(&buf), test.ShouldBeNil)
	test.That(t, cal.State, test.ShouldEqual, StateSerialized)
	test.That(t, cal.Serialize(&bytes.Buffer{}), test.ShouldNotBeNil)

	g, err := ReadTransforms(&buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, g.IDs(), test.ShouldResemble, []string{"a", "b"})
	test.That(t, g["b"].AlmostEqual(tb, 1e-9), test.ShouldBeTrue)
	test.That(t, g["a"].AlmostEqual(rigid.Identity(), 1e-9), test.ShouldBeTrue)

	_, err = ReadTransforms(strings.NewReader(`{"a": [1, 2, 3]}`))
	test.That(t, errors.Is(err, rigid.ErrNotRigid), test.ShouldBeTrue)

	_, err = ReadTransforms(strings.NewReader(`{"../x": [1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1]}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "file name")
}

func TestStateString(t *testing.T) {
	test.That(t, StateWorldAligned.String(), test.ShouldEqual, "world-aligned")
	test.That(t, State(99).String(), test.ShouldEqual, "unknown")
}
