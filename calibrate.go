package camarray

import (
	"encoding/json"
	"io"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/rdk/logging"

	"github.com/erh/camarray/observation"
	"github.com/erh/camarray/rigid"
)

// State is how far a calibration run got. Runs only move forward.
type State int

const (
	StateLoaded State = iota
	StateBaseSelected
	StateRelativeComposed
	StateWorldAligned
	StateSerialized
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateBaseSelected:
		return "base-selected"
	case StateRelativeComposed:
		return "relative-composed"
	case StateWorldAligned:
		return "world-aligned"
	case StateSerialized:
		return "serialized"
	}
	return "unknown"
}

// Calibration holds everything a run produced. When a stage fails the fields filled by
// earlier stages are kept for diagnostics.
type Calibration struct {
	RunID string
	State State

	Base     string
	Relative Graph
	Cameras  []CameraResult

	World         rigid.Transform
	WorldResidual float64
	Absolute      Graph
}

// Calibrate runs base selection, relative registration and world alignment over obs.
// Cameras that cannot be registered are dropped from the result; any other failure is fatal
// and returned alongside the partial Calibration.
func Calibrate(obs observation.Set, logger logging.Logger) (*Calibration, error) {
	cal := &Calibration{RunID: uuid.NewString(), State: StateLoaded}
	logger.Infof("calibration %s: %d cameras loaded", cal.RunID, len(obs))

	base, err := SelectBase(obs)
	if err != nil {
		return cal, err
	}
	cal.Base = base
	cal.State = StateBaseSelected
	logger.Infof("base camera %s observes %d markers", base, len(obs[base].MarkerIDs))

	relative, results, err := ComposeRelative(obs, base)
	if err != nil {
		return cal, err
	}
	cal.Relative = relative
	cal.Cameras = results
	cal.State = StateRelativeComposed

	for _, r := range results {
		if r.Err != nil {
			logger.Warnw("camera not calibrated", "camera", r.CameraID, "shared", r.SharedMarkers, "error", r.Err)
			continue
		}
		if r.CameraID != base {
			logger.Debugf("camera %s registered on %d markers, residual %.6f m", r.CameraID, len(r.SharedMarkers), r.Residual)
		}
	}

	world, absolute, residual, err := AlignWorld(obs[base], relative)
	if err != nil {
		return cal, err
	}
	cal.World = world
	cal.WorldResidual = residual
	cal.Absolute = absolute
	cal.State = StateWorldAligned
	logger.Infof("world frame anchored, residual %.6f m, %d of %d cameras calibrated", residual, len(absolute), len(obs))

	return cal, nil
}

// Failed returns the cameras that could not be calibrated.
func (c *Calibration) Failed() []CameraResult {
	out := []CameraResult{}
	for _, r := range c.Cameras {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Err combines every per camera failure, or nil when all cameras were calibrated.
func (c *Calibration) Err() error {
	var err error
	for _, r := range c.Failed() {
		err = multierr.Append(err, r.Err)
	}
	return err
}

// Serialize writes the absolute transforms as a JSON object of camera id to row-major 4x4
// matrix. Only a world aligned run can be serialized.
func (c *Calibration) Serialize(w io.Writer) error {
	if c.State != StateWorldAligned {
		return errors.Errorf("cannot serialize a calibration in state %v", c.State)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c.Absolute.Flatten()); err != nil {
		return err
	}
	c.State = StateSerialized
	return nil
}

// ReadTransforms reads a transform map written by Serialize.
func ReadTransforms(r io.Reader) (Graph, error) {
	raw := map[string][]float64{}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, err
	}

	g := make(Graph, len(raw))
	for id, data := range raw {
		if err := observation.CheckCameraID(id); err != nil {
			return nil, err
		}
		t, err := rigid.FromFlat(data)
		if err != nil {
			return nil, errors.Wrapf(err, "camera %s", id)
		}
		g[id] = t
	}
	return g, nil
}
