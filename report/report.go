// Package report summarizes a calibration run for humans: a JSON report of how each camera
// fared and a top-down plot of the calibrated rig.
package report

import (
	"encoding/json"
	"os"
	"time"

	"github.com/erh/camarray"
)

// Camera is the outcome for one camera.
type Camera struct {
	CameraID      string `json:"camera_id"`
	Calibrated    bool   `json:"calibrated"`
	Base          bool   `json:"base,omitempty"`
	SharedMarkers []int  `json:"shared_markers"`
	// Residual is the RMS registration error onto the base camera, in meters.
	Residual float64 `json:"residual"`
	// Position is the camera origin in the world frame.
	Position []float64 `json:"position,omitempty"`
	Error    string    `json:"error,omitempty"`
}

type Report struct {
	RunID         string    `json:"run_id"`
	Created       time.Time `json:"created"`
	State         string    `json:"state"`
	Base          string    `json:"base,omitempty"`
	WorldResidual float64   `json:"world_residual"`
	Calibrated    int       `json:"calibrated"`
	Cameras       []Camera  `json:"cameras"`
	Malformed     []string  `json:"malformed,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// New builds the report for cal. malformed are the loader diagnostics and fatal is the error
// Calibrate returned, if any.
func New(cal *camarray.Calibration, malformed []error, fatal error) *Report {
	r := &Report{
		RunID:         cal.RunID,
		Created:       time.Now().UTC(),
		State:         cal.State.String(),
		Base:          cal.Base,
		WorldResidual: cal.WorldResidual,
		Calibrated:    len(cal.Absolute),
		Cameras:       []Camera{},
	}
	if fatal != nil {
		r.Error = fatal.Error()
	}

	for _, res := range cal.Cameras {
		c := Camera{
			CameraID:      res.CameraID,
			Base:          res.CameraID == cal.Base,
			SharedMarkers: res.SharedMarkers,
			Residual:      res.Residual,
		}
		if res.Err != nil {
			c.Error = res.Err.Error()
		}
		if t, ok := cal.Absolute[res.CameraID]; ok {
			c.Calibrated = true
			p := t.Translation()
			c.Position = []float64{p.X, p.Y, p.Z}
		}
		r.Cameras = append(r.Cameras, c)
	}

	for _, err := range malformed {
		r.Malformed = append(r.Malformed, err.Error())
	}

	return r
}

// WriteFile writes the report as indented JSON.
func (r *Report) WriteFile(fn string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(fn, data, 0o644)
}
