package observation

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// RecordPattern matches observation records inside a data directory.
const RecordPattern = "aruco_*.json"

// ErrMalformed is wrapped by every MalformedError.
var ErrMalformed = errors.New("malformed observation record")

// MalformedError describes a record that was excluded from the set.
type MalformedError struct {
	Source   string
	CameraID string
	Reason   string
}

func (e *MalformedError) Error() string {
	if e.CameraID == "" {
		return fmt.Sprintf("%v %s: %s", ErrMalformed, e.Source, e.Reason)
	}
	return fmt.Sprintf("%v %s (camera %q): %s", ErrMalformed, e.Source, e.CameraID, e.Reason)
}

func (e *MalformedError) Unwrap() error {
	return ErrMalformed
}

// Load reads every record in fsys matching pattern. Records that fail validation are left out
// of the set and returned as MalformedErrors; the returned error is only set when fsys itself
// could not be read.
func Load(fsys fs.FS, pattern string) (Set, []error, error) {
	names, err := fs.Glob(fsys, pattern)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "bad record pattern %q", pattern)
	}

	set := Set{}
	malformed := []error{}

	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "reading %s", name)
		}

		var r Record
		if err := json.Unmarshal(data, &r); err != nil {
			malformed = append(malformed, &MalformedError{Source: name, Reason: err.Error()})
			continue
		}

		c, err := r.Camera()
		if err != nil {
			malformed = append(malformed, &MalformedError{Source: name, CameraID: r.CameraID, Reason: err.Error()})
			continue
		}

		if _, dup := set[c.ID]; dup {
			malformed = append(malformed, &MalformedError{Source: name, CameraID: c.ID, Reason: "camera already loaded from another record"})
			continue
		}
		set[c.ID] = c
	}

	return set, malformed, nil
}

// LoadDir loads every record in a data directory.
func LoadDir(dir string) (Set, []error, error) {
	return Load(os.DirFS(dir), RecordPattern)
}

// Camera validates the record and converts it.
func (r Record) Camera() (*Camera, error) {
	if err := CheckCameraID(r.CameraID); err != nil {
		return nil, err
	}
	if r.Aruco == nil {
		return nil, errors.New("missing aruco")
	}

	pts := r.Centers
	switch {
	case r.Centers != nil && r.Points != nil:
		return nil, errors.New("both centers and points given")
	case r.Centers == nil && r.Points == nil:
		return nil, errors.New("missing centers")
	case r.Centers == nil:
		pts = r.Points
	}

	if len(pts) != len(r.Aruco) {
		return nil, errors.Errorf("%d marker ids but %d points", len(r.Aruco), len(pts))
	}

	c := &Camera{
		ID:        r.CameraID,
		MarkerIDs: make([]int, 0, len(r.Aruco)),
		Points:    make([]r3.Vector, 0, len(pts)),
	}

	seen := map[int]bool{}
	for i, id := range r.Aruco {
		if seen[id] {
			return nil, errors.Errorf("marker %d listed twice", id)
		}
		seen[id] = true

		p := pts[i]
		if len(p) != 3 {
			return nil, errors.Errorf("point %d for marker %d has %d components", i, id, len(p))
		}
		for _, v := range p {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.Errorf("point %d for marker %d is not finite", i, id)
			}
		}

		c.MarkerIDs = append(c.MarkerIDs, id)
		c.Points = append(c.Points, r3.Vector{X: p[0], Y: p[1], Z: p[2]})
	}
	return c, nil
}

// CheckCameraID rejects camera ids that are empty or unusable as a file name.
func CheckCameraID(id string) error {
	if id == "" {
		return errors.New("missing camera_id")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return errors.Errorf("camera id %q cannot be used as a file name", id)
	}
	return nil
}

// RecordFile is the file name WriteRecord uses for a camera.
func RecordFile(cameraID string) string {
	return fmt.Sprintf("aruco_%s.json", cameraID)
}

// WriteRecord writes r into dir and returns the path written.
func WriteRecord(dir string, r Record) (string, error) {
	if _, err := r.Camera(); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}

	fn := filepath.Join(dir, RecordFile(r.CameraID))
	if err := os.WriteFile(fn, data, 0o644); err != nil {
		return "", err
	}
	return fn, nil
}

// PurgeStale removes records left over from an earlier capture: anything modified more than
// window before the newest record in dir. It returns the removed paths.
func PurgeStale(dir string, window time.Duration) ([]string, error) {
	names, err := filepath.Glob(filepath.Join(dir, RecordPattern))
	if err != nil {
		return nil, err
	}

	mod := map[string]time.Time{}
	var newest time.Time
	for _, fn := range names {
		fi, err := os.Stat(fn)
		if err != nil {
			return nil, err
		}
		mod[fn] = fi.ModTime()
		if fi.ModTime().After(newest) {
			newest = fi.ModTime()
		}
	}

	removed := []string{}
	for _, fn := range names {
		if newest.Sub(mod[fn]) <= window {
			continue
		}
		if err := os.Remove(fn); err != nil {
			return removed, err
		}
		removed = append(removed, fn)
	}
	return removed, nil
}

// Clean removes every json file in dir: observation records and earlier calibration output.
func Clean(dir string) ([]string, error) {
	names, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}

	removed := []string{}
	for _, fn := range names {
		if err := os.Remove(fn); err != nil {
			return removed, err
		}
		removed = append(removed, fn)
	}
	return removed, nil
}
