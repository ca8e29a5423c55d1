package measure

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"

	"github.com/erh/camarray"
	"github.com/erh/camarray/observation"
)

// MergedFile is the name of the combined cloud written into the data directory.
const MergedFile = "merged.pcd"

// Config controls a measurement run.
type Config struct {
	// Dir holds one <camera_id>.pcd per camera; outputs are written next to them.
	Dir string
	// Cylinder, in meters, limits the kept points. Nil keeps everything.
	Cylinder *Cylinder
	// Workers bounds how many clouds are processed at once. Zero or less means one per camera.
	Workers int
	// UnitsPerMeter is the unit of the clouds on disk. Zero means millimeters.
	UnitsPerMeter float64
}

func (c Config) unitsPerMeter() float64 {
	if c.UnitsPerMeter <= 0 {
		return 1000
	}
	return c.UnitsPerMeter
}

// CloudPath is where the capture for cameraID is expected.
func (c Config) CloudPath(cameraID string) string {
	return filepath.Join(c.Dir, cameraID+".pcd")
}

// WorldPath is where the world frame cloud for cameraID is written.
func (c Config) WorldPath(cameraID string) string {
	return filepath.Join(c.Dir, cameraID+"_world.pcd")
}

// CameraCloud describes what happened to one camera's cloud.
type CameraCloud struct {
	CameraID string
	Path     string
	Points   int
	Kept     int
}

// Result of a measurement run.
type Result struct {
	Cameras []CameraCloud
	// Skipped lists calibrated cameras with no cloud on disk.
	Skipped []string
	Merged  string
	Points  int
}

// Run transforms every calibrated camera's cloud into the world frame in parallel, crops it and
// writes both the per camera and the merged result. The first failing camera cancels the rest.
func Run(ctx context.Context, cfg Config, transforms camarray.Graph, logger logging.Logger) (*Result, error) {
	ids := transforms.IDs()
	if len(ids) == 0 {
		return nil, errors.New("no calibrated cameras")
	}
	for _, id := range ids {
		if err := observation.CheckCameraID(id); err != nil {
			return nil, err
		}
	}

	scale := cfg.unitsPerMeter()
	var cyl *Cylinder
	if cfg.Cylinder != nil {
		c := cfg.Cylinder.Scaled(scale)
		cyl = &c
	}

	clouds := make([]pointcloud.PointCloud, len(ids))
	stats := make([]CameraCloud, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	if cfg.Workers > 0 {
		g.SetLimit(cfg.Workers)
	}

	for i, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			fn := cfg.CloudPath(id)
			if _, err := os.Stat(fn); errors.Is(err, os.ErrNotExist) {
				logger.Warnw("no point cloud for camera, skipping", "camera", id, "path", fn)
				return nil
			}

			in, err := pointcloud.NewFromFile(fn, "")
			if err != nil {
				return errors.Wrapf(err, "camera %s", id)
			}

			world, err := TransformCloud(in, transforms[id].Scaled(scale))
			if err != nil {
				return errors.Wrapf(err, "camera %s", id)
			}
			if cyl != nil {
				world = Crop(world, *cyl)
			}

			out := cfg.WorldPath(id)
			if err := writePCToFile(out, world); err != nil {
				return errors.Wrapf(err, "camera %s", id)
			}
			logger.Debugf("camera %s: kept %d of %d points, wrote %s", id, world.Size(), in.Size(), out)

			clouds[i] = world
			stats[i] = CameraCloud{CameraID: id, Path: out, Points: in.Size(), Kept: world.Size()}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{}
	present := []pointcloud.PointCloud{}
	for i, id := range ids {
		if clouds[i] == nil {
			res.Skipped = append(res.Skipped, id)
			continue
		}
		present = append(present, clouds[i])
		res.Cameras = append(res.Cameras, stats[i])
	}
	if len(present) == 0 {
		return nil, errors.Errorf("none of %d calibrated cameras has a point cloud in %s", len(ids), cfg.Dir)
	}

	merged, err := Merge(present...)
	if err != nil {
		return nil, err
	}
	res.Merged = filepath.Join(cfg.Dir, MergedFile)
	res.Points = merged.Size()
	if err := writePCToFile(res.Merged, merged); err != nil {
		return nil, err
	}

	logger.Infof("merged %d points from %d cameras into %s", res.Points, len(res.Cameras), res.Merged)
	return res, nil
}
