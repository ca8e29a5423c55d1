// Package measure brings each camera's point cloud into the calibrated world frame, keeps the
// part inside the measurement volume and merges the result.
package measure

import (
	"math"
	"os"

	"github.com/golang/geo/r3"

	"go.viam.com/rdk/pointcloud"

	"github.com/erh/camarray/rigid"
)

// Cylinder is the measurement volume. Its axis is the world Y axis through the origin, it starts
// at height Bottom and extends Height upwards.
type Cylinder struct {
	Bottom float64
	Height float64
	Radius float64
}

// Contains reports whether p is inside the cylinder, boundary included.
func (c Cylinder) Contains(p r3.Vector) bool {
	if p.Y < c.Bottom || p.Y > c.Bottom+c.Height {
		return false
	}
	return math.Hypot(p.X, p.Z) <= c.Radius
}

// Scaled returns the cylinder with every dimension multiplied by f.
func (c Cylinder) Scaled(f float64) Cylinder {
	return Cylinder{Bottom: c.Bottom * f, Height: c.Height * f, Radius: c.Radius * f}
}

// TransformCloud moves pc by t. t must already be in the cloud's units.
func TransformCloud(pc pointcloud.PointCloud, t rigid.Transform) (pointcloud.PointCloud, error) {
	pose, err := t.Pose()
	if err != nil {
		return nil, err
	}

	out := pointcloud.NewBasicPointCloud(pc.Size())
	err = pointcloud.ApplyOffset(pc, pose, out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Crop keeps the points inside cyl, which must be in the cloud's units.
func Crop(pc pointcloud.PointCloud, cyl Cylinder) pointcloud.PointCloud {
	fixed := pointcloud.NewBasicEmpty()

	pc.Iterate(0, 0, func(p r3.Vector, d pointcloud.Data) bool {
		if !cyl.Contains(p) {
			return true
		}
		fixed.Set(p, d)
		return true
	})

	return fixed
}

// Merge concatenates clouds that already share a frame.
func Merge(pcs ...pointcloud.PointCloud) (pointcloud.PointCloud, error) {
	totalSize := 0
	for _, pc := range pcs {
		totalSize += pc.Size()
	}

	big := pointcloud.NewBasicPointCloud(totalSize)
	for _, pc := range pcs {
		err := pointcloud.ApplyOffset(pc, nil, big)
		if err != nil {
			return nil, err
		}
	}

	return big, nil
}

func writePCToFile(fn string, pc pointcloud.PointCloud) error {
	f, err := os.OpenFile(fn, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return pointcloud.ToPCD(pc, f, pointcloud.PCDBinary)
}
