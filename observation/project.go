package observation

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/rimage/transform"
)

// RealSenseProperties are the factory intrinsics of a D4xx color stream at 1280x720.
var RealSenseProperties = camera.Properties{
	IntrinsicParams:  &transform.PinholeCameraIntrinsics{Width: 1280, Height: 720, Fx: 906.0663452148438, Fy: 905.1234741210938, Ppx: 646.94970703125, Ppy: 374.4667663574219},
	DistortionParams: &transform.BrownConrady{RadialK1: 0, RadialK2: 0, RadialK3: 0, TangentialP1: 0, TangentialP2: 0},
}

// Detection is one marker found by the 2D detector: its id and its four pixel corners.
type Detection struct {
	MarkerID int
	Corners  [4]r2.Point
}

// MarkerCenter is the mean of the four corners.
func MarkerCenter(corners [4]r2.Point) r2.Point {
	var c r2.Point
	for _, p := range corners {
		c = c.Add(p)
	}
	return c.Mul(.25)
}

// DepthFunc returns the raw depth reading at a pixel, or false when there is none.
type DepthFunc func(x, y int) (float64, bool)

// Projector back-projects detected markers into the camera's sensor frame.
type Projector struct {
	Properties camera.Properties
	// DepthScale converts raw depth readings to meters; zero means readings are already meters.
	DepthScale float64
}

func (p Projector) scale() float64 {
	if p.DepthScale <= 0 {
		return 1
	}
	return p.DepthScale
}

// PixelToPoint deprojects a pixel at the given depth (meters). Brown-Conrady distortion is
// undone iteratively the way the RealSense SDK does it.
func (p Projector) PixelToPoint(pixelX, pixelY, depth float64) (r3.Vector, error) {
	intrin := p.Properties.IntrinsicParams
	if intrin == nil {
		return r3.Vector{}, errors.New("intrinsics cannot be null")
	}

	x := (pixelX - intrin.Ppx) / intrin.Fx
	y := (pixelY - intrin.Ppy) / intrin.Fy

	xo := x
	yo := y

	brown, ok := p.Properties.DistortionParams.(*transform.BrownConrady)
	if ok {
		for i := 0; i < 10; i++ {
			rsq := x*x + y*y
			icdist := 1 / (1 + ((brown.RadialK3*rsq+brown.RadialK2)*rsq+brown.RadialK1)*rsq)
			xq := x / icdist
			yq := y / icdist
			deltaX := 2*brown.TangentialP1*xq*yq + brown.TangentialP2*(rsq+2*xq*xq)
			deltaY := 2*brown.TangentialP2*xq*yq + brown.TangentialP1*(rsq+2*yq*yq)
			x = (xo - deltaX) * icdist
			y = (yo - deltaY) * icdist
		}
	} else if p.Properties.DistortionParams != nil {
		x, y = p.Properties.DistortionParams.Transform(x, y)
	}

	return r3.Vector{X: depth * x, Y: depth * y, Z: depth}, nil
}

// Project turns one frame's detections into an observation record. Markers without a depth
// reading at their center, or reported more than once, are left out.
func (p Projector) Project(cameraID string, detections []Detection, depth DepthFunc, logger logging.Logger) (Record, error) {
	if cameraID == "" {
		return Record{}, errors.New("need a camera id")
	}

	r := Record{
		CameraID: cameraID,
		Aruco:    []int{},
		Centers:  [][]float64{},
	}
	seen := map[int]bool{}

	for _, d := range detections {
		if seen[d.MarkerID] {
			logger.Warnw("marker detected more than once, dropping repeat", "camera", cameraID, "marker", d.MarkerID)
			continue
		}

		center := MarkerCenter(d.Corners)
		raw, ok := depth(int(math.Round(center.X)), int(math.Round(center.Y)))
		if !ok || raw <= 0 {
			logger.Warnw("no depth at marker center", "camera", cameraID, "marker", d.MarkerID, "center", center)
			continue
		}

		pt, err := p.PixelToPoint(center.X, center.Y, raw*p.scale())
		if err != nil {
			return Record{}, err
		}

		seen[d.MarkerID] = true
		r.Aruco = append(r.Aruco, d.MarkerID)
		r.Centers = append(r.Centers, []float64{pt.X, pt.Y, pt.Z})
	}

	logger.Debugf("camera %s: projected %d of %d detections", cameraID, len(r.Aruco), len(detections))
	return r, nil
}
