package report

import (
	"fmt"
	"image/color"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/erh/camarray"
	"github.com/erh/camarray/observation"
)

// viewLength is how long the drawn viewing direction of each camera is, in meters.
const viewLength = .25

var (
	cameraColor = color.RGBA{R: 200, A: 255}
	markerColor = color.RGBA{B: 200, A: 255}
	anchorColor = color.RGBA{G: 160, A: 255}
)

// WritePlot draws the calibrated rig seen from above (world X against world Z): each camera's
// origin and viewing direction, and the markers the base camera saw.
func WritePlot(fn string, cal *camarray.Calibration, base *observation.Camera) error {
	if len(cal.Absolute) == 0 {
		return errors.New("no calibrated cameras to plot")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Camera rig %s (top down)", cal.RunID)
	p.X.Label.Text = "World X (m)"
	p.Y.Label.Text = "World Z (m)"
	p.Add(plotter.NewGrid())

	origins := make(plotter.XYs, 0, len(cal.Absolute))
	labels := make([]string, 0, len(cal.Absolute))
	for _, id := range cal.Absolute.IDs() {
		t := cal.Absolute[id]
		o := t.Translation()
		origins = append(origins, plotter.XY{X: o.X, Y: o.Z})
		labels = append(labels, id)

		view := t.Apply(r3.Vector{Z: viewLength})
		line, err := plotter.NewLine(plotter.XYs{{X: o.X, Y: o.Z}, {X: view.X, Y: view.Z}})
		if err != nil {
			return err
		}
		line.Color = cameraColor
		line.Width = vg.Points(1)
		p.Add(line)
	}

	cams, err := plotter.NewScatter(origins)
	if err != nil {
		return err
	}
	cams.GlyphStyle.Shape = draw.TriangleGlyph{}
	cams.GlyphStyle.Color = cameraColor
	cams.GlyphStyle.Radius = vg.Points(4)
	p.Add(cams)
	p.Legend.Add("camera", cams)

	names, err := plotter.NewLabels(plotter.XYLabels{XYs: origins, Labels: labels})
	if err != nil {
		return err
	}
	p.Add(names)

	if base != nil {
		toWorld, ok := cal.Absolute[base.ID]
		if !ok {
			return errors.Errorf("base camera %s is not calibrated", base.ID)
		}

		markers := plotter.XYs{}
		anchors := plotter.XYs{}
		for i, id := range base.MarkerIDs {
			w := toWorld.Apply(base.Points[i])
			if id == camarray.AnchorX || id == camarray.AnchorOrigin || id == camarray.AnchorZ {
				anchors = append(anchors, plotter.XY{X: w.X, Y: w.Z})
			} else {
				markers = append(markers, plotter.XY{X: w.X, Y: w.Z})
			}
		}

		if len(anchors) > 0 {
			s, err := plotter.NewScatter(anchors)
			if err != nil {
				return err
			}
			s.GlyphStyle.Shape = draw.BoxGlyph{}
			s.GlyphStyle.Color = anchorColor
			p.Add(s)
			p.Legend.Add("anchor", s)
		}
		if len(markers) > 0 {
			s, err := plotter.NewScatter(markers)
			if err != nil {
				return err
			}
			s.GlyphStyle.Shape = draw.CircleGlyph{}
			s.GlyphStyle.Color = markerColor
			p.Add(s)
			p.Legend.Add("marker", s)
		}
	}

	p.Legend.Top = true
	p.Legend.Left = false

	return p.Save(8*vg.Inch, 8*vg.Inch, fn)
}
