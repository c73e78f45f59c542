package report

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/padel.report/internal/padel/l1detections"
	"github.com/banshee-data/padel.report/internal/padel/result"
)

// classColors gives every tracked class a fixed colour across reports.
var classColors = map[l1detections.Class]color.Color{
	l1detections.ClassPlayer1: color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 255},
	l1detections.ClassPlayer2: color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 255},
	l1detections.ClassPlayer3: color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 255},
	l1detections.ClassPlayer4: color.RGBA{R: 0x94, G: 0x67, B: 0xbd, A: 255},
	l1detections.ClassBall:    color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 255},
}

// trajectoryPlot draws the court outline, every observed track sample and
// every touch of a.
func trajectoryPlot(a *result.Analysis) (*plot.Plot, error) {
	dims := a.Court.Dimensions
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Trajectories - run %s", a.RunID)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.X.Min, p.X.Max = -1, dims.Width+1
	p.Y.Min, p.Y.Max = -1, dims.Length+1
	p.Add(plotter.NewGrid())

	outline, err := plotter.NewLine(plotter.XYs{
		{X: 0, Y: 0}, {X: dims.Width, Y: 0}, {X: dims.Width, Y: dims.Length}, {X: 0, Y: dims.Length}, {X: 0, Y: 0},
	})
	if err != nil {
		return nil, err
	}
	outline.Width = vg.Points(2)
	netLine, err := plotter.NewLine(plotter.XYs{{X: 0, Y: dims.Length / 2}, {X: dims.Width, Y: dims.Length / 2}})
	if err != nil {
		return nil, err
	}
	netLine.Width = vg.Points(1)
	netLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(outline, netLine)

	legend := make(map[l1detections.Class]bool)
	for _, t := range a.Tracks {
		pts := make(plotter.XYs, 0, len(t.Samples))
		for _, s := range t.Samples {
			if s.Observed && s.Position.IsFinite() {
				pts = append(pts, plotter.XY{X: s.Position.X, Y: s.Position.Y})
			}
		}
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("track %s: %w", t.ID, err)
		}
		line.Color = classColors[t.Class]
		line.Width = vg.Points(1)
		p.Add(line)
		if !legend[t.Class] {
			p.Legend.Add(t.Class.String(), line)
			legend[t.Class] = true
		}
	}

	touches := a.Touches()
	if len(touches) > 0 {
		pts := make(plotter.XYs, len(touches))
		for i, t := range touches {
			pts[i] = plotter.XY{X: t.Position.X, Y: t.Position.Y}
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		sc.GlyphStyle.Radius = vg.Points(4)
		p.Add(sc)
		p.Legend.Add("touch", sc)
	}
	p.Legend.Top = true
	return p, nil
}

// WriteTrajectoryPNG saves the trajectory plot of a to path.
func WriteTrajectoryPNG(path string, a *result.Analysis) error {
	p, err := trajectoryPlot(a)
	if err != nil {
		return fmt.Errorf("trajectory plot: %w", err)
	}
	if err := p.Save(8*vg.Inch, 14*vg.Inch, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// EncodeTrajectoryPNG writes the trajectory plot of a to w as PNG.
func EncodeTrajectoryPNG(w io.Writer, a *result.Analysis) error {
	p, err := trajectoryPlot(a)
	if err != nil {
		return fmt.Errorf("trajectory plot: %w", err)
	}
	wt, err := p.WriterTo(8*vg.Inch, 14*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
