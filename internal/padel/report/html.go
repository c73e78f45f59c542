package report

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/padel.report/internal/padel/l1detections"
	"github.com/banshee-data/padel.report/internal/padel/l2court"
	"github.com/banshee-data/padel.report/internal/padel/result"
)

// HTMLOptions configures the chart page.
type HTMLOptions struct {
	// AssetsHost serves the echarts JavaScript. Empty uses the go-echarts
	// default CDN.
	AssetsHost string
	Theme      string
}

// heatColors is the viridis ramp used by heatmap charts.
var heatColors = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// WriteHTML renders the chart page of a to w.
func WriteHTML(w io.Writer, a *result.Analysis) error {
	return WriteHTMLWithOptions(w, a, HTMLOptions{})
}

// WriteHTMLWithOptions renders the chart page of a to w.
func WriteHTMLWithOptions(w io.Writer, a *result.Analysis, o HTMLOptions) error {
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("Padel match %s", a.RunID)
	if o.AssetsHost != "" {
		page.SetAssetsHost(o.AssetsHost)
	}
	page.AddCharts(
		rallyChart(a, o),
		zoneChart(a, o),
		touchChart(a, o),
		heatmapChart(a, o),
	)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

func initOpts(o HTMLOptions, title, width, height string) charts.GlobalOpts {
	return charts.WithInitializationOpts(opts.Initialization{
		PageTitle:  title,
		Theme:      o.Theme,
		Width:      width,
		Height:     height,
		AssetsHost: o.AssetsHost,
	})
}

// rallyChart shows touches and duration per rally.
func rallyChart(a *result.Analysis, o HTMLOptions) *charts.Bar {
	x := make([]string, 0, len(a.Rallies))
	touches := make([]opts.BarData, 0, len(a.Rallies))
	seconds := make([]opts.BarData, 0, len(a.Rallies))
	for _, r := range a.Rallies {
		label := fmt.Sprintf("#%d", r.ID)
		if r.Fault != nil {
			label += " (" + string(r.Fault.Kind) + ")"
		}
		x = append(x, label)
		touches = append(touches, opts.BarData{Value: len(r.Touches)})
		seconds = append(seconds, opts.BarData{Value: round2(r.DurationSeconds(a.FPS))})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		initOpts(o, "Rallies", "100%", "420px"),
		charts.WithTitleOpts(opts.Title{
			Title:    "Rally lengths",
			Subtitle: fmt.Sprintf("rallies=%d mean touches=%.1f longest=%.1fs", a.MatchStats.Rallies, a.MatchStats.MeanRallyTouches, a.MatchStats.LongestRallySeconds),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
	)
	bar.SetXAxis(x).
		AddSeries("touches", touches, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"})).
		AddSeries("seconds", seconds)
	return bar
}

// zoneChart stacks each player's time per court zone.
func zoneChart(a *result.Analysis, o HTMLOptions) *charts.Bar {
	x := make([]string, 0, len(a.PlayerStats))
	for _, p := range a.PlayerStats {
		x = append(x, p.Player.String())
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		initOpts(o, "Zones", "100%", "420px"),
		charts.WithTitleOpts(opts.Title{Title: "Time per zone", Subtitle: "seconds"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
	)
	bar.SetXAxis(x)
	for _, z := range append(append([]l2court.Zone{}, l2court.Zones...), l2court.ZoneOut) {
		data := make([]opts.BarData, 0, len(a.PlayerStats))
		for _, p := range a.PlayerStats {
			data = append(data, opts.BarData{Value: round2(p.ZoneTime[z])})
		}
		bar.AddSeries(string(z), data, charts.WithBarChartOpts(opts.BarChart{Stack: "zones"}))
	}
	return bar
}

// touchChart places every touch on the court, one series per player.
func touchChart(a *result.Analysis, o HTMLOptions) *charts.Scatter {
	dims := a.Court.Dimensions
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		initOpts(o, "Touches", "600px", "900px"),
		charts.WithTitleOpts(opts.Title{Title: "Touch locations", Subtitle: fmt.Sprintf("touches=%d", a.MatchStats.Touches)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: dims.Width, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: dims.Length, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)
	byPlayer := make(map[l1detections.Class][]opts.ScatterData)
	for _, t := range a.Touches() {
		byPlayer[t.Player] = append(byPlayer[t.Player], opts.ScatterData{
			Value: []interface{}{round2(t.Position.X), round2(t.Position.Y), t.FrameIndex},
		})
	}
	for _, c := range l1detections.PlayerClasses {
		scatter.AddSeries(c.String(), byPlayer[c], charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}))
	}
	return scatter
}

// heatmapChart draws the occupancy cells of all players as a coloured
// scatter.
func heatmapChart(a *result.Analysis, o HTMLOptions) *charts.Scatter {
	dims := a.Court.Dimensions
	points := make([]opts.ScatterData, 0)
	peak := 0
	for _, p := range a.PlayerStats {
		for _, cell := range p.Heatmap {
			points = append(points, opts.ScatterData{
				Name:  p.Player.String(),
				Value: []interface{}{cell.X, cell.Y, cell.Frames},
			})
			if cell.Frames > peak {
				peak = cell.Frames
			}
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		initOpts(o, "Heatmap", "600px", "900px"),
		charts.WithTitleOpts(opts.Title{Title: "Player heatmap", Subtitle: fmt.Sprintf("cells=%d", len(points))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: dims.Width, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: dims.Length, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Dimension:  "2",
			Min:        0,
			Max:        float32(peak),
			InRange:    &opts.VisualMapInRange{Color: heatColors},
		}),
	)
	scatter.AddSeries("frames", points, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}))
	return scatter
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
