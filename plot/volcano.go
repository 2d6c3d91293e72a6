package plot

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/carbocation/tissuedge/dge"
	"github.com/disintegration/imaging"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	volcanoWidth  = 640
	volcanoHeight = 520

	// maxNegLog10 stands in for -log10(0).
	maxNegLog10 = 300.0
)

var (
	colorUp    = drawing.ColorFromHex("d62728")
	colorDown  = drawing.ColorFromHex("1f77b4")
	colorOther = drawing.ColorFromHex("bbbbbb")
)

func negLog10(p float64) float64 {
	if p <= 0 {
		return maxNegLog10
	}

	return math.Min(-math.Log10(p), maxNegLog10)
}

// volcanoPanel renders logFC against -log10(FDR) for one tumor type.
// Significant genes are coloured by direction and the top genes labelled.
func volcanoPanel(title string, rows dge.Table, policy ViewPolicy) (image.Image, error) {
	var up, down, other [2][]float64
	xMax, yMax := 1.0, 1.0
	for _, r := range rows {
		x, y := r.LogFC, negLog10(r.FDR)
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) {
			continue
		}
		xMax = math.Max(xMax, math.Abs(x))
		yMax = math.Max(yMax, y)

		dst := &other
		if policy.Passes(r) {
			if x > 0 {
				dst = &up
			} else {
				dst = &down
			}
		}
		dst[0] = append(dst[0], x)
		dst[1] = append(dst[1], y)
	}

	var series []chart.Series
	for _, s := range []struct {
		name   string
		points [2][]float64
		color  drawing.Color
	}{
		{"not significant", other, colorOther},
		{"down", down, colorDown},
		{"up", up, colorUp},
	} {
		// go-chart rejects empty series.
		if len(s.points[0]) == 0 {
			continue
		}
		series = append(series, chart.ContinuousSeries{
			Name: s.name,
			Style: chart.Style{
				StrokeWidth: chart.Disabled,
				DotWidth:    2.5,
				DotColor:    s.color,
			},
			XValues: s.points[0],
			YValues: s.points[1],
		})
	}

	labels := make([]chart.Value2, 0, policy.TopN)
	for _, r := range SelectTop(rows, policy) {
		labels = append(labels, chart.Value2{XValue: r.LogFC, YValue: negLog10(r.FDR), Label: r.Gene})
	}
	if len(labels) > 0 {
		series = append(series, chart.AnnotationSeries{Annotations: labels})
	}

	if len(series) == 0 {
		// An empty chart still needs one series to render axes.
		series = append(series, chart.ContinuousSeries{
			Style:   chart.Style{StrokeWidth: chart.Disabled, DotWidth: 0},
			XValues: []float64{0},
			YValues: []float64{0},
		})
	}

	graph := chart.Chart{
		Title:  title,
		Width:  volcanoWidth,
		Height: volcanoHeight,
		XAxis: chart.XAxis{
			Name:  "log2 fold change",
			Range: &chart.ContinuousRange{Min: -xMax * 1.05, Max: xMax * 1.05},
		},
		YAxis: chart.YAxis{
			Name:  "-log10 FDR",
			Range: &chart.ContinuousRange{Min: 0, Max: yMax * 1.05},
		},
		Series: series,
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("volcano %s: %w", title, err)
	}

	return imaging.Decode(buffer)
}

// Volcano draws one panel per tumor type, side by side, and saves the
// composite to path. Each panel shows the policy's contrast.
func Volcano(path string, table dge.Table, tumorTypes []string, policy ViewPolicy) error {
	panels := make([]image.Image, 0, len(tumorTypes))
	for _, t := range tumorTypes {
		name := policy.contrastFor(table, t)
		rows := table.Filter(t, name)

		img, err := volcanoPanel(fmt.Sprintf("%s: %s", t, name), rows, policy)
		if err != nil {
			return err
		}
		panels = append(panels, img)
	}
	if len(panels) == 0 {
		return fmt.Errorf("volcano: no tumor types to draw")
	}

	return imaging.Save(sideBySide(panels), path)
}

// sideBySide pastes images left to right on a white background.
func sideBySide(panels []image.Image) image.Image {
	width, height := 0, 0
	for _, p := range panels {
		width += p.Bounds().Dx()
		if h := p.Bounds().Dy(); h > height {
			height = h
		}
	}

	dst := imaging.New(width, height, color.White)
	x := 0
	for _, p := range panels {
		dst = imaging.Paste(dst, p, image.Pt(x, 0))
		x += p.Bounds().Dx()
	}

	return dst
}
