package plot

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/carbocation/tissuedge/dataset"
	"github.com/carbocation/tissuedge/dge"
	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"gonum.org/v1/gonum/stat"
)

const (
	cellSize      = 12.0
	annotationGap = 4.0
	labelWidth    = 110
	marginTop     = 30
	legendHeight  = 20
)

// zScoreRows standardizes every row to mean 0 and standard deviation 1.
// Constant rows become zero.
func zScoreRows(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = make([]float64, len(row))
		mean, sd := stat.MeanStdDev(row, nil)
		if sd == 0 || math.IsNaN(sd) {
			continue
		}
		for j, v := range row {
			out[i][j] = (v - mean) / sd
		}
	}

	return out
}

// divergingColor maps z in [-2, 2] from blue through white to red.
func divergingColor(z float64) color.Color {
	t := math.Max(-1, math.Min(1, z/2))
	if math.IsNaN(t) {
		t = 0
	}

	if t < 0 {
		f := 1 + t
		return color.RGBA{uint8(255 * f), uint8(255 * f), 255, 255}
	}

	f := 1 - t
	return color.RGBA{255, uint8(255 * f), uint8(255 * f), 255}
}

var categorical = []color.RGBA{
	{31, 119, 180, 255},
	{255, 127, 14, 255},
	{44, 160, 44, 255},
	{148, 103, 189, 255},
	{140, 86, 75, 255},
	{227, 119, 194, 255},
	{127, 127, 127, 255},
	{188, 189, 34, 255},
	{23, 190, 207, 255},
}

func levelColor(levels []string, level string) color.RGBA {
	for i, l := range levels {
		if l == level {
			return categorical[i%len(categorical)]
		}
	}

	return color.RGBA{0, 0, 0, 255}
}

// heatmapBody rasterizes the cell grid with a tissue-subtype bar above it.
// rows and cols give the display order.
func heatmapBody(z [][]float64, rowOrder, colOrder []int, subtypes, levels []string) image.Image {
	nrow, ncol := len(rowOrder), len(colOrder)
	width := float64(ncol) * cellSize
	height := float64(nrow)*cellSize + cellSize + annotationGap

	c := canvas.New(width, height)
	ctx := canvas.NewContext(c)
	ctx.SetCoordSystem(canvas.CartesianIV)
	ctx.SetStrokeColor(canvas.Transparent)

	for k, j := range colOrder {
		ctx.SetFillColor(levelColor(levels, subtypes[j]))
		ctx.DrawPath(float64(k)*cellSize, 0, canvas.Rectangle(cellSize, cellSize))
	}

	top := cellSize + annotationGap
	for r, i := range rowOrder {
		for k, j := range colOrder {
			ctx.SetFillColor(divergingColor(z[i][j]))
			ctx.DrawPath(float64(k)*cellSize, top+float64(r)*cellSize, canvas.Rectangle(cellSize, cellSize))
		}
	}

	return rasterizer.Draw(c, canvas.Resolution(1), canvas.DefaultColorSpace)
}

// Heatmap draws row z-scores of log expression for the stratum's top genes
// under the policy. Genes and samples are ordered by hierarchical
// clustering. It reports false, writing nothing, when no gene passes.
func Heatmap(path string, table dge.Table, s *dataset.Stratum, levels []string, policy ViewPolicy) (bool, error) {
	name := policy.contrastFor(table, s.TumorType)
	top := SelectTop(table.Filter(s.TumorType, name), policy)
	if len(top) == 0 {
		return false, nil
	}

	var labels []string
	var values [][]float64
	for _, g := range genes(top) {
		i := s.GeneIndex(g)
		if i < 0 {
			return false, fmt.Errorf("heatmap %s: gene %s is not in the dataset", s.TumorType, g)
		}
		labels = append(labels, g)
		values = append(values, append([]float64(nil), s.LogCounts.RawRowView(i)...))
	}

	z := zScoreRows(values)
	rowOrder := averageLinkageOrder(z)
	colOrder := averageLinkageOrder(transpose(z))

	subtypes := make([]string, s.NSamples())
	for j, sample := range s.Samples {
		subtypes[j] = sample.TissueSub
	}

	body := heatmapBody(z, rowOrder, colOrder, subtypes, levels)
	bw, bh := body.Bounds().Dx(), body.Bounds().Dy()

	legendW := 0
	for _, l := range levels {
		legendW += 20 + 7*len(l)
	}
	width := bw + labelWidth + 10
	if legendW+10 > width {
		width = legendW + 10
	}
	height := marginTop + bh + 10 + legendHeight

	dc := gg.NewContext(width, height)
	dc.SetColor(color.White)
	dc.Clear()
	dc.DrawImage(body, 5, marginTop)

	dc.SetColor(color.Black)
	dc.DrawStringAnchored(fmt.Sprintf("%s: %s", s.TumorType, name), float64(width)/2, marginTop/2, 0.5, 0.5)

	bodyTop := float64(marginTop) + cellSize + annotationGap
	for r, i := range rowOrder {
		dc.DrawStringAnchored(labels[i], float64(5+bw+4), bodyTop+(float64(r)+0.5)*cellSize, 0, 0.35)
	}

	x := 5.0
	y := float64(marginTop + bh + 10)
	for _, l := range levels {
		dc.SetColor(levelColor(levels, l))
		dc.DrawRectangle(x, y, 10, 10)
		dc.Fill()
		dc.SetColor(color.Black)
		dc.DrawStringAnchored(l, x+14, y+5, 0, 0.35)
		x += 20 + 7*float64(len(l))
	}

	if err := imaging.Save(dc.Image(), path); err != nil {
		return false, err
	}

	return true, nil
}
