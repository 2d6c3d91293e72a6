package plot

import (
	"fmt"
	"image/color"
	"math"
	"math/rand"

	"github.com/carbocation/tissuedge/dataset"
	"github.com/carbocation/tissuedge/dge"
	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/montanaflynn/stats"
)

const (
	panelWidth   = 240
	panelHeight  = 200
	panelColumns = 4
	panelPad     = 28

	// jitterSeed fixes point placement so figures are reproducible.
	jitterSeed = 1
)

// boxStats summarises one group for a box: quartiles and whiskers reaching
// the most extreme points within 1.5 IQR of the box.
type boxStats struct {
	Q1, Median, Q3 float64
	Low, High      float64
}

func summarize(values []float64) (boxStats, error) {
	if len(values) == 1 {
		v := values[0]
		return boxStats{v, v, v, v, v}, nil
	}

	q, err := stats.Quartile(values)
	if err != nil {
		return boxStats{}, err
	}
	iqr := q.Q3 - q.Q1

	out := boxStats{Q1: q.Q1, Median: q.Q2, Q3: q.Q3, Low: q.Q1, High: q.Q3}
	for _, v := range values {
		if v >= q.Q1-1.5*iqr && v < out.Low {
			out.Low = v
		}
		if v <= q.Q3+1.5*iqr && v > out.High {
			out.High = v
		}
	}

	return out, nil
}

// drawBoxPanel draws one gene's expression by tissue subtype into the cell
// whose top-left corner is (x0, y0).
func drawBoxPanel(dc *gg.Context, rng *rand.Rand, x0, y0 float64, gene string, byLevel map[string][]float64, levels []string) error {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, vs := range byLevel {
		for _, v := range vs {
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
	}
	if math.IsInf(lo, 1) {
		lo, hi = 0, 1
	}
	if hi == lo {
		lo, hi = lo-0.5, hi+0.5
	}

	plotTop := y0 + 20
	plotBottom := y0 + panelHeight - panelPad
	scale := func(v float64) float64 {
		return plotBottom - (v-lo)/(hi-lo)*(plotBottom-plotTop)
	}

	dc.SetColor(color.Black)
	dc.DrawStringAnchored(gene, x0+panelWidth/2, y0+10, 0.5, 0.5)
	dc.SetLineWidth(1)
	dc.DrawRectangle(x0+4, plotTop, panelWidth-8, plotBottom-plotTop)
	dc.Stroke()

	slot := (panelWidth - 8) / float64(len(levels))
	for k, level := range levels {
		values := byLevel[level]
		center := x0 + 4 + slot*(float64(k)+0.5)
		half := slot * 0.3

		dc.SetColor(color.Black)
		dc.DrawStringAnchored(level, center, plotBottom+12, 0.5, 0.5)
		if len(values) == 0 {
			continue
		}

		b, err := summarize(values)
		if err != nil {
			return fmt.Errorf("%s %s: %w", gene, level, err)
		}

		dc.SetColor(levelColor(levels, level))
		dc.DrawLine(center, scale(b.Low), center, scale(b.Q1))
		dc.DrawLine(center, scale(b.Q3), center, scale(b.High))
		dc.DrawLine(center-half/2, scale(b.Low), center+half/2, scale(b.Low))
		dc.DrawLine(center-half/2, scale(b.High), center+half/2, scale(b.High))
		dc.DrawRectangle(center-half, scale(b.Q3), 2*half, scale(b.Q1)-scale(b.Q3))
		dc.Stroke()
		dc.SetLineWidth(2)
		dc.DrawLine(center-half, scale(b.Median), center+half, scale(b.Median))
		dc.Stroke()
		dc.SetLineWidth(1)

		dc.SetRGBA(0, 0, 0, 0.6)
		for _, v := range values {
			dc.DrawCircle(center+(rng.Float64()-0.5)*half, scale(v), 1.5)
			dc.Fill()
		}
	}

	return nil
}

// Boxplot draws one panel per top gene of the stratum under the policy,
// with samples grouped by tissue subtype in level order. It reports false,
// writing nothing, when no gene passes.
func Boxplot(path string, table dge.Table, s *dataset.Stratum, levels []string, policy ViewPolicy) (bool, error) {
	name := policy.contrastFor(table, s.TumorType)
	top := SelectTop(table.Filter(s.TumorType, name), policy)
	if len(top) == 0 {
		return false, nil
	}

	long := s.LongForGenes(genes(top))
	byGene := make(map[string]map[string][]float64, len(top))
	for _, r := range long {
		if byGene[r.Gene] == nil {
			byGene[r.Gene] = make(map[string][]float64)
		}
		byGene[r.Gene][r.TissueSub] = append(byGene[r.Gene][r.TissueSub], r.Expression)
	}

	cols := panelColumns
	if len(top) < cols {
		cols = len(top)
	}
	rows := (len(top) + cols - 1) / cols

	dc := gg.NewContext(cols*panelWidth, rows*panelHeight+marginTop)
	dc.SetColor(color.White)
	dc.Clear()
	dc.SetColor(color.Black)
	dc.DrawStringAnchored(fmt.Sprintf("%s: %s", s.TumorType, name), float64(cols*panelWidth)/2, marginTop/2, 0.5, 0.5)

	rng := rand.New(rand.NewSource(jitterSeed))
	for k, r := range top {
		x0 := float64((k % cols) * panelWidth)
		y0 := float64(marginTop + (k/cols)*panelHeight)
		if err := drawBoxPanel(dc, rng, x0, y0, r.Gene, byGene[r.Gene], levels); err != nil {
			return false, fmt.Errorf("boxplot %s: %w", s.TumorType, err)
		}
	}

	if err := imaging.Save(dc.Image(), path); err != nil {
		return false, err
	}

	return true, nil
}
