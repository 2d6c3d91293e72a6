package glm

import (
	"errors"
	"math"
	"sort"

	"github.com/carbocation/tissuedge/design"
	"github.com/carbocation/tissuedge/norm"
)

var ErrNoResidualDF = errors.New("design leaves no residual degrees of freedom")

const (
	gridLength = 21
	gridMin    = -10.0
	gridMax    = 10.0
)

// Dispersion holds the negative binomial dispersion estimates of one fit.
type Dispersion struct {
	Common  float64
	Trended []float64
	Tagwise []float64

	// PriorDF is the weight given to the trend when estimating Tagwise.
	PriorDF float64
}

// gridPoints returns the log2-scale dispersion grid and the dispersions it
// represents, 0.1 * 2^x.
func gridPoints() ([]float64, []float64) {
	pts := make([]float64, gridLength)
	disp := make([]float64, gridLength)
	step := (gridMax - gridMin) / float64(gridLength-1)
	for k := range pts {
		pts[k] = gridMin + float64(k)*step
		disp[k] = 0.1 * math.Exp2(pts[k])
	}

	return pts, disp
}

// EstimateDisp estimates common, trended and tagwise dispersions by
// maximising the Cox-Reid adjusted profile likelihood over a fixed grid.
// The trend is a moving average of the likelihood curves across genes
// ordered by aveLogCPM.
func EstimateDisp(d *norm.DGEList, x *design.ModelMatrix, aveLogCPM []float64, priorDF float64) (*Dispersion, error) {
	ngenes := d.NGenes()
	resDF := x.NSamples() - x.NCoef()
	if resDF <= 0 {
		return nil, ErrNoResidualDF
	}

	pts, grid := gridPoints()
	offset := d.Offsets()

	l0 := make([][]float64, ngenes)
	for i := range l0 {
		l0[i] = make([]float64, gridLength)
		y := d.Row(i)
		for k, phi := range grid {
			fit, err := fitGene(x, y, offset, phi)
			if err != nil {
				return nil, err
			}
			l0[i][k] = adjustedProfileLik(x, y, fit.Mu, phi)
		}
	}

	out := &Dispersion{
		Trended: make([]float64, ngenes),
		Tagwise: make([]float64, ngenes),
		PriorDF: priorDF,
	}

	total := make([]float64, gridLength)
	for _, row := range l0 {
		for k, v := range row {
			total[k] += v
		}
	}
	out.Common = 0.1 * math.Exp2(maximizeInterpolant(pts, total))

	m0 := trendByAbundance(l0, aveLogCPM)
	for i := range m0 {
		out.Trended[i] = 0.1 * math.Exp2(maximizeInterpolant(pts, m0[i]))
	}

	priorN := priorDF / float64(resDF)
	combined := make([]float64, gridLength)
	for i := range l0 {
		for k := range combined {
			combined[k] = l0[i][k] + priorN*m0[i][k]
		}
		out.Tagwise[i] = 0.1 * math.Exp2(maximizeInterpolant(pts, combined))
	}

	return out, nil
}

// trendSpan is the fraction of genes averaged for each point of the trend.
func trendSpan(ngenes int) float64 {
	if ngenes <= 50 {
		return 1
	}

	return 0.25 + 0.75*math.Sqrt(50/float64(ngenes))
}

// trendByAbundance smooths every grid column of l0 with a moving average
// over genes sorted by abundance.
func trendByAbundance(l0 [][]float64, abundance []float64) [][]float64 {
	n := len(l0)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return abundance[order[a]] < abundance[order[b]]
	})

	sorted := make([][]float64, n)
	for k, i := range order {
		sorted[k] = l0[i]
	}
	smoothed := movingAverage(sorted, int(math.Floor(trendSpan(n)*float64(n))))

	out := make([][]float64, n)
	for k, i := range order {
		out[i] = smoothed[k]
	}

	return out
}

// movingAverage averages each column over a centered window of width rows,
// truncated at the ends.
func movingAverage(rows [][]float64, width int) [][]float64 {
	n := len(rows)
	out := make([][]float64, n)
	if n == 0 {
		return out
	}
	if width > n {
		width = n
	}
	if width <= 1 {
		for i, r := range rows {
			out[i] = append([]float64(nil), r...)
		}
		return out
	}

	m := len(rows[0])
	cum := make([][]float64, n+1)
	cum[0] = make([]float64, m)
	for i, r := range rows {
		cum[i+1] = make([]float64, m)
		for k, v := range r {
			cum[i+1][k] = cum[i][k] + v
		}
	}

	half := width / 2
	for i := 0; i < n; i++ {
		lo := i - half
		hi := lo + width
		if lo < 0 {
			lo = 0
		}
		if hi > n {
			hi = n
		}
		out[i] = make([]float64, m)
		for k := range out[i] {
			out[i][k] = (cum[hi][k] - cum[lo][k]) / float64(hi-lo)
		}
	}

	return out
}

// maximizeInterpolant returns the x at which a parabola through the best
// grid point and its neighbours peaks. Maxima on the boundary are returned
// as is.
func maximizeInterpolant(x, y []float64) float64 {
	best := 0
	for k := range y {
		if y[k] > y[best] {
			best = k
		}
	}
	if best == 0 || best == len(y)-1 {
		return x[best]
	}

	left, mid, right := y[best-1], y[best], y[best+1]
	curvature := left - 2*mid + right
	if curvature >= 0 {
		return x[best]
	}

	h := x[best+1] - x[best]
	shift := 0.5 * h * (left - right) / curvature

	return x[best] + math.Max(-h, math.Min(h, shift))
}
