package dge

import (
	"bytes"
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/carbocation/pfx"
	"github.com/carbocation/tissuedge/contrast"
	"github.com/carbocation/tissuedge/glm"
)

// TestAll runs a quasi-likelihood F-test for every contrast of every fitted
// tumor type. FDR is controlled within each test. Tumor types follow the
// fit order and contrasts follow their definition order. When logHistogram
// is set, a text histogram of each test's p-values is logged.
func TestAll(fits *glm.Fits, contrasts *contrast.Set, logHistogram bool) (Table, error) {
	var out Table

	for _, tumorType := range fits.TumorTypes {
		fit, _ := fits.Fit(tumorType)

		for _, c := range contrasts.For(tumorType) {
			rows, err := Test(fit, c, logHistogram)
			if err != nil {
				return nil, pfx.Err(err)
			}
			out = append(out, rows...)
		}
	}

	for _, tumorType := range contrasts.TumorTypes {
		if _, exists := fits.Fit(tumorType); !exists {
			return nil, pfx.Err(fmt.Errorf("contrasts defined for %s, which was not fitted", tumorType))
		}
	}

	return out, nil
}

// Test runs one contrast and returns its rows sorted by p-value, ties broken
// by gene.
func Test(fit *glm.QLFit, c contrast.Contrast, logHistogram bool) (Table, error) {
	res, err := glm.QLFTest(fit, c.Weights)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", c.TumorType, c.Name, err)
	}

	fdr := AdjustBH(res.PValue)

	rows := make(Table, len(res.Genes))
	for i, gene := range res.Genes {
		rows[i] = Row{
			Gene:      gene,
			LogFC:     res.LogFC[i],
			LogCPM:    res.LogCPM[i],
			F:         res.F[i],
			PValue:    res.PValue[i],
			FDR:       fdr[i],
			Contrast:  c.Name,
			TumorType: c.TumorType,
		}
	}

	sort.SliceStable(rows, func(a, b int) bool {
		if rows[a].PValue != rows[b].PValue {
			return rows[a].PValue < rows[b].PValue
		}
		return rows[a].Gene < rows[b].Gene
	})

	var significant int
	for _, r := range rows {
		if r.FDR < 0.05 {
			significant++
		}
	}
	log.Printf("%s %s: %d of %d genes at FDR < 0.05\n", c.TumorType, c.Name, significant, len(rows))

	if logHistogram && len(rows) > 0 {
		logPValueHistogram(res.PValue)
	}

	return rows, nil
}

func logPValueHistogram(p []float64) {
	lo, hi := p[0], p[0]
	for _, v := range p {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	if !(hi > lo) {
		return
	}

	var buf bytes.Buffer
	if err := histogram.Fprint(&buf, histogram.Hist(20, p), histogram.Linear(40)); err != nil {
		log.Println(err)
		return
	}
	log.Printf("p-value distribution:\n%s", buf.String())
}
