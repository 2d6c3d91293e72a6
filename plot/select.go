// Package plot renders the result table as volcano plots, expression
// heatmaps and per-gene boxplots.
package plot

import (
	"math"
	"sort"

	"github.com/carbocation/tissuedge/dge"
)

// ViewPolicy selects the rows one figure shows. Each figure type carries its
// own policy.
type ViewPolicy struct {
	// Contrast names the contrast shown. When empty, the first contrast
	// tested in each tumor type is used.
	Contrast string

	// FDR is the exclusive upper bound on FDR.
	FDR float64

	// LogFC is the exclusive lower bound on |logFC|. Zero disables it.
	LogFC float64

	// TopN caps the number of genes. Zero or less keeps all of them.
	TopN int
}

var (
	DefaultVolcano = ViewPolicy{FDR: 0.01, LogFC: 1, TopN: 10}
	DefaultHeatmap = ViewPolicy{FDR: 0.05, TopN: 50}
	DefaultBoxplot = ViewPolicy{FDR: 0.05, TopN: 12}
)

// Passes reports whether a row meets the policy thresholds.
func (p ViewPolicy) Passes(r dge.Row) bool {
	if !(r.FDR < p.FDR) {
		return false
	}
	if p.LogFC > 0 && !(math.Abs(r.LogFC) > p.LogFC) {
		return false
	}

	return true
}

// contrastFor resolves the policy's contrast within a tumor type.
func (p ViewPolicy) contrastFor(table dge.Table, tumorType string) string {
	if p.Contrast != "" {
		return p.Contrast
	}
	if cs := table.Contrasts(tumorType); len(cs) > 0 {
		return cs[0]
	}

	return ""
}

// SelectTop returns the rows passing the policy, largest |logFC| first with
// ties broken by gene, truncated to TopN. When fewer rows pass than TopN,
// exactly the passing rows are returned.
func SelectTop(rows dge.Table, p ViewPolicy) dge.Table {
	out := make(dge.Table, 0)
	for _, r := range rows {
		if p.Passes(r) {
			out = append(out, r)
		}
	}

	sort.SliceStable(out, func(a, b int) bool {
		fa, fb := math.Abs(out[a].LogFC), math.Abs(out[b].LogFC)
		if fa != fb {
			return fa > fb
		}
		return out[a].Gene < out[b].Gene
	})

	if p.TopN > 0 && len(out) > p.TopN {
		out = out[:p.TopN]
	}

	return out
}

// genes returns the gene symbols of rows in order.
func genes(rows dge.Table) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Gene
	}

	return out
}
