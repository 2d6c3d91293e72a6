package dge

import (
	"fmt"
	"math"
	"testing"

	"github.com/carbocation/tissuedge/contrast"
	"github.com/carbocation/tissuedge/dataset"
	"github.com/carbocation/tissuedge/glm"
	"gonum.org/v1/gonum/mat"
)

// threeLevelJitter spreads replicate counts around the group mean so that
// every gene has a non-zero residual deviance. Its mean is 1.
var threeLevelJitter = []float64{0.85, 1, 1.15}

// threeLevelCounts builds three samples of each of N, A and B, followed by
// extra samples of every subtype in extra. Gene "upB" is four-fold higher in
// B, "upA" four-fold higher in A, "onlyA" is expressed in A alone, and the
// null genes are flat across all groups.
func threeLevelCounts(extra ...string) (genes []string, subs []string, data []float64) {
	levels := append([]string{"N", "A", "B"}, extra...)
	for _, l := range levels {
		subs = append(subs, l, l, l)
	}

	add := func(gene string, i int, mean func(sub string) float64) {
		genes = append(genes, gene)
		for j, s := range subs {
			data = append(data, math.Round(mean(s)*threeLevelJitter[(i+j)%3]))
		}
	}

	add("upB", 0, func(s string) float64 {
		if s == "B" {
			return 2000
		}
		return 500
	})
	add("upA", 1, func(s string) float64 {
		if s == "A" {
			return 2000
		}
		return 500
	})
	add("onlyA", 2, func(s string) float64 {
		if s == "A" {
			return 300
		}
		return 0
	})
	for i := 0; i < 40; i++ {
		base := 800 + 10*float64(i)
		add(fmt.Sprintf("null%02d", i), i, func(string) float64 { return base })
	}

	return genes, subs, data
}

func threeLevelStratum(tumorType string) *dataset.Stratum {
	genes, subs, data := threeLevelCounts()

	samples := make([]dataset.Sample, len(subs))
	for j, s := range subs {
		samples[j] = dataset.Sample{ID: fmt.Sprintf("%s%d", tumorType, j), TumorType: tumorType, TissueSub: s}
	}
	counts := mat.NewDense(len(genes), len(subs), data)

	return &dataset.Stratum{
		TumorType: tumorType,
		Dataset: &dataset.Dataset{
			Genes:           genes,
			Samples:         samples,
			Counts:          counts,
			LogCounts:       mat.DenseCopyOf(counts),
			TissueSubLevels: []string{"A", "B", "N"},
		},
	}
}

var threeLevelContrasts = []contrast.Definition{
	{TumorType: "PAAD", Name: "BvN", Reference: []string{"N"}, Target: []string{"B"}},
	{TumorType: "PAAD", Name: "ABvN", Reference: []string{"N"}, Target: []string{"A", "B"}},
	{TumorType: "PAAD", Name: "AvN", Reference: []string{"N"}, Target: []string{"A"}},
}

func TestTestAllThreeLevels(t *testing.T) {
	fits, err := glm.FitModels([]*dataset.Stratum{threeLevelStratum("PAAD")}, map[string]string{"PAAD": "N"}, glm.DefaultOptions, 1)
	if err != nil {
		t.Fatal(err)
	}
	if cols, _ := fits.Columns("PAAD"); len(cols) != 3 || cols[0] != "N" {
		t.Fatalf("design columns %v", cols)
	}

	set, err := contrast.Build(fits, threeLevelContrasts)
	if err != nil {
		t.Fatal(err)
	}

	table, err := TestAll(fits, set, false)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(table); n != 3*43 {
		t.Fatalf("expected %d rows, got %d", 3*43, n)
	}

	for _, r := range table {
		if math.IsNaN(r.PValue) || r.PValue < 0 || r.PValue > 1 {
			t.Fatalf("%s %s: PValue %v outside [0, 1]", r.Contrast, r.Gene, r.PValue)
		}
		if math.IsNaN(r.FDR) || r.FDR < r.PValue || r.FDR > 1 {
			t.Fatalf("%s %s: FDR %v with PValue %v", r.Contrast, r.Gene, r.FDR, r.PValue)
		}
		if math.IsNaN(r.LogFC) || math.IsInf(r.LogFC, 0) {
			t.Fatalf("%s %s: logFC %v", r.Contrast, r.Gene, r.LogFC)
		}
	}

	byGene := func(block Table, gene string) Row {
		for _, r := range block {
			if r.Gene == gene {
				return r
			}
		}
		t.Fatalf("gene %s missing", gene)
		return Row{}
	}

	for _, v := range []struct {
		Contrast string
		Leading  []string
		Window   int
		LogFC    map[string]float64
	}{
		{"BvN", []string{"upB"}, 1, map[string]float64{"upB": 2, "upA": 0}},
		{"ABvN", []string{"upA", "upB"}, 2, map[string]float64{"upB": 1, "upA": 1}},
		// onlyA is also strongly different between A and N.
		{"AvN", []string{"upA"}, 2, map[string]float64{"upB": 0, "upA": 2}},
	} {
		block := table.Filter("PAAD", v.Contrast)
		if len(block) != 43 {
			t.Fatalf("%s: %d rows", v.Contrast, len(block))
		}

		top := make(map[string]bool)
		for _, r := range block[:v.Window] {
			top[r.Gene] = true
		}
		for _, gene := range v.Leading {
			if !top[gene] {
				t.Fatalf("%s: %s is not among the leading genes", v.Contrast, gene)
			}
		}

		for gene, expected := range v.LogFC {
			if got := byGene(block, gene).LogFC; math.Abs(got-expected) > 0.15 {
				t.Fatalf("%s %s: logFC %v, expected %v", v.Contrast, gene, got, expected)
			}
		}
	}

	// Dropping the B vs N direction leaves the N and B observations of
	// onlyA zero under both models, so the test has no degrees of freedom.
	onlyA := byGene(table.Filter("PAAD", "BvN"), "onlyA")
	if onlyA.F != 0 || onlyA.PValue != 1 || onlyA.FDR != 1 {
		t.Fatalf("onlyA under BvN: F %v, PValue %v, FDR %v", onlyA.F, onlyA.PValue, onlyA.FDR)
	}
}
