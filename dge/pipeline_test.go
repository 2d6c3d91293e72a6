package dge

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/carbocation/tissuedge/contrast"
	"github.com/carbocation/tissuedge/dataset"
	"github.com/carbocation/tissuedge/glm"
)

// writeThreeLevelStage writes the three-level counts, plus three samples of
// subtype X, as a stage directory.
func writeThreeLevelStage(t *testing.T) string {
	t.Helper()

	genes, subs, data := threeLevelCounts("X")

	var counts, logCounts, colData strings.Builder
	counts.WriteString("gene")
	logCounts.WriteString("gene")
	colData.WriteString("sample\tTumorType\tTissueSub\n")
	for j, s := range subs {
		id := fmt.Sprintf("S%02d", j)
		counts.WriteString("\t" + id)
		logCounts.WriteString("\t" + id)
		fmt.Fprintf(&colData, "%s\tPAAD\t%s\n", id, s)
	}
	counts.WriteString("\n")
	logCounts.WriteString("\n")

	for i, gene := range genes {
		counts.WriteString(gene)
		logCounts.WriteString(gene)
		for j := range subs {
			v := data[i*len(subs)+j]
			counts.WriteString("\t" + strconv.FormatFloat(v, 'g', -1, 64))
			logCounts.WriteString("\t" + strconv.FormatFloat(math.Log2(v+1), 'g', -1, 64))
		}
		counts.WriteString("\n")
		logCounts.WriteString("\n")
	}

	dir := t.TempDir()
	for name, content := range map[string]string{
		"counts.tsv":    counts.String(),
		"logcounts.tsv": logCounts.String(),
		"coldata.tsv":   colData.String(),
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	return dir
}

// runThreeLevel runs load, exclusion, stratification, fitting and testing
// from scratch.
func runThreeLevel(t *testing.T, dir string, workers int) (Table, []*dataset.Stratum, *glm.Fits) {
	t.Helper()

	data, err := dataset.Load(context.Background(), dir, dataset.Files{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	data = data.Exclude([]string{"X"})

	strata, err := data.Strata([]string{"PAAD"})
	if err != nil {
		t.Fatal(err)
	}

	fits, err := glm.FitModels(strata, map[string]string{"PAAD": "N"}, glm.DefaultOptions, workers)
	if err != nil {
		t.Fatal(err)
	}

	set, err := contrast.Build(fits, threeLevelContrasts)
	if err != nil {
		t.Fatal(err)
	}

	table, err := TestAll(fits, set, false)
	if err != nil {
		t.Fatal(err)
	}

	return table, strata, fits
}

func TestPipelineRerunAndExclusion(t *testing.T) {
	dir := writeThreeLevelStage(t)

	first, strata, fits := runThreeLevel(t, dir, 1)
	second, _, _ := runThreeLevel(t, dir, 2)

	if len(first) != 3*43 {
		t.Fatalf("expected %d rows, got %d", 3*43, len(first))
	}
	if !reflect.DeepEqual(first, second) {
		for i := range first {
			if i < len(second) && first[i] != second[i] {
				t.Fatalf("row %d differs between runs: %+v vs %+v", i, first[i], second[i])
			}
		}
		t.Fatalf("tables differ between runs")
	}

	for _, s := range strata {
		for _, sample := range s.Samples {
			if sample.TissueSub == "X" {
				t.Fatalf("excluded sample %s reached stratum %s", sample.ID, s.TumorType)
			}
		}
	}

	fit, _ := fits.Fit("PAAD")
	if !reflect.DeepEqual(fit.Design.Columns, []string{"N", "A", "B"}) {
		t.Fatalf("design columns %v", fit.Design.Columns)
	}
	if n := fit.Design.NSamples(); n != 9 {
		t.Fatalf("design has %d samples, expected 9", n)
	}
}
