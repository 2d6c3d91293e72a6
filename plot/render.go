package plot

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/carbocation/pfx"
	"github.com/carbocation/tissuedge/dataset"
	"github.com/carbocation/tissuedge/dge"
)

// Policies holds one ViewPolicy per figure type.
type Policies struct {
	Volcano ViewPolicy
	Heatmap ViewPolicy
	Boxplot ViewPolicy
}

var DefaultPolicies = Policies{
	Volcano: DefaultVolcano,
	Heatmap: DefaultHeatmap,
	Boxplot: DefaultBoxplot,
}

// RenderAll writes volcano.png, heatmap_<tumor>.png and boxplot_<tumor>.png
// into dir. levels gives each tumor type's tissue subtypes in design order.
func RenderAll(dir string, table dge.Table, strata []*dataset.Stratum, levels map[string][]string, p Policies) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return pfx.Err(err)
	}

	tumorTypes := make([]string, 0, len(strata))
	for _, s := range strata {
		tumorTypes = append(tumorTypes, s.TumorType)
	}

	volcanoPath := filepath.Join(dir, "volcano.png")
	if err := Volcano(volcanoPath, table, tumorTypes, p.Volcano); err != nil {
		return pfx.Err(err)
	}
	log.Println("Wrote", volcanoPath)

	for _, s := range strata {
		lv := levels[s.TumorType]
		if len(lv) == 0 {
			return pfx.Err(fmt.Errorf("no tissue subtype levels for %s", s.TumorType))
		}

		heatmapPath := filepath.Join(dir, fmt.Sprintf("heatmap_%s.png", s.TumorType))
		wrote, err := Heatmap(heatmapPath, table, s, lv, p.Heatmap)
		if err != nil {
			return pfx.Err(err)
		}
		if wrote {
			log.Println("Wrote", heatmapPath)
		} else {
			log.Printf("%s: no genes at FDR < %g for the heatmap\n", s.TumorType, p.Heatmap.FDR)
		}

		boxplotPath := filepath.Join(dir, fmt.Sprintf("boxplot_%s.png", s.TumorType))
		wrote, err = Boxplot(boxplotPath, table, s, lv, p.Boxplot)
		if err != nil {
			return pfx.Err(err)
		}
		if wrote {
			log.Println("Wrote", boxplotPath)
		} else {
			log.Printf("%s: no genes at FDR < %g for the boxplot\n", s.TumorType, p.Boxplot.FDR)
		}
	}

	return nil
}
