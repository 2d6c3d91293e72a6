// Package config reads the JSON analysis configuration of a tissuedge run.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/carbocation/pfx"
	"github.com/carbocation/tissuedge"
	"github.com/carbocation/tissuedge/contrast"
	"github.com/carbocation/tissuedge/dataset"
	"github.com/carbocation/tissuedge/glm"
	"github.com/carbocation/tissuedge/plot"
	"gopkg.in/guregu/null.v3"
)

// PolicyConfig overrides a figure's default ViewPolicy. Unset numeric
// fields keep the default.
type PolicyConfig struct {
	Contrast string     `json:"contrast"`
	FDR      null.Float `json:"fdr"`
	LogFC    null.Float `json:"logfc"`
	TopN     null.Int   `json:"top_n"`
}

// Resolve applies the overrides to def.
func (p PolicyConfig) Resolve(def plot.ViewPolicy) plot.ViewPolicy {
	out := def
	if p.Contrast != "" {
		out.Contrast = p.Contrast
	}
	if p.FDR.Valid {
		out.FDR = p.FDR.Float64
	}
	if p.LogFC.Valid {
		out.LogFC = p.LogFC.Float64
	}
	if p.TopN.Valid {
		out.TopN = int(p.TopN.Int64)
	}

	return out
}

type JSONConfig struct {
	ConfigPath string `json:"-"`

	// Outputs is the project output directory. Input, Result and Figures
	// default to locations within it.
	Outputs string `json:"outputs"`
	Input   string `json:"input"`
	Result  string `json:"result"`
	Figures string `json:"figures"`

	CountsFile    string `json:"counts_file"`
	LogCountsFile string `json:"logcounts_file"`
	ColDataFile   string `json:"coldata_file"`

	ExcludeSubtypes []string `json:"exclude_subtypes"`

	// TumorTypes lists the strata to fit, in output order. When empty,
	// every tumor type in the data is fitted in sorted order.
	TumorTypes []string `json:"tumor_types"`

	// Reference maps tumor type to the tissue subtype used as the first
	// design column. DefaultReference applies to tumor types not listed.
	Reference        map[string]string `json:"reference"`
	DefaultReference string            `json:"default_reference"`

	Contrasts []contrast.Definition `json:"contrasts"`

	FilterByExpr   bool       `json:"filter_by_expr"`
	PriorDF        null.Float `json:"prior_df"`
	PriorCount     null.Float `json:"prior_count"`
	AbundanceTrend null.Bool  `json:"abundance_trend"`

	Volcano PolicyConfig `json:"volcano"`
	Heatmap PolicyConfig `json:"heatmap"`
	Boxplot PolicyConfig `json:"boxplot"`

	Workers int `json:"workers"`
}

func ParseJSONConfigFromPath(path string) (JSONConfig, error) {
	out := JSONConfig{ConfigPath: path}

	f, err := os.Open(tissuedge.ExpandHome(path))
	if err != nil {
		return out, pfx.Err(err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		if e, ok := err.(*json.SyntaxError); ok {
			log.Printf("syntax error at byte offset %d", e.Offset)
		}
		return out, pfx.Err(err)
	}

	// Interpret ~ if present
	out.ConfigPath = tissuedge.ExpandHome(out.ConfigPath)
	out.Outputs = tissuedge.ExpandHome(out.Outputs)
	out.Input = tissuedge.ExpandHome(out.Input)
	out.Result = tissuedge.ExpandHome(out.Result)
	out.Figures = tissuedge.ExpandHome(out.Figures)

	return out, pfx.Err(out.Validate())
}

// Validate checks the settings that do not depend on the data.
func (c JSONConfig) Validate() error {
	if c.Outputs == "" && (c.Input == "" || c.Result == "") {
		return fmt.Errorf("outputs must be set unless both input and result are")
	}
	if len(c.Contrasts) == 0 {
		return fmt.Errorf("no contrasts are defined")
	}
	for _, def := range c.Contrasts {
		if def.TumorType == "" || def.Name == "" {
			return fmt.Errorf("every contrast needs a tumor_type and a name: %+v", def)
		}
	}
	if c.PriorDF.Valid && c.PriorDF.Float64 < 0 {
		return fmt.Errorf("prior_df must not be negative")
	}
	if c.PriorCount.Valid && c.PriorCount.Float64 <= 0 {
		return fmt.Errorf("prior_count must be positive")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}

	return nil
}

// InputDir is the stage directory holding the prepared dataset.
func (c JSONConfig) InputDir() string {
	if c.Input != "" {
		return c.Input
	}

	return tissuedge.JoinPath(c.Outputs, "01-sce")
}

// ResultPath is where the result table is written.
func (c JSONConfig) ResultPath() string {
	if c.Result != "" {
		return c.Result
	}

	return tissuedge.JoinPath(c.Outputs, "02-dge.tsv.gz")
}

// FigureDir is where figures are written.
func (c JSONConfig) FigureDir() string {
	if c.Figures != "" {
		return c.Figures
	}

	return tissuedge.JoinPath(c.Outputs, "figures")
}

func (c JSONConfig) Files() dataset.Files {
	return dataset.Files{
		Counts:    c.CountsFile,
		LogCounts: c.LogCountsFile,
		ColData:   c.ColDataFile,
	}
}

// Strata returns the tumor types to fit. Without an explicit list, every
// tumor type in available is used, sorted.
func (c JSONConfig) Strata(available []string) []string {
	if len(c.TumorTypes) > 0 {
		return append([]string(nil), c.TumorTypes...)
	}

	out := append([]string(nil), available...)
	sort.Strings(out)
	return out
}

// References resolves the reference tissue subtype of every tumor type.
func (c JSONConfig) References(tumorTypes []string) (map[string]string, error) {
	out := make(map[string]string, len(tumorTypes))
	for _, t := range tumorTypes {
		ref, exists := c.Reference[t]
		if !exists {
			ref = c.DefaultReference
		}
		if ref == "" {
			return nil, fmt.Errorf("no reference tissue subtype for tumor type %s", t)
		}
		out[t] = ref
	}

	return out, nil
}

func (c JSONConfig) GLMOptions() glm.Options {
	out := glm.DefaultOptions
	out.FilterByExpr = c.FilterByExpr
	if c.PriorDF.Valid {
		out.PriorDF = c.PriorDF.Float64
	}
	if c.PriorCount.Valid {
		out.PriorCount = c.PriorCount.Float64
	}
	if c.AbundanceTrend.Valid {
		out.AbundanceTrend = c.AbundanceTrend.Bool
	}

	return out
}

func (c JSONConfig) Policies() plot.Policies {
	return plot.Policies{
		Volcano: c.Volcano.Resolve(plot.DefaultVolcano),
		Heatmap: c.Heatmap.Resolve(plot.DefaultHeatmap),
		Boxplot: c.Boxplot.Resolve(plot.DefaultBoxplot),
	}
}
