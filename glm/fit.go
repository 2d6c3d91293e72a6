// Package glm fits quasi-likelihood negative binomial generalized linear
// models to RNA-seq counts and tests contrasts of their coefficients.
package glm

import (
	"fmt"
	"log"
	"math"

	"github.com/carbocation/pfx"
	"github.com/carbocation/tissuedge/dataset"
	"github.com/carbocation/tissuedge/design"
	"github.com/carbocation/tissuedge/norm"
	"golang.org/x/sync/errgroup"
)

// aveLogCPMPrior is the prior count used for average abundance.
const aveLogCPMPrior = 2

type Options struct {
	// FilterByExpr drops lowly expressed genes in addition to genes with
	// no counts at all.
	FilterByExpr bool

	// PriorDF weights the dispersion trend when estimating tagwise
	// dispersions.
	PriorDF float64

	// PriorCount is added to counts, scaled by library size, before the
	// coefficients used for fold changes are estimated.
	PriorCount float64

	// AbundanceTrend lets the quasi-dispersion prior depend on AveLogCPM.
	AbundanceTrend bool
}

var DefaultOptions = Options{
	PriorDF:        10,
	PriorCount:     0.125,
	AbundanceTrend: true,
}

// FitStratum builds the tissue-subtype design of one stratum with ref as
// its first column, normalizes its libraries, estimates dispersions and
// fits the quasi-likelihood model.
func FitStratum(s *dataset.Stratum, ref string, opts Options) (*QLFit, error) {
	values := make([]string, s.NSamples())
	for j, sample := range s.Samples {
		values[j] = sample.TissueSub
	}

	factor, x, err := design.Build(values, s.TissueSubLevels, ref)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("tumor type %s: %w", s.TumorType, err))
	}

	all, err := norm.NewDGEList(s.Genes, s.Counts)
	if err != nil {
		return nil, pfx.Err(err)
	}

	keep := all.NonZeroGenes()
	if opts.FilterByExpr {
		nonZero := all.Subset(keep)
		expressed := nonZero.FilterByExpr(factor.Counts(), norm.DefaultFilterOptions)
		for k, i := range expressed {
			expressed[k] = keep[i]
		}
		keep = expressed
	}
	if len(keep) == 0 {
		return nil, pfx.Err(fmt.Errorf("tumor type %s: no genes left after filtering", s.TumorType))
	}
	log.Printf("%s: kept %d of %d genes across %d samples and %d tissue subtypes\n",
		s.TumorType, len(keep), all.NGenes(), s.NSamples(), x.NCoef())

	// Library sizes are recomputed from the retained genes.
	filtered := all.Subset(keep)
	d, err := norm.NewDGEList(filtered.Genes, filtered.Counts)
	if err != nil {
		return nil, pfx.Err(err)
	}
	if err := d.CalcNormFactors(norm.DefaultTMMOptions); err != nil {
		return nil, pfx.Err(fmt.Errorf("tumor type %s: %w", s.TumorType, err))
	}

	ave := d.AveLogCPM(aveLogCPMPrior)

	disp, err := EstimateDisp(d, x, ave, opts.PriorDF)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("tumor type %s: %w", s.TumorType, err))
	}
	log.Printf("%s: common dispersion %.4g (BCV %.3g)\n", s.TumorType, disp.Common, math.Sqrt(disp.Common))

	fit, err := NewQLFit(d, x, disp, ave, opts.PriorCount, opts.AbundanceTrend)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("tumor type %s: %w", s.TumorType, err))
	}
	fit.TumorType = s.TumorType
	fit.Factor = factor
	log.Printf("%s: quasi-dispersion prior df %.4g\n", s.TumorType, fit.DFPrior)

	return fit, nil
}

// Fits holds one QLFit per tumor type, in stratum order.
type Fits struct {
	TumorTypes []string
	byType     map[string]*QLFit
}

// Fit returns the fit for a tumor type.
func (f *Fits) Fit(tumorType string) (*QLFit, bool) {
	fit, exists := f.byType[tumorType]
	return fit, exists
}

// Columns returns the design column names of a tumor type's fit.
func (f *Fits) Columns(tumorType string) ([]string, bool) {
	fit, exists := f.byType[tumorType]
	if !exists {
		return nil, false
	}

	return fit.Columns(), true
}

// FitModels fits every stratum, running at most workers fits at once. The
// result does not depend on the number of workers.
func FitModels(strata []*dataset.Stratum, refs map[string]string, opts Options, workers int) (*Fits, error) {
	if workers < 1 {
		workers = 1
	}

	for _, s := range strata {
		if _, exists := refs[s.TumorType]; !exists {
			return nil, pfx.Err(fmt.Errorf("no reference tissue subtype configured for tumor type %s", s.TumorType))
		}
	}

	results := make([]*QLFit, len(strata))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, s := range strata {
		i, s := i, s
		g.Go(func() error {
			fit, err := FitStratum(s, refs[s.TumorType], opts)
			if err != nil {
				return err
			}
			results[i] = fit
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Fits{
		TumorTypes: make([]string, len(strata)),
		byType:     make(map[string]*QLFit, len(strata)),
	}
	for i, s := range strata {
		out.TumorTypes[i] = s.TumorType
		out.byType[s.TumorType] = results[i]
	}

	return out, nil
}
