package dataset

import (
	"fmt"
)

// Exclude returns a new Dataset without samples whose tissue subtype is in
// subtypes. The receiver is not modified.
func (d *Dataset) Exclude(subtypes []string) *Dataset {
	drop := make(map[string]struct{}, len(subtypes))
	for _, s := range subtypes {
		drop[s] = struct{}{}
	}

	keep := make([]int, 0, len(d.Samples))
	for j, s := range d.Samples {
		if _, excluded := drop[s.TissueSub]; excluded {
			continue
		}
		keep = append(keep, j)
	}

	return d.subset(keep)
}

// LongRow is one (sample, gene) pair of the long view.
type LongRow struct {
	Sample
	Gene       string
	Expression float64
}

// Long returns one row per (sample, gene) with the sample's metadata and its
// log-normalised expression. Rows are ordered gene-major.
func (d *Dataset) Long() []LongRow {
	out := make([]LongRow, 0, d.NGenes()*d.NSamples())
	for i, gene := range d.Genes {
		row := d.LogCounts.RawRowView(i)
		for j, s := range d.Samples {
			out = append(out, LongRow{
				Sample:     s,
				Gene:       gene,
				Expression: row[j],
			})
		}
	}

	return out
}

// LongForGenes is Long restricted to the named genes, in the given gene
// order. Unknown genes are skipped.
func (d *Dataset) LongForGenes(genes []string) []LongRow {
	index := make(map[string]int, len(d.Genes))
	for i, g := range d.Genes {
		index[g] = i
	}

	out := make([]LongRow, 0, len(genes)*d.NSamples())
	for _, gene := range genes {
		i, exists := index[gene]
		if !exists {
			continue
		}
		row := d.LogCounts.RawRowView(i)
		for j, s := range d.Samples {
			out = append(out, LongRow{Sample: s, Gene: gene, Expression: row[j]})
		}
	}

	return out
}

// Stratum is the subset of samples sharing one tumor type. It is built once
// and shared by the model fitter and the figures.
type Stratum struct {
	TumorType string
	*Dataset
}

// Strata partitions the dataset by tumor type. The returned slice follows the
// order of tumorTypes. A tumor type with no samples is an error.
func (d *Dataset) Strata(tumorTypes []string) ([]*Stratum, error) {
	byType := make(map[string][]int)
	for j, s := range d.Samples {
		byType[s.TumorType] = append(byType[s.TumorType], j)
	}

	out := make([]*Stratum, 0, len(tumorTypes))
	seen := make(map[string]struct{}, len(tumorTypes))
	for _, t := range tumorTypes {
		if _, dup := seen[t]; dup {
			return nil, fmt.Errorf("tumor type %s listed more than once", t)
		}
		seen[t] = struct{}{}

		idx := byType[t]
		if len(idx) == 0 {
			return nil, fmt.Errorf("tumor type %s: %w", t, ErrNoSamples)
		}

		out = append(out, &Stratum{
			TumorType: t,
			Dataset:   d.subset(idx),
		})
	}

	return out, nil
}

// TumorTypes returns every tumor type present, sorted.
func (d *Dataset) TumorTypes() []string {
	values := make([]string, len(d.Samples))
	for i, s := range d.Samples {
		values[i] = s.TumorType
	}

	return uniqueSorted(values)
}
