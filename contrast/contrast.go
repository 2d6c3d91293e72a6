// Package contrast turns named groups of design columns into weight vectors
// over a fitted model's coefficients.
package contrast

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownColumn  = errors.New("column not found in design")
	ErrEmptyGroup     = errors.New("contrast group is empty")
	ErrOverlap        = errors.New("column appears in both contrast groups")
	ErrDuplicateName  = errors.New("contrast name is already defined for this tumor type")
	ErrUnknownStratum = errors.New("no fitted model for tumor type")
)

// Definition names a contrast between the average of the Reference columns
// and the average of the Target columns of one tumor type's design.
type Definition struct {
	TumorType string   `json:"tumor_type"`
	Name      string   `json:"name"`
	Reference []string `json:"reference"`
	Target    []string `json:"target"`
}

// Contrast is a resolved Definition. Weights align with the design columns.
type Contrast struct {
	Definition
	Weights []float64
}

// Columns reports the design column names of a tumor type's fit.
type Columns interface {
	Columns(tumorType string) ([]string, bool)
}

// Vector returns weights over columns that are -1/len(ref) on every
// reference column, +1/len(target) on every target column and 0 elsewhere.
// Names must match exactly.
func Vector(columns, ref, target []string) ([]float64, error) {
	if len(ref) == 0 {
		return nil, fmt.Errorf("reference: %w", ErrEmptyGroup)
	}
	if len(target) == 0 {
		return nil, fmt.Errorf("target: %w", ErrEmptyGroup)
	}

	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}

	w := make([]float64, len(columns))
	assigned := make(map[string]struct{}, len(ref)+len(target))
	for _, group := range []struct {
		names  []string
		weight float64
	}{
		{ref, -1 / float64(len(ref))},
		{target, 1 / float64(len(target))},
	} {
		for _, name := range group.names {
			i, exists := index[name]
			if !exists {
				return nil, fmt.Errorf("%q (columns are %v): %w", name, columns, ErrUnknownColumn)
			}
			if _, dup := assigned[name]; dup {
				return nil, fmt.Errorf("%q: %w", name, ErrOverlap)
			}
			assigned[name] = struct{}{}
			w[i] = group.weight
		}
	}

	return w, nil
}

// Set holds the resolved contrasts of every tumor type, each in definition
// order.
type Set struct {
	TumorTypes []string
	byType     map[string][]Contrast
}

// For returns the contrasts of a tumor type in definition order.
func (s *Set) For(tumorType string) []Contrast {
	return s.byType[tumorType]
}

// Lookup returns one named contrast.
func (s *Set) Lookup(tumorType, name string) (Contrast, bool) {
	for _, c := range s.byType[tumorType] {
		if c.Name == name {
			return c, true
		}
	}

	return Contrast{}, false
}

// Build resolves every definition against the design columns of its tumor
// type. Tumor types appear in order of their first definition.
func Build(fits Columns, defs []Definition) (*Set, error) {
	out := &Set{byType: make(map[string][]Contrast)}

	for _, def := range defs {
		columns, exists := fits.Columns(def.TumorType)
		if !exists {
			return nil, fmt.Errorf("contrast %s: tumor type %s: %w", def.Name, def.TumorType, ErrUnknownStratum)
		}
		if def.Name == "" {
			return nil, fmt.Errorf("tumor type %s: contrast has no name", def.TumorType)
		}

		if _, seen := out.byType[def.TumorType]; !seen {
			out.TumorTypes = append(out.TumorTypes, def.TumorType)
		}
		for _, c := range out.byType[def.TumorType] {
			if c.Name == def.Name {
				return nil, fmt.Errorf("contrast %s in %s: %w", def.Name, def.TumorType, ErrDuplicateName)
			}
		}

		w, err := Vector(columns, def.Reference, def.Target)
		if err != nil {
			return nil, fmt.Errorf("contrast %s in %s: %w", def.Name, def.TumorType, err)
		}

		out.byType[def.TumorType] = append(out.byType[def.TumorType], Contrast{Definition: def, Weights: w})
	}

	return out, nil
}
