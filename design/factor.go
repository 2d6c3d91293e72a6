// Package design builds categorical factors and the no-intercept one-hot
// model matrices fitted by package glm.
package design

import (
	"errors"
	"fmt"
	"sort"
)

var ErrReferenceAbsent = errors.New("reference level is not among the factor levels")

// Factor is an ordered set of levels plus one level code per observation.
type Factor struct {
	levels []string
	codes  []int
}

// NewFactor builds a factor whose levels are the sorted unique values.
func NewFactor(values []string) *Factor {
	set := make(map[string]struct{})
	for _, v := range values {
		set[v] = struct{}{}
	}
	levels := make([]string, 0, len(set))
	for v := range set {
		levels = append(levels, v)
	}
	sort.Strings(levels)

	f, _ := NewFactorWithLevels(values, levels)
	return f
}

// NewFactorWithLevels builds a factor over an explicit level order. Levels
// with no observations are kept until DropUnused is called.
func NewFactorWithLevels(values, levels []string) (*Factor, error) {
	index := make(map[string]int, len(levels))
	for i, l := range levels {
		if _, dup := index[l]; dup {
			return nil, fmt.Errorf("duplicate level %q", l)
		}
		index[l] = i
	}

	codes := make([]int, len(values))
	for i, v := range values {
		code, exists := index[v]
		if !exists {
			return nil, fmt.Errorf("value %q is not a level", v)
		}
		codes[i] = code
	}

	return &Factor{levels: append([]string(nil), levels...), codes: codes}, nil
}

// Levels returns a copy of the level order.
func (f *Factor) Levels() []string { return append([]string(nil), f.levels...) }

// Len is the number of observations.
func (f *Factor) Len() int { return len(f.codes) }

// Code returns the level index of observation i.
func (f *Factor) Code(i int) int { return f.codes[i] }

// Value returns the level label of observation i.
func (f *Factor) Value(i int) string { return f.levels[f.codes[i]] }

// Counts returns the number of observations at each level.
func (f *Factor) Counts() []int {
	out := make([]int, len(f.levels))
	for _, c := range f.codes {
		out[c]++
	}

	return out
}

// DropUnused returns a factor without levels that have no observations. The
// relative order of the remaining levels is unchanged.
func (f *Factor) DropUnused() *Factor {
	counts := f.Counts()

	remap := make([]int, len(f.levels))
	levels := make([]string, 0, len(f.levels))
	for i, l := range f.levels {
		if counts[i] == 0 {
			remap[i] = -1
			continue
		}
		remap[i] = len(levels)
		levels = append(levels, l)
	}

	codes := make([]int, len(f.codes))
	for i, c := range f.codes {
		codes[i] = remap[c]
	}

	return &Factor{levels: levels, codes: codes}
}

// Relevel returns a factor whose first level is ref, with the other levels in
// their existing order.
func (f *Factor) Relevel(ref string) (*Factor, error) {
	pos := -1
	for i, l := range f.levels {
		if l == ref {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil, fmt.Errorf("%w: %q not in %v", ErrReferenceAbsent, ref, f.levels)
	}

	levels := make([]string, 0, len(f.levels))
	levels = append(levels, ref)
	remap := make([]int, len(f.levels))
	for i, l := range f.levels {
		if i == pos {
			remap[i] = 0
			continue
		}
		remap[i] = len(levels)
		levels = append(levels, l)
	}

	codes := make([]int, len(f.codes))
	for i, c := range f.codes {
		codes[i] = remap[c]
	}

	return &Factor{levels: levels, codes: codes}, nil
}
