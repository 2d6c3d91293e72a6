package design

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ModelMatrix is a samples × coefficients design with named columns.
type ModelMatrix struct {
	*mat.Dense
	Columns []string

	// groups[i] is the column holding the single 1 in row i when the design
	// is a one-way layout, otherwise nil.
	groups []int
}

// NewModelMatrix one-hot encodes a factor without an intercept: one column
// per level, named after the level, in level order.
func NewModelMatrix(f *Factor) (*ModelMatrix, error) {
	if f.Len() == 0 {
		return nil, fmt.Errorf("cannot build a design with no observations")
	}
	if len(f.levels) == 0 {
		return nil, fmt.Errorf("cannot build a design with no levels")
	}

	for i, n := range f.Counts() {
		if n == 0 {
			return nil, fmt.Errorf("level %q has no observations; drop unused levels first", f.levels[i])
		}
	}

	x := mat.NewDense(f.Len(), len(f.levels), nil)
	groups := make([]int, f.Len())
	for i := 0; i < f.Len(); i++ {
		x.Set(i, f.codes[i], 1)
		groups[i] = f.codes[i]
	}

	return &ModelMatrix{Dense: x, Columns: f.Levels(), groups: groups}, nil
}

// FromDense wraps an arbitrary design. One-way structure is detected so that
// exact group-mean fitting can be used when it applies.
func FromDense(x *mat.Dense, columns []string) *ModelMatrix {
	m := &ModelMatrix{Dense: x, Columns: columns}
	m.groups = detectGroups(x)

	return m
}

func detectGroups(x *mat.Dense) []int {
	r, c := x.Dims()
	groups := make([]int, r)
	seen := make([]bool, c)
	for i := 0; i < r; i++ {
		groups[i] = -1
		for j, v := range x.RawRowView(i) {
			switch v {
			case 0:
			case 1:
				if groups[i] >= 0 {
					return nil
				}
				groups[i] = j
				seen[j] = true
			default:
				return nil
			}
		}
		if groups[i] < 0 {
			return nil
		}
	}
	for _, s := range seen {
		if !s {
			return nil
		}
	}

	return groups
}

// Groups returns the column index of every row when the design is a one-way
// layout (each row has a single 1 and zeros elsewhere).
func (m *ModelMatrix) Groups() ([]int, bool) {
	return m.groups, m.groups != nil
}

// NSamples is the number of rows.
func (m *ModelMatrix) NSamples() int {
	r, _ := m.Dims()
	return r
}

// NCoef is the number of columns.
func (m *ModelMatrix) NCoef() int {
	_, c := m.Dims()
	return c
}

// ColumnIndex returns the position of a column by exact name, or -1.
func (m *ModelMatrix) ColumnIndex(name string) int {
	for i, c := range m.Columns {
		if c == name {
			return i
		}
	}

	return -1
}

// Build applies the stratum recipe: drop unused levels, make ref the first
// level, then one-hot encode.
func Build(values, levels []string, ref string) (*Factor, *ModelMatrix, error) {
	f, err := NewFactorWithLevels(values, levels)
	if err != nil {
		return nil, nil, err
	}

	f, err = f.DropUnused().Relevel(ref)
	if err != nil {
		return nil, nil, err
	}

	m, err := NewModelMatrix(f)
	if err != nil {
		return nil, nil, err
	}

	return f, m, nil
}
