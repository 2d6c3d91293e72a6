// Package dge runs differential expression tests over fitted models and
// reads and writes the resulting table.
package dge

// Row is one gene's result for one contrast within one tumor type.
type Row struct {
	Gene      string  `csv:"gene" db:"gene" bigquery:"gene"`
	LogFC     float64 `csv:"logFC" db:"logFC" bigquery:"logFC"`
	LogCPM    float64 `csv:"logCPM" db:"logCPM" bigquery:"logCPM"`
	F         float64 `csv:"F" db:"F" bigquery:"F"`
	PValue    float64 `csv:"PValue" db:"PValue" bigquery:"PValue"`
	FDR       float64 `csv:"FDR" db:"FDR" bigquery:"FDR"`
	Contrast  string  `csv:"contrast" db:"contrast" bigquery:"contrast"`
	TumorType string  `csv:"TumorType" db:"TumorType" bigquery:"TumorType"`
}

// Table is the combined result of every test, ordered by tumor type, then
// contrast, then ascending p-value.
type Table []Row

// Filter returns the rows of one tumor type and contrast, in table order.
func (t Table) Filter(tumorType, contrast string) Table {
	var out Table
	for _, r := range t {
		if r.TumorType == tumorType && r.Contrast == contrast {
			out = append(out, r)
		}
	}

	return out
}

// TumorTypes lists the tumor types in order of first appearance.
func (t Table) TumorTypes() []string {
	var out []string
	seen := make(map[string]struct{})
	for _, r := range t {
		if _, exists := seen[r.TumorType]; exists {
			continue
		}
		seen[r.TumorType] = struct{}{}
		out = append(out, r.TumorType)
	}

	return out
}

// Contrasts lists the contrasts tested in a tumor type, in table order.
func (t Table) Contrasts(tumorType string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, r := range t {
		if r.TumorType != tumorType {
			continue
		}
		if _, exists := seen[r.Contrast]; exists {
			continue
		}
		seen[r.Contrast] = struct{}{}
		out = append(out, r.Contrast)
	}

	return out
}
