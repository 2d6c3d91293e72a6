package dataset

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/carbocation/tissuedge"
	"gonum.org/v1/gonum/mat"
)

// BufferSize is the read buffer used for expression tables.
var BufferSize = 4096 * 32

// Files names the three tables that make up a stage directory.
type Files struct {
	Counts    string
	LogCounts string
	ColData   string
}

// DefaultFiles are the table names written by the upstream preparation step.
// Each may also be present with a compression suffix.
var DefaultFiles = Files{
	Counts:    "counts.tsv",
	LogCounts: "logcounts.tsv",
	ColData:   "coldata.tsv",
}

var compressionSuffixes = []string{"", ".gz", ".bz2", ".xz", ".zip"}

// resolve finds name (or name with a known compression suffix) within dir.
func resolve(dir, name string) string {
	for _, suffix := range compressionSuffixes {
		candidate := tissuedge.JoinPath(dir, name+suffix)
		if tissuedge.Exists(candidate) {
			return candidate
		}
	}

	return tissuedge.JoinPath(dir, name)
}

// Load reads a stage directory. client may be nil unless dir is a gs://
// location.
func Load(ctx context.Context, dir string, files Files, client *storage.Client) (*Dataset, error) {
	if files.Counts == "" {
		files.Counts = DefaultFiles.Counts
	}
	if files.LogCounts == "" {
		files.LogCounts = DefaultFiles.LogCounts
	}
	if files.ColData == "" {
		files.ColData = DefaultFiles.ColData
	}

	countsPath := resolve(dir, files.Counts)
	log.Printf("Reading counts from %s\n", countsPath)
	countGenes, countSamples, counts, err := readMatrixFrom(ctx, countsPath, client)
	if err != nil {
		return nil, pfx.Err(err)
	}

	logPath := resolve(dir, files.LogCounts)
	log.Printf("Reading logcounts from %s\n", logPath)
	logGenes, logSamples, logCounts, err := readMatrixFrom(ctx, logPath, client)
	if err != nil {
		return nil, pfx.Err(err)
	}

	if err := sameOrder("gene", countGenes, logGenes); err != nil {
		return nil, pfx.Err(err)
	}
	if err := sameOrder("sample", countSamples, logSamples); err != nil {
		return nil, pfx.Err(err)
	}

	colPath := resolve(dir, files.ColData)
	log.Printf("Reading sample metadata from %s\n", colPath)
	rc, err := tissuedge.Open(ctx, colPath, client)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer rc.Close()

	samples, metaColumns, err := ReadColData(rc)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %w", colPath, err))
	}

	ordered := make([]Sample, 0, len(countSamples))
	for _, id := range countSamples {
		s, exists := samples[id]
		if !exists {
			return nil, pfx.Err(fmt.Errorf("sample %s is in the expression matrix but not in %s", id, colPath))
		}
		ordered = append(ordered, s)
	}

	ds := &Dataset{
		Genes:       countGenes,
		Samples:     ordered,
		MetaColumns: metaColumns,
		Counts:      counts,
		LogCounts:   logCounts,
	}
	ds.TissueSubLevels = uniqueSorted(ds.TissueSubs())

	if err := ds.validate(); err != nil {
		return nil, pfx.Err(err)
	}

	log.Printf("Loaded %d genes across %d samples\n", ds.NGenes(), ds.NSamples())

	return ds, nil
}

func sameOrder(what string, a, b []string) error {
	if len(a) != len(b) {
		return fmt.Errorf("counts have %d %ss but logcounts have %d", len(a), what, len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			return fmt.Errorf("%s %d is %q in counts but %q in logcounts", what, i, a[i], b[i])
		}
	}

	return nil
}

func readMatrixFrom(ctx context.Context, path string, client *storage.Client) ([]string, []string, *mat.Dense, error) {
	rc, err := tissuedge.Open(ctx, path, client)
	if err != nil {
		return nil, nil, nil, err
	}
	defer rc.Close()

	genes, samples, m, err := ReadMatrix(rc)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	return genes, samples, m, nil
}

func newTableReader(r io.Reader) *csv.Reader {
	br := bufio.NewReaderSize(r, BufferSize)

	// Peek without consuming so the delimiter can be sniffed from the header
	// and first rows.
	prefix, _ := br.Peek(BufferSize)
	delim := tissuedge.DetermineDelimiterFromPrefix(prefix)

	cr := csv.NewReader(br)
	cr.Comma = delim
	cr.Comment = '#'
	cr.ReuseRecord = true

	return cr
}

// ReadMatrix parses a gene-by-sample table. The first header cell names the
// gene column; the remaining header cells are sample IDs.
func ReadMatrix(r io.Reader) (genes, samples []string, m *mat.Dense, err error) {
	cr := newTableReader(r)

	header, err := cr.Read()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("Header parsing error: %w", err)
	}
	if len(header) < 2 {
		return nil, nil, nil, fmt.Errorf("header has %d columns; need a gene column and at least one sample", len(header))
	}
	samples = append([]string(nil), header[1:]...)

	data := make([]float64, 0, 1024*len(samples))
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, nil, nil, err
		}

		if len(row) != len(header) {
			return nil, nil, nil, fmt.Errorf("line %d has %d columns but the header has %d", line, len(row), len(header))
		}

		genes = append(genes, row[0])
		for j, cell := range row[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("line %d, sample %s: %w", line, samples[j], err)
			}
			data = append(data, v)
		}
	}

	if len(genes) == 0 {
		return nil, nil, nil, fmt.Errorf("no genes")
	}

	return genes, samples, mat.NewDense(len(genes), len(samples), data), nil
}

// ReadColData parses the per-sample metadata table into a map keyed by sample
// ID. The order of columns other than the required ones is returned so that
// long views preserve it.
func ReadColData(r io.Reader) (map[string]Sample, []string, error) {
	cr := newTableReader(r)
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("Header parsing error: %w", err)
	}

	cols := make(map[string]int)
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}

	for _, required := range []string{ColumnSample, ColumnTumorType, ColumnTissueSub} {
		if _, exists := cols[required]; !exists {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}

	var metaColumns []string
	for _, name := range header {
		name = strings.TrimSpace(name)
		if name == ColumnSample || name == ColumnTumorType || name == ColumnTissueSub {
			continue
		}
		metaColumns = append(metaColumns, name)
	}

	out := make(map[string]Sample)
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, nil, err
		}

		if len(row) != len(header) {
			return nil, nil, fmt.Errorf("line %d has %d columns but the header has %d", line, len(row), len(header))
		}

		s := Sample{
			ID:        row[cols[ColumnSample]],
			TumorType: row[cols[ColumnTumorType]],
			TissueSub: row[cols[ColumnTissueSub]],
			Meta:      make(map[string]string, len(metaColumns)),
		}
		for _, name := range metaColumns {
			s.Meta[name] = row[cols[name]]
		}

		if _, exists := out[s.ID]; exists {
			return nil, nil, fmt.Errorf("line %d: duplicate sample %s", line, s.ID)
		}
		out[s.ID] = s
	}

	return out, metaColumns, nil
}
