package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/carbocation/tissuedge/glm"
	"github.com/carbocation/tissuedge/plot"
)

const example = `{
	"outputs": "/data/project/outputs",
	"exclude_subtypes": ["Blood"],
	"tumor_types": ["LUAD", "BRCA"],
	"reference": {"LUAD": "Normal"},
	"default_reference": "Adjacent",
	"contrasts": [
		{"tumor_type": "LUAD", "name": "PvN", "reference": ["Normal"], "target": ["Primary"]},
		{"tumor_type": "BRCA", "name": "TvA", "reference": ["Adjacent"], "target": ["Primary", "Met"]}
	],
	"prior_count": 0.5,
	"abundance_trend": false,
	"volcano": {"contrast": "PvN", "fdr": 0.001},
	"heatmap": {"top_n": 25, "logfc": 0},
	"workers": 3
}`

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "analysis.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	return path
}

func TestParseJSONConfigFromPath(t *testing.T) {
	c, err := ParseJSONConfigFromPath(writeConfig(t, example))
	if err != nil {
		t.Fatal(err)
	}

	if got := c.InputDir(); got != "/data/project/outputs/01-sce" {
		t.Fatalf("input dir %s", got)
	}
	if got := c.ResultPath(); got != "/data/project/outputs/02-dge.tsv.gz" {
		t.Fatalf("result path %s", got)
	}
	if got := c.FigureDir(); got != "/data/project/outputs/figures" {
		t.Fatalf("figure dir %s", got)
	}
	if len(c.Contrasts) != 2 || len(c.Contrasts[1].Target) != 2 {
		t.Fatalf("contrasts %+v", c.Contrasts)
	}
	if c.Workers != 3 {
		t.Fatalf("workers %d", c.Workers)
	}

	refs, err := c.References(c.Strata(nil))
	if err != nil {
		t.Fatal(err)
	}
	if refs["LUAD"] != "Normal" || refs["BRCA"] != "Adjacent" {
		t.Fatalf("references %v", refs)
	}
}

func TestGLMOptions(t *testing.T) {
	c, err := ParseJSONConfigFromPath(writeConfig(t, example))
	if err != nil {
		t.Fatal(err)
	}

	opts := c.GLMOptions()
	if opts.PriorCount != 0.5 {
		t.Fatalf("prior count %v", opts.PriorCount)
	}
	if opts.AbundanceTrend {
		t.Fatalf("abundance trend should be disabled")
	}
	if opts.PriorDF != glm.DefaultOptions.PriorDF {
		t.Fatalf("unset prior df changed to %v", opts.PriorDF)
	}
}

func TestPolicies(t *testing.T) {
	c, err := ParseJSONConfigFromPath(writeConfig(t, example))
	if err != nil {
		t.Fatal(err)
	}

	p := c.Policies()
	if p.Volcano.Contrast != "PvN" || p.Volcano.FDR != 0.001 || p.Volcano.LogFC != plot.DefaultVolcano.LogFC || p.Volcano.TopN != plot.DefaultVolcano.TopN {
		t.Fatalf("volcano policy %+v", p.Volcano)
	}
	if p.Heatmap.TopN != 25 || p.Heatmap.FDR != plot.DefaultHeatmap.FDR {
		t.Fatalf("heatmap policy %+v", p.Heatmap)
	}
	if p.Boxplot != plot.DefaultBoxplot {
		t.Fatalf("boxplot policy %+v", p.Boxplot)
	}
}

func TestStrataDefault(t *testing.T) {
	var c JSONConfig
	got := c.Strata([]string{"LUAD", "BRCA", "COAD"})
	if len(got) != 3 || got[0] != "BRCA" || got[2] != "LUAD" {
		t.Fatalf("strata %v", got)
	}
}

func TestParseErrors(t *testing.T) {
	for _, body := range []string{
		`{"outputs": "/x"`,
		`{"outputs": "/x", "contrasts": []}`,
		`{"outputs": "/x", "contrasts": [{"name": "a"}]}`,
		`{"outputs": "/x", "unknown_field": 1, "contrasts": [{"tumor_type": "A", "name": "a"}]}`,
		`{"contrasts": [{"tumor_type": "A", "name": "a"}]}`,
		`{"outputs": "/x", "prior_count": 0, "contrasts": [{"tumor_type": "A", "name": "a"}]}`,
	} {
		if _, err := ParseJSONConfigFromPath(writeConfig(t, body)); err == nil {
			t.Fatalf("expected an error for %s", body)
		}
	}

	if _, err := ParseJSONConfigFromPath(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}

func TestMissingReference(t *testing.T) {
	c := JSONConfig{Reference: map[string]string{"LUAD": "Normal"}}
	if _, err := c.References([]string{"LUAD", "BRCA"}); err == nil {
		t.Fatalf("expected an error for a tumor type without a reference")
	}
}
