// tissuedge fits per-tumor-type quasi-likelihood negative binomial models
// over tissue subtypes, tests the configured contrasts, and writes the
// result table and figures.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"cloud.google.com/go/storage"
	"github.com/carbocation/tissuedge"
	_ "github.com/carbocation/tissuedge/compileinfoprint"
	"github.com/carbocation/tissuedge/config"
	"github.com/carbocation/tissuedge/contrast"
	"github.com/carbocation/tissuedge/dataset"
	"github.com/carbocation/tissuedge/dge"
	"github.com/carbocation/tissuedge/glm"
	"github.com/carbocation/tissuedge/plot"
)

func main() {
	var configPath, outputs string
	var workers int
	var noPlots bool
	flag.StringVar(&configPath, "config", "", "Path to the JSON analysis configuration.")
	flag.StringVar(&outputs, "outputs", "", "(Optional) Output directory. Overrides 'outputs' in the configuration.")
	flag.IntVar(&workers, "workers", 0, "(Optional) Number of tumor types to fit concurrently. Overrides 'workers' in the configuration.")
	flag.BoolVar(&noPlots, "noplots", false, "(Optional) Skip figure rendering.")
	flag.Parse()

	if configPath == "" {
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := config.ParseJSONConfigFromPath(configPath)
	if err != nil {
		log.Fatalln(err)
	}
	if outputs != "" {
		cfg.Outputs = tissuedge.ExpandHome(outputs)
	}
	if workers > 0 {
		cfg.Workers = workers
	}

	if err := run(context.Background(), cfg, noPlots); err != nil {
		log.Fatalln(err)
	}

	log.Println("Quitting")
}

func run(ctx context.Context, cfg config.JSONConfig, noPlots bool) error {
	var client *storage.Client
	if tissuedge.IsGoogleStoragePath(cfg.InputDir()) {
		var err error
		client, err = storage.NewClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()
	}

	data, err := dataset.Load(ctx, cfg.InputDir(), cfg.Files(), client)
	if err != nil {
		return err
	}

	if len(cfg.ExcludeSubtypes) > 0 {
		data = data.Exclude(cfg.ExcludeSubtypes)
		log.Printf("Excluding %v leaves %d samples\n", cfg.ExcludeSubtypes, data.NSamples())
	}

	tumorTypes := cfg.Strata(data.TumorTypes())
	strata, err := data.Strata(tumorTypes)
	if err != nil {
		return err
	}

	refs, err := cfg.References(tumorTypes)
	if err != nil {
		return err
	}

	fits, err := glm.FitModels(strata, refs, cfg.GLMOptions(), cfg.Workers)
	if err != nil {
		return err
	}

	contrasts, err := contrast.Build(fits, cfg.Contrasts)
	if err != nil {
		return err
	}

	table, err := dge.TestAll(fits, contrasts, true)
	if err != nil {
		return err
	}

	if !noPlots {
		levels := make(map[string][]string, len(tumorTypes))
		for _, t := range tumorTypes {
			levels[t], _ = fits.Columns(t)
		}
		if err := plot.RenderAll(cfg.FigureDir(), table, strata, levels, cfg.Policies()); err != nil {
			return err
		}
	}

	if err := dge.Write(cfg.ResultPath(), table); err != nil {
		return err
	}
	log.Printf("Wrote %d rows to %s\n", len(table), cfg.ResultPath())

	return nil
}
