package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/linasofi13/wind-gis-tech-validation/internal/config"
	"github.com/linasofi13/wind-gis-tech-validation/internal/pipeline"
	"github.com/linasofi13/wind-gis-tech-validation/internal/raster"
	"github.com/linasofi13/wind-gis-tech-validation/internal/report"
	"github.com/linasofi13/wind-gis-tech-validation/internal/scoring"
	"github.com/linasofi13/wind-gis-tech-validation/internal/store"
)

func runComputeWSI(ctx context.Context, args []string) error {
	var cf commonFlags
	fs := newFlagSet("compute-wsi", &cf)
	outDir := fs.String("o", "", "output directory (overrides storage.output_dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, logger, err := loadConfig(cf)
	if err != nil {
		return err
	}
	if *outDir != "" {
		cfg.Storage.OutputDir = *outDir
	}

	a, err := newApp(ctx, cfg, nil, prometheus.NewRegistry(), logger)
	if err != nil {
		return err
	}
	defer a.Close()

	an, err := analysisFrom(cfg, "cli")
	if err != nil {
		return err
	}
	res, err := a.runner.Run(ctx, an)
	if err != nil {
		return err
	}

	seconds := res.Metrics[report.KeyProcessingTime]
	memMB := res.Metrics[report.KeyMemoryUsage]
	fmt.Printf("Run %s completed\n", res.Run.ID)
	fmt.Printf("  processing time:  %s\n", (time.Duration(seconds * float64(time.Second))).Round(time.Millisecond))
	fmt.Printf("  memory usage:     %s\n", humanize.IBytes(uint64(memMB*1024*1024)))
	fmt.Printf("  valid cells:      %s\n", humanize.Comma(int64(res.Metrics[report.KeyValidCells])))
	fmt.Printf("  threshold:        %.4f\n", res.Threshold)
	fmt.Printf("  top sites:        %s\n", humanize.Comma(int64(res.Report.TopSitesCount)))
	fmt.Printf("  viability:        %.2f%%\n", res.Report.ViabilityPercentage)
	for _, w := range res.Warnings {
		fmt.Printf("  warning:          %s\n", w)
	}
	fmt.Println("Outputs:")
	for _, key := range []string{pipeline.OutputWSIRaster, pipeline.OutputCandidateSites, pipeline.OutputReport} {
		fmt.Printf("  %-16s  %s\n", key, res.Outputs[key])
	}
	return nil
}

func runGenerateReport(ctx context.Context, args []string) error {
	var cf commonFlags
	fs := newFlagSet("generate-report", &cf)
	runFlag := fs.String("run", "", "run id (defaults to the latest completed run)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, logger, err := loadConfig(cf)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, nil, prometheus.NewRegistry(), logger)
	if err != nil {
		return err
	}
	defer a.Close()

	run, err := findRun(ctx, a.store, *runFlag)
	if err != nil {
		return err
	}
	wsiPath := run.Outputs[pipeline.OutputWSIRaster]
	if wsiPath == "" {
		return fmt.Errorf("run %s has no WSI raster", run.ID)
	}

	an, err := analysisFrom(cfg, "cli")
	if err != nil {
		return err
	}
	an.AOIName = run.AOIName
	an.TopPercent = run.TopPercent
	an.ViabilityThreshold = run.ViabilityThreshold
	if an.Percentile, err = scoring.ParsePercentileMethod(run.PercentileMethod); err != nil {
		return err
	}

	rep, err := a.runner.Report(ctx, run.ID, an, wsiPath)
	if err != nil {
		return err
	}
	fmt.Printf("Report %s for run %s\n", rep.ID, run.ID)
	fmt.Printf("  AOI:              %s\n", rep.AOIName)
	fmt.Printf("  viability:        %.2f%%\n", rep.ViabilityPercentage)
	fmt.Printf("  top sites:        %s\n", humanize.Comma(int64(rep.TopSitesCount)))
	fmt.Printf("  total area:       %s km²\n", humanize.FormatFloat("#,###.##", rep.TotalAreaKm2))
	fmt.Printf("  suitable area:    %s km²\n", humanize.FormatFloat("#,###.##", rep.SuitableAreaKm2))
	fmt.Printf("  WSI mean ± std:   %.4f ± %.4f\n", rep.WSIMean, rep.WSIStd)
	return nil
}

func findRun(ctx context.Context, s store.Store, id string) (*store.Run, error) {
	if id != "" {
		runID, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid run id %q", id)
		}
		run, err := s.GetRun(ctx, runID)
		if err != nil {
			return nil, err
		}
		if run == nil {
			return nil, fmt.Errorf("run %s not found", runID)
		}
		return run, nil
	}
	completed := store.StatusCompleted
	runs, err := s.ListRuns(ctx, store.RunFilter{Status: &completed, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, errors.New("no completed runs; run compute-wsi first")
	}
	return runs[0], nil
}

func runValidateConfig(_ context.Context, args []string) error {
	var cf commonFlags
	fs := newFlagSet("validate-config", &cf)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(cf.configPath)
	if err != nil {
		return err
	}

	var problems []error
	if err := cfg.Validate(); err != nil {
		problems = append(problems, err)
	}
	if _, err := raster.Open(cfg.Analysis.Engine, raster.Options{DataDir: cfg.Storage.DataDir}); err != nil {
		problems = append(problems, err)
	}
	for _, l := range cfg.Analysis.Layers {
		if raster.IsRemote(l.Source) {
			continue
		}
		path := l.Source
		if cfg.Storage.DataDir != "" && !filepath.IsAbs(path) {
			path = filepath.Join(cfg.Storage.DataDir, path)
		}
		if _, err := os.Stat(path); err != nil {
			problems = append(problems, fmt.Errorf("layer %s: %w", l.Name, err))
		}
	}

	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Printf("  ✗ %v\n", p)
		}
		return fmt.Errorf("%d problem(s) found", len(problems))
	}
	fmt.Printf("Configuration OK: %d layers, engine %q, top %.0f%%\n",
		len(cfg.Analysis.Layers), engineName(cfg.Analysis.Engine), cfg.Analysis.TopPercent*100)
	return nil
}

func engineName(kind string) string {
	if kind == "" {
		return raster.EngineNative
	}
	return kind
}

func runInfo(_ context.Context, args []string) error {
	fs := newFlagSet("info", &commonFlags{})
	if err := fs.Parse(args); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "vento %s (%s, %s/%s)\n\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintln(tw, "ENGINE\tAVAILABLE\tDETAIL")
	for _, e := range raster.Engines() {
		fmt.Fprintf(tw, "%s\t%t\t%s\n", e.Name, e.Available, e.Detail)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "COMMAND\tDESCRIPTION")
	for _, c := range commands {
		fmt.Fprintf(tw, "%s\t%s\n", c.name, c.usage)
	}
	fmt.Fprintln(tw)
	if vm, err := mem.VirtualMemory(); err == nil {
		fmt.Fprintf(tw, "memory\t%s total, %s available\n", humanize.IBytes(vm.Total), humanize.IBytes(vm.Available))
	}
	if n, err := cpu.Counts(true); err == nil {
		fmt.Fprintf(tw, "cpus\t%d logical\n", n)
	}
	return tw.Flush()
}

func runVersion(context.Context, []string) error {
	fmt.Println("vento", version)
	return nil
}
