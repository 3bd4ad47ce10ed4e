// Package pipeline runs a suitability analysis end to end: it loads the
// criterion rasters through a storage engine, scores them, selects candidate
// sites, writes the outputs and records the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/linasofi13/wind-gis-tech-validation/internal/grid"
	"github.com/linasofi13/wind-gis-tech-validation/internal/hermes"
	"github.com/linasofi13/wind-gis-tech-validation/internal/metrics"
	"github.com/linasofi13/wind-gis-tech-validation/internal/raster"
	"github.com/linasofi13/wind-gis-tech-validation/internal/report"
	"github.com/linasofi13/wind-gis-tech-validation/internal/scoring"
	"github.com/linasofi13/wind-gis-tech-validation/internal/store"
)

// ErrResultInvalid is returned when the computed WSI fails validation.
// Nothing is written in that case.
var ErrResultInvalid = errors.New("wsi result invalid")

// Output keys and the layout below a run directory.
const (
	OutputWSIRaster      = "wsi_raster"
	OutputCandidateSites = "candidate_sites"
	OutputReport         = "report"

	wsiRasterPath      = "rasters/wsi.wgrid.zst"
	candidateSitesPath = "vectors/candidate_sites.geojson"
	reportPath         = "reports/report.json"
)

// Result is everything a completed run produced.
type Result struct {
	Run           *store.Run
	Report        *store.Report
	WSI           *raster.Raster
	Mask          *grid.Mask
	Threshold     float64
	Contributions []scoring.Contribution
	Warnings      []string
	Outputs       map[string]string
	Metrics       map[string]float64
}

type Runner struct {
	store     store.Store
	engine    raster.Engine
	hermes    hermes.Client
	metrics   *metrics.Metrics
	outputDir string
	logger    *slog.Logger

	// one run at a time; runs share the output tree and the memory monitor
	mu sync.Mutex
}

// NewRunner creates a Runner. The hermes client and metrics may be nil.
func NewRunner(s store.Store, e raster.Engine, h hermes.Client, m *metrics.Metrics, outputDir string, logger *slog.Logger) *Runner {
	if abs, err := filepath.Abs(outputDir); err == nil {
		outputDir = abs
	}
	return &Runner{
		store:     s,
		engine:    e,
		hermes:    h,
		metrics:   m,
		outputDir: outputDir,
		logger:    logger,
	}
}

func (r *Runner) Engine() raster.Engine { return r.engine }

// Run executes the analysis and records it. A failed run is stored with
// status failed and its error is returned.
func (r *Runner) Run(ctx context.Context, a Analysis) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now().UTC()
	run := &store.Run{
		ID:                 uuid.New(),
		AOIName:            a.AOIName,
		Engine:             r.engine.Name(),
		Status:             store.StatusRunning,
		Trigger:            a.Trigger,
		TopPercent:         a.TopPercent,
		ViabilityThreshold: a.ViabilityThreshold,
		PercentileMethod:   string(a.Percentile),
		Weights:            a.Scheme.Map(),
		StartedAt:          start,
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	logger := r.logger.With("run_id", run.ID)
	logger.Info("run started", "aoi", a.AOIName, "engine", run.Engine, "criteria", len(a.Criteria))
	r.publish(hermes.SubjectRunStarted(run.ID.String()), hermes.RunStartedEvent{
		RunID:     run.ID.String(),
		AOIName:   a.AOIName,
		Engine:    run.Engine,
		Weights:   run.Weights,
		StartedAt: start,
	})

	mon, err := report.NewMonitor()
	if err != nil {
		logger.Debug("memory monitor unavailable", "error", err)
	} else {
		mon.Start(ctx, 250*time.Millisecond)
	}

	res, err := r.execute(ctx, a, run, mon, logger)
	if err != nil {
		if mon != nil {
			mon.Stop()
		}
		r.fail(ctx, run, err, logger)
		return nil, err
	}
	return res, nil
}

func (r *Runner) execute(ctx context.Context, a Analysis, run *store.Run, mon *report.Monitor, logger *slog.Logger) (*Result, error) {
	stage := time.Now()
	rasters, err := r.loadLayers(ctx, a)
	if err != nil {
		return nil, err
	}
	ref := rasters[a.Criteria[0].Name()]
	if a.ResolutionM > 0 && ref.CellSize != a.ResolutionM {
		logger.Warn("input resolution differs from configured resolution", "cell_size", ref.CellSize, "resolution_m", a.ResolutionM)
	}
	r.metrics.ObserveStage("load", time.Since(stage))

	stage = time.Now()
	warnings := r.checkInputs(a, rasters, run, logger)
	r.metrics.ObserveStage("validate", time.Since(stage))

	stage = time.Now()
	raw := make(map[string]*grid.Grid, len(rasters))
	for name, rs := range rasters {
		raw[name] = rs.Grid
	}
	layers, err := scoring.NormalizeLayers(raw, a.Criteria)
	if err != nil {
		return nil, err
	}
	scored, err := scoring.NewScorer(a.Scheme, logger).Score(layers)
	if err != nil {
		return nil, err
	}
	if out := scoring.ValidateWSIResult(scored.WSI); !out.OK {
		return nil, fmt.Errorf("%w: %s", ErrResultInvalid, out.Message)
	}
	wsi, err := ref.WithGrid(scored.WSI)
	if err != nil {
		return nil, err
	}
	r.metrics.ObserveStage("score", time.Since(stage))

	stage = time.Now()
	mask, threshold, err := scoring.TopSitesMaskWith(scored.WSI, a.TopPercent, a.Percentile)
	if err != nil {
		return nil, err
	}
	r.metrics.ObserveStage("select", time.Since(stage))

	stage = time.Now()
	dir := filepath.Join(r.outputDir, run.ID.String())
	outputs := map[string]string{
		OutputWSIRaster:      filepath.Join(dir, wsiRasterPath),
		OutputCandidateSites: filepath.Join(dir, candidateSitesPath),
		OutputReport:         filepath.Join(dir, reportPath),
	}
	if err := r.engine.SaveGrid(ctx, wsi, outputs[OutputWSIRaster]); err != nil {
		return nil, fmt.Errorf("saving wsi raster: %w", err)
	}
	features, err := r.engine.RasterToVector(ctx, mask, wsi, outputs[OutputCandidateSites])
	if err != nil {
		return nil, fmt.Errorf("saving candidate sites: %w", err)
	}
	r.metrics.ObserveStage("save", time.Since(stage))

	var memMB float64
	if mon != nil {
		memMB = mon.Stop().EndMB
	}
	rep, m, err := report.Build(report.Input{
		RunID:              run.ID,
		AOIName:            a.AOIName,
		WSI:                wsi,
		Mask:               mask,
		Threshold:          threshold,
		ViabilityThreshold: a.ViabilityThreshold,
		ProcessingTime:     time.Since(run.StartedAt),
		MemoryMB:           memMB,
	})
	if err != nil {
		return nil, err
	}
	doc := &report.Document{
		Report:        rep,
		Metrics:       m,
		Contributions: scored.Contributions,
		Warnings:      warnings,
		Outputs:       outputs,
	}
	if err := report.WriteJSON(outputs[OutputReport], doc); err != nil {
		return nil, err
	}
	if err := r.store.SaveReport(ctx, rep); err != nil {
		return nil, fmt.Errorf("saving report: %w", err)
	}

	done := time.Now().UTC()
	run.Status = store.StatusCompleted
	run.Metrics = m
	run.Outputs = outputs
	run.Warnings = warnings
	run.CompletedAt = &done
	if err := r.store.UpdateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("updating run: %w", err)
	}

	logger.Info("run completed",
		"duration", run.Duration(),
		"viability_percentage", rep.ViabilityPercentage,
		"top_sites", rep.TopSitesCount,
		"features", features,
		"threshold", threshold,
	)
	r.metrics.RunCompleted(run.Duration(), rep.ViabilityPercentage, rep.TopSitesCount)
	r.publish(hermes.SubjectRunCompleted(run.ID.String()), hermes.RunCompletedEvent{
		RunID:               run.ID.String(),
		ViabilityPercentage: rep.ViabilityPercentage,
		TopSitesCount:       rep.TopSitesCount,
		Threshold:           threshold,
		DurationMs:          run.Duration().Milliseconds(),
		Outputs:             outputs,
	})

	return &Result{
		Run:           run,
		Report:        rep,
		WSI:           wsi,
		Mask:          mask,
		Threshold:     threshold,
		Contributions: scored.Contributions,
		Warnings:      warnings,
		Outputs:       outputs,
		Metrics:       m,
	}, nil
}

// loadLayers reads every criterion in parallel, applying its derivation, and
// checks that all rasters share one geometry.
func (r *Runner) loadLayers(ctx context.Context, a Analysis) (map[string]*raster.Raster, error) {
	if len(a.Criteria) == 0 {
		return nil, fmt.Errorf("%w: no criteria", scoring.ErrEmptyInput)
	}

	loaded := make([]*raster.Raster, len(a.Criteria))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range a.Criteria {
		i, c := i, c
		g.Go(func() error {
			rs, err := r.loadLayer(gctx, c, a)
			if err != nil {
				return fmt.Errorf("layer %s: %w", c.Name(), err)
			}
			loaded[i] = rs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*raster.Raster, len(loaded))
	first := loaded[0]
	for i, c := range a.Criteria {
		if !loaded[i].SameGeometry(first) {
			return nil, fmt.Errorf("%w: %s is %s, %s is %s", scoring.ErrShapeMismatch,
				c.Name(), loaded[i].Grid.Shape(), a.Criteria[0].Name(), first.Grid.Shape())
		}
		out[c.Name()] = loaded[i]
	}
	return out, nil
}

// loadLayer clips after derivation so slope kernels and distances see the
// cells around the AOI.
func (r *Runner) loadLayer(ctx context.Context, c scoring.Criterion, a Analysis) (*raster.Raster, error) {
	rs, err := r.engine.LoadGrid(ctx, c.SourceRef(), raster.Extent{})
	if err != nil {
		return nil, err
	}
	if rs, err = r.engine.Reproject(ctx, rs, a.CRS); err != nil {
		return nil, err
	}
	switch c.Derive() {
	case scoring.DeriveSlope:
		rs, err = r.engine.DeriveSlope(ctx, rs)
	case scoring.DeriveDistance:
		rs, err = r.engine.DeriveDistance(ctx, rs)
	}
	if err != nil {
		return nil, err
	}
	if a.Extent.IsZero() {
		return rs, nil
	}
	return r.engine.Clip(ctx, rs, a.Extent)
}

// checkInputs runs the data quality checks. Findings never stop a run.
func (r *Runner) checkInputs(a Analysis, rasters map[string]*raster.Raster, run *store.Run, logger *slog.Logger) []string {
	var warnings []string
	for _, c := range a.Criteria {
		var out scoring.Outcome
		switch c.Name() {
		case scoring.CriterionWind:
			out = scoring.ValidateWindData(rasters[c.Name()].Grid)
		case scoring.CriterionSlope:
			out = scoring.ValidateSlopeData(rasters[c.Name()].Grid)
		default:
			continue
		}
		if out.OK {
			continue
		}
		logger.Warn("input data check failed", "layer", c.Name(), "message", out.Message)
		warnings = append(warnings, c.Name()+": "+out.Message)
		r.metrics.ValidationWarning(c.Name())
		r.publish(hermes.SubjectRunWarning(run.ID.String()), hermes.RunWarningEvent{
			RunID:   run.ID.String(),
			Layer:   c.Name(),
			Message: out.Message,
		})
	}
	return warnings
}

func (r *Runner) fail(ctx context.Context, run *store.Run, cause error, logger *slog.Logger) {
	done := time.Now().UTC()
	run.Status = store.StatusFailed
	run.Error = cause.Error()
	run.CompletedAt = &done

	// the caller's context may be the reason for the failure
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.store.UpdateRun(uctx, run); err != nil {
		logger.Error("failed to mark run failed", "error", err)
	}

	logger.Error("run failed", "error", cause)
	r.metrics.RunFailed()
	r.publish(hermes.SubjectRunFailed(run.ID.String()), hermes.RunFailedEvent{
		RunID: run.ID.String(),
		Error: cause.Error(),
	})
}

// Report recomputes the viability report of a finished run from its saved
// WSI raster and stores it.
func (r *Runner) Report(ctx context.Context, runID uuid.UUID, a Analysis, wsiPath string) (*store.Report, error) {
	start := time.Now()
	wsi, err := r.engine.LoadGrid(ctx, wsiPath, raster.Extent{})
	if err != nil {
		return nil, fmt.Errorf("loading wsi raster: %w", err)
	}
	if out := scoring.ValidateWSIResult(wsi.Grid); !out.OK {
		return nil, fmt.Errorf("%w: %s", ErrResultInvalid, out.Message)
	}
	mask, threshold, err := scoring.TopSitesMaskWith(wsi.Grid, a.TopPercent, a.Percentile)
	if err != nil {
		return nil, err
	}

	var memMB float64
	if mon, err := report.NewMonitor(); err == nil {
		memMB, _ = mon.CurrentMB()
	}
	rep, m, err := report.Build(report.Input{
		RunID:              runID,
		AOIName:            a.AOIName,
		WSI:                wsi,
		Mask:               mask,
		Threshold:          threshold,
		ViabilityThreshold: a.ViabilityThreshold,
		ProcessingTime:     time.Since(start),
		MemoryMB:           memMB,
	})
	if err != nil {
		return nil, err
	}

	if !raster.IsRemote(wsiPath) && strings.HasSuffix(filepath.ToSlash(wsiPath), wsiRasterPath) {
		dir := filepath.Dir(filepath.Dir(wsiPath))
		doc := &report.Document{Report: rep, Metrics: m}
		if err := report.WriteJSON(filepath.Join(dir, reportPath), doc); err != nil {
			return nil, err
		}
	}
	if err := r.store.SaveReport(ctx, rep); err != nil {
		return nil, fmt.Errorf("saving report: %w", err)
	}
	r.logger.Info("report generated", "run_id", runID, "viability_percentage", rep.ViabilityPercentage, "top_sites", rep.TopSitesCount)
	return rep, nil
}

func (r *Runner) publish(subject string, data interface{}) {
	if r.hermes == nil {
		return
	}
	if err := r.hermes.Publish(subject, data); err != nil {
		r.logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}
