package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/linasofi13/wind-gis-tech-validation/internal/api"
	"github.com/linasofi13/wind-gis-tech-validation/internal/config"
	"github.com/linasofi13/wind-gis-tech-validation/internal/hermes"
	"github.com/linasofi13/wind-gis-tech-validation/internal/pipeline"
	"github.com/linasofi13/wind-gis-tech-validation/internal/scheduler"
)

func runServe(ctx context.Context, args []string) error {
	var cf commonFlags
	fs := newFlagSet("serve", &cf)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, logger, err := loadConfig(cf)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Hermes (optional)
	var hermesClient hermes.Client
	if cfg.Hermes.URL != "" {
		hc, err := hermes.NewNATSClient(ctx, hermes.Options{
			URL:    cfg.Hermes.URL,
			Stream: cfg.Hermes.Stream,
			MaxAge: time.Duration(cfg.Hermes.RetentionHours) * time.Hour,
			Queue:  cfg.Hermes.Queue,
		}, logger)
		if err != nil {
			logger.Warn("failed to connect to hermes, running without events", "error", err)
		} else {
			hermesClient = hc
			defer hc.Close()
			logger.Info("connected to hermes")
		}
	}

	a, err := newApp(ctx, cfg, hermesClient, prometheus.DefaultRegisterer, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	initial, err := analysisFrom(cfg, "")
	if err != nil {
		return err
	}
	var current atomic.Pointer[pipeline.Analysis]
	current.Store(&initial)
	analysis := func() pipeline.Analysis { return *current.Load() }

	if cf.configPath != "" {
		go func() {
			err := config.Watch(ctx, cf.configPath, logger, func(c *config.Config) {
				next, err := pipeline.AnalysisFromConfig(c.Analysis)
				if err != nil {
					logger.Warn("reloaded analysis rejected", "error", err)
					return
				}
				current.Store(&next)
				logger.Info("analysis reloaded", "aoi", next.AOIName, "top_percent", next.TopPercent)
			})
			if err != nil {
				logger.Warn("config watcher stopped", "error", err)
			}
		}()
	}

	// trigger runs an analysis outside the HTTP API and publishes updated
	// run statistics.
	trigger := func(ctx context.Context, an pipeline.Analysis) error {
		_, err := a.runner.Run(ctx, an)
		publishStats(ctx, a, hermesClient)
		return err
	}

	if hermesClient != nil {
		err := hermesClient.Subscribe(hermes.SubjectRunRequest, func(subject string, data []byte) {
			var req hermes.RunRequestEvent
			if err := json.Unmarshal(data, &req); err != nil {
				logger.Warn("invalid run request", "subject", subject, "error", err)
				return
			}
			an, err := analysis().WithOverrides(req.TopPercent, req.ViabilityThreshold)
			if err != nil {
				logger.Warn("run request rejected", "error", err)
				return
			}
			an.Trigger = "hermes"
			if req.Source != "" {
				an.Trigger = "hermes:" + req.Source
			}
			go func() {
				if err := trigger(ctx, an); err != nil {
					logger.Error("requested run failed", "error", err)
				}
			}()
		})
		if err != nil {
			logger.Warn("failed to subscribe to run requests", "error", err)
		}
	}

	if cfg.Scheduler.Enabled {
		interval := cfg.SchedulerInterval()
		sched := scheduler.New(interval, interval, func(ctx context.Context) error {
			an := analysis()
			an.Trigger = "scheduler"
			return trigger(ctx, an)
		}, logger)
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
		defer sched.Stop()
		logger.Info("scheduler started", "interval", interval, "next_run", sched.NextRun())
	}

	// API server
	router := api.NewRouter(a.store, a.runner, analysis, cfg.Server.AdminToken, logger)
	apiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Metrics server
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:           api.NewMetricsRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("API server starting", "port", cfg.Server.Port, "engine", a.engine.Name())
		if err := apiServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("API server error", "error", err)
			cancel()
		}
	}()

	go func() {
		logger.Info("metrics server starting", "port", cfg.Server.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)

	logger.Info("shutdown complete")
	return nil
}

func publishStats(ctx context.Context, a *app, h hermes.Client) {
	if h == nil {
		return
	}
	stats, err := a.store.GetStats(ctx)
	if err != nil {
		a.logger.Warn("failed to load run stats", "error", err)
		return
	}
	err = h.Publish(hermes.SubjectRunStats, hermes.StatsEvent{
		TotalRuns:    stats.TotalRuns,
		Completed:    stats.Completed,
		Failed:       stats.Failed,
		AvgViability: stats.AvgViability,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		a.logger.Warn("failed to publish stats", "error", err)
	}
}
