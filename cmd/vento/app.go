package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"

	"github.com/linasofi13/wind-gis-tech-validation/internal/config"
	"github.com/linasofi13/wind-gis-tech-validation/internal/hermes"
	"github.com/linasofi13/wind-gis-tech-validation/internal/metrics"
	"github.com/linasofi13/wind-gis-tech-validation/internal/pipeline"
	"github.com/linasofi13/wind-gis-tech-validation/internal/raster"
	"github.com/linasofi13/wind-gis-tech-validation/internal/store"
)

// app holds the components shared by the commands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   store.Store
	engine  raster.Engine
	metrics *metrics.Metrics
	runner  *pipeline.Runner
}

// newApp opens the store and engine and builds the runner. h may be nil.
func newApp(ctx context.Context, cfg *config.Config, h hermes.Client, reg prometheus.Registerer, logger *slog.Logger) (*app, error) {
	m := metrics.New(reg)

	remote := raster.NewRemoteSource(nil, cfg.RemoteTimeout(), raster.BackoffConfig{
		MaxRetries:      cfg.Remote.MaxRetries,
		InitialInterval: time.Duration(cfg.Remote.InitialIntervalMs) * time.Millisecond,
		MaxInterval:     time.Duration(cfg.Remote.MaxIntervalMs) * time.Millisecond,
	}, logger)
	remote.OnStateChange(func(name string, to gobreaker.State) {
		m.SetCircuitBreakerState(name, float64(to))
	})

	engine, err := raster.Open(cfg.Analysis.Engine, raster.Options{
		DataDir: cfg.Storage.DataDir,
		Remote:  remote,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	s, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   s,
		engine:  engine,
		metrics: m,
		runner:  pipeline.NewRunner(s, engine, h, m, cfg.Storage.OutputDir, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", "error", err)
	}
}

// openStore connects to Postgres when a database URL is configured and falls
// back to the local SQLite history otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.Database.URL != "" {
		db, err := store.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		logger.Info("connected to database")
		return db, nil
	}

	path := cfg.Database.SQLitePath
	if path == "" {
		path = filepath.Join(cfg.Storage.OutputDir, "vento.db")
	}
	db, err := store.NewSQLiteStore(ctx, path)
	if err != nil {
		return nil, err
	}
	logger.Debug("using sqlite run history", "path", path)
	return db, nil
}

func analysisFrom(cfg *config.Config, trigger string) (pipeline.Analysis, error) {
	a, err := pipeline.AnalysisFromConfig(cfg.Analysis)
	if err != nil {
		return a, err
	}
	a.Trigger = trigger
	return a, nil
}
