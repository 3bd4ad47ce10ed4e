package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS vento_runs (
	run_id              UUID PRIMARY KEY,
	aoi_name            TEXT NOT NULL,
	engine              TEXT NOT NULL,
	status              TEXT NOT NULL,
	triggered_by        TEXT NOT NULL DEFAULT '',
	top_percent         DOUBLE PRECISION NOT NULL,
	viability_threshold DOUBLE PRECISION NOT NULL,
	percentile_method   TEXT NOT NULL,
	weights             JSONB,
	metrics             JSONB,
	outputs             JSONB,
	warnings            JSONB,
	error               TEXT NOT NULL DEFAULT '',
	started_at          TIMESTAMPTZ NOT NULL,
	completed_at        TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS vento_runs_started_at_idx ON vento_runs (started_at DESC);

CREATE TABLE IF NOT EXISTS vento_reports (
	report_id            UUID PRIMARY KEY,
	run_id               UUID NOT NULL REFERENCES vento_runs (run_id) ON DELETE CASCADE,
	aoi_name             TEXT NOT NULL,
	viability_percentage DOUBLE PRECISION NOT NULL,
	total_area_km2       DOUBLE PRECISION NOT NULL,
	suitable_area_km2    DOUBLE PRECISION NOT NULL,
	top_sites_count      INTEGER NOT NULL,
	wsi_mean             DOUBLE PRECISION NOT NULL,
	wsi_std              DOUBLE PRECISION NOT NULL,
	wsi_min              DOUBLE PRECISION NOT NULL,
	wsi_max              DOUBLE PRECISION NOT NULL,
	generated_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS vento_reports_run_id_idx ON vento_reports (run_id, generated_at DESC);
`

// Migrate creates the tables when they do not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const runColumns = `run_id, aoi_name, engine, status, triggered_by,
	top_percent, viability_threshold, percentile_method,
	weights, metrics, outputs, warnings, error,
	started_at, completed_at`

func (s *PostgresStore) CreateRun(ctx context.Context, run *Run) error {
	ensureRunID(run)
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	j := encodeRunJSON(run)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vento_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		run.ID, run.AOIName, run.Engine, run.Status, run.Trigger,
		run.TopPercent, run.ViabilityThreshold, run.PercentileMethod,
		j.weights, j.metrics, j.outputs, j.warnings, run.Error,
		run.StartedAt, run.CompletedAt,
	)
	return err
}

func (s *PostgresStore) UpdateRun(ctx context.Context, run *Run) error {
	j := encodeRunJSON(run)
	tag, err := s.pool.Exec(ctx, `
		UPDATE vento_runs SET
			status = $2, metrics = $3, outputs = $4, warnings = $5,
			error = $6, completed_at = $7
		WHERE run_id = $1`,
		run.ID, run.Status, j.metrics, j.outputs, j.warnings, run.Error, run.CompletedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM vento_runs WHERE run_id = $1`, id)
	r, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM vento_runs WHERE 1=1`
	args := []interface{}{}
	n := 0

	if filter.Status != nil {
		n++
		query += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, string(*filter.Status))
	}
	query += " ORDER BY started_at DESC"
	n++
	query += fmt.Sprintf(" LIMIT $%d", n)
	args = append(args, limitOr(filter.Limit))
	if filter.Offset > 0 {
		n++
		query += fmt.Sprintf(" OFFSET $%d", n)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

const reportColumns = `report_id, run_id, aoi_name, viability_percentage,
	total_area_km2, suitable_area_km2, top_sites_count,
	wsi_mean, wsi_std, wsi_min, wsi_max, generated_at`

func (s *PostgresStore) SaveReport(ctx context.Context, report *Report) error {
	if err := report.Validate(); err != nil {
		return err
	}
	ensureReportID(report)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vento_reports (`+reportColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		report.ID, report.RunID, report.AOIName, report.ViabilityPercentage,
		report.TotalAreaKm2, report.SuitableAreaKm2, report.TopSitesCount,
		report.WSIMean, report.WSIStd, report.WSIMin, report.WSIMax, report.GeneratedAt,
	)
	return err
}

func (s *PostgresStore) GetReportByRun(ctx context.Context, runID uuid.UUID) (*Report, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+reportColumns+` FROM vento_reports
		WHERE run_id = $1 ORDER BY generated_at DESC LIMIT 1`, runID)
	r, err := scanPostgresReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *PostgresStore) ListReports(ctx context.Context, limit int) ([]*Report, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+reportColumns+` FROM vento_reports
		ORDER BY generated_at DESC LIMIT $1`, limitOr(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*Report
	for rows.Next() {
		r, err := scanPostgresReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func (s *PostgresStore) GetStats(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{}
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'running' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG((metrics->>'viability_percentage')::float8) FILTER (WHERE status = 'completed'), 0),
			COALESCE(AVG(EXTRACT(EPOCH FROM (completed_at - started_at))) FILTER (WHERE status = 'completed' AND completed_at IS NOT NULL), 0)
		FROM vento_runs`,
	).Scan(&stats.TotalRuns, &stats.Running, &stats.Completed, &stats.Failed, &stats.AvgViability, &stats.AvgProcessingSeconds)
	return stats, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPostgresRun(row rowScanner) (*Run, error) {
	r := &Run{}
	var j runJSON
	if err := row.Scan(
		&r.ID, &r.AOIName, &r.Engine, &r.Status, &r.Trigger,
		&r.TopPercent, &r.ViabilityThreshold, &r.PercentileMethod,
		&j.weights, &j.metrics, &j.outputs, &j.warnings, &r.Error,
		&r.StartedAt, &r.CompletedAt,
	); err != nil {
		return nil, err
	}
	j.decodeInto(r)
	return r, nil
}

func scanPostgresReport(row rowScanner) (*Report, error) {
	r := &Report{}
	if err := row.Scan(
		&r.ID, &r.RunID, &r.AOIName, &r.ViabilityPercentage,
		&r.TotalAreaKm2, &r.SuitableAreaKm2, &r.TopSitesCount,
		&r.WSIMean, &r.WSIStd, &r.WSIMin, &r.WSIMax, &r.GeneratedAt,
	); err != nil {
		return nil, err
	}
	return r, nil
}
