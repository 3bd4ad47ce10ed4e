package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps run history in a local file. It backs the CLI and
// single-node deployments without a Postgres database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at path. Use ":memory:"
// for a throwaway store.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	// one writer; also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS vento_runs (
	run_id              TEXT PRIMARY KEY,
	aoi_name            TEXT NOT NULL,
	engine              TEXT NOT NULL,
	status              TEXT NOT NULL,
	triggered_by        TEXT NOT NULL DEFAULT '',
	top_percent         REAL NOT NULL,
	viability_threshold REAL NOT NULL,
	percentile_method   TEXT NOT NULL,
	weights             TEXT,
	metrics             TEXT,
	outputs             TEXT,
	warnings            TEXT,
	error               TEXT NOT NULL DEFAULT '',
	started_at          TEXT NOT NULL,
	completed_at        TEXT
);
CREATE INDEX IF NOT EXISTS vento_runs_started_at_idx ON vento_runs (started_at DESC);

CREATE TABLE IF NOT EXISTS vento_reports (
	report_id            TEXT PRIMARY KEY,
	run_id               TEXT NOT NULL REFERENCES vento_runs (run_id) ON DELETE CASCADE,
	aoi_name             TEXT NOT NULL,
	viability_percentage REAL NOT NULL,
	total_area_km2       REAL NOT NULL,
	suitable_area_km2    REAL NOT NULL,
	top_sites_count      INTEGER NOT NULL,
	wsi_mean             REAL NOT NULL,
	wsi_std              REAL NOT NULL,
	wsi_min              REAL NOT NULL,
	wsi_max              REAL NOT NULL,
	generated_at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS vento_reports_run_id_idx ON vento_reports (run_id, generated_at DESC);
`

// Migrate creates the tables when they do not exist yet.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(sqliteTime) }

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	ensureRunID(run)
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	j := encodeRunJSON(run)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vento_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.AOIName, run.Engine, string(run.Status), run.Trigger,
		run.TopPercent, run.ViabilityThreshold, run.PercentileMethod,
		string(j.weights), string(j.metrics), string(j.outputs), string(j.warnings), run.Error,
		formatTime(run.StartedAt), formatTimePtr(run.CompletedAt),
	)
	return err
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *Run) error {
	j := encodeRunJSON(run)
	res, err := s.db.ExecContext(ctx, `
		UPDATE vento_runs SET
			status = ?, metrics = ?, outputs = ?, warnings = ?,
			error = ?, completed_at = ?
		WHERE run_id = ?`,
		string(run.Status), string(j.metrics), string(j.outputs), string(j.warnings),
		run.Error, formatTimePtr(run.CompletedAt), run.ID.String(),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM vento_runs WHERE run_id = ?`, id.String())
	r, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM vento_runs WHERE 1=1`
	args := []interface{}{}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	query += " ORDER BY started_at DESC LIMIT ? OFFSET ?"
	args = append(args, limitOr(filter.Limit), max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) SaveReport(ctx context.Context, report *Report) error {
	if err := report.Validate(); err != nil {
		return err
	}
	ensureReportID(report)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vento_reports (`+reportColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID.String(), report.RunID.String(), report.AOIName, report.ViabilityPercentage,
		report.TotalAreaKm2, report.SuitableAreaKm2, report.TopSitesCount,
		report.WSIMean, report.WSIStd, report.WSIMin, report.WSIMax, formatTime(report.GeneratedAt),
	)
	return err
}

func (s *SQLiteStore) GetReportByRun(ctx context.Context, runID uuid.UUID) (*Report, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+reportColumns+` FROM vento_reports
		WHERE run_id = ? ORDER BY generated_at DESC LIMIT 1`, runID.String())
	r, err := scanSQLiteReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *SQLiteStore) ListReports(ctx context.Context, limit int) ([]*Report, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reportColumns+` FROM vento_reports
		ORDER BY generated_at DESC LIMIT ?`, limitOr(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*Report
	for rows.Next() {
		r, err := scanSQLiteReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func (s *SQLiteStore) GetStats(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'running' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(CASE WHEN status = 'completed' THEN json_extract(metrics, '$.viability_percentage') END), 0),
			COALESCE(AVG(CASE WHEN status = 'completed' AND completed_at IS NOT NULL
				THEN (julianday(completed_at) - julianday(started_at)) * 86400.0 END), 0)
		FROM vento_runs`,
	).Scan(&stats.TotalRuns, &stats.Running, &stats.Completed, &stats.Failed, &stats.AvgViability, &stats.AvgProcessingSeconds)
	return stats, err
}

func scanSQLiteRun(row rowScanner) (*Run, error) {
	r := &Run{}
	var id, status, started string
	var completed sql.NullString
	var weights, metrics, outputs, warnings sql.NullString
	if err := row.Scan(
		&id, &r.AOIName, &r.Engine, &status, &r.Trigger,
		&r.TopPercent, &r.ViabilityThreshold, &r.PercentileMethod,
		&weights, &metrics, &outputs, &warnings, &r.Error,
		&started, &completed,
	); err != nil {
		return nil, err
	}

	var err error
	if r.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse run id: %w", err)
	}
	r.Status = RunStatus(status)
	if r.StartedAt, err = time.Parse(sqliteTime, started); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if completed.Valid {
		t, err := time.Parse(sqliteTime, completed.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		r.CompletedAt = &t
	}
	runJSON{
		weights:  nullBytes(weights),
		metrics:  nullBytes(metrics),
		outputs:  nullBytes(outputs),
		warnings: nullBytes(warnings),
	}.decodeInto(r)
	return r, nil
}

func scanSQLiteReport(row rowScanner) (*Report, error) {
	r := &Report{}
	var id, runID, generated string
	if err := row.Scan(
		&id, &runID, &r.AOIName, &r.ViabilityPercentage,
		&r.TotalAreaKm2, &r.SuitableAreaKm2, &r.TopSitesCount,
		&r.WSIMean, &r.WSIStd, &r.WSIMin, &r.WSIMax, &generated,
	); err != nil {
		return nil, err
	}
	var err error
	if r.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse report id: %w", err)
	}
	if r.RunID, err = uuid.Parse(runID); err != nil {
		return nil, fmt.Errorf("parse run id: %w", err)
	}
	if r.GeneratedAt, err = time.Parse(sqliteTime, generated); err != nil {
		return nil, fmt.Errorf("parse generated_at: %w", err)
	}
	return r, nil
}

func nullBytes(s sql.NullString) []byte {
	if !s.Valid {
		return nil
	}
	return []byte(s.String)
}
