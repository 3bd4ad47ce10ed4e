package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// ParseRunStatus validates a status given by a client.
func ParseRunStatus(s string) (RunStatus, error) {
	switch st := RunStatus(s); st {
	case StatusRunning, StatusCompleted, StatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown run status %q", s)
	}
}

// Run is one execution of a suitability analysis.
type Run struct {
	ID                 uuid.UUID `json:"run_id"`
	AOIName            string    `json:"aoi_name"`
	Engine             string    `json:"engine"`
	Status             RunStatus `json:"status"`
	Trigger            string    `json:"trigger,omitempty"`
	TopPercent         float64   `json:"top_percent"`
	ViabilityThreshold float64   `json:"viability_threshold"`
	PercentileMethod   string    `json:"percentile_method"`

	Weights  map[string]float64 `json:"weights"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
	Outputs  map[string]string  `json:"outputs,omitempty"`
	Warnings []string           `json:"warnings,omitempty"`
	Error    string             `json:"error,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Duration returns the wall time of a finished run.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

type RunFilter struct {
	Status *RunStatus
	Limit  int
	Offset int
}

var ErrInvalidReport = errors.New("invalid report")

// Report is the viability summary of a completed run.
type Report struct {
	ID                  uuid.UUID `json:"report_id"`
	RunID               uuid.UUID `json:"run_id"`
	AOIName             string    `json:"aoi_name"`
	ViabilityPercentage float64   `json:"viability_percentage"`
	TotalAreaKm2        float64   `json:"total_area_km2"`
	SuitableAreaKm2     float64   `json:"suitable_area_km2"`
	TopSitesCount       int       `json:"top_sites_count"`
	WSIMean             float64   `json:"wsi_mean"`
	WSIStd              float64   `json:"wsi_std"`
	WSIMin              float64   `json:"wsi_min"`
	WSIMax              float64   `json:"wsi_max"`
	GeneratedAt         time.Time `json:"generated_at"`
}

// Validate checks the report invariants.
func (r *Report) Validate() error {
	if r.ViabilityPercentage < 0 || r.ViabilityPercentage > 100 {
		return fmt.Errorf("%w: viability percentage %v outside [0,100]", ErrInvalidReport, r.ViabilityPercentage)
	}
	if !(r.TotalAreaKm2 > 0) {
		return fmt.Errorf("%w: total area must be positive", ErrInvalidReport)
	}
	if r.SuitableAreaKm2 < 0 {
		return fmt.Errorf("%w: suitable area cannot be negative", ErrInvalidReport)
	}
	return nil
}

type RunStats struct {
	TotalRuns            int     `json:"total_runs"`
	Running              int     `json:"running"`
	Completed            int     `json:"completed"`
	Failed               int     `json:"failed"`
	AvgViability         float64 `json:"avg_viability_percentage"`
	AvgProcessingSeconds float64 `json:"avg_processing_seconds"`
}

type Store interface {
	CreateRun(ctx context.Context, run *Run) error
	UpdateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)

	SaveReport(ctx context.Context, report *Report) error
	GetReportByRun(ctx context.Context, runID uuid.UUID) (*Report, error)
	ListReports(ctx context.Context, limit int) ([]*Report, error)

	GetStats(ctx context.Context) (*RunStats, error)
	Close() error
}

const defaultListLimit = 50

func limitOr(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
