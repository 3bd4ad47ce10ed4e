package hermes

import "time"

// RunRequestEvent asks a serving instance to run its configured analysis.
// Zero fields keep the configured values.
type RunRequestEvent struct {
	TopPercent         float64 `json:"top_percent,omitempty"`
	ViabilityThreshold float64 `json:"viability_threshold,omitempty"`
	Source             string  `json:"source,omitempty"`
}

type RunStartedEvent struct {
	RunID     string             `json:"run_id"`
	AOIName   string             `json:"aoi_name"`
	Engine    string             `json:"engine"`
	Weights   map[string]float64 `json:"weights"`
	StartedAt time.Time          `json:"started_at"`
}

type RunCompletedEvent struct {
	RunID               string            `json:"run_id"`
	ViabilityPercentage float64           `json:"viability_percentage"`
	TopSitesCount       int               `json:"top_sites_count"`
	Threshold           float64           `json:"top_percent_threshold"`
	DurationMs          int64             `json:"duration_ms"`
	Outputs             map[string]string `json:"outputs,omitempty"`
}

type RunFailedEvent struct {
	RunID string `json:"run_id"`
	Error string `json:"error"`
}

// RunWarningEvent carries a data quality finding that did not stop the run.
type RunWarningEvent struct {
	RunID   string `json:"run_id"`
	Layer   string `json:"layer"`
	Message string `json:"message"`
}

type StatsEvent struct {
	TotalRuns    int       `json:"total_runs"`
	Completed    int       `json:"completed"`
	Failed       int       `json:"failed"`
	AvgViability float64   `json:"avg_viability_percentage"`
	Timestamp    time.Time `json:"timestamp"`
}
