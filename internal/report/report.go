// Package report turns a finished WSI raster into the flat metric mapping and
// the viability report stored with each run.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/linasofi13/wind-gis-tech-validation/internal/grid"
	"github.com/linasofi13/wind-gis-tech-validation/internal/raster"
	"github.com/linasofi13/wind-gis-tech-validation/internal/scoring"
	"github.com/linasofi13/wind-gis-tech-validation/internal/store"
)

// Metric keys.
const (
	KeyProcessingTime      = "processing_time_seconds"
	KeyMemoryUsage         = "memory_usage_mb"
	KeyTotalCells          = "total_cells"
	KeyValidCells          = "valid_cells"
	KeyNoDataPercentage    = "nodata_percentage"
	KeyWSIMean             = "wsi_mean"
	KeyWSIStd              = "wsi_std"
	KeyWSIMin              = "wsi_min"
	KeyWSIMax              = "wsi_max"
	KeyViabilityPercentage = "viability_percentage"
	KeyThreshold           = "top_percent_threshold"
	KeyTopSitesCount       = "top_sites_count"
	KeyTotalArea           = "total_area_km2"
	KeySuitableArea        = "suitable_area_km2"
)

const defaultAOIName = "Unnamed AOI"

// Input is everything a report is computed from.
type Input struct {
	RunID              uuid.UUID
	AOIName            string
	WSI                *raster.Raster
	Mask               *grid.Mask
	Threshold          float64
	ViabilityThreshold float64
	ProcessingTime     time.Duration
	MemoryMB           float64
	GeneratedAt        time.Time
}

// Metrics computes the flat metric mapping of a run.
func Metrics(in Input) map[string]float64 {
	s := grid.Summarize(in.WSI.Grid)
	cellArea := in.WSI.CellAreaKm2()
	sites := 0
	if in.Mask != nil {
		sites = in.Mask.Count()
	}

	return map[string]float64{
		KeyProcessingTime:      in.ProcessingTime.Seconds(),
		KeyMemoryUsage:         in.MemoryMB,
		KeyTotalCells:          float64(s.Cells),
		KeyValidCells:          float64(s.Valid),
		KeyNoDataPercentage:    s.NoDataPercentage(),
		KeyWSIMean:             s.Mean,
		KeyWSIStd:              s.Std,
		KeyWSIMin:              s.Min,
		KeyWSIMax:              s.Max,
		KeyViabilityPercentage: scoring.ViabilityPercentage(in.WSI.Grid, in.ViabilityThreshold),
		KeyThreshold:           in.Threshold,
		KeyTopSitesCount:       float64(sites),
		KeyTotalArea:           float64(s.Valid) * cellArea,
		KeySuitableArea:        float64(sites) * cellArea,
	}
}

// Build computes the metrics and the validated viability report.
func Build(in Input) (*store.Report, map[string]float64, error) {
	if in.WSI == nil || in.WSI.Grid.Empty() {
		return nil, nil, fmt.Errorf("%w: no WSI raster", store.ErrInvalidReport)
	}
	m := Metrics(in)

	name := in.AOIName
	if name == "" {
		name = defaultAOIName
	}
	at := in.GeneratedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	r := &store.Report{
		ID:                  uuid.New(),
		RunID:               in.RunID,
		AOIName:             name,
		ViabilityPercentage: m[KeyViabilityPercentage],
		TotalAreaKm2:        m[KeyTotalArea],
		SuitableAreaKm2:     m[KeySuitableArea],
		TopSitesCount:       int(m[KeyTopSitesCount]),
		WSIMean:             m[KeyWSIMean],
		WSIStd:              m[KeyWSIStd],
		WSIMin:              m[KeyWSIMin],
		WSIMax:              m[KeyWSIMax],
		GeneratedAt:         at,
	}
	if err := r.Validate(); err != nil {
		return nil, nil, err
	}
	return r, m, nil
}

// Document is the JSON file written next to the run outputs.
type Document struct {
	Report        *store.Report          `json:"report"`
	Metrics       map[string]float64     `json:"metrics"`
	Contributions []scoring.Contribution `json:"contributions,omitempty"`
	Warnings      []string               `json:"warnings,omitempty"`
	Outputs       map[string]string      `json:"outputs,omitempty"`
}

// WriteJSON writes the document as indented JSON, creating parent
// directories as needed.
func WriteJSON(path string, doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// ReadJSON loads a document written by WriteJSON.
func ReadJSON(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	return &doc, nil
}
