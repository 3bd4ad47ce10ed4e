package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/linasofi13/wind-gis-tech-validation/internal/pipeline"
	"github.com/linasofi13/wind-gis-tech-validation/internal/scoring"
	"github.com/linasofi13/wind-gis-tech-validation/internal/store"
)

// AnalysisRunner executes an analysis and records it.
type AnalysisRunner interface {
	Run(ctx context.Context, a pipeline.Analysis) (*pipeline.Result, error)
}

// AnalysisSource returns the analysis currently configured. It is read on
// every request so reloaded configuration takes effect.
type AnalysisSource func() pipeline.Analysis

var validate = validator.New()

type RunsHandler struct {
	store    store.Store
	runner   AnalysisRunner
	analysis AnalysisSource
}

func NewRunsHandler(s store.Store, r AnalysisRunner, a AnalysisSource) *RunsHandler {
	return &RunsHandler{store: s, runner: r, analysis: a}
}

type CreateRunRequest struct {
	AOIName            string  `json:"aoi_name,omitempty" validate:"max=200"`
	TopPercent         float64 `json:"top_percent,omitempty" validate:"omitempty,gt=0,lte=1"`
	ViabilityThreshold float64 `json:"viability_threshold,omitempty" validate:"omitempty,gt=0,lte=1"`
}

type RunResponse struct {
	Run       *store.Run             `json:"run"`
	Report    *store.Report          `json:"report"`
	Threshold float64                `json:"threshold"`
	Factors   []scoring.Contribution `json:"contributions"`
}

func (h *RunsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil || h.analysis == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "analysis runner not configured"})
		return
	}

	var req CreateRunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	a, err := h.analysis().WithOverrides(req.TopPercent, req.ViabilityThreshold)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.AOIName != "" {
		a.AOIName = req.AOIName
	}
	a.Trigger = "api"

	res, err := h.runner.Run(r.Context(), a)
	if err != nil {
		writeJSON(w, runErrorStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, RunResponse{
		Run:       res.Run,
		Report:    res.Report,
		Threshold: res.Threshold,
		Factors:   res.Contributions,
	})
}

// runErrorStatus maps run failures to HTTP status codes. Bad input data is
// unprocessable; anything else is a server error.
func runErrorStatus(err error) int {
	switch {
	case errors.Is(err, scoring.ErrInvalidRange),
		errors.Is(err, scoring.ErrInvalidWeight),
		errors.Is(err, scoring.ErrInvalidCriterion):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrResultInvalid),
		errors.Is(err, scoring.ErrShapeMismatch),
		errors.Is(err, scoring.ErrEmptyInput):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{}
	if s := r.URL.Query().Get("status"); s != "" {
		st, err := store.ParseRunStatus(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		filter.Status = &st
	}
	filter.Limit = queryInt(r, "limit")
	filter.Offset = queryInt(r, "offset")

	runs, err := h.store.ListRuns(r.Context(), filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid run id"})
		return
	}
	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if run == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *RunsHandler) Report(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid run id"})
		return
	}
	rep, err := h.store.GetReportByRun(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if rep == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "report not found"})
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *RunsHandler) Reports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.store.ListReports(r.Context(), queryInt(r, "limit"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if reports == nil {
		reports = []*store.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *RunsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// queryInt parses a non-negative integer query parameter; anything else is 0.
func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
