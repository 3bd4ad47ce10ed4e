package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sort"

	"github.com/linasofi13/wind-gis-tech-validation/internal/grid"
	"github.com/linasofi13/wind-gis-tech-validation/internal/scoring"
)

// ScoreHandler evaluates small inline layer sets without touching storage.
type ScoreHandler struct {
	logger *slog.Logger
}

func NewScoreHandler(logger *slog.Logger) *ScoreHandler {
	return &ScoreHandler{logger: logger}
}

type LayerSpec struct {
	Rows          [][]*float64 `json:"rows" validate:"required,min=1"`
	Benefit       *bool        `json:"benefit,omitempty"`
	Normalization string       `json:"normalization,omitempty" validate:"omitempty,oneof=minmax zscore"`
}

// ScoreRequest carries raw layers as rows of values; null marks no-data.
// Layers named wind default to benefit criteria, all others to cost.
type ScoreRequest struct {
	Layers           map[string]LayerSpec `json:"layers" validate:"required,min=1,dive"`
	Weights          map[string]float64   `json:"weights" validate:"required,min=1"`
	TopPercent       float64              `json:"top_percent,omitempty" validate:"omitempty,gt=0,lte=1"`
	Viability        float64              `json:"viability_threshold,omitempty" validate:"omitempty,gt=0,lte=1"`
	PercentileMethod string               `json:"percentile_method,omitempty"`
}

type ScoreResponse struct {
	WSI                 [][]*float64           `json:"wsi"`
	Mask                [][]bool               `json:"mask"`
	Threshold           float64                `json:"threshold"`
	TopSitesCount       int                    `json:"top_sites_count"`
	ViabilityPercentage float64                `json:"viability_percentage"`
	Summary             grid.Summary           `json:"summary"`
	Contributions       []scoring.Contribution `json:"contributions"`
	Validation          scoring.Outcome        `json:"validation"`
}

const (
	defaultTopPercent = 0.15
	defaultViability  = 0.5
)

func (h *ScoreHandler) Score(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	resp, err := h.evaluate(req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, scoring.ErrShapeMismatch) || errors.Is(err, grid.ErrBadShape) {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ScoreHandler) evaluate(req ScoreRequest) (*ScoreResponse, error) {
	scheme, err := scoring.SchemeFromMap(req.Weights)
	if err != nil {
		return nil, err
	}
	method, err := scoring.ParsePercentileMethod(req.PercentileMethod)
	if err != nil {
		return nil, err
	}
	topPercent := req.TopPercent
	if topPercent == 0 {
		topPercent = defaultTopPercent
	}
	viability := req.Viability
	if viability == 0 {
		viability = defaultViability
	}

	names := make([]string, 0, len(req.Layers))
	for name := range req.Layers {
		names = append(names, name)
	}
	sort.Strings(names)

	raw := make(map[string]*grid.Grid, len(names))
	criteria := make([]scoring.Criterion, 0, len(names))
	for _, name := range names {
		spec := req.Layers[name]
		g, err := toGrid(spec.Rows)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", name, err)
		}
		benefit := name == scoring.CriterionWind
		if spec.Benefit != nil {
			benefit = *spec.Benefit
		}
		norm, err := scoring.ParseNormalizationMethod(spec.Normalization)
		if err != nil {
			return nil, err
		}
		weight, _ := scheme.Get(name)
		c, err := scoring.NewCriterion(name, weight, "inline", benefit, norm)
		if err != nil {
			return nil, err
		}
		raw[name] = g
		criteria = append(criteria, c)
	}

	normalized, err := scoring.NormalizeLayers(raw, criteria)
	if err != nil {
		return nil, err
	}
	res, err := scoring.NewScorer(scheme, h.logger).Score(normalized)
	if err != nil {
		return nil, err
	}

	resp := &ScoreResponse{
		WSI:           fromGrid(res.WSI),
		Summary:       grid.Summarize(res.WSI),
		Contributions: res.Contributions,
		Validation:    scoring.ValidateWSIResult(res.WSI),
	}
	mask, threshold, err := scoring.TopSitesMaskWith(res.WSI, topPercent, method)
	if err != nil {
		return nil, err
	}
	resp.Mask = mask.RowSlices()
	resp.Threshold = threshold
	resp.TopSitesCount = mask.Count()
	resp.ViabilityPercentage = scoring.ViabilityPercentage(res.WSI, viability)
	return resp, nil
}

func toGrid(rows [][]*float64) (*grid.Grid, error) {
	vals := make([][]float64, len(rows))
	for i, row := range rows {
		vals[i] = make([]float64, len(row))
		for j, v := range row {
			if v == nil {
				vals[i][j] = math.NaN()
				continue
			}
			vals[i][j] = *v
		}
	}
	return grid.FromRows(vals)
}

// fromGrid converts a grid to JSON-safe rows, with nil for no-data.
func fromGrid(g *grid.Grid) [][]*float64 {
	out := make([][]*float64, g.Rows())
	for r := range out {
		out[r] = make([]*float64, g.Cols())
		for c := range out[r] {
			if v := g.At(r, c); !grid.IsNoData(v) {
				out[r][c] = &v
			}
		}
	}
	return out
}
