package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/linasofi13/wind-gis-tech-validation/internal/config"
	"github.com/linasofi13/wind-gis-tech-validation/internal/pipeline"
	"github.com/linasofi13/wind-gis-tech-validation/internal/store"
)

// MockStore implements store.Store for testing
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateRun(ctx context.Context, run *store.Run) error {
	return m.Called(ctx, run).Error(0)
}

func (m *MockStore) UpdateRun(ctx context.Context, run *store.Run) error {
	return m.Called(ctx, run).Error(0)
}

func (m *MockStore) GetRun(ctx context.Context, id uuid.UUID) (*store.Run, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Run), args.Error(1)
}

func (m *MockStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]*store.Run, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*store.Run), args.Error(1)
}

func (m *MockStore) SaveReport(ctx context.Context, report *store.Report) error {
	return m.Called(ctx, report).Error(0)
}

func (m *MockStore) GetReportByRun(ctx context.Context, runID uuid.UUID) (*store.Report, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Report), args.Error(1)
}

func (m *MockStore) ListReports(ctx context.Context, limit int) ([]*store.Report, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*store.Report), args.Error(1)
}

func (m *MockStore) GetStats(ctx context.Context) (*store.RunStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.RunStats), args.Error(1)
}

func (m *MockStore) Close() error { return nil }

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, a pipeline.Analysis) (*pipeline.Result, error) {
	args := m.Called(ctx, a)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.Result), args.Error(1)
}

const testToken = "admin-token"

func defaultAnalysis(t *testing.T) AnalysisSource {
	t.Helper()
	a, err := pipeline.AnalysisFromConfig(config.DefaultAnalysis())
	require.NoError(t, err)
	return func() pipeline.Analysis { return a }
}

func newTestRouter(t *testing.T, s store.Store, r AnalysisRunner) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(s, r, defaultAnalysis(t), testToken, logger)
}

func do(h http.Handler, method, path string, body interface{}, admin bool) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body == nil {
		req.ContentLength = 0
	}
	if admin {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGetRun(t *testing.T) {
	ms := new(MockStore)
	id := uuid.New()
	ms.On("GetRun", mock.Anything, id).Return(&store.Run{ID: id, AOIName: "La Guajira", Status: store.StatusCompleted}, nil)

	w := do(newTestRouter(t, ms, nil), "GET", "/api/v1/runs/"+id.String(), nil, false)
	require.Equal(t, http.StatusOK, w.Code)

	var got store.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, id, got.ID)
	assert.Equal(t, store.StatusCompleted, got.Status)
	ms.AssertExpectations(t)
}

func TestGetRun_NotFound(t *testing.T) {
	ms := new(MockStore)
	id := uuid.New()
	ms.On("GetRun", mock.Anything, id).Return(nil, nil)

	w := do(newTestRouter(t, ms, nil), "GET", "/api/v1/runs/"+id.String(), nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetRun_InvalidID(t *testing.T) {
	w := do(newTestRouter(t, new(MockStore), nil), "GET", "/api/v1/runs/not-a-uuid", nil, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRuns_Filter(t *testing.T) {
	ms := new(MockStore)
	ms.On("ListRuns", mock.Anything, mock.MatchedBy(func(f store.RunFilter) bool {
		return f.Status != nil && *f.Status == store.StatusFailed && f.Limit == 5 && f.Offset == 0
	})).Return([]*store.Run{{ID: uuid.New(), Status: store.StatusFailed}}, nil)

	w := do(newTestRouter(t, ms, nil), "GET", "/api/v1/runs?status=failed&limit=5", nil, false)
	require.Equal(t, http.StatusOK, w.Code)

	var got []store.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Len(t, got, 1)
	ms.AssertExpectations(t)
}

func TestListRuns_EmptyIsArray(t *testing.T) {
	ms := new(MockStore)
	ms.On("ListRuns", mock.Anything, mock.Anything).Return(nil, nil)

	w := do(newTestRouter(t, ms, nil), "GET", "/api/v1/runs", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestListRuns_BadStatus(t *testing.T) {
	w := do(newTestRouter(t, new(MockStore), nil), "GET", "/api/v1/runs?status=paused", nil, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunReport(t *testing.T) {
	ms := new(MockStore)
	runID := uuid.New()
	ms.On("GetReportByRun", mock.Anything, runID).Return(&store.Report{
		ID: uuid.New(), RunID: runID, ViabilityPercentage: 42, TotalAreaKm2: 10,
	}, nil)

	w := do(newTestRouter(t, ms, nil), "GET", "/api/v1/runs/"+runID.String()+"/report", nil, false)
	require.Equal(t, http.StatusOK, w.Code)

	var got store.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 42.0, got.ViabilityPercentage)
}

func TestRunReport_NotFound(t *testing.T) {
	ms := new(MockStore)
	runID := uuid.New()
	ms.On("GetReportByRun", mock.Anything, runID).Return(nil, nil)

	w := do(newTestRouter(t, ms, nil), "GET", "/api/v1/runs/"+runID.String()+"/report", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListReports(t *testing.T) {
	ms := new(MockStore)
	ms.On("ListReports", mock.Anything, 3).Return([]*store.Report{{ID: uuid.New()}}, nil)

	w := do(newTestRouter(t, ms, nil), "GET", "/api/v1/reports?limit=3", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	ms.AssertExpectations(t)
}

func TestCreateRun(t *testing.T) {
	ms := new(MockStore)
	mr := new(MockRunner)
	runID := uuid.New()
	now := time.Now().UTC()
	mr.On("Run", mock.Anything, mock.MatchedBy(func(a pipeline.Analysis) bool {
		return a.TopPercent == 0.1 && a.ViabilityThreshold == 0.5 && a.Trigger == "api" && a.AOIName == "Alta Guajira"
	})).Return(&pipeline.Result{
		Run:       &store.Run{ID: runID, Status: store.StatusCompleted, StartedAt: now, CompletedAt: &now},
		Report:    &store.Report{ID: uuid.New(), RunID: runID, ViabilityPercentage: 30, TotalAreaKm2: 1},
		Threshold: 0.8,
	}, nil)

	w := do(newTestRouter(t, ms, mr), "POST", "/api/v1/runs",
		CreateRunRequest{AOIName: "Alta Guajira", TopPercent: 0.1}, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var got RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, runID, got.Run.ID)
	assert.Equal(t, 0.8, got.Threshold)
	assert.Equal(t, 30.0, got.Report.ViabilityPercentage)
	mr.AssertExpectations(t)
}

func TestCreateRun_EmptyBodyUsesConfiguredAnalysis(t *testing.T) {
	mr := new(MockRunner)
	mr.On("Run", mock.Anything, mock.MatchedBy(func(a pipeline.Analysis) bool {
		return a.TopPercent == 0.15 && a.Trigger == "api"
	})).Return(&pipeline.Result{Run: &store.Run{ID: uuid.New()}}, nil)

	w := do(newTestRouter(t, new(MockStore), mr), "POST", "/api/v1/runs", nil, true)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	mr.AssertExpectations(t)
}

func TestCreateRun_RequiresAdminToken(t *testing.T) {
	mr := new(MockRunner)
	w := do(newTestRouter(t, new(MockStore), mr), "POST", "/api/v1/runs", CreateRunRequest{}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	mr.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestCreateRun_RejectsOutOfRange(t *testing.T) {
	mr := new(MockRunner)
	w := do(newTestRouter(t, new(MockStore), mr), "POST", "/api/v1/runs", CreateRunRequest{TopPercent: 1.5}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	mr.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestCreateRun_InvalidResult(t *testing.T) {
	mr := new(MockRunner)
	mr.On("Run", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("%w: no valid cells", pipeline.ErrResultInvalid))

	w := do(newTestRouter(t, new(MockStore), mr), "POST", "/api/v1/runs", CreateRunRequest{}, true)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCreateRun_NoRunner(t *testing.T) {
	w := do(newTestRouter(t, new(MockStore), nil), "POST", "/api/v1/runs", CreateRunRequest{}, true)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStats(t *testing.T) {
	ms := new(MockStore)
	ms.On("GetStats", mock.Anything).Return(&store.RunStats{TotalRuns: 4, Completed: 3, Failed: 1}, nil)
	h := newTestRouter(t, ms, nil)

	w := do(h, "GET", "/api/v1/stats", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(h, "GET", "/api/v1/stats", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var got store.RunStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 4, got.TotalRuns)
}

func TestMetricsRouterHealth(t *testing.T) {
	w := httptest.NewRecorder()
	NewMetricsRouter().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
