package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"portfolio-analytics/internal/dto"
	"portfolio-analytics/internal/models"
	"portfolio-analytics/internal/monitoring"
	apperrors "portfolio-analytics/pkg/errors"
	"portfolio-analytics/pkg/logger"
)

type MockAnalysisService struct {
	mock.Mock
}

func (m *MockAnalysisService) Analyze(ctx context.Context, input *dto.AnalysisRequestInput) (*models.AnalysisResult, bool, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.AnalysisResult), args.Bool(1), args.Error(2)
}

func (m *MockAnalysisService) InvalidateAnalysis(ctx context.Context, input *dto.AnalysisRequestInput) (string, error) {
	args := m.Called(ctx, input)
	return args.String(0), args.Error(1)
}

func (m *MockAnalysisService) InvalidateAll(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func setupRouter(service AnalysisServiceInterface, health *monitoring.HealthChecker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewAnalysisController(logger.Discard(), service, health).RegisterRoutes(router.Group("/api/v1"))
	return router
}

func sampleResult() *models.AnalysisResult {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 1, 4, 0, 0, 0, 0, time.UTC)
	return &models.AnalysisResult{
		Fingerprint: "abc123",
		Tickers:     []string{"AAPL", "MSFT"},
		Weights:     []float64{60, 40},
		StartDate:   start,
		EndDate:     end,
		Metrics: models.Metrics{
			CAGR:        models.Some(0.123456),
			SharpeRatio: models.Some(1.23456),
			Volatility:  models.Unavailable(),
		},
		ChartData: models.ChartData{
			Dates:           []time.Time{start, end},
			PortfolioValues: []float64{1, 1.05},
			BenchmarkValues: []float64{1, 1.02},
			Drawdowns:       []float64{0, 0},
			BenchmarkTicker: "SPY",
			BenchmarkIndex:  -1,
		},
		Correlation: &models.CorrelationMatrix{
			Tickers: []string{"AAPL", "MSFT"},
			Matrix: [][]models.Value{
				{models.Some(1), models.Some(0.734567)},
				{models.Some(0.734567), models.Some(1)},
			},
		},
	}
}

func TestAnalysisController_Analyze(t *testing.T) {
	t.Run("returns the formatted analysis", func(t *testing.T) {
		service := new(MockAnalysisService)
		service.On("Analyze", mock.Anything, mock.MatchedBy(func(in *dto.AnalysisRequestInput) bool {
			return len(in.Tickers) == 2 && in.Tickers[0] == "AAPL" && in.Weights[1].String() == "40"
		})).Return(sampleResult(), false, nil)

		body := `{"tickers":["AAPL","MSFT"],"weights":[60,"40"],"start_date":"2023-01-02","end_date":"2023-01-04"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		setupRouter(service, nil).ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "MISS", w.Header().Get("X-Cache"))

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "abc123", resp["fingerprint"])
		assert.Equal(t, false, resp["cached"])
		assert.Equal(t, "2023-01-02", resp["start_date"])

		metrics := resp["metrics"].(map[string]interface{})
		assert.Equal(t, 12.35, metrics["cagr"])
		assert.Equal(t, 1.23, metrics["sharpe_ratio"])
		assert.Nil(t, metrics["volatility"])

		corr := resp["correlation_matrix"].(map[string]interface{})
		matrix := corr["matrix"].([]interface{})
		assert.Equal(t, 0.7346, matrix[0].([]interface{})[1])

		service.AssertExpectations(t)
	})

	t.Run("cache hit sets header", func(t *testing.T) {
		service := new(MockAnalysisService)
		service.On("Analyze", mock.Anything, mock.Anything).Return(sampleResult(), true, nil)

		body := `{"tickers":["AAPL"],"weights":[100],"start_date":"2023-01-02","end_date":"2023-01-04"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis", strings.NewReader(body))
		w := httptest.NewRecorder()

		setupRouter(service, nil).ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	})

	t.Run("malformed body is invalid input", func(t *testing.T) {
		service := new(MockAnalysisService)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis", strings.NewReader(`{"tickers":`))
		w := httptest.NewRecorder()

		setupRouter(service, nil).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), `"code":"invalid_input"`)
		service.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
	})

	t.Run("maps error kinds to status codes", func(t *testing.T) {
		tests := []struct {
			name   string
			err    error
			status int
			code   string
		}{
			{"invalid", apperrors.NewInvalidInput("Weights must sum to 100% (±0.05%) - your total is 90%."), http.StatusBadRequest, "invalid_input"},
			{"no data", apperrors.NewDataUnavailable("ZZZZ"), http.StatusNotFound, "data_unavailable"},
			{"short history", apperrors.NewInsufficientHistory(2, 1), http.StatusUnprocessableEntity, "insufficient_history"},
			{"upstream", apperrors.NewUpstreamFetchFailure("yahoo", "AAPL", 3, errors.New("boom")), http.StatusBadGateway, "upstream_fetch_failure"},
			{"timeout", apperrors.NewTimeout("Analysis did not finish within 1s", context.DeadlineExceeded), http.StatusGatewayTimeout, "timeout"},
			{"bare error", errors.New("kaput"), http.StatusInternalServerError, "internal"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				service := new(MockAnalysisService)
				service.On("Analyze", mock.Anything, mock.Anything).Return(nil, false, tt.err)

				body := `{"tickers":["AAPL"],"weights":[100],"start_date":"2023-01-02","end_date":"2023-01-04"}`
				req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis", strings.NewReader(body))
				w := httptest.NewRecorder()

				setupRouter(service, nil).ServeHTTP(w, req)

				assert.Equal(t, tt.status, w.Code)

				var resp map[string]interface{}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, tt.code, resp["code"])
				assert.NotEmpty(t, resp["error"])
				assert.NotContains(t, resp["error"], "kaput")
			})
		}
	})
}

func TestAnalysisController_AnalyzeQuery(t *testing.T) {
	service := new(MockAnalysisService)
	service.On("Analyze", mock.Anything, mock.MatchedBy(func(in *dto.AnalysisRequestInput) bool {
		return len(in.Tickers) == 2 && in.Tickers[1] == "MSFT" &&
			len(in.Weights) == 2 && in.Weights[0].String() == "60" &&
			in.BenchmarkTicker == "QQQ"
	})).Return(sampleResult(), false, nil)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/analysis?tickers=AAPL,MSFT&weights=60,40&start_date=2023-01-02&end_date=2023-01-04&benchmark_ticker=QQQ", nil)
	w := httptest.NewRecorder()

	setupRouter(service, nil).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	service.AssertExpectations(t)
}

func TestAnalysisController_InvalidateCache(t *testing.T) {
	t.Run("single analysis", func(t *testing.T) {
		service := new(MockAnalysisService)
		service.On("InvalidateAnalysis", mock.Anything, mock.Anything).Return("fp-1", nil)

		body := `{"tickers":["AAPL"],"weights":[100],"start_date":"2023-01-02","end_date":"2023-01-04"}`
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/analysis/cache", strings.NewReader(body))
		w := httptest.NewRecorder()

		setupRouter(service, nil).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"fingerprint":"fp-1"`)
	})

	t.Run("everything", func(t *testing.T) {
		service := new(MockAnalysisService)
		service.On("InvalidateAll", mock.Anything).Return(int64(7), nil)

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/analysis/cache?all=true", nil)
		w := httptest.NewRecorder()

		setupRouter(service, nil).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"removed":7`)
		service.AssertNotCalled(t, "InvalidateAnalysis", mock.Anything, mock.Anything)
	})

	t.Run("store failure is 503", func(t *testing.T) {
		service := new(MockAnalysisService)
		service.On("InvalidateAll", mock.Anything).Return(int64(0), apperrors.NewCacheStoreFailure("clear", errors.New("down")))

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/analysis/cache?all=1", nil)
		w := httptest.NewRecorder()

		setupRouter(service, nil).ServeHTTP(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestAnalysisController_Health(t *testing.T) {
	health := monitoring.NewHealthChecker("portfolio-analytics", time.Second)
	health.RegisterCheck(monitoring.CheckFunc{
		ComponentName: "cache_store",
		Fn:            func(ctx context.Context) error { return errors.New("connection refused") },
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()

	setupRouter(new(MockAnalysisService), health).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var status monitoring.HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "unhealthy", status.Components["cache_store"].Status)
}
