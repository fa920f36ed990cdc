package services

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"portfolio-analytics/internal/config"
	"portfolio-analytics/internal/dto"
	"portfolio-analytics/internal/engine"
	"portfolio-analytics/internal/messaging"
	"portfolio-analytics/internal/models"
	"portfolio-analytics/internal/repositories"
	apperrors "portfolio-analytics/pkg/errors"
	"portfolio-analytics/pkg/logger"
)

// Mock implementations
type MockPriceProvider struct {
	mock.Mock
}

func (m *MockPriceProvider) GetSeries(ctx context.Context, ticker string, start, end time.Time) (*models.PriceSeries, error) {
	args := m.Called(ctx, ticker, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PriceSeries), args.Error(1)
}

func (m *MockPriceProvider) Name() string {
	return "mock"
}

type MockAnalysisPublisher struct {
	mock.Mock
}

func (m *MockAnalysisPublisher) PublishAnalysisCompleted(ctx context.Context, msg *messaging.AnalysisCompletedMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func testConfig() config.AnalyticsConfig {
	return config.AnalyticsConfig{
		DefaultBenchmark:   "SPY",
		WeightTolerance:    0.05,
		MaxTickers:         25,
		PeriodsPerYear:     252,
		MinAlignedDates:    2,
		CompositionMode:    "fixed",
		AlignmentPolicy:    "intersection",
		CalculationTimeout: 5 * time.Second,
		FetchConcurrency:   4,
	}
}

func newTestService(prices *MockPriceProvider, publisher AnalysisPublisherInterface) *AnalysisService {
	cache := engine.NewResultCache(engine.ResultCacheConfig{
		LocalTTL:     time.Minute,
		LocalMaxSize: 100,
	}, repositories.NewMemoryCacheRepository(0), nil, logger.Discard(), nil)

	return NewAnalysisService(testConfig(), prices, cache, publisher, logger.Discard(), nil)
}

// weekdaySeries builds a deterministic weekday price path with a drift and a
// ticker-specific wave so monthly returns differ between tickers
func weekdaySeries(ticker string, start, end time.Time, drift, phase float64) *models.PriceSeries {
	series := &models.PriceSeries{Ticker: ticker}
	price := 100.0
	t := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		if t > 0 {
			price *= 1 + drift + 0.01*math.Sin(float64(t)/7+phase)
		}
		series.Points = append(series.Points, models.PricePoint{Date: d, Close: price})
		t++
	}
	return series
}

var (
	testStart = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	testEnd   = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
)

func stubPrices(prices *MockPriceProvider, tickers ...string) {
	for i, ticker := range tickers {
		series := weekdaySeries(ticker, testStart, testEnd, 0.0004*float64(i+1), float64(i)*1.3)
		prices.On("GetSeries", mock.Anything, ticker, testStart, testEnd).Return(series, nil)
	}
}

func input(tickers []string, weights []int64, benchmark string) *dto.AnalysisRequestInput {
	ws := make([]decimal.Decimal, len(weights))
	for i, w := range weights {
		ws[i] = decimal.NewFromInt(w)
	}
	return &dto.AnalysisRequestInput{
		Tickers:         tickers,
		Weights:         ws,
		StartDate:       "2020-01-01",
		EndDate:         "2021-01-01",
		BenchmarkTicker: benchmark,
	}
}

func TestAnalysisService_Analyze(t *testing.T) {
	t.Run("two assets against a separate benchmark", func(t *testing.T) {
		prices := new(MockPriceProvider)
		stubPrices(prices, "AAPL", "MSFT", "SPY")
		service := newTestService(prices, nil)

		result, cached, err := service.Analyze(context.Background(), input([]string{"AAPL", "MSFT"}, []int64{60, 40}, "SPY"))

		require.NoError(t, err)
		assert.False(t, cached)
		assert.Len(t, result.Fingerprint, 64)

		years, ok := result.Metrics.Years.Float()
		require.True(t, ok)
		assert.InDelta(t, 1.0, years, 0.01)

		require.NotNil(t, result.Correlation)
		assert.Equal(t, []string{"AAPL", "MSFT"}, result.Correlation.Tickers)
		require.Len(t, result.Correlation.Matrix, 2)
		assert.Equal(t, result.Correlation.Matrix[0][1], result.Correlation.Matrix[1][0])

		assert.False(t, result.ChartData.BenchmarkInPortfolio)
		assert.Equal(t, -1, result.ChartData.BenchmarkIndex)
		assert.Equal(t, "SPY", result.ChartData.BenchmarkTicker)
		assert.Len(t, result.ChartData.PortfolioValues, len(result.ChartData.Dates))
		assert.InDelta(t, 1.0, result.ChartData.PortfolioValues[0], 1e-12)

		for _, dd := range result.ChartData.Drawdowns {
			assert.LessOrEqual(t, dd, 0.0)
		}

		prices.AssertNumberOfCalls(t, "GetSeries", 3)
	})

	t.Run("reordered duplicate is served from cache in its own order", func(t *testing.T) {
		prices := new(MockPriceProvider)
		stubPrices(prices, "AAPL", "MSFT", "SPY")
		service := newTestService(prices, nil)

		first, _, err := service.Analyze(context.Background(), input([]string{"AAPL", "MSFT"}, []int64{60, 40}, "SPY"))
		require.NoError(t, err)

		second, cached, err := service.Analyze(context.Background(), input([]string{"msft", "aapl"}, []int64{40, 60}, "spy"))
		require.NoError(t, err)

		assert.True(t, cached)
		assert.Equal(t, first.Fingerprint, second.Fingerprint)
		assert.Equal(t, []string{"MSFT", "AAPL"}, second.Tickers)
		assert.Equal(t, []float64{40, 60}, second.Weights)
		assert.Equal(t, []string{"MSFT", "AAPL"}, second.Correlation.Tickers)
		assert.Equal(t, first.Correlation.Matrix[0][1], second.Correlation.Matrix[1][0])

		// The first caller's view is not affected by the second projection
		assert.Equal(t, []string{"AAPL", "MSFT"}, first.Correlation.Tickers)
		prices.AssertNumberOfCalls(t, "GetSeries", 3)
	})

	t.Run("benchmark inside the portfolio", func(t *testing.T) {
		prices := new(MockPriceProvider)
		stubPrices(prices, "AAPL")
		service := newTestService(prices, nil)

		result, _, err := service.Analyze(context.Background(), input([]string{"AAPL"}, []int64{100}, "AAPL"))

		require.NoError(t, err)
		assert.True(t, result.ChartData.BenchmarkInPortfolio)
		assert.Equal(t, 0, result.ChartData.BenchmarkIndex)
		assert.Nil(t, result.Correlation)
		assert.Equal(t, result.Metrics.CAGR, result.BenchmarkMetrics.CAGR)
		prices.AssertNumberOfCalls(t, "GetSeries", 1)
	})

	t.Run("invalid weights never reach the provider", func(t *testing.T) {
		prices := new(MockPriceProvider)
		service := newTestService(prices, nil)

		_, _, err := service.Analyze(context.Background(), input([]string{"AAPL", "MSFT"}, []int64{50, 40}, "SPY"))

		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.KindInvalidInput))
		assert.Contains(t, err.Error(), "90")
		prices.AssertNotCalled(t, "GetSeries", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing ticker aborts with data unavailable", func(t *testing.T) {
		prices := new(MockPriceProvider)
		stubPrices(prices, "AAPL", "SPY")
		prices.On("GetSeries", mock.Anything, "ZZZZ", testStart, testEnd).Return(nil, apperrors.NewDataUnavailable("ZZZZ"))
		service := newTestService(prices, nil)

		_, _, err := service.Analyze(context.Background(), input([]string{"AAPL", "ZZZZ"}, []int64{50, 50}, "SPY"))

		require.Error(t, err)
		appErr, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.KindDataUnavailable, appErr.Kind)
		assert.Equal(t, "ZZZZ", appErr.Ticker)
	})

	t.Run("upstream failure is not cached", func(t *testing.T) {
		prices := new(MockPriceProvider)
		upstream := apperrors.NewUpstreamFetchFailure("mock", "AAPL", 3, errors.New("503"))
		prices.On("GetSeries", mock.Anything, "AAPL", testStart, testEnd).Return(nil, upstream).Once()
		stubPrices(prices, "AAPL", "SPY")
		service := newTestService(prices, nil)

		_, _, err := service.Analyze(context.Background(), input([]string{"AAPL"}, []int64{100}, "SPY"))
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.KindUpstreamFetch))

		result, cached, err := service.Analyze(context.Background(), input([]string{"AAPL"}, []int64{100}, "SPY"))
		require.NoError(t, err)
		assert.False(t, cached)
		assert.NotNil(t, result)
	})

	t.Run("concurrent duplicates fetch once", func(t *testing.T) {
		prices := new(MockPriceProvider)
		for i, ticker := range []string{"AAPL", "MSFT", "SPY"} {
			series := weekdaySeries(ticker, testStart, testEnd, 0.0003, float64(i))
			prices.On("GetSeries", mock.Anything, ticker, testStart, testEnd).
				After(20*time.Millisecond).
				Return(series, nil)
		}
		service := newTestService(prices, nil)

		const callers = 10
		fingerprints := make([]string, callers)
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				result, _, err := service.Analyze(context.Background(), input([]string{"AAPL", "MSFT"}, []int64{50, 50}, "SPY"))
				if assert.NoError(t, err) {
					fingerprints[i] = result.Fingerprint
				}
			}(i)
		}
		wg.Wait()

		prices.AssertNumberOfCalls(t, "GetSeries", 3)
		for _, fp := range fingerprints {
			assert.Equal(t, fingerprints[0], fp)
		}
	})

	t.Run("publish failure does not fail the request", func(t *testing.T) {
		prices := new(MockPriceProvider)
		stubPrices(prices, "AAPL", "SPY")
		publisher := new(MockAnalysisPublisher)
		publisher.On("PublishAnalysisCompleted", mock.Anything, mock.MatchedBy(func(msg *messaging.AnalysisCompletedMessage) bool {
			return len(msg.Tickers) == 1 && msg.Tickers[0] == "AAPL" && msg.StartDate == "2020-01-01"
		})).Return(errors.New("channel closed")).Once()
		service := newTestService(prices, publisher)

		result, _, err := service.Analyze(context.Background(), input([]string{"AAPL"}, []int64{100}, "SPY"))

		require.NoError(t, err)
		assert.NotNil(t, result)
		publisher.AssertExpectations(t)

		// Cache hits are not announced again
		_, cached, err := service.Analyze(context.Background(), input([]string{"AAPL"}, []int64{100}, "SPY"))
		require.NoError(t, err)
		assert.True(t, cached)
		publisher.AssertNumberOfCalls(t, "PublishAnalysisCompleted", 1)
	})
}

func TestAnalysisService_InvalidateAnalysis(t *testing.T) {
	prices := new(MockPriceProvider)
	stubPrices(prices, "AAPL", "SPY")
	service := newTestService(prices, nil)

	req := input([]string{"AAPL"}, []int64{100}, "SPY")
	first, _, err := service.Analyze(context.Background(), req)
	require.NoError(t, err)

	fingerprint, err := service.InvalidateAnalysis(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.Fingerprint, fingerprint)

	_, cached, err := service.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, cached)
	prices.AssertNumberOfCalls(t, "GetSeries", 4)

	_, err = service.InvalidateAnalysis(context.Background(), input(nil, nil, "SPY"))
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidInput))
}
