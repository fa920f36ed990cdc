package dto

import (
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "portfolio-analytics/pkg/errors"
)

func weights(values ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

func validInput() *AnalysisRequestInput {
	return &AnalysisRequestInput{
		Tickers:   []string{"AAPL", "MSFT"},
		Weights:   weights(60, 40),
		StartDate: "2020-01-01",
		EndDate:   "2023-12-31",
	}
}

func TestAnalysisRequestInput_Normalize(t *testing.T) {
	opts := DefaultNormalizeOptions()

	t.Run("valid request", func(t *testing.T) {
		req, err := validInput().Normalize(opts)

		require.NoError(t, err)
		assert.Equal(t, []string{"AAPL", "MSFT"}, req.Tickers)
		assert.Equal(t, []float64{60, 40}, req.Weights)
		assert.Equal(t, "SPY", req.BenchmarkTicker)
		assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), req.StartDate)
		assert.Equal(t, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), req.EndDate)
	})

	t.Run("cleans labels and keeps the first duplicate", func(t *testing.T) {
		in := validInput()
		in.Tickers = []string{" aapl (Apple Inc.)", "msft", "AAPL", "TSLA"}
		in.Weights = weights(60, 40, 0, 0)

		req, err := in.Normalize(opts)

		require.NoError(t, err)
		assert.Equal(t, []string{"AAPL", "MSFT"}, req.Tickers)
		assert.Equal(t, []float64{60, 40}, req.Weights)
	})

	t.Run("later duplicate weight is discarded", func(t *testing.T) {
		in := validInput()
		in.Tickers = []string{"AAPL", "MSFT", "aapl"}
		in.Weights = weights(50, 30, 20)

		_, err := in.Normalize(opts)

		appErr, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.KindInvalidInput, appErr.Kind)
		assert.Equal(t, "Weights must sum to 100% (±0.05%) - your total is 80%.", appErr.Message)
	})

	t.Run("tolerates small rounding in weights", func(t *testing.T) {
		in := validInput()
		in.Tickers = []string{"A", "B", "C"}
		in.Weights = weights(33.33, 33.33, 33.33)

		_, err := in.Normalize(opts)
		assert.NoError(t, err)
	})

	t.Run("custom benchmark", func(t *testing.T) {
		in := validInput()
		in.BenchmarkTicker = " qqq "

		req, err := in.Normalize(opts)
		require.NoError(t, err)
		assert.Equal(t, "QQQ", req.BenchmarkTicker)
	})

	tests := []struct {
		name    string
		mutate  func(in *AnalysisRequestInput)
		message string
	}{
		{
			name:    "weights off by more than tolerance",
			mutate:  func(in *AnalysisRequestInput) { in.Weights = weights(60, 30) },
			message: "Weights must sum to 100% (±0.05%) - your total is 90%.",
		},
		{
			name:    "length mismatch",
			mutate:  func(in *AnalysisRequestInput) { in.Weights = weights(100) },
			message: apperrors.ErrLengthMismatch.Message,
		},
		{
			name:    "no tickers",
			mutate:  func(in *AnalysisRequestInput) { in.Tickers = []string{}; in.Weights = []decimal.Decimal{} },
			message: "At least one entry is required in tickers.",
		},
		{
			name:    "missing end date",
			mutate:  func(in *AnalysisRequestInput) { in.EndDate = "" },
			message: "Missing required field: end_date.",
		},
		{
			name:    "blank ticker",
			mutate:  func(in *AnalysisRequestInput) { in.Tickers = []string{"AAPL", "   "} },
			message: apperrors.ErrEmptyTickers.Message,
		},
		{
			name:    "invalid ticker",
			mutate:  func(in *AnalysisRequestInput) { in.Tickers = []string{"AAPL", "MS FT"} },
			message: "Invalid ticker symbol: MS FT",
		},
		{
			name:    "all weights zero",
			mutate:  func(in *AnalysisRequestInput) { in.Weights = weights(0, 0) },
			message: apperrors.ErrNoPositiveWeights.Message,
		},
		{
			name:    "bad date format",
			mutate:  func(in *AnalysisRequestInput) { in.StartDate = "01/01/2020" },
			message: "Invalid start date format. Use YYYY-MM-DD.",
		},
		{
			name:    "start after end",
			mutate:  func(in *AnalysisRequestInput) { in.StartDate, in.EndDate = in.EndDate, in.StartDate },
			message: apperrors.ErrDateOrder.Message,
		},
		{
			name:    "equal dates",
			mutate:  func(in *AnalysisRequestInput) { in.EndDate = in.StartDate },
			message: apperrors.ErrDateOrder.Message,
		},
		{
			name:    "invalid benchmark",
			mutate:  func(in *AnalysisRequestInput) { in.BenchmarkTicker = "S&P" },
			message: "Invalid benchmark ticker: S&P",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(in)

			_, err := in.Normalize(opts)

			require.Error(t, err)
			appErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.KindInvalidInput, appErr.Kind)
			assert.Equal(t, tt.message, appErr.Message)
		})
	}

	t.Run("ticker limit", func(t *testing.T) {
		in := validInput()
		in.Tickers = []string{"A", "B", "C"}
		in.Weights = weights(50, 25, 25)

		_, err := in.Normalize(NormalizeOptions{DefaultBenchmark: "SPY", WeightTolerance: 0.05, MaxTickers: 2})

		assert.True(t, apperrors.Is(err, apperrors.KindInvalidInput))
	})

	t.Run("nil input", func(t *testing.T) {
		var in *AnalysisRequestInput
		_, err := in.Normalize(opts)
		assert.True(t, apperrors.Is(err, apperrors.KindInvalidInput))
	})
}

func TestAnalysisRequestInput_JSONWeights(t *testing.T) {
	var in AnalysisRequestInput
	body := `{"tickers":["AAPL","MSFT"],"weights":[60.5,"39.5"],"start_date":"2020-01-01","end_date":"2021-01-01"}`

	require.NoError(t, json.Unmarshal([]byte(body), &in))
	req, err := in.Normalize(DefaultNormalizeOptions())

	require.NoError(t, err)
	assert.Equal(t, []float64{60.5, 39.5}, req.Weights)
}

func TestAnalysisRequestFromQuery(t *testing.T) {
	t.Run("comma separated lists", func(t *testing.T) {
		values := url.Values{
			"tickers":          {"AAPL, MSFT"},
			"weights":          {"70,30"},
			"start_date":       {"2020-01-01"},
			"end_date":         {"2022-01-01"},
			"benchmark_ticker": {"QQQ"},
		}

		in, err := AnalysisRequestFromQuery(values)

		require.NoError(t, err)
		assert.Equal(t, []string{"AAPL", "MSFT"}, in.Tickers)
		assert.True(t, in.Weights[0].Equal(decimal.NewFromInt(70)))
		assert.Equal(t, "QQQ", in.BenchmarkTicker)
	})

	t.Run("repeated parameters", func(t *testing.T) {
		in, err := AnalysisRequestFromQuery(url.Values{"tickers": {"AAPL", "MSFT"}, "weights": {"50", "50"}})

		require.NoError(t, err)
		assert.Equal(t, []string{"AAPL", "MSFT"}, in.Tickers)
		assert.Len(t, in.Weights, 2)
	})

	t.Run("non numeric weight", func(t *testing.T) {
		_, err := AnalysisRequestFromQuery(url.Values{"tickers": {"AAPL"}, "weights": {"lots"}})
		assert.True(t, apperrors.Is(err, apperrors.KindInvalidInput))
	})
}

func TestCleanTicker(t *testing.T) {
	assert.Equal(t, "BRK.B", CleanTicker(" brk.b (Berkshire Hathaway)"))
	assert.Equal(t, "^GSPC", CleanTicker("^gspc"))
	assert.Equal(t, "", CleanTicker("   "))
}
