package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue(t *testing.T) {
	t.Run("non finite values are unavailable", func(t *testing.T) {
		assert.False(t, Some(math.NaN()).Available())
		assert.False(t, Some(math.Inf(1)).Available())
		assert.True(t, Some(0).Available())
		assert.True(t, math.IsNaN(Unavailable().OrNaN()))
	})

	t.Run("map skips unavailable", func(t *testing.T) {
		double := func(v float64) float64 { return v * 2 }
		assert.Equal(t, Some(3), Some(1.5).Map(double))
		assert.False(t, Unavailable().Map(double).Available())
	})

	t.Run("json", func(t *testing.T) {
		payload := struct {
			A Value `json:"a"`
			B Value `json:"b"`
		}{A: Some(0.25), B: Unavailable()}

		data, err := json.Marshal(payload)
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":0.25,"b":null}`, string(data))

		var decoded struct {
			A Value `json:"a"`
			B Value `json:"b"`
		}
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, payload.A, decoded.A)
		assert.False(t, decoded.B.Available())
	})
}

func TestAnalysisRequest(t *testing.T) {
	req := &AnalysisRequest{
		Tickers:         []string{"MSFT", "AAPL", "SPY"},
		Weights:         []float64{50, 30, 20},
		StartDate:       time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		BenchmarkTicker: "SPY",
	}

	t.Run("canonical sorts tickers with their weights", func(t *testing.T) {
		c := req.Canonical()

		assert.Equal(t, []string{"AAPL", "MSFT", "SPY"}, c.Tickers)
		assert.Equal(t, []float64{30, 50, 20}, c.Weights)
		assert.Equal(t, []string{"MSFT", "AAPL", "SPY"}, req.Tickers)
	})

	t.Run("fractions", func(t *testing.T) {
		assert.InDeltaSlice(t, []float64{0.5, 0.3, 0.2}, req.Fractions(), 1e-12)
	})

	t.Run("benchmark inside portfolio", func(t *testing.T) {
		assert.Equal(t, 2, req.BenchmarkIndex())
		assert.Equal(t, []string{"MSFT", "AAPL", "SPY"}, req.SeriesTickers())
	})

	t.Run("benchmark outside portfolio", func(t *testing.T) {
		other := *req
		other.BenchmarkTicker = "QQQ"
		assert.Equal(t, -1, other.BenchmarkIndex())
		assert.Equal(t, []string{"MSFT", "AAPL", "SPY", "QQQ"}, other.SeriesTickers())
	})
}

func TestAnalysisResult_ForRequest(t *testing.T) {
	shared := &AnalysisResult{
		Fingerprint: "abc",
		Tickers:     []string{"AAPL", "MSFT"},
		Weights:     []float64{40, 60},
		Correlation: &CorrelationMatrix{
			Tickers: []string{"AAPL", "MSFT"},
			Matrix:  [][]Value{{Some(1), Some(0.5)}, {Some(0.5), Some(1)}},
		},
		ChartData: ChartData{BenchmarkIndex: -1},
	}

	req := &AnalysisRequest{Tickers: []string{"MSFT", "AAPL"}, Weights: []float64{60, 40}, BenchmarkTicker: "AAPL"}
	out := shared.ForRequest(req)

	assert.Equal(t, []string{"MSFT", "AAPL"}, out.Tickers)
	assert.Equal(t, []float64{60, 40}, out.Weights)
	assert.Equal(t, []string{"MSFT", "AAPL"}, out.Correlation.Tickers)
	assert.Equal(t, 1, out.ChartData.BenchmarkIndex)
	assert.True(t, out.ChartData.BenchmarkInPortfolio)

	assert.Equal(t, []string{"AAPL", "MSFT"}, shared.Tickers)
	assert.Equal(t, []string{"AAPL", "MSFT"}, shared.Correlation.Tickers)
	assert.Equal(t, -1, shared.ChartData.BenchmarkIndex)
}
