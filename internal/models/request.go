package models

import (
	"sort"
	"time"
)

// DateFormat is the calendar date layout used on the wire
const DateFormat = "2006-01-02"

// AnalysisRequest is a validated, normalized analysis request. Build it with
// dto.AnalysisRequestInput.Normalize; never construct it from raw input.
type AnalysisRequest struct {
	Tickers         []string  `json:"tickers"`
	Weights         []float64 `json:"weights"` // percent, parallel to Tickers
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	BenchmarkTicker string    `json:"benchmark_ticker"`
}

// Fractions returns weights as fractions of one
func (r *AnalysisRequest) Fractions() []float64 {
	out := make([]float64, len(r.Weights))
	for i, w := range r.Weights {
		out[i] = w / 100
	}
	return out
}

// BenchmarkIndex returns the position of the benchmark within Tickers, or -1
func (r *AnalysisRequest) BenchmarkIndex() int {
	for i, t := range r.Tickers {
		if t == r.BenchmarkTicker {
			return i
		}
	}
	return -1
}

// Canonical returns a copy with tickers (and their weights) sorted
func (r *AnalysisRequest) Canonical() *AnalysisRequest {
	idx := make([]int, len(r.Tickers))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return r.Tickers[idx[a]] < r.Tickers[idx[b]]
	})

	out := &AnalysisRequest{
		Tickers:         make([]string, len(idx)),
		Weights:         make([]float64, len(idx)),
		StartDate:       r.StartDate,
		EndDate:         r.EndDate,
		BenchmarkTicker: r.BenchmarkTicker,
	}
	for i, j := range idx {
		out.Tickers[i] = r.Tickers[j]
		out.Weights[i] = r.Weights[j]
	}
	return out
}

// SeriesTickers lists every ticker whose prices are needed, benchmark last
// unless it is already part of the portfolio
func (r *AnalysisRequest) SeriesTickers() []string {
	out := append([]string(nil), r.Tickers...)
	if r.BenchmarkIndex() < 0 {
		out = append(out, r.BenchmarkTicker)
	}
	return out
}
