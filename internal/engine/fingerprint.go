package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"

	"portfolio-analytics/internal/models"
)

// FingerprintOptions are the settings that change a result for the same
// request and so must be part of its identity
type FingerprintOptions struct {
	CompositionMode string
	AlignmentPolicy string
	PeriodsPerYear  int
}

type fingerprintPosition struct {
	Ticker string `json:"ticker"`
	Weight string `json:"weight"`
}

// Fingerprint returns a SHA-256 hex digest of the canonical form of req.
// Positions are sorted by ticker and weights are rendered as fixed decimal
// strings, so input order and float noise do not change the result.
func Fingerprint(req *models.AnalysisRequest, opts FingerprintOptions) string {
	positions := make([]fingerprintPosition, len(req.Tickers))
	for i, ticker := range req.Tickers {
		positions[i] = fingerprintPosition{
			Ticker: ticker,
			Weight: decimal.NewFromFloat(req.Weights[i]).Round(6).String(),
		}
	}
	sort.Slice(positions, func(a, b int) bool {
		return positions[a].Ticker < positions[b].Ticker
	})

	data := struct {
		Positions       []fingerprintPosition `json:"positions"`
		StartDate       string                `json:"start_date"`
		EndDate         string                `json:"end_date"`
		Benchmark       string                `json:"benchmark"`
		CompositionMode string                `json:"composition_mode"`
		AlignmentPolicy string                `json:"alignment_policy"`
		PeriodsPerYear  int                   `json:"periods_per_year"`
	}{
		Positions:       positions,
		StartDate:       req.StartDate.Format(models.DateFormat),
		EndDate:         req.EndDate.Format(models.DateFormat),
		Benchmark:       req.BenchmarkTicker,
		CompositionMode: opts.CompositionMode,
		AlignmentPolicy: opts.AlignmentPolicy,
		PeriodsPerYear:  opts.PeriodsPerYear,
	}

	jsonData, _ := json.Marshal(data)
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:])
}
