package analytics

import (
	"fmt"
	"math"

	"portfolio-analytics/internal/models"
)

type CorrelationAnalyzer struct{}

func NewCorrelationAnalyzer() *CorrelationAnalyzer {
	return &CorrelationAnalyzer{}
}

// AnalyzeCorrelations computes the Pearson correlation of monthly returns
// for every pair of tickers. With fewer than two tickers there is nothing
// to correlate and it returns nil.
func (ca *CorrelationAnalyzer) AnalyzeCorrelations(frame *models.AlignedFrame, tickers []string) (*models.CorrelationMatrix, error) {
	if len(tickers) < 2 {
		return nil, nil
	}

	monthly := make([][]float64, len(tickers))
	for i, ticker := range tickers {
		returns, err := AssetReturns(frame, ticker)
		if err != nil {
			return nil, fmt.Errorf("failed to compute returns for correlation: %w", err)
		}
		buckets := MonthlyReturns(returns)
		monthly[i] = make([]float64, len(buckets))
		for j, b := range buckets {
			monthly[i][j] = b.Return
		}
	}

	matrix := make([][]models.Value, len(tickers))
	for i := range tickers {
		matrix[i] = make([]models.Value, len(tickers))
	}

	var pairs []models.CorrelationPair
	for i := 0; i < len(tickers); i++ {
		for j := i; j < len(tickers); j++ {
			if i == j {
				// Self correlation is always 1
				matrix[i][j] = models.Some(1)
				continue
			}

			correlation, ok := ca.calculatePearsonCorrelation(monthly[i], monthly[j])
			if !ok {
				matrix[i][j] = models.Unavailable()
				matrix[j][i] = models.Unavailable()
				continue
			}
			matrix[i][j] = models.Some(correlation)
			matrix[j][i] = models.Some(correlation)

			pairs = append(pairs, models.CorrelationPair{
				First:       tickers[i],
				Second:      tickers[j],
				Correlation: correlation,
				Strength:    ca.getCorrelationStrength(correlation),
			})
		}
	}

	observations := 0
	if len(monthly) > 0 {
		observations = len(monthly[0])
	}

	return &models.CorrelationMatrix{
		Tickers: append([]string(nil), tickers...),
		Matrix:  matrix,
		Summary: ca.calculateSummary(pairs, observations),
	}, nil
}

// calculatePearsonCorrelation returns false when the coefficient is
// undefined: fewer than two observations or a constant series
func (ca *CorrelationAnalyzer) calculatePearsonCorrelation(x, y []float64) (float64, bool) {
	if len(x) != len(y) || len(x) < 2 {
		return 0, false
	}

	meanX := Mean(x)
	meanY := Mean(y)

	var numerator, sumSquaredX, sumSquaredY float64
	for i := range x {
		diffX := x[i] - meanX
		diffY := y[i] - meanY

		numerator += diffX * diffY
		sumSquaredX += diffX * diffX
		sumSquaredY += diffY * diffY
	}

	denominator := math.Sqrt(sumSquaredX * sumSquaredY)
	if denominator == 0 || math.IsNaN(denominator) {
		return 0, false
	}

	correlation := numerator / denominator
	return math.Max(-1, math.Min(1, correlation)), true
}

func (ca *CorrelationAnalyzer) getCorrelationStrength(correlation float64) string {
	switch abs := math.Abs(correlation); {
	case abs >= 0.9:
		return "Very Strong"
	case abs >= 0.7:
		return "Strong"
	case abs >= 0.5:
		return "Moderate"
	case abs >= 0.3:
		return "Weak"
	default:
		return "Very Weak"
	}
}

func (ca *CorrelationAnalyzer) calculateSummary(pairs []models.CorrelationPair, observations int) *models.CorrelationSummary {
	summary := &models.CorrelationSummary{
		AverageCorrelation: models.Unavailable(),
		Observations:       observations,
	}
	if len(pairs) == 0 {
		return summary
	}

	var sum float64
	highest, lowest := pairs[0], pairs[0]
	for _, pair := range pairs {
		sum += pair.Correlation
		if pair.Correlation > highest.Correlation {
			highest = pair
		}
		if pair.Correlation < lowest.Correlation {
			lowest = pair
		}
	}

	summary.AverageCorrelation = models.Some(sum / float64(len(pairs)))
	summary.HighestPair = &highest
	summary.LowestPair = &lowest
	return summary
}
