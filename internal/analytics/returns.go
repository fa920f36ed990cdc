package analytics

import (
	"fmt"

	"portfolio-analytics/internal/models"
)

// CompositionMode decides how weights evolve over the analysis window
type CompositionMode string

const (
	// ComposeFixed applies the same weights to every period's returns,
	// i.e. a continuously rebalanced portfolio
	ComposeFixed CompositionMode = "fixed"
	// ComposeBuyAndHold buys the initial weights once and lets them drift
	ComposeBuyAndHold CompositionMode = "buy_and_hold"
)

type ReturnComposer struct {
	mode CompositionMode
}

func NewReturnComposer(mode CompositionMode) *ReturnComposer {
	if mode == "" {
		mode = ComposeFixed
	}
	return &ReturnComposer{mode: mode}
}

// Mode returns the configured composition mode
func (rc *ReturnComposer) Mode() CompositionMode {
	return rc.mode
}

// AssetReturns returns the daily simple returns of one frame column
func AssetReturns(frame *models.AlignedFrame, ticker string) (*models.ReturnSeries, error) {
	prices, ok := frame.Column(ticker)
	if !ok {
		return nil, fmt.Errorf("ticker %s is not part of the aligned frame", ticker)
	}
	return simpleReturns(frame, prices), nil
}

// ComposeAsset returns the return series and equity curve of a single
// column, used for the benchmark
func (rc *ReturnComposer) ComposeAsset(frame *models.AlignedFrame, ticker string) (*models.ReturnSeries, *models.EquityCurve, error) {
	returns, err := AssetReturns(frame, ticker)
	if err != nil {
		return nil, nil, err
	}
	return returns, EquityFromReturns(returns), nil
}

// ComposePortfolio combines the columns of tickers using fractions (weights
// that sum to roughly one). Fractions are rescaled to sum to exactly one.
func (rc *ReturnComposer) ComposePortfolio(frame *models.AlignedFrame, tickers []string, fractions []float64) (*models.ReturnSeries, *models.EquityCurve, error) {
	if len(tickers) == 0 || len(tickers) != len(fractions) {
		return nil, nil, fmt.Errorf("tickers and weights must be non-empty and parallel")
	}

	weights, err := normalizeWeights(fractions)
	if err != nil {
		return nil, nil, err
	}

	columns := make([][]float64, len(tickers))
	for i, ticker := range tickers {
		col, ok := frame.Column(ticker)
		if !ok {
			return nil, nil, fmt.Errorf("ticker %s is not part of the aligned frame", ticker)
		}
		columns[i] = col
	}

	switch rc.mode {
	case ComposeBuyAndHold:
		curve := buyAndHoldCurve(frame, columns, weights)
		return returnsFromCurve(curve), curve, nil
	case ComposeFixed:
		returns := fixedWeightReturns(frame, columns, weights)
		return returns, EquityFromReturns(returns), nil
	default:
		return nil, nil, fmt.Errorf("unknown composition mode %q", rc.mode)
	}
}

// EquityFromReturns compounds returns into a curve seeded at 1.0
func EquityFromReturns(returns *models.ReturnSeries) *models.EquityCurve {
	curve := &models.EquityCurve{
		Dates:  returns.Dates,
		Values: make([]float64, len(returns.Returns)),
	}

	value := 1.0
	for i, r := range returns.Returns {
		if i > 0 {
			value *= 1 + r
		}
		curve.Values[i] = value
	}
	return curve
}

func simpleReturns(frame *models.AlignedFrame, prices []float64) *models.ReturnSeries {
	returns := &models.ReturnSeries{
		Dates:   frame.Dates,
		Returns: make([]float64, len(prices)),
	}
	for t := 1; t < len(prices); t++ {
		returns.Returns[t] = prices[t]/prices[t-1] - 1
	}
	return returns
}

func fixedWeightReturns(frame *models.AlignedFrame, columns [][]float64, weights []float64) *models.ReturnSeries {
	returns := &models.ReturnSeries{
		Dates:   frame.Dates,
		Returns: make([]float64, frame.Len()),
	}
	for t := 1; t < frame.Len(); t++ {
		var r float64
		for i, col := range columns {
			r += weights[i] * (col[t]/col[t-1] - 1)
		}
		returns.Returns[t] = r
	}
	return returns
}

func buyAndHoldCurve(frame *models.AlignedFrame, columns [][]float64, weights []float64) *models.EquityCurve {
	shares := make([]float64, len(columns))
	for i, col := range columns {
		shares[i] = weights[i] / col[0]
	}

	curve := &models.EquityCurve{
		Dates:  frame.Dates,
		Values: make([]float64, frame.Len()),
	}
	for t := 0; t < frame.Len(); t++ {
		var v float64
		for i, col := range columns {
			v += shares[i] * col[t]
		}
		curve.Values[t] = v
	}
	curve.Values[0] = 1.0
	return curve
}

func returnsFromCurve(curve *models.EquityCurve) *models.ReturnSeries {
	returns := &models.ReturnSeries{
		Dates:   curve.Dates,
		Returns: make([]float64, len(curve.Values)),
	}
	for t := 1; t < len(curve.Values); t++ {
		returns.Returns[t] = curve.Values[t]/curve.Values[t-1] - 1
	}
	return returns
}

func normalizeWeights(fractions []float64) ([]float64, error) {
	var total float64
	for _, f := range fractions {
		if f <= 0 {
			return nil, fmt.Errorf("weights must be positive")
		}
		total += f
	}

	out := make([]float64, len(fractions))
	for i, f := range fractions {
		out[i] = f / total
	}
	return out, nil
}
