package calculator

import (
	"math"

	"portfolio-analytics/internal/analytics"
	"portfolio-analytics/internal/models"
)

type RiskCalculator struct {
	periodsPerYear float64
	rollingMonths  int
	roi            *ROICalculator
}

type RiskCalculatorConfig struct {
	PeriodsPerYear int `json:"periods_per_year" default:"252"`
	RollingMonths  int `json:"rolling_months" default:"12"`
}

func NewRiskCalculator(config RiskCalculatorConfig) *RiskCalculator {
	if config.PeriodsPerYear <= 0 {
		config.PeriodsPerYear = 252
	}
	if config.RollingMonths <= 0 {
		config.RollingMonths = 12
	}
	return &RiskCalculator{
		periodsPerYear: float64(config.PeriodsPerYear),
		rollingMonths:  config.RollingMonths,
		roi:            NewROICalculator(),
	}
}

// CalculateMetrics builds the full metrics record of one equity curve. The
// risk-free rate is taken as zero. Anything that cannot be computed from the
// window is reported as unavailable rather than failing.
func (rc *RiskCalculator) CalculateMetrics(returns *models.ReturnSeries, curve *models.EquityCurve, drawdowns *models.DrawdownSeries, episode *models.DrawdownEpisode) *models.Metrics {
	growth := rc.roi.CalculateROI(returns, curve)
	periods := returns.Periods()

	volatility := rc.calculateVolatility(periods)
	maxDrawdown := rc.calculateMaxDrawdown(drawdowns)
	rollingReturn, rollingVolatility := rc.calculateRolling(returns, growth.MonthlyReturns)

	metrics := &models.Metrics{
		CAGR:              growth.CAGR,
		Volatility:        volatility,
		SharpeRatio:       rc.calculateSharpeRatio(growth.CAGR, volatility),
		SortinoRatio:      rc.calculateSortinoRatio(growth.CAGR, periods),
		CalmarRatio:       rc.calculateCalmarRatio(growth.CAGR, maxDrawdown),
		MaxDrawdown:       models.Some(maxDrawdown),
		TotalReturn:       growth.TotalReturn,
		RollingReturn:     rollingReturn,
		RollingVolatility: rollingVolatility,
		BestMonth:         growth.BestMonth,
		WorstMonth:        growth.WorstMonth,
		Years:             growth.Years,
		AnnualReturns:     growth.AnnualReturns,
	}

	metrics.MaxDrawdownDuration = models.Some(0)
	if episode != nil && episode.Depth < 0 {
		metrics.MaxDrawdownDuration = models.Some(float64(episode.DurationMonths))
		metrics.MaxDrawdownOngoing = episode.Ongoing
		metrics.MaxDrawdownEpisode = episode
	}

	return metrics
}

// calculateVolatility returns the annualized sample standard deviation
func (rc *RiskCalculator) calculateVolatility(returns []float64) models.Value {
	if len(returns) < 2 {
		return models.Unavailable()
	}
	return models.Some(analytics.SampleStdDev(returns) * math.Sqrt(rc.periodsPerYear))
}

func (rc *RiskCalculator) calculateSharpeRatio(cagr, volatility models.Value) models.Value {
	c, ok := cagr.Float()
	v, vok := volatility.Float()
	if !ok || !vok || v == 0 {
		return models.Unavailable()
	}
	return models.Some(c / v)
}

// calculateSortinoRatio divides CAGR by the annualized deviation of the
// negative periods only
func (rc *RiskCalculator) calculateSortinoRatio(cagr models.Value, returns []float64) models.Value {
	c, ok := cagr.Float()
	if !ok {
		return models.Unavailable()
	}

	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) < 2 {
		return models.Unavailable()
	}

	deviation := analytics.SampleStdDev(downside) * math.Sqrt(rc.periodsPerYear)
	if deviation == 0 {
		return models.Unavailable()
	}
	return models.Some(c / deviation)
}

func (rc *RiskCalculator) calculateCalmarRatio(cagr models.Value, maxDrawdown float64) models.Value {
	c, ok := cagr.Float()
	if !ok || maxDrawdown >= 0 {
		return models.Unavailable()
	}
	return models.Some(c / math.Abs(maxDrawdown))
}

func (rc *RiskCalculator) calculateMaxDrawdown(drawdowns *models.DrawdownSeries) float64 {
	maxDD := 0.0
	if drawdowns == nil {
		return maxDD
	}
	for _, dd := range drawdowns.Values {
		maxDD = math.Min(maxDD, dd)
	}
	return maxDD
}

// calculateRolling covers the trailing rollingMonths calendar months. It is
// unavailable unless the history spans at least that many months; partial
// first and last buckets do not count as months of history.
func (rc *RiskCalculator) calculateRolling(returns *models.ReturnSeries, months []models.PeriodReturn) (models.Value, models.Value) {
	if len(months) < rc.rollingMonths || len(returns.Dates) == 0 {
		return models.Unavailable(), models.Unavailable()
	}
	first, last := returns.Dates[0], returns.Dates[len(returns.Dates)-1]
	if last.Before(first.AddDate(0, rc.rollingMonths, 0)) {
		return models.Unavailable(), models.Unavailable()
	}

	from := months[len(months)-rc.rollingMonths].Start
	window := analytics.ReturnsSince(returns, from)
	if len(window) == 0 {
		return models.Unavailable(), models.Unavailable()
	}

	return models.Some(analytics.Compound(window)), rc.calculateVolatility(window)
}
