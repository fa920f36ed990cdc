package calculator

import (
	"math"

	"portfolio-analytics/internal/analytics"
	"portfolio-analytics/internal/models"
)

// DaysPerYear converts elapsed calendar days to fractional years
const DaysPerYear = 365.25

type ROICalculator struct{}

func NewROICalculator() *ROICalculator {
	return &ROICalculator{}
}

type ROIMetrics struct {
	Years          models.Value
	TotalReturn    models.Value
	CAGR           models.Value
	BestMonth      models.Value
	WorstMonth     models.Value
	AnnualReturns  map[int]models.Value
	MonthlyReturns []models.PeriodReturn
}

// CalculateROI derives the growth figures of an equity curve
func (roi *ROICalculator) CalculateROI(returns *models.ReturnSeries, curve *models.EquityCurve) *ROIMetrics {
	years := roi.calculateYears(curve)
	months := analytics.MonthlyReturns(returns)

	result := &ROIMetrics{
		Years:          models.Some(years),
		TotalReturn:    roi.calculateTotalReturn(curve),
		CAGR:           roi.calculateCAGR(curve, years),
		AnnualReturns:  analytics.AnnualReturns(curve),
		MonthlyReturns: months,
	}
	result.BestMonth, result.WorstMonth = roi.calculateBestWorstMonth(months)
	return result
}

// calculateYears returns the calendar days between the first and last point
// divided by 365.25
func (roi *ROICalculator) calculateYears(curve *models.EquityCurve) float64 {
	if len(curve.Dates) < 2 {
		return 0
	}
	first, last := curve.Dates[0], curve.Dates[len(curve.Dates)-1]
	return last.Sub(first).Hours() / 24 / DaysPerYear
}

func (roi *ROICalculator) calculateTotalReturn(curve *models.EquityCurve) models.Value {
	if len(curve.Values) == 0 || curve.Values[0] <= 0 {
		return models.Unavailable()
	}
	return models.Some(curve.Final()/curve.Values[0] - 1)
}

// calculateCAGR returns final^(1/years) - 1 on a curve normalized to start at
// one. It is unavailable for a non-positive period or equity.
func (roi *ROICalculator) calculateCAGR(curve *models.EquityCurve, years float64) models.Value {
	if years <= 0 || len(curve.Values) == 0 || curve.Values[0] <= 0 {
		return models.Unavailable()
	}
	final := curve.Final() / curve.Values[0]
	if final <= 0 {
		return models.Unavailable()
	}
	return models.Some(math.Pow(final, 1/years) - 1)
}

func (roi *ROICalculator) calculateBestWorstMonth(months []models.PeriodReturn) (models.Value, models.Value) {
	if len(months) == 0 {
		return models.Unavailable(), models.Unavailable()
	}

	best, worst := months[0].Return, months[0].Return
	for _, m := range months[1:] {
		best = math.Max(best, m.Return)
		worst = math.Min(worst, m.Return)
	}
	return models.Some(best), models.Some(worst)
}
