package analytics

import (
	"math"
	"time"

	"portfolio-analytics/internal/models"
)

// MonthlyReturns compounds the daily returns dated within each calendar
// month. The first bucket starts at the seed date, so it covers the first
// month from the start of the window.
func MonthlyReturns(returns *models.ReturnSeries) []models.PeriodReturn {
	var out []models.PeriodReturn
	growth := 1.0
	key := -1

	for t, d := range returns.Dates {
		k := d.Year()*12 + int(d.Month())
		if k != key {
			if key >= 0 {
				out[len(out)-1].Return = growth - 1
			}
			out = append(out, models.PeriodReturn{Start: d})
			growth = 1.0
			key = k
		}
		if t > 0 {
			growth *= 1 + returns.Returns[t]
		}
		out[len(out)-1].End = d
	}

	if len(out) > 0 {
		out[len(out)-1].Return = growth - 1
	}
	return out
}

// AnnualReturns returns year-end over previous year-end (or the seed) minus
// one, keyed by calendar year
func AnnualReturns(curve *models.EquityCurve) map[int]models.Value {
	out := make(map[int]models.Value)
	if len(curve.Values) == 0 {
		return out
	}

	prev := curve.Values[0]
	for t, d := range curve.Dates {
		last := t == len(curve.Dates)-1 || curve.Dates[t+1].Year() != d.Year()
		if !last {
			continue
		}
		v := curve.Values[t]
		if prev > 0 {
			out[d.Year()] = models.Some(v/prev - 1)
		} else {
			out[d.Year()] = models.Unavailable()
		}
		prev = v
	}
	return out
}

// ReturnsSince returns the period returns dated on or after from, seed
// excluded
func ReturnsSince(returns *models.ReturnSeries, from time.Time) []float64 {
	var out []float64
	for t := 1; t < len(returns.Returns); t++ {
		if !returns.Dates[t].Before(from) {
			out = append(out, returns.Returns[t])
		}
	}
	return out
}

// Mean returns the arithmetic mean, NaN for an empty slice
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// SampleStdDev returns the n-1 standard deviation, NaN below two values
func SampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	mean := Mean(values)
	var sum float64
	for _, v := range values {
		diff := v - mean
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

// Compound returns prod(1+r) - 1
func Compound(returns []float64) float64 {
	growth := 1.0
	for _, r := range returns {
		growth *= 1 + r
	}
	return growth - 1
}
