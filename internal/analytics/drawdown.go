package analytics

import (
	"time"

	"portfolio-analytics/internal/models"
)

type DrawdownAnalyzer struct{}

func NewDrawdownAnalyzer() *DrawdownAnalyzer {
	return &DrawdownAnalyzer{}
}

// AnalyzeDrawdowns returns value/peak - 1 for every point of the curve and
// the worst episode. The episode runs from the peak preceding the deepest
// point to the first date the curve is back at that peak; without a
// recovery it runs to the last date and is flagged as ongoing.
func (da *DrawdownAnalyzer) AnalyzeDrawdowns(curve *models.EquityCurve) (*models.DrawdownSeries, *models.DrawdownEpisode) {
	series := &models.DrawdownSeries{
		Dates:  curve.Dates,
		Values: make([]float64, len(curve.Values)),
	}
	episode := &models.DrawdownEpisode{}
	if len(curve.Values) == 0 {
		return series, episode
	}

	peak := curve.Values[0]
	peakIdx := 0
	worst := 0.0
	worstIdx, worstPeakIdx := -1, 0

	for t, v := range curve.Values {
		if v >= peak {
			peak = v
			peakIdx = t
			continue
		}
		dd := v/peak - 1
		series.Values[t] = dd
		if dd < worst {
			worst = dd
			worstIdx = t
			worstPeakIdx = peakIdx
		}
	}

	if worstIdx < 0 {
		return series, episode
	}

	peakDate := curve.Dates[worstPeakIdx]
	episode.Depth = worst
	episode.PeakDate = peakDate
	episode.TroughDate = curve.Dates[worstIdx]

	end := curve.Dates[len(curve.Dates)-1]
	episode.Ongoing = true
	for t := worstIdx + 1; t < len(curve.Values); t++ {
		if curve.Values[t] >= curve.Values[worstPeakIdx] {
			recovery := curve.Dates[t]
			episode.RecoveryDate = &recovery
			episode.Ongoing = false
			end = recovery
			break
		}
	}

	episode.DurationMonths = monthsBetween(peakDate, end)
	episode.DurationDays = int(end.Sub(peakDate).Hours() / 24)
	return series, episode
}

// monthsBetween counts whole calendar months elapsed from a to b
func monthsBetween(a, b time.Time) int {
	months := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	if b.Day() < a.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}
