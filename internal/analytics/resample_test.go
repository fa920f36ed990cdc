package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-analytics/internal/models"
)

func TestMonthlyReturns(t *testing.T) {
	returns := &models.ReturnSeries{
		Dates: []time.Time{
			time.Date(2023, 1, 30, 0, 0, 0, 0, time.UTC),
			time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC),
			time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2023, 2, 2, 0, 0, 0, 0, time.UTC),
		},
		Returns: []float64{0, 0.1, 0.1, -0.5},
	}

	buckets := MonthlyReturns(returns)

	require.Len(t, buckets, 2)
	assert.InDelta(t, 0.1, buckets[0].Return, 1e-12)
	assert.InDelta(t, 1.1*0.5-1, buckets[1].Return, 1e-12)
	assert.Equal(t, returns.Dates[2], buckets[1].Start)
	assert.Equal(t, returns.Dates[3], buckets[1].End)
}

func TestAnnualReturns(t *testing.T) {
	curve := &models.EquityCurve{
		Dates: []time.Time{
			time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC),
			time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2022, 12, 30, 0, 0, 0, 0, time.UTC),
		},
		Values: []float64{1, 1.2, 1.0, 0.9},
	}

	annual := AnnualReturns(curve)

	first, ok := annual[2021].Float()
	require.True(t, ok)
	assert.InDelta(t, 0.2, first, 1e-12)

	second, ok := annual[2022].Float()
	require.True(t, ok)
	assert.InDelta(t, 0.9/1.2-1, second, 1e-12)
}

func TestStatistics(t *testing.T) {
	assert.True(t, math.IsNaN(Mean(nil)))
	assert.True(t, math.IsNaN(SampleStdDev([]float64{1})))
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-12)
	assert.InDelta(t, 1.0, SampleStdDev([]float64{1, 2, 3}), 1e-12)
	assert.InDelta(t, 1.1*0.9-1, Compound([]float64{0.1, -0.1}), 1e-12)
	assert.Equal(t, 0.0, Compound(nil))
}

func TestReturnsSince(t *testing.T) {
	returns := &models.ReturnSeries{
		Dates:   []time.Time{day(0), day(1), day(2), day(3)},
		Returns: []float64{0, 0.01, 0.02, 0.03},
	}

	assert.Equal(t, []float64{0.02, 0.03}, ReturnsSince(returns, day(2)))
	assert.Equal(t, []float64{0.01, 0.02, 0.03}, ReturnsSince(returns, day(-10)))
}
