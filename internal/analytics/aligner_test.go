package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-analytics/internal/models"
	apperrors "portfolio-analytics/pkg/errors"
)

func day(n int) time.Time {
	return time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func series(ticker string, days []int, closes []float64) *models.PriceSeries {
	s := &models.PriceSeries{Ticker: ticker}
	for i, d := range days {
		s.Points = append(s.Points, models.PricePoint{Date: day(d), Close: closes[i]})
	}
	return s
}

func TestAligner_Align(t *testing.T) {
	aapl := series("AAPL", []int{1, 2, 3, 4}, []float64{10, 11, 12, 13})
	msft := series("MSFT", []int{2, 3, 5}, []float64{20, 21, 23})

	t.Run("intersection keeps common dates", func(t *testing.T) {
		frame, err := NewAligner(AlignIntersection, 2).Align([]*models.PriceSeries{aapl, msft})
		require.NoError(t, err)

		assert.Equal(t, []time.Time{day(2), day(3)}, frame.Dates)
		assert.Equal(t, []float64{11, 12}, frame.Columns["AAPL"])
		assert.Equal(t, []float64{20, 21}, frame.Columns["MSFT"])
	})

	t.Run("forward fill starts at the latest first date", func(t *testing.T) {
		frame, err := NewAligner(AlignForwardFill, 2).Align([]*models.PriceSeries{aapl, msft})
		require.NoError(t, err)

		assert.Equal(t, []time.Time{day(2), day(3), day(4), day(5)}, frame.Dates)
		assert.Equal(t, []float64{11, 12, 13, 13}, frame.Columns["AAPL"])
		assert.Equal(t, []float64{20, 21, 21, 23}, frame.Columns["MSFT"])
	})

	t.Run("duplicate ticker is a single column", func(t *testing.T) {
		frame, err := NewAligner(AlignIntersection, 2).Align([]*models.PriceSeries{aapl, aapl})
		require.NoError(t, err)

		assert.Len(t, frame.Columns, 1)
		assert.Equal(t, 4, frame.Len())
	})

	t.Run("does not modify inputs", func(t *testing.T) {
		before := len(msft.Points)
		_, err := NewAligner(AlignForwardFill, 2).Align([]*models.PriceSeries{aapl, msft})
		require.NoError(t, err)
		assert.Len(t, msft.Points, before)
	})

	t.Run("too little overlap", func(t *testing.T) {
		other := series("XOM", []int{4, 8}, []float64{50, 51})
		_, err := NewAligner(AlignIntersection, 2).Align([]*models.PriceSeries{msft, other})

		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.KindInsufficientHistory))
	})

	t.Run("empty series names the ticker", func(t *testing.T) {
		_, err := NewAligner(AlignIntersection, 2).Align([]*models.PriceSeries{aapl, {Ticker: "ZZZZ"}})

		appErr, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.KindDataUnavailable, appErr.Kind)
		assert.Equal(t, "ZZZZ", appErr.Ticker)
	})
}
