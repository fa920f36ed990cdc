package models

import "time"

// PricePoint is one adjusted close observation
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// PriceSeries is a ticker's daily adjusted close history, ascending by date.
// It is owned by the request that fetched it and must not be mutated.
type PriceSeries struct {
	Ticker string       `json:"ticker"`
	Points []PricePoint `json:"points"`
}

// Len returns the number of observations
func (s *PriceSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Points)
}

// AlignedFrame holds price columns that share one date index
type AlignedFrame struct {
	Dates   []time.Time          `json:"dates"`
	Columns map[string][]float64 `json:"columns"`
}

// Column returns the prices for ticker
func (f *AlignedFrame) Column(ticker string) ([]float64, bool) {
	col, ok := f.Columns[ticker]
	return col, ok
}

// Len returns the number of aligned dates
func (f *AlignedFrame) Len() int {
	return len(f.Dates)
}

// ReturnSeries holds periodic simple returns. Returns[0] belongs to the first
// aligned date and is always 0; Returns[t] covers the period ending at Dates[t].
type ReturnSeries struct {
	Dates   []time.Time `json:"dates"`
	Returns []float64   `json:"returns"`
}

// Periods returns the returns that cover an actual period, i.e. without the seed
func (r *ReturnSeries) Periods() []float64 {
	if len(r.Returns) <= 1 {
		return nil
	}
	return r.Returns[1:]
}

// EquityCurve is the cumulative growth of one unit, seeded at 1.0
type EquityCurve struct {
	Dates  []time.Time `json:"dates"`
	Values []float64   `json:"values"`
}

// Final returns the last value of the curve
func (c *EquityCurve) Final() float64 {
	if len(c.Values) == 0 {
		return 0
	}
	return c.Values[len(c.Values)-1]
}

// DrawdownSeries holds value/peak - 1 for each date
type DrawdownSeries struct {
	Dates  []time.Time `json:"dates"`
	Values []float64   `json:"values"`
}

// DrawdownEpisode describes the worst peak-to-recovery decline
type DrawdownEpisode struct {
	Depth          float64    `json:"depth"`
	PeakDate       time.Time  `json:"peak_date"`
	TroughDate     time.Time  `json:"trough_date"`
	RecoveryDate   *time.Time `json:"recovery_date,omitempty"`
	DurationMonths int        `json:"duration_months"`
	DurationDays   int        `json:"duration_days"`
	Ongoing        bool       `json:"ongoing"`
}

// PeriodReturn is a compounded return over a calendar bucket
type PeriodReturn struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Return float64   `json:"return"`
}
