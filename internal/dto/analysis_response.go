package dto

import (
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"portfolio-analytics/internal/models"
)

const (
	percentPlaces     = 2
	ratioPlaces       = 2
	equityPlaces      = 4
	correlationPlaces = 4
)

func init() {
	// Rounded figures go out as JSON numbers, not strings
	decimal.MarshalJSONWithoutQuotes = true
}

// AnalysisResponse is the wire shape of an analysis. Return-like figures are
// percentages rounded to two places; unavailable figures are null.
type AnalysisResponse struct {
	Fingerprint       string               `json:"fingerprint"`
	Cached            bool                 `json:"cached"`
	Tickers           []string             `json:"tickers"`
	Weights           []decimal.Decimal    `json:"weights"`
	StartDate         string               `json:"start_date"`
	EndDate           string               `json:"end_date"`
	Metrics           MetricsResponse      `json:"metrics"`
	BenchmarkMetrics  MetricsResponse      `json:"benchmark_metrics"`
	ChartData         ChartDataResponse    `json:"chart_data"`
	CorrelationMatrix *CorrelationResponse `json:"correlation_matrix"`
	ComputedAt        time.Time            `json:"computed_at"`
}

type MetricsResponse struct {
	CAGR                decimal.NullDecimal      `json:"cagr"`
	Volatility          decimal.NullDecimal      `json:"volatility"`
	SharpeRatio         decimal.NullDecimal      `json:"sharpe_ratio"`
	SortinoRatio        decimal.NullDecimal      `json:"sortino_ratio"`
	CalmarRatio         decimal.NullDecimal      `json:"calmar_ratio"`
	MaxDrawdown         decimal.NullDecimal      `json:"max_drawdown"`
	MaxDrawdownDuration decimal.NullDecimal      `json:"max_drawdown_duration"`
	MaxDrawdownOngoing  bool                     `json:"max_drawdown_ongoing"`
	MaxDrawdownEpisode  *DrawdownEpisodeResponse `json:"max_drawdown_episode,omitempty"`
	TotalReturn         decimal.NullDecimal      `json:"total_return"`
	RollingReturn       decimal.NullDecimal      `json:"rolling_return"`
	RollingVolatility   decimal.NullDecimal      `json:"rolling_volatility"`
	BestMonth           decimal.NullDecimal      `json:"best_month"`
	WorstMonth          decimal.NullDecimal      `json:"worst_month"`
	Years               decimal.NullDecimal      `json:"years"`
}

type DrawdownEpisodeResponse struct {
	Depth          decimal.Decimal `json:"depth"`
	PeakDate       string          `json:"peak_date"`
	TroughDate     string          `json:"trough_date"`
	RecoveryDate   *string         `json:"recovery_date"`
	DurationMonths int             `json:"duration_months"`
	DurationDays   int             `json:"duration_days"`
	Ongoing        bool            `json:"ongoing"`
}

type ChartDataResponse struct {
	Dates                  []string                       `json:"dates"`
	PortfolioValues        []decimal.Decimal              `json:"portfolio_values"`
	BenchmarkValues        []decimal.Decimal              `json:"benchmark_values"`
	Drawdowns              []decimal.Decimal              `json:"drawdowns"`
	BenchmarkDrawdowns     []decimal.Decimal              `json:"benchmark_drawdowns"`
	AnnualReturns          map[string]decimal.NullDecimal `json:"annual_returns"`
	BenchmarkAnnualReturns map[string]decimal.NullDecimal `json:"benchmark_annual_returns"`
	MonthlyReturns         []MonthlyReturnResponse        `json:"monthly_returns"`
	BenchmarkTicker        string                         `json:"benchmark_ticker"`
	BenchmarkInPortfolio   bool                           `json:"benchmark_in_portfolio"`
	BenchmarkIndex         int                            `json:"benchmark_index"`
}

type MonthlyReturnResponse struct {
	Month  string          `json:"month"`
	Return decimal.Decimal `json:"return"`
}

type CorrelationResponse struct {
	Tickers []string                    `json:"tickers"`
	Matrix  [][]decimal.NullDecimal     `json:"matrix"`
	Summary *CorrelationSummaryResponse `json:"summary,omitempty"`
}

type CorrelationSummaryResponse struct {
	AverageCorrelation decimal.NullDecimal      `json:"average_correlation"`
	HighestPair        *CorrelationPairResponse `json:"highest_pair,omitempty"`
	LowestPair         *CorrelationPairResponse `json:"lowest_pair,omitempty"`
	Observations       int                      `json:"observations"`
}

type CorrelationPairResponse struct {
	First       string          `json:"first"`
	Second      string          `json:"second"`
	Correlation decimal.Decimal `json:"correlation"`
	Strength    string          `json:"strength"`
}

// NewAnalysisResponse formats result for the wire
func NewAnalysisResponse(result *models.AnalysisResult, cached bool) *AnalysisResponse {
	weights := make([]decimal.Decimal, len(result.Weights))
	for i, w := range result.Weights {
		weights[i] = round(w, percentPlaces)
	}

	return &AnalysisResponse{
		Fingerprint:       result.Fingerprint,
		Cached:            cached,
		Tickers:           result.Tickers,
		Weights:           weights,
		StartDate:         result.StartDate.Format(models.DateFormat),
		EndDate:           result.EndDate.Format(models.DateFormat),
		Metrics:           newMetricsResponse(&result.Metrics),
		BenchmarkMetrics:  newMetricsResponse(&result.BenchmarkMetrics),
		ChartData:         newChartDataResponse(&result.ChartData),
		CorrelationMatrix: newCorrelationResponse(result.Correlation),
		ComputedAt:        result.ComputedAt,
	}
}

func newMetricsResponse(m *models.Metrics) MetricsResponse {
	resp := MetricsResponse{
		CAGR:                percent(m.CAGR),
		Volatility:          percent(m.Volatility),
		SharpeRatio:         ratio(m.SharpeRatio),
		SortinoRatio:        ratio(m.SortinoRatio),
		CalmarRatio:         ratio(m.CalmarRatio),
		MaxDrawdown:         percent(m.MaxDrawdown),
		MaxDrawdownDuration: nullable(m.MaxDrawdownDuration, 0),
		MaxDrawdownOngoing:  m.MaxDrawdownOngoing,
		TotalReturn:         percent(m.TotalReturn),
		RollingReturn:       percent(m.RollingReturn),
		RollingVolatility:   percent(m.RollingVolatility),
		BestMonth:           percent(m.BestMonth),
		WorstMonth:          percent(m.WorstMonth),
		Years:               ratio(m.Years),
	}

	if ep := m.MaxDrawdownEpisode; ep != nil {
		episode := &DrawdownEpisodeResponse{
			Depth:          round(ep.Depth*100, percentPlaces),
			PeakDate:       ep.PeakDate.Format(models.DateFormat),
			TroughDate:     ep.TroughDate.Format(models.DateFormat),
			DurationMonths: ep.DurationMonths,
			DurationDays:   ep.DurationDays,
			Ongoing:        ep.Ongoing,
		}
		if ep.RecoveryDate != nil {
			recovery := ep.RecoveryDate.Format(models.DateFormat)
			episode.RecoveryDate = &recovery
		}
		resp.MaxDrawdownEpisode = episode
	}

	return resp
}

func newChartDataResponse(c *models.ChartData) ChartDataResponse {
	dates := make([]string, len(c.Dates))
	for i, d := range c.Dates {
		dates[i] = d.Format(models.DateFormat)
	}

	monthly := make([]MonthlyReturnResponse, len(c.MonthlyReturns))
	for i, m := range c.MonthlyReturns {
		monthly[i] = MonthlyReturnResponse{
			Month:  m.Start.Format("2006-01"),
			Return: round(m.Return*100, percentPlaces),
		}
	}

	return ChartDataResponse{
		Dates:                  dates,
		PortfolioValues:        roundAll(c.PortfolioValues, 1, equityPlaces),
		BenchmarkValues:        roundAll(c.BenchmarkValues, 1, equityPlaces),
		Drawdowns:              roundAll(c.Drawdowns, 100, percentPlaces),
		BenchmarkDrawdowns:     roundAll(c.BenchmarkDrawdowns, 100, percentPlaces),
		AnnualReturns:          annualPercent(c.AnnualReturns),
		BenchmarkAnnualReturns: annualPercent(c.BenchmarkAnnualReturns),
		MonthlyReturns:         monthly,
		BenchmarkTicker:        c.BenchmarkTicker,
		BenchmarkInPortfolio:   c.BenchmarkInPortfolio,
		BenchmarkIndex:         c.BenchmarkIndex,
	}
}

func newCorrelationResponse(m *models.CorrelationMatrix) *CorrelationResponse {
	if m == nil {
		return nil
	}

	matrix := make([][]decimal.NullDecimal, len(m.Matrix))
	for i, row := range m.Matrix {
		matrix[i] = make([]decimal.NullDecimal, len(row))
		for j, v := range row {
			matrix[i][j] = nullable(v, correlationPlaces)
		}
	}

	resp := &CorrelationResponse{Tickers: m.Tickers, Matrix: matrix}
	if s := m.Summary; s != nil {
		resp.Summary = &CorrelationSummaryResponse{
			AverageCorrelation: nullable(s.AverageCorrelation, correlationPlaces),
			HighestPair:        newPairResponse(s.HighestPair),
			LowestPair:         newPairResponse(s.LowestPair),
			Observations:       s.Observations,
		}
	}
	return resp
}

func newPairResponse(p *models.CorrelationPair) *CorrelationPairResponse {
	if p == nil {
		return nil
	}
	return &CorrelationPairResponse{
		First:       p.First,
		Second:      p.Second,
		Correlation: round(p.Correlation, correlationPlaces),
		Strength:    p.Strength,
	}
}

// annualPercent keys by year string so the JSON object is ordered by year
func annualPercent(in map[int]models.Value) map[string]decimal.NullDecimal {
	years := make([]int, 0, len(in))
	for y := range in {
		years = append(years, y)
	}
	sort.Ints(years)

	out := make(map[string]decimal.NullDecimal, len(in))
	for _, y := range years {
		out[strconv.Itoa(y)] = percent(in[y])
	}
	return out
}

func percent(v models.Value) decimal.NullDecimal {
	return nullable(v.Map(func(f float64) float64 { return f * 100 }), percentPlaces)
}

func ratio(v models.Value) decimal.NullDecimal {
	return nullable(v, ratioPlaces)
}

func nullable(v models.Value, places int32) decimal.NullDecimal {
	f, ok := v.Float()
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: round(f, places), Valid: true}
}

func round(f float64, places int32) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(places)
}

func roundAll(values []float64, scale float64, places int32) []decimal.Decimal {
	if values == nil {
		return nil
	}
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = round(v*scale, places)
	}
	return out
}
