package models

import "time"

// Metrics is the risk/return record for one equity curve. Ratios are plain
// numbers; return-like fields are fractions (0.12 == 12%).
type Metrics struct {
	CAGR                Value            `json:"cagr"`
	Volatility          Value            `json:"volatility"`
	SharpeRatio         Value            `json:"sharpe_ratio"`
	SortinoRatio        Value            `json:"sortino_ratio"`
	CalmarRatio         Value            `json:"calmar_ratio"`
	MaxDrawdown         Value            `json:"max_drawdown"`
	MaxDrawdownDuration Value            `json:"max_drawdown_duration"` // months
	MaxDrawdownOngoing  bool             `json:"max_drawdown_ongoing"`
	MaxDrawdownEpisode  *DrawdownEpisode `json:"max_drawdown_episode,omitempty"`
	TotalReturn         Value            `json:"total_return"`
	RollingReturn       Value            `json:"rolling_return"`
	RollingVolatility   Value            `json:"rolling_volatility"`
	BestMonth           Value            `json:"best_month"`
	WorstMonth          Value            `json:"worst_month"`
	Years               Value            `json:"years"`
	AnnualReturns       map[int]Value    `json:"annual_returns"`
}

// CorrelationPair is one off-diagonal entry of a correlation matrix
type CorrelationPair struct {
	First       string  `json:"first"`
	Second      string  `json:"second"`
	Correlation float64 `json:"correlation"`
	Strength    string  `json:"strength"`
}

// CorrelationSummary aggregates the off-diagonal entries
type CorrelationSummary struct {
	AverageCorrelation Value            `json:"average_correlation"`
	HighestPair        *CorrelationPair `json:"highest_pair,omitempty"`
	LowestPair         *CorrelationPair `json:"lowest_pair,omitempty"`
	Observations       int              `json:"observations"`
}

// CorrelationMatrix is square and symmetric with a unit diagonal
type CorrelationMatrix struct {
	Tickers []string            `json:"tickers"`
	Matrix  [][]Value           `json:"matrix"`
	Summary *CorrelationSummary `json:"summary,omitempty"`
}

// Reorder returns a copy of the matrix with rows and columns in order.
// Tickers missing from the matrix are skipped.
func (m *CorrelationMatrix) Reorder(order []string) *CorrelationMatrix {
	pos := make(map[string]int, len(m.Tickers))
	for i, t := range m.Tickers {
		pos[t] = i
	}

	var idx []int
	var tickers []string
	for _, t := range order {
		if i, ok := pos[t]; ok {
			idx = append(idx, i)
			tickers = append(tickers, t)
		}
	}

	matrix := make([][]Value, len(idx))
	for r, i := range idx {
		matrix[r] = make([]Value, len(idx))
		for c, j := range idx {
			matrix[r][c] = m.Matrix[i][j]
		}
	}

	return &CorrelationMatrix{Tickers: tickers, Matrix: matrix, Summary: m.Summary}
}

// ChartData holds the series a presentation layer plots
type ChartData struct {
	Dates                  []time.Time    `json:"dates"`
	PortfolioValues        []float64      `json:"portfolio_values"`
	BenchmarkValues        []float64      `json:"benchmark_values"`
	Drawdowns              []float64      `json:"drawdowns"`
	BenchmarkDrawdowns     []float64      `json:"benchmark_drawdowns"`
	AnnualReturns          map[int]Value  `json:"annual_returns"`
	BenchmarkAnnualReturns map[int]Value  `json:"benchmark_annual_returns"`
	MonthlyReturns         []PeriodReturn `json:"monthly_returns"`
	BenchmarkTicker        string         `json:"benchmark_ticker"`
	BenchmarkInPortfolio   bool           `json:"benchmark_in_portfolio"`
	BenchmarkIndex         int            `json:"benchmark_index"`
}

// AnalysisResult is the result bundle that the cache stores. Cached bundles
// are shared between requests and must be treated as read-only.
type AnalysisResult struct {
	Fingerprint      string             `json:"fingerprint"`
	Tickers          []string           `json:"tickers"`
	Weights          []float64          `json:"weights"`
	StartDate        time.Time          `json:"start_date"`
	EndDate          time.Time          `json:"end_date"`
	Metrics          Metrics            `json:"metrics"`
	BenchmarkMetrics Metrics            `json:"benchmark_metrics"`
	ChartData        ChartData          `json:"chart_data"`
	Correlation      *CorrelationMatrix `json:"correlation_matrix"`
	ComputedAt       time.Time          `json:"computed_at"`
}

// ForRequest returns a shallow copy presented in req's ticker order. The
// receiver is left untouched so it can stay in a shared cache.
func (r *AnalysisResult) ForRequest(req *AnalysisRequest) *AnalysisResult {
	out := *r
	out.Tickers = append([]string(nil), req.Tickers...)
	out.Weights = append([]float64(nil), req.Weights...)

	out.ChartData.BenchmarkIndex = req.BenchmarkIndex()
	out.ChartData.BenchmarkInPortfolio = out.ChartData.BenchmarkIndex >= 0

	if r.Correlation != nil {
		out.Correlation = r.Correlation.Reorder(req.Tickers)
	}
	return &out
}
