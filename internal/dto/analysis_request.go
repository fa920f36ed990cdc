package dto

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"portfolio-analytics/internal/models"
	apperrors "portfolio-analytics/pkg/errors"
)

var (
	tickerPattern = regexp.MustCompile(`^[A-Z0-9.^=-]+$`)
	hundred       = decimal.NewFromInt(100)

	validateOnce sync.Once
	validate     *validator.Validate
)

// AnalysisRequestInput is the raw request as received from the web layer.
// Weights accept JSON numbers as well as numeric strings.
type AnalysisRequestInput struct {
	Tickers         []string          `json:"tickers" form:"tickers" binding:"required,min=1,dive,required,max=40"`
	Weights         []decimal.Decimal `json:"weights" form:"weights" binding:"required,min=1"`
	StartDate       string            `json:"start_date" form:"start_date" binding:"required"`
	EndDate         string            `json:"end_date" form:"end_date" binding:"required"`
	BenchmarkTicker string            `json:"benchmark_ticker" form:"benchmark_ticker" binding:"omitempty,max=40"`
}

// NormalizeOptions carries the configurable validation limits
type NormalizeOptions struct {
	DefaultBenchmark string
	WeightTolerance  float64
	MaxTickers       int
}

// DefaultNormalizeOptions returns the limits used when nothing is configured
func DefaultNormalizeOptions() NormalizeOptions {
	return NormalizeOptions{
		DefaultBenchmark: "SPY",
		WeightTolerance:  0.05,
		MaxTickers:       25,
	}
}

// Normalize validates the input and returns the canonical AnalysisRequest.
// Every failure is an InvalidInput error whose message can be shown verbatim.
func (in *AnalysisRequestInput) Normalize(opts NormalizeOptions) (*models.AnalysisRequest, error) {
	if in == nil {
		return nil, apperrors.ErrEmptyTickers
	}
	if err := structValidator().Struct(in); err != nil {
		return nil, apperrors.NewInvalidInput(validationMessage(err))
	}

	if len(in.Tickers) != len(in.Weights) {
		return nil, apperrors.ErrLengthMismatch
	}

	tickers, weights, err := in.positions()
	if err != nil {
		return nil, err
	}

	if opts.MaxTickers > 0 && len(tickers) > opts.MaxTickers {
		return nil, apperrors.NewInvalidInput(fmt.Sprintf("A maximum of %d tickers is allowed.", opts.MaxTickers))
	}

	total := decimal.Zero
	for _, w := range weights {
		total = total.Add(w)
	}
	tolerance := decimal.NewFromFloat(opts.WeightTolerance)
	if total.Sub(hundred).Abs().GreaterThan(tolerance) {
		return nil, apperrors.NewInvalidInput(fmt.Sprintf(
			"Weights must sum to 100%% (±%s%%) - your total is %s%%.", tolerance.String(), total.String()))
	}

	start, end, err := in.dateRange()
	if err != nil {
		return nil, err
	}

	benchmark := opts.DefaultBenchmark
	if strings.TrimSpace(in.BenchmarkTicker) != "" {
		benchmark = CleanTicker(in.BenchmarkTicker)
		if !tickerPattern.MatchString(benchmark) {
			return nil, apperrors.NewInvalidInput(fmt.Sprintf("Invalid benchmark ticker: %s", in.BenchmarkTicker))
		}
	}

	req := &models.AnalysisRequest{
		Tickers:         tickers,
		Weights:         make([]float64, len(weights)),
		StartDate:       start,
		EndDate:         end,
		BenchmarkTicker: benchmark,
	}
	for i, w := range weights {
		req.Weights[i] = w.InexactFloat64()
	}
	return req, nil
}

// positions cleans tickers and keeps the first occurrence of each one; later
// duplicates are discarded along with their weight. Non-positive weights are
// then dropped with their ticker.
func (in *AnalysisRequestInput) positions() ([]string, []decimal.Decimal, error) {
	var tickers []string
	var weights []decimal.Decimal
	seen := make(map[string]bool, len(in.Tickers))

	for i, raw := range in.Tickers {
		ticker := CleanTicker(raw)
		if ticker == "" {
			return nil, nil, apperrors.ErrEmptyTickers
		}
		if !tickerPattern.MatchString(ticker) {
			return nil, nil, apperrors.NewInvalidInput(fmt.Sprintf("Invalid ticker symbol: %s", raw))
		}

		if seen[ticker] {
			continue
		}
		seen[ticker] = true

		weight := in.Weights[i]
		if !weight.IsPositive() {
			continue
		}
		tickers = append(tickers, ticker)
		weights = append(weights, weight)
	}

	if len(tickers) == 0 {
		return nil, nil, apperrors.ErrNoPositiveWeights
	}
	return tickers, weights, nil
}

func (in *AnalysisRequestInput) dateRange() (time.Time, time.Time, error) {
	start, err := time.Parse(models.DateFormat, strings.TrimSpace(in.StartDate))
	if err != nil {
		return time.Time{}, time.Time{}, apperrors.NewInvalidInput("Invalid start date format. Use YYYY-MM-DD.")
	}
	end, err := time.Parse(models.DateFormat, strings.TrimSpace(in.EndDate))
	if err != nil {
		return time.Time{}, time.Time{}, apperrors.NewInvalidInput("Invalid end date format. Use YYYY-MM-DD.")
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, apperrors.ErrDateOrder
	}
	return start, end, nil
}

// CleanTicker trims, drops an autocomplete label such as "AAPL (Apple Inc.)"
// and uppercases the symbol
func CleanTicker(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, " ("); i >= 0 {
		s = s[:i]
	}
	return strings.ToUpper(strings.TrimSpace(s))
}

// AnalysisRequestFromQuery builds an input from comma separated query
// parameters: ?tickers=AAPL,MSFT&weights=60,40&start_date=...&end_date=...
func AnalysisRequestFromQuery(values url.Values) (*AnalysisRequestInput, error) {
	in := &AnalysisRequestInput{
		StartDate:       values.Get("start_date"),
		EndDate:         values.Get("end_date"),
		BenchmarkTicker: values.Get("benchmark_ticker"),
		Tickers:         splitList(values["tickers"]),
	}

	for _, w := range splitList(values["weights"]) {
		d, err := decimal.NewFromString(w)
		if err != nil {
			return nil, apperrors.NewInvalidInput(fmt.Sprintf("Invalid weight: %s", w))
		}
		in.Weights = append(in.Weights, d)
	}
	return in, nil
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.SetTagName("binding")
	})
	return validate
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return "Invalid request."
	}

	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		if strings.HasPrefix(field, "tickers[") {
			return "Ticker symbols must not be empty."
		}
		return fmt.Sprintf("Missing required field: %s.", jsonName(fe.StructField()))
	case "min":
		return fmt.Sprintf("At least one entry is required in %s.", jsonName(fe.StructField()))
	case "max":
		return fmt.Sprintf("Value too long in %s.", jsonName(fe.StructField()))
	default:
		return fmt.Sprintf("Invalid value for %s.", jsonName(fe.StructField()))
	}
}

func jsonName(field string) string {
	switch field {
	case "StartDate":
		return "start_date"
	case "EndDate":
		return "end_date"
	case "BenchmarkTicker":
		return "benchmark_ticker"
	case "Weights":
		return "weights"
	default:
		return "tickers"
	}
}
