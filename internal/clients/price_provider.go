package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"portfolio-analytics/internal/config"
	"portfolio-analytics/internal/models"
	"portfolio-analytics/internal/monitoring"
	apperrors "portfolio-analytics/pkg/errors"
)

// PriceProvider returns the daily adjusted close series of a ticker for
// [start, end]. A ticker without data yields a DataUnavailable error; a
// source that keeps failing yields UpstreamFetchFailure.
type PriceProvider interface {
	GetSeries(ctx context.Context, ticker string, start, end time.Time) (*models.PriceSeries, error)
	Name() string
}

var errNotFound = errors.New("symbol not found")

// httpFetcher carries the retry, throttling and decoding logic shared by the
// HTTP price providers
type httpFetcher struct {
	provider   string
	httpClient *http.Client
	limiter    *rate.Limiter
	retries    int
	retryDelay time.Duration
	headers    map[string]string
	logger     *logrus.Logger
	metrics    monitoring.Recorder
}

func newHTTPFetcher(provider string, cfg config.MarketDataConfig, logger *logrus.Logger, metrics monitoring.Recorder) *httpFetcher {
	if metrics == nil {
		metrics = monitoring.NopRecorder{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RateLimit))
	}

	return &httpFetcher{
		provider: provider,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:    rate.NewLimiter(limit, 1),
		retries:    cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		headers:    make(map[string]string),
		logger:     logger,
		metrics:    metrics,
	}
}

// getJSON performs a GET with retry logic and decodes the body into out.
// Transport errors, 429 and 5xx responses are retried with quadratic backoff.
func (f *httpFetcher) getJSON(ctx context.Context, ticker, url string, out interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			f.metrics.IncrementPriceFetchRetries(f.provider)
			backoff := time.Duration(attempt*attempt) * f.retryDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate limit wait cancelled: %w", f.provider, err)
		}

		retry, err := f.do(ctx, url, out)
		if err == nil {
			return nil
		}
		if errors.Is(err, errNotFound) || ctx.Err() != nil {
			return err
		}
		lastErr = err
		if !retry {
			return apperrors.NewUpstreamFetchFailure(f.provider, ticker, attempt+1, err)
		}

		f.logger.WithFields(logrus.Fields{
			"provider": f.provider,
			"ticker":   ticker,
			"attempt":  attempt + 1,
			"error":    err.Error(),
		}).Warn("Price request failed")
	}

	return apperrors.NewUpstreamFetchFailure(f.provider, ticker, f.retries+1, lastErr)
}

func (f *httpFetcher) do(ctx context.Context, url string, out interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, errNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return true, fmt.Errorf("rate limited")
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("HTTP %d: request failed", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return false, fmt.Errorf("HTTP %d: request rejected", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return true, fmt.Errorf("failed to decode response: %w", err)
	}
	return false, nil
}

// observe records the outcome of a GetSeries call
func (f *httpFetcher) observe(start time.Time, err error) {
	status := "ok"
	switch {
	case err == nil:
	case apperrors.Is(err, apperrors.KindDataUnavailable):
		status = "no_data"
	default:
		status = "error"
	}
	f.metrics.RecordPriceFetch(f.provider, status, time.Since(start))
}

// buildSeries filters points to [start, end], drops invalid closes, sorts by
// date and keeps the last observation of any duplicated date
func buildSeries(ticker string, points []models.PricePoint, start, end time.Time) (*models.PriceSeries, error) {
	last := end.AddDate(0, 0, 1)
	byDate := make(map[time.Time]float64, len(points))
	for _, p := range points {
		if p.Date.Before(start) || !p.Date.Before(last) {
			continue
		}
		if p.Close <= 0 || math.IsNaN(p.Close) || math.IsInf(p.Close, 0) {
			continue
		}
		byDate[p.Date] = p.Close
	}

	if len(byDate) == 0 {
		return nil, apperrors.NewDataUnavailable(ticker)
	}

	series := &models.PriceSeries{
		Ticker: ticker,
		Points: make([]models.PricePoint, 0, len(byDate)),
	}
	for d, c := range byDate {
		series.Points = append(series.Points, models.PricePoint{Date: d, Close: c})
	}
	sort.Slice(series.Points, func(i, j int) bool {
		return series.Points[i].Date.Before(series.Points[j].Date)
	})
	return series, nil
}

// tradingDate truncates a unix timestamp, shifted by the exchange offset, to
// a UTC calendar date
func tradingDate(unix, offsetSeconds int64) time.Time {
	t := time.Unix(unix+offsetSeconds, 0).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
