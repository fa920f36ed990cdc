package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"portfolio-analytics/internal/analytics"
	"portfolio-analytics/internal/calculator"
	"portfolio-analytics/internal/clients"
	"portfolio-analytics/internal/config"
	"portfolio-analytics/internal/dto"
	"portfolio-analytics/internal/engine"
	"portfolio-analytics/internal/messaging"
	"portfolio-analytics/internal/models"
	"portfolio-analytics/internal/monitoring"
	apperrors "portfolio-analytics/pkg/errors"
)

// Interfaces for testing
type AnalysisPublisherInterface interface {
	PublishAnalysisCompleted(ctx context.Context, msg *messaging.AnalysisCompletedMessage) error
}

type AnalysisService struct {
	prices       clients.PriceProvider
	cache        *engine.ResultCache
	aligner      *analytics.Aligner
	composer     *analytics.ReturnComposer
	drawdowns    *analytics.DrawdownAnalyzer
	risk         *calculator.RiskCalculator
	correlations *analytics.CorrelationAnalyzer
	publisher    AnalysisPublisherInterface
	config       config.AnalyticsConfig
	logger       *logrus.Logger
	metrics      monitoring.Recorder
}

// NewAnalysisService wires the pipeline. publisher may be nil.
func NewAnalysisService(
	cfg config.AnalyticsConfig,
	prices clients.PriceProvider,
	cache *engine.ResultCache,
	publisher AnalysisPublisherInterface,
	logger *logrus.Logger,
	metrics monitoring.Recorder,
) *AnalysisService {
	if metrics == nil {
		metrics = monitoring.NopRecorder{}
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 4
	}

	return &AnalysisService{
		prices:       prices,
		cache:        cache,
		aligner:      analytics.NewAligner(analytics.AlignmentPolicy(cfg.AlignmentPolicy), cfg.MinAlignedDates),
		composer:     analytics.NewReturnComposer(analytics.CompositionMode(cfg.CompositionMode)),
		drawdowns:    analytics.NewDrawdownAnalyzer(),
		risk:         calculator.NewRiskCalculator(calculator.RiskCalculatorConfig{PeriodsPerYear: cfg.PeriodsPerYear}),
		correlations: analytics.NewCorrelationAnalyzer(),
		publisher:    publisher,
		config:       cfg,
		logger:       logger,
		metrics:      metrics,
	}
}

// Analyze validates input and returns its analysis, from cache when an
// identical request was computed before. The bool reports a cache hit.
func (s *AnalysisService) Analyze(ctx context.Context, input *dto.AnalysisRequestInput) (*models.AnalysisResult, bool, error) {
	start := time.Now()

	req, err := input.Normalize(s.normalizeOptions())
	if err != nil {
		s.metrics.RecordAnalysis(string(apperrors.KindOf(err)), false, time.Since(start))
		return nil, false, err
	}

	canonical := req.Canonical()
	fingerprint := s.Fingerprint(canonical)

	ctx, cancel := s.withCalculationTimeout(ctx)
	defer cancel()

	result, cached, err := s.cache.GetOrCompute(ctx, fingerprint, func(ctx context.Context) (*models.AnalysisResult, error) {
		return s.compute(ctx, canonical, fingerprint)
	})
	if err != nil {
		err = s.classify(err)
		s.metrics.RecordAnalysis(string(apperrors.KindOf(err)), false, time.Since(start))
		s.logger.WithFields(logrus.Fields{
			"fingerprint": fingerprint,
			"tickers":     req.Tickers,
			"error":       err,
		}).Warn("Analysis failed")
		return nil, false, err
	}

	s.metrics.RecordAnalysis("ok", cached, time.Since(start))
	s.logger.WithFields(logrus.Fields{
		"fingerprint": fingerprint,
		"tickers":     req.Tickers,
		"cached":      cached,
		"duration":    time.Since(start),
	}).Info("Analysis served")

	return result.ForRequest(req), cached, nil
}

// InvalidateAnalysis drops the cached result of input and returns its
// fingerprint
func (s *AnalysisService) InvalidateAnalysis(ctx context.Context, input *dto.AnalysisRequestInput) (string, error) {
	req, err := input.Normalize(s.normalizeOptions())
	if err != nil {
		return "", err
	}

	fingerprint := s.Fingerprint(req.Canonical())
	if err := s.InvalidateFingerprint(ctx, fingerprint); err != nil {
		return "", err
	}
	return fingerprint, nil
}

// InvalidateFingerprint drops one cached result
func (s *AnalysisService) InvalidateFingerprint(ctx context.Context, fingerprint string) error {
	if err := s.cache.Invalidate(ctx, fingerprint); err != nil {
		return err
	}
	s.logger.WithField("fingerprint", fingerprint).Info("Analysis cache entry invalidated")
	return nil
}

// InvalidateAll empties the result cache
func (s *AnalysisService) InvalidateAll(ctx context.Context) (int64, error) {
	removed, err := s.cache.InvalidateAll(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.WithField("removed", removed).Info("Analysis cache cleared")
	return removed, nil
}

// Fingerprint identifies req under the configured composition settings
func (s *AnalysisService) Fingerprint(req *models.AnalysisRequest) string {
	return engine.Fingerprint(req, engine.FingerprintOptions{
		CompositionMode: string(s.composer.Mode()),
		AlignmentPolicy: string(s.aligner.Policy()),
		PeriodsPerYear:  s.config.PeriodsPerYear,
	})
}

func (s *AnalysisService) compute(ctx context.Context, req *models.AnalysisRequest, fingerprint string) (*models.AnalysisResult, error) {
	start := time.Now()

	result, err := s.runPipeline(ctx, req, fingerprint)
	if err != nil {
		s.metrics.RecordComputation(string(apperrors.KindOf(s.classify(err))), time.Since(start))
		return nil, err
	}

	duration := time.Since(start)
	s.metrics.RecordComputation("ok", duration)
	s.publishCompleted(ctx, req, fingerprint, duration)
	return result, nil
}

func (s *AnalysisService) runPipeline(ctx context.Context, req *models.AnalysisRequest, fingerprint string) (*models.AnalysisResult, error) {
	series, err := s.fetchSeries(ctx, req.SeriesTickers(), req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	frame, err := s.aligner.Align(series)
	if err != nil {
		return nil, err
	}

	portfolioReturns, portfolioCurve, err := s.composer.ComposePortfolio(frame, req.Tickers, req.Fractions())
	if err != nil {
		return nil, err
	}
	benchmarkReturns, benchmarkCurve, err := s.composer.ComposeAsset(frame, req.BenchmarkTicker)
	if err != nil {
		return nil, err
	}

	portfolioDrawdowns, portfolioEpisode := s.drawdowns.AnalyzeDrawdowns(portfolioCurve)
	benchmarkDrawdowns, benchmarkEpisode := s.drawdowns.AnalyzeDrawdowns(benchmarkCurve)

	metrics := s.risk.CalculateMetrics(portfolioReturns, portfolioCurve, portfolioDrawdowns, portfolioEpisode)
	benchmarkMetrics := s.risk.CalculateMetrics(benchmarkReturns, benchmarkCurve, benchmarkDrawdowns, benchmarkEpisode)

	correlation, err := s.correlations.AnalyzeCorrelations(frame, req.Tickers)
	if err != nil {
		return nil, err
	}

	benchmarkIndex := req.BenchmarkIndex()

	return &models.AnalysisResult{
		Fingerprint:      fingerprint,
		Tickers:          req.Tickers,
		Weights:          req.Weights,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		Metrics:          *metrics,
		BenchmarkMetrics: *benchmarkMetrics,
		ChartData: models.ChartData{
			Dates:                  frame.Dates,
			PortfolioValues:        portfolioCurve.Values,
			BenchmarkValues:        benchmarkCurve.Values,
			Drawdowns:              portfolioDrawdowns.Values,
			BenchmarkDrawdowns:     benchmarkDrawdowns.Values,
			AnnualReturns:          metrics.AnnualReturns,
			BenchmarkAnnualReturns: benchmarkMetrics.AnnualReturns,
			MonthlyReturns:         analytics.MonthlyReturns(portfolioReturns),
			BenchmarkTicker:        req.BenchmarkTicker,
			BenchmarkInPortfolio:   benchmarkIndex >= 0,
			BenchmarkIndex:         benchmarkIndex,
		},
		Correlation: correlation,
		ComputedAt:  time.Now().UTC(),
	}, nil
}

// fetchSeries loads every ticker concurrently. The first failure cancels the
// remaining fetches.
func (s *AnalysisService) fetchSeries(ctx context.Context, tickers []string, start, end time.Time) ([]*models.PriceSeries, error) {
	series := make([]*models.PriceSeries, len(tickers))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.FetchConcurrency)

	for i, ticker := range tickers {
		i, ticker := i, ticker
		g.Go(func() error {
			result, err := s.prices.GetSeries(ctx, ticker, start, end)
			if err != nil {
				return err
			}
			if result.Len() == 0 {
				return apperrors.NewDataUnavailable(ticker)
			}
			series[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return series, nil
}

func (s *AnalysisService) publishCompleted(ctx context.Context, req *models.AnalysisRequest, fingerprint string, duration time.Duration) {
	if s.publisher == nil {
		return
	}

	msg := &messaging.AnalysisCompletedMessage{
		Fingerprint: fingerprint,
		Tickers:     req.Tickers,
		Weights:     req.Weights,
		Benchmark:   req.BenchmarkTicker,
		StartDate:   req.StartDate.Format(models.DateFormat),
		EndDate:     req.EndDate.Format(models.DateFormat),
		DurationMS:  duration.Milliseconds(),
	}
	if err := s.publisher.PublishAnalysisCompleted(ctx, msg); err != nil {
		s.logger.WithError(err).WithField("fingerprint", fingerprint).Warn("Failed to publish analysis.completed")
	}
}

func (s *AnalysisService) withCalculationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.CalculationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.CalculationTimeout)
}

// classify turns bare context and library errors into AppErrors
func (s *AnalysisService) classify(err error) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewTimeout(fmt.Sprintf("Analysis did not finish within %s", s.config.CalculationTimeout), err)
	case errors.Is(err, context.Canceled):
		return apperrors.NewAppError(apperrors.KindInternal, "Analysis was cancelled")
	default:
		return apperrors.NewInternalError("Analysis failed", err)
	}
}

func (s *AnalysisService) normalizeOptions() dto.NormalizeOptions {
	opts := dto.DefaultNormalizeOptions()
	if s.config.DefaultBenchmark != "" {
		opts.DefaultBenchmark = s.config.DefaultBenchmark
	}
	if s.config.WeightTolerance > 0 {
		opts.WeightTolerance = s.config.WeightTolerance
	}
	if s.config.MaxTickers > 0 {
		opts.MaxTickers = s.config.MaxTickers
	}
	return opts
}
