package clients

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"portfolio-analytics/internal/config"
	"portfolio-analytics/internal/models"
	"portfolio-analytics/internal/monitoring"
	apperrors "portfolio-analytics/pkg/errors"
)

// ProviderManager tries its providers in order and returns the first series
// found. Any provider error moves on to the next one. When all of them fail
// the first failure other than a missing series is returned, falling back to
// the last error.
type ProviderManager struct {
	providers []PriceProvider
	logger    *logrus.Logger
}

func NewProviderManager(logger *logrus.Logger, providers ...PriceProvider) *ProviderManager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ProviderManager{providers: providers, logger: logger}
}

// NewProviderChain builds the providers named in cfg.Providers, in order
func NewProviderChain(cfg config.MarketDataConfig, logger *logrus.Logger, metrics monitoring.Recorder) (*ProviderManager, error) {
	var providers []PriceProvider
	for _, name := range cfg.Providers {
		switch name {
		case yahooProvider:
			providers = append(providers, NewYahooClient(cfg, logger, metrics))
		case marketDataProvider:
			providers = append(providers, NewMarketDataClient(cfg, logger, metrics))
		default:
			return nil, fmt.Errorf("unknown price provider %q", name)
		}
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no price providers configured")
	}
	return NewProviderManager(logger, providers...), nil
}

func (pm *ProviderManager) Name() string {
	names := make([]string, len(pm.providers))
	for i, p := range pm.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ",")
}

// Providers returns the chain in fallback order
func (pm *ProviderManager) Providers() []PriceProvider {
	return append([]PriceProvider(nil), pm.providers...)
}

func (pm *ProviderManager) GetSeries(ctx context.Context, ticker string, start, end time.Time) (*models.PriceSeries, error) {
	var firstFailure, lastErr error
	for _, provider := range pm.providers {
		series, err := provider.GetSeries(ctx, ticker, start, end)
		if err == nil {
			return series, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		if firstFailure == nil && !apperrors.Is(err, apperrors.KindDataUnavailable) {
			firstFailure = err
		}
		pm.logger.WithFields(logrus.Fields{
			"provider": provider.Name(),
			"ticker":   ticker,
			"error":    err.Error(),
		}).Debug("Price provider failed, trying next")
	}

	// A provider that could not be reached says more than one that lacks the ticker.
	if firstFailure != nil {
		return nil, firstFailure
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no price providers configured")
	}
	return nil, lastErr
}
