package clients

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"portfolio-analytics/internal/config"
	"portfolio-analytics/internal/models"
	"portfolio-analytics/internal/monitoring"
	apperrors "portfolio-analytics/pkg/errors"
)

const marketDataProvider = "market_data"

// MarketDataClient reads daily candles from the internal market-data service
type MarketDataClient struct {
	baseURL string
	fetcher *httpFetcher
}

// historyResponse mirrors the market-data service /history payload
type historyResponse struct {
	Success bool `json:"success"`
	Data    *struct {
		Symbol   string `json:"symbol"`
		Interval string `json:"interval"`
		Candles  []struct {
			Timestamp int64           `json:"timestamp"`
			Close     decimal.Decimal `json:"close"`
		} `json:"candles"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewMarketDataClient(cfg config.MarketDataConfig, logger *logrus.Logger, metrics monitoring.Recorder) *MarketDataClient {
	fetcher := newHTTPFetcher(marketDataProvider, cfg, logger, metrics)
	fetcher.headers["User-Agent"] = "Portfolio-Analytics/1.0"
	if cfg.APIKey != "" {
		fetcher.headers["X-API-Key"] = cfg.APIKey
	}

	return &MarketDataClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		fetcher: fetcher,
	}
}

func (mdc *MarketDataClient) Name() string {
	return marketDataProvider
}

// GetSeries retrieves daily closes for symbol
func (mdc *MarketDataClient) GetSeries(ctx context.Context, symbol string, start, end time.Time) (series *models.PriceSeries, err error) {
	began := time.Now()
	defer func() { mdc.fetcher.observe(began, err) }()

	url := fmt.Sprintf("%s/api/v1/history/%s?interval=1d&from=%d&to=%d",
		mdc.baseURL,
		strings.ToUpper(symbol),
		start.Unix(),
		end.AddDate(0, 0, 1).Unix())

	var response historyResponse
	if err := mdc.fetcher.getJSON(ctx, symbol, url, &response); err != nil {
		if err == errNotFound {
			return nil, apperrors.NewDataUnavailable(symbol)
		}
		return nil, err
	}

	if !response.Success || response.Data == nil {
		return nil, apperrors.NewDataUnavailable(symbol)
	}

	points := make([]models.PricePoint, 0, len(response.Data.Candles))
	for _, candle := range response.Data.Candles {
		points = append(points, models.PricePoint{
			Date:  tradingDate(candle.Timestamp, 0),
			Close: candle.Close.InexactFloat64(),
		})
	}

	return buildSeries(symbol, points, start, end)
}

// IsHealthy checks if the market data service is healthy
func (mdc *MarketDataClient) IsHealthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/health", mdc.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := mdc.fetcher.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
