package clients

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"portfolio-analytics/internal/config"
	"portfolio-analytics/internal/models"
	"portfolio-analytics/internal/monitoring"
	apperrors "portfolio-analytics/pkg/errors"
)

const yahooProvider = "yahoo"

// YahooClient reads daily history from the Yahoo Finance chart API
type YahooClient struct {
	baseURL string
	fetcher *httpFetcher
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol    string `json:"symbol"`
				Currency  string `json:"currency"`
				GMTOffset int64  `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func NewYahooClient(cfg config.MarketDataConfig, logger *logrus.Logger, metrics monitoring.Recorder) *YahooClient {
	fetcher := newHTTPFetcher(yahooProvider, cfg, logger, metrics)
	if cfg.UserAgent != "" {
		fetcher.headers["User-Agent"] = cfg.UserAgent
	}

	return &YahooClient{
		baseURL: strings.TrimRight(cfg.YahooURL, "/"),
		fetcher: fetcher,
	}
}

func (c *YahooClient) Name() string {
	return yahooProvider
}

// GetSeries retrieves the adjusted close series, falling back to the raw
// close when the response has no adjusted closes
func (c *YahooClient) GetSeries(ctx context.Context, ticker string, start, end time.Time) (series *models.PriceSeries, err error) {
	began := time.Now()
	defer func() { c.fetcher.observe(began, err) }()

	q := url.Values{}
	q.Set("period1", fmt.Sprintf("%d", start.Unix()))
	q.Set("period2", fmt.Sprintf("%d", end.AddDate(0, 0, 1).Unix()))
	q.Set("interval", "1d")
	q.Set("events", "div,split")
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(ticker), q.Encode())

	var response yahooChartResponse
	if err := c.fetcher.getJSON(ctx, ticker, endpoint, &response); err != nil {
		if err == errNotFound {
			return nil, apperrors.NewDataUnavailable(ticker)
		}
		return nil, err
	}

	if response.Chart.Error != nil || len(response.Chart.Result) == 0 {
		return nil, apperrors.NewDataUnavailable(ticker)
	}

	result := response.Chart.Result[0]
	var closes []*float64
	if len(result.Indicators.AdjClose) > 0 && len(result.Indicators.AdjClose[0].AdjClose) > 0 {
		closes = result.Indicators.AdjClose[0].AdjClose
	} else if len(result.Indicators.Quote) > 0 {
		closes = result.Indicators.Quote[0].Close
	}

	points := make([]models.PricePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		points = append(points, models.PricePoint{
			Date:  tradingDate(ts, result.Meta.GMTOffset),
			Close: *closes[i],
		})
	}

	return buildSeries(ticker, points, start, end)
}
