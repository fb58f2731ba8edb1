package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const yahooChartPath = "/v8/finance/chart/"

// DefaultYahooHosts are the equivalent chart API hosts, tried in order.
var DefaultYahooHosts = []string{
	"https://query1.finance.yahoo.com",
	"https://query2.finance.yahoo.com",
}

// YahooOptions parameterise the Yahoo Finance chart fetcher.
type YahooOptions struct {
	Hosts     []string
	Timeout   time.Duration
	UserAgent string
	Retry     RetryPolicy
}

// Yahoo fetches daily closes from the Yahoo Finance v8 chart API.
type Yahoo struct {
	opts   YahooOptions
	hosts  []string
	client *http.Client
	logger zerolog.Logger
}

// NewYahoo constructs a Yahoo Finance provider.
func NewYahoo(opts YahooOptions, logger zerolog.Logger) *Yahoo {
	hosts := make([]string, 0, len(opts.Hosts))
	for _, h := range opts.Hosts {
		if h = strings.TrimRight(strings.TrimSpace(h), "/"); h != "" {
			hosts = append(hosts, h)
		}
	}
	if len(hosts) == 0 {
		hosts = append(hosts, DefaultYahooHosts...)
	}

	return &Yahoo{
		opts:   opts,
		hosts:  hosts,
		client: newHTTPClient(opts.Timeout),
		logger: logger.With().Str("component", "yahoo_fetcher").Logger(),
	}
}

// Name returns the provider's display name.
func (y *Yahoo) Name() string { return "Yahoo Finance" }

// Attempts returns one retry group per host for symbol.
func (y *Yahoo) Attempts(symbol string, w Window) []Attempt {
	var out []Attempt
	for _, host := range y.hosts {
		endpoint := chartURL(host, symbol, w)
		out = append(out, y.opts.Retry.Expand(Attempt{
			Label:  fmt.Sprintf("%s %s", hostLabel(host), symbol),
			Symbol: symbol,
			Do: func(ctx context.Context) (Series, error) {
				return y.fetchChart(ctx, symbol, endpoint)
			},
		})...)
	}
	return out
}

func chartURL(host, symbol string, w Window) string {
	q := url.Values{}
	q.Set("period1", strconv.FormatInt(w.Start.Unix(), 10))
	q.Set("period2", strconv.FormatInt(w.End.Unix(), 10))
	q.Set("interval", "1d")
	q.Set("events", "history")
	return host + yahooChartPath + url.PathEscape(symbol) + "?" + q.Encode()
}

func hostLabel(host string) string {
	if u, err := url.Parse(host); err == nil && u.Host != "" {
		return u.Host
	}
	return host
}

func (y *Yahoo) fetchChart(ctx context.Context, symbol, endpoint string) (Series, error) {
	header := http.Header{}
	header.Set("User-Agent", userAgent(y.opts.UserAgent))

	status, body, err := get(ctx, y.client, endpoint, header)
	if err != nil {
		y.logger.Debug().Err(err).Str("symbol", symbol).Msg("chart request failed")
		return nil, networkError(y.Name(), symbol, endpoint, err)
	}

	var payload yahooChartResponse
	decodeErr := json.Unmarshal(body, &payload)

	if status != http.StatusOK {
		msg := truncate(string(body), 200)
		if decodeErr == nil && payload.Chart.Error != nil {
			msg = payload.Chart.Error.String()
		}
		y.logger.Debug().Int("status", status).Str("symbol", symbol).Msg("chart request rejected")
		return nil, statusError(y.Name(), symbol, endpoint, status, msg)
	}
	if decodeErr != nil {
		return nil, payloadError(y.Name(), symbol, endpoint, fmt.Sprintf("decode chart: %v", decodeErr))
	}

	return parseChart(y.Name(), symbol, endpoint, payload)
}

func parseChart(provider, symbol, endpoint string, payload yahooChartResponse) (Series, error) {
	if payload.Chart.Error != nil {
		return nil, payloadError(provider, symbol, endpoint, payload.Chart.Error.String())
	}
	if len(payload.Chart.Result) == 0 {
		return nil, payloadError(provider, symbol, endpoint, "chart result missing")
	}

	res := payload.Chart.Result[0]
	if len(res.Timestamp) == 0 {
		return nil, payloadError(provider, symbol, endpoint, "market data missing: no timestamps")
	}
	if len(res.Indicators.Quote) == 0 || len(res.Indicators.Quote[0].Close) == 0 {
		return nil, payloadError(provider, symbol, endpoint, "market data missing: no closes")
	}

	closes := res.Indicators.Quote[0].Close
	points := make([]Point, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		points = append(points, Point{Time: time.Unix(ts, 0).UTC(), Price: *closes[i]})
	}

	series := Clean(points)
	if len(series) == 0 {
		return nil, payloadError(provider, symbol, endpoint, ErrEmptySeries.Error())
	}
	return series, nil
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol   string `json:"symbol"`
				Currency string `json:"currency"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *yahooChartError `json:"error"`
	} `json:"chart"`
}

type yahooChartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *yahooChartError) String() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

var _ Provider = (*Yahoo)(nil)
