package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultCoinGeckoBaseURL = "https://api.coingecko.com/api/v3"

var coinGeckoIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"SOL":  "solana",
	"XRP":  "ripple",
	"DOGE": "dogecoin",
}

// LookupCoinGeckoID maps a ticker such as BTC or BTC-USD to a CoinGecko coin id.
func LookupCoinGeckoID(symbol string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.IndexByte(s, '-'); i > 0 {
		s = s[:i]
	}
	id, ok := coinGeckoIDs[s]
	return id, ok
}

// CoinGeckoOptions parameterise the CoinGecko market chart fetcher.
type CoinGeckoOptions struct {
	BaseURL    string
	APIKey     string
	VsCurrency string
	Timeout    time.Duration
	UserAgent  string
	Retry      RetryPolicy
}

// CoinGecko fetches historical prices from the CoinGecko market_chart/range API.
type CoinGecko struct {
	opts    CoinGeckoOptions
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewCoinGecko constructs a CoinGecko provider.
func NewCoinGecko(opts CoinGeckoOptions, logger zerolog.Logger) *CoinGecko {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultCoinGeckoBaseURL
	}
	if opts.VsCurrency == "" {
		opts.VsCurrency = "usd"
	}
	opts.VsCurrency = strings.ToLower(opts.VsCurrency)

	return &CoinGecko{
		opts:    opts,
		baseURL: baseURL,
		client:  newHTTPClient(opts.Timeout),
		logger:  logger.With().Str("component", "coingecko_fetcher").Logger(),
	}
}

// Name returns the provider's display name.
func (c *CoinGecko) Name() string { return "CoinGecko" }

// Attempts returns the retry group for symbol, or a single failing attempt for unmapped symbols.
func (c *CoinGecko) Attempts(symbol string, w Window) []Attempt {
	id, ok := LookupCoinGeckoID(symbol)
	if !ok {
		return []Attempt{{
			Label:  "coingecko " + symbol,
			Symbol: symbol,
			Do: func(context.Context) (Series, error) {
				return nil, payloadError(c.Name(), symbol, "", "no CoinGecko mapping for "+symbol)
			},
		}}
	}

	q := url.Values{}
	q.Set("vs_currency", c.opts.VsCurrency)
	q.Set("from", strconv.FormatInt(w.Start.Unix(), 10))
	q.Set("to", strconv.FormatInt(w.End.Unix(), 10))
	endpoint := c.baseURL + "/coins/" + url.PathEscape(id) + "/market_chart/range?" + q.Encode()

	return c.opts.Retry.Expand(Attempt{
		Label:  "coingecko " + id,
		Symbol: symbol,
		Do: func(ctx context.Context) (Series, error) {
			return c.fetchRange(ctx, symbol, endpoint)
		},
	})
}

func (c *CoinGecko) fetchRange(ctx context.Context, symbol, endpoint string) (Series, error) {
	header := http.Header{}
	header.Set("User-Agent", userAgent(c.opts.UserAgent))
	if key := strings.TrimSpace(c.opts.APIKey); key != "" {
		header.Set("x-cg-demo-api-key", key)
	}

	status, body, err := get(ctx, c.client, endpoint, header)
	if err != nil {
		return nil, networkError(c.Name(), symbol, endpoint, err)
	}

	var payload coinGeckoRangeResponse
	decodeErr := json.Unmarshal(body, &payload)

	if status != http.StatusOK {
		msg := truncate(string(body), 200)
		if decodeErr == nil {
			if m := payload.errorMessage(); m != "" {
				msg = m
			}
		}
		c.logger.Debug().Int("status", status).Str("symbol", symbol).Msg("market chart request rejected")
		return nil, statusError(c.Name(), symbol, endpoint, status, msg)
	}
	if decodeErr != nil {
		return nil, payloadError(c.Name(), symbol, endpoint, fmt.Sprintf("decode market chart: %v", decodeErr))
	}
	if m := payload.errorMessage(); m != "" {
		if code := payload.Status.ErrorCode; code != 0 {
			return nil, statusError(c.Name(), symbol, endpoint, code, m)
		}
		return nil, payloadError(c.Name(), symbol, endpoint, m)
	}
	if len(payload.Prices) == 0 {
		return nil, payloadError(c.Name(), symbol, endpoint, "market data missing: no prices")
	}

	points := make([]Point, 0, len(payload.Prices))
	for _, pair := range payload.Prices {
		if len(pair) < 2 || math.IsNaN(pair[0]) {
			continue
		}
		points = append(points, Point{Time: time.UnixMilli(int64(pair[0])).UTC(), Price: pair[1]})
	}

	series := Clean(points)
	if len(series) == 0 {
		return nil, payloadError(c.Name(), symbol, endpoint, ErrEmptySeries.Error())
	}
	return series, nil
}

type coinGeckoRangeResponse struct {
	Prices [][]float64 `json:"prices"`
	Error  string      `json:"error"`
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
}

func (r coinGeckoRangeResponse) errorMessage() string {
	if r.Error != "" {
		return r.Error
	}
	return r.Status.ErrorMessage
}

var _ Provider = (*CoinGecko)(nil)
