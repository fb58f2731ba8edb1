package benchmark

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"xirr-benchmark/internal/cache"
	"xirr-benchmark/internal/fetcher"
)

// SeriesSource resolves a price history for a list of symbol spellings.
type SeriesSource interface {
	Series(ctx context.Context, provider string, symbols []string, w fetcher.Window) (fetcher.Result, error)
}

// CachedSource fetches through registered providers and memoises results in a history cache.
type CachedSource struct {
	providers map[string]fetcher.Provider
	cache     *cache.History
	sleep     fetcher.SleepFunc
	logger    zerolog.Logger
}

// NewCachedSource builds a source. A nil sleep uses fetcher.Sleep.
func NewCachedSource(providers map[string]fetcher.Provider, history *cache.History, sleep fetcher.SleepFunc, logger zerolog.Logger) *CachedSource {
	if sleep == nil {
		sleep = fetcher.Sleep
	}
	normalized := make(map[string]fetcher.Provider, len(providers))
	for id, p := range providers {
		normalized[strings.ToLower(id)] = p
	}
	return &CachedSource{
		providers: normalized,
		cache:     history,
		sleep:     sleep,
		logger:    logger.With().Str("component", "series_source").Logger(),
	}
}

// Providers returns the registered provider identifiers, sorted.
func (s *CachedSource) Providers() []string {
	ids := make([]string, 0, len(s.providers))
	for id := range s.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Series implements SeriesSource.
func (s *CachedSource) Series(ctx context.Context, provider string, symbols []string, w fetcher.Window) (fetcher.Result, error) {
	p, ok := s.providers[strings.ToLower(provider)]
	if !ok {
		return fetcher.Result{}, fmt.Errorf("unknown provider %q", provider)
	}
	if len(symbols) == 0 {
		return fetcher.Result{}, fmt.Errorf("%s: no symbols configured", p.Name())
	}

	fetch := func(ctx context.Context) (fetcher.Result, error) {
		res, err := fetcher.Fetch(ctx, p, symbols, w, s.sleep)
		if err != nil {
			s.logger.Warn().Err(err).Str("provider", p.Name()).Strs("symbols", symbols).Msg("history fetch failed")
			return fetcher.Result{}, err
		}
		s.logger.Debug().
			Str("provider", res.Provider).
			Str("symbol", res.Symbol).
			Str("attempt", res.Label).
			Int("points", len(res.Series)).
			Msg("history fetched")
		return res, nil
	}

	if s.cache == nil {
		return fetch(ctx)
	}
	key := cache.Key{Provider: p.Name(), Symbol: strings.Join(symbols, ","), Start: w.Start, End: w.End}
	return s.cache.GetOrFetch(ctx, key, fetch)
}

var _ SeriesSource = (*CachedSource)(nil)
