// Package cache memoises fetched price histories for a bounded time.
package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"xirr-benchmark/internal/fetcher"
)

const (
	// DefaultTTL is how long a fetched history stays valid.
	DefaultTTL = 15 * time.Minute
	// DefaultFetchTimeout bounds a shared fetch once it no longer follows its first caller.
	DefaultFetchTimeout = time.Minute
)

// Key identifies a cached series.
type Key struct {
	Provider string
	Symbol   string
	Start    time.Time
	End      time.Time
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s|%s", k.Provider, k.Symbol, k.Start.UTC().Format("2006-01-02"), k.End.UTC().Format("2006-01-02"))
}

// Entry is a cached fetch result.
type Entry struct {
	Result    fetcher.Result
	FetchedAt time.Time
}

// FetchFunc loads the value for a missing key.
type FetchFunc func(ctx context.Context) (fetcher.Result, error)

// Options tune the cache.
type Options struct {
	TTL          time.Duration
	FetchTimeout time.Duration
	Now          func() time.Time
}

// Stats is a point-in-time view of cache usage.
type Stats struct {
	Size    int     `json:"size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hitRate"`
}

// History is a TTL cache of price histories. Failed fetches are never stored.
type History struct {
	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	logger       zerolog.Logger

	mu      sync.RWMutex
	entries map[Key]Entry
	group   singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// NewHistory constructs an empty cache.
func NewHistory(opts Options, logger zerolog.Logger) *History {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &History{
		ttl:          opts.TTL,
		fetchTimeout: opts.FetchTimeout,
		now:          opts.Now,
		logger:       logger.With().Str("component", "history_cache").Logger(),
		entries:      make(map[Key]Entry),
	}
}

// Get returns a live entry for key.
func (h *History) Get(key Key) (fetcher.Result, bool) {
	h.mu.RLock()
	entry, ok := h.entries[key]
	h.mu.RUnlock()
	if !ok || !h.fresh(entry) {
		return fetcher.Result{}, false
	}
	return entry.Result, true
}

// GetOrFetch returns the cached result for key, calling fetch on a miss or after expiry.
// Concurrent misses on one key share a single fetch. The shared fetch runs detached from any one
// caller, bounded by the fetch timeout, and each caller stops waiting when its own ctx ends.
func (h *History) GetOrFetch(ctx context.Context, key Key, fetch FetchFunc) (fetcher.Result, error) {
	if res, ok := h.Get(key); ok {
		h.hits.Add(1)
		h.logger.Debug().Str("key", key.String()).Msg("cache hit")
		return res, nil
	}
	h.misses.Add(1)

	ch := h.group.DoChan(key.String(), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.fetchTimeout)
		defer cancel()

		res, err := fetch(fctx)
		if err != nil {
			return fetcher.Result{}, err
		}
		h.mu.Lock()
		h.entries[key] = Entry{Result: res, FetchedAt: h.now()}
		h.mu.Unlock()
		return res, nil
	})

	select {
	case <-ctx.Done():
		h.logger.Debug().Err(ctx.Err()).Str("key", key.String()).Msg("stopped waiting for fetch")
		return fetcher.Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			h.logger.Debug().Err(r.Err).Str("key", key.String()).Msg("fetch failed; not cached")
			return fetcher.Result{}, r.Err
		}
		if r.Shared {
			h.logger.Debug().Str("key", key.String()).Msg("joined in-flight fetch")
		}
		return r.Val.(fetcher.Result), nil
	}
}

// Prune drops expired entries and returns how many were removed.
func (h *History) Prune() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for k, e := range h.entries {
		if !h.fresh(e) {
			delete(h.entries, k)
			removed++
		}
	}
	return removed
}

// Stats reports cache size and hit counters.
func (h *History) Stats() Stats {
	h.mu.RLock()
	size := len(h.entries)
	h.mu.RUnlock()

	hits, misses := h.hits.Load(), h.misses.Load()
	rate := 0.0
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total) * 100
	}
	return Stats{Size: size, Hits: hits, Misses: misses, HitRate: rate}
}

// TTL returns the configured validity window.
func (h *History) TTL() time.Duration { return h.ttl }

func (h *History) fresh(e Entry) bool {
	return h.now().Sub(e.FetchedAt) <= h.ttl
}
