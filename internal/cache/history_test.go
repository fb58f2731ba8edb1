package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xirr-benchmark/internal/fetcher"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache() (*History, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewHistory(Options{TTL: 15 * time.Minute, Now: clock.Now}, zerolog.Nop()), clock
}

var testKey = Key{Provider: "Yahoo Finance", Symbol: "GC=F", Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}

func result(price float64) fetcher.Result {
	return fetcher.Result{Provider: "Yahoo Finance", Symbol: "GC=F", Series: fetcher.Series{{Time: testKey.Start, Price: price}}}
}

func TestGetOrFetchHitWithinTTL(t *testing.T) {
	c, clock := newTestCache()
	calls := 0
	fetch := func(context.Context) (fetcher.Result, error) {
		calls++
		return result(float64(calls)), nil
	}

	first, err := c.GetOrFetch(context.Background(), testKey, fetch)
	require.NoError(t, err)

	clock.Advance(15 * time.Minute)
	second, err := c.GetOrFetch(context.Background(), testKey, fetch)
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "a hit at exactly the TTL must not refetch")
	assert.Equal(t, first.Series[0].Price, second.Series[0].Price)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestGetOrFetchRefreshesAfterExpiry(t *testing.T) {
	c, clock := newTestCache()
	calls := 0
	fetch := func(context.Context) (fetcher.Result, error) {
		calls++
		return result(float64(calls)), nil
	}

	_, err := c.GetOrFetch(context.Background(), testKey, fetch)
	require.NoError(t, err)

	clock.Advance(15*time.Minute + time.Second)
	res, err := c.GetOrFetch(context.Background(), testKey, fetch)
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 2.0, res.Series[0].Price)
}

func TestGetOrFetchNeverCachesFailure(t *testing.T) {
	c, _ := newTestCache()
	boom := errors.New("upstream down")
	calls := 0

	_, err := c.GetOrFetch(context.Background(), testKey, func(context.Context) (fetcher.Result, error) {
		calls++
		return fetcher.Result{}, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Stats().Size)

	res, err := c.GetOrFetch(context.Background(), testKey, func(context.Context) (fetcher.Result, error) {
		calls++
		return result(7), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "a failure must allow an immediate retry")
	assert.Equal(t, 7.0, res.Series[0].Price)
}

func TestGetOrFetchCollapsesConcurrentMisses(t *testing.T) {
	c, _ := newTestCache()
	var calls atomic.Int32
	release := make(chan struct{})

	fetch := func(context.Context) (fetcher.Result, error) {
		calls.Add(1)
		<-release
		return result(1), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetOrFetch(context.Background(), testKey, fetch)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
	assert.Equal(t, 1, c.Stats().Size)
}

func TestPruneRemovesExpired(t *testing.T) {
	c, clock := newTestCache()
	other := testKey
	other.Symbol = "SI=F"

	_, _ = c.GetOrFetch(context.Background(), testKey, func(context.Context) (fetcher.Result, error) { return result(1), nil })
	clock.Advance(10 * time.Minute)
	_, _ = c.GetOrFetch(context.Background(), other, func(context.Context) (fetcher.Result, error) { return result(2), nil })
	clock.Advance(10 * time.Minute)

	assert.Equal(t, 1, c.Prune())
	_, ok := c.Get(testKey)
	assert.False(t, ok)
	_, ok = c.Get(other)
	assert.True(t, ok)
}

func TestGetOrFetchSurvivesFirstCallerCancel(t *testing.T) {
	c, _ := newTestCache()
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	fetch := func(ctx context.Context) (fetcher.Result, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		if err := ctx.Err(); err != nil {
			return fetcher.Result{}, err
		}
		return result(3), nil
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.GetOrFetch(firstCtx, testKey, fetch)
		firstErr <- err
	}()
	<-started

	type outcome struct {
		res fetcher.Result
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := c.GetOrFetch(context.Background(), testKey, fetch)
		second <- outcome{res, err}
	}()
	require.Eventually(t, func() bool { return c.Stats().Misses == 2 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, 3.0, got.res.Series[0].Price)
	assert.Equal(t, int32(1), calls.Load(), "the second caller should join the in-flight fetch")
	assert.Equal(t, 1, c.Stats().Size)
}

func TestGetOrFetchBoundsDetachedFetch(t *testing.T) {
	c := NewHistory(Options{TTL: time.Minute, FetchTimeout: 20 * time.Millisecond}, zerolog.Nop())

	_, err := c.GetOrFetch(context.Background(), testKey, func(ctx context.Context) (fetcher.Result, error) {
		<-ctx.Done()
		return fetcher.Result{}, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, c.Stats().Size)
}
