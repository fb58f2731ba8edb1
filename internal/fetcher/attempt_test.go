package fetcher

import (
	"context"
	"errors"
	"testing"
	"time"
)

func okSeries() Series {
	return Series{{Time: d(1), Price: 1}}
}

func TestRunRetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	var delays []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	attempts := fastRetry(3).Expand(Attempt{Label: "a", Symbol: "X", Do: func(context.Context) (Series, error) {
		calls++
		if calls < 3 {
			return nil, &FetchError{StatusCode: 503, Transient: true}
		}
		return okSeries(), nil
	}})

	series, used, err := Run(context.Background(), attempts, sleep)
	if err != nil {
		t.Fatalf("expected success on third attempt: %v", err)
	}
	if calls != 3 || len(series) != 1 || used.Symbol != "X" {
		t.Fatalf("unexpected result calls=%d used=%+v", calls, used)
	}
	if len(delays) != 2 || delays[0] != time.Millisecond || delays[1] != 2*time.Millisecond {
		t.Fatalf("backoff delays should grow, got %v", delays)
	}
}

func TestRunSkipsGroupOnPermanentFailure(t *testing.T) {
	firstCalls, secondCalls := 0, 0
	attempts := append(
		fastRetry(3).Expand(Attempt{Label: "first", Do: func(context.Context) (Series, error) {
			firstCalls++
			return nil, &FetchError{StatusCode: 404, Message: "not found"}
		}}),
		fastRetry(3).Expand(Attempt{Label: "second", Symbol: "Y", Do: func(context.Context) (Series, error) {
			secondCalls++
			return okSeries(), nil
		}})...,
	)

	_, used, err := Run(context.Background(), attempts, noSleep)
	if err != nil {
		t.Fatalf("second group should succeed: %v", err)
	}
	if firstCalls != 1 {
		t.Fatalf("404 should not be retried, calls=%d", firstCalls)
	}
	if secondCalls != 1 || used.Symbol != "Y" {
		t.Fatalf("expected fallback to second group, used=%+v", used)
	}
}

func TestRunTreatsEmptySeriesAsFailure(t *testing.T) {
	attempts := []Attempt{{Label: "empty", Do: func(context.Context) (Series, error) { return Series{}, nil }}}

	_, _, err := Run(context.Background(), attempts, noSleep)
	if !errors.Is(err, ErrEmptySeries) {
		t.Fatalf("empty series must fail, got %v", err)
	}
}

func TestRunAccumulatesDiagnostics(t *testing.T) {
	attempts := append(
		fastRetry(2).Expand(Attempt{Label: "h1", Do: func(context.Context) (Series, error) {
			return nil, &FetchError{StatusCode: 429, Transient: true, Message: "slow down"}
		}}),
		Attempt{Label: "h2", Do: func(context.Context) (Series, error) {
			return nil, &FetchError{StatusCode: 400, Message: "bad"}
		}},
	)

	_, _, err := Run(context.Background(), attempts, noSleep)
	var chain *ChainError
	if !errors.As(err, &chain) {
		t.Fatalf("expected ChainError, got %T", err)
	}
	if len(chain.Failures) != 3 {
		t.Fatalf("expected 3 recorded failures, got %d", len(chain.Failures))
	}
	var fe *FetchError
	if !errors.As(chain.Last(), &fe) || fe.StatusCode != 400 {
		t.Fatalf("last failure should be the 400, got %v", chain.Last())
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, _, err := Run(ctx, []Attempt{{Label: "x", Do: func(context.Context) (Series, error) {
		called = true
		return okSeries(), nil
	}}}, noSleep)
	if err == nil || called {
		t.Fatal("cancelled context must not issue attempts")
	}
}

func TestBackoffCapped(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Second, MaxBackoff: 3 * time.Second, Multiplier: 2}
	want := []time.Duration{0, time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}
	for i, w := range want {
		if got := p.Backoff(i); got != w {
			t.Fatalf("Backoff(%d) = %v, want %v", i, got, w)
		}
	}
}

type stubProvider struct {
	series map[string]Series
}

func (s stubProvider) Name() string { return "stub" }

func (s stubProvider) Attempts(symbol string, _ Window) []Attempt {
	return []Attempt{{Label: "stub " + symbol, Symbol: symbol, Do: func(context.Context) (Series, error) {
		if series, ok := s.series[symbol]; ok {
			return series, nil
		}
		return nil, &FetchError{Provider: "stub", Symbol: symbol, Message: "unknown symbol"}
	}}}
}

func TestFetchFallsBackAcrossSymbols(t *testing.T) {
	p := stubProvider{series: map[string]Series{"XAUUSD=X": okSeries()}}

	res, err := Fetch(context.Background(), p, []string{"GC=F", "XAUUSD=X"}, testWindow(), noSleep)
	if err != nil {
		t.Fatalf("second spelling should succeed: %v", err)
	}
	if res.Symbol != "XAUUSD=X" || res.Provider != "stub" {
		t.Fatalf("unexpected result %+v", res)
	}

	if _, err := Fetch(context.Background(), p, nil, testWindow(), noSleep); err == nil {
		t.Fatal("no symbols should be an error")
	}
}

func TestRetryPolicyWorstCase(t *testing.T) {
	// 3 x 10s requests plus 500ms and 1s backoff.
	if got := DefaultRetryPolicy().WorstCase(10 * time.Second); got != 31500*time.Millisecond {
		t.Fatalf("unexpected worst case %v", got)
	}
	if got := (RetryPolicy{}).WorstCase(time.Second); got != time.Second {
		t.Fatalf("zero policy should still make one request, got %v", got)
	}
}
