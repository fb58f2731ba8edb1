package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Attempt is one step in a fallback chain. Attempts sharing a Group are retries of the
// same request; a non-transient failure skips the rest of the group.
type Attempt struct {
	Label  string
	Group  string
	Symbol string
	Delay  time.Duration
	Do     func(ctx context.Context) (Series, error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy bounds retries of transient failures with exponential backoff.
type RetryPolicy struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	Multiplier     float64       `mapstructure:"multiplier"`
}

// DefaultRetryPolicy is three attempts starting at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialBackoff: 500 * time.Millisecond, MaxBackoff: 4 * time.Second, Multiplier: 2}
}

// Backoff returns the delay before the given retry (1 is the first retry).
func (p RetryPolicy) Backoff(retry int) time.Duration {
	if retry <= 0 || p.InitialBackoff <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := time.Duration(float64(p.InitialBackoff) * math.Pow(mult, float64(retry-1)))
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// WorstCase is the longest one expanded request can take when every attempt runs into the
// per-request timeout.
func (p RetryPolicy) WorstCase(perRequest time.Duration) time.Duration {
	n := p.MaxAttempts
	if n < 1 {
		n = 1
	}
	total := time.Duration(n) * perRequest
	for i := 1; i < n; i++ {
		total += p.Backoff(i)
	}
	return total
}

// Expand turns a single attempt into MaxAttempts attempts of the same group.
func (p RetryPolicy) Expand(a Attempt) []Attempt {
	n := p.MaxAttempts
	if n < 1 {
		n = 1
	}
	if a.Group == "" {
		a.Group = a.Label
	}
	out := make([]Attempt, 0, n)
	for i := 0; i < n; i++ {
		step := a
		step.Delay = p.Backoff(i)
		if i > 0 {
			step.Label = fmt.Sprintf("%s #%d", a.Label, i+1)
		}
		out = append(out, step)
	}
	return out
}

// Run executes attempts in order and returns the first non-empty series.
func Run(ctx context.Context, attempts []Attempt, sleep SleepFunc) (Series, Attempt, error) {
	if sleep == nil {
		sleep = Sleep
	}

	chain := &ChainError{}
	dead := make(map[string]bool)
	for _, a := range attempts {
		if dead[a.Group] {
			continue
		}
		if err := ctx.Err(); err != nil {
			chain.add(a.Label, err)
			return nil, Attempt{}, chain
		}
		if a.Delay > 0 {
			if err := sleep(ctx, a.Delay); err != nil {
				chain.add(a.Label, err)
				return nil, Attempt{}, chain
			}
		}

		series, err := a.Do(ctx)
		if err == nil && len(series) == 0 {
			err = ErrEmptySeries
		}
		if err == nil {
			return series, a, nil
		}

		chain.add(a.Label, err)
		if !IsTransient(err) || errors.Is(err, context.Canceled) {
			dead[a.Group] = true
		}
	}
	return nil, Attempt{}, chain
}

// Result is a successfully fetched series and where it came from.
type Result struct {
	Series   Series
	Provider string
	Symbol   string
	Label    string
}

// Fetch tries each symbol spelling in priority order against p.
func Fetch(ctx context.Context, p Provider, symbols []string, w Window, sleep SleepFunc) (Result, error) {
	if len(symbols) == 0 {
		return Result{}, fmt.Errorf("%s: no symbols configured", p.Name())
	}

	var attempts []Attempt
	for _, symbol := range symbols {
		attempts = append(attempts, p.Attempts(symbol, w)...)
	}

	series, used, err := Run(ctx, attempts, sleep)
	if err != nil {
		return Result{}, err
	}
	return Result{Series: series, Provider: p.Name(), Symbol: used.Symbol, Label: used.Label}, nil
}
