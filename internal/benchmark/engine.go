// Package benchmark replays a user's purchase schedule into alternative assets and scores the
// resulting returns.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"xirr-benchmark/internal/fetcher"
	"xirr-benchmark/internal/score"
	"xirr-benchmark/internal/xirr"
)

// FailurePolicy decides what a market row shows when its return cannot be derived.
type FailurePolicy string

const (
	PolicyNull     FailurePolicy = "null"
	PolicyFallback FailurePolicy = "fallback"
)

// Row status values.
const (
	StatusLive        = "live"
	StatusFixed       = "fixed"
	StatusFallback    = "fallback"
	StatusUnavailable = "unavailable"
)

const (
	DefaultConcurrency = 4
	DefaultPadDays     = 3

	fixedSource = "Fixed benchmark assumption"
)

// Row is one line of the benchmark table.
type Row struct {
	Asset       string          `json:"asset"`
	XIRRPercent *float64        `json:"xirrPercent"`
	Source      string          `json:"source"`
	Score       *int            `json:"score"`
	Status      string          `json:"status"`
	Cashflows   []xirr.Cashflow `json:"-"`
}

// Options configure the engine.
type Options struct {
	HomeCurrency string
	FX           FX
	Assets       []Asset
	Policy       FailurePolicy
	Concurrency  int
	PadDays      int
	// Budget caps the time spent resolving series for one Run. Assets still
	// fetching when it runs out are reported through the failure policy.
	Budget time.Duration
}

// Engine computes benchmark rows.
type Engine struct {
	opts   Options
	source SeriesSource
	scores *score.Mapper
	logger zerolog.Logger
}

// NewEngine validates opts and returns an engine that resolves prices through source.
func NewEngine(opts Options, source SeriesSource, scores *score.Mapper, logger zerolog.Logger) (*Engine, error) {
	if source == nil {
		return nil, errors.New("benchmark: series source is required")
	}
	if scores == nil {
		return nil, errors.New("benchmark: score mapper is required")
	}
	if opts.HomeCurrency == "" {
		opts.HomeCurrency = DefaultHomeCurrency
	}
	if len(opts.Assets) == 0 {
		opts.Assets = DefaultAssets()
	}
	if len(opts.FX.Symbols) == 0 {
		opts.FX = DefaultFX()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.PadDays < 0 {
		opts.PadDays = 0
	}
	if opts.Budget < 0 {
		opts.Budget = 0
	}
	switch opts.Policy {
	case "":
		opts.Policy = PolicyNull
	case PolicyNull, PolicyFallback:
	default:
		return nil, fmt.Errorf("benchmark: unknown failure policy %q", opts.Policy)
	}

	for _, a := range opts.Assets {
		if a.Kind == KindMarket && len(a.Symbols) == 0 {
			return nil, fmt.Errorf("benchmark: asset %s has no symbols", a.Name)
		}
		if a.needsFX(opts.HomeCurrency) && !strings.EqualFold(a.QuoteCurrency, opts.FX.From) {
			return nil, fmt.Errorf("benchmark: asset %s quoted in %s but fx converts %s", a.Name, a.QuoteCurrency, opts.FX.From)
		}
	}

	return &Engine{
		opts:   opts,
		source: source,
		scores: scores,
		logger: logger.With().Str("component", "benchmark").Logger(),
	}, nil
}

// Assets returns the configured asset table.
func (e *Engine) Assets() []Asset { return e.opts.Assets }

// Window returns the padded fetch window covering purchases through saleDate.
func (e *Engine) Window(purchases []xirr.Cashflow, saleDate time.Time) fetcher.Window {
	start := saleDate
	for _, p := range purchases {
		if p.Date.Before(start) {
			start = p.Date
		}
	}
	return fetcher.Window{Start: start, End: saleDate}.Padded(e.opts.PadDays)
}

// Run evaluates every asset and returns rows in table order. A failing asset never aborts the others.
func (e *Engine) Run(ctx context.Context, purchases []xirr.Cashflow, saleDate time.Time) []Row {
	rows := make([]Row, len(e.opts.Assets))
	window := e.Window(purchases, saleDate)

	if e.opts.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Budget)
		defer cancel()
	}

	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)
	for i, asset := range e.opts.Assets {
		if asset.Kind != KindMarket {
			ret := asset.FixedReturnPercent
			rows[i] = Row{Asset: asset.Name, XIRRPercent: &ret, Source: fixedSource, Status: StatusFixed}
			continue
		}
		i, asset := i, asset
		g.Go(func() error {
			rows[i] = e.marketRow(ctx, asset, purchases, saleDate, window)
			return nil
		})
	}
	_ = g.Wait()

	for i := range rows {
		rows[i].Score = e.scores.Ptr(rows[i].XIRRPercent)
	}
	return rows
}

func (e *Engine) marketRow(ctx context.Context, asset Asset, purchases []xirr.Cashflow, saleDate time.Time, w fetcher.Window) Row {
	log := e.logger.With().Str("asset", asset.Name).Logger()

	prices, err := e.source.Series(ctx, asset.Provider, asset.Symbols, w)
	if err != nil {
		return e.failedRow(log, asset, fmt.Errorf("price history: %w", err))
	}

	needsFX := asset.needsFX(e.opts.HomeCurrency)
	var fx fetcher.Result
	if needsFX {
		fx, err = e.source.Series(ctx, e.opts.FX.Provider, e.opts.FX.Symbols, w)
		if err != nil {
			return e.failedRow(log, asset, fmt.Errorf("fx history: %w", err))
		}
	}

	out, err := Evaluate(purchases, saleDate, prices.Series, fx.Series, needsFX)
	if err != nil {
		return e.failedRow(log, asset, err)
	}

	pct := out.Rate * 100
	source := fmt.Sprintf("%s (%s)", prices.Provider, prices.Symbol)
	if needsFX {
		source += fmt.Sprintf(" via %s (%s)", fx.Provider, fx.Symbol)
	}
	log.Debug().Float64("xirr_pct", pct).Float64("units", out.Units).Float64("proceeds", out.Proceeds).Msg("benchmark evaluated")

	return Row{Asset: asset.Name, XIRRPercent: &pct, Source: source, Status: StatusLive, Cashflows: out.Cashflows}
}

func (e *Engine) failedRow(log zerolog.Logger, asset Asset, err error) Row {
	reason := Diagnose(err)
	log.Warn().Err(err).Str("policy", string(e.opts.Policy)).Msg("benchmark unavailable")

	if e.opts.Policy == PolicyFallback {
		ret := asset.FallbackReturnPercent
		return Row{
			Asset:       asset.Name,
			XIRRPercent: &ret,
			Source:      fmt.Sprintf("Fallback benchmark assumption (%s)", reason),
			Status:      StatusFallback,
		}
	}
	return Row{Asset: asset.Name, Source: "Unavailable: " + reason, Status: StatusUnavailable}
}

// Diagnose condenses an evaluation error into a short human readable reason.
func Diagnose(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	var chain *fetcher.ChainError
	if errors.As(err, &chain) {
		if last := chain.Last(); last != nil {
			msg = fmt.Sprintf("%d attempts failed, last: %v", len(chain.Failures), last)
		}
	}
	switch {
	case errors.Is(err, xirr.ErrNoConvergence), errors.Is(err, xirr.ErrDegenerate):
		msg = "synthetic cashflows did not converge"
	}
	return truncate(msg, 200)
}

// truncate cuts msg to at most limit bytes without splitting a rune.
func truncate(msg string, limit int) string {
	if len(msg) <= limit {
		return msg
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut] + "..."
}
