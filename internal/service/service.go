package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"xirr-benchmark/internal/benchmark"
	"xirr-benchmark/internal/score"
	"xirr-benchmark/internal/xirr"
)

// Benchmarker produces the benchmark table for a purchase schedule.
type Benchmarker interface {
	Run(ctx context.Context, purchases []xirr.Cashflow, saleDate time.Time) []benchmark.Row
}

// Options configure the analysis service.
type Options struct {
	HomeCurrency string
	Now          func() time.Time
}

// Result is the analysis returned to clients.
type Result struct {
	BuyDate         string          `json:"buyDate"`
	SellDate        string          `json:"sellDate"`
	UserXIRRPercent float64         `json:"userXirrPercent"`
	DecisionScore   int             `json:"decisionScore"`
	BenchmarkRows   []benchmark.Row `json:"benchmarkRows"`
	TotalInvested   decimal.Decimal `json:"totalInvested"`
	TotalReturned   decimal.Decimal `json:"totalReturned"`
	HomeCurrency    string          `json:"homeCurrency"`
}

// Service validates transactions, computes the user's return and orchestrates benchmarks.
type Service struct {
	engine Benchmarker
	scores *score.Mapper
	home   string
	now    func() time.Time
	logger zerolog.Logger
}

// New constructs the analysis service.
func New(opts Options, engine Benchmarker, scores *score.Mapper, logger zerolog.Logger) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HomeCurrency == "" {
		opts.HomeCurrency = benchmark.DefaultHomeCurrency
	}
	return &Service{
		engine: engine,
		scores: scores,
		home:   opts.HomeCurrency,
		now:    opts.Now,
		logger: logger.With().Str("component", "service").Logger(),
	}
}

// Analyze runs the full analysis. Every returned error is a *Error.
func (s *Service) Analyze(ctx context.Context, req Request) (*Result, error) {
	flows := usableFlows(req.Transactions)
	if len(flows) < 2 {
		return nil, ErrInsufficientTransactions
	}

	firstBuy, firstSell := -1, -1
	for i, f := range flows {
		if firstBuy < 0 && f.amount.IsNegative() {
			firstBuy = i
		}
		if firstSell < 0 && f.amount.IsPositive() {
			firstSell = i
		}
	}
	if firstBuy < 0 || firstSell < 0 {
		return nil, ErrMissingPurchaseOrSale
	}

	saleDate := flows[firstSell].date
	if saleDate.After(today(s.now())) {
		return nil, ErrFutureSale
	}

	cashflows := make([]xirr.Cashflow, len(flows))
	for i, f := range flows {
		cashflows[i] = xirr.Cashflow{Date: f.date, Amount: f.amount.InexactFloat64()}
	}
	rate, err := xirr.Solve(cashflows)
	if err != nil {
		s.logger.Debug().Err(err).Int("cashflows", len(cashflows)).Msg("user xirr failed")
		return nil, withCause(ErrXIRRFailed, err)
	}
	userPct := rate * 100
	decision, ok := s.scores.FromReturn(userPct)
	if !ok {
		return nil, withCause(ErrXIRRFailed, fmt.Errorf("non-finite return %v", userPct))
	}

	var purchases []xirr.Cashflow
	invested, returned := decimal.Zero, decimal.Zero
	for i, f := range flows {
		switch {
		case f.amount.IsNegative():
			invested = invested.Add(f.amount.Neg())
			if !f.date.After(saleDate) {
				purchases = append(purchases, cashflows[i])
			}
		case f.amount.IsPositive():
			returned = returned.Add(f.amount)
		}
	}

	rows := s.engine.Run(ctx, purchases, saleDate)
	if err := ctx.Err(); err != nil {
		s.logger.Warn().Err(err).Msg("request deadline reached while benchmarking; unresolved assets are marked unavailable")
	}
	if len(rows) == 0 {
		return nil, Internal(errors.New("benchmark engine returned no rows"))
	}

	s.logger.Info().
		Str("buy_date", flows[firstBuy].date.Format(DateLayout)).
		Str("sell_date", saleDate.Format(DateLayout)).
		Float64("xirr_pct", userPct).
		Int("score", decision).
		Int("purchases", len(purchases)).
		Msg("analysis complete")

	return &Result{
		BuyDate:         flows[firstBuy].date.Format(DateLayout),
		SellDate:        saleDate.Format(DateLayout),
		UserXIRRPercent: userPct,
		DecisionScore:   decision,
		BenchmarkRows:   rows,
		TotalInvested:   invested,
		TotalReturned:   returned,
		HomeCurrency:    s.home,
	}, nil
}

// usableFlows keeps transactions with a parseable date and finite amount, sorted by date.
func usableFlows(txs []Transaction) []flow {
	flows := make([]flow, 0, len(txs))
	for _, tx := range txs {
		if !tx.Amount.Valid {
			continue
		}
		if f := tx.Amount.Value.InexactFloat64(); math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		d, err := ParseDate(tx.Date)
		if err != nil {
			continue
		}
		flows = append(flows, flow{date: d, amount: tx.Amount.Value})
	}
	sort.SliceStable(flows, func(i, j int) bool { return flows[i].date.Before(flows[j].date) })
	return flows
}

func today(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
