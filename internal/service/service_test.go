package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xirr-benchmark/internal/benchmark"
	"xirr-benchmark/internal/fetcher"
	"xirr-benchmark/internal/score"
	"xirr-benchmark/internal/xirr"
)

type recordingEngine struct {
	purchases []xirr.Cashflow
	saleDate  time.Time
	rows      []benchmark.Row
}

func (r *recordingEngine) Run(_ context.Context, purchases []xirr.Cashflow, saleDate time.Time) []benchmark.Row {
	r.purchases = purchases
	r.saleDate = saleDate
	return r.rows
}

func fixedRows() []benchmark.Row {
	seven := 7.0
	ten := 10
	return []benchmark.Row{{Asset: "FD", XIRRPercent: &seven, Score: &ten, Status: benchmark.StatusFixed}}
}

func newTestService(engine Benchmarker) *Service {
	now := func() time.Time { return time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC) }
	return New(Options{Now: now}, engine, score.MustMapper(score.DefaultBands()), zerolog.Nop())
}

func tx(date, amount string) Transaction {
	return Transaction{Date: date, Amount: ParseAmount(amount)}
}

func TestAnalyzeHappyPath(t *testing.T) {
	engine := &recordingEngine{rows: fixedRows()}
	svc := newTestService(engine)

	res, err := svc.Analyze(context.Background(), Request{Transactions: []Transaction{
		tx("2024-01-01", "1500"),
		tx("2023-01-01", "-1000"),
	}})
	require.NoError(t, err)

	assert.Equal(t, "2023-01-01", res.BuyDate)
	assert.Equal(t, "2024-01-01", res.SellDate)
	assert.InDelta(t, 50.0, res.UserXIRRPercent, 1e-6)
	assert.Equal(t, 55, res.DecisionScore)
	assert.Equal(t, "1000", res.TotalInvested.String())
	assert.Equal(t, "1500", res.TotalReturned.String())
	assert.Equal(t, "INR", res.HomeCurrency)
	assert.Len(t, res.BenchmarkRows, 1)

	require.Len(t, engine.purchases, 1)
	assert.Equal(t, -1000.0, engine.purchases[0].Amount)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), engine.saleDate)
}

func TestAnalyzeExcludesPurchasesAfterFirstSale(t *testing.T) {
	engine := &recordingEngine{rows: fixedRows()}
	svc := newTestService(engine)

	_, err := svc.Analyze(context.Background(), Request{Transactions: []Transaction{
		tx("2022-01-01", "-1000"),
		tx("2022-06-01", "-500"),
		tx("2023-01-01", "800"),
		tx("2023-06-01", "-200"),
		tx("2024-01-01", "1400"),
	}})
	require.NoError(t, err)

	require.Len(t, engine.purchases, 2)
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), engine.saleDate)
}

func TestAnalyzeValidation(t *testing.T) {
	cases := []struct {
		name string
		txs  []Transaction
		want *Error
	}{
		{"empty", nil, ErrInsufficientTransactions},
		{"single", []Transaction{tx("2023-01-01", "-1000")}, ErrInsufficientTransactions},
		{"garbage filtered", []Transaction{tx("not-a-date", "-1000"), tx("2024-01-01", "abc"), tx("2024-01-01", "100")}, ErrInsufficientTransactions},
		{"no sale", []Transaction{tx("2023-01-01", "-1000"), tx("2023-02-01", "-10")}, ErrMissingPurchaseOrSale},
		{"no purchase", []Transaction{tx("2023-01-01", "1000"), tx("2023-02-01", "10")}, ErrMissingPurchaseOrSale},
		{"future sale", []Transaction{tx("2024-01-01", "-1000"), tx("2025-06-02", "1200")}, ErrFutureSale},
		{"same day", []Transaction{tx("2024-01-01", "1000"), tx("2024-01-01", "-1000")}, ErrXIRRFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := &recordingEngine{rows: fixedRows()}
			_, err := newTestService(engine).Analyze(context.Background(), Request{Transactions: tc.txs})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)

			var svcErr *Error
			require.True(t, errors.As(err, &svcErr))
			assert.True(t, svcErr.Validation())
			assert.Equal(t, tc.want.Message, svcErr.Message)
			assert.Nil(t, engine.purchases, "engine must not run on invalid input")
		})
	}
}

func TestAnalyzeSaleTodayAllowed(t *testing.T) {
	svc := newTestService(&recordingEngine{rows: fixedRows()})
	_, err := svc.Analyze(context.Background(), Request{Transactions: []Transaction{
		tx("2024-06-01", "-1000"),
		tx("2025-06-01", "1100"),
	}})
	assert.NoError(t, err)
}

func TestAnalyzeCancelledContextKeepsRows(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newTestService(&recordingEngine{rows: fixedRows()}).Analyze(ctx, Request{Transactions: []Transaction{
		tx("2023-01-01", "-1000"),
		tx("2024-01-01", "1500"),
	}})
	require.NoError(t, err)
	assert.Len(t, res.BenchmarkRows, 1)
}

// stalledSource never answers before the caller gives up.
type stalledSource struct{}

func (stalledSource) Series(ctx context.Context, _ string, _ []string, _ fetcher.Window) (fetcher.Result, error) {
	<-ctx.Done()
	return fetcher.Result{}, ctx.Err()
}

func TestAnalyzeSlowUpstreamMarksRowsUnavailable(t *testing.T) {
	mapper := score.MustMapper(score.DefaultBands())
	engine, err := benchmark.NewEngine(benchmark.Options{Budget: 20 * time.Millisecond}, stalledSource{}, mapper, zerolog.Nop())
	require.NoError(t, err)
	svc := New(Options{Now: func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }}, engine, mapper, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := svc.Analyze(ctx, Request{Transactions: []Transaction{
		tx("2023-01-01", "-1000"),
		tx("2024-01-01", "1500"),
	}})
	require.NoError(t, err)
	assert.Equal(t, 55, res.DecisionScore)
	require.Len(t, res.BenchmarkRows, 6)

	for _, row := range res.BenchmarkRows {
		switch row.Asset {
		case "FD", "Real Estate":
			assert.Equal(t, benchmark.StatusFixed, row.Status, row.Asset)
			assert.NotNil(t, row.Score, row.Asset)
		default:
			assert.Equal(t, benchmark.StatusUnavailable, row.Status, row.Asset)
			assert.Nil(t, row.XIRRPercent, row.Asset)
			assert.Contains(t, row.Source, "deadline exceeded", row.Asset)
		}
	}
}

func TestRequestDecoding(t *testing.T) {
	body := `{"transactions":[
		{"date":"2023-01-01","amount":-1000},
		{"date":"2023-6-5","amount":"-250.50"},
		{"date":"2024-01-01T10:00:00+05:30","amount":"1,500"},
		{"date":"2024-02-01","amount":null},
		{"date":"2024-02-02","amount":"lots"},
		{"date":"2024-02-03","amount":true}
	]}`

	var req Request
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	require.Len(t, req.Transactions, 6)

	assert.True(t, req.Transactions[0].Amount.Value.Equal(decimal.NewFromInt(-1000)))
	assert.True(t, req.Transactions[1].Amount.Value.Equal(decimal.RequireFromString("-250.5")))
	assert.True(t, req.Transactions[2].Amount.Value.Equal(decimal.NewFromInt(1500)))
	for _, i := range []int{3, 4, 5} {
		assert.False(t, req.Transactions[i].Amount.Valid, "entry %d", i)
	}

	flows := usableFlows(req.Transactions)
	require.Len(t, flows, 3)
	assert.Equal(t, time.Date(2023, 6, 5, 0, 0, 0, 0, time.UTC), flows[1].date)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), flows[2].date)
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2024-03-09", "2024-3-9", " 2024-03-09 ", "2024-03-09T23:59:00Z"} {
		d, err := ParseDate(s)
		require.NoError(t, err, s)
		assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), d, s)
	}
	_, err := ParseDate("09/03/2024")
	assert.Error(t, err)
}

func TestInternalKeepsServiceErrors(t *testing.T) {
	assert.Same(t, ErrFutureSale, Internal(ErrFutureSale))

	wrapped := Internal(errors.New("db exploded"))
	assert.Equal(t, CodeInternal, wrapped.Code)
	assert.Equal(t, "db exploded", wrapped.Message)
	assert.False(t, wrapped.Validation())
}
