package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"xirr-benchmark/internal/service"
)

// Analyze reads transactions from a file and prints the benchmark comparison.
func (a *App) Analyze(ctx context.Context, opts AnalyzeOptions) error {
	if opts.File == "" {
		return errors.New("--file is required")
	}
	txs, err := readTransactions(opts.File)
	if err != nil {
		return err
	}

	svc, err := a.newService()
	if err != nil {
		return err
	}

	res, err := svc.Analyze(ctx, service.Request{Transactions: txs})
	if err != nil {
		return err
	}

	if opts.JSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	return printResult(a.out, res)
}

// readTransactions loads a JSON ({"transactions": [...]} or a bare array) or CSV (date,amount) file.
func readTransactions(path string) ([]service.Transaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transactions: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return parseTransactionsCSV(bytes.NewReader(data))
	}
	return parseTransactionsJSON(data)
}

func parseTransactionsJSON(data []byte) ([]service.Transaction, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var txs []service.Transaction
		if err := json.Unmarshal(data, &txs); err != nil {
			return nil, fmt.Errorf("decode transactions: %w", err)
		}
		return txs, nil
	}

	var req service.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	return req.Transactions, nil
}

func parseTransactionsCSV(r io.Reader) ([]service.Transaction, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode transactions csv: %w", err)
	}

	var txs []service.Transaction
	for i, rec := range records {
		if len(rec) < 2 {
			continue
		}
		if i == 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "date") {
			continue
		}
		txs = append(txs, service.Transaction{Date: rec[0], Amount: service.ParseAmount(rec[1])})
	}
	return txs, nil
}

func printResult(w io.Writer, res *service.Result) error {
	fmt.Fprintf(w, "Holding period: %s -> %s\n", res.BuyDate, res.SellDate)
	fmt.Fprintf(w, "Invested:       %s\n", formatMoney(res.TotalInvested, res.HomeCurrency))
	fmt.Fprintf(w, "Returned:       %s\n", formatMoney(res.TotalReturned, res.HomeCurrency))
	fmt.Fprintf(w, "Your XIRR:      %.2f%% (score %d)\n\n", res.UserXIRRPercent, res.DecisionScore)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Asset\tXIRR%\tScore\tStatus\tSource")
	for _, row := range res.BenchmarkRows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			row.Asset,
			formatPercent(row.XIRRPercent),
			formatScore(row.Score),
			row.Status,
			sanitizeInline(row.Source),
		)
	}
	return tw.Flush()
}

// formatMoney renders amount in the currency's display format, falling back to a plain decimal
// for codes go-money does not know.
func formatMoney(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2) + " " + currency
	}
	factor := decimal.New(1, int32(cur.Fraction))
	return money.New(amount.Mul(factor).Round(0).IntPart(), currency).Display()
}

func formatPercent(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *v)
}

func formatScore(v *int) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%d", *v)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
