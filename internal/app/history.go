package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"xirr-benchmark/internal/benchmark"
	"xirr-benchmark/internal/fetcher"
)

// fxAssetName selects the exchange-rate series in the history command.
const fxAssetName = "FX"

// History fetches the price series of one benchmark asset and prints or exports it.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	provider, symbols, label, err := a.historyTarget(opts.Asset)
	if err != nil {
		return err
	}

	to := opts.To
	if to.IsZero() {
		to = a.now().UTC()
	}
	from := opts.From
	if from.IsZero() {
		from = to.AddDate(-1, 0, 0)
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	res, err := a.newSource().Series(ctx, provider, symbols, fetcher.Window{Start: from, End: to})
	if err != nil {
		return fmt.Errorf("fetch %s history: %w", label, err)
	}

	points := downsampleSeries(res.Series, a.Config.ResolveMaxPoints(opts.MaxPoints))
	first, last := res.Series.Span()
	a.Logger.Info().
		Str("asset", label).
		Str("symbol", res.Symbol).
		Time("first", first).
		Time("last", last).
		Int("total", len(res.Series)).
		Int("exported", len(points)).
		Msg("history fetched")

	printHistorySummary(a.out, label, res, points)

	if opts.CSVPath != "" {
		if err := writeSeriesCSV(opts.CSVPath, points); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		title := fmt.Sprintf("%s (%s, %s)", label, res.Symbol, res.Provider)
		if err := writeSeriesPNG(opts.PNGPath, title, points, a.Config.Export.ChartWidth, a.Config.Export.ChartHeight); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) historyTarget(name string) (provider string, symbols []string, label string, err error) {
	if strings.EqualFold(name, fxAssetName) {
		fx := a.Config.Benchmark.FX
		return fx.Provider, fx.Symbols, fmt.Sprintf("%s/%s", fx.From, a.Config.Benchmark.HomeCurrency), nil
	}
	asset, ok := benchmark.FindAsset(a.Config.Assets(), name)
	if !ok {
		return "", nil, "", fmt.Errorf("unknown asset %q", name)
	}
	if asset.Kind != benchmark.KindMarket {
		return "", nil, "", fmt.Errorf("%s is a fixed benchmark with no price history", asset.Name)
	}
	return asset.Provider, asset.Symbols, asset.Name, nil
}

func printHistorySummary(w io.Writer, label string, res fetcher.Result, points fetcher.Series) {
	if len(points) == 0 {
		fmt.Fprintln(w, "no prices found")
		return
	}
	first, last := points[0], points[len(points)-1]
	low, high := first.Price, first.Price
	for _, p := range points {
		low = math.Min(low, p.Price)
		high = math.Max(high, p.Price)
	}
	change := (last.Price/first.Price - 1) * 100

	fmt.Fprintf(w, "%s via %s (%s)\n", label, res.Provider, res.Symbol)
	fmt.Fprintf(w, "  %s  %.4f\n", first.Time.UTC().Format("2006-01-02"), first.Price)
	fmt.Fprintf(w, "  %s  %.4f\n", last.Time.UTC().Format("2006-01-02"), last.Price)
	fmt.Fprintf(w, "  low %.4f  high %.4f  change %+.2f%%  points %d\n", low, high, change, len(points))
}

func downsampleSeries(points fetcher.Series, max int) fetcher.Series {
	if max <= 0 || len(points) <= max {
		return points
	}
	if max == 1 {
		return fetcher.Series{points[len(points)-1]}
	}

	result := make(fetcher.Series, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writeSeriesCSV(path string, points fetcher.Series) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"timestamp_ms", "date", "price"}); err != nil {
		return err
	}
	for _, p := range points {
		record := []string{
			strconv.FormatInt(p.Time.UnixMilli(), 10),
			p.Time.UTC().Format("2006-01-02"),
			strconv.FormatFloat(p.Price, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeSeriesPNG(path, title string, points fetcher.Series, width, height int) error {
	if len(points) < 2 {
		return errors.New("need at least two points to draw a chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	y := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.Time
		y[i] = p.Price
	}

	graph := chart.Chart{
		Title:  title,
		Width:  width,
		Height: height,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Close",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.2f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    title,
				XValues: x,
				YValues: y,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
