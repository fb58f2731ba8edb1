package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"xirr-benchmark/internal/app"
	"xirr-benchmark/internal/service"
)

var (
	historyAsset     string
	historyFrom      string
	historyTo        string
	historyCSVPath   string
	historyPNGPath   string
	historyMaxPoints int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Fetch a benchmark's daily price history and export it as CSV and/or PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.HistoryOptions{
			Asset:     historyAsset,
			CSVPath:   historyCSVPath,
			PNGPath:   historyPNGPath,
			MaxPoints: historyMaxPoints,
		}

		if historyFrom != "" {
			from, err := service.ParseDate(historyFrom)
			if err != nil {
				return fmt.Errorf("invalid --from value: %w", err)
			}
			opts.From = from
		}

		if historyTo != "" {
			to, err := service.ParseDate(historyTo)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
			opts.To = to
		}

		return getApp().History(cmd.Context(), opts)
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyAsset, "asset", "", "Benchmark name (Nifty, BTC, Gold, Silver) or FX")
	historyCmd.Flags().StringVar(&historyFrom, "from", "", "Start date (YYYY-MM-DD, defaults to one year before --to)")
	historyCmd.Flags().StringVar(&historyTo, "to", "", "End date (YYYY-MM-DD, defaults to today)")
	historyCmd.Flags().StringVar(&historyCSVPath, "csv", "", "Path to write CSV data")
	historyCmd.Flags().StringVar(&historyPNGPath, "png", "", "Path to write PNG chart")
	historyCmd.Flags().IntVar(&historyMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
	_ = historyCmd.MarkFlagRequired("asset")
}
