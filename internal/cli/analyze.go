package cli

import (
	"github.com/spf13/cobra"

	"xirr-benchmark/internal/app"
)

var (
	analyzeFile string
	analyzeJSON bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze transactions from a JSON or CSV file",
	Example: `  xirrbench analyze --file transactions.json
  xirrbench analyze --file transactions.csv --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Analyze(cmd.Context(), app.AnalyzeOptions{File: analyzeFile, JSON: analyzeJSON})
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeFile, "file", "f", "", "Transactions file (.json or .csv with date,amount columns)")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the result as JSON")
	_ = analyzeCmd.MarkFlagRequired("file")
}
