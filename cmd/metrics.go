package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/revgate/internal/metrics"
	"github.com/joescharf/revgate/internal/store"
)

var (
	metricsFile     string
	metricsRepo     string
	metricsReviewer string
	metricsJSON     bool
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Summarize reviews: issue counts, approval rate and average time",
	Long: `Summarize a batch of reviews.

With --file, the batch is a JSON array of {"approved", "comment",
"elapsedTime"} objects ("-" reads stdin). Otherwise recorded reviews are
summarized, optionally filtered by --repo and --reviewer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return metricsRun()
	},
}

func init() {
	metricsCmd.Flags().StringVarP(&metricsFile, "file", "f", "", "JSON batch file (- for stdin)")
	metricsCmd.Flags().StringVar(&metricsRepo, "repo", "", "Filter recorded reviews by repository")
	metricsCmd.Flags().StringVar(&metricsReviewer, "reviewer", "", "Filter recorded reviews by reviewer")
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "Output JSON")
	rootCmd.AddCommand(metricsCmd)
}

func metricsRun() error {
	reviews, err := loadMetricsBatch()
	if err != nil {
		return err
	}
	m, err := metrics.Aggregate(reviews)
	if err != nil {
		return err
	}

	if metricsJSON {
		return printJSON(m)
	}

	table := ui.Table([]string{"Metric", "Value"})
	_ = table.Append([]string{"Reviews", fmt.Sprintf("%d", m.TotalReviews)})
	_ = table.Append([]string{"Critical issues", fmt.Sprintf("%d", m.CriticalIssues)})
	_ = table.Append([]string{"Warnings", fmt.Sprintf("%d", m.Warnings)})
	_ = table.Append([]string{"Suggestions", fmt.Sprintf("%d", m.Suggestions)})
	_ = table.Append([]string{"Approval rate", fmt.Sprintf("%.1f%%", m.ApprovalRate*100)})
	_ = table.Append([]string{"Average time", fmt.Sprintf("%.1f", m.AverageElapsedTime)})
	_ = table.Render()
	return nil
}

func loadMetricsBatch() ([]metrics.Review, error) {
	if metricsFile != "" {
		data, err := readInput(metricsFile)
		if err != nil {
			return nil, err
		}
		return metrics.DecodeReviews(data)
	}

	s, err := getStore()
	if err != nil {
		return nil, err
	}
	records, err := s.ListReviews(cmdContext(), store.ReviewListFilter{
		Repo:     metricsRepo,
		Reviewer: metricsReviewer,
	})
	if err != nil {
		return nil, err
	}
	return metrics.FromRecords(records), nil
}
