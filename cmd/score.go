package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/revgate/internal/models"
	"github.com/joescharf/revgate/internal/output"
	"github.com/joescharf/revgate/internal/quality"
	"github.com/joescharf/revgate/internal/severity"
)

var (
	scoreApprove  bool
	scoreReviewer string
	scoreRepo     string
	scoreJSON     bool
)

var scoreCmd = &cobra.Command{
	Use:   "score [file]",
	Short: "Score the quality of a review",
	Long: `Score a review comment from 0 to 100.

An approval (--approve) only counts when --reviewer is verified as a
collaborator with write access on --repo. The lookup authenticates with
the configured GitHub token.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return scoreRun(inputArg(args))
	},
}

func init() {
	scoreCmd.Flags().BoolVar(&scoreApprove, "approve", false, "The reviewer approved the change")
	scoreCmd.Flags().StringVar(&scoreReviewer, "reviewer", "", "Reviewer login (required with --approve)")
	scoreCmd.Flags().StringVar(&scoreRepo, "repo", "", "Repository as owner/name (default: origin remote of the current checkout)")
	scoreCmd.Flags().BoolVar(&scoreJSON, "json", false, "Output JSON")
	rootCmd.AddCommand(scoreCmd)
}

func scoreRun(path string) error {
	var auth *models.ReviewerAuth
	if scoreApprove && scoreReviewer != "" {
		repo, err := resolveRepo(scoreRepo)
		if err != nil {
			return err
		}
		a, err := verifyReviewer(scoreReviewer, repo)
		if err != nil {
			return err
		}
		auth = &a
		ui.VerboseLog("Reviewer %s verified=%t write=%t", a.Login, a.IsVerified, a.HasWriteAccess)
	}
	if err := quality.CheckApproval(scoreApprove, auth); err != nil {
		return err
	}

	data, err := readInput(path)
	if err != nil {
		return err
	}
	findings, err := severity.Classify(string(data))
	if err != nil {
		return err
	}
	result, err := quality.NewCalculator().ScoreFindings(findings, scoreApprove, auth)
	if err != nil {
		return err
	}

	if scoreJSON {
		return printJSON(result)
	}

	fmt.Fprintf(ui.Out, "Score:    %s/100\n", output.ScoreColor(result.Score))
	fmt.Fprintf(ui.Out, "Category: %s\n", output.CategoryColor(string(result.Category)))
	fmt.Fprintf(ui.Out, "Findings: %d critical, %d warnings, %d suggestions\n",
		len(findings.Critical), len(findings.Warnings), len(findings.Suggestions))
	fmt.Fprintln(ui.Out)

	table := ui.Table([]string{"Dimension", "Score"})
	_ = table.Append([]string{"Security", output.ScoreColor(result.Breakdown.Security)})
	_ = table.Append([]string{"Performance", output.ScoreColor(result.Breakdown.Performance)})
	_ = table.Append([]string{"Maintainability", output.ScoreColor(result.Breakdown.Maintainability)})
	_ = table.Append([]string{"Testability", output.ScoreColor(result.Breakdown.Testability)})
	_ = table.Render()
	return nil
}
