package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/revgate/internal/metrics"
	"github.com/joescharf/revgate/internal/models"
	"github.com/joescharf/revgate/internal/output"
	"github.com/joescharf/revgate/internal/severity"
	"github.com/joescharf/revgate/internal/store"
)

var (
	reviewRepo     string
	reviewPR       int
	reviewReviewer string
	reviewApproved bool
	reviewElapsed  float64
	reviewLimit    int
)

var reviewCmd = &cobra.Command{
	Use:     "review",
	Aliases: []string{"reviews"},
	Short:   "Record and list submitted reviews",
}

var reviewAddCmd = &cobra.Command{
	Use:   "add [file]",
	Short: "Record a review; the comment is read from the file or stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewAddRun(inputArg(args))
	},
}

var reviewListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recorded reviews, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewListRun()
	},
}

var reviewDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a recorded review",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewDeleteRun(args[0])
	},
}

func init() {
	reviewAddCmd.Flags().StringVar(&reviewRepo, "repo", "", "Repository as owner/name (default: origin remote of the current checkout)")
	reviewAddCmd.Flags().IntVar(&reviewPR, "pr", 0, "Pull request number")
	reviewAddCmd.Flags().StringVar(&reviewReviewer, "reviewer", "", "Reviewer login")
	reviewAddCmd.Flags().BoolVar(&reviewApproved, "approved", false, "The review approved the change")
	reviewAddCmd.Flags().Float64Var(&reviewElapsed, "elapsed", 0, "Seconds spent on the review")
	_ = reviewAddCmd.MarkFlagRequired("reviewer")

	reviewListCmd.Flags().StringVar(&reviewRepo, "repo", "", "Filter by repository")
	reviewListCmd.Flags().StringVar(&reviewReviewer, "reviewer", "", "Filter by reviewer")
	reviewListCmd.Flags().IntVar(&reviewLimit, "limit", 50, "Maximum reviews to show (0 for all)")

	reviewCmd.AddCommand(reviewAddCmd)
	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(reviewDeleteCmd)
	rootCmd.AddCommand(reviewCmd)
}

func reviewAddRun(path string) error {
	repo, err := resolveRepo(reviewRepo)
	if err != nil {
		return err
	}
	if _, _, err := splitRepo(repo); err != nil {
		return err
	}
	if err := metrics.ValidateElapsed(reviewElapsed); err != nil {
		return fmt.Errorf("--elapsed: %w", err)
	}
	data, err := readInput(path)
	if err != nil {
		return err
	}
	comment := string(data)
	if err := severity.Validate(comment); err != nil {
		return err
	}

	rec := &models.ReviewRecord{
		Repo:        repo,
		PRNumber:    reviewPR,
		Reviewer:    reviewReviewer,
		Approved:    reviewApproved,
		Comment:     comment,
		ElapsedTime: reviewElapsed,
	}

	if dryRun {
		ui.DryRunMsg("Would record review by %s on %s", rec.Reviewer, rec.Repo)
		return nil
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	if err := s.CreateReview(cmdContext(), rec); err != nil {
		return err
	}
	ui.Success("Recorded review %s", output.Cyan(rec.ID))
	return nil
}

func reviewListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	reviews, err := s.ListReviews(cmdContext(), store.ReviewListFilter{
		Repo:     reviewRepo,
		Reviewer: reviewReviewer,
		Limit:    reviewLimit,
	})
	if err != nil {
		return err
	}
	if len(reviews) == 0 {
		ui.Info("No reviews found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Repo", "PR", "Reviewer", "Approved", "Elapsed", "Comment", "Created"})
	for _, r := range reviews {
		pr := ""
		if r.PRNumber > 0 {
			pr = fmt.Sprintf("#%d", r.PRNumber)
		}
		_ = table.Append([]string{
			r.ID,
			r.Repo,
			pr,
			r.Reviewer,
			output.YesNo(r.Approved),
			fmt.Sprintf("%.0fs", r.ElapsedTime),
			firstLine(r.Comment, 40),
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	_ = table.Render()
	return nil
}

func reviewDeleteRun(id string) error {
	if dryRun {
		ui.DryRunMsg("Would delete review %s", id)
		return nil
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	if err := s.DeleteReview(cmdContext(), id); err != nil {
		return err
	}
	ui.Success("Deleted review %s", id)
	return nil
}

// firstLine returns the first line of s, truncated to max runes.
func firstLine(s string, max int) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	line = strings.TrimSpace(line)
	r := []rune(line)
	if len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return line
}
