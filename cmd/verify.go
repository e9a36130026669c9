package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/revgate/internal/models"
	"github.com/joescharf/revgate/internal/output"
	"github.com/joescharf/revgate/internal/reviewer"
)

var (
	verifyRepo string
	verifyJSON bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify <login>",
	Short: "Check whether a reviewer has write access to a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return verifyRun(args[0])
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyRepo, "repo", "", "Repository as owner/name (default: origin remote of the current checkout)")
	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "Output JSON")
	rootCmd.AddCommand(verifyCmd)
}

func verifyRun(login string) error {
	repo, err := resolveRepo(verifyRepo)
	if err != nil {
		return err
	}
	auth, err := verifyReviewer(login, repo)
	if err != nil {
		return err
	}

	if verifyJSON {
		return printJSON(auth)
	}

	fmt.Fprintf(ui.Out, "Reviewer:     %s\n", auth.Login)
	fmt.Fprintf(ui.Out, "Repository:   %s\n", repo)
	fmt.Fprintf(ui.Out, "Verified:     %s\n", output.YesNo(auth.IsVerified))
	fmt.Fprintf(ui.Out, "Write access: %s\n", output.YesNo(auth.HasWriteAccess))
	if !auth.AuthorizedToApprove() {
		ui.Warning("%s cannot approve changes on %s", login, repo)
	}
	return nil
}

// verifyReviewer checks login against repo with the configured token,
// recording the lookup in the audit log when the database is available.
func verifyReviewer(login, repo string) (models.ReviewerAuth, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return models.ReviewerAuth{}, err
	}

	var auditor reviewer.Auditor
	if s, err := getStore(); err == nil {
		auditor = s
	} else {
		ui.VerboseLog("Audit log unavailable: %v", err)
	}

	v, err := newVerifier(auditor)
	if err != nil {
		return models.ReviewerAuth{}, err
	}
	return v.Verify(cmdContext(), login, owner, name, githubToken()), nil
}
