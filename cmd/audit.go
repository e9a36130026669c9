package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/revgate/internal/models"
	"github.com/joescharf/revgate/internal/output"
)

var auditLimit int

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent reviewer permission lookups",
	RunE: func(cmd *cobra.Command, args []string) error {
		return auditRun()
	},
}

func init() {
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "Maximum entries to show (0 for all)")
	rootCmd.AddCommand(auditCmd)
}

func auditRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	checks, err := s.ListAuthChecks(cmdContext(), auditLimit)
	if err != nil {
		return err
	}
	if len(checks) == 0 {
		ui.Info("No permission lookups recorded.")
		return nil
	}

	table := ui.Table([]string{"Checked", "Repo", "Login", "Outcome", "Verified", "Write"})
	for _, c := range checks {
		_ = table.Append([]string{
			c.CheckedAt.Local().Format("2006-01-02 15:04:05"),
			c.Owner + "/" + c.Repo,
			c.Login,
			outcomeColor(c.Outcome),
			output.YesNo(c.IsVerified),
			output.YesNo(c.HasWriteAccess),
		})
	}
	_ = table.Render()
	return nil
}

func outcomeColor(o models.AuthOutcome) string {
	switch o {
	case models.AuthOutcomeGranted:
		return output.Green(string(o))
	case models.AuthOutcomeNotFound:
		return output.Yellow(string(o))
	default:
		return output.Red(string(o))
	}
}
