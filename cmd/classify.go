package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/revgate/internal/output"
	"github.com/joescharf/revgate/internal/severity"
)

var (
	classifyJSON bool
	classifyTier string
)

var classifyCmd = &cobra.Command{
	Use:   "classify [file]",
	Short: "Classify review text into critical issues, warnings and suggestions",
	Long: `Classify each line of a review comment by severity.

Reads the file argument, or stdin when no file (or "-") is given.
Use --tier to show only critical, warning or suggestion findings.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return classifyRun(inputArg(args))
	},
}

func init() {
	classifyCmd.Flags().BoolVar(&classifyJSON, "json", false, "Output JSON")
	classifyCmd.Flags().StringVar(&classifyTier, "tier", "", "Only show findings of this tier (critical, warning, suggestion)")
	rootCmd.AddCommand(classifyCmd)
}

func classifyRun(path string) error {
	var tier severity.Tier
	if classifyTier != "" {
		tier = severity.Tier(strings.ToLower(classifyTier))
		if !tier.Valid() {
			return fmt.Errorf("unknown tier %q: want critical, warning or suggestion", classifyTier)
		}
	}

	data, err := readInput(path)
	if err != nil {
		return err
	}
	findings, err := severity.Classify(string(data))
	if err != nil {
		return err
	}

	if tier != "" {
		findings = findings.Only(tier)
	}

	if classifyJSON {
		return printJSON(findings)
	}

	if findings.Total() == 0 {
		ui.Info("No findings.")
		return nil
	}

	table := ui.Table([]string{"Tier", "Line"})
	for _, t := range []severity.Tier{severity.TierCritical, severity.TierWarning, severity.TierSuggestion} {
		for _, line := range findings.Lines(t) {
			_ = table.Append([]string{output.TierColor(string(t)), line})
		}
	}
	_ = table.Render()

	fmt.Fprintf(ui.Out, "\n%d critical, %d warnings, %d suggestions\n",
		len(findings.Critical), len(findings.Warnings), len(findings.Suggestions))
	return nil
}
