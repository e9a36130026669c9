package cmd

import (
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joescharf/revgate/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio so assistants can
classify and score reviews and verify reviewers. Configure a client with:

  {
    "mcpServers": {
      "revgate": { "command": "revgate", "args": ["mcp"] }
    }
  }

Reviewer lookups authenticate with the configured GitHub token.

Available tools: revgate_classify, revgate_score, revgate_verify_reviewer,
revgate_metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	v, err := newVerifier(s)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdContext(), shutdownSignals()...)
	defer stop()

	return mcp.NewServer(s, v, githubToken(), buildVersion).ServeStdio(ctx)
}
