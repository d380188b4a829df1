package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/arq/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

Assistants can then list sessions, start and steer analyses, read
progress and check API readiness. Configure the client with:

  {
    "mcpServers": {
      "arq": { "command": "arq", "args": ["mcp"] }
    }
  }

Notifications and progress are written to the log on stderr, since
stdout carries the protocol.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		a, err := buildApp(ctx, appOptions{quiet: true})
		if err != nil {
			return err
		}
		return mcp.NewServer(a.ctrl, a.panel, a.client, buildVersion).ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
