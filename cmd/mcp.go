package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/replypilot/replypilot/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for assistant integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an MCP client query the review queue, store health, and
escalated reviews natively. Configure with:

  {
    "mcpServers": {
      "replypilot": { "command": "replypilot", "args": ["mcp"] }
    }
  }

Available tools: replypilot_list_stores, replypilot_store_status,
replypilot_list_reviews, replypilot_show_review, replypilot_reset_review,
replypilot_requeue_failed`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := mcp.NewServer(s, viper.GetInt("engine.max_post_attempts"))
		return srv.ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
