package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forest6511/daybook/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpServerCmd)
}

// mcpServerCmd starts the MCP server for AI assistant integration
var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Start the MCP server for AI assistant integration",
	Long: `Start the MCP server that gives AI assistants read-only journal access.

The server implements the Model Context Protocol (MCP) over stdio
transport. Agents can list, read and search entries but never write.

Available tools:
  - journal_list:   List entry metadata (no content)
  - journal_get:    Read one entry including content
  - journal_search: Search entries by text
  - sync_status:    Report the outbound queue state

Authentication:
  Set DAYBOOK_PASSWORD before starting the server when the journal has
  a password. The variable is read once and cleared from the environment.`,
	// The app opened by the root command is rebuilt inside the server
	// so it owns the unlock lifecycle.
	RunE: func(cmd *cobra.Command, args []string) error {
		if a != nil {
			a.Close()
			a = nil
		}
		return runMCPServer(journalPath)
	},
}

func runMCPServer(path string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := mcp.NewServer(ctx, &mcp.ServerOptions{JournalPath: path})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	return server.Run(ctx)
}
