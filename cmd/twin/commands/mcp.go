// ABOUTME: MCP command starts Model Context Protocol server
// ABOUTME: Lets LLM agents chat with the twin and read its history via stdio
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/harper/twin/internal/app"
	"github.com/harper/twin/internal/mcp"
)

// NewMCPCmd creates the MCP command
func NewMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for LLM agents",
		Long: `Start MCP server for LLM agents

Runs twin as an MCP (Model Context Protocol) server on stdio with the
tools chat, route_message, list_conversations and get_conversation.`,
		RunE: runMCP,
		Example: `  # Start MCP server (typically called by an MCP client)
  twin mcp

  # Configure in the client's config file:
  # {
  #   "mcpServers": {
  #     "twin": {
  #       "command": "twin",
  #       "args": ["mcp"]
  #     }
  #   }
  # }`,
	}

	return cmd
}

// runMCP starts the MCP server
func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	server := mcpserver.NewMCPServer("twin", versionInfo.Version)
	mcp.RegisterTools(server, a.Service, log.Logger)

	log.Info().Msg("MCP server starting on stdio")

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpserver.ServeStdio(server)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != context.Canceled {
			return fmt.Errorf("server error: %w", err)
		}
	}
	return nil
}
