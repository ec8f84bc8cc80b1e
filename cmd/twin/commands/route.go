// ABOUTME: Route command classifies a message without answering it
// ABOUTME: Falls back to keyword routing when no model backend is configured
package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harper/twin/internal/app"
	"github.com/harper/twin/internal/service"
)

// NewRouteCmd creates the route command
func NewRouteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "route <message>",
		Short: "Show which specialist would answer a message",
		Example: `  twin route "Should I use Postgres or SQLite?"
  twin route --format json "Write a thank-you note"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRoute,
	}

	return cmd
}

func runRoute(cmd *cobra.Command, args []string) error {
	message := strings.TrimSpace(strings.Join(args, " "))
	if message == "" {
		return fmt.Errorf("message must not be empty")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c := app.NewRouter(cmd.Context(), cfg).Route(cmd.Context(), message)
	resp := service.RouteResponse{
		Label:      c.Label,
		Confidence: c.Confidence,
		Rationale:  c.Rationale,
		Source:     c.Source,
	}

	if jsonOutput() {
		return printJSON(cmd.OutOrStdout(), resp)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %.2f %s\n", labelBadge(resp.Label), resp.Confidence, mutedStyle.Render("via "+string(resp.Source)))
	if resp.Rationale != "" {
		fmt.Fprintln(out, replyStyle.Render(resp.Rationale))
	}
	return nil
}
