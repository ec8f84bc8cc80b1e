// ABOUTME: Chat command sends one message through the routing loop
// ABOUTME: Prints the answer with its label and optionally the iteration log
package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harper/twin/internal/app"
	"github.com/harper/twin/internal/service"
)

type chatOptions struct {
	userID         string
	sessionID      string
	conversationID string
	maxIterations  int
	showLog        bool
}

// NewChatCmd creates the chat command
func NewChatCmd() *cobra.Command {
	opts := &chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send a message to the digital twin",
		Long: `Send a message to the digital twin.

The message is classified, answered by the matching specialist and stored
in the conversation history. Reuse --session or --conversation to continue
an earlier conversation.`,
		Example: `  twin chat "Help me debug this Python code"
  twin chat --session work "Draft a reply to the last email"
  twin chat --show-log "Should I take the job offer?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVar(&opts.userID, "user", service.DefaultUserID, "User ID")
	cmd.Flags().StringVar(&opts.sessionID, "session", "", "Session ID to continue")
	cmd.Flags().StringVar(&opts.conversationID, "conversation", "", "Conversation ID to continue")
	cmd.Flags().IntVar(&opts.maxIterations, "max-iterations", 0, "Iteration cap for this turn (default from TWIN_MAX_ITERATIONS)")
	cmd.Flags().BoolVar(&opts.showLog, "show-log", false, "Print the iteration log")

	return cmd
}

func runChat(cmd *cobra.Command, opts *chatOptions, message string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.Service.Chat(ctx, service.ChatRequest{
		Message:        message,
		UserID:         opts.userID,
		SessionID:      opts.sessionID,
		ConversationID: opts.conversationID,
		MaxIterations:  opts.maxIterations,
	})
	if err != nil {
		return err
	}

	if jsonOutput() {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	renderChat(cmd.OutOrStdout(), resp, opts.showLog)
	return nil
}

func renderChat(w io.Writer, resp *service.ChatResponse, showLog bool) {
	fmt.Fprintf(w, "%s %s\n", labelBadge(resp.AgentUsed), mutedStyle.Render(fmt.Sprintf("confidence %.2f", resp.Confidence)))
	fmt.Fprintln(w, replyStyle.Render(resp.Response))

	if resp.Error != "" {
		fmt.Fprintln(w, errorStyle.Render("! "+resp.Error))
	}

	if showLog {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headerStyle.Render("Iteration log"))
		for _, e := range resp.IterationDetails {
			line := fmt.Sprintf("  %d  %-14s %s", e.Iteration, e.Actor, e.Action)
			if e.Rationale != "" {
				line += mutedStyle.Render("  (" + truncate(e.Rationale, 60) + ")")
			}
			fmt.Fprintln(w, line)
		}
	}

	footer := fmt.Sprintf("session %s", resp.SessionID)
	if resp.ConversationID != "" {
		footer += fmt.Sprintf(" · conversation %s", resp.ConversationID)
	}
	footer += fmt.Sprintf(" · %d iteration(s) · %.0fms", resp.Iterations, resp.ProcessingTimeMS)
	fmt.Fprintln(w, mutedStyle.Render(footer))
}
