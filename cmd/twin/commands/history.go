// ABOUTME: History command lists, shows, deletes and exports stored conversations
// ABOUTME: Works without a model backend; only the store is opened
package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harper/twin/internal/models"
	"github.com/harper/twin/internal/service"
	"github.com/harper/twin/internal/storage"
	"github.com/harper/twin/internal/storage/backend"
)

type historyOptions struct {
	userID string
	limit  int
	delete bool
	export string
	output string
}

// NewHistoryCmd creates the history command
func NewHistoryCmd() *cobra.Command {
	opts := &historyOptions{}

	cmd := &cobra.Command{
		Use:   "history [conversation-id]",
		Short: "Browse stored conversations",
		Long: `Browse stored conversations.

Without arguments, lists the user's conversations, most recent first.
With a conversation ID, prints its messages oldest first.`,
		Example: `  twin history
  twin history conv_1234
  twin history --delete conv_1234
  twin history --export md --output twin.md`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.userID, "user", service.DefaultUserID, "User ID")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "Maximum conversations to list")
	cmd.Flags().BoolVar(&opts.delete, "delete", false, "Delete the given conversation")
	cmd.Flags().StringVar(&opts.export, "export", "", "Export all of the user's conversations: yaml or md")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write the export to a file instead of stdout")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *historyOptions, args []string) error {
	if err := validatePositiveInt(opts.limit, "limit"); err != nil {
		return err
	}
	if opts.delete && len(args) == 0 {
		return fmt.Errorf("--delete needs a conversation ID")
	}
	switch opts.export {
	case "", "yaml", "md":
	default:
		return fmt.Errorf("--export must be yaml or md, got %q", opts.export)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	stores, err := backend.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	svc := service.New(nil, nil, stores.Conversations)
	out := cmd.OutOrStdout()

	switch {
	case opts.export != "":
		return exportHistory(cmd, stores.Conversations, opts)

	case opts.delete:
		if err := svc.DeleteConversation(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %s\n", args[0])
		return nil

	case len(args) == 1:
		conv, err := svc.GetConversation(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput() {
			return printJSON(out, conv)
		}
		renderConversation(out, conv)
		return nil
	}

	convs, err := svc.ListConversations(ctx, opts.userID, opts.limit, 0)
	if err != nil {
		return err
	}
	if jsonOutput() {
		return printJSON(out, convs)
	}
	if len(convs) == 0 {
		fmt.Fprintln(out, "No conversations yet")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tMESSAGES\tUPDATED")
	for _, c := range convs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", c.ID, truncate(c.Title, 40), c.MessageCount, formatTime(c.UpdatedAt))
	}
	return w.Flush()
}

func exportHistory(cmd *cobra.Command, store storage.ConversationStore, opts *historyOptions) error {
	data, err := storage.Export(cmd.Context(), store, opts.userID)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", opts.output, err)
		}
		defer f.Close()
		w = f
	}

	if opts.export == "md" {
		err = storage.WriteMarkdown(w, data)
	} else {
		err = storage.WriteYAML(w, data)
	}
	if err != nil {
		return err
	}

	if opts.output != "" && !quiet {
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d conversation(s) to %s\n", len(data.Conversations), opts.output)
	}
	return nil
}

func renderConversation(w io.Writer, conv *models.Conversation) {
	fmt.Fprintln(w, headerStyle.Render(conv.Title))
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%s · session %s", conv.ConversationID, conv.SessionID)))
	fmt.Fprintln(w)
	for _, m := range conv.Messages {
		if m.Role == models.RoleUser {
			fmt.Fprintf(w, "%s %s\n", headerStyle.Render("you"), m.Content)
			continue
		}
		fmt.Fprintf(w, "%s %s\n", labelBadge(m.Label), m.Content)
	}
}
