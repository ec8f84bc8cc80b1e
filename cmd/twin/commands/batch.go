// ABOUTME: Batch command runs many messages through the routing loop concurrently
// ABOUTME: Reads one message per line and prints results in input order
package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/harper/twin/internal/app"
	"github.com/harper/twin/internal/service"
)

type batchOptions struct {
	userID      string
	concurrency int
}

// batchResult pairs an input line with its outcome
type batchResult struct {
	Message  string                `json:"message"`
	Response *service.ChatResponse `json:"response,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// NewBatchCmd creates the batch command
func NewBatchCmd() *cobra.Command {
	opts := &batchOptions{}

	cmd := &cobra.Command{
		Use:   "batch <file|->",
		Short: "Answer a file of messages concurrently",
		Long: `Answer a file of messages concurrently.

Each non-empty line is an independent message with its own session.
Use - to read from stdin. A failing message does not stop the others.`,
		Example: `  twin batch questions.txt
  cat questions.txt | twin batch --concurrency 8 --format json -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.userID, "user", service.DefaultUserID, "User ID")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", 4, "Messages processed at once")

	return cmd
}

func runBatch(cmd *cobra.Command, opts *batchOptions, path string) error {
	if err := validatePositiveInt(opts.concurrency, "concurrency"); err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		in = f
	}

	messages, err := readMessages(in)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return fmt.Errorf("no messages in %s", path)
	}

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

	results := runConcurrently(cmd, a.Service, messages, opts)

	if jsonOutput() {
		return printJSON(cmd.OutOrStdout(), results)
	}

	out := cmd.OutOrStdout()
	failed := 0
	for i, r := range results {
		fmt.Fprintf(out, "%s %s\n", headerStyle.Render(fmt.Sprintf("%d.", i+1)), truncate(r.Message, 70))
		if r.Error != "" {
			failed++
			fmt.Fprintln(out, errorStyle.Render("   "+r.Error))
			continue
		}
		fmt.Fprintf(out, "   %s %s\n", labelBadge(r.Response.AgentUsed), truncate(r.Response.Response, 200))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d message(s) failed", failed, len(results))
	}
	return nil
}

// runConcurrently answers every message with at most opts.concurrency turns in flight
func runConcurrently(cmd *cobra.Command, svc *service.Service, messages []string, opts *batchOptions) []batchResult {
	results := make([]batchResult, len(messages))

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(opts.concurrency)
	for i, msg := range messages {
		g.Go(func() error {
			results[i].Message = msg
			resp, err := svc.Chat(ctx, service.ChatRequest{Message: msg, UserID: opts.userID})
			if err != nil {
				results[i].Error = err.Error()
				return nil
			}
			results[i].Response = resp
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func readMessages(r io.Reader) ([]string, error) {
	var messages []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			messages = append(messages, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return messages, nil
}
