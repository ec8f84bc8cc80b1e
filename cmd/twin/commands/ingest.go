// ABOUTME: Ingest command loads documents into a domain's retrieval store
// ABOUTME: Accepts a single .txt/.md file or a directory of them
package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harper/twin/internal/app"
	"github.com/harper/twin/internal/models"
	"github.com/harper/twin/internal/retrieval"
)

type ingestOptions struct {
	domain    string
	source    string
	recursive bool
}

// NewIngestCmd creates the ingest command
func NewIngestCmd() *cobra.Command {
	opts := &ingestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest <path>",
		Short: "Add documents to a specialist's knowledge",
		Long: `Add documents to a specialist's knowledge.

Text and markdown files are split into chunks, embedded and stored under
the chosen domain. Specialists retrieve from their own domain when they
answer. Re-ingesting a file replaces its chunks.

Domains: ` + domainList(),
		Example: `  twin ingest --domain knowledge ~/notes/preferences.md
  twin ingest --domain professional --recursive ~/docs`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.domain, "domain", "d", string(models.DomainShared), "Target domain")
	cmd.Flags().StringVar(&opts.source, "source", "", "Source name recorded for a single file (default: file name)")
	cmd.Flags().BoolVarP(&opts.recursive, "recursive", "r", false, "Descend into subdirectories")

	return cmd
}

func runIngest(cmd *cobra.Command, opts *ingestOptions, path string) error {
	domain, err := models.ParseDomain(opts.domain)
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}
	if !info.IsDir() && !retrieval.Supported(path) {
		return fmt.Errorf("unsupported file type %s (want .txt or .md)", path)
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

	pipeline, err := a.Ingest()
	if err != nil {
		return err
	}

	var report *retrieval.Report
	if info.IsDir() {
		report, err = pipeline.IngestDirectory(ctx, path, domain, opts.recursive)
		if err != nil {
			return err
		}
	} else {
		n, err := pipeline.IngestFile(ctx, path, domain, opts.source)
		if err != nil {
			return err
		}
		report = &retrieval.Report{
			FilesProcessed: 1,
			TotalChunks:    n,
			Files:          []retrieval.FileResult{{Path: path, Chunks: n}},
		}
	}

	if jsonOutput() {
		return printJSON(cmd.OutOrStdout(), report)
	}

	out := cmd.OutOrStdout()
	for _, f := range report.Files {
		if f.Error != "" {
			fmt.Fprintf(out, "%s %s: %s\n", errorStyle.Render("✗"), f.Path, f.Error)
			continue
		}
		if verbose {
			fmt.Fprintf(out, "✓ %s (%d chunks)\n", f.Path, f.Chunks)
		}
	}
	fmt.Fprintf(out, "Ingested %d chunk(s) from %d file(s) into %s\n", report.TotalChunks, report.FilesProcessed, domain)
	return nil
}

func domainList() string {
	names := make([]string, 0, len(models.Domains()))
	for _, d := range models.Domains() {
		names = append(names, string(d))
	}
	return strings.Join(names, ", ")
}
