// ABOUTME: Ingestion pipeline that chunks, embeds and stores documents
// ABOUTME: Accepts single files or directories of .txt and .md files
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/harper/twin/internal/llm"
	"github.com/harper/twin/internal/models"
	"github.com/harper/twin/internal/storage"
)

// SupportedExtensions lists the file types the pipeline ingests
var SupportedExtensions = []string{".txt", ".md"}

// DefaultIngestWorkers bounds concurrent file ingestion
const DefaultIngestWorkers = 4

// Pipeline ingests documents into a domain of the document store
type Pipeline struct {
	embedder llm.Embedder
	store    storage.DocumentStore
	chunker  *Chunker
	workers  int
	logger   zerolog.Logger
}

// PipelineOption configures a Pipeline
type PipelineOption func(*Pipeline)

// WithChunker overrides the default chunker
func WithChunker(c *Chunker) PipelineOption {
	return func(p *Pipeline) { p.chunker = c }
}

// WithWorkers sets how many files are ingested concurrently
func WithWorkers(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithPipelineLogger sets the pipeline logger
func WithPipelineLogger(l zerolog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline creates an ingestion pipeline
func NewPipeline(embedder llm.Embedder, store storage.DocumentStore, opts ...PipelineOption) (*Pipeline, error) {
	if embedder == nil {
		return nil, errors.New("ingestion requires an embeddings backend")
	}
	if store == nil {
		return nil, errors.New("ingestion requires a document store")
	}
	p := &Pipeline{
		embedder: embedder,
		store:    store,
		chunker:  NewChunker(DefaultChunkSize),
		workers:  DefaultIngestWorkers,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// FileResult reports the outcome of ingesting one file
type FileResult struct {
	Path   string `json:"path"`
	Chunks int    `json:"chunks"`
	Error  string `json:"error,omitempty"`
}

// Report summarizes a directory ingestion
type Report struct {
	FilesProcessed int          `json:"files_processed"`
	TotalChunks    int          `json:"total_chunks"`
	Files          []FileResult `json:"files"`
}

// IngestText chunks, embeds and stores text under source
func (p *Pipeline) IngestText(ctx context.Context, text string, domain models.Domain, source string) (int, error) {
	chunks, err := p.chunker.Chunk(text, domain, source)
	if err != nil {
		return 0, err
	}

	for _, chunk := range chunks {
		vector, err := p.embedder.Embed(ctx, chunk.Content)
		if err != nil {
			return 0, fmt.Errorf("embed chunk %d of %s: %w", chunk.Position, source, err)
		}
		if err := p.store.SaveChunk(ctx, chunk, vector); err != nil {
			return 0, err
		}
	}

	p.logger.Debug().Str("source", source).Str("domain", string(domain)).Int("chunks", len(chunks)).Msg("ingested")
	return len(chunks), nil
}

// IngestFile ingests one supported file. An empty source defaults to the file name.
func (p *Pipeline) IngestFile(ctx context.Context, path string, domain models.Domain, source string) (int, error) {
	if !Supported(path) {
		return 0, fmt.Errorf("unsupported format %q: only %s are supported",
			filepath.Ext(path), strings.Join(SupportedExtensions, ", "))
	}

	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}

	if source == "" {
		source = filepath.Base(path)
	}
	return p.IngestText(ctx, string(data), domain, source)
}

// IngestDirectory ingests every supported file in dir. Per-file failures are
// recorded in the report rather than aborting the run.
func (p *Pipeline) IngestDirectory(ctx context.Context, dir string, domain models.Domain, recursive bool) (*Report, error) {
	files, err := listFiles(dir, recursive)
	if err != nil {
		return nil, err
	}

	report := &Report{Files: make([]FileResult, len(files))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, path := range files {
		g.Go(func() error {
			source := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			n, err := p.IngestFile(gctx, path, domain, source)

			res := FileResult{Path: path, Chunks: n}
			if err != nil {
				res.Error = err.Error()
				p.logger.Warn().Err(err).Str("path", path).Msg("ingest failed")
			}

			mu.Lock()
			defer mu.Unlock()
			report.Files[i] = res
			if err == nil {
				report.FilesProcessed++
				report.TotalChunks += n
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	return report, nil
}

// Supported reports whether the pipeline can ingest path
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

func listFiles(dir string, recursive bool) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("invalid directory %s: not a directory", dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if Supported(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return files, nil
}
