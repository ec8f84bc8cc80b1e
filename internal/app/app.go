// ABOUTME: Composition root wiring config, backends, router, handlers and storage
// ABOUTME: Every entry point builds its service graph through New
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/harper/twin/internal/config"
	"github.com/harper/twin/internal/handlers"
	"github.com/harper/twin/internal/llm"
	"github.com/harper/twin/internal/orchestrator"
	"github.com/harper/twin/internal/retrieval"
	"github.com/harper/twin/internal/router"
	"github.com/harper/twin/internal/service"
	"github.com/harper/twin/internal/storage/backend"
)

// App holds the initialized service graph
type App struct {
	Config    *config.Config
	Service   *service.Service
	Router    *router.Router
	Stores    *backend.Stores
	Retriever *retrieval.Retriever // nil without an embedder
	Pipeline  *retrieval.Pipeline  // nil without an embedder
}

type options struct {
	generator    llm.Generator
	embedder     llm.Embedder
	hasGenerator bool
	stores       *backend.Stores
	logger       zerolog.Logger
}

// Option overrides a collaborator New would otherwise build from config
type Option func(*options)

// WithGenerator supplies the generation backend and optional embedder
func WithGenerator(g llm.Generator, e llm.Embedder) Option {
	return func(o *options) {
		o.generator = g
		o.embedder = e
		o.hasGenerator = true
	}
}

// WithStores supplies already opened stores; App.Close then closes them
func WithStores(s *backend.Stores) Option {
	return func(o *options) { o.stores = s }
}

// WithLogger sets the logger handed to every component
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New builds the full service graph from cfg
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{logger: log.Logger}
	for _, opt := range opts {
		opt(&o)
	}

	if !o.hasGenerator {
		g, e, err := llm.FromConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create model backend: %w", err)
		}
		o.generator, o.embedder = g, e
	}

	stores := o.stores
	if stores == nil {
		var err error
		stores, err = backend.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
	}

	a := &App{Config: cfg, Stores: stores}

	var contextRetriever handlers.ContextRetriever
	if o.embedder != nil {
		a.Retriever = retrieval.NewRetriever(o.embedder, stores.Documents, retrieval.WithRetrieverLogger(o.logger))
		contextRetriever = a.Retriever

		pipeline, err := retrieval.NewPipeline(o.embedder, stores.Documents, retrieval.WithPipelineLogger(o.logger))
		if err != nil {
			_ = stores.Close()
			return nil, err
		}
		a.Pipeline = pipeline
	} else {
		o.logger.Warn().Msg("no embeddings backend configured, retrieval disabled")
	}

	a.Router = router.New(router.NewLLMClassifier(o.generator), router.WithLogger(o.logger))

	registry, err := handlers.NewLLMRegistry(o.generator, contextRetriever, cfg.RetrievalTopK, o.logger)
	if err != nil {
		_ = stores.Close()
		return nil, fmt.Errorf("failed to load handler profiles: %w", err)
	}

	orch := orchestrator.New(a.Router, registry,
		orchestrator.WithLogger(o.logger),
		orchestrator.WithCallTimeout(cfg.CallTimeout),
	)

	a.Service = service.New(orch, a.Router, stores.Conversations,
		service.WithLogger(o.logger),
		service.WithMaxIterations(cfg.MaxIterations),
		service.WithMaxMessageLength(cfg.MaxMessageLength),
	)
	return a, nil
}

// NewRouter builds only the composite router. Without a usable model backend
// it degrades to keyword classification.
func NewRouter(ctx context.Context, cfg *config.Config) *router.Router {
	g, _, err := llm.FromConfig(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("model backend unavailable, routing by keywords only")
		return router.New(nil)
	}
	return router.New(router.NewLLMClassifier(g))
}

// ErrRetrievalDisabled is returned by ingestion when no embedder is configured
var ErrRetrievalDisabled = errors.New("retrieval is disabled: no embeddings backend configured")

// Ingest requires the ingestion pipeline
func (a *App) Ingest() (*retrieval.Pipeline, error) {
	if a.Pipeline == nil {
		return nil, ErrRetrievalDisabled
	}
	return a.Pipeline, nil
}

// Close releases the stores
func (a *App) Close() error {
	if a.Stores == nil {
		return nil
	}
	return a.Stores.Close()
}
