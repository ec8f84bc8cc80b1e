// ABOUTME: HTTP surface of the chat service built on chi
// ABOUTME: Wires middleware, CORS and the /api/v1 routes
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/harper/twin/internal/api/middleware"
	"github.com/harper/twin/internal/service"
)

// Options configures the router
type Options struct {
	CORSOrigins []string
	Model       string
	Store       string
	Version     string
	Logger      *zerolog.Logger
}

// NewRouter creates the HTTP router with all API routes
func NewRouter(svc *service.Service, opts Options) http.Handler {
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	h := &handler{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "twin",
			"version": opts.Version,
			"model":   opts.Model,
			"store":   opts.Store,
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", h.chat)
		r.Post("/route", h.route)
		r.Get("/state/example", h.stateExample)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", h.listConversations)
			r.Route("/{conversationID}", func(r chi.Router) {
				r.Get("/", h.getConversation)
				r.Delete("/", h.deleteConversation)
			})
		})
	})

	return r
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
