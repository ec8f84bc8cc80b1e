// ABOUTME: Main entry point for the twin HTTP API server
// ABOUTME: Loads config, initializes tracing and serves until SIGINT or SIGTERM
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/harper/twin/internal/api"
	"github.com/harper/twin/internal/app"
	"github.com/harper/twin/internal/config"
	"github.com/harper/twin/internal/logging"
	"github.com/harper/twin/internal/telemetry"
)

var version = "dev"

func main() {
	// Load .env file if it exists (for API keys)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Setup("info", true)
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
		Version:     version,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracing")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(flushCtx)
	}()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize service")
	}
	defer a.Close()

	handler := api.NewRouter(a.Service, api.Options{
		CORSOrigins: cfg.CORSOrigins,
		Model:       cfg.ResolvedChatModel(),
		Store:       a.Stores.Kind,
		Version:     version,
	})

	log.Info().
		Str("provider", cfg.Provider).
		Str("store", a.Stores.Kind).
		Int("port", cfg.Port).
		Msg("twin server starting")

	if err := api.ListenAndServe(ctx, api.NewServer(cfg.Addr(), handler)); err != nil {
		log.Error().Err(err).Msg("server failed")
		return
	}
	log.Info().Msg("twin server stopped")
}
