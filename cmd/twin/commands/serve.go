// ABOUTME: Serve command runs the HTTP API
// ABOUTME: Stops gracefully on SIGINT or SIGTERM and flushes traces
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/harper/twin/internal/api"
	"github.com/harper/twin/internal/app"
	"github.com/harper/twin/internal/telemetry"
)

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API.

Endpoints:
  GET    /health
  POST   /api/v1/chat
  POST   /api/v1/route
  GET    /api/v1/conversations?user_id=
  GET    /api/v1/conversations/{id}
  DELETE /api/v1/conversations/{id}
  GET    /api/v1/state/example`,
		Example: `  twin serve
  twin serve --port 9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdown, err := telemetry.Init(ctx, telemetry.Config{
				Enabled:     cfg.OTelEnabled,
				Endpoint:    cfg.OTelEndpoint,
				ServiceName: cfg.OTelServiceName,
				Version:     versionInfo.Version,
			})
			if err != nil {
				return err
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(flushCtx); err != nil {
					log.Warn().Err(err).Msg("failed to flush traces")
				}
			}()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			handler := api.NewRouter(a.Service, api.Options{
				CORSOrigins: cfg.CORSOrigins,
				Model:       cfg.ResolvedChatModel(),
				Store:       a.Stores.Kind,
				Version:     versionInfo.Version,
			})

			if !quiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "twin listening on %s\n", cfg.Addr())
			}
			return api.ListenAndServe(ctx, api.NewServer(cfg.Addr(), handler))
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on (default from TWIN_PORT)")

	return cmd
}
