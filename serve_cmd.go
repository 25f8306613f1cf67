package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// pidFileEnv overrides the default PID file location, for tests and
// containerized deployments that mount a different writable path.
const pidFileEnv = "PID_FILE"

const defaultPIDFile = "/var/run/tablesync/tablesync.pid"

// shutdownTimeout bounds how long the HTTP server waits for in-flight
// requests to finish during graceful shutdown.
const shutdownTimeout = 10 * time.Second

func pidFilePath() string {
	if v := os.Getenv(pidFileEnv); v != "" {
		return v
	}

	return defaultPIDFile
}

// newServeCmd runs the long-lived process: the scheduler and the HTTP/WebSocket
// API, until an interrupt or terminal signal arrives.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync scheduler and HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadAppConfig()
			if err != nil {
				return err
			}

			logger := buildLogger(cfg)

			cleanup, err := writePIDFile(pidFilePath())
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := shutdownContext(cmd.Context(), logger)

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			a.sched.Start()
			defer a.sched.Stop()

			httpServer := &http.Server{
				Addr:    cfg.HTTPAddr,
				Handler: a.server.Handler(),
			}

			errCh := make(chan error, 1)

			go func() {
				logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)

				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- fmt.Errorf("http server: %w", err)

					return
				}

				errCh <- nil
			}()

			select {
			case <-ctx.Done():
				logger.Info("shutting down HTTP server")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()

				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					logger.Warn("error during HTTP server shutdown", "error", err)
				}

				return nil
			case err := <-errCh:
				return err
			}
		},
	}
}
