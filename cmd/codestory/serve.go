package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"codestory/internal/api"
)

const shutdownGrace = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			a.tasks.StartSweeper(ctx, sweepInterval)

			srv := &http.Server{
				Addr:    fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port),
				Handler: api.New(a.orch, a.cfg.MaxUploadBytes(), a.logger),
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			errChan := make(chan error, 1)
			go func() {
				a.logger.Info("http server listening", zap.String("addr", srv.Addr))
				errChan <- srv.ListenAndServe()
			}()

			select {
			case sig := <-sigChan:
				a.logger.Info("shutting down", zap.String("signal", sig.String()))
				cancel()

				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer shutdownCancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("shutdown: %w", err)
				}
			case err := <-errChan:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
			}

			a.logger.Info("server stopped")
			return nil
		},
	}
}
