package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"codestory/internal/mcp"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the read-only MCP companion server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			// stdout carries the MCP protocol; zap already logs to stderr
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			a.tasks.StartSweeper(ctx, sweepInterval)

			server := mcp.NewServer(a.orch, a.logger)

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			errChan := make(chan error, 1)
			go func() {
				a.logger.Info("mcp server ready, listening on stdio",
					zap.String("name", mcp.ServerName), zap.String("version", mcp.ServerVersion))
				errChan <- server.Serve(ctx)
			}()

			select {
			case sig := <-sigChan:
				a.logger.Info("shutting down", zap.String("signal", sig.String()))
				cancel()
				return nil
			case err := <-errChan:
				return err
			}
		},
	}
}
