package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/harunnryd/autosend/cmd/autosend/runtime"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, job runner and event consumer",
	Long:  `Starts autosend as a long-running service: the HTTP API, the scheduled job runner and, when enabled, the AMQP draft-ready consumer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWithRuntime(cmd, func(ctx context.Context, rt *runtime.RuntimeComponents) error {
			d, err := runtime.NewDaemon(rt)
			if err != nil {
				return fmt.Errorf("failed to create daemon: %w", err)
			}

			slog.Info("Autosend daemon starting up...", "port", rt.Config.Server.Port, "store", rt.Config.Store.Driver)
			err = d.Start(ctx)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("daemon failed: %w", err)
			}

			slog.Info("Autosend daemon stopped gracefully")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
