package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/harunnryd/autosend/cmd/autosend/runtime"

	"github.com/harunnryd/autosend/internal/autosend"
	"github.com/harunnryd/autosend/internal/config"
	"github.com/harunnryd/autosend/internal/jobs"
	"github.com/harunnryd/autosend/internal/repository/postgres"

	"github.com/spf13/cobra"
)

func executeWithRuntime(cmd *cobra.Command, fn func(context.Context, *runtime.RuntimeComponents) error) error {
	loadedCfg, err := loadConfigForCommand(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	components, err := runtime.NewRuntimeBuilder().
		WithContext(ctx).
		WithConfig(loadedCfg).
		Build()
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	defer func() {
		if err := components.Close(); err != nil {
			slog.Warn("Failed to close runtime", "error", err)
		}
	}()

	return fn(ctx, components)
}

// withJobStore opens only what reading jobs needs: the file store needs no
// database at all.
func withJobStore(cmd *cobra.Command, fn func(context.Context, jobs.Store) error) error {
	loadedCfg, err := loadConfigForCommand(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	ctx := commandContext(cmd)

	if loadedCfg.Store.Driver == "file" {
		store, err := runtime.OpenJobStore(loadedCfg.Store, nil)
		if err != nil {
			return err
		}
		return fn(ctx, store)
	}

	db, err := postgres.Open(ctx, loadedCfg.Store)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := runtime.OpenJobStore(loadedCfg.Store, db)
	if err != nil {
		return err
	}
	return fn(ctx, store)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func loadConfigForCommand(cmd *cobra.Command) (*config.Config, error) {
	if cfg != nil {
		return cfg, nil
	}

	return config.Load(cmd)
}

// printReport writes the report as JSON and turns an error outcome into a
// non-zero exit.
func printReport(w io.Writer, report autosend.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if report.Action == autosend.ActionError {
		return fmt.Errorf("decision failed: %s", report.Message)
	}
	return nil
}
