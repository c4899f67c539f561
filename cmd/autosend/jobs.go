package main

import (
	"context"
	"fmt"

	"github.com/harunnryd/autosend/internal/jobs"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect scheduled send jobs",
}

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List scheduled send jobs",
	Long:  `Display scheduled send jobs, most recent run time first, optionally filtered by status.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := jobs.Filter{Status: jobs.Status(status), Limit: limit}
		switch filter.Status {
		case "", jobs.StatusPending, jobs.StatusRunning, jobs.StatusExecuted, jobs.StatusSkipped, jobs.StatusErrored:
		default:
			return fmt.Errorf("unknown job status %q", status)
		}

		return withJobStore(cmd, func(ctx context.Context, store jobs.Store) error {
			list, err := store.List(ctx, filter)
			if err != nil {
				return fmt.Errorf("failed to list jobs: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), NewJobTableFormatter().FormatJobs(list))
			if len(list) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "\nTotal: %d job(s)\n", len(list))
			}
			return nil
		})
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show one scheduled send job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withJobStore(cmd, func(ctx context.Context, store jobs.Store) error {
			job, err := store.Get(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to get job %s: %w", args[0], err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), NewJobTableFormatter().FormatJob(job))
			return nil
		})
	},
}

func init() {
	jobsLsCmd.Flags().String("status", "", "filter by status (pending, running, executed, skipped, errored)")
	jobsLsCmd.Flags().Int("limit", 50, "maximum number of jobs to show")
	jobsCmd.AddCommand(jobsLsCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	rootCmd.AddCommand(jobsCmd)
}
