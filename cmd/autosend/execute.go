package main

import (
	"context"

	"github.com/harunnryd/autosend/cmd/autosend/runtime"

	"github.com/harunnryd/autosend/internal/autosend"

	"github.com/spf13/cobra"
)

var executeCmd = &cobra.Command{
	Use:   "execute <job-id>",
	Short: "Validate and execute one scheduled job now",
	Long:  `Claims a scheduled send job, re-validates the conversation and dispatches the draft if it is still current. The job's run_at is still honoured.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWithRuntime(cmd, func(ctx context.Context, rt *runtime.RuntimeComponents) error {
			report := autosend.NewReport(rt.Decisions.ValidateAndExecute(ctx, args[0]))
			return printReport(cmd.OutOrStdout(), report)
		})
	},
}

func init() {
	rootCmd.AddCommand(executeCmd)
}
