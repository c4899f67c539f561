package main

import (
	"fmt"
	"time"

	"github.com/harunnryd/autosend/internal/audit"
	"github.com/harunnryd/autosend/internal/autosend"

	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the decision audit trail",
}

var auditLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recorded decisions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		leadID, _ := cmd.Flags().GetString("lead")
		action, _ := cmd.Flags().GetString("action")
		limit, _ := cmd.Flags().GetInt("limit")
		since, _ := cmd.Flags().GetDuration("since")

		loadedCfg, err := loadConfigForCommand(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		trail, err := audit.NewFileLogger(loadedCfg.Audit.Path, nil)
		if err != nil {
			return err
		}

		filter := &audit.Filter{LeadID: leadID, Action: autosend.Action(action), Limit: limit}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		entries, err := trail.Query(commandContext(cmd), filter)
		if err != nil {
			return fmt.Errorf("failed to read audit trail: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), NewJobTableFormatter().FormatAudit(entries))
		return nil
	},
}

func init() {
	auditLsCmd.Flags().String("lead", "", "only decisions for this lead")
	auditLsCmd.Flags().String("action", "", "only this action (send_immediate, send_delayed, needs_review, skip, error)")
	auditLsCmd.Flags().Int("limit", 50, "maximum number of entries")
	auditLsCmd.Flags().Duration("since", 0, "only entries newer than this, e.g. 24h")
	auditCmd.AddCommand(auditLsCmd)
	rootCmd.AddCommand(auditCmd)
}
