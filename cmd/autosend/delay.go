package main

import (
	"fmt"
	"time"

	"github.com/harunnryd/autosend/internal/config"
	"github.com/harunnryd/autosend/internal/delay"

	"github.com/spf13/cobra"
)

var delayCmd = &cobra.Command{
	Use:   "delay <trigger-id>",
	Short: "Show the deterministic send delay for a trigger message",
	Long:  `Prints the delay a campaign window assigns to a trigger message id and the resulting run time. The same id and window always give the same answer.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		minSeconds, _ := cmd.Flags().GetInt("min")
		maxSeconds, _ := cmd.Flags().GetInt("max")
		inboundRaw, _ := cmd.Flags().GetString("inbound")

		now := time.Now()
		inbound := now
		if inboundRaw != "" {
			parsed, err := time.Parse(time.RFC3339, inboundRaw)
			if err != nil {
				return fmt.Errorf("invalid --inbound: %w", err)
			}
			inbound = parsed
		}

		bufferRaw := ""
		if loadedCfg, err := loadConfigForCommand(cmd); err == nil {
			bufferRaw = loadedCfg.AutoSend.PastRunBuffer
		}
		buffer, err := config.DurationOrDefault(bufferRaw, config.DefaultPastRunBuffer)
		if err != nil {
			return fmt.Errorf("parse autosend.past_run_buffer: %w", err)
		}

		seconds := delay.Compute(args[0], minSeconds, maxSeconds)
		runAt := delay.RunAt(inbound, now, seconds, buffer)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "delay_seconds: %d\n", seconds)
		fmt.Fprintf(out, "run_at:        %s\n", runAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	delayCmd.Flags().Int("min", 0, "minimum delay in seconds")
	delayCmd.Flags().Int("max", 0, "maximum delay in seconds")
	delayCmd.Flags().String("inbound", "", "inbound message time (RFC3339, default now)")
	rootCmd.AddCommand(delayCmd)
}
