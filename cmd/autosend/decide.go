package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/harunnryd/autosend/cmd/autosend/runtime"

	"github.com/harunnryd/autosend/internal/autosend"

	"github.com/spf13/cobra"
)

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Decide what to do with one draft",
	Long:  `Runs one decision for a draft, either from a SendContext JSON file (--file) or by loading the draft from the database (--draft), and prints the outcome.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		draftID, _ := cmd.Flags().GetString("draft")
		validate, _ := cmd.Flags().GetBool("validate-immediate")
		preview, _ := cmd.Flags().GetBool("include-preview")

		if (file == "") == (draftID == "") {
			return fmt.Errorf("exactly one of --file or --draft is required")
		}

		var fromFile *autosend.SendContext
		if file != "" {
			sc, err := readSendContext(file)
			if err != nil {
				return err
			}
			fromFile = sc
		}

		return executeWithRuntime(cmd, func(ctx context.Context, rt *runtime.RuntimeComponents) error {
			sc := fromFile
			if sc == nil {
				loaded, err := rt.Loader.LoadSendContext(ctx, draftID)
				if err != nil {
					return fmt.Errorf("failed to load draft %s: %w", draftID, err)
				}
				sc = loaded
			}
			if cmd.Flags().Changed("validate-immediate") {
				sc.ValidateImmediateSend = validate
			}
			if cmd.Flags().Changed("include-preview") {
				sc.IncludeDraftPreview = preview
			}

			report := autosend.NewReport(rt.Decisions.Decide(ctx, *sc))
			return printReport(cmd.OutOrStdout(), report)
		})
	},
}

func readSendContext(path string) (*autosend.SendContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read send context: %w", err)
	}

	var sc autosend.SendContext
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse send context %s: %w", path, err)
	}
	if sc.DraftID == "" || sc.LeadID == "" || sc.WorkspaceID == "" {
		return nil, fmt.Errorf("send context %s must set workspace_id, lead_id and draft_id", path)
	}
	if !sc.Channel.Valid() {
		return nil, fmt.Errorf("send context %s has unknown channel %q", path, sc.Channel)
	}
	return &sc, nil
}

func init() {
	decideCmd.Flags().StringP("file", "f", "", "path to a SendContext JSON document")
	decideCmd.Flags().String("draft", "", "draft id to load from the database")
	decideCmd.Flags().Bool("validate-immediate", false, "run the staleness checks before an immediate send")
	decideCmd.Flags().Bool("include-preview", false, "include the draft in reviewer notifications")
	rootCmd.AddCommand(decideCmd)
}
