package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/studio-suggest/internal/model"
	"github.com/sells-group/studio-suggest/internal/store"
)

var suggestionsCmd = &cobra.Command{
	Use:     "suggestions",
	Aliases: []string{"s"},
	Short:   "Inspect suggestions",
	Long:    "Commands for listing, viewing and previewing suggestions.",
}

// -- suggestions list --

var suggestionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List suggestions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, cfg, "engine")
		if err != nil {
			return err
		}
		defer env.Close()

		status, _ := cmd.Flags().GetString("status")
		typ, _ := cmd.Flags().GetString("type")
		source, _ := cmd.Flags().GetString("source-type")
		entity, _ := cmd.Flags().GetString("entity")
		minConf, _ := cmd.Flags().GetFloat64("min-confidence")
		limit, _ := cmd.Flags().GetInt("limit")

		list, err := env.Engine.List(ctx, store.SuggestionFilter{
			Status:        model.SuggestionStatus(status),
			Type:          model.SuggestionType(typ),
			SourceType:    source,
			EntityCode:    entity,
			MinConfidence: minConf,
			Limit:         limit,
		})
		if err != nil {
			return err
		}

		if len(list) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No suggestions found.")
			return nil
		}
		formatSuggestionsList(cmd.OutOrStdout(), list)
		return nil
	},
}

// -- suggestions show --

var suggestionsShowCmd = &cobra.Command{
	Use:   "show <suggestion-id>",
	Short: "Show full details of a suggestion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, cfg, "engine")
		if err != nil {
			return err
		}
		defer env.Close()

		s, err := env.Engine.Get(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), s)
	},
}

// -- suggestions preview --

var suggestionsPreviewCmd = &cobra.Command{
	Use:   "preview <suggestion-id>",
	Short: "Show what applying a suggestion would change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, cfg, "engine")
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.Engine.Preview(ctx, args[0])
		if err != nil {
			return err
		}
		formatPreview(cmd.OutOrStdout(), p)
		return nil
	},
}

// -- suggestions changes --

var suggestionsChangesCmd = &cobra.Command{
	Use:   "changes <suggestion-id>",
	Short: "Show the change records written by an applied suggestion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, cfg, "engine")
		if err != nil {
			return err
		}
		defer env.Close()

		recs, err := env.Engine.Changes(ctx, args[0])
		if err != nil {
			return err
		}
		formatChanges(cmd.OutOrStdout(), recs)
		return nil
	},
}

func init() {
	suggestionsListCmd.Flags().String("status", "", "filter by status (pending, approved, applied, apply_failed, ...)")
	suggestionsListCmd.Flags().String("type", "", "filter by suggestion type")
	suggestionsListCmd.Flags().String("source-type", "", "filter by signal source type")
	suggestionsListCmd.Flags().String("entity", "", "filter by related entity code")
	suggestionsListCmd.Flags().Float64("min-confidence", 0, "minimum confidence score")
	suggestionsListCmd.Flags().Int("limit", 50, "max number of suggestions to display")

	suggestionsCmd.AddCommand(suggestionsListCmd)
	suggestionsCmd.AddCommand(suggestionsShowCmd)
	suggestionsCmd.AddCommand(suggestionsPreviewCmd)
	suggestionsCmd.AddCommand(suggestionsChangesCmd)
	rootCmd.AddCommand(suggestionsCmd)
}
