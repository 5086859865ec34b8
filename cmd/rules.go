package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/studio-suggest/internal/store"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage learned patterns",
}

var rulesGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Activate well-evidenced patterns and retire rejected ones",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, cfg, "engine")
		if err != nil {
			return err
		}
		defer env.Close()

		minEvidence, _ := cmd.Flags().GetInt("min-evidence")
		changed, err := env.Engine.GenerateRules(ctx, minEvidence)
		if err != nil {
			return err
		}
		if len(changed) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No pattern changed.")
			return nil
		}
		formatPatterns(cmd.OutOrStdout(), changed)
		return nil
	},
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List learned patterns",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, cfg, "engine")
		if err != nil {
			return err
		}
		defer env.Close()

		active, _ := cmd.Flags().GetBool("active")
		ptype, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")
		pats, err := env.Engine.Patterns(ctx, store.PatternFilter{PatternType: ptype, ActiveOnly: active, Limit: limit})
		if err != nil {
			return err
		}
		if len(pats) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No patterns found.")
			return nil
		}
		formatPatterns(cmd.OutOrStdout(), pats)
		return nil
	},
}

func init() {
	rulesGenerateCmd.Flags().Int("min-evidence", 0, "times_used needed for activation (default from config)")

	rulesListCmd.Flags().Bool("active", false, "only active patterns")
	rulesListCmd.Flags().String("type", "", "filter by pattern type (sender_domain, project_mention, contact_domain)")
	rulesListCmd.Flags().Int("limit", 100, "max number of patterns to display")

	rulesCmd.AddCommand(rulesGenerateCmd)
	rulesCmd.AddCommand(rulesListCmd)
	rootCmd.AddCommand(rulesCmd)
}
