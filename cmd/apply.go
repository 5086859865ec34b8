package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply [suggestion-id]",
	Short: "Apply an approved suggestion to business records",
	Long:  "Applies one approved suggestion, or with --all-approved every approved suggestion up to --limit, each in its own transaction.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		all, _ := cmd.Flags().GetBool("all-approved")
		limit, _ := cmd.Flags().GetInt("limit")
		if all == (len(args) == 1) {
			return eris.New("apply: pass a suggestion id or --all-approved")
		}

		env, err := initEngine(ctx, cfg, "engine")
		if err != nil {
			return err
		}
		defer env.Close()

		if all {
			tally, err := env.Engine.ApplyAllApproved(ctx, limit)
			if err != nil {
				return err
			}
			formatTally(cmd.OutOrStdout(), "apply", tally)
			return nil
		}

		res, err := env.Engine.Apply(ctx, args[0])
		if err != nil {
			return err
		}
		formatChanges(cmd.OutOrStdout(), res.Changes)
		return nil
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback <suggestion-id>",
	Short: "Reverse an applied suggestion from its change records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, cfg, "engine")
		if err != nil {
			return err
		}
		defer env.Close()

		s, err := env.Engine.Rollback(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), s)
	},
}

func init() {
	applyCmd.Flags().Bool("all-approved", false, "apply every approved suggestion")
	applyCmd.Flags().Int("limit", 100, "max suggestions to apply with --all-approved")
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(rollbackCmd)
}
