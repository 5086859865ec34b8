package main

import (
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show suggestion queue statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, cfg, "engine")
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Engine.Stats(ctx)
		if err != nil {
			return err
		}
		formatStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Reject pending suggestions past their expiry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, cfg, "engine")
		if err != nil {
			return err
		}
		defer env.Close()

		tally, err := env.Engine.ExpireStale(ctx)
		if err != nil {
			return err
		}
		formatTally(cmd.OutOrStdout(), "expire", tally)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(expireCmd)
}
