package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/studio-suggest/internal/model"
)

var decideCmd = &cobra.Command{
	Use:   "decide <suggestion-id> [suggestion-id...]",
	Short: "Approve or reject suggestions",
	Long:  "Records a review decision. Several ids are decided independently; a failure on one does not affect the others. --correct-to records the right target when rejecting, so the engine learns from the mistake.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		d := decisionFromFlags(cmd)

		env, err := initEngine(ctx, cfg, "engine")
		if err != nil {
			return err
		}
		defer env.Close()

		if len(args) == 1 {
			s, err := env.Engine.Decide(ctx, args[0], d)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		}

		tally, err := env.Engine.BulkDecide(ctx, args, d)
		if err != nil {
			return err
		}
		formatTally(cmd.OutOrStdout(), "decide", tally)
		return nil
	},
}

func decisionFromFlags(cmd *cobra.Command) model.Decision {
	approve, _ := cmd.Flags().GetBool("approve")
	reject, _ := cmd.Flags().GetBool("reject")
	reviewer, _ := cmd.Flags().GetString("reviewer")
	notes, _ := cmd.Flags().GetString("notes")
	correctTo, _ := cmd.Flags().GetString("correct-to")
	correctType, _ := cmd.Flags().GetString("correct-type")

	d := model.Decision{Reviewer: reviewer, Notes: notes}
	switch {
	case approve:
		d.Verdict = model.VerdictApprove
	case reject:
		d.Verdict = model.VerdictReject
	}
	if correctTo != "" {
		d.Correction = &model.Correction{TargetCode: correctTo, TargetType: correctType}
	}
	return d
}

func init() {
	decideCmd.Flags().Bool("approve", false, "approve the suggestion")
	decideCmd.Flags().Bool("reject", false, "reject the suggestion")
	decideCmd.MarkFlagsMutuallyExclusive("approve", "reject")
	decideCmd.MarkFlagsOneRequired("approve", "reject")
	decideCmd.Flags().String("reviewer", "", "who made the decision")
	_ = decideCmd.MarkFlagRequired("reviewer")
	decideCmd.Flags().String("notes", "", "review notes")
	decideCmd.Flags().String("correct-to", "", "correct target code (reject only)")
	decideCmd.Flags().String("correct-type", "", "correct target type (reject only)")
	rootCmd.AddCommand(decideCmd)
}
