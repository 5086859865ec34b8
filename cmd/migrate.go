package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateBusinessTables bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the engine schema",
	Long:  "Creates the suggestion, pattern, change record and signal receipt tables. With --business-tables it also creates the projects, tasks, contacts and links tables handlers write to, for development databases.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if migrateBusinessTables {
			targets, err := loadTargets(cfg)
			if err != nil {
				return err
			}
			if _, err := st.Exec(ctx, targets.SchemaDDL()); err != nil {
				return eris.Wrap(err, "migrate business tables")
			}
		}

		zap.L().Info("migration complete",
			zap.String("driver", cfg.Store.Driver),
			zap.Bool("business_tables", migrateBusinessTables),
		)
		fmt.Fprintln(cmd.OutOrStdout(), "migration complete")
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateBusinessTables, "business-tables", false, "also create the business tables from the targets mapping")
	rootCmd.AddCommand(migrateCmd)
}
