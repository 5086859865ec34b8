package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/studio-suggest/internal/export"
	"github.com/sells-group/studio-suggest/internal/store"
)

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Work with the change log",
}

var changesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export change records to XLSX or CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		out, _ := cmd.Flags().GetString("out")
		formatName, _ := cmd.Flags().GetString("format")
		table, _ := cmd.Flags().GetString("table")
		suggestion, _ := cmd.Flags().GetString("suggestion")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		format := export.Format(formatName)
		if format == "" {
			if out == "" {
				format = export.FormatCSV
			} else {
				var err error
				if format, err = export.FormatFor(out); err != nil {
					return err
				}
			}
		}
		if format == export.FormatXLSX && out == "" {
			return eris.New("changes export: xlsx needs --out")
		}

		env, err := initEngine(ctx, cfg, "engine")
		if err != nil {
			return err
		}
		defer env.Close()

		filter := store.ChangeFilter{SuggestionID: suggestion, TableName: table, Limit: limit}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}
		recs, err := env.Engine.ChangeLog(ctx, filter)
		if err != nil {
			return err
		}

		var w io.Writer = cmd.OutOrStdout()
		if out != "" {
			f, err := os.Create(out)
			if err != nil {
				return eris.Wrapf(err, "create %s", out)
			}
			defer f.Close() //nolint:errcheck
			w = f
		}
		if err := export.Write(w, format, recs); err != nil {
			return err
		}
		if out != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d change records to %s\n", len(recs), out)
		}
		return nil
	},
}

func init() {
	changesExportCmd.Flags().String("out", "", "output file (default stdout, csv only)")
	changesExportCmd.Flags().String("format", "", "xlsx or csv (default from --out extension)")
	changesExportCmd.Flags().String("table", "", "filter by business table")
	changesExportCmd.Flags().String("suggestion", "", "filter by suggestion id")
	changesExportCmd.Flags().Duration("since", 0, "only records applied within this window (e.g. 168h)")
	changesExportCmd.Flags().Int("limit", 0, "max records (0 = all)")

	changesCmd.AddCommand(changesExportCmd)
	rootCmd.AddCommand(changesCmd)
}
