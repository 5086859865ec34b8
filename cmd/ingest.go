package main

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/studio-suggest/internal/ingest"
)

var (
	ingestFormat string
	ingestRate   float64
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Generate suggestions from a signal file",
	Long:  "Reads signals from a JSONL, JSON or YAML file (\"-\" for stdin) and generates suggestions at the configured rate. Redelivered signals are acknowledged without changes.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cmd.Flags().Changed("rate") {
			cfg.Ingest.RatePerSec = ingestRate
		}
		env, err := initEngine(ctx, cfg, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		path := args[0]
		format := ingest.DetectFormat(path)
		if ingestFormat != "" {
			if format, err = ingest.ParseFormat(ingestFormat); err != nil {
				return err
			}
		}

		var r io.Reader = cmd.InOrStdin()
		if path != "-" {
			f, err := os.Open(path)
			if err != nil {
				return eris.Wrapf(err, "open %s", path)
			}
			defer f.Close() //nolint:errcheck
			r = f
		}

		sigCh, errCh := ingest.Stream(ctx, r, format)
		feeder := ingest.NewFeeder(env.Engine, cfg.Ingest.RatePerSec, cfg.Ingest.Burst)
		sum, err := feeder.Run(ctx, sigCh, errCh)
		if sum != nil {
			formatIngestSummary(cmd.OutOrStdout(), sum)
		}
		if err != nil {
			return eris.Wrap(err, "ingest")
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFormat, "format", "", "input format: jsonl, json or yaml (default from extension)")
	ingestCmd.Flags().Float64Var(&ingestRate, "rate", 0, "signals per second (default from config, 0 = unlimited)")
	rootCmd.AddCommand(ingestCmd)
}
