package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/decision-curator/internal/ingest"
	"github.com/sells-group/decision-curator/internal/resilience"
)

var ingestFlags struct {
	file      string
	partition string
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load crawled decision records (JSON Lines) into the raw store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("ingest"); err != nil {
			return err
		}

		retry := resilience.WithAttempts(cfg.Curate.UpsertRetries)
		retry.MaxBackoff = 30 * time.Second
		in, err := ingest.Open(ctx, ingestFlags.file, ingest.SourceOptions{Retry: retry})
		if err != nil {
			return err
		}
		defer in.Close() //nolint:errcheck

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ing, err := ingest.New(st,
			ingest.WithBatchSize(cfg.Ingest.BatchSize),
			ingest.WithPartition(ingestFlags.partition),
		)
		if err != nil {
			return err
		}
		stats, err := ing.Load(ctx, in)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), stats)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFlags.file, "file", "-", "JSON Lines file, http(s) URL, or - for stdin")
	ingestCmd.Flags().StringVar(&ingestFlags.partition, "partition", "", "YYYY-MM partition for records without a decision date")
	rootCmd.AddCommand(ingestCmd)
}
