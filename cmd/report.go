package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/decision-curator/internal/model"
	"github.com/sells-group/decision-curator/internal/report"
	"github.com/sells-group/decision-curator/internal/store"
)

const reportPageSize = 1000

var reportFlags struct {
	out       string
	partition string
	authority string
	verify    bool
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export curated records to an XLSX workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd, "report", func(ctx context.Context, st store.Store) error {
			recs, err := listAllCurated(ctx, st, store.CuratedFilter{
				Partition: reportFlags.partition,
				Authority: reportFlags.authority,
			})
			if err != nil {
				return err
			}

			summary, err := report.WriteXLSX(reportFlags.out, recs)
			if err != nil {
				return err
			}
			zap.L().Info("report written",
				zap.String("path", reportFlags.out),
				zap.Int("records", summary.Records),
			)

			if reportFlags.verify {
				if err := report.Verify(reportFlags.out, recs); err != nil {
					return eris.Wrap(err, "report verify")
				}
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d records written to %s\n", summary.Records, reportFlags.out)
			return err
		})
	},
}

// listAllCurated pages through ListCurated until a short page.
func listAllCurated(ctx context.Context, st store.CuratedStore, f store.CuratedFilter) ([]model.CuratedRecord, error) {
	var out []model.CuratedRecord
	f.Limit = reportPageSize
	for {
		page, err := st.ListCurated(ctx, f)
		if err != nil {
			return nil, eris.Wrap(err, "report: list curated")
		}
		out = append(out, page...)
		if len(page) < reportPageSize {
			return out, nil
		}
		f.Offset += len(page)
	}
}

func init() {
	reportCmd.Flags().StringVar(&reportFlags.out, "out", "", "output .xlsx path (required)")
	reportCmd.Flags().StringVar(&reportFlags.partition, "partition", "", "only records in this YYYY-MM partition")
	reportCmd.Flags().StringVar(&reportFlags.authority, "authority", "", "only records from this authority")
	reportCmd.Flags().BoolVar(&reportFlags.verify, "verify", false, "read the workbook back and compare")
	_ = reportCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(reportCmd)
}
