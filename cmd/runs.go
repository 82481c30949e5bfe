package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/decision-curator/internal/model"
	"github.com/sells-group/decision-curator/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect curation run history",
	Long:  "Commands for listing and summarizing curation runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List curation runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		return withStore(cmd, "runs", func(ctx context.Context, st store.Store) error {
			runs, err := st.ListRuns(ctx, store.RunFilter{Status: model.RunStatus(status), Limit: limit})
			if err != nil {
				return eris.Wrap(err, "runs list")
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "No runs found.")
				return nil
			}
			formatRunsList(cmd.OutOrStdout(), runs)
			return nil
		})
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate run and file counters over a period",
	RunE: func(cmd *cobra.Command, _ []string) error {
		since, _ := cmd.Flags().GetDuration("since")
		asJSON, _ := cmd.Flags().GetBool("json")

		filter := store.RunFilter{Limit: 10000}
		if since > 0 {
			filter.StartedAfter = time.Now().Add(-since)
		}

		return withStore(cmd, "runs", func(ctx context.Context, st store.Store) error {
			runs, err := st.ListRuns(ctx, filter)
			if err != nil {
				return eris.Wrap(err, "runs stats")
			}
			stats := computeRunStats(runs)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			formatRunStats(cmd.OutOrStdout(), stats)
			return nil
		})
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsStatsCmd.Flags().Duration("since", 7*24*time.Hour, "time window for stats (e.g. 24h, 168h)")
	for _, c := range []*cobra.Command{runsListCmd, runsStatsCmd} {
		c.Flags().Bool("json", false, "print JSON instead of a table")
		runsCmd.AddCommand(c)
	}
	rootCmd.AddCommand(runsCmd)
}

// runStats aggregates a set of runs.
type runStats struct {
	Total      int              `json:"total"`
	Complete   int              `json:"complete"`
	Failed     int              `json:"failed"`
	Running    int              `json:"running"`
	Totals     model.RunSummary `json:"totals"`
	AvgDurSecs float64          `json:"avg_duration_secs"`
}

// computeRunStats computes aggregate statistics from a list of runs.
func computeRunStats(runs []model.Run) runStats {
	var s runStats
	s.Total = len(runs)

	var totalDur time.Duration
	var durCount int

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
		case model.RunStatusFailed:
			s.Failed++
		default:
			s.Running++
		}
		if r.Summary != nil {
			s.Totals.Add(*r.Summary)
		}
		if r.CompletedAt != nil {
			totalDur += r.CompletedAt.Sub(r.StartedAt)
			durCount++
		}
	}

	if durCount > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(durCount)
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tWINDOW\tSTATUS\tRECORDS\tFAILED\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t-------\t------\t-------\t--------")

	for _, r := range runs {
		dur := "-"
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}

		var processed, failed int
		if r.Summary != nil {
			processed = r.Summary.RecordsProcessed
			failed = r.Summary.RecordsFailed
		}

		_, _ = fmt.Fprintf(w, "%s\t%s..%s\t%s\t%d\t%d\t%s\t%s\n",
			truncateID(r.ID),
			r.WindowStart, r.WindowEnd,
			r.Status,
			processed,
			failed,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Running:\t%d\n", s.Running)
	_, _ = fmt.Fprintf(w, "Records processed:\t%d\n", s.Totals.RecordsProcessed)
	_, _ = fmt.Fprintf(w, "  Failed:\t%d\n", s.Totals.RecordsFailed)
	_, _ = fmt.Fprintf(w, "Files:\t%d\n", s.Totals.FilesTotal())
	_, _ = fmt.Fprintf(w, "  Missing:\t%d\n", s.Totals.FilesMissing)
	_, _ = fmt.Fprintf(w, "  Errored:\t%d\n", s.Totals.FilesErrored)
	_, _ = fmt.Fprintf(w, "Extract fallbacks:\t%d\n", s.Totals.ExtractFallbacks)
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
