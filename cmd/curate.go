package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/decision-curator/internal/curate"
	"github.com/sells-group/decision-curator/internal/dates"
	"github.com/sells-group/decision-curator/internal/model"
	"github.com/sells-group/decision-curator/internal/monitoring"
	"github.com/sells-group/decision-curator/internal/store"
)

var curateFlags struct {
	start   string
	end     string
	byMonth bool
	workers int
	dryRun  bool
}

var curateCmd = &cobra.Command{
	Use:   "curate",
	Short: "Curate raw decisions in a date window",
	Long: "Scans raw records whose decision date (or stored partition) falls in --start..--end, " +
		"writes curated files and upserts one curated record per identifier and detail URL. " +
		"File-level failures are recorded and do not fail the run; an unreachable store exits 2.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		window, err := dates.ParseWindow(curateFlags.start, curateFlags.end)
		if err != nil {
			return err
		}
		if curateFlags.workers > 0 {
			cfg.Curate.Workers = curateFlags.workers
		}
		if err := cfg.Validate("curate"); err != nil {
			return err
		}

		windows := []dates.Window{window}
		if curateFlags.byMonth {
			if windows, err = window.Spans(); err != nil {
				return err
			}
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		metrics := monitoring.NewMetrics()
		opts := curate.Options{
			LandingDir:       cfg.Paths.LandingDir,
			CuratedDir:       cfg.Paths.CuratedDir,
			Workers:          cfg.Curate.Workers,
			RateLimit:        cfg.Curate.RateLimit,
			ExtractCacheSize: cfg.Curate.ExtractCacheSize,
			UpsertRetries:    cfg.Curate.UpsertRetries,
			MinTextRunes:     cfg.Curate.MinTextRunes,
			ProgressEvery:    cfg.Curate.ProgressEvery,
		}
		options := []curate.Option{curate.WithObserver(metrics), curate.WithPinger(st)}

		var curated store.CuratedStore = st
		if curateFlags.dryRun {
			tmp, err := os.MkdirTemp("", "curate-dry-run-*")
			if err != nil {
				return eris.Wrap(err, "create dry-run dir")
			}
			defer os.RemoveAll(tmp) //nolint:errcheck
			opts.CuratedDir = tmp
			curated = store.NewMemory()
			zap.L().Info("dry run: curated output is discarded", zap.String("dir", tmp))
		} else {
			options = append(options, curate.WithRunLog(st))
		}

		c, err := curate.New(st, curated, opts, options...)
		if err != nil {
			return err
		}

		var total model.RunSummary
		var runErr error
		for _, w := range windows {
			summary, err := c.Run(ctx, w)
			total.Add(summary)
			if err != nil {
				runErr = err
				break
			}
		}

		if cfg.Curate.MetricsFile != "" {
			if err := metrics.WriteTextfile(cfg.Curate.MetricsFile); err != nil {
				zap.L().Warn("metrics textfile not written", zap.Error(err))
			}
		}
		if runErr != nil {
			return runErr
		}

		return writeJSON(cmd.OutOrStdout(), total)
	},
}

func init() {
	curateCmd.Flags().StringVar(&curateFlags.start, "start", "", "window start date, YYYY-MM-DD (required)")
	curateCmd.Flags().StringVar(&curateFlags.end, "end", "", "window end date, YYYY-MM-DD (required)")
	curateCmd.Flags().BoolVar(&curateFlags.byMonth, "by-month", false, "run one window per calendar month")
	curateCmd.Flags().IntVar(&curateFlags.workers, "workers", 0, "concurrent records (default from config)")
	curateCmd.Flags().BoolVar(&curateFlags.dryRun, "dry-run", false, "write to a temp dir and skip upserts")
	_ = curateCmd.MarkFlagRequired("start")
	_ = curateCmd.MarkFlagRequired("end")
	rootCmd.AddCommand(curateCmd)
}
