package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/decision-curator/internal/config"
	"github.com/sells-group/decision-curator/internal/store"
)

// Process exit codes.
const (
	exitOK          = 0
	exitError       = 1
	exitUnavailable = 2
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "decision-curator",
	Short: "Curate crawled legal decisions into a partitioned file store",
	Long: "Loads crawled decision records, resolves identifiers and dates, cleans decision HTML " +
		"and writes curated files and metadata keyed by identifier and detail URL.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// exitCode maps a command error to the process exit code. An unreachable
// store exits 2 so schedulers can retry the batch later.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, store.ErrUnavailable):
		return exitUnavailable
	default:
		return exitError
	}
}

func main() {
	os.Exit(exitCode(rootCmd.Execute()))
}
