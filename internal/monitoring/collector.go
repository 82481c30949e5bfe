package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/decision-curator/internal/model"
	"github.com/sells-group/decision-curator/internal/store"
)

// collectLimit bounds the runs read per snapshot.
const collectLimit = 10000

// MetricsSnapshot holds a point-in-time view of curation health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	RunFailRate  float64 `json:"run_fail_rate"`

	// Stalled runs are still running after the stall threshold.
	RunsStalled int      `json:"runs_stalled"`
	StalledIDs  []string `json:"stalled_ids,omitempty"`

	// Record and file totals from finished runs.
	RecordsProcessed int     `json:"records_processed"`
	RecordsFailed    int     `json:"records_failed"`
	Files            int     `json:"files"`
	FilesErrored     int     `json:"files_errored"`
	FilesMissing     int     `json:"files_missing"`
	FileErrorRate    float64 `json:"file_error_rate"`
	ExtractFallbacks int     `json:"extract_fallbacks"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the run log.
type Collector struct {
	runs         store.RunLog
	stalledAfter time.Duration
	now          func() time.Time
}

// NewCollector creates a collector. Runs still running after stalledHours
// count as stalled; non-positive values disable the check.
func NewCollector(runs store.RunLog, stalledHours int) *Collector {
	return &Collector{
		runs:         runs,
		stalledAfter: time.Duration(stalledHours) * time.Hour,
		now:          time.Now,
	}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		StartedAfter: cutoff,
		Limit:        collectLimit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	for _, r := range runs {
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
			if c.stalledAfter > 0 && now.Sub(r.StartedAt) > c.stalledAfter {
				snap.RunsStalled++
				snap.StalledIDs = append(snap.StalledIDs, r.ID)
			}
		}
		if r.Summary != nil {
			snap.RecordsProcessed += r.Summary.RecordsProcessed
			snap.RecordsFailed += r.Summary.RecordsFailed
			snap.Files += r.Summary.FilesTotal()
			snap.FilesErrored += r.Summary.FilesErrored
			snap.FilesMissing += r.Summary.FilesMissing
			snap.ExtractFallbacks += r.Summary.ExtractFallbacks
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.Files > 0 {
		snap.FileErrorRate = float64(snap.FilesErrored) / float64(snap.Files)
	}
	return snap, nil
}
