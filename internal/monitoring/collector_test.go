package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/decision-curator/internal/dates"
	"github.com/sells-group/decision-curator/internal/model"
	"github.com/sells-group/decision-curator/internal/store"
)

// mockRunLog implements store.RunLog for testing.
type mockRunLog struct {
	runs    []model.Run
	listErr error
}

func (m *mockRunLog) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var filtered []model.Run
	for _, r := range m.runs {
		if !filter.StartedAfter.IsZero() && r.StartedAt.Before(filter.StartedAfter) {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}

// Unused run log methods satisfy the interface.
func (m *mockRunLog) StartRun(context.Context, dates.Window) (*model.Run, error)      { return nil, nil }
func (m *mockRunLog) CompleteRun(context.Context, string, model.RunSummary) error     { return nil }
func (m *mockRunLog) FailRun(context.Context, string, model.RunSummary, string) error { return nil }

func finishedRun(id string, status model.RunStatus, startedAgo time.Duration, s model.RunSummary) model.Run {
	return model.Run{
		ID:        id,
		Status:    status,
		StartedAt: time.Now().UTC().Add(-startedAgo),
		Summary:   &s,
	}
}

func TestCollector_Collect(t *testing.T) {
	rl := &mockRunLog{runs: []model.Run{
		finishedRun("r1", model.RunStatusComplete, time.Hour, model.RunSummary{
			RecordsProcessed: 10, FilesCopied: 6, FilesTransformed: 3, FilesErrored: 1, ExtractFallbacks: 2,
		}),
		finishedRun("r2", model.RunStatusComplete, 2*time.Hour, model.RunSummary{
			RecordsProcessed: 5, RecordsFailed: 1, FilesCopied: 4, FilesMissing: 2,
		}),
		finishedRun("r3", model.RunStatusFailed, 3*time.Hour, model.RunSummary{RecordsProcessed: 1, RecordsFailed: 1}),
		{ID: "r4", Status: model.RunStatusRunning, StartedAt: time.Now().UTC().Add(-10 * time.Hour)},
		{ID: "r5", Status: model.RunStatusRunning, StartedAt: time.Now().UTC().Add(-time.Hour)},
		// Outside the lookback window.
		finishedRun("old", model.RunStatusFailed, 72*time.Hour, model.RunSummary{FilesErrored: 100}),
	}}

	snap, err := NewCollector(rl, 6).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 5, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 2, snap.RunsRunning)
	assert.InDelta(t, 1.0/3.0, snap.RunFailRate, 0.001)

	assert.Equal(t, 1, snap.RunsStalled)
	assert.Equal(t, []string{"r4"}, snap.StalledIDs)

	assert.Equal(t, 16, snap.RecordsProcessed)
	assert.Equal(t, 2, snap.RecordsFailed)
	assert.Equal(t, 16, snap.Files)
	assert.Equal(t, 1, snap.FilesErrored)
	assert.Equal(t, 2, snap.FilesMissing)
	assert.InDelta(t, 1.0/16.0, snap.FileErrorRate, 0.001)
	assert.Equal(t, 2, snap.ExtractFallbacks)
	assert.Equal(t, 24, snap.LookbackHours)
}

func TestCollector_Collect_Empty(t *testing.T) {
	snap, err := NewCollector(&mockRunLog{}, 6).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.RunsTotal)
	assert.Zero(t, snap.RunFailRate)
	assert.Zero(t, snap.FileErrorRate)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_Collect_StallCheckDisabled(t *testing.T) {
	rl := &mockRunLog{runs: []model.Run{
		{ID: "r1", Status: model.RunStatusRunning, StartedAt: time.Now().UTC().Add(-20 * time.Hour)},
	}}
	snap, err := NewCollector(rl, 0).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.RunsRunning)
	assert.Zero(t, snap.RunsStalled)
}

func TestCollector_Collect_ListError(t *testing.T) {
	rl := &mockRunLog{listErr: eris.New("db down")}
	_, err := NewCollector(rl, 6).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list runs")
}

func TestCollector_Collect_MemoryStore(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	run, err := mem.StartRun(ctx, dates.Window{Start: "2023-06-01", End: "2023-06-30"})
	require.NoError(t, err)
	require.NoError(t, mem.FailRun(ctx, run.ID, model.RunSummary{RecordsProcessed: 3}, "store unavailable"))

	snap, err := NewCollector(mem, 6).Collect(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 3, snap.RecordsProcessed)
}
