package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/decision-curator/internal/config"
	"github.com/sells-group/decision-curator/internal/dates"
	"github.com/sells-group/decision-curator/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// backends returns every store that runs without external services.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": newTestSQLiteStore(t),
	}
}

func rawRecord(id, detail, decisionDate, partition string) model.RawRecord {
	return model.RawRecord{
		Identifier:    id,
		Title:         "Decision " + id,
		DetailURL:     detail,
		DecisionDate:  decisionDate,
		PartitionDate: partition,
		Authority:     "Workplace Relations Commission",
		StoredFiles: []model.FileRef{
			{URL: detail, Path: partition + "/wrc/" + id + ".html", ContentType: "text/html"},
		},
	}
}

func mustWindow(t *testing.T, start, end string) dates.Window {
	t.Helper()
	w, err := dates.ParseWindow(start, end)
	require.NoError(t, err)
	return w
}

func collect(t *testing.T, s Store, w dates.Window) []model.RawRecord {
	t.Helper()
	var out []model.RawRecord
	require.NoError(t, s.ScanWindow(context.Background(), w, func(r model.RawRecord) error {
		out = append(out, r)
		return nil
	}))
	return out
}

func identifiers(recs []model.RawRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Identifier
	}
	return out
}

func TestStore_ScanWindow(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.SaveRaw(ctx, []model.RawRecord{
				rawRecord("ADJ-00000003", "https://wrc/3", "2023-06-20", "2023-06"),
				rawRecord("ADJ-00000001", "https://wrc/1", "2023-06-01", "2023-06"),
				rawRecord("ADJ-00000002", "https://wrc/2", "2023-07-02", "2023-07"),
				// No decision date, partition inside the window months.
				rawRecord("LCR-22001", "https://lc/1", "", "2023-06"),
				// Outside on both counts.
				rawRecord("ADJ-00000009", "https://wrc/9", "2022-01-05", "2022-01"),
			})
			require.NoError(t, err)

			got := collect(t, s, mustWindow(t, "2023-06-01", "2023-06-30"))
			assert.Equal(t, []string{"LCR-22001", "ADJ-00000001", "ADJ-00000003"}, identifiers(got))

			n, err := s.CountWindow(ctx, mustWindow(t, "2023-06-01", "2023-06-30"))
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			all := collect(t, s, dates.Window{})
			assert.Len(t, all, 5)
			assert.Equal(t, "ADJ-00000009", all[0].Identifier)
		})
	}
}

func TestStore_ScanWindow_CallbackErrorStops(t *testing.T) {
	stop := errors.New("stop")
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.SaveRaw(ctx, []model.RawRecord{
				rawRecord("ADJ-00000001", "https://wrc/1", "2023-06-01", "2023-06"),
				rawRecord("ADJ-00000002", "https://wrc/2", "2023-06-02", "2023-06"),
			})
			require.NoError(t, err)

			calls := 0
			err = s.ScanWindow(ctx, dates.Window{}, func(model.RawRecord) error {
				calls++
				return stop
			})
			assert.ErrorIs(t, err, stop)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestSQLite_ScanWindow_Pages(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	var recs []model.RawRecord
	for i := range scanPageSize + 25 {
		recs = append(recs, rawRecord(fmt.Sprintf("ADJ-%08d", i), fmt.Sprintf("https://wrc/%d", i), "2023-06-15", "2023-06"))
	}
	n, err := s.SaveRaw(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, len(recs), n)

	got := collect(t, s, mustWindow(t, "2023-06-01", "2023-06-30"))
	require.Len(t, got, len(recs))
	assert.Equal(t, "ADJ-00000000", got[0].Identifier)
	assert.Equal(t, fmt.Sprintf("ADJ-%08d", scanPageSize+24), got[len(got)-1].Identifier)
}

func TestStore_SaveRaw_KeepsFirstSeen(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)

			r := rawRecord("ADJ-00000001", "https://wrc/1", "2023-06-01", "2023-06")
			r.FirstSeen = first
			_, err := s.SaveRaw(ctx, []model.RawRecord{r})
			require.NoError(t, err)

			r.FirstSeen = time.Time{}
			r.Title = "Updated title"
			_, err = s.SaveRaw(ctx, []model.RawRecord{r})
			require.NoError(t, err)

			got := collect(t, s, dates.Window{})
			require.Len(t, got, 1)
			assert.Equal(t, "Updated title", got[0].Title)
			assert.True(t, first.Equal(got[0].FirstSeen), "first_seen %s", got[0].FirstSeen)
			assert.False(t, got[0].UpdatedAt.IsZero())
		})
	}
}

func TestStore_SaveRaw_DetailFallsBackToSource(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			r := rawRecord("ADJ-00000001", "", "2023-06-01", "2023-06")
			r.SourceURL = "https://wrc/search#1"
			_, err := s.SaveRaw(context.Background(), []model.RawRecord{r})
			require.NoError(t, err)

			got := collect(t, s, dates.Window{})
			require.Len(t, got, 1)
			assert.Equal(t, "https://wrc/search#1", got[0].DetailURL)
		})
	}
}

func curatedRecord(id, detail, partition string) model.CuratedRecord {
	return model.CuratedRecord{
		Identifier:    id,
		DetailURL:     detail,
		Authority:     "Workplace Relations Commission",
		DecisionDate:  partition + "-15",
		PartitionDate: partition,
		Files: []model.CuratedFile{{
			Status: model.FileStatusTransformed,
			Path:   partition + "/workplace-relations-commission/" + id + ".html",
			Hash:   "abc",
			Ext:    ".html",
		}},
		CuratedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestStore_Curated(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.GetCurated(ctx, "ADJ-00000001", "https://wrc/1")
			assert.ErrorIs(t, err, ErrNotFound)

			rec := curatedRecord("ADJ-00000001", "https://wrc/1", "2023-06")
			require.NoError(t, s.UpsertCurated(ctx, rec))

			// Same identifier, different detail URL is a separate record.
			require.NoError(t, s.UpsertCurated(ctx, curatedRecord("ADJ-00000001", "https://wrc/1b", "2023-06")))
			require.NoError(t, s.UpsertCurated(ctx, curatedRecord("ADJ-00000002", "https://wrc/2", "2023-07")))

			// Replace drops the old file list entirely.
			rec.Files = []model.CuratedFile{{Status: model.FileStatusMissingSource, Source: "x"}}
			require.NoError(t, s.UpsertCurated(ctx, rec))

			got, err := s.GetCurated(ctx, "ADJ-00000001", "https://wrc/1")
			require.NoError(t, err)
			assert.Equal(t, rec.Files, got.Files)
			assert.Empty(t, got.StoredPaths())

			byID, err := s.ListCurated(ctx, CuratedFilter{Identifier: "ADJ-00000001"})
			require.NoError(t, err)
			assert.Len(t, byID, 2)

			june, err := s.ListCurated(ctx, CuratedFilter{Partition: "2023-06"})
			require.NoError(t, err)
			assert.Len(t, june, 2)

			page, err := s.ListCurated(ctx, CuratedFilter{Limit: 1, Offset: 2})
			require.NoError(t, err)
			require.Len(t, page, 1)
			assert.Equal(t, "ADJ-00000002", page[0].Identifier)

			none, err := s.ListCurated(ctx, CuratedFilter{Authority: "Labour Court"})
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestStore_RunLog(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			w := mustWindow(t, "2023-06-01", "2023-06-30")

			ok, err := s.StartRun(ctx, w)
			require.NoError(t, err)
			assert.Equal(t, model.RunStatusRunning, ok.Status)
			assert.NotEmpty(t, ok.ID)

			summary := model.RunSummary{RecordsProcessed: 3, RecordsCurated: 3, FilesCopied: 2, FilesTransformed: 1}
			require.NoError(t, s.CompleteRun(ctx, ok.ID, summary))

			bad, err := s.StartRun(ctx, w)
			require.NoError(t, err)
			require.NoError(t, s.FailRun(ctx, bad.ID, model.RunSummary{RecordsProcessed: 1}, "store unavailable"))

			err = s.CompleteRun(ctx, "missing", summary)
			assert.ErrorIs(t, err, ErrNotFound)

			runs, err := s.ListRuns(ctx, RunFilter{})
			require.NoError(t, err)
			require.Len(t, runs, 2)

			failed, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusFailed})
			require.NoError(t, err)
			require.Len(t, failed, 1)
			assert.Equal(t, bad.ID, failed[0].ID)
			assert.Equal(t, "store unavailable", failed[0].Error)
			require.NotNil(t, failed[0].CompletedAt)

			complete, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
			require.NoError(t, err)
			require.Len(t, complete, 1)
			require.NotNil(t, complete[0].Summary)
			assert.Equal(t, summary, *complete[0].Summary)
			assert.Equal(t, "2023-06-01", complete[0].WindowStart)
			assert.Equal(t, "2023-06-30", complete[0].WindowEnd)

			future, err := s.ListRuns(ctx, RunFilter{StartedAfter: time.Now().Add(time.Hour)})
			require.NoError(t, err)
			assert.Empty(t, future)
		})
	}
}

func TestUnavailable(t *testing.T) {
	assert.NoError(t, Unavailable("sqlite", nil))

	err := eris.Wrap(Unavailable("mongo", errors.New("dial tcp: refused")), "curate: save")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "mongo: store unavailable")

	var ue *UnavailableError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "mongo", ue.Backend)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	mem, err := Open(ctx, configFor("memory", ""))
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, mem)

	path := filepath.Join(t.TempDir(), "nested", "curator.db")
	lite, err := Open(ctx, configFor("sqlite", path))
	require.NoError(t, err)
	t.Cleanup(func() { lite.Close() }) //nolint:errcheck
	require.NoError(t, lite.Migrate(ctx))
	assert.NoError(t, lite.Ping(ctx))

	_, err = Open(ctx, configFor("oracle", ""))
	assert.Error(t, err)
}

func configFor(driver, url string) config.StoreConfig {
	return config.StoreConfig{Driver: driver, DatabaseURL: url, ConnectTimeoutSecs: 1}
}
