package store

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/decision-curator/internal/dates"
	"github.com/sells-group/decision-curator/internal/model"
)

type recordKey struct {
	identifier string
	detailURL  string
}

// MemoryStore is an in-process Store used by tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	raw     map[recordKey]model.RawRecord
	curated map[recordKey]model.CuratedRecord
	runs    []model.Run
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		raw:     make(map[recordKey]model.RawRecord),
		curated: make(map[recordKey]model.CuratedRecord),
	}
}

func (m *MemoryStore) Ping(context.Context) error    { return nil }
func (m *MemoryStore) Migrate(context.Context) error { return nil }
func (m *MemoryStore) Close() error                  { return nil }

func (m *MemoryStore) windowRecords(w dates.Window) []model.RawRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.RawRecord
	for _, r := range m.raw {
		if w.Contains(r.DecisionDate, r.PartitionDate) {
			out = append(out, cloneRaw(r))
		}
	}
	slices.SortFunc(out, compareRaw)
	return out
}

func (m *MemoryStore) ScanWindow(ctx context.Context, w dates.Window, fn func(model.RawRecord) error) error {
	for _, r := range m.windowRecords(w) {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "memory: scan window")
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) CountWindow(_ context.Context, w dates.Window) (int, error) {
	return len(m.windowRecords(w)), nil
}

func (m *MemoryStore) SaveRaw(_ context.Context, recs []model.RawRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := nowUTC()
	for _, r := range recs {
		r = cloneRaw(r)
		r.DetailURL = r.DetailKey()
		k := recordKey{r.Identifier, r.DetailURL}
		if prev, ok := m.raw[k]; ok {
			r.FirstSeen = prev.FirstSeen
		} else if r.FirstSeen.IsZero() {
			r.FirstSeen = now
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = now
		}
		m.raw[k] = r
	}
	return len(recs), nil
}

func (m *MemoryStore) GetCurated(_ context.Context, identifier, detailURL string) (*model.CuratedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.curated[recordKey{identifier, detailURL}]
	if !ok {
		return nil, ErrNotFound
	}
	rec = cloneCurated(rec)
	return &rec, nil
}

func (m *MemoryStore) UpsertCurated(_ context.Context, rec model.CuratedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.curated[recordKey{rec.Identifier, rec.DetailURL}] = cloneCurated(rec)
	return nil
}

func (m *MemoryStore) ListCurated(_ context.Context, f CuratedFilter) ([]model.CuratedRecord, error) {
	m.mu.RLock()
	var out []model.CuratedRecord
	for _, rec := range m.curated {
		if matchesCurated(rec, f) {
			out = append(out, cloneCurated(rec))
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(out, compareCurated)
	return paginate(out, f.Offset, listLimit(f.Limit)), nil
}

func (m *MemoryStore) StartRun(_ context.Context, w dates.Window) (*model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run := model.Run{
		ID:          uuid.New().String(),
		WindowStart: w.Start,
		WindowEnd:   w.End,
		Status:      model.RunStatusRunning,
		StartedAt:   nowUTC(),
	}
	m.runs = append(m.runs, run)
	return &run, nil
}

func (m *MemoryStore) finishRun(id string, status model.RunStatus, s model.RunSummary, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.runs {
		if m.runs[i].ID != id {
			continue
		}
		now := nowUTC()
		m.runs[i].Status = status
		m.runs[i].Summary = &s
		m.runs[i].Error = msg
		m.runs[i].CompletedAt = &now
		return nil
	}
	return eris.Wrapf(ErrNotFound, "memory: run %s", id)
}

func (m *MemoryStore) CompleteRun(_ context.Context, id string, s model.RunSummary) error {
	return m.finishRun(id, model.RunStatusComplete, s, "")
}

func (m *MemoryStore) FailRun(_ context.Context, id string, s model.RunSummary, msg string) error {
	return m.finishRun(id, model.RunStatusFailed, s, msg)
}

func (m *MemoryStore) ListRuns(_ context.Context, f RunFilter) ([]model.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Run
	for i := len(m.runs) - 1; i >= 0; i-- {
		r := m.runs[i]
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if !f.StartedAfter.IsZero() && r.StartedAt.Before(f.StartedAfter) {
			continue
		}
		out = append(out, r)
	}
	return paginate(out, 0, listLimit(f.Limit)), nil
}

func matchesCurated(rec model.CuratedRecord, f CuratedFilter) bool {
	return (f.Identifier == "" || rec.Identifier == f.Identifier) &&
		(f.Partition == "" || rec.PartitionDate == f.Partition) &&
		(f.Authority == "" || rec.Authority == f.Authority)
}

func compareRaw(a, b model.RawRecord) int {
	return cmp.Or(
		cmp.Compare(a.PartitionDate, b.PartitionDate),
		cmp.Compare(a.DecisionDate, b.DecisionDate),
		cmp.Compare(a.Identifier, b.Identifier),
		cmp.Compare(a.DetailURL, b.DetailURL),
	)
}

func compareCurated(a, b model.CuratedRecord) int {
	return cmp.Or(
		cmp.Compare(a.PartitionDate, b.PartitionDate),
		cmp.Compare(a.Identifier, b.Identifier),
		cmp.Compare(a.DetailURL, b.DetailURL),
	)
}

func paginate[T any](in []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(in) {
			return nil
		}
		in = in[offset:]
	}
	if limit > 0 && len(in) > limit {
		in = in[:limit]
	}
	return in
}

func cloneRaw(r model.RawRecord) model.RawRecord {
	r.StoredFiles = slices.Clone(r.StoredFiles)
	r.Files = slices.Clone(r.Files)
	r.ContentTypes = slices.Clone(r.ContentTypes)
	r.Extra = maps.Clone(r.Extra)
	return r
}

func cloneCurated(c model.CuratedRecord) model.CuratedRecord {
	c.Files = slices.Clone(c.Files)
	return c
}
