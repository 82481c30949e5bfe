package curate

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/decision-curator/internal/model"
	"github.com/sells-group/decision-curator/internal/store"
)

// --- Curated store mock ---

type mockCuratedStore struct {
	mock.Mock
}

func (m *mockCuratedStore) GetCurated(ctx context.Context, identifier, detailURL string) (*model.CuratedRecord, error) {
	args := m.Called(ctx, identifier, detailURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CuratedRecord), args.Error(1)
}

func (m *mockCuratedStore) UpsertCurated(ctx context.Context, rec model.CuratedRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockCuratedStore) ListCurated(ctx context.Context, f store.CuratedFilter) ([]model.CuratedRecord, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CuratedRecord), args.Error(1)
}

func (m *mockCuratedStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- Observer mock ---

type mockObserver struct {
	mock.Mock
}

func (o *mockObserver) RecordDone(outcome string, _ time.Duration)  { o.Called(outcome) }
func (o *mockObserver) FileDone(s model.FileStatus, unchanged bool) { o.Called(s, unchanged) }
func (o *mockObserver) Extraction(outcome string)                   { o.Called(outcome) }
func (o *mockObserver) CacheLookup(hit bool)                        { o.Called(hit) }
