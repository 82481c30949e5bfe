// Package store persists raw decision records, curated metadata and the
// curation run log. Backends: Postgres, SQLite, MongoDB and in-memory.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/decision-curator/internal/dates"
	"github.com/sells-group/decision-curator/internal/model"
)

// ErrNotFound is returned when a keyed lookup has no match.
var ErrNotFound = eris.New("store: not found")

// ErrUnavailable marks failures to reach the backing store. A curation run
// that sees it aborts.
var ErrUnavailable = eris.New("store: unavailable")

// UnavailableError carries the backend failure behind ErrUnavailable.
type UnavailableError struct {
	Backend string
	Err     error
}

func (e *UnavailableError) Error() string {
	return e.Backend + ": store unavailable: " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUnavailable) hold for every UnavailableError.
func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// Unavailable wraps err as a connectivity failure of backend.
func Unavailable(backend string, err error) error {
	if err == nil {
		return nil
	}
	return &UnavailableError{Backend: backend, Err: err}
}

// CuratedFilter narrows ListCurated.
type CuratedFilter struct {
	Identifier string `json:"identifier,omitempty"`
	Partition  string `json:"partition,omitempty"`
	Authority  string `json:"authority,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	StartedAfter time.Time       `json:"started_after,omitzero"`
	Limit        int             `json:"limit,omitempty"`
}

// RawStore reads and writes crawled records.
type RawStore interface {
	// ScanWindow calls fn for each record whose decision date lies in the
	// window, or whose partition lies between the window's months, ordered by
	// partition, decision date, identifier and detail URL. A zero window scans
	// everything. An error from fn stops the scan and is returned unchanged.
	ScanWindow(ctx context.Context, w dates.Window, fn func(model.RawRecord) error) error
	CountWindow(ctx context.Context, w dates.Window) (int, error)
	// SaveRaw upserts records keyed by (identifier, detail URL). first_seen is
	// written on insert only.
	SaveRaw(ctx context.Context, recs []model.RawRecord) (int, error)
}

// CuratedStore holds one CuratedRecord per (identifier, detail URL).
type CuratedStore interface {
	GetCurated(ctx context.Context, identifier, detailURL string) (*model.CuratedRecord, error)
	// UpsertCurated fully replaces the stored record for the key.
	UpsertCurated(ctx context.Context, rec model.CuratedRecord) error
	ListCurated(ctx context.Context, f CuratedFilter) ([]model.CuratedRecord, error)
}

// RunLog tracks curation runs.
type RunLog interface {
	StartRun(ctx context.Context, w dates.Window) (*model.Run, error)
	CompleteRun(ctx context.Context, id string, summary model.RunSummary) error
	FailRun(ctx context.Context, id string, summary model.RunSummary, msg string) error
	ListRuns(ctx context.Context, f RunFilter) ([]model.Run, error)
}

// Store is the full persistence surface.
type Store interface {
	RawStore
	CuratedStore
	RunLog

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
