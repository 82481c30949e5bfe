package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/decision-curator/internal/dates"
	"github.com/sells-group/decision-curator/internal/model"
)

// scanPageSize bounds how many raw rows one keyset page reads.
const scanPageSize = 500

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, Unavailable("sqlite", eris.Wrapf(err, "sqlite: exec %s", pragma))
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS raw_records (
	identifier     TEXT NOT NULL,
	detail_url     TEXT NOT NULL,
	decision_date  TEXT NOT NULL DEFAULT '',
	partition_date TEXT NOT NULL DEFAULT '',
	doc            TEXT NOT NULL,
	first_seen     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL,
	PRIMARY KEY (identifier, detail_url)
);

CREATE TABLE IF NOT EXISTS curated_records (
	identifier     TEXT NOT NULL,
	detail_url     TEXT NOT NULL,
	body           TEXT NOT NULL DEFAULT '',
	partition_date TEXT NOT NULL,
	doc            TEXT NOT NULL,
	curated_at     DATETIME NOT NULL,
	PRIMARY KEY (identifier, detail_url)
);

CREATE TABLE IF NOT EXISTS curation_runs (
	id           TEXT PRIMARY KEY,
	window_start TEXT NOT NULL DEFAULT '',
	window_end   TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'running',
	summary      TEXT,
	error        TEXT,
	started_at   DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_raw_scan ON raw_records(partition_date, decision_date, identifier, detail_url);
CREATE INDEX IF NOT EXISTS idx_raw_decision_date ON raw_records(decision_date);
CREATE INDEX IF NOT EXISTS idx_curated_partition ON curated_records(partition_date);
CREATE INDEX IF NOT EXISTS idx_curated_body ON curated_records(body);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON curation_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return Unavailable("sqlite", s.db.PingContext(ctx))
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- raw records ---

type rawCursor struct {
	partition, decision, identifier, detailURL string
}

func (s *SQLiteStore) ScanWindow(ctx context.Context, w dates.Window, fn func(model.RawRecord) error) error {
	var cur rawCursor
	for {
		page, err := s.rawPage(ctx, w, cur)
		if err != nil {
			return err
		}
		for _, r := range page {
			if err := fn(r); err != nil {
				return err
			}
		}
		if len(page) < scanPageSize {
			return nil
		}
		last := page[len(page)-1]
		cur = rawCursor{last.PartitionDate, last.DecisionDate, last.Identifier, last.DetailURL}
	}
}

func (s *SQLiteStore) rawPage(ctx context.Context, w dates.Window, cur rawCursor) ([]model.RawRecord, error) {
	where, args := sqliteWindowClause(w)
	query := `SELECT doc, first_seen, updated_at FROM raw_records
		WHERE ` + where + `
		AND (partition_date, decision_date, identifier, detail_url) > (?, ?, ?, ?)
		ORDER BY partition_date, decision_date, identifier, detail_url
		LIMIT ?`
	args = append(args, cur.partition, cur.decision, cur.identifier, cur.detailURL, scanPageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan window")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.RawRecord
	for rows.Next() {
		r, err := scanRawRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: scan window iterate")
}

func sqliteWindowClause(w dates.Window) (string, []any) {
	if w.IsZero() {
		return "1=1", nil
	}
	return "((decision_date BETWEEN ? AND ?) OR (partition_date BETWEEN ? AND ?))",
		[]any{w.Start, w.End, w.StartPartition(), w.EndPartition()}
}

func (s *SQLiteStore) CountWindow(ctx context.Context, w dates.Window) (int, error) {
	where, args := sqliteWindowClause(w)
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM raw_records WHERE `+where, args...).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count window")
}

func (s *SQLiteStore) SaveRaw(ctx context.Context, recs []model.RawRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save raw")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO raw_records (identifier, detail_url, decision_date, partition_date, doc, first_seen, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (identifier, detail_url) DO UPDATE SET
			decision_date = excluded.decision_date,
			partition_date = excluded.partition_date,
			doc = excluded.doc,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare save raw")
	}
	defer stmt.Close() //nolint:errcheck

	now := nowUTC()
	for _, r := range recs {
		r.DetailURL = r.DetailKey()
		firstSeen := r.FirstSeen
		if firstSeen.IsZero() {
			firstSeen = now
		}
		updatedAt := r.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = now
		}
		doc, err := json.Marshal(r)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal raw %s", r.Identifier)
		}
		if _, err := stmt.ExecContext(ctx, r.Identifier, r.DetailURL, r.DecisionDate, r.PartitionDate,
			string(doc), firstSeen, updatedAt); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert raw %s", r.Identifier)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit save raw")
	}
	return len(recs), nil
}

// --- curated records ---

func (s *SQLiteStore) GetCurated(ctx context.Context, identifier, detailURL string) (*model.CuratedRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT doc FROM curated_records WHERE identifier = ? AND detail_url = ?`,
		identifier, detailURL,
	)
	return scanCuratedDoc(row)
}

func (s *SQLiteStore) UpsertCurated(ctx context.Context, rec model.CuratedRecord) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrapf(err, "sqlite: marshal curated %s", rec.Identifier)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO curated_records (identifier, detail_url, body, partition_date, doc, curated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (identifier, detail_url) DO UPDATE SET
			body = excluded.body,
			partition_date = excluded.partition_date,
			doc = excluded.doc,
			curated_at = excluded.curated_at`,
		rec.Identifier, rec.DetailURL, rec.Authority, rec.PartitionDate, string(doc), rec.CuratedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert curated %s", rec.Identifier)
}

func (s *SQLiteStore) ListCurated(ctx context.Context, f CuratedFilter) ([]model.CuratedRecord, error) {
	query := `SELECT doc FROM curated_records WHERE 1=1`
	var args []any
	if f.Identifier != "" {
		query += ` AND identifier = ?`
		args = append(args, f.Identifier)
	}
	if f.Partition != "" {
		query += ` AND partition_date = ?`
		args = append(args, f.Partition)
	}
	if f.Authority != "" {
		query += ` AND body = ?`
		args = append(args, f.Authority)
	}
	query += ` ORDER BY partition_date, identifier, detail_url LIMIT ? OFFSET ?`
	args = append(args, listLimit(f.Limit), max(f.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list curated")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CuratedRecord
	for rows.Next() {
		rec, err := scanCuratedDoc(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list curated iterate")
}

// --- run log ---

func (s *SQLiteStore) StartRun(ctx context.Context, w dates.Window) (*model.Run, error) {
	run := model.Run{
		ID:          uuid.New().String(),
		WindowStart: w.Start,
		WindowEnd:   w.End,
		Status:      model.RunStatusRunning,
		StartedAt:   nowUTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO curation_runs (id, window_start, window_end, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.WindowStart, run.WindowEnd, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: start run")
	}
	return &run, nil
}

func (s *SQLiteStore) finishRun(ctx context.Context, id string, status model.RunStatus, summary model.RunSummary, msg string) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE curation_runs SET status = ?, summary = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(status), string(summaryJSON), nullString(msg), nowUTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", id)
	}
	return checkRowsAffected(res, "run", id)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, summary model.RunSummary) error {
	return s.finishRun(ctx, id, model.RunStatusComplete, summary, "")
}

func (s *SQLiteStore) FailRun(ctx context.Context, id string, summary model.RunSummary, msg string) error {
	return s.finishRun(ctx, id, model.RunStatusFailed, summary, msg)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, f RunFilter) ([]model.Run, error) {
	query := `SELECT id, window_start, window_end, status, summary, error, started_at, completed_at
		FROM curation_runs WHERE 1=1`
	var args []any
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if !f.StartedAfter.IsZero() {
		query += ` AND started_at >= ?`
		args = append(args, f.StartedAfter.UTC())
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT ?`
	args = append(args, listLimit(f.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

func listLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRawRow(row scannable) (*model.RawRecord, error) {
	var doc string
	var firstSeen, updatedAt time.Time
	if err := row.Scan(&doc, &firstSeen, &updatedAt); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan raw")
	}
	var r model.RawRecord
	if err := json.Unmarshal([]byte(doc), &r); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal raw")
	}
	r.FirstSeen = firstSeen.UTC()
	r.UpdatedAt = updatedAt.UTC()
	return &r, nil
}

func scanCuratedDoc(row scannable) (*model.CuratedRecord, error) {
	var doc string
	err := row.Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan curated")
	}
	var rec model.CuratedRecord
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal curated")
	}
	return &rec, nil
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var summaryJSON, errMsg sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&r.ID, &r.WindowStart, &r.WindowEnd, &r.Status, &summaryJSON, &errMsg, &r.StartedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	r.StartedAt = r.StartedAt.UTC()
	r.Error = errMsg.String
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		r.CompletedAt = &t
	}
	if summaryJSON.Valid {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), r.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	return &r, nil
}
