package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/decision-curator/internal/dates"
	"github.com/sells-group/decision-curator/internal/db"
	"github.com/sells-group/decision-curator/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var rawUpsert = db.UpsertConfig{
	Table:          "curator.raw_records",
	Columns:        []string{"identifier", "detail_url", "decision_date", "partition_date", "doc", "first_seen", "updated_at"},
	ConflictKeys:   []string{"identifier", "detail_url"},
	InsertOnlyCols: []string{"first_seen"},
}

var curatedUpsert = db.UpsertConfig{
	Table:        "curator.curated_records",
	Columns:      []string{"identifier", "detail_url", "body", "partition_date", "doc", "curated_at"},
	ConflictKeys: []string{"identifier", "detail_url"},
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, Unavailable("postgres", eris.Wrap(err, "postgres: create pool"))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, Unavailable("postgres", eris.Wrap(err, "postgres: ping"))
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return MigratePostgres(ctx, s.pool)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return Unavailable("postgres", s.pool.Ping(ctx))
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- raw records ---

func postgresWindowClause(w dates.Window, next int) (string, []any) {
	if w.IsZero() {
		return "TRUE", nil
	}
	return fmt.Sprintf("((decision_date BETWEEN $%d AND $%d) OR (partition_date BETWEEN $%d AND $%d))",
			next, next+1, next+2, next+3),
		[]any{w.Start, w.End, w.StartPartition(), w.EndPartition()}
}

func (s *PostgresStore) ScanWindow(ctx context.Context, w dates.Window, fn func(model.RawRecord) error) error {
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

func (s *PostgresStore) rawPage(ctx context.Context, w dates.Window, cur rawCursor) ([]model.RawRecord, error) {
	args := []any{cur.partition, cur.decision, cur.identifier, cur.detailURL, scanPageSize}
	where, wargs := postgresWindowClause(w, len(args)+1)
	args = append(args, wargs...)

	rows, err := s.pool.Query(ctx, `SELECT doc, first_seen, updated_at FROM curator.raw_records
		WHERE (partition_date, decision_date, identifier, detail_url) > ($1, $2, $3, $4)
		AND `+where+`
		ORDER BY partition_date, decision_date, identifier, detail_url
		LIMIT $5`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan window")
	}
	defer rows.Close()

	var out []model.RawRecord
	for rows.Next() {
		var doc []byte
		var firstSeen, updatedAt time.Time
		if err := rows.Scan(&doc, &firstSeen, &updatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan raw")
		}
		var r model.RawRecord
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal raw")
		}
		r.FirstSeen = firstSeen.UTC()
		r.UpdatedAt = updatedAt.UTC()
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: scan window iterate")
}

func (s *PostgresStore) CountWindow(ctx context.Context, w dates.Window) (int, error) {
	where, args := postgresWindowClause(w, 1)
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM curator.raw_records WHERE `+where, args...).Scan(&n)
	return n, eris.Wrap(err, "postgres: count window")
}

// SaveRaw stages records through a temp table and COPY, then upserts them.
// first_seen is insert-only so re-ingesting keeps the original value.
func (s *PostgresStore) SaveRaw(ctx context.Context, recs []model.RawRecord) (int, error) {
	now := nowUTC()
	rows := make([][]any, 0, len(recs))
	for _, r := range recs {
		r.DetailURL = r.DetailKey()
		if r.FirstSeen.IsZero() {
			r.FirstSeen = now
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = now
		}
		doc, err := json.Marshal(r)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal raw %s", r.Identifier)
		}
		rows = append(rows, []any{r.Identifier, r.DetailURL, r.DecisionDate, r.PartitionDate, string(doc), r.FirstSeen, r.UpdatedAt})
	}

	n, err := db.BulkUpsert(ctx, s.pool, rawUpsert, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: save raw")
	}
	return int(n), nil
}

// --- curated records ---

func (s *PostgresStore) GetCurated(ctx context.Context, identifier, detailURL string) (*model.CuratedRecord, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM curator.curated_records WHERE identifier = $1 AND detail_url = $2`,
		identifier, detailURL,
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get curated %s", identifier)
	}
	var rec model.CuratedRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal curated")
	}
	return &rec, nil
}

func (s *PostgresStore) UpsertCurated(ctx context.Context, rec model.CuratedRecord) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrapf(err, "postgres: marshal curated %s", rec.Identifier)
	}
	query, err := db.UpsertSQL(curatedUpsert)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, query,
		rec.Identifier, rec.DetailURL, rec.Authority, rec.PartitionDate, string(doc), rec.CuratedAt,
	)
	return eris.Wrapf(err, "postgres: upsert curated %s", rec.Identifier)
}

func (s *PostgresStore) ListCurated(ctx context.Context, f CuratedFilter) ([]model.CuratedRecord, error) {
	query := `SELECT doc FROM curator.curated_records WHERE TRUE`
	var args []any
	if f.Identifier != "" {
		args = append(args, f.Identifier)
		query += fmt.Sprintf(` AND identifier = $%d`, len(args))
	}
	if f.Partition != "" {
		args = append(args, f.Partition)
		query += fmt.Sprintf(` AND partition_date = $%d`, len(args))
	}
	if f.Authority != "" {
		args = append(args, f.Authority)
		query += fmt.Sprintf(` AND body = $%d`, len(args))
	}
	args = append(args, listLimit(f.Limit), max(f.Offset, 0))
	query += fmt.Sprintf(` ORDER BY partition_date, identifier, detail_url LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list curated")
	}
	defer rows.Close()

	var out []model.CuratedRecord
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan curated")
		}
		var rec model.CuratedRecord
		if err := json.Unmarshal(doc, &rec); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal curated")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list curated iterate")
}

// --- run log ---

func (s *PostgresStore) StartRun(ctx context.Context, w dates.Window) (*model.Run, error) {
	run := model.Run{
		ID:          uuid.New().String(),
		WindowStart: w.Start,
		WindowEnd:   w.End,
		Status:      model.RunStatusRunning,
		StartedAt:   nowUTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO curator.curation_runs (id, window_start, window_end, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.WindowStart, run.WindowEnd, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: start run")
	}
	return &run, nil
}

func (s *PostgresStore) finishRun(ctx context.Context, id string, status model.RunStatus, summary model.RunSummary, msg string) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}
	var errMsg *string
	if msg != "" {
		errMsg = &msg
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE curator.curation_runs SET status = $1, summary = $2, error = $3, completed_at = now() WHERE id = $4`,
		string(status), string(summaryJSON), errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", id)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, id string, summary model.RunSummary) error {
	return s.finishRun(ctx, id, model.RunStatusComplete, summary, "")
}

func (s *PostgresStore) FailRun(ctx context.Context, id string, summary model.RunSummary, msg string) error {
	return s.finishRun(ctx, id, model.RunStatusFailed, summary, msg)
}

func (s *PostgresStore) ListRuns(ctx context.Context, f RunFilter) ([]model.Run, error) {
	query := `SELECT id, window_start, window_end, status, summary, error, started_at, completed_at
		FROM curator.curation_runs WHERE TRUE`
	var args []any
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if !f.StartedAfter.IsZero() {
		args = append(args, f.StartedAfter.UTC())
		query += fmt.Sprintf(` AND started_at >= $%d`, len(args))
	}
	args = append(args, listLimit(f.Limit))
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var summaryJSON []byte
		var errMsg *string
		if err := rows.Scan(&r.ID, &r.WindowStart, &r.WindowEnd, &r.Status, &summaryJSON, &errMsg, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if errMsg != nil {
			r.Error = *errMsg
		}
		if summaryJSON != nil {
			r.Summary = &model.RunSummary{}
			if err := json.Unmarshal(summaryJSON, r.Summary); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal summary")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}
