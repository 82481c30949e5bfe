// Package ingest loads crawler output (JSON Lines) into the raw store,
// normalizing each record the way the crawler's item pipeline does.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/decision-curator/internal/dates"
	"github.com/sells-group/decision-curator/internal/ident"
	"github.com/sells-group/decision-curator/internal/model"
	"github.com/sells-group/decision-curator/internal/store"
)

// DefaultBatchSize is the number of records per SaveRaw call.
const DefaultBatchSize = 500

// maxLineBytes caps one JSON line. Crawler items with inline extras can be large.
const maxLineBytes = 16 << 20

// Stats counts what a Load did.
type Stats struct {
	Lines   int `json:"lines"`
	Loaded  int `json:"loaded"`
	Skipped int `json:"skipped"`
	Batches int `json:"batches"`
}

// Ingester writes normalized raw records to a RawStore.
type Ingester struct {
	raw       store.RawStore
	batchSize int
	partition string
	now       func() time.Time
	log       *zap.Logger
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithBatchSize sets the SaveRaw batch size. Non-positive values keep the default.
func WithBatchSize(n int) Option {
	return func(i *Ingester) {
		if n > 0 {
			i.batchSize = n
		}
	}
}

// WithPartition sets the partition used for records without a decision date.
func WithPartition(p string) Option {
	return func(i *Ingester) { i.partition = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Ingester) { i.now = now }
}

// New returns an Ingester writing to raw.
func New(raw store.RawStore, opts ...Option) (*Ingester, error) {
	i := &Ingester{
		raw:       raw,
		batchSize: DefaultBatchSize,
		now:       time.Now,
		log:       zap.L().With(zap.String("component", "ingest")),
	}
	for _, o := range opts {
		o(i)
	}
	if i.partition != "" && !dates.ValidPartition(i.partition) {
		return nil, eris.Errorf("ingest: invalid partition %q, want YYYY-MM", i.partition)
	}
	return i, nil
}

// Load reads one RawRecord per line from r and saves them in batches.
// Blank and malformed lines are skipped and counted; a store failure stops
// the load and is returned with the stats so far.
func (i *Ingester) Load(ctx context.Context, r io.Reader) (Stats, error) {
	var stats Stats
	batch := make([]model.RawRecord, 0, i.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := i.raw.SaveRaw(ctx, batch)
		if err != nil {
			return eris.Wrapf(err, "ingest: save batch %d", stats.Batches+1)
		}
		stats.Loaded += n
		stats.Batches++
		batch = batch[:0]
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		stats.Lines++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			stats.Skipped++
			continue
		}

		var rec model.RawRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			i.log.Debug("skipping malformed line", zap.Int("line", stats.Lines), zap.Error(err))
			stats.Skipped++
			continue
		}
		rec = i.Prepare(rec)
		if rec.DetailURL == "" && len(rec.FileRefs()) == 0 {
			i.log.Debug("skipping record without url or files", zap.Int("line", stats.Lines))
			stats.Skipped++
			continue
		}
		batch = append(batch, rec)

		if len(batch) >= i.batchSize {
			if err := ctx.Err(); err != nil {
				return stats, eris.Wrap(err, "ingest: cancelled")
			}
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, eris.Wrapf(err, "ingest: read line %d", stats.Lines+1)
	}
	if err := flush(); err != nil {
		return stats, err
	}

	i.log.Info("ingest complete",
		zap.Int("lines", stats.Lines),
		zap.Int("loaded", stats.Loaded),
		zap.Int("skipped", stats.Skipped),
		zap.Int("batches", stats.Batches),
	)
	return stats, nil
}

// Prepare normalizes one crawled record: decision date, partition, detail
// URL, identifier, content types and timestamps.
func (i *Ingester) Prepare(rec model.RawRecord) model.RawRecord {
	now := i.now().UTC()

	if dates.PartitionOf(rec.DecisionDate) == "" {
		rec.DecisionDate = ""
		if iso, _, ok := dates.Normalize(rec.DecisionDateRaw); ok {
			rec.DecisionDate = iso
		}
	}

	switch {
	case dates.PartitionOf(rec.DecisionDate) != "":
		rec.PartitionDate = dates.PartitionOf(rec.DecisionDate)
	case i.partition != "":
		rec.PartitionDate = i.partition
	case dates.ValidPartition(rec.PartitionDate):
	default:
		rec.PartitionDate = dates.ClockPartition(now)
	}

	rec.DetailURL = rec.DetailKey()
	rec.Identifier = ident.Normalize(rec.Identifier, rec.DetailURL, rec.Title)

	types := model.NewOrderedSet(rec.ContentTypes...)
	for _, f := range rec.FileRefs() {
		if ct := strings.TrimSpace(f.ContentType); ct != "" {
			types.Add(ct)
		}
	}
	rec.ContentTypes = types.Items()

	if rec.ScrapedAt.IsZero() {
		rec.ScrapedAt = now
	}
	rec.UpdatedAt = now
	return rec
}
