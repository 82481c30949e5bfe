package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/sells-group/decision-curator/internal/dates"
	"github.com/sells-group/decision-curator/internal/model"
)

// MongoConfig names the database and collections of a Mongo deployment.
type MongoConfig struct {
	URI               string
	Database          string
	RawCollection     string
	CuratedCollection string
	RunsCollection    string
	ConnectTimeout    time.Duration
}

// MongoStore implements Store on the crawler's MongoDB collections.
type MongoStore struct {
	client  *mongo.Client
	raw     *mongo.Collection
	curated *mongo.Collection
	runs    *mongo.Collection
}

// NewMongo connects and pings the primary.
func NewMongo(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	opts := options.Client().ApplyURI(cfg.URI).SetServerSelectionTimeout(timeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, Unavailable("mongo", eris.Wrap(err, "mongo: connect"))
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, Unavailable("mongo", eris.Wrap(err, "mongo: ping"))
	}

	database := client.Database(cfg.Database)
	runs := cfg.RunsCollection
	if runs == "" {
		runs = "curation_runs"
	}
	return &MongoStore{
		client:  client,
		raw:     database.Collection(cfg.RawCollection),
		curated: database.Collection(cfg.CuratedCollection),
		runs:    database.Collection(runs),
	}, nil
}

var recordKeyIndex = bson.D{{Key: "identifier", Value: 1}, {Key: "detail_url", Value: 1}}

// Migrate creates the indexes the curator relies on.
func (s *MongoStore) Migrate(ctx context.Context) error {
	if _, err := s.raw.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: recordKeyIndex, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "decision_date", Value: 1}}},
		{Keys: bson.D{{Key: "partition_date", Value: 1}}},
	}); err != nil {
		return eris.Wrap(err, "mongo: raw indexes")
	}
	if _, err := s.curated.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: recordKeyIndex, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "new_files.path", Value: 1}}},
		{Keys: bson.D{{Key: "partition_date", Value: 1}}},
	}); err != nil {
		return eris.Wrap(err, "mongo: curated indexes")
	}
	if _, err := s.runs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "started_at", Value: -1}},
	}); err != nil {
		return eris.Wrap(err, "mongo: run indexes")
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return Unavailable("mongo", s.client.Ping(ctx, readpref.Primary()))
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return eris.Wrap(s.client.Disconnect(ctx), "mongo: disconnect")
}

// --- raw records ---

// windowFilter matches the decision date range or the partition month range.
func windowFilter(w dates.Window) bson.M {
	if w.IsZero() {
		return bson.M{}
	}
	return bson.M{"$or": bson.A{
		bson.M{"decision_date": bson.M{"$gte": w.Start, "$lte": w.End}},
		bson.M{"partition_date": bson.M{"$gte": w.StartPartition(), "$lte": w.EndPartition()}},
	}}
}

var scanSort = bson.D{
	{Key: "partition_date", Value: 1},
	{Key: "decision_date", Value: 1},
	{Key: "identifier", Value: 1},
	{Key: "detail_url", Value: 1},
}

func (s *MongoStore) ScanWindow(ctx context.Context, w dates.Window, fn func(model.RawRecord) error) error {
	cur, err := s.raw.Find(ctx, windowFilter(w),
		options.Find().SetSort(scanSort).SetNoCursorTimeout(true).SetBatchSize(scanPageSize))
	if err != nil {
		return eris.Wrap(err, "mongo: scan window")
	}
	defer cur.Close(ctx) //nolint:errcheck

	for cur.Next(ctx) {
		var r model.RawRecord
		if err := cur.Decode(&r); err != nil {
			return eris.Wrap(err, "mongo: decode raw")
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return eris.Wrap(cur.Err(), "mongo: scan window iterate")
}

func (s *MongoStore) CountWindow(ctx context.Context, w dates.Window) (int, error) {
	n, err := s.raw.CountDocuments(ctx, windowFilter(w))
	return int(n), eris.Wrap(err, "mongo: count window")
}

// SaveRaw upserts with $set and writes first_seen through $setOnInsert.
func (s *MongoStore) SaveRaw(ctx context.Context, recs []model.RawRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	now := nowUTC()
	models := make([]mongo.WriteModel, 0, len(recs))
	for _, r := range recs {
		r.DetailURL = r.DetailKey()
		firstSeen := r.FirstSeen
		if firstSeen.IsZero() {
			firstSeen = now
		}
		r.FirstSeen = time.Time{}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = now
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"identifier": r.Identifier, "detail_url": r.DetailURL}).
			SetUpdate(bson.M{"$set": r, "$setOnInsert": bson.M{"first_seen": firstSeen}}).
			SetUpsert(true))
	}

	res, err := s.raw.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, eris.Wrap(err, "mongo: save raw")
	}
	return int(res.MatchedCount + res.UpsertedCount), nil
}

// --- curated records ---

func (s *MongoStore) GetCurated(ctx context.Context, identifier, detailURL string) (*model.CuratedRecord, error) {
	var rec model.CuratedRecord
	err := s.curated.FindOne(ctx, bson.M{"identifier": identifier, "detail_url": detailURL}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "mongo: get curated %s", identifier)
	}
	return &rec, nil
}

// UpsertCurated replaces the whole document so stale fields never survive.
func (s *MongoStore) UpsertCurated(ctx context.Context, rec model.CuratedRecord) error {
	_, err := s.curated.ReplaceOne(ctx,
		bson.M{"identifier": rec.Identifier, "detail_url": rec.DetailURL},
		rec,
		options.Replace().SetUpsert(true),
	)
	return eris.Wrapf(err, "mongo: upsert curated %s", rec.Identifier)
}

func (s *MongoStore) ListCurated(ctx context.Context, f CuratedFilter) ([]model.CuratedRecord, error) {
	filter := bson.M{}
	if f.Identifier != "" {
		filter["identifier"] = f.Identifier
	}
	if f.Partition != "" {
		filter["partition_date"] = f.Partition
	}
	if f.Authority != "" {
		filter["body"] = f.Authority
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "partition_date", Value: 1}, {Key: "identifier", Value: 1}, {Key: "detail_url", Value: 1}}).
		SetLimit(int64(listLimit(f.Limit))).
		SetSkip(int64(max(f.Offset, 0)))

	cur, err := s.curated.Find(ctx, filter, opts)
	if err != nil {
		return nil, eris.Wrap(err, "mongo: list curated")
	}
	var out []model.CuratedRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, eris.Wrap(err, "mongo: decode curated")
	}
	return out, nil
}

// --- run log ---

func (s *MongoStore) StartRun(ctx context.Context, w dates.Window) (*model.Run, error) {
	run := model.Run{
		ID:          uuid.New().String(),
		WindowStart: w.Start,
		WindowEnd:   w.End,
		Status:      model.RunStatusRunning,
		StartedAt:   nowUTC(),
	}
	if _, err := s.runs.InsertOne(ctx, run); err != nil {
		return nil, eris.Wrap(err, "mongo: start run")
	}
	return &run, nil
}

func (s *MongoStore) finishRun(ctx context.Context, id string, status model.RunStatus, summary model.RunSummary, msg string) error {
	set := bson.M{"status": status, "summary": summary, "completed_at": nowUTC()}
	if msg != "" {
		set["error"] = msg
	}
	res, err := s.runs.UpdateByID(ctx, id, bson.M{"$set": set})
	if err != nil {
		return eris.Wrapf(err, "mongo: finish run %s", id)
	}
	if res.MatchedCount == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", id)
	}
	return nil
}

func (s *MongoStore) CompleteRun(ctx context.Context, id string, summary model.RunSummary) error {
	return s.finishRun(ctx, id, model.RunStatusComplete, summary, "")
}

func (s *MongoStore) FailRun(ctx context.Context, id string, summary model.RunSummary, msg string) error {
	return s.finishRun(ctx, id, model.RunStatusFailed, summary, msg)
}

func (s *MongoStore) ListRuns(ctx context.Context, f RunFilter) ([]model.Run, error) {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if !f.StartedAfter.IsZero() {
		filter["started_at"] = bson.M{"$gte": f.StartedAfter.UTC()}
	}
	cur, err := s.runs.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}}).SetLimit(int64(listLimit(f.Limit))))
	if err != nil {
		return nil, eris.Wrap(err, "mongo: list runs")
	}
	var runs []model.Run
	if err := cur.All(ctx, &runs); err != nil {
		return nil, eris.Wrap(err, "mongo: decode runs")
	}
	return runs, nil
}
