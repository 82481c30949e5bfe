// Package curate merges raw decision records into the curated store: it
// lays files out by partition, authority and identifier, cleans HTML, hashes
// what it persists and upserts one CuratedRecord per (identifier, detail URL).
package curate

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/decision-curator/internal/dates"
	"github.com/sells-group/decision-curator/internal/extract"
	"github.com/sells-group/decision-curator/internal/model"
	"github.com/sells-group/decision-curator/internal/resilience"
	"github.com/sells-group/decision-curator/internal/store"
)

// Options tune a Curator.
type Options struct {
	LandingDir       string
	CuratedDir       string
	Workers          int
	RateLimit        float64 // records per second; 0 disables pacing
	ExtractCacheSize int
	UpsertRetries    int
	MinTextRunes     int
	ProgressEvery    int
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Option configures a Curator.
type Option func(*Curator)

// WithObserver reports record and file events to o.
func WithObserver(o Observer) Option {
	return func(c *Curator) {
		if o != nil {
			c.obs = o
		}
	}
}

// WithRunLog records each Run in l.
func WithRunLog(l store.RunLog) Option {
	return func(c *Curator) { c.runs = l }
}

// WithPinger sets the connectivity check used after a failed upsert.
func WithPinger(p Pinger) Option {
	return func(c *Curator) { c.pinger = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Curator) { c.now = now }
}

// WithRetry overrides the upsert retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Curator) { c.retry = cfg }
}

// Curator runs curation passes. It is safe for concurrent use.
type Curator struct {
	raw     store.RawStore
	curated store.CuratedStore
	runs    store.RunLog
	pinger  Pinger

	opts      Options
	extractor *extract.Extractor
	cache     *extractCache
	locks     *keyedMutex
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
	obs       Observer
	now       func() time.Time
	log       *zap.Logger
}

// New builds a Curator reading from raw and writing to curated.
func New(raw store.RawStore, curated store.CuratedStore, opts Options, options ...Option) (*Curator, error) {
	if opts.LandingDir == "" || opts.CuratedDir == "" {
		return nil, eris.New("curate: landing and curated directories are required")
	}
	landing, err := filepath.Abs(opts.LandingDir)
	if err != nil {
		return nil, eris.Wrap(err, "curate: resolve landing dir")
	}
	curatedDir, err := filepath.Abs(opts.CuratedDir)
	if err != nil {
		return nil, eris.Wrap(err, "curate: resolve curated dir")
	}
	opts.LandingDir, opts.CuratedDir = landing, curatedDir
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	floor := opts.MinTextRunes
	if floor <= 0 {
		floor = extract.MinTextRunes
	}

	c := &Curator{
		raw:       raw,
		curated:   curated,
		opts:      opts,
		extractor: extract.NewWithFloor(floor),
		cache:     newExtractCache(opts.ExtractCacheSize),
		locks:     newKeyedMutex(),
		retry:     resilience.WithAttempts(opts.UpsertRetries),
		obs:       nopObserver{},
		now:       time.Now,
		log:       zap.L().With(zap.String("component", "curate")),
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	if p, ok := curated.(Pinger); ok {
		c.pinger = p
	}
	for _, o := range options {
		o(c)
	}
	c.retry.OnRetry = resilience.RetryLogger("curate", "upsert_curated")
	return c, nil
}

// Run curates every raw record in the window. Per-file and per-record
// failures are counted in the summary; only an unreachable store aborts the
// run, with an error matching store.ErrUnavailable.
func (c *Curator) Run(ctx context.Context, w dates.Window) (model.RunSummary, error) {
	log := c.log.With(zap.Stringer("window", w))

	var runID string
	if c.runs != nil {
		run, err := c.runs.StartRun(ctx, w)
		if err != nil {
			return model.RunSummary{}, c.storeFailure(ctx, eris.Wrap(err, "curate: start run"))
		}
		runID = run.ID
		log = log.With(zap.String("run_id", runID))
	}

	total, err := c.raw.CountWindow(ctx, w)
	if err != nil {
		err = c.storeFailure(ctx, eris.Wrap(err, "curate: count window"))
		c.finish(ctx, runID, model.RunSummary{}, err)
		return model.RunSummary{}, err
	}
	log.Info("curation started", zap.Int("records", total), zap.Int("workers", c.opts.Workers))

	var (
		mu      sync.Mutex
		summary model.RunSummary
	)
	record := func(ctx context.Context, rec model.RawRecord) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return eris.Wrap(err, "curate: rate limit")
			}
		}
		one, err := c.process(ctx, rec, w)
		mu.Lock()
		summary.Add(one)
		n := summary.RecordsProcessed
		mu.Unlock()
		if c.opts.ProgressEvery > 0 && n%c.opts.ProgressEvery == 0 {
			log.Info("curation progress", zap.Int("processed", n), zap.Int("records", total))
		}
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	scanErr := c.raw.ScanWindow(gctx, w, func(rec model.RawRecord) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		if c.opts.Workers == 1 {
			return record(gctx, rec)
		}
		g.Go(func() error { return record(gctx, rec) })
		return nil
	})
	runErr := g.Wait()
	if runErr == nil && scanErr != nil {
		runErr = scanErr
		if ctx.Err() == nil && !errors.Is(scanErr, store.ErrUnavailable) {
			runErr = c.storeFailure(ctx, eris.Wrap(scanErr, "curate: scan window"))
		}
	}
	if runErr == nil {
		runErr = ctx.Err()
	}

	c.finish(ctx, runID, summary, runErr)
	if runErr != nil {
		log.Error("curation aborted", zap.Error(runErr), zap.Any("summary", summary))
		return summary, runErr
	}
	log.Info("curation complete",
		zap.Int("processed", summary.RecordsProcessed),
		zap.Int("curated", summary.RecordsCurated),
		zap.Int("failed", summary.RecordsFailed),
		zap.Int("files_copied", summary.FilesCopied),
		zap.Int("files_transformed", summary.FilesTransformed),
		zap.Int("files_unchanged", summary.FilesUnchanged),
		zap.Int("files_missing", summary.FilesMissing),
		zap.Int("files_errored", summary.FilesErrored),
		zap.Int("extract_fallbacks", summary.ExtractFallbacks),
	)
	return summary, nil
}

// process curates one record and converts its outcome into summary counts.
// The returned error is non-nil only when the run must stop.
func (c *Curator) process(ctx context.Context, rec model.RawRecord, w dates.Window) (model.RunSummary, error) {
	start := time.Now()
	one := model.RunSummary{RecordsProcessed: 1}

	out, stats, err := c.curate(ctx, rec, w)
	one.Add(stats)
	if err == nil {
		one.RecordsCurated = 1
		c.obs.RecordDone(OutcomeCurated, time.Since(start))
		return one, nil
	}

	one.RecordsFailed = 1
	c.obs.RecordDone(OutcomeFailed, time.Since(start))
	if ctx.Err() != nil {
		return one, ctx.Err()
	}
	if fatal := c.storeFailure(ctx, err); errors.Is(fatal, store.ErrUnavailable) {
		return one, fatal
	}
	c.log.Warn("record failed",
		zap.String("identifier", out.Identifier),
		zap.String("detail_url", out.DetailURL),
		zap.Error(err),
	)
	return one, nil
}

// CurateRecord curates a single raw record and upserts its CuratedRecord.
// The window only feeds the partition fallback and may be zero.
func (c *Curator) CurateRecord(ctx context.Context, rec model.RawRecord, w dates.Window) (model.CuratedRecord, error) {
	out, _, err := c.curate(ctx, rec, w)
	return out, err
}

func (c *Curator) curate(ctx context.Context, rec model.RawRecord, w dates.Window) (model.CuratedRecord, model.RunSummary, error) {
	var stats model.RunSummary
	layout := LayoutFor(rec, w, c.now())
	out := model.CuratedRecord{
		Identifier:    layout.Identifier,
		DetailURL:     rec.DetailKey(),
		Authority:     rec.Authority,
		AuthorityID:   rec.AuthorityID,
		DecisionDate:  DecisionDate(rec),
		PartitionDate: layout.Partition,
		Files:         []model.CuratedFile{},
	}

	unlock := c.locks.Lock(layout.Dir())
	defer unlock()

	prev, err := c.curated.GetCurated(ctx, out.Identifier, out.DetailURL)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return out, stats, eris.Wrapf(err, "curate: load previous %s", out.Identifier)
	}

	fc := &fileCurator{
		Curator: c,
		layout:  layout,
		names:   newNamer(c.opts.CuratedDir, layout.Dir(), layout.Identifier, prev.OwnedPaths()),
		prev:    previousByPath(prev),
	}
	for _, ref := range rec.FileRefs() {
		f, unchanged := fc.curateFile(ref)
		out.Files = append(out.Files, f)
		countFile(&stats, f, unchanged)
		c.obs.FileDone(f.Status, unchanged)
	}
	stats.ExtractFallbacks = fc.fallbacks
	out.CuratedAt = c.now().UTC().Truncate(time.Second)

	if err := resilience.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.curated.UpsertCurated(ctx, out)
	}); err != nil {
		return out, stats, eris.Wrapf(err, "curate: upsert %s", out.Identifier)
	}

	for _, rel := range fc.names.stale() {
		if err := removeIfExists(fc.names.abs(rel)); err != nil {
			c.log.Warn("stale file not removed", zap.String("path", rel), zap.Error(err))
		}
	}
	return out, stats, nil
}

// storeFailure classifies err after a store call failed. When the store no
// longer answers a ping, the ping error is returned so it matches
// store.ErrUnavailable; otherwise err is returned as is.
func (c *Curator) storeFailure(ctx context.Context, err error) error {
	if errors.Is(err, store.ErrUnavailable) || c.pinger == nil {
		return err
	}
	if pingErr := c.pinger.Ping(ctx); pingErr != nil {
		if !errors.Is(pingErr, store.ErrUnavailable) {
			pingErr = store.Unavailable("store", pingErr)
		}
		return eris.Wrap(pingErr, err.Error())
	}
	return err
}

func (c *Curator) finish(ctx context.Context, runID string, summary model.RunSummary, runErr error) {
	if c.runs == nil || runID == "" {
		return
	}
	// The run may end because ctx was cancelled; still record the outcome.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	var err error
	if runErr != nil {
		err = c.runs.FailRun(fctx, runID, summary, runErr.Error())
	} else {
		err = c.runs.CompleteRun(fctx, runID, summary)
	}
	if err != nil {
		c.log.Warn("run log not updated", zap.String("run_id", runID), zap.Error(err))
	}
}

func countFile(s *model.RunSummary, f model.CuratedFile, unchanged bool) {
	switch f.Status {
	case model.FileStatusCopied:
		s.FilesCopied++
	case model.FileStatusTransformed:
		s.FilesTransformed++
	case model.FileStatusMissingSource:
		s.FilesMissing++
	case model.FileStatusError:
		s.FilesErrored++
	}
	if unchanged {
		s.FilesUnchanged++
	}
}

func previousByPath(prev *model.CuratedRecord) map[string]model.CuratedFile {
	out := make(map[string]model.CuratedFile)
	if prev == nil {
		return out
	}
	for _, f := range prev.Files {
		if f.Status.Stored() && f.Path != "" {
			out[f.Path] = f
		}
	}
	return out
}
