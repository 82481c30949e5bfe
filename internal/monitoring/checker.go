package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/decision-curator/internal/config"
)

// renotifyAfter is how long an unchanged alert stays quiet.
const renotifyAfter = 6 * time.Hour

// Checker evaluates run history on an interval and posts new alerts. An
// alert whose key was delivered within renotifyAfter is held back; a key
// that stops firing is forgotten so a recurrence pages again.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig

	delivered map[string]time.Time
	now       func() time.Time
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		delivered: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Run checks once, then on every interval. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	c.check(ctx, log)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

// check runs from a single goroutine; delivered needs no lock.
func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	if ctx.Err() != nil {
		return
	}
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("run metrics not collected", zap.Error(err))
		return
	}
	log.Debug("snapshot collected",
		zap.Int("runs", snap.RunsTotal),
		zap.Int("runs_failed", snap.RunsFailed),
		zap.Int("runs_stalled", snap.RunsStalled),
		zap.Float64("file_error_rate", snap.FileErrorRate),
	)

	fresh := c.pending(c.alerter.Evaluate(snap))
	if len(fresh) == 0 {
		return
	}

	sent := c.alerter.SendAlerts(ctx, fresh)
	if sent == len(fresh) {
		now := c.now()
		for _, a := range fresh {
			c.delivered[a.Key] = now
		}
	}
	log.Info("alert check complete",
		zap.Int("alerts_triggered", len(fresh)),
		zap.Int("alerts_sent", sent),
	)
}

// pending drops alerts delivered recently and forgets keys no longer firing.
func (c *Checker) pending(alerts []Alert) []Alert {
	firing := make(map[string]bool, len(alerts))
	var out []Alert
	now := c.now()
	for _, a := range alerts {
		firing[a.Key] = true
		if at, ok := c.delivered[a.Key]; ok && now.Sub(at) < renotifyAfter {
			continue
		}
		out = append(out, a)
	}
	for key := range c.delivered {
		if !firing[key] {
			delete(c.delivered, key)
		}
	}
	return out
}
