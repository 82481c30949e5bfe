package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/decision-curator/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertFileErrorRate  AlertType = "file_error_rate"
	AlertStalledRun     AlertType = "stalled_run"
)

// Sample floors below which a rate is noise.
const (
	minFinishedRuns = 5
	minFiles        = 20
)

// Alert is one breached threshold, as posted to the webhook.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`

	// Key identifies the condition across checks. Two alerts with the same
	// key describe the same ongoing problem.
	Key string `json:"key"`
}

// rule inspects a snapshot and reports an alert when its threshold is breached.
type rule func(snap *MetricsSnapshot, cfg config.MonitoringConfig) (Alert, bool)

var rules = []rule{runFailureRule, fileErrorRule, stalledRunRule}

// Alerter evaluates snapshots against the configured thresholds and posts
// alerts to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate returns the alerts the snapshot triggers, in rule order.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()
	for _, r := range rules {
		if alert, ok := r(snap, a.cfg); ok {
			alert.Timestamp = now
			alerts = append(alerts, alert)
		}
	}
	return alerts
}

func runFailureRule(snap *MetricsSnapshot, cfg config.MonitoringConfig) (Alert, bool) {
	finished := snap.RunsComplete + snap.RunsFailed
	if finished < minFinishedRuns || snap.RunFailRate <= cfg.FailureRateThreshold {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertRunFailureRate,
		Key:      string(AlertRunFailureRate),
		Severity: "high",
		Message: fmt.Sprintf("Curation run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
			snap.RunFailRate*100, cfg.FailureRateThreshold*100, snap.RunsFailed, finished, snap.LookbackHours),
		Details: map[string]any{
			"failure_rate": snap.RunFailRate,
			"threshold":    cfg.FailureRateThreshold,
			"failed":       snap.RunsFailed,
			"finished":     finished,
		},
	}, true
}

func fileErrorRule(snap *MetricsSnapshot, cfg config.MonitoringConfig) (Alert, bool) {
	if cfg.FileErrorThreshold <= 0 || snap.Files < minFiles || snap.FileErrorRate <= cfg.FileErrorThreshold {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertFileErrorRate,
		Key:      string(AlertFileErrorRate),
		Severity: "medium",
		Message: fmt.Sprintf("File error rate %.1f%% exceeds threshold %.1f%% (%d errored / %d files in last %dh)",
			snap.FileErrorRate*100, cfg.FileErrorThreshold*100, snap.FilesErrored, snap.Files, snap.LookbackHours),
		Details: map[string]any{
			"file_error_rate":   snap.FileErrorRate,
			"threshold":         cfg.FileErrorThreshold,
			"files_errored":     snap.FilesErrored,
			"files_missing":     snap.FilesMissing,
			"extract_fallbacks": snap.ExtractFallbacks,
			"files":             snap.Files,
		},
	}, true
}

// stalledRunRule keys on the stalled run ids, so a new stuck run re-alerts
// while the same set stays quiet.
func stalledRunRule(snap *MetricsSnapshot, cfg config.MonitoringConfig) (Alert, bool) {
	if snap.RunsStalled == 0 {
		return Alert{}, false
	}
	ids := slices.Clone(snap.StalledIDs)
	slices.Sort(ids)
	return Alert{
		Type:     AlertStalledRun,
		Key:      string(AlertStalledRun) + ":" + strings.Join(ids, ","),
		Severity: "high",
		Message:  fmt.Sprintf("%d curation run(s) still running after %dh", snap.RunsStalled, cfg.StalledRunHours),
		Details: map[string]any{
			"stalled_count": snap.RunsStalled,
			"run_ids":       ids,
		},
	}, true
}

// SendAlerts posts each alert to the webhook and returns how many were
// accepted. Without a webhook URL nothing is sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	log := zap.L().With(zap.String("component", "monitoring.alerter"))
	sent := 0
	for _, alert := range alerts {
		if err := a.post(ctx, alert); err != nil {
			log.Error("alert not delivered", zap.String("type", string(alert.Type)), zap.Error(err))
			continue
		}
		log.Info("alert sent", zap.String("type", string(alert.Type)), zap.String("severity", alert.Severity))
		sent++
	}
	return sent
}

func (a *Alerter) post(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
