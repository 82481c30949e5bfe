package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"

	"github.com/sells-group/decision-curator/internal/model"
)

// Metrics holds the curator's prometheus collectors on a private registry.
// It satisfies curate.Observer.
type Metrics struct {
	reg *prometheus.Registry

	records        *prometheus.CounterVec
	files          *prometheus.CounterVec
	unchanged      prometheus.Counter
	extract        *prometheus.CounterVec
	cache          *prometheus.CounterVec
	recordDuration prometheus.Histogram

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewMetrics registers the curator metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		records: f.NewCounterVec(prometheus.CounterOpts{
			Name: "curator_records_total",
			Help: "Records curated, by result.",
		}, []string{"result"}),
		files: f.NewCounterVec(prometheus.CounterOpts{
			Name: "curator_files_total",
			Help: "Referenced files processed, by curated status.",
		}, []string{"status"}),
		unchanged: f.NewCounter(prometheus.CounterOpts{
			Name: "curator_files_unchanged_total",
			Help: "Files whose curated bytes were already up to date.",
		}),
		extract: f.NewCounterVec(prometheus.CounterOpts{
			Name: "curator_extract_total",
			Help: "HTML extractions, by outcome or fallback reason.",
		}, []string{"outcome"}),
		cache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "curator_cache_total",
			Help: "Extractor cache lookups, by result.",
		}, []string{"result"}),
		recordDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "curator_record_duration_seconds",
			Help:    "Time to curate one record.",
			Buckets: prometheus.DefBuckets,
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "curator_http_requests_total",
			Help: "HTTP API requests, by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "curator_http_request_duration_seconds",
			Help:    "HTTP API request duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) RecordDone(outcome string, elapsed time.Duration) {
	m.records.WithLabelValues(outcome).Inc()
	m.recordDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) FileDone(status model.FileStatus, unchanged bool) {
	m.files.WithLabelValues(string(status)).Inc()
	if unchanged {
		m.unchanged.Inc()
	}
}

func (m *Metrics) Extraction(outcome string) {
	m.extract.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cache.WithLabelValues(result).Inc()
}

// ObserveHTTP records one served request. route is the matched pattern,
// not the raw path.
func (m *Metrics) ObserveHTTP(method, route, status string, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// WriteTextfile writes the current metrics for the node_exporter textfile
// collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return eris.Wrapf(err, "monitoring: write textfile %s", path)
	}
	return nil
}
