package monitoring

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/decision-curator/internal/model"
)

func TestMetrics_Observer(t *testing.T) {
	m := NewMetrics()

	m.RecordDone("curated", 20*time.Millisecond)
	m.RecordDone("curated", 30*time.Millisecond)
	m.RecordDone("failed", time.Millisecond)
	m.FileDone(model.FileStatusTransformed, false)
	m.FileDone(model.FileStatusCopied, true)
	m.FileDone(model.FileStatusCopied, false)
	m.Extraction("extracted")
	m.Extraction("below_floor")
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)

	assert.InDelta(t, 2, testutil.ToFloat64(m.records.WithLabelValues("curated")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.records.WithLabelValues("failed")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.files.WithLabelValues("copied")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.unchanged), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.extract.WithLabelValues("below_floor")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.cache.WithLabelValues("miss")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.recordDuration))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.RecordDone("curated", time.Millisecond)
	m.ObserveHTTP(http.MethodGet, "/v1/records", "200", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `curator_records_total{result="curated"} 1`)
	assert.Contains(t, body, `curator_http_requests_total{method="GET",route="/v1/records",status="200"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.FileDone(model.FileStatusMissingSource, false)

	path := filepath.Join(t.TempDir(), "curator.prom")
	require.NoError(t, m.WriteTextfile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(b), `curator_files_total{status="missing_source"} 1`))
}

func TestMetrics_WriteTextfile_BadDir(t *testing.T) {
	m := NewMetrics()
	err := m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "curator.prom"))
	assert.Error(t, err)
}
