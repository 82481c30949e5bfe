package ingest

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/decision-curator/internal/resilience"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func TestOpen_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"url":"x"}`+"\n"), 0o644))

	rc, err := Open(context.Background(), path, SourceOptions{})
	require.NoError(t, err)
	defer rc.Close() //nolint:errcheck

	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, `{"url":"x"}`+"\n", string(b))
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "nope.jsonl"), SourceOptions{})
	assert.Error(t, err)
}

func TestOpen_HTTPRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "decision-curator/1.0", r.Header.Get("User-Agent"))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("line\n"))
	}))
	defer srv.Close()

	rc, err := Open(context.Background(), srv.URL+"/export.jsonl", SourceOptions{Retry: fastRetry()})
	require.NoError(t, err)
	defer rc.Close() //nolint:errcheck

	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(b))
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpen_HTTPNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := Open(context.Background(), srv.URL, SourceOptions{Retry: fastRetry()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, retryAfter("3"))
	assert.Equal(t, time.Duration(0), retryAfter(""))
	assert.Equal(t, time.Duration(0), retryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
	assert.Equal(t, time.Duration(0), retryAfter("-1"))
}
