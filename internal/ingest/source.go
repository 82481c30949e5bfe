package ingest

import (
	"context"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/decision-curator/internal/resilience"
)

// SourceOptions configures how Open fetches remote crawl exports.
type SourceOptions struct {
	UserAgent string
	Timeout   time.Duration
	Retry     resilience.RetryConfig
}

// Open returns a reader for a crawl export: "-" or "" for stdin, an
// http(s) URL, or a local path. The caller closes it.
func Open(ctx context.Context, src string, opts SourceOptions) (io.ReadCloser, error) {
	switch {
	case src == "" || src == "-":
		return io.NopCloser(os.Stdin), nil
	case strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://"):
		return download(ctx, src, opts)
	default:
		f, err := os.Open(src)
		if err != nil {
			return nil, eris.Wrap(err, "ingest: open source")
		}
		return f, nil
	}
}

func download(ctx context.Context, rawURL string, opts SourceOptions) (io.ReadCloser, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "decision-curator/1.0"
	}
	client := &http.Client{Timeout: opts.Timeout}

	retry := opts.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("ingest", "download")
	}

	return resilience.DoVal(ctx, retry, func(ctx context.Context) (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, resilience.NewPermanentError(eris.Wrap(err, "ingest: create request"))
		}
		req.Header.Set("User-Agent", opts.UserAgent)

		resp, err := client.Do(req)
		if err != nil {
			return nil, resilience.NewTransientError(err, "ingest: download")
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return resp.Body, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			_ = resp.Body.Close()
			return nil, resilience.RetryAfter(eris.Errorf("http %d from %s", resp.StatusCode, rawURL),
				"ingest: download", retryAfter(resp.Header.Get("Retry-After")))
		default:
			_ = resp.Body.Close()
			return nil, eris.Errorf("ingest: unexpected status %d from %s", resp.StatusCode, rawURL)
		}
	})
}

// retryAfter parses a Retry-After header given in seconds. HTTP dates and
// junk yield zero, leaving the backoff policy in charge.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
