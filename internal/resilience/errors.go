package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.mongodb.org/mongo-driver/mongo"
)

// TransientError wraps an error that is safe to retry. After, when set, is
// the minimum wait the failing side asked for.
type TransientError struct {
	Err   error
	Op    string
	After time.Duration
}

func (e *TransientError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError marks err as retryable.
func NewTransientError(err error, op string) *TransientError {
	return &TransientError{Err: err, Op: op}
}

// RetryAfter marks err as retryable no sooner than d.
func RetryAfter(err error, op string, d time.Duration) *TransientError {
	return &TransientError{Err: err, Op: op, After: d}
}

// PermanentError wraps an error that must not be retried, whatever it wraps.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// NewPermanentError marks err as not retryable.
func NewPermanentError(err error) *PermanentError {
	return &PermanentError{Err: err}
}

// Postgres SQLSTATE codes worth retrying.
var transientPgCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"53300": true, // too_many_connections
	"57P01": true, // admin_shutdown
	"57P03": true, // cannot_connect_now
}

var transientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"i/o timeout",
	"database is locked",
	"sqlite_busy",
	"server closed idle connection",
	"connection pool exhausted",
}

// IsTransient reports whether err (or anything in its chain) is worth a
// retry: explicit TransientErrors, network timeouts and resets, retryable
// Postgres and Mongo conditions, and SQLite busy errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pe *PermanentError
	if errors.As(err, &pe) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientPgCodes[pgErr.Code] || strings.HasPrefix(pgErr.Code, "08")
	}
	if pgconn.SafeToRetry(err) {
		return true
	}

	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
