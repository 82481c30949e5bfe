package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig is an exponential backoff policy with jitter.
type RetryConfig struct {
	MaxAttempts    int           // total attempts, first included; default 3
	InitialBackoff time.Duration // default 200ms
	MaxBackoff     time.Duration // caps computed delays and server hints; default 5s
	Multiplier     float64       // default 2
	JitterFraction float64       // ±share of each delay; default 0.25

	// ShouldRetry replaces IsTransient when set.
	ShouldRetry func(err error) bool

	// OnRetry runs before each sleep.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig is the policy for store writes.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

// WithAttempts is DefaultRetryConfig with n attempts. n <= 0 keeps the
// default.
func WithAttempts(n int) RetryConfig {
	cfg := DefaultRetryConfig()
	if n > 0 {
		cfg.MaxAttempts = n
	}
	return cfg
}

// Do runs fn until it succeeds, returns an error ShouldRetry rejects, or
// attempts run out. The last error is returned unchanged.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions that return a value.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var zero T
	for attempt := 1; ; attempt++ {
		val, err := fn(ctx)
		switch {
		case err == nil:
			return val, nil
		case attempt >= cfg.MaxAttempts, ctx.Err() != nil, !shouldRetry(err):
			return zero, err
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}
		if !sleep(ctx, cfg.delay(attempt-1, err)) {
			return zero, err
		}
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	return cfg
}

// delay is the wait before retry number attempt+1. A TransientError hint
// (for example an HTTP Retry-After) raises it, up to MaxBackoff.
func (cfg RetryConfig) delay(attempt int, err error) time.Duration {
	d := computeBackoff(attempt, cfg)
	var te *TransientError
	if errors.As(err, &te) && te.After > d {
		d = min(te.After, cfg.MaxBackoff)
	}
	return d
}

func computeBackoff(attempt int, cfg RetryConfig) time.Duration {
	d := min(float64(cfg.InitialBackoff)*math.Pow(cfg.Multiplier, float64(attempt)), float64(cfg.MaxBackoff))
	if cfg.JitterFraction > 0 {
		d += (rand.Float64()*2 - 1) * d * cfg.JitterFraction
	}
	return time.Duration(max(d, 0))
}

// RetryLogger returns an OnRetry hook that logs at warn level.
func RetryLogger(component, operation string) func(int, error) {
	log := zap.L().With(zap.String("component", component), zap.String("operation", operation))
	return func(attempt int, err error) {
		log.Warn("retrying", zap.Int("attempt", attempt), zap.Error(err))
	}
}
