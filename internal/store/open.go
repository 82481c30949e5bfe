package store

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/decision-curator/internal/config"
)

// Open connects to the backend named by cfg.Driver. Connection failures are
// reported as ErrUnavailable.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	timeout := time.Duration(cfg.ConnectTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 6 * time.Second
	}

	switch cfg.Driver {
	case "memory":
		return NewMemory(), nil
	case "sqlite", "":
		if dir := filepath.Dir(cfg.DatabaseURL); dir != "." && cfg.DatabaseURL != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, Unavailable("sqlite", eris.Wrapf(err, "sqlite: create %s", dir))
			}
		}
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		connCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return NewPostgres(connCtx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	case "mongo":
		connCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return NewMongo(connCtx, MongoConfig{
			URI:               cfg.DatabaseURL,
			Database:          cfg.Database,
			RawCollection:     cfg.RawCollection,
			CuratedCollection: cfg.CuratedCollection,
			RunsCollection:    cfg.RunsCollection,
			ConnectTimeout:    timeout,
		})
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
