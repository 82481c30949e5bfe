package resilience

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("invalid input"), false},
		{"explicit", NewTransientError(errors.New("x"), "op"), true},
		{"wrapped explicit", eris.Wrap(NewTransientError(errors.New("x"), ""), "store: upsert"), true},
		{"conn reset", fmt.Errorf("write: %w", syscall.ECONNRESET), true},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, true},
		{"pg connection class", &pgconn.PgError{Code: "08006"}, true},
		{"pg unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"permanent beats pattern", NewPermanentError(errors.New("broken pipe")), false},
		{"permanent beats explicit", NewPermanentError(NewTransientError(errors.New("x"), "op")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestTransientError_Message(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	assert.Equal(t, "upsert: boom", NewTransientError(base, "upsert").Error())
	assert.Equal(t, "boom", NewTransientError(base, "").Error())
	assert.ErrorIs(t, NewTransientError(base, "x"), base)
}
