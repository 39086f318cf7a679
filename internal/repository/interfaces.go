package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bookline/bookline-backend/internal/session"
)

// ErrConflict is returned by SessionStore.Update when the record changed
// underneath the caller (the optimistic-concurrency token no longer matches).
var ErrConflict = errors.New("session was modified concurrently")

// SessionStore defines durable per-user session access. Get returns
// (nil, nil) when no record exists.
type SessionStore interface {
	Get(ctx context.Context, userID string) (*session.Session, error)
	Put(ctx context.Context, sess *session.Session) error
	Update(ctx context.Context, sess *session.Session) error
	Delete(ctx context.Context, userID string) error
}

// AuditEntry records one statement handed to the query executor.
type AuditEntry struct {
	ID            uuid.UUID `db:"id"`
	UserID        string    `db:"user_id"`
	OperationKind string    `db:"operation_kind"`
	SQLText       string    `db:"sql_text"`
	ParamCount    int       `db:"param_count"`
	OK            bool      `db:"ok"`
	CreatedAt     time.Time `db:"created_at"`
}

// AuditStore defines the execution trail for generated SQL.
type AuditStore interface {
	Record(ctx context.Context, entry AuditEntry) error
}
