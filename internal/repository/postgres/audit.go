package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/bookline/bookline-backend/internal/repository"
)

// AuditStore persists the execution trail for generated SQL.
type AuditStore struct {
	db *sqlx.DB
}

// NewAuditStore creates a new PostgreSQL audit store
func NewAuditStore(db *sqlx.DB) repository.AuditStore {
	return &AuditStore{db: db}
}

// Record creates a new audit entry
func (s *AuditStore) Record(ctx context.Context, entry repository.AuditEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO query_audit (
			id, user_id, operation_kind, sql_text, param_count, ok, created_at
		) VALUES (
			:id, :user_id, :operation_kind, :sql_text, :param_count, :ok, :created_at
		)`

	_, err := s.db.NamedExecContext(ctx, query, entry)
	return err
}

// RecentByUser lists the latest audit entries for a user, newest first.
func (s *AuditStore) RecentByUser(ctx context.Context, userID string, limit int) ([]repository.AuditEntry, error) {
	var entries []repository.AuditEntry
	query := `
		SELECT id, user_id, operation_kind, sql_text, param_count, ok, created_at
		FROM query_audit
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	err := s.db.SelectContext(ctx, &entries, query, userID, limit)
	if err != nil {
		return nil, err
	}
	return entries, nil
}
