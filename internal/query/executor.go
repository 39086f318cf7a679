package query

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/bookline/bookline-backend/internal/repository"
	"github.com/bookline/bookline-backend/internal/sqlgen"
)

// ExecutionError marks relational-store failures: the statement is considered
// not applied and the caller keeps its pre-transition state.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Executor runs validated parameterized SQL and records every statement it
// touches in the audit trail.
type Executor struct {
	db    *sqlx.DB
	audit repository.AuditStore
	log   *logrus.Logger
}

// NewExecutor creates a new query executor
func NewExecutor(db *sqlx.DB, audit repository.AuditStore, log *logrus.Logger) *Executor {
	return &Executor{db: db, audit: audit, log: log}
}

// Run executes a validated query and returns its rows as generic maps.
// Mutations return their RETURNING rows, or none.
func (e *Executor) Run(ctx context.Context, userID string, q *sqlgen.Query) ([]map[string]any, error) {
	rows, err := e.db.QueryxContext(ctx, q.SQL, q.Params...)
	e.record(ctx, userID, q, err == nil)
	if err != nil {
		e.log.WithFields(logrus.Fields{
			"user_id": userID,
			"kind":    q.Kind,
			"error":   err,
		}).Error("statement execution failed")
		return nil, &ExecutionError{Err: err}
	}
	defer rows.Close()

	var results []map[string]any
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, &ExecutionError{Err: err}
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &ExecutionError{Err: err}
	}

	return results, nil
}

// record writes the audit entry. Audit failures are logged, not propagated:
// the trail must never take down the request itself.
func (e *Executor) record(ctx context.Context, userID string, q *sqlgen.Query, ok bool) {
	err := e.audit.Record(ctx, repository.AuditEntry{
		UserID:        userID,
		OperationKind: string(q.Kind),
		SQLText:       q.SQL,
		ParamCount:    len(q.Params),
		OK:            ok,
	})
	if err != nil {
		e.log.WithField("user_id", userID).WithError(err).Warn("failed to record query audit entry")
	}
}
