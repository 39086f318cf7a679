package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bookline/bookline-backend/internal/repository"
	"github.com/bookline/bookline-backend/internal/session"
)

// SessionStore implements repository.SessionStore using PostgreSQL. The
// session's nested structures are kept as JSONB columns; updated_at is the
// compare-and-swap token for conditional updates.
type SessionStore struct {
	db *sqlx.DB
}

// NewSessionStore creates a new PostgreSQL session store
func NewSessionStore(db *sqlx.DB) repository.SessionStore {
	return &SessionStore{db: db}
}

type sessionRow struct {
	UserID               string       `db:"user_id"`
	AuthState            string       `db:"auth_state"`
	IsAuthenticated      bool         `db:"is_authenticated"`
	BookingState         string       `db:"booking_state"`
	AppointmentInfo      []byte       `db:"appointment_info"`
	ConversationContext  []byte       `db:"conversation_context"`
	CachedSlots          []byte       `db:"cached_slots"`
	CachedSlotsAt        sql.NullTime `db:"cached_slots_at"`
	CachedAppointments   []byte       `db:"cached_appointments"`
	CachedAppointmentsAt sql.NullTime `db:"cached_appointments_at"`
	UpdatedAt            time.Time    `db:"updated_at"`
}

func toRow(sess *session.Session) (*sessionRow, error) {
	info, err := json.Marshal(sess.Info)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal appointment_info: %w", err)
	}
	turns, err := json.Marshal(sess.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation_context: %w", err)
	}
	slots, err := json.Marshal(sess.CachedSlots)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cached_slots: %w", err)
	}
	appts, err := json.Marshal(sess.CachedAppointments)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cached_appointments: %w", err)
	}

	row := &sessionRow{
		UserID:             sess.UserID,
		AuthState:          sess.AuthState,
		IsAuthenticated:    sess.IsAuthenticated,
		BookingState:       string(sess.BookingState),
		AppointmentInfo:    info,
		ConversationContext: turns,
		CachedSlots:        slots,
		CachedAppointments: appts,
		UpdatedAt:          sess.UpdatedAt,
	}
	if sess.CachedSlotsAt != nil {
		row.CachedSlotsAt = sql.NullTime{Time: *sess.CachedSlotsAt, Valid: true}
	}
	if sess.CachedAppointmentsAt != nil {
		row.CachedAppointmentsAt = sql.NullTime{Time: *sess.CachedAppointmentsAt, Valid: true}
	}
	return row, nil
}

func fromRow(row *sessionRow) (*session.Session, error) {
	sess := &session.Session{
		UserID:          row.UserID,
		AuthState:       row.AuthState,
		IsAuthenticated: row.IsAuthenticated,
		BookingState:    session.BookingState(row.BookingState),
		UpdatedAt:       row.UpdatedAt,
	}
	// An unrecognized booking_state is loaded as-is; the state machine
	// resets it on the next turn instead of bricking the user's session.
	if len(row.AppointmentInfo) > 0 {
		if err := json.Unmarshal(row.AppointmentInfo, &sess.Info); err != nil {
			return nil, fmt.Errorf("failed to unmarshal appointment_info: %w", err)
		}
	}
	if len(row.ConversationContext) > 0 {
		if err := json.Unmarshal(row.ConversationContext, &sess.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conversation_context: %w", err)
		}
	}
	if len(row.CachedSlots) > 0 {
		if err := json.Unmarshal(row.CachedSlots, &sess.CachedSlots); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cached_slots: %w", err)
		}
	}
	if len(row.CachedAppointments) > 0 {
		if err := json.Unmarshal(row.CachedAppointments, &sess.CachedAppointments); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cached_appointments: %w", err)
		}
	}
	if row.CachedSlotsAt.Valid {
		t := row.CachedSlotsAt.Time
		sess.CachedSlotsAt = &t
	}
	if row.CachedAppointmentsAt.Valid {
		t := row.CachedAppointmentsAt.Time
		sess.CachedAppointmentsAt = &t
	}
	return sess, nil
}

// Get retrieves a session by user ID
func (s *SessionStore) Get(ctx context.Context, userID string) (*session.Session, error) {
	var row sessionRow
	query := `
		SELECT user_id, auth_state, is_authenticated, booking_state,
		       appointment_info, conversation_context,
		       cached_slots, cached_slots_at,
		       cached_appointments, cached_appointments_at,
		       updated_at
		FROM sessions
		WHERE user_id = $1
	`

	err := s.db.GetContext(ctx, &row, query, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return fromRow(&row)
}

// Put upserts the full session record unconditionally and refreshes the
// caller's concurrency token.
func (s *SessionStore) Put(ctx context.Context, sess *session.Session) error {
	now := time.Now().UTC()
	sess.UpdatedAt = now

	row, err := toRow(sess)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sessions (
			user_id, auth_state, is_authenticated, booking_state,
			appointment_info, conversation_context,
			cached_slots, cached_slots_at,
			cached_appointments, cached_appointments_at,
			updated_at
		) VALUES (
			:user_id, :auth_state, :is_authenticated, :booking_state,
			:appointment_info, :conversation_context,
			:cached_slots, :cached_slots_at,
			:cached_appointments, :cached_appointments_at,
			:updated_at
		)
		ON CONFLICT (user_id) DO UPDATE SET
			auth_state = EXCLUDED.auth_state,
			is_authenticated = EXCLUDED.is_authenticated,
			booking_state = EXCLUDED.booking_state,
			appointment_info = EXCLUDED.appointment_info,
			conversation_context = EXCLUDED.conversation_context,
			cached_slots = EXCLUDED.cached_slots,
			cached_slots_at = EXCLUDED.cached_slots_at,
			cached_appointments = EXCLUDED.cached_appointments,
			cached_appointments_at = EXCLUDED.cached_appointments_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.db.NamedExecContext(ctx, query, row)
	return err
}

// Update writes the full record conditionally: the row must still carry the
// updated_at the session was loaded with. A lost race surfaces as
// repository.ErrConflict so the caller can reload and retry.
func (s *SessionStore) Update(ctx context.Context, sess *session.Session) error {
	token := sess.UpdatedAt
	now := time.Now().UTC()
	sess.UpdatedAt = now

	row, err := toRow(sess)
	if err != nil {
		sess.UpdatedAt = token
		return err
	}

	query := `
		UPDATE sessions SET
			auth_state = $2,
			is_authenticated = $3,
			booking_state = $4,
			appointment_info = $5,
			conversation_context = $6,
			cached_slots = $7,
			cached_slots_at = $8,
			cached_appointments = $9,
			cached_appointments_at = $10,
			updated_at = $11
		WHERE user_id = $1 AND updated_at = $12
	`

	result, err := s.db.ExecContext(ctx, query,
		row.UserID, row.AuthState, row.IsAuthenticated, row.BookingState,
		row.AppointmentInfo, row.ConversationContext,
		row.CachedSlots, row.CachedSlotsAt,
		row.CachedAppointments, row.CachedAppointmentsAt,
		row.UpdatedAt, token,
	)
	if err != nil {
		sess.UpdatedAt = token
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		sess.UpdatedAt = token
		return err
	}
	if affected == 0 {
		sess.UpdatedAt = token
		return repository.ErrConflict
	}

	return nil
}

// Delete removes the session record
func (s *SessionStore) Delete(ctx context.Context, userID string) error {
	query := `DELETE FROM sessions WHERE user_id = $1`
	_, err := s.db.ExecContext(ctx, query, userID)
	return err
}
