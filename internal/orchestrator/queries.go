package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/bookline/bookline-backend/internal/session"
	"github.com/bookline/bookline-backend/internal/sqlgen"
)

// Fixed listing statements. These ship with the orchestrator rather than
// going through the compiler: their shape never varies and they back the
// index-selection caches.
const openSlotsSQL = `
	SELECT s.id AS slot_id, s.consultant_id, c.name AS consultant_name,
	       s.slot_date, s.start_time, s.end_time
	FROM available_slots s
	JOIN consultants c ON c.id = s.consultant_id
	WHERE NOT s.is_booked AND s.slot_date >= CURRENT_DATE
	ORDER BY s.slot_date, s.start_time
	LIMIT 10`

const userAppointmentsSQL = `
	SELECT a.id AS appointment_id, a.customer_id, c.name AS consultant_name,
	       a.appointment_date, a.appointment_time, a.status
	FROM appointments a
	JOIN customers cu ON cu.id = a.customer_id
	JOIN consultants c ON c.id = a.consultant_id
	WHERE cu.user_id = $1 AND a.status <> 'cancelled'
	ORDER BY a.appointment_date, a.appointment_time
	LIMIT 10`

// refreshSlots re-runs the open-slot listing and overwrites the session's
// slot cache wholesale.
func (o *Orchestrator) refreshSlots(ctx context.Context, sess *session.Session) ([]session.CachedSlot, error) {
	rows, err := o.executor.Run(ctx, sess.UserID, &sqlgen.Query{
		SQL:    openSlotsSQL,
		Params: []any{},
		Kind:   sqlgen.KindSelect,
	})
	if err != nil {
		return nil, err
	}

	slots := make([]session.CachedSlot, 0, len(rows))
	for _, row := range rows {
		slots = append(slots, session.CachedSlot{
			SlotID:         asInt(row["slot_id"]),
			ConsultantID:   asInt(row["consultant_id"]),
			ConsultantName: asString(row["consultant_name"]),
			Date:           asDate(row["slot_date"]),
			StartTime:      asClock(row["start_time"]),
			EndTime:        asClock(row["end_time"]),
		})
	}

	sess.SetCachedSlots(slots, o.now())
	return slots, nil
}

// refreshAppointments re-runs the user's booking listing and overwrites the
// session's appointment cache wholesale.
func (o *Orchestrator) refreshAppointments(ctx context.Context, sess *session.Session) ([]session.CachedAppointment, error) {
	rows, err := o.executor.Run(ctx, sess.UserID, &sqlgen.Query{
		SQL:    userAppointmentsSQL,
		Params: []any{sess.UserID},
		Kind:   sqlgen.KindSelect,
	})
	if err != nil {
		return nil, err
	}

	appts := make([]session.CachedAppointment, 0, len(rows))
	for _, row := range rows {
		appts = append(appts, session.CachedAppointment{
			AppointmentID:  asInt(row["appointment_id"]),
			CustomerID:     asInt(row["customer_id"]),
			ConsultantName: asString(row["consultant_name"]),
			Date:           asDate(row["appointment_date"]),
			Time:           asClock(row["appointment_time"]),
			Status:         asString(row["status"]),
		})
	}

	sess.SetCachedAppointments(appts, o.now())
	return appts, nil
}

// Row values arrive as whatever the driver hands back; these helpers pin the
// handful of shapes the listing columns can take.

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func asDate(v any) string {
	if t, ok := v.(time.Time); ok {
		return t.Format("2006-01-02")
	}
	return asString(v)
}

func asClock(v any) string {
	if t, ok := v.(time.Time); ok {
		return t.Format("15:04")
	}
	s := asString(v)
	// time columns come back as HH:MM:SS text; keep HH:MM.
	if len(s) == 8 && s[2] == ':' && s[5] == ':' {
		return s[:5]
	}
	return s
}
