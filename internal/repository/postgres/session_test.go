package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookline/bookline-backend/internal/session"
)

func TestFromRow_UnknownBookingStateLoads(t *testing.T) {
	row := &sessionRow{
		UserID:       "u1",
		AuthState:    "unverified",
		BookingState: "bogus",
		UpdatedAt:    time.Now(),
	}

	sess, err := fromRow(row)
	require.NoError(t, err, "a corrupted state must not make the session unloadable")
	assert.Equal(t, session.BookingState("bogus"), sess.BookingState)
	assert.False(t, sess.BookingState.Valid())
}

func TestRowRoundTrip(t *testing.T) {
	at := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	orig := &session.Session{
		UserID:       "u1",
		AuthState:    "verified",
		BookingState: session.StateCollecting,
		Info: session.AppointmentInfo{
			BookingAction: session.ActionCreate,
			SlotID:        2,
			CustomerName:  "Alice",
		},
		Context: []session.Turn{
			{UserText: "q", AssistantText: "a", Vector: []float32{1, 0}, Timestamp: at},
		},
		CachedSlots:   []session.CachedSlot{{SlotID: 2, ConsultantName: "Dr. Smith"}},
		CachedSlotsAt: &at,
		UpdatedAt:     at,
	}

	row, err := toRow(orig)
	require.NoError(t, err)
	got, err := fromRow(row)
	require.NoError(t, err)

	assert.Equal(t, orig.UserID, got.UserID)
	assert.Equal(t, orig.BookingState, got.BookingState)
	assert.Equal(t, orig.Info, got.Info)
	require.Len(t, got.Context, 1)
	assert.Equal(t, orig.Context[0].UserText, got.Context[0].UserText)
	assert.Equal(t, orig.CachedSlots, got.CachedSlots)
	require.NotNil(t, got.CachedSlotsAt)
	assert.True(t, got.CachedSlotsAt.Equal(at))
}
