package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func strptr(s string) *string { return &s }

func TestAppendTurn_EvictsOldestBeyondWindow(t *testing.T) {
	s := New("u1")
	for i := 0; i < 7; i++ {
		s.AppendTurn(Turn{UserText: fmt.Sprintf("q%d", i)}, 3)
		assert.LessOrEqual(t, len(s.Context), 3)
	}
	assert.Len(t, s.Context, 3)
	assert.Equal(t, "q4", s.Context[0].UserText)
	assert.Equal(t, "q6", s.Context[2].UserText)
}

func TestAppendTurn_ZeroWindowKeepsNothing(t *testing.T) {
	s := New("u1")
	s.AppendTurn(Turn{UserText: "q"}, 0)
	assert.Empty(t, s.Context)
}

func TestPatchApply_MergesOnlySetFields(t *testing.T) {
	info := AppointmentInfo{CustomerName: "Alice", Date: "2026-09-01"}
	info.Apply(Patch{
		CustomerPhone: strptr("0712345678"),
		Time:          strptr("10:00"),
	})

	assert.Equal(t, "Alice", info.CustomerName)
	assert.Equal(t, "0712345678", info.CustomerPhone)
	assert.Equal(t, "2026-09-01", info.Date)
	assert.Equal(t, "10:00", info.Time)
}

func TestPatchApply_EmptyStringNeverErases(t *testing.T) {
	info := AppointmentInfo{CustomerName: "Alice"}
	info.Apply(Patch{CustomerName: strptr("")})
	assert.Equal(t, "Alice", info.CustomerName)
}

func TestPatchEmpty(t *testing.T) {
	assert.True(t, Patch{}.Empty())
	assert.False(t, Patch{Date: strptr("2026-09-01")}.Empty())
}

func TestMissing_ReturnsFieldsInPromptOrder(t *testing.T) {
	info := AppointmentInfo{Date: "2026-09-01", Consultant: "Dr. Adams"}
	assert.Equal(t, []string{"name", "phone", "time"}, info.Missing())

	info = AppointmentInfo{
		CustomerName:  "Alice",
		CustomerPhone: "0712345678",
		Date:          "2026-09-01",
		Time:          "10:00",
		Consultant:    "Dr. Adams",
	}
	assert.Empty(t, info.Missing())
}

func TestSlotsFresh(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	maxAge := 300 * time.Second

	s := New("u1")
	assert.False(t, s.SlotsFresh(maxAge, now), "no cache is never fresh")

	at := now.Add(-299 * time.Second)
	s.CachedSlots = []CachedSlot{{SlotID: 1}}
	s.CachedSlotsAt = &at
	assert.True(t, s.SlotsFresh(maxAge, now))

	old := now.Add(-301 * time.Second)
	s.CachedSlotsAt = &old
	assert.False(t, s.SlotsFresh(maxAge, now))

	s.CachedSlots = nil
	s.CachedSlotsAt = &at
	assert.False(t, s.SlotsFresh(maxAge, now), "empty list is never fresh")
}

func TestResetBooking_KeepsConversationContext(t *testing.T) {
	s := New("u1")
	s.BookingState = StateConfirming
	s.Info = AppointmentInfo{BookingAction: ActionCreate, CustomerName: "Alice"}
	at := time.Now()
	s.CachedSlots = []CachedSlot{{SlotID: 1}}
	s.CachedSlotsAt = &at
	s.CachedAppointments = []CachedAppointment{{AppointmentID: 1}}
	s.CachedAppointmentsAt = &at
	s.AppendTurn(Turn{UserText: "q", AssistantText: "a"}, 3)

	s.ResetBooking()

	assert.Equal(t, StateIdle, s.BookingState)
	assert.Equal(t, AppointmentInfo{}, s.Info)
	assert.Nil(t, s.CachedSlots)
	assert.Nil(t, s.CachedSlotsAt)
	assert.Nil(t, s.CachedAppointments)
	assert.Len(t, s.Context, 1)
}

func TestBookingStateValid(t *testing.T) {
	for _, state := range []BookingState{
		StateIdle, StateSelectingSlot, StateSelectingAppointment,
		StateSelectingNewSlot, StateCollecting, StateConfirming,
		StateConfirmingRestart, StateCompleted,
	} {
		assert.True(t, state.Valid(), string(state))
	}
	assert.False(t, BookingState("archived").Valid())
	assert.False(t, BookingState("").Valid())
}

func TestStarted(t *testing.T) {
	info := AppointmentInfo{}
	assert.False(t, info.Started())
	info.BookingAction = ActionCancel
	assert.True(t, info.Started())
}
