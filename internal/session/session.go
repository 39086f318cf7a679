package session

import (
	"time"
)

// BookingState is the position of a user inside the booking flow.
type BookingState string

const (
	StateIdle                 BookingState = "idle"
	StateSelectingSlot        BookingState = "selecting_slot"
	StateSelectingAppointment BookingState = "selecting_appointment"
	StateSelectingNewSlot     BookingState = "selecting_new_slot"
	StateCollecting           BookingState = "collecting"
	StateConfirming           BookingState = "confirming"
	StateConfirmingRestart    BookingState = "confirming_restart"
	StateCompleted            BookingState = "completed"
)

// Valid reports whether s is a member of the closed state set.
func (s BookingState) Valid() bool {
	switch s {
	case StateIdle, StateSelectingSlot, StateSelectingAppointment,
		StateSelectingNewSlot, StateCollecting, StateConfirming,
		StateConfirmingRestart, StateCompleted:
		return true
	}
	return false
}

// BookingAction is what the current flow is trying to do to an appointment.
type BookingAction string

const (
	ActionCreate BookingAction = "create"
	ActionUpdate BookingAction = "update"
	ActionCancel BookingAction = "cancel"
)

func (a BookingAction) Valid() bool {
	return a == ActionCreate || a == ActionUpdate || a == ActionCancel
}

// AppointmentInfo carries the fields collected during a booking flow.
// All fields are empty until filled; the flow is complete when Missing()
// returns nothing.
type AppointmentInfo struct {
	BookingAction BookingAction `json:"booking_action,omitempty"`

	// Set when an existing appointment was selected for update/cancel.
	AppointmentID int `json:"appointment_id,omitempty"`
	CustomerID    int `json:"customer_id,omitempty"`

	// Set when a slot was selected.
	SlotID       int    `json:"slot_id,omitempty"`
	ConsultantID int    `json:"consultant_id,omitempty"`
	Consultant   string `json:"consultant,omitempty"`
	Date         string `json:"date,omitempty"`
	Time         string `json:"time,omitempty"`

	// Collected from the user.
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`

	// Set while waiting for the restart decision.
	PendingAction BookingAction `json:"pending_action,omitempty"`
	ResumeState   BookingState  `json:"resume_state,omitempty"`
}

// Patch is a partial update to AppointmentInfo. Only the fields listed here
// can be merged in from extraction; unknown keys never reach the record.
type Patch struct {
	CustomerName  *string `json:"customer_name,omitempty"`
	CustomerPhone *string `json:"customer_phone,omitempty"`
	Date          *string `json:"date,omitempty"`
	Time          *string `json:"time,omitempty"`
	Consultant    *string `json:"consultant,omitempty"`
}

// Empty reports whether the patch carries no values at all.
func (p Patch) Empty() bool {
	return p.CustomerName == nil && p.CustomerPhone == nil &&
		p.Date == nil && p.Time == nil && p.Consultant == nil
}

// Apply merges the non-nil patch fields into the info record. Empty strings
// in the patch are ignored so a blank extraction cannot erase a collected
// value.
func (a *AppointmentInfo) Apply(p Patch) {
	if p.CustomerName != nil && *p.CustomerName != "" {
		a.CustomerName = *p.CustomerName
	}
	if p.CustomerPhone != nil && *p.CustomerPhone != "" {
		a.CustomerPhone = *p.CustomerPhone
	}
	if p.Date != nil && *p.Date != "" {
		a.Date = *p.Date
	}
	if p.Time != nil && *p.Time != "" {
		a.Time = *p.Time
	}
	if p.Consultant != nil && *p.Consultant != "" {
		a.Consultant = *p.Consultant
	}
}

// RequiredFields is the order in which missing fields are asked for.
var RequiredFields = []string{"name", "phone", "date", "time", "consultant"}

// Missing returns the required fields that are still empty, in prompt order.
func (a *AppointmentInfo) Missing() []string {
	var missing []string
	for _, f := range RequiredFields {
		switch f {
		case "name":
			if a.CustomerName == "" {
				missing = append(missing, f)
			}
		case "phone":
			if a.CustomerPhone == "" {
				missing = append(missing, f)
			}
		case "date":
			if a.Date == "" {
				missing = append(missing, f)
			}
		case "time":
			if a.Time == "" {
				missing = append(missing, f)
			}
		case "consultant":
			if a.Consultant == "" {
				missing = append(missing, f)
			}
		}
	}
	return missing
}

// Started reports whether any booking flow has collected something, i.e.
// there is an unfinished flow worth asking the user about before restarting.
func (a *AppointmentInfo) Started() bool {
	return a.BookingAction != ""
}

// Turn is one user-utterance/assistant-reply pair kept for context and for
// the semantic cache.
type Turn struct {
	UserText      string         `json:"user_text"`
	AssistantText string         `json:"assistant_text"`
	Vector        []float32      `json:"vector,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// CachedSlot is one row of a slot listing shown to the user. Index selection
// refers to the 1-based position in the cached list.
type CachedSlot struct {
	SlotID         int    `json:"slot_id"`
	ConsultantID   int    `json:"consultant_id"`
	ConsultantName string `json:"consultant_name"`
	Date           string `json:"date"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
}

// CachedAppointment is one row of the user's existing bookings shown for
// update/cancel selection.
type CachedAppointment struct {
	AppointmentID  int    `json:"appointment_id"`
	CustomerID     int    `json:"customer_id"`
	ConsultantName string `json:"consultant_name"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	Status         string `json:"status"`
}

// Session is the single durable record per end-user identity.
type Session struct {
	UserID          string
	AuthState       string
	IsAuthenticated bool
	BookingState    BookingState
	Info            AppointmentInfo
	Context         []Turn

	CachedSlots   []CachedSlot
	CachedSlotsAt *time.Time

	CachedAppointments   []CachedAppointment
	CachedAppointmentsAt *time.Time

	// UpdatedAt doubles as the optimistic-concurrency token for
	// conditional updates.
	UpdatedAt time.Time
}

// New creates a fresh session for a first-contact user.
func New(userID string) *Session {
	return &Session{
		UserID:       userID,
		AuthState:    "unverified",
		BookingState: StateIdle,
	}
}

// AppendTurn adds a turn to the conversation context, evicting the oldest
// entries so the context never exceeds window turns.
func (s *Session) AppendTurn(t Turn, window int) {
	if window <= 0 {
		return
	}
	s.Context = append(s.Context, t)
	if len(s.Context) > window {
		s.Context = s.Context[len(s.Context)-window:]
	}
}

// SetCachedSlots replaces the slot cache wholesale and stamps it.
func (s *Session) SetCachedSlots(slots []CachedSlot, now time.Time) {
	s.CachedSlots = slots
	s.CachedSlotsAt = &now
}

// SetCachedAppointments replaces the appointment cache wholesale.
func (s *Session) SetCachedAppointments(appts []CachedAppointment, now time.Time) {
	s.CachedAppointments = appts
	s.CachedAppointmentsAt = &now
}

// SlotsFresh reports whether the cached slot listing is still trustworthy
// for index-based selection.
func (s *Session) SlotsFresh(maxAge time.Duration, now time.Time) bool {
	if len(s.CachedSlots) == 0 || s.CachedSlotsAt == nil {
		return false
	}
	return now.Sub(*s.CachedSlotsAt) < maxAge
}

// AppointmentsFresh reports whether the cached appointment listing is still
// trustworthy for index-based selection.
func (s *Session) AppointmentsFresh(maxAge time.Duration, now time.Time) bool {
	if len(s.CachedAppointments) == 0 || s.CachedAppointmentsAt == nil {
		return false
	}
	return now.Sub(*s.CachedAppointmentsAt) < maxAge
}

// ResetBooking clears the flow state after completion or abort. The
// conversation context survives; only booking progress is dropped.
func (s *Session) ResetBooking() {
	s.BookingState = StateIdle
	s.Info = AppointmentInfo{}
	s.CachedSlots = nil
	s.CachedSlotsAt = nil
	s.CachedAppointments = nil
	s.CachedAppointmentsAt = nil
}
