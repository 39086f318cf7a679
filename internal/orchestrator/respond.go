package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bookline/bookline-backend/internal/providers"
	"github.com/bookline/bookline-backend/internal/session"
)

// User-visible texts. Failures are always safe apologies; raw SQL, schema
// text, and stack traces never appear here.
const (
	msgCannotAnswer   = "Sorry, I wasn't able to answer that one. Could you try rephrasing it?"
	msgBusy           = "The system is a bit busy right now. Please try again in a moment."
	msgMutationFailed = "Sorry, I couldn't complete that booking. Nothing has been changed — please try confirming again."
	msgAborted        = "No problem, I've dropped that booking request. Anything else I can help with?"
	msgEmptyUtterance = "I didn't catch that. Could you say it again?"
	msgNoOpenSlots    = "There are no open slots at the moment. Please check back later."
	msgNoBookings     = "I couldn't find any bookings under your account."
	msgConfirmHint    = "Please reply \"yes\" to confirm, or \"never mind\" to drop it. You can also still change any detail."
	msgRestartChoice  = "You already have a booking in progress. Say \"continue\" to pick it up where you left off, or \"restart\" to start fresh."
)

func renderSlotList(slots []session.CachedSlot, refreshed bool) string {
	var b strings.Builder
	if refreshed {
		b.WriteString("That list had gone stale, so here are the current open slots:\n")
	} else {
		b.WriteString("Here are the available slots:\n")
	}
	for i, slot := range slots {
		fmt.Fprintf(&b, "%d. %s %s-%s with %s\n",
			i+1, slot.Date, slot.StartTime, slot.EndTime, slot.ConsultantName)
	}
	b.WriteString("Reply with the number of the slot you'd like.")
	return b.String()
}

func renderAppointmentList(appts []session.CachedAppointment, action session.BookingAction) string {
	var b strings.Builder
	verb := "update"
	if action == session.ActionCancel {
		verb = "cancel"
	}
	fmt.Fprintf(&b, "Here are your bookings. Which one would you like to %s?\n", verb)
	for i, appt := range appts {
		fmt.Fprintf(&b, "%d. %s at %s with %s (%s)\n",
			i+1, appt.Date, appt.Time, appt.ConsultantName, appt.Status)
	}
	b.WriteString("Reply with the number.")
	return b.String()
}

func renderConfirmation(info session.AppointmentInfo) string {
	var b strings.Builder
	switch info.BookingAction {
	case session.ActionCancel:
		b.WriteString("You're about to cancel this booking:\n")
	case session.ActionUpdate:
		b.WriteString("You're about to move your booking to:\n")
	default:
		b.WriteString("Here's your booking so far:\n")
	}
	fmt.Fprintf(&b, "- name: %s\n", orDash(info.CustomerName))
	fmt.Fprintf(&b, "- phone: %s\n", orDash(info.CustomerPhone))
	fmt.Fprintf(&b, "- date: %s\n", orDash(info.Date))
	fmt.Fprintf(&b, "- time: %s\n", orDash(info.Time))
	fmt.Fprintf(&b, "- consultant: %s\n", orDash(info.Consultant))
	b.WriteString("Shall I go ahead? Reply \"yes\" to confirm.")
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// fieldHints nudges the user toward side questions they can ask while
// filling in a field.
var fieldHints = map[string]string{
	"name":       "What name should the booking be under?",
	"phone":      "What phone number can we reach you on?",
	"date":       "What date works for you? You can also ask \"what slots are free this week?\"",
	"time":       "What time works for you?",
	"consultant": "Which consultant would you like? You can ask \"which consultants are available?\"",
}

func promptMissing(info session.AppointmentInfo) string {
	missing := info.Missing()
	if len(missing) == 0 {
		return renderConfirmation(info)
	}
	first := missing[0]
	hint, ok := fieldHints[first]
	if !ok {
		hint = "Could you share the " + first + "?"
	}
	return hint
}

const answerPrompt = `Answer the question using only the result rows below.
Be brief and conversational. If the rows are empty, say you couldn't find
anything matching.

Question: %s
Rows: %s

Answer:`

// formatAnswer turns query rows back into natural language via a fixed
// completion template.
func (o *Orchestrator) formatAnswer(ctx context.Context, question string, rows []map[string]any) (string, error) {
	encoded, err := json.Marshal(rows)
	if err != nil {
		return "", err
	}

	answer, err := o.llm.Complete(ctx, providers.CompletionRequest{
		Prompt:    fmt.Sprintf(answerPrompt, question, string(encoded)),
		MaxTokens: 512,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}
