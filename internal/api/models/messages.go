package models

import (
	"time"

	"github.com/bookline/bookline-backend/internal/session"
)

// MessageRequest is one inbound utterance delivered by the channel webhook.
type MessageRequest struct {
	UserID        string    `json:"user_id"`
	UtteranceText string    `json:"utterance_text"`
	DeliveryID    string    `json:"delivery_id,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitempty"`
}

// MessageResponse carries the assistant's reply back to the channel.
type MessageResponse struct {
	ReplyText  string `json:"reply_text"`
	DeliveryID string `json:"delivery_id,omitempty"`
}

// SessionResponse is the admin view of one user's conversation record.
type SessionResponse struct {
	UserID          string                  `json:"user_id"`
	BookingState    string                  `json:"booking_state"`
	IsAuthenticated bool                    `json:"is_authenticated"`
	Info            session.AppointmentInfo `json:"info"`
	ContextTurns    int                     `json:"context_turns"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
