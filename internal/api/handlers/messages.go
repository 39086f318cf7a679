package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/bookline/bookline-backend/internal/api/models"
	"github.com/bookline/bookline-backend/internal/messaging"
	"github.com/bookline/bookline-backend/internal/providers"
	"github.com/bookline/bookline-backend/internal/query"
)

// Boundary apologies. Raw error detail stays in the logs; the user only ever
// sees these.
const (
	apologyBusy    = "The system is a bit busy right now. Please try again in a moment."
	apologyFailure = "Sorry, something went wrong on our side. Nothing has been changed — please try again."
)

// MessageOrchestrator processes one utterance into a reply. Uses an
// interface so handlers can be tested without the full pipeline.
type MessageOrchestrator interface {
	HandleMessage(ctx context.Context, userID, text string) (string, error)
}

// MessageHandler serves the channel webhook.
type MessageHandler struct {
	orch   MessageOrchestrator
	sender messaging.Sender
	maxLen int
	log    *logrus.Logger
}

// NewMessageHandler creates the webhook handler.
func NewMessageHandler(orch MessageOrchestrator, sender messaging.Sender, maxLen int, log *logrus.Logger) *MessageHandler {
	return &MessageHandler{
		orch:   orch,
		sender: sender,
		maxLen: maxLen,
		log:    log,
	}
}

// Handle handles POST /api/v1/messages. Each request is one utterance; the
// reply is returned synchronously and also handed to the outbound sender for
// channels that deliver through a provider API. Transient inference failures
// and execution failures resolve into apologies rather than error statuses,
// because the channel expects a conversational reply either way.
func (h *MessageHandler) Handle(c *fiber.Ctx) error {
	var req models.MessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid request body",
		})
	}
	if req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "user_id is required",
		})
	}

	reply, err := h.orch.HandleMessage(c.Context(), req.UserID, req.UtteranceText)
	if err != nil {
		reply = h.apologyFor(req.UserID, err)
	}
	reply = messaging.Truncate(reply, h.maxLen)

	outbound := messaging.Outbound{
		UserID:     req.UserID,
		Text:       reply,
		DeliveryID: req.DeliveryID,
	}
	if err := h.sender.Send(c.Context(), outbound); err != nil {
		// The HTTP response still carries the reply; delivery through the
		// provider API is the channel's concern to retry.
		h.log.WithField("user_id", req.UserID).WithError(err).Error("outbound send failed")
	}

	return c.JSON(models.MessageResponse{
		ReplyText:  reply,
		DeliveryID: req.DeliveryID,
	})
}

func (h *MessageHandler) apologyFor(userID string, err error) string {
	entry := h.log.WithField("user_id", userID).WithError(err)

	if providers.IsTransient(err) {
		entry.Warn("inference provider overloaded")
		return apologyBusy
	}

	var execErr *query.ExecutionError
	if errors.As(err, &execErr) {
		entry.Error("query execution failed")
		return apologyFailure
	}

	entry.Error("message handling failed")
	return apologyFailure
}
