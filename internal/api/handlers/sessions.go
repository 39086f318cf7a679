package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/bookline/bookline-backend/internal/api/models"
	"github.com/bookline/bookline-backend/internal/repository"
)

// SessionHandler serves the admin session-inspection endpoints.
type SessionHandler struct {
	sessions repository.SessionStore
	log      *logrus.Logger
}

func NewSessionHandler(sessions repository.SessionStore, log *logrus.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, log: log}
}

// Get handles GET /api/v1/sessions/:user_id.
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	userID := c.Params("user_id")

	sess, err := h.sessions.Get(c.Context(), userID)
	if err != nil {
		h.log.WithField("user_id", userID).WithError(err).Error("failed to load session")
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error: "Failed to load session",
		})
	}
	if sess == nil {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Session not found",
		})
	}

	return c.JSON(models.SessionResponse{
		UserID:          sess.UserID,
		BookingState:    string(sess.BookingState),
		IsAuthenticated: sess.IsAuthenticated,
		Info:            sess.Info,
		ContextTurns:    len(sess.Context),
		UpdatedAt:       sess.UpdatedAt,
	})
}

// Delete handles DELETE /api/v1/sessions/:user_id. Removing the record resets
// the user to first contact.
func (h *SessionHandler) Delete(c *fiber.Ctx) error {
	userID := c.Params("user_id")

	if err := h.sessions.Delete(c.Context(), userID); err != nil {
		h.log.WithField("user_id", userID).WithError(err).Error("failed to delete session")
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error: "Failed to delete session",
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
