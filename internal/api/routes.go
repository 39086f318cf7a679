package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/bookline/bookline-backend/internal/api/handlers"
	"github.com/bookline/bookline-backend/internal/api/middleware"
	"github.com/bookline/bookline-backend/internal/config"
	"github.com/bookline/bookline-backend/internal/messaging"
	"github.com/bookline/bookline-backend/internal/orchestrator"
	"github.com/bookline/bookline-backend/internal/repository"
)

// SetupRoutes wires all endpoints. Everything except the health check sits
// behind the shared channel token.
func SetupRoutes(app *fiber.App, orch *orchestrator.Orchestrator, sender messaging.Sender, sessions repository.SessionStore, cfg *config.Config, log *logrus.Logger) {
	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "bookline-backend",
		})
	})

	authed := api.Group("", middleware.ChannelAuth(cfg.Server.ChannelToken))

	messageHandler := handlers.NewMessageHandler(orch, sender, cfg.Chat.MaxMessageLength, log)
	authed.Post("/messages", messageHandler.Handle)

	sessionHandler := handlers.NewSessionHandler(sessions, log)
	authed.Get("/sessions/:user_id", sessionHandler.Get)
	authed.Delete("/sessions/:user_id", sessionHandler.Delete)
}
