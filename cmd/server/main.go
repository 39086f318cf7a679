package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/bookline/bookline-backend/internal/api"
	"github.com/bookline/bookline-backend/internal/config"
	"github.com/bookline/bookline-backend/internal/database"
	"github.com/bookline/bookline-backend/internal/messaging"
	"github.com/bookline/bookline-backend/internal/orchestrator"
	"github.com/bookline/bookline-backend/internal/providers"
	"github.com/bookline/bookline-backend/internal/providers/openai"
	"github.com/bookline/bookline-backend/internal/query"
	"github.com/bookline/bookline-backend/internal/repository/postgres"
	"github.com/bookline/bookline-backend/internal/semcache"
	"github.com/bookline/bookline-backend/internal/sqlgen"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.Database); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}

	// The schema context given to the statement compiler is introspected
	// once at startup; a schema change means a restart.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	schema, err := sqlgen.LoadSchemaContext(ctx, db.DB)
	cancel()
	if err != nil {
		log.WithError(err).Fatal("failed to introspect database schema")
	}

	provider, err := openai.NewProvider(cfg.Inference)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize inference provider")
	}
	llm := providers.WithRetry(provider, cfg.Inference.MaxRetries, log)

	sessions := postgres.NewSessionStore(db.DB)
	audit := postgres.NewAuditStore(db.DB)

	cache := semcache.New(sessions, provider, cfg.Chat.SimilarityThreshold, log)
	compiler := sqlgen.NewCompiler(llm, schema, cfg.Inference.MaxTokens, log)
	mutations := sqlgen.NewMutationCompiler(llm, schema, cfg.Inference.MaxTokens, log)
	executor := query.NewExecutor(db.DB, audit, log)

	orch := orchestrator.New(orchestrator.Deps{
		Sessions:  sessions,
		Cache:     cache,
		Compiler:  compiler,
		Mutations: mutations,
		Executor:  executor,
		LLM:       llm,
		Embedder:  provider,
		Config:    cfg.Chat,
		Log:       log,
	})

	app := fiber.New(fiber.Config{
		AppName:      "Bookline Backend",
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))

	sender := &messaging.LogSender{Log: log}
	api.SetupRoutes(app, orch, sender, sessions, cfg, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.WithField("addr", addr).Info("bookline backend starting")
	if err := app.Listen(addr); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
