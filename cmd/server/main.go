package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/saeid-a/CoachOps/internal/config"
	"github.com/saeid-a/CoachOps/internal/database"
	"github.com/saeid-a/CoachOps/internal/logging"
	"github.com/saeid-a/CoachOps/internal/middleware"
	"github.com/saeid-a/CoachOps/internal/repository"
	"github.com/saeid-a/CoachOps/internal/repository/memstore"
	"github.com/saeid-a/CoachOps/internal/routes"
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the store
	var (
		repos repository.Repositories
		tx    repository.Transactor
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("Using the in-memory store; data is lost on restart")
		store := memstore.New()
		repos, tx = store.Repositories(), store
	default:
		pool, err := database.Connect(ctx, cfg.DBUrl, cfg.DBMaxConns)
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		logger.Info("Connected to PostgreSQL", "max_conns", cfg.DBMaxConns)
		repos, tx = repository.NewRepositories(pool), repository.NewTxManager(pool)
	}

	// 3. Setup Fiber
	app := fiber.New()

	app.Use(cors.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger(logger))
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	if err := routes.RegisterRoutes(ctx, app, cfg, logger, repos, tx); err != nil {
		logger.Error("Failed to register routes", "error", err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed", "error", err)
		}
	}()

	// 4. Start Server
	logger.Info("Server starting", "port", cfg.Port, "env", cfg.AppEnv, "store", cfg.StoreDriver)
	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.Error("Server failed to start", "error", err)
		os.Exit(1)
	}
}
