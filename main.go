package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"

	"knowledge_backend/bootstrap"
	"knowledge_backend/config"
	"knowledge_backend/handlers"
	"knowledge_backend/middleware"
	"knowledge_backend/pkg/logging"
	"knowledge_backend/routes"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// a missing .env is fine outside local development
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Logger.Warn("could not load .env", "error", err)
	}
	logging.Init()

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logging.Logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	app, err := bootstrap.NewApp(cfg)
	if err != nil {
		logging.Logger.Error("fail NewApp", "error", err)
		os.Exit(1)
	}

	server := fiber.New(fiber.Config{
		AppName:      "knowledge-backend",
		ErrorHandler: handlers.ErrorHandler,
		// multipart overhead on top of the largest accepted file
		BodyLimit: int(cfg.MaxFileSize) + 1<<20,
	})
	server.Use(middleware.Recover())
	server.Use(middleware.Logger(cfg.AppEnv))
	server.Use(middleware.CORS(cfg.AllowOrigins))

	routes.RegisterHealthRoutes(server, app.Handlers.HealthHandler)
	routes.SetupWebSocketRoutes(server, app.Handlers.WSHandler)
	routes.RegisterKnowledgeRoutes(server, app.Handlers.KnowledgeHandler)

	app.StartWorkers()

	go func() {
		logging.Logger.Info("server running", "port", cfg.HttpPort)
		if err := server.Listen(":" + cfg.HttpPort); err != nil {
			logging.Logger.Error("server stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Shutdown(ctx, server.ShutdownWithContext); err != nil {
		logging.Logger.Error("unclean shutdown", "error", err)
		os.Exit(1)
	}
	logging.Logger.Info("shutdown complete")
}
