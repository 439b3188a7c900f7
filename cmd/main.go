package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"vitrine/internal/api"
	"vitrine/internal/config"
	"vitrine/internal/db"
	"vitrine/internal/services"
	"vitrine/internal/utils"
	"vitrine/internal/utils/logger"
)

func main() {
	log := logger.New("vitrine")

	// check if .env file exists
	if _, err := os.Stat(".env"); os.IsNotExist(err) {
		log.Info("No .env file found, skipping environment variable loading")
	} else {
		log.Info("Loading environment variables from .env file")
		if err := godotenv.Load(); err != nil {
			fatal(log, "Failed to load environment variables", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(log, "Failed to load configuration", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	database, err := db.Connect(cfg)
	if err != nil {
		fatal(log, "Failed to connect to database", err)
	}
	defer func() {
		if err := db.Close(database); err != nil {
			log.Error("Failed to close database connection: %v", err)
		}
	}()

	ctx := context.Background()

	images, err := services.NewImageStore(ctx, cfg.Storage)
	if err != nil {
		fatal(log, "Failed to initialize image store", err)
	}

	var redis *utils.RedisClient
	if cfg.Redis.Addr != "" {
		redis, err = utils.NewRedisClient(cfg.Redis)
		if err != nil {
			fatal(log, "Failed to connect to Redis", err)
		}
		defer redis.Close()
		log.Info("Rate limits shared through Redis at %s", cfg.Redis.Addr)
	}

	apiServer := api.NewServer(cfg, database, images, redis)

	if cfg.Admin.Email != "" {
		if err := apiServer.Auth().EnsureAdmin(ctx, cfg.Admin.Name, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			fatal(log, "Failed to seed admin account", err)
		}
	}

	go func() {
		if err := apiServer.Start(); err != nil {
			fatal(log, "API server error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shutdown API server: %v", err)
	}

	log.Info("Server shutdown gracefully")
}

func fatal(log *logger.Logger, msg string, err error) {
	log.Error("%s: %v", msg, err)
	os.Exit(1)
}
