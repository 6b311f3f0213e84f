package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/scholarmark/scholarmark-api/internal/config"
	"github.com/scholarmark/scholarmark-api/internal/server"
	"github.com/scholarmark/scholarmark-api/internal/storage"
	"github.com/scholarmark/scholarmark-api/internal/tierpolicy"
)

func main() {
	// Load env if it exists
	godotenv.Load()

	cfg, err := config.Load("config.json")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Policy tables must be total before we serve a single request
	if err := tierpolicy.Validate(); err != nil {
		log.Fatalf("Tier policy misconfiguration: %v", err)
	}

	postgres, err := storage.NewPostgres(cfg.Postgres.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer postgres.Close()

	if err := postgres.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	redis, err := storage.NewRedis(
		cfg.Redis.GetRedisAddr(),
		cfg.Redis.Password,
		cfg.Redis.DB,
	)

	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	log.Println("Connected to redis successfully")

	// Create server
	srv := server.New(cfg, redis, postgres)

	go func() {
		addr := ":" + cfg.Server.Port
		if err := srv.Run(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
