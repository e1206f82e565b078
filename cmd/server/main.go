package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/dlalloyd/adaptive-kernel/internal/auth"
	"github.com/dlalloyd/adaptive-kernel/internal/config"
	"github.com/dlalloyd/adaptive-kernel/internal/httpapi"
	"github.com/dlalloyd/adaptive-kernel/internal/seed"
	"github.com/dlalloyd/adaptive-kernel/internal/session"
	"github.com/dlalloyd/adaptive-kernel/internal/store"
)

func main() {
	cfg := config.Load()

	db, err := store.Open(cfg.DSN())
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := store.Migrate(cfg.MigrateURL()); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	repo := store.New(db)

	if os.Getenv("SEED_ON_START") == "true" {
		result, err := seed.UKGeography(context.Background(), repo)
		if err != nil {
			log.Printf("[main] seed skipped: %v", err)
		} else {
			log.Printf("[main] seeded UK Geography bank user=%s quiz=%s", result.UserID, result.QuizID)
		}
	}

	engine := session.NewEngine(repo)
	authHandler := auth.NewHandler(repo, []byte(cfg.JWTSecret))

	handler := httpapi.NewRouter(engine, authHandler, []byte(cfg.JWTSecret))

	log.Printf("[main] server starting on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, handler); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
