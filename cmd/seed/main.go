// seed inserts sample notifications for a development user and prints an access token for it.
// Idempotent: does nothing if the user already has notifications.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"notifyhub/backend/internal/config"
	"notifyhub/backend/internal/db"
	"notifyhub/backend/internal/logger"
	"notifyhub/backend/internal/notification/repository"
	"notifyhub/backend/internal/notification/service"
	"notifyhub/backend/internal/security"
)

type sample struct {
	title string
	body  string
	meta  map[string]any
}

var samples = []sample{
	{title: "Welcome to notifyhub", body: "Connect a device to receive notifications live."},
	{title: "Build finished", body: "main passed in 3m12s", meta: map[string]any{"url": "/builds/42", "status": "passed"}},
	{title: "New comment", body: "Looks good, shipping it.", meta: map[string]any{"thread": "review-7"}},
}

func main() {
	user := flag.String("user", "dev", "User id (and username) to seed")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	defer conn.Close()

	ledger := service.NewLedger(repository.NewPostgresRepository(conn))
	existing, err := ledger.List(ctx, *user, "all", 1)
	if err != nil {
		log.Fatal("list notifications", zap.Error(err))
	}
	if len(existing) > 0 {
		log.Info("user already has notifications, skipping", zap.String("user_id", *user))
	} else {
		for _, s := range samples {
			var meta json.RawMessage
			if s.meta != nil {
				if meta, err = json.Marshal(s.meta); err != nil {
					log.Fatal("encode meta", zap.Error(err))
				}
			}
			n, err := ledger.Append(ctx, *user, s.title, s.body, meta)
			if err != nil {
				log.Fatal("append notification", zap.Error(err))
			}
			log.Info("seeded notification", zap.String("id", n.ID), zap.String("title", n.Title))
		}
	}

	tokens := security.NewTokenProvider(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTTL())
	token, exp, err := tokens.IssueAccess(*user, *user)
	if err != nil {
		log.Fatal("issue access token", zap.Error(err))
	}
	fmt.Printf("ACCESS_TOKEN=%s\n# expires %s\n", token, exp.Format(time.RFC3339))
}
