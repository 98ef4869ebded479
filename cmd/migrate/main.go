// migrate applies or rolls back the embedded schema: go run ./cmd/migrate -direction up|down.
package main

import (
	"flag"
	"os"

	"go.uber.org/zap"

	"notifyhub/backend/internal/config"
	"notifyhub/backend/internal/db/migrate"
	"notifyhub/backend/internal/logger"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("config", zap.Error(err))
	}
	log, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		log.Fatal("migrate failed", zap.String("direction", *direction), zap.Error(err))
	}
	v, dirty, err := migrate.Version(cfg.DatabaseURL)
	if err != nil {
		log.Warn("read schema version", zap.Error(err))
		return
	}
	log.Info("migrations applied", zap.String("direction", *direction), zap.Uint("version", v), zap.Bool("dirty", dirty))
}
