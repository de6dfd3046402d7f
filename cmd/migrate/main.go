package main

import (
	"context"
	"flag"
	"log"

	"go.uber.org/zap"

	"github.com/noah-isme/gestion-notas-api/migrations"
	"github.com/noah-isme/gestion-notas-api/pkg/config"
	"github.com/noah-isme/gestion-notas-api/pkg/database"
	"github.com/noah-isme/gestion-notas-api/pkg/logger"
)

func main() {
	down := flag.Int("down", 0, "roll back this many migrations instead of applying pending ones")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(context.Background(), cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if *down > 0 {
		if err := database.Rollback(db, migrations.Files, *down); err != nil {
			logr.Fatal("rollback failed", zap.Error(err))
		}
		logr.Info("migrations rolled back", zap.Int("steps", *down))
		return
	}
	if err := database.Migrate(db, migrations.Files, logr); err != nil {
		logr.Fatal("migration failed", zap.Error(err))
	}
}
