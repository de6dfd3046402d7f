package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gestion-notas-api/internal/app"
	"github.com/noah-isme/gestion-notas-api/migrations"
	"github.com/noah-isme/gestion-notas-api/pkg/config"
	"github.com/noah-isme/gestion-notas-api/pkg/database"
	"github.com/noah-isme/gestion-notas-api/pkg/logger"
)

func main() {
	demo := flag.Bool("demo", false, "also insert demo teachers, students, courses and grades")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *demo {
		cfg.Seed.DemoData = true
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

	if err := database.Migrate(db, migrations.Files, logr); err != nil {
		logr.Fatal("failed to migrate database", zap.Error(err))
	}

	svc, err := app.New(cfg, db, nil, logr)
	if err != nil {
		logr.Fatal("failed to build services", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	report, err := svc.Seed.Run(ctx)
	if err != nil {
		logr.Fatal("seed failed", zap.Error(err))
	}
	logr.Info("seed finished",
		zap.Bool("admin_created", report.AdminCreated),
		zap.Int("teachers", report.Teachers),
		zap.Int("students", report.Students),
		zap.Int("courses", report.Courses),
		zap.Int("grades", report.Grades),
	)
}
