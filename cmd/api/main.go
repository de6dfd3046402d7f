package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/gestion-notas-api/api/swagger"
	"github.com/noah-isme/gestion-notas-api/internal/app"
	"github.com/noah-isme/gestion-notas-api/internal/handler"
	"github.com/noah-isme/gestion-notas-api/internal/middleware"
	"github.com/noah-isme/gestion-notas-api/migrations"
	"github.com/noah-isme/gestion-notas-api/pkg/cache"
	"github.com/noah-isme/gestion-notas-api/pkg/config"
	"github.com/noah-isme/gestion-notas-api/pkg/database"
	"github.com/noah-isme/gestion-notas-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/gestion-notas-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/gestion-notas-api/pkg/middleware/requestid"
)

// @title Gestion de Notas API
// @version 1.0.0
// @description Student, teacher and course registries with grade recording, averages and academic standing.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(context.Background(), cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, migrations.Files, logr); err != nil {
			logr.Fatal("failed to migrate database", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(context.Background(), cfg.Redis)
		if err != nil {
			// Statistics are served uncached when Redis is down.
			logr.Warn("redis unavailable, statistics cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close() //nolint:errcheck
		}
	}

	svc, err := app.New(cfg, db, redisClient, logr)
	if err != nil {
		logr.Fatal("failed to build services", zap.Error(err))
	}

	if svc.Warmer != nil {
		svc.Warmer.Start(context.Background())
		defer svc.Warmer.Stop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(svc.Metrics, "/metrics", "/health", "/ready"))
	r.Use(middleware.ResponseMeta())

	metricsHandler := handler.NewMetricsHandler(svc.Metrics,
		handler.Probe{Name: "database", Check: func(ctx context.Context) error { return database.Ping(ctx, db) }},
		handler.Probe{Name: "cache", Check: func(ctx context.Context) error { return cache.Ping(ctx, redisClient) }},
	)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	photos := handler.PhotoPolicy{
		MaxBytes:     cfg.Storage.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Storage.AllowedMIMEs,
		Signer:       svc.Signer,
		FilesPath:    path.Join(cfg.APIPrefix, "files"),
	}
	routes := handler.Router{
		Auth:            handler.NewAuthHandler(svc.Auth),
		Users:           handler.NewUserHandler(svc.Users),
		Students:        handler.NewStudentHandler(svc.Students, photos),
		Teachers:        handler.NewTeacherHandler(svc.Teachers, photos),
		Courses:         handler.NewCourseHandler(svc.Courses),
		Grades:          handler.NewGradeHandler(svc.Grades),
		Exports:         handler.NewExportHandler(svc.Exports),
		Files:           handler.NewFileHandler(svc.Blobs, svc.Signer),
		Metrics:         metricsHandler,
		Tokens:          svc.Auth,
		StudentAccounts: svc.Repos.Students,
		AuditLog:        svc.Repos.Users,
		Logger:          logr,
	}
	routes.Register(r.Group(cfg.APIPrefix))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "prefix", cfg.APIPrefix)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
