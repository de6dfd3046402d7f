// Package app assembles repositories and services from configuration. Both
// the API server and the seed command start from here.
package app

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/gestion-notas-api/internal/repository"
	"github.com/noah-isme/gestion-notas-api/internal/service"
	"github.com/noah-isme/gestion-notas-api/pkg/config"
	"github.com/noah-isme/gestion-notas-api/pkg/database"
	"github.com/noah-isme/gestion-notas-api/pkg/jobs"
	"github.com/noah-isme/gestion-notas-api/pkg/storage"
)

const cacheNamespace = "gestion-notas"

// Repositories are the sqlx-backed stores.
type Repositories struct {
	Users    *repository.UserRepository
	Students *repository.StudentRepository
	Teachers *repository.TeacherRepository
	Courses  *repository.CourseRepository
	Grades   *repository.GradeRepository
}

// Services is the wired service graph.
type Services struct {
	Repos    Repositories
	Metrics  *service.MetricsService
	Cache    *service.CacheService
	Auth     *service.AuthService
	Users    *service.UserService
	Students *service.StudentService
	Teachers *service.TeacherService
	Courses  *service.CourseService
	Grades   *service.GradeService
	Exports  *service.ExportService
	Seed     *service.SeedService
	// Warmer is nil when the statistics cache is off. The caller starts it.
	Warmer   *service.SummaryWarmer
	Blobs    *storage.LocalStorage
	Signer   *storage.SignedURLSigner
}

// New wires every service. redisClient may be nil, which disables the
// statistics cache.
func New(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logger *zap.Logger) (*Services, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	blobs, err := storage.NewLocalStorage(cfg.Storage.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("init photo storage: %w", err)
	}

	repos := Repositories{
		Users:    repository.NewUserRepository(db),
		Students: repository.NewStudentRepository(db),
		Teachers: repository.NewTeacherRepository(db),
		Courses:  repository.NewCourseRepository(db),
		Grades:   repository.NewGradeRepository(db),
	}

	validate := service.NewValidator()
	tx := database.NewTransactor(db)
	hasher := service.NewBcryptHasher(0)
	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	cacheEnabled := cfg.Cache.StatsEnabled && redisClient != nil
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, cacheNamespace, logger)
	}
	cache := service.NewCacheService(cacheRepo, metrics, cfg.Cache.StatsTTL, logger, cacheEnabled)

	students := service.NewStudentService(repos.Students, repos.Users, blobs, hasher, tx, cache, cfg.Cascade, validate, logger)
	teachers := service.NewTeacherService(repos.Teachers, repos.Users, blobs, hasher, tx, cfg.Cascade, validate, logger)
	courses := service.NewCourseService(repos.Courses, repos.Teachers, tx, cache, validate, logger)
	grades := service.NewGradeService(repos.Grades, repos.Students, repos.Courses, tx, cache, metrics, validate, logger)

	var warmer *service.SummaryWarmer
	if cacheEnabled && cfg.Cache.WarmWorkers > 0 {
		warmer = service.NewSummaryWarmer(grades, metrics, jobs.QueueConfig{
			Workers:    cfg.Cache.WarmWorkers,
			MaxRetries: 2,
			Logger:     logger,
		})
		grades.UseWarmer(warmer)
	}

	s := &Services{
		Repos:    repos,
		Metrics:  metrics,
		Cache:    cache,
		Students: students,
		Teachers: teachers,
		Courses:  courses,
		Grades:   grades,
		Warmer:   warmer,
		Blobs:    blobs,
		Signer:   storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL),
	}
	s.Users = service.NewUserService(repos.Users, hasher, tx, cfg.Cascade, validate, logger, students, teachers)
	s.Auth = service.NewAuthService(repos.Users, repos.Students, repos.Teachers, hasher, validate, logger, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	s.Exports = service.NewExportService(grades, cfg.Export.Institution, metrics, logger, nil, nil)
	s.Seed = service.NewSeedService(repos.Users, students, teachers, courses, grades, hasher, cfg.Seed, logger)
	return s, nil
}
