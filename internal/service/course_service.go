package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gestion-notas-api/internal/models"
	appErrors "github.com/noah-isme/gestion-notas-api/pkg/errors"
)

const (
	courseCodePrefix = "CUR"
	courseCodeWidth  = 4
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindDetail(ctx context.Context, column, value string) (*models.CourseDetail, error)
	ExistsByCode(ctx context.Context, code, excludeID string) (bool, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	SetActive(ctx context.Context, id string, active bool) error
	AssignTeacher(ctx context.Context, id string, teacherID *string) error
	Delete(ctx context.Context, id string) error
	CountByTeacher(ctx context.Context) ([]models.TeacherCourseCount, error)
}

type teacherResolver interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

// CreateCourseRequest registers a course. Credits default to 3, active to true.
type CreateCourseRequest struct {
	Code        string  `json:"code" validate:"omitempty,max=20"`
	Name        string  `json:"name" validate:"required,max=150"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	Credits     *int    `json:"credits" validate:"omitempty,min=1,max=10"`
	Active      *bool   `json:"active"`
	TeacherID   *string `json:"teacher_id"`
}

// UpdateCourseRequest replaces course data. An empty code keeps the current one.
type UpdateCourseRequest struct {
	Code        string  `json:"code" validate:"omitempty,max=20"`
	Name        string  `json:"name" validate:"required,max=150"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	Credits     *int    `json:"credits" validate:"omitempty,min=1,max=10"`
	Active      *bool   `json:"active"`
	TeacherID   *string `json:"teacher_id"`
}

// CourseService manages the course registry.
type CourseService struct {
	repo      courseRepository
	teachers  teacherResolver
	tx        txRunner
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService. cache may be nil.
func NewCourseService(repo courseRepository, teachers teacherResolver, tx txRunner, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{
		repo:      repo,
		teachers:  teachers,
		tx:        ensureRunner(tx),
		cache:     cache,
		validator: validate,
		logger:    logger,
	}
}

// List returns courses joined with their teacher.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list courses")
	}
	return courses, paginate(filter.Page, filter.PageSize, total), nil
}

// Get returns a course by id.
func (s *CourseService) Get(ctx context.Context, id string) (*models.CourseDetail, error) {
	course, err := s.repo.FindDetail(ctx, "id", id)
	if err != nil {
		return nil, lookupError(err, "course")
	}
	return course, nil
}

// GetByCode returns a course by registry code.
func (s *CourseService) GetByCode(ctx context.Context, code string) (*models.CourseDetail, error) {
	course, err := s.repo.FindDetail(ctx, "code", strings.TrimSpace(code))
	if err != nil {
		return nil, lookupError(err, "course")
	}
	return course, nil
}

// Create registers a course.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid course payload")
	}
	var course *models.Course
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		code := strings.TrimSpace(req.Code)
		if code != "" {
			if err := ensureCodeAvailable(ctx, s.repo, code, "", "course"); err != nil {
				return err
			}
		} else {
			generated, err := nextCode(ctx, s.repo, courseCodePrefix, courseCodeWidth)
			if err != nil {
				return err
			}
			code = generated
		}

		teacherID := normalizeOptional(req.TeacherID)
		if err := s.ensureTeacher(ctx, teacherID); err != nil {
			return err
		}

		course = &models.Course{
			Code:        code,
			Name:        strings.TrimSpace(req.Name),
			Description: normalizeOptional(req.Description),
			Credits:     models.DefaultCourseCredits,
			Active:      true,
			TeacherID:   teacherID,
		}
		if req.Credits != nil {
			course.Credits = *req.Credits
		}
		if req.Active != nil {
			course.Active = *req.Active
		}
		if err := s.repo.Create(ctx, course); err != nil {
			return writeError(err, "course", "failed to create course")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("course created", zap.String("course_id", course.ID), zap.String("code", course.Code))
	return course, nil
}

// Update replaces course data, re-checking a changed code.
func (s *CourseService) Update(ctx context.Context, id string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid course payload")
	}
	var course *models.Course
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return lookupError(err, "course")
		}
		if code := strings.TrimSpace(req.Code); code != "" && code != current.Code {
			if err := ensureCodeAvailable(ctx, s.repo, code, id, "course"); err != nil {
				return err
			}
			current.Code = code
		}
		teacherID := normalizeOptional(req.TeacherID)
		if teacherID != nil && deref(current.TeacherID) != *teacherID {
			if err := s.ensureTeacher(ctx, teacherID); err != nil {
				return err
			}
		}
		current.TeacherID = teacherID
		current.Name = strings.TrimSpace(req.Name)
		current.Description = normalizeOptional(req.Description)
		if req.Credits != nil {
			current.Credits = *req.Credits
		}
		if req.Active != nil {
			current.Active = *req.Active
		}
		if err := s.repo.Update(ctx, current); err != nil {
			return writeError(err, "course", "failed to update course")
		}
		course = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return course, nil
}

// AssignTeacher overwrites the course teacher.
func (s *CourseService) AssignTeacher(ctx context.Context, id, teacherID string) (*models.CourseDetail, error) {
	teacherID = strings.TrimSpace(teacherID)
	if teacherID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher_id is required")
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.ensureTeacher(ctx, &teacherID); err != nil {
			return err
		}
		if err := s.repo.AssignTeacher(ctx, id, &teacherID); err != nil {
			return writeError(err, "course", "failed to assign teacher")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("course teacher assigned", zap.String("course_id", id), zap.String("teacher_id", teacherID))
	s.invalidate(ctx, id)
	return s.Get(ctx, id)
}

// UnassignTeacher clears the course teacher.
func (s *CourseService) UnassignTeacher(ctx context.Context, id string) (*models.CourseDetail, error) {
	if err := s.repo.AssignTeacher(ctx, id, nil); err != nil {
		return nil, writeError(err, "course", "failed to unassign teacher")
	}
	s.invalidate(ctx, id)
	return s.Get(ctx, id)
}

// Activate marks a course active.
func (s *CourseService) Activate(ctx context.Context, id string) error {
	return s.setActive(ctx, id, true)
}

// Deactivate soft-deletes a course. Its grades stay.
func (s *CourseService) Deactivate(ctx context.Context, id string) error {
	return s.setActive(ctx, id, false)
}

func (s *CourseService) setActive(ctx context.Context, id string, active bool) error {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return writeError(err, "course", "failed to update course status")
	}
	s.logger.Info("course status changed", zap.String("course_id", id), zap.Bool("active", active))
	return nil
}

// Delete removes a course row. Its grades go with it.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return writeError(err, "course", "failed to delete course")
	}
	s.logger.Info("course deleted", zap.String("course_id", id))
	s.invalidate(ctx, id)
	return nil
}

// CountByTeacher reports how many courses each teacher holds.
func (s *CourseService) CountByTeacher(ctx context.Context) ([]models.TeacherCourseCount, error) {
	counts, err := s.repo.CountByTeacher(ctx)
	if err != nil {
		return nil, internalError(err, "failed to count courses by teacher")
	}
	return counts, nil
}

func (s *CourseService) ensureTeacher(ctx context.Context, teacherID *string) error {
	if teacherID == nil {
		return nil
	}
	if _, err := s.teachers.FindByID(ctx, *teacherID); err != nil {
		return lookupError(err, "teacher")
	}
	return nil
}

// invalidate drops cached grade statistics that embed course data.
func (s *CourseService) invalidate(ctx context.Context, id string) {
	s.cache.Invalidate(ctx, fmt.Sprintf(courseCachePatternFmt, id), evaluationTypesCache)
}
