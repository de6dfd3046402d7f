package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gestion-notas-api/internal/models"
	appErrors "github.com/noah-isme/gestion-notas-api/pkg/errors"
	applog "github.com/noah-isme/gestion-notas-api/pkg/logger"
)

type gradeRepository interface {
	List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, int, error)
	ListAll(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, error)
	FindByID(ctx context.Context, id string) (*models.Grade, error)
	FindDetail(ctx context.Context, id string) (*models.GradeDetail, error)
	Create(ctx context.Context, grade *models.Grade) error
	Update(ctx context.Context, grade *models.Grade) error
	Delete(ctx context.Context, id string) error
	Aggregate(ctx context.Context, scope models.GradeScope) (models.GradeAggregate, error)
	CountByEvaluationType(ctx context.Context) ([]models.EvaluationTypeCount, error)
	StudentAveragesForCourse(ctx context.Context, courseID string) ([]models.StudentCourseAverage, error)
}

type studentResolver interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type courseResolver interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type summaryWarmer interface {
	Warm(courseID string)
}

const (
	defaultTopGrades      = 10
	summaryTopGrades      = 5
	evaluationTypesCache  = "grades:evaluation-types"
	courseSummaryCacheFmt = "grades:course:%s:summary"
	courseCachePatternFmt = "grades:course:%s:*"
	allCourseStatsPattern = "grades:course:*"
)

// CreateGradeRequest records one evaluation of a student in a course.
type CreateGradeRequest struct {
	StudentID      string                `json:"student_id" validate:"required"`
	CourseID       string                `json:"course_id" validate:"required"`
	Value          *float64              `json:"value" validate:"required"`
	EvaluationType models.EvaluationType `json:"evaluation_type"`
	Observations   *string               `json:"observations" validate:"omitempty,max=500"`
}

// UpdateGradeRequest replaces the editable fields of a grade. An empty
// evaluation type keeps the current one.
type UpdateGradeRequest struct {
	Value          *float64              `json:"value" validate:"required"`
	EvaluationType models.EvaluationType `json:"evaluation_type"`
	Observations   *string               `json:"observations" validate:"omitempty,max=500"`
}

// BulkGradeItem is one row of a bulk submission.
type BulkGradeItem struct {
	StudentID    string   `json:"student_id" validate:"required"`
	Value        *float64 `json:"value" validate:"required"`
	Observations *string  `json:"observations" validate:"omitempty,max=500"`
}

// BulkCreateGradesRequest records one evaluation for many students of a course.
type BulkCreateGradesRequest struct {
	CourseID       string                `json:"course_id" validate:"required"`
	EvaluationType models.EvaluationType `json:"evaluation_type"`
	Items          []BulkGradeItem       `json:"items" validate:"required,min=1,dive"`
}

// GradeService records grades and derives averages and academic standing.
type GradeService struct {
	grades    gradeRepository
	students  studentResolver
	courses   courseResolver
	tx        txRunner
	cache     *CacheService
	metrics   *MetricsService
	warmer    summaryWarmer
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewGradeService constructs GradeService.
func NewGradeService(grades gradeRepository, students studentResolver, courses courseResolver, tx txRunner, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{
		grades:    grades,
		students:  students,
		courses:   courses,
		tx:        ensureRunner(tx),
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create validates and stores a grade. Student and course must exist.
func (s *GradeService) Create(ctx context.Context, req CreateGradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid grade payload")
	}
	value, err := checkGradeValue(*req.Value)
	if err != nil {
		return nil, err
	}
	evalType, err := evaluationTypeOrDefault(req.EvaluationType, models.EvaluationPartial)
	if err != nil {
		return nil, err
	}

	grade := &models.Grade{
		StudentID:      req.StudentID,
		CourseID:       req.CourseID,
		Value:          value,
		EvaluationType: evalType,
		Observations:   normalizeOptional(req.Observations),
		RecordedAt:     s.now(),
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.resolveReferences(ctx, grade.StudentID, grade.CourseID); err != nil {
			return err
		}
		if err := s.grades.Create(ctx, grade); err != nil {
			return internalError(err, "failed to create grade")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordGrades(grade.EvaluationType, 1)
	s.invalidate(ctx, grade.CourseID)
	applog.WithContext(ctx, s.logger).Info("grade recorded",
		zap.String("grade_id", grade.ID),
		zap.String("student_id", grade.StudentID),
		zap.String("course_id", grade.CourseID),
		zap.Float64("value", grade.Value))
	return grade, nil
}

// BulkCreate records every item or none of them.
func (s *GradeService) BulkCreate(ctx context.Context, req BulkCreateGradesRequest) ([]models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid bulk grade payload")
	}
	evalType, err := evaluationTypeOrDefault(req.EvaluationType, models.EvaluationPartial)
	if err != nil {
		return nil, err
	}

	recordedAt := s.now()
	grades := make([]models.Grade, 0, len(req.Items))
	for i, item := range req.Items {
		value, err := checkGradeValue(*item.Value)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrOutOfRange, fmt.Sprintf("item %d: %s", i, err.Error()))
		}
		grades = append(grades, models.Grade{
			StudentID:      item.StudentID,
			CourseID:       req.CourseID,
			Value:          value,
			EvaluationType: evalType,
			Observations:   normalizeOptional(item.Observations),
			RecordedAt:     recordedAt,
		})
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
			return lookupError(err, "course")
		}
		seen := make(map[string]bool, len(grades))
		for i := range grades {
			if !seen[grades[i].StudentID] {
				if _, err := s.students.FindByID(ctx, grades[i].StudentID); err != nil {
					return lookupError(err, fmt.Sprintf("student %s", grades[i].StudentID))
				}
				seen[grades[i].StudentID] = true
			}
			if err := s.grades.Create(ctx, &grades[i]); err != nil {
				return internalError(err, "failed to create grade")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordGrades(evalType, len(grades))
	s.invalidate(ctx, req.CourseID)
	return grades, nil
}

// Update replaces value, evaluation type and observations. RecordedAt and the
// student/course linkage are left untouched.
func (s *GradeService) Update(ctx context.Context, id string, req UpdateGradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid grade payload")
	}
	value, err := checkGradeValue(*req.Value)
	if err != nil {
		return nil, err
	}

	var grade *models.Grade
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.grades.FindByID(ctx, id)
		if err != nil {
			return lookupError(err, "grade")
		}
		evalType, err := evaluationTypeOrDefault(req.EvaluationType, current.EvaluationType)
		if err != nil {
			return err
		}
		current.Value = value
		current.EvaluationType = evalType
		current.Observations = normalizeOptional(req.Observations)
		current.UpdatedAt = s.now()
		if err := s.grades.Update(ctx, current); err != nil {
			return writeError(err, "grade", "failed to update grade")
		}
		grade = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, grade.CourseID)
	return grade, nil
}

// Delete removes a grade.
func (s *GradeService) Delete(ctx context.Context, id string) error {
	var courseID string
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		grade, err := s.grades.FindByID(ctx, id)
		if err != nil {
			return lookupError(err, "grade")
		}
		if err := s.grades.Delete(ctx, id); err != nil {
			return writeError(err, "grade", "failed to delete grade")
		}
		courseID = grade.CourseID
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, courseID)
	return nil
}

// Get returns a grade with its student and course labels.
func (s *GradeService) Get(ctx context.Context, id string) (*models.GradeDetail, error) {
	grade, err := s.grades.FindDetail(ctx, id)
	if err != nil {
		return nil, lookupError(err, "grade")
	}
	return grade, nil
}

// List returns paginated grades.
func (s *GradeService) List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, *models.Pagination, error) {
	grades, total, err := s.grades.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list grades")
	}
	return grades, paginate(filter.Page, filter.PageSize, total), nil
}

// AverageForStudent is the mean of every grade of a student. No grades averages to 0.
func (s *GradeService) AverageForStudent(ctx context.Context, studentID string) (float64, error) {
	return s.average(ctx, models.GradeScope{StudentID: studentID})
}

// AverageForCourse is the mean of every grade recorded in a course.
func (s *GradeService) AverageForCourse(ctx context.Context, courseID string) (float64, error) {
	return s.average(ctx, models.GradeScope{CourseID: courseID})
}

// AverageForStudentInCourse is the mean the academic status is derived from.
func (s *GradeService) AverageForStudentInCourse(ctx context.Context, studentID, courseID string) (float64, error) {
	return s.average(ctx, models.GradeScope{StudentID: studentID, CourseID: courseID})
}

// AcademicStatus classifies the student's average in a course.
func (s *GradeService) AcademicStatus(ctx context.Context, studentID, courseID string) (models.AcademicStatus, error) {
	avg, err := s.AverageForStudentInCourse(ctx, studentID, courseID)
	if err != nil {
		return "", err
	}
	return models.ClassifyAverage(avg), nil
}

// Passed reports whether the student's average in a course reaches the passing grade.
func (s *GradeService) Passed(ctx context.Context, studentID, courseID string) (bool, error) {
	avg, err := s.AverageForStudentInCourse(ctx, studentID, courseID)
	if err != nil {
		return false, err
	}
	return models.Passes(avg), nil
}

// Standing bundles average, status and pass state of a student in a course.
func (s *GradeService) Standing(ctx context.Context, studentID, courseID string) (*models.StudentStanding, error) {
	agg, err := s.grades.Aggregate(ctx, models.GradeScope{StudentID: studentID, CourseID: courseID})
	if err != nil {
		return nil, internalError(err, "failed to aggregate grades")
	}
	standing := standingOf(studentID, courseID, agg.Count, agg.Sum)
	return &standing, nil
}

// ApprovingGrades returns every grade at or above the passing grade.
func (s *GradeService) ApprovingGrades(ctx context.Context) ([]models.GradeDetail, error) {
	return s.GradesWithMinimum(ctx, models.PassingGrade)
}

// GradesWithMinimum returns every grade whose value is at least threshold.
func (s *GradeService) GradesWithMinimum(ctx context.Context, threshold float64) ([]models.GradeDetail, error) {
	grades, err := s.grades.ListAll(ctx, models.GradeFilter{MinValue: &threshold})
	if err != nil {
		return nil, internalError(err, "failed to list grades")
	}
	return grades, nil
}

// TopGradesForCourse returns the limit highest grades of a course, highest first.
func (s *GradeService) TopGradesForCourse(ctx context.Context, courseID string, limit int) ([]models.GradeDetail, error) {
	if limit <= 0 {
		limit = defaultTopGrades
	}
	grades, err := s.grades.ListAll(ctx, models.GradeFilter{CourseID: courseID})
	if err != nil {
		return nil, internalError(err, "failed to list grades")
	}
	if len(grades) > limit {
		grades = grades[:limit]
	}
	return grades, nil
}

// CountByEvaluationType counts grades per evaluation type. Types without
// grades are absent.
func (s *GradeService) CountByEvaluationType(ctx context.Context) (map[models.EvaluationType]int, error) {
	rows, err := s.grades.CountByEvaluationType(ctx)
	if err != nil {
		return nil, internalError(err, "failed to count grades")
	}
	counts := make(map[models.EvaluationType]int, len(rows))
	for _, row := range rows {
		counts[row.EvaluationType] = row.Total
	}
	return counts, nil
}

// EvaluationTypeCounts lists every evaluation type with its grade count,
// zeros included. The boolean reports a cache hit.
func (s *GradeService) EvaluationTypeCounts(ctx context.Context) ([]models.EvaluationTypeCount, bool, error) {
	return remember(ctx, s.cache, evaluationTypesCache, func(ctx context.Context) ([]models.EvaluationTypeCount, error) {
		counts, err := s.CountByEvaluationType(ctx)
		if err != nil {
			return nil, err
		}
		types := models.EvaluationTypes()
		out := make([]models.EvaluationTypeCount, 0, len(types))
		for _, t := range types {
			out = append(out, models.EvaluationTypeCount{EvaluationType: t, Total: counts[t]})
		}
		return out, nil
	})
}

// CourseSummary aggregates a course's grades and per-student standings. The
// boolean reports a cache hit.
func (s *GradeService) CourseSummary(ctx context.Context, courseID string) (*models.CourseGradeSummary, bool, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, false, lookupError(err, "course")
	}
	key := fmt.Sprintf(courseSummaryCacheFmt, courseID)
	summary, hit, err := remember(ctx, s.cache, key, func(ctx context.Context) (*models.CourseGradeSummary, error) {
		return s.buildCourseSummary(ctx, course)
	})
	if err != nil {
		return nil, false, err
	}
	return summary, hit, nil
}

func (s *GradeService) buildCourseSummary(ctx context.Context, course *models.Course) (*models.CourseGradeSummary, error) {
	start := time.Now()
	agg, err := s.grades.Aggregate(ctx, models.GradeScope{CourseID: course.ID})
	if err != nil {
		return nil, internalError(err, "failed to aggregate grades")
	}
	rows, err := s.grades.StudentAveragesForCourse(ctx, course.ID)
	if err != nil {
		return nil, internalError(err, "failed to aggregate student averages")
	}
	top, err := s.TopGradesForCourse(ctx, course.ID, summaryTopGrades)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveStatistic("course_summary", time.Since(start))

	summary := &models.CourseGradeSummary{
		CourseID:     course.ID,
		CourseCode:   course.Code,
		CourseName:   course.Name,
		Average:      round2(averageOf(agg.Count, agg.Sum)),
		GradeCount:   agg.Count,
		StudentCount: len(rows),
		Students:     make([]models.StudentStanding, 0, len(rows)),
		TopGrades:    top,
		GeneratedAt:  s.now(),
	}
	for _, row := range rows {
		standing := standingOf(row.StudentID, course.ID, row.Count, row.Sum)
		standing.StudentCode = row.StudentCode
		standing.StudentName = row.StudentName
		if standing.Passed {
			summary.PassedCount++
		} else {
			summary.FailedCount++
		}
		summary.Students = append(summary.Students, standing)
	}
	return summary, nil
}

func (s *GradeService) resolveReferences(ctx context.Context, studentID, courseID string) error {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		return lookupError(err, "student")
	}
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		return lookupError(err, "course")
	}
	return nil
}

func (s *GradeService) average(ctx context.Context, scope models.GradeScope) (float64, error) {
	agg, err := s.grades.Aggregate(ctx, scope)
	if err != nil {
		return 0, internalError(err, "failed to aggregate grades")
	}
	return averageOf(agg.Count, agg.Sum), nil
}

// UseWarmer recomputes a course summary after each write that invalidates it.
func (s *GradeService) UseWarmer(w summaryWarmer) {
	s.warmer = w
}

func (s *GradeService) invalidate(ctx context.Context, courseID string) {
	s.cache.Invalidate(ctx, fmt.Sprintf(courseCachePatternFmt, courseID), evaluationTypesCache)
	if s.warmer != nil && s.cache.Enabled() {
		s.warmer.Warm(courseID)
	}
}

// standingOf classifies the unrounded average; the reported figure is rounded.
func standingOf(studentID, courseID string, count int, sum float64) models.StudentStanding {
	avg := averageOf(count, sum)
	return models.StudentStanding{
		StudentID:  studentID,
		CourseID:   courseID,
		Average:    round2(avg),
		GradeCount: count,
		Status:     models.ClassifyAverage(avg),
		Passed:     models.Passes(avg),
	}
}

func averageOf(count int, sum float64) float64 {
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// checkGradeValue rejects values outside the scale before rounding to two decimals.
func checkGradeValue(value float64) (float64, error) {
	if math.IsNaN(value) || value < models.MinGradeValue || value > models.MaxGradeValue {
		return 0, appErrors.Clone(appErrors.ErrOutOfRange, fmt.Sprintf("grade value %.2f must be between 0.00 and 20.00", value))
	}
	return round2(value), nil
}

func evaluationTypeOrDefault(raw, fallback models.EvaluationType) (models.EvaluationType, error) {
	if raw == "" {
		return fallback, nil
	}
	return models.ParseEvaluationType(string(raw))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
