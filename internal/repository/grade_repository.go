package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gestion-notas-api/internal/models"
)

const gradeDetailSelect = `SELECT g.id, g.student_id, g.course_id, g.value, g.evaluation_type, g.observations, g.recorded_at, g.updated_at,
        s.code AS student_code, s.last_names || ', ' || s.first_names AS student_name,
        c.code AS course_code, c.name AS course_name
        FROM grades g
        JOIN students s ON s.id = g.student_id
        JOIN courses c ON c.id = g.course_id`

// GradeRepository handles grade persistence and aggregates.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository creates a new grade repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// List returns a page of grades matching the filter.
func (r *GradeRepository) List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, int, error) {
	where := gradeConditions(filter)
	order := orderBy(map[string]string{
		"value":       "g.value",
		"recorded_at": "g.recorded_at",
		"student":     "s.last_names",
		"course":      "c.name",
	}, filter.SortBy, filter.SortOrder, "recorded_at")
	limit, offset := pageWindow(filter.Page, filter.PageSize)

	q := conn(ctx, r.db)
	query := fmt.Sprintf("%s %s ORDER BY %s, g.id LIMIT %d OFFSET %d", gradeDetailSelect, where.where(), order, limit, offset)
	var grades []models.GradeDetail
	if err := sqlx.SelectContext(ctx, q, &grades, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list grades: %w", err)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM grades g " + where.where()
	if err := sqlx.GetContext(ctx, q, &total, countQuery, where.args...); err != nil {
		return nil, 0, fmt.Errorf("count grades: %w", err)
	}
	return grades, total, nil
}

// ListAll returns every grade matching the filter ordered by value, highest first.
// Pagination fields are ignored.
func (r *GradeRepository) ListAll(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, error) {
	where := gradeConditions(filter)
	query := fmt.Sprintf("%s %s ORDER BY g.value DESC, g.recorded_at ASC, g.id", gradeDetailSelect, where.where())
	var grades []models.GradeDetail
	if err := sqlx.SelectContext(ctx, conn(ctx, r.db), &grades, query, where.args...); err != nil {
		return nil, fmt.Errorf("list all grades: %w", err)
	}
	return grades, nil
}

func gradeConditions(filter models.GradeFilter) conditions {
	var where conditions
	if filter.StudentID != "" {
		where.add("g.student_id = ?", filter.StudentID)
	}
	if filter.CourseID != "" {
		where.add("g.course_id = ?", filter.CourseID)
	}
	if filter.EvaluationType != nil {
		where.add("g.evaluation_type = ?", *filter.EvaluationType)
	}
	if filter.MinValue != nil {
		where.add("g.value >= ?", *filter.MinValue)
	}
	return where
}

// FindByID fetches a single grade row.
func (r *GradeRepository) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	const query = `SELECT id, student_id, course_id, value, evaluation_type, observations, recorded_at, updated_at FROM grades WHERE id = $1`
	var grade models.Grade
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &grade, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find grade: %w", err)
	}
	return &grade, nil
}

// FindDetail fetches a grade with student and course labels.
func (r *GradeRepository) FindDetail(ctx context.Context, id string) (*models.GradeDetail, error) {
	var detail models.GradeDetail
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &detail, gradeDetailSelect+" WHERE g.id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find grade detail: %w", err)
	}
	return &detail, nil
}

// Create inserts a grade. RecordedAt defaults to now.
func (r *GradeRepository) Create(ctx context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if grade.RecordedAt.IsZero() {
		grade.RecordedAt = now
	}
	grade.UpdatedAt = now
	const query = `INSERT INTO grades (id, student_id, course_id, value, evaluation_type, observations, recorded_at, updated_at)
        VALUES (:id, :student_id, :course_id, :value, :evaluation_type, :observations, :recorded_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, conn(ctx, r.db), query, grade); err != nil {
		return wrapWrite("create grade", err)
	}
	return nil
}

// Update rewrites value, evaluation type and observations. recorded_at is
// deliberately absent from the statement.
func (r *GradeRepository) Update(ctx context.Context, grade *models.Grade) error {
	grade.UpdatedAt = time.Now().UTC()
	const query = `UPDATE grades SET value = :value, evaluation_type = :evaluation_type, observations = :observations, updated_at = :updated_at WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, conn(ctx, r.db), query, grade)
	if err != nil {
		return fmt.Errorf("update grade: %w", err)
	}
	return requireAffected(res, "update grade")
}

// Delete removes a grade.
func (r *GradeRepository) Delete(ctx context.Context, id string) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM grades WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete grade: %w", err)
	}
	return requireAffected(res, "delete grade")
}

// Aggregate returns count and sum of grade values inside scope.
func (r *GradeRepository) Aggregate(ctx context.Context, scope models.GradeScope) (models.GradeAggregate, error) {
	where := gradeConditions(models.GradeFilter{StudentID: scope.StudentID, CourseID: scope.CourseID})
	query := "SELECT COUNT(*) AS count, COALESCE(SUM(g.value), 0) AS sum FROM grades g " + where.where()
	var agg models.GradeAggregate
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &agg, query, where.args...); err != nil {
		return models.GradeAggregate{}, fmt.Errorf("aggregate grades: %w", err)
	}
	return agg, nil
}

// CountByEvaluationType groups all grades by evaluation type.
func (r *GradeRepository) CountByEvaluationType(ctx context.Context) ([]models.EvaluationTypeCount, error) {
	const query = `SELECT evaluation_type, COUNT(*) AS total FROM grades GROUP BY evaluation_type ORDER BY evaluation_type`
	var counts []models.EvaluationTypeCount
	if err := sqlx.SelectContext(ctx, conn(ctx, r.db), &counts, query); err != nil {
		return nil, fmt.Errorf("count grades by evaluation type: %w", err)
	}
	return counts, nil
}

// StudentAveragesForCourse returns per-student counts and sums inside a course.
func (r *GradeRepository) StudentAveragesForCourse(ctx context.Context, courseID string) ([]models.StudentCourseAverage, error) {
	const query = `SELECT s.id AS student_id, s.code AS student_code, s.last_names || ', ' || s.first_names AS student_name,
        COUNT(g.id) AS count, COALESCE(SUM(g.value), 0) AS sum
        FROM grades g JOIN students s ON s.id = g.student_id
        WHERE g.course_id = $1
        GROUP BY s.id, s.code, s.last_names, s.first_names
        ORDER BY s.last_names, s.first_names`
	var rows []models.StudentCourseAverage
	if err := sqlx.SelectContext(ctx, conn(ctx, r.db), &rows, query, courseID); err != nil {
		return nil, fmt.Errorf("student averages for course: %w", err)
	}
	return rows, nil
}
