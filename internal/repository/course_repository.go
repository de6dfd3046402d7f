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

const courseColumns = `id, code, name, description, credits, active, teacher_id, created_at, updated_at`

const courseDetailSelect = `SELECT c.id, c.code, c.name, c.description, c.credits, c.active, c.teacher_id, c.created_at, c.updated_at,
        t.code AS teacher_code, CASE WHEN t.id IS NULL THEN NULL ELSE t.last_names || ', ' || t.first_names END AS teacher_name
        FROM courses c LEFT JOIN teachers t ON t.id = c.teacher_id`

// CourseRepository manages persistence for courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns courses with their assigned teacher.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	var where conditions
	if filter.Active != nil {
		where.add("c.active = ?", *filter.Active)
	}
	if filter.TeacherID != "" {
		where.add("c.teacher_id = ?", filter.TeacherID)
	}
	if filter.Credits != nil {
		where.add("c.credits = ?", *filter.Credits)
	}
	if filter.MinCredits != nil {
		where.add("c.credits >= ?", *filter.MinCredits)
	}
	if filter.Search != "" {
		where.add("(LOWER(c.name) LIKE ? OR LOWER(c.code) LIKE ?)", likePattern(filter.Search))
	}

	order := orderBy(map[string]string{
		"code":       "c.code",
		"name":       "c.name",
		"credits":    "c.credits",
		"created_at": "c.created_at",
	}, filter.SortBy, filter.SortOrder, "created_at")
	limit, offset := pageWindow(filter.Page, filter.PageSize)

	q := conn(ctx, r.db)
	query := fmt.Sprintf("%s %s ORDER BY %s LIMIT %d OFFSET %d", courseDetailSelect, where.where(), order, limit, offset)
	var courses []models.CourseDetail
	if err := sqlx.SelectContext(ctx, q, &courses, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	var total int
	if err := sqlx.GetContext(ctx, q, &total, "SELECT COUNT(*) FROM courses c "+where.where(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID fetches a course row.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`
	var course models.Course
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &course, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// FindDetail fetches a course with its teacher by id or code.
func (r *CourseRepository) FindDetail(ctx context.Context, column, value string) (*models.CourseDetail, error) {
	if column != "id" && column != "code" {
		return nil, fmt.Errorf("find course detail: unsupported column %q", column)
	}
	query := fmt.Sprintf("%s WHERE c.%s = $1", courseDetailSelect, column)
	var detail models.CourseDetail
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &detail, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find course detail: %w", err)
	}
	return &detail, nil
}

// ExistsByCode checks if another course already uses code.
func (r *CourseRepository) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	query := "SELECT 1 FROM courses WHERE code = $1"
	args := []interface{}{code}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	return exists(ctx, conn(ctx, r.db), "check course code", query, args...)
}

// Count returns the number of courses.
func (r *CourseRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &total, "SELECT COUNT(*) FROM courses"); err != nil {
		return 0, fmt.Errorf("count courses: %w", err)
	}
	return total, nil
}

// Create inserts a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	const query = `INSERT INTO courses (` + courseColumns + `)
        VALUES (:id, :code, :name, :description, :credits, :active, :teacher_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, conn(ctx, r.db), query, course); err != nil {
		return wrapWrite("create course", err)
	}
	return nil
}

// Update modifies code, name, description and credits.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET code = :code, name = :name, description = :description, credits = :credits,
        active = :active, teacher_id = :teacher_id, updated_at = :updated_at WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, conn(ctx, r.db), query, course)
	if err != nil {
		return wrapWrite("update course", err)
	}
	return requireAffected(res, "update course")
}

// SetActive toggles the soft-delete flag.
func (r *CourseRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE courses SET active = $2, updated_at = $3 WHERE id = $1`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set course active: %w", err)
	}
	return requireAffected(res, "set course active")
}

// AssignTeacher overwrites the teacher reference; nil clears it.
func (r *CourseRepository) AssignTeacher(ctx context.Context, id string, teacherID *string) error {
	const query = `UPDATE courses SET teacher_id = $2, updated_at = $3 WHERE id = $1`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, id, teacherID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("assign course teacher: %w", err)
	}
	return requireAffected(res, "assign course teacher")
}

// Delete removes a course. Grades cascade at the schema level.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return requireAffected(res, "delete course")
}

// CountByTeacher groups assigned courses per teacher.
func (r *CourseRepository) CountByTeacher(ctx context.Context) ([]models.TeacherCourseCount, error) {
	const query = `SELECT t.id AS teacher_id, t.code AS teacher_code, t.last_names || ', ' || t.first_names AS teacher_name, COUNT(c.id) AS total
        FROM teachers t JOIN courses c ON c.teacher_id = t.id
        GROUP BY t.id, t.code, t.last_names, t.first_names
        ORDER BY total DESC, t.code ASC`
	var counts []models.TeacherCourseCount
	if err := sqlx.SelectContext(ctx, conn(ctx, r.db), &counts, query); err != nil {
		return nil, fmt.Errorf("count courses by teacher: %w", err)
	}
	return counts, nil
}
