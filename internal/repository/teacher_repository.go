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

const teacherColumns = `id, code, first_names, last_names, phone, specialty, address, district, photo, hire_date, account_id, created_at, updated_at`

// TeacherRepository handles persistence for teacher records.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a new repository instance.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// List returns paginated teachers with total count.
func (r *TeacherRepository) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	var where conditions
	if filter.Specialty != "" {
		where.add("LOWER(specialty) = LOWER(?)", filter.Specialty)
	}
	if filter.District != "" {
		where.add("LOWER(district) = LOWER(?)", filter.District)
	}
	if filter.Search != "" {
		where.add("(LOWER(first_names) LIKE ? OR LOWER(last_names) LIKE ? OR LOWER(code) LIKE ?)", likePattern(filter.Search))
	}

	order := orderBy(map[string]string{
		"code":       "code",
		"last_names": "last_names",
		"specialty":  "specialty",
		"hire_date":  "hire_date",
		"created_at": "created_at",
	}, filter.SortBy, filter.SortOrder, "created_at")
	limit, offset := pageWindow(filter.Page, filter.PageSize)

	q := conn(ctx, r.db)
	query := fmt.Sprintf("SELECT %s FROM teachers %s ORDER BY %s LIMIT %d OFFSET %d", teacherColumns, where.where(), order, limit, offset)
	var teachers []models.Teacher
	if err := sqlx.SelectContext(ctx, q, &teachers, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list teachers: %w", err)
	}

	var total int
	if err := sqlx.GetContext(ctx, q, &total, "SELECT COUNT(*) FROM teachers "+where.where(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count teachers: %w", err)
	}
	return teachers, total, nil
}

// FindByID fetches a teacher by ID.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	return r.findOne(ctx, "id", id)
}

// FindByCode fetches a teacher by code.
func (r *TeacherRepository) FindByCode(ctx context.Context, code string) (*models.Teacher, error) {
	return r.findOne(ctx, "code", code)
}

// FindByAccountID fetches the teacher bound to an account.
func (r *TeacherRepository) FindByAccountID(ctx context.Context, accountID string) (*models.Teacher, error) {
	return r.findOne(ctx, "account_id", accountID)
}

func (r *TeacherRepository) findOne(ctx context.Context, column, value string) (*models.Teacher, error) {
	query := fmt.Sprintf("SELECT %s FROM teachers WHERE %s = $1", teacherColumns, column)
	var teacher models.Teacher
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &teacher, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find teacher by %s: %w", column, err)
	}
	return &teacher, nil
}

// ExistsByCode checks if another teacher already uses code.
func (r *TeacherRepository) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	query := "SELECT 1 FROM teachers WHERE code = $1"
	args := []interface{}{code}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	return exists(ctx, conn(ctx, r.db), "check teacher code", query, args...)
}

// ExistsByAccount checks if another teacher is bound to accountID.
func (r *TeacherRepository) ExistsByAccount(ctx context.Context, accountID, excludeID string) (bool, error) {
	query := "SELECT 1 FROM teachers WHERE account_id = $1"
	args := []interface{}{accountID}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	return exists(ctx, conn(ctx, r.db), "check teacher account", query, args...)
}

// Count returns the number of teachers.
func (r *TeacherRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &total, "SELECT COUNT(*) FROM teachers"); err != nil {
		return 0, fmt.Errorf("count teachers: %w", err)
	}
	return total, nil
}

// Create inserts a new teacher.
func (r *TeacherRepository) Create(ctx context.Context, teacher *models.Teacher) error {
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if teacher.CreatedAt.IsZero() {
		teacher.CreatedAt = now
	}
	teacher.UpdatedAt = now
	const query = `INSERT INTO teachers (` + teacherColumns + `)
        VALUES (:id, :code, :first_names, :last_names, :phone, :specialty, :address, :district, :photo, :hire_date, :account_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, conn(ctx, r.db), query, teacher); err != nil {
		return wrapWrite("create teacher", err)
	}
	return nil
}

// Update modifies an existing teacher.
func (r *TeacherRepository) Update(ctx context.Context, teacher *models.Teacher) error {
	teacher.UpdatedAt = time.Now().UTC()
	const query = `UPDATE teachers SET code = :code, first_names = :first_names, last_names = :last_names, phone = :phone, specialty = :specialty,
        address = :address, district = :district, photo = :photo, hire_date = :hire_date, account_id = :account_id, updated_at = :updated_at
        WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, conn(ctx, r.db), query, teacher)
	if err != nil {
		return wrapWrite("update teacher", err)
	}
	return requireAffected(res, "update teacher")
}

// UnlinkAccount clears the account binding of whichever teacher holds accountID.
func (r *TeacherRepository) UnlinkAccount(ctx context.Context, accountID string) error {
	const query = `UPDATE teachers SET account_id = NULL, updated_at = $2 WHERE account_id = $1`
	if _, err := conn(ctx, r.db).ExecContext(ctx, query, accountID, time.Now().UTC()); err != nil {
		return fmt.Errorf("unlink teacher account: %w", err)
	}
	return nil
}

// Delete removes a teacher. Assigned courses keep existing without a teacher.
func (r *TeacherRepository) Delete(ctx context.Context, id string) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM teachers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete teacher: %w", err)
	}
	return requireAffected(res, "delete teacher")
}

// CountBySpecialty groups teachers by specialty.
func (r *TeacherRepository) CountBySpecialty(ctx context.Context) ([]models.SpecialtyCount, error) {
	const query = `SELECT COALESCE(specialty, '') AS specialty, COUNT(*) AS total FROM teachers GROUP BY COALESCE(specialty, '') ORDER BY total DESC, specialty ASC`
	var counts []models.SpecialtyCount
	if err := sqlx.SelectContext(ctx, conn(ctx, r.db), &counts, query); err != nil {
		return nil, fmt.Errorf("count teachers by specialty: %w", err)
	}
	return counts, nil
}
