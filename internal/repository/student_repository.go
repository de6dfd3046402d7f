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

const studentColumns = `id, code, first_names, last_names, email, phone, address, district, photo, birth_date, account_id, created_at, updated_at`

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	var where conditions
	if filter.District != "" {
		where.add("LOWER(district) = LOWER(?)", filter.District)
	}
	if filter.Search != "" {
		where.add("(LOWER(first_names) LIKE ? OR LOWER(last_names) LIKE ? OR LOWER(code) LIKE ?)", likePattern(filter.Search))
	}

	order := orderBy(map[string]string{
		"code":       "code",
		"last_names": "last_names",
		"district":   "district",
		"created_at": "created_at",
	}, filter.SortBy, filter.SortOrder, "created_at")
	limit, offset := pageWindow(filter.Page, filter.PageSize)

	q := conn(ctx, r.db)
	query := fmt.Sprintf("SELECT %s FROM students %s ORDER BY %s LIMIT %d OFFSET %d", studentColumns, where.where(), order, limit, offset)
	var students []models.Student
	if err := sqlx.SelectContext(ctx, q, &students, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := sqlx.GetContext(ctx, q, &total, "SELECT COUNT(*) FROM students "+where.where(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	return r.findOne(ctx, "id", id)
}

// FindByCode fetches a student by code.
func (r *StudentRepository) FindByCode(ctx context.Context, code string) (*models.Student, error) {
	return r.findOne(ctx, "code", code)
}

// FindByAccountID fetches the student bound to an account.
func (r *StudentRepository) FindByAccountID(ctx context.Context, accountID string) (*models.Student, error) {
	return r.findOne(ctx, "account_id", accountID)
}

func (r *StudentRepository) findOne(ctx context.Context, column, value string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE %s = $1", studentColumns, column)
	var student models.Student
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &student, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student by %s: %w", column, err)
	}
	return &student, nil
}

// ExistsByCode checks if a student with given code exists optionally excluding an ID.
func (r *StudentRepository) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	query := "SELECT 1 FROM students WHERE code = $1"
	args := []interface{}{code}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	return exists(ctx, conn(ctx, r.db), "check student code", query, args...)
}

// ExistsByAccount checks if any other student is bound to accountID.
func (r *StudentRepository) ExistsByAccount(ctx context.Context, accountID, excludeID string) (bool, error) {
	query := "SELECT 1 FROM students WHERE account_id = $1"
	args := []interface{}{accountID}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	return exists(ctx, conn(ctx, r.db), "check student account", query, args...)
}

// Count returns the number of students.
func (r *StudentRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &total, "SELECT COUNT(*) FROM students"); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return total, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (` + studentColumns + `)
        VALUES (:id, :code, :first_names, :last_names, :email, :phone, :address, :district, :photo, :birth_date, :account_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, conn(ctx, r.db), query, student); err != nil {
		return wrapWrite("create student", err)
	}
	return nil
}

// Update modifies an existing student.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET code = :code, first_names = :first_names, last_names = :last_names, email = :email, phone = :phone,
        address = :address, district = :district, photo = :photo, birth_date = :birth_date, account_id = :account_id, updated_at = :updated_at
        WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, conn(ctx, r.db), query, student)
	if err != nil {
		return wrapWrite("update student", err)
	}
	return requireAffected(res, "update student")
}

// UnlinkAccount clears the account binding of whichever student holds accountID.
func (r *StudentRepository) UnlinkAccount(ctx context.Context, accountID string) error {
	const query = `UPDATE students SET account_id = NULL, updated_at = $2 WHERE account_id = $1`
	if _, err := conn(ctx, r.db).ExecContext(ctx, query, accountID, time.Now().UTC()); err != nil {
		return fmt.Errorf("unlink student account: %w", err)
	}
	return nil
}

// Delete removes a student. Grades cascade at the schema level.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return requireAffected(res, "delete student")
}

// CountByDistrict groups students by district, most populated first.
func (r *StudentRepository) CountByDistrict(ctx context.Context) ([]models.DistrictCount, error) {
	const query = `SELECT COALESCE(district, '') AS district, COUNT(*) AS total FROM students GROUP BY COALESCE(district, '') ORDER BY total DESC, district ASC`
	var counts []models.DistrictCount
	if err := sqlx.SelectContext(ctx, conn(ctx, r.db), &counts, query); err != nil {
		return nil, fmt.Errorf("count students by district: %w", err)
	}
	return counts, nil
}
