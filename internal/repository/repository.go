package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/gestion-notas-api/internal/models"
	"github.com/noah-isme/gestion-notas-api/pkg/database"
)

// Unique constraints declared by the schema.
const (
	ConstraintUserEmail       = "users_email_key"
	ConstraintStudentCode     = "students_code_key"
	ConstraintStudentAccount  = "students_account_id_key"
	ConstraintTeacherCode     = "teachers_code_key"
	ConstraintTeacherAccount  = "teachers_account_id_key"
	ConstraintCourseCode      = "courses_code_key"
	pqUniqueViolationSQLState = "23505"
	pqInvalidTextSQLState     = "22P02"
)

// UniqueViolationError reports that a write lost a race on a unique constraint.
type UniqueViolationError struct {
	Constraint string
	Err        error
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("unique violation on %s: %v", e.Constraint, e.Err)
}

func (e *UniqueViolationError) Unwrap() error { return e.Err }

// AsUniqueViolation extracts a UniqueViolationError from err.
func AsUniqueViolation(err error) (*UniqueViolationError, bool) {
	var uv *UniqueViolationError
	if errors.As(err, &uv) {
		return uv, true
	}
	return nil, false
}

// IsMalformedID reports that the store rejected a value it could not parse
// into the column type, such as a non-UUID id.
func IsMalformedID(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pqInvalidTextSQLState
}

// wrapWrite annotates a write error, surfacing pq unique violations as
// UniqueViolationError.
func wrapWrite(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolationSQLState {
		return fmt.Errorf("%s: %w", op, &UniqueViolationError{Constraint: pqErr.Constraint, Err: err})
	}
	return fmt.Errorf("%s: %w", op, err)
}

// requireAffected turns a zero-row update or delete into sql.ErrNoRows.
func requireAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// exists runs a "SELECT 1 ... LIMIT 1" style query.
func exists(ctx context.Context, q sqlx.QueryerContext, op, query string, args ...interface{}) (bool, error) {
	var found int
	if err := sqlx.GetContext(ctx, q, &found, query+" LIMIT 1", args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// pageWindow normalises pagination input into limit and offset.
func pageWindow(page, size int) (limit, offset int) {
	page, size = models.NormalizePage(page, size)
	return size, (page - 1) * size
}

// orderBy resolves a whitelisted sort column and direction.
func orderBy(allowed map[string]string, sortBy, sortOrder, fallback string) string {
	column, ok := allowed[sortBy]
	if !ok {
		column = allowed[fallback]
	}
	order := strings.ToUpper(sortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	return column + " " + order
}

type conditions struct {
	clauses []string
	args    []interface{}
}

// add appends a clause whose "?" markers are rewritten to the next positional
// parameters, all bound to value.
func (c *conditions) add(clause string, value interface{}) {
	c.args = append(c.args, value)
	c.clauses = append(c.clauses, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(c.args))))
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return "WHERE 1=1"
	}
	return "WHERE " + strings.Join(c.clauses, " AND ")
}

func likePattern(term string) string {
	return "%" + strings.ToLower(strings.TrimSpace(term)) + "%"
}

func conn(ctx context.Context, db *sqlx.DB) database.Executor {
	return database.Conn(ctx, db)
}
