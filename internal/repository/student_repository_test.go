package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gestion-notas-api/internal/models"
	"github.com/noah-isme/gestion-notas-api/pkg/database"
)

var studentRowColumns = []string{"id", "code", "first_names", "last_names", "email", "phone", "address", "district", "photo", "birth_date", "account_id", "created_at", "updated_at"}

func TestStudentRepositoryList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(studentRowColumns).
		AddRow("s1", "EST000001", "Ana", "García Torres", nil, nil, nil, "Miraflores", nil, nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, code, first_names, last_names, email, phone, address, district, photo, birth_date, account_id, created_at, updated_at FROM students WHERE LOWER(district) = LOWER($1) AND (LOWER(first_names) LIKE $2 OR LOWER(last_names) LIKE $2 OR LOWER(code) LIKE $2) ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("Miraflores", "%ana%").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE LOWER(district) = LOWER($1)")).
		WithArgs("Miraflores", "%ana%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.StudentFilter{District: "Miraflores", Search: "ana"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "EST000001", list[0].Code)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryExistsByCode(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students WHERE code = $1 LIMIT 1")).
		WithArgs("EST000001").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	found, err := repo.ExistsByCode(context.Background(), "EST000001", "")
	require.NoError(t, err)
	assert.True(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreateInsideTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO students").
		WithArgs(sqlmock.AnyArg(), "EST000001", "Ana", "García Torres", nil, nil, nil, nil, nil, nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	student := &models.Student{Code: "EST000001", FirstNames: "Ana", LastNames: "García Torres"}
	err := database.NewTransactor(db).WithinTx(context.Background(), func(ctx context.Context) error {
		return repo.Create(ctx, student)
	})
	require.NoError(t, err)
	assert.NotEmpty(t, student.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreateAccountRace(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec("INSERT INTO students").
		WillReturnError(&pq.Error{Code: "23505", Constraint: ConstraintStudentAccount})

	account := "u1"
	err := repo.Create(context.Background(), &models.Student{Code: "EST000002", FirstNames: "Luis", LastNames: "Ruiz", AccountID: &account})
	uv, ok := AsUniqueViolation(err)
	require.True(t, ok)
	assert.Equal(t, ConstraintStudentAccount, uv.Constraint)
}

func TestStudentRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM students WHERE id = $1")).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "s1")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCountByDistrict(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery("SELECT COALESCE\\(district, ''\\) AS district, COUNT\\(\\*\\) AS total FROM students").
		WillReturnRows(sqlmock.NewRows([]string{"district", "total"}).AddRow("Miraflores", 3).AddRow("", 1))

	counts, err := repo.CountByDistrict(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.DistrictCount{{District: "Miraflores", Total: 3}, {District: "", Total: 1}}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListOversizedPageUsesDefault(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE 1=1 ORDER BY created_at DESC LIMIT 20 OFFSET 20")).
		WillReturnRows(sqlmock.NewRows(studentRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, _, err := repo.List(context.Background(), models.StudentFilter{Page: 2, PageSize: 150})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsMalformedID(t *testing.T) {
	assert.True(t, IsMalformedID(fmt.Errorf("find student by id: %w", &pq.Error{Code: "22P02"})))
	assert.False(t, IsMalformedID(&pq.Error{Code: "23505"}))
	assert.False(t, IsMalformedID(sql.ErrNoRows))
}
