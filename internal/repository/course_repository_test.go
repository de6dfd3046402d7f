package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gestion-notas-api/internal/models"
)

var courseDetailColumns = []string{"id", "code", "name", "description", "credits", "active", "teacher_id", "created_at", "updated_at", "teacher_code", "teacher_name"}

func TestCourseRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	active := true
	minCredits := 4
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE c.active = $1 AND c.teacher_id = $2 AND c.credits >= $3 ORDER BY c.name ASC LIMIT 20 OFFSET 0")).
		WithArgs(true, "t1", 4).
		WillReturnRows(sqlmock.NewRows(courseDetailColumns).
			AddRow("c1", "CUR0001", "Matemática I", nil, 4, true, "t1", now, now, "DOC000001", "Rodríguez Pérez, Carlos"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM courses c WHERE c.active = $1 AND c.teacher_id = $2 AND c.credits >= $3")).
		WithArgs(true, "t1", 4).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.CourseFilter{
		Active: &active, TeacherID: "t1", MinCredits: &minCredits, SortBy: "name", SortOrder: "ASC",
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Rodríguez Pérez, Carlos", *list[0].TeacherName)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryAssignTeacher(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	teacherID := "t2"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET teacher_id = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("c1", "t2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET teacher_id = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("missing", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.AssignTeacher(context.Background(), "c1", &teacherID))
	err := repo.AssignTeacher(context.Background(), "missing", nil)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryFindDetailRejectsColumn(t *testing.T) {
	db, _, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	_, err := repo.FindDetail(context.Background(), "name; DROP TABLE courses", "x")
	assert.Error(t, err)
}

func TestCourseRepositorySetActive(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET active = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("c1", false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetActive(context.Background(), "c1", false))
	assert.NoError(t, mock.ExpectationsWereMet())
}
