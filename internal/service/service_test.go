package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/gestion-notas-api/internal/repository"
	"github.com/noah-isme/gestion-notas-api/pkg/config"
	appErrors "github.com/noah-isme/gestion-notas-api/pkg/errors"
)

func TestStudentServiceGetMalformedIDIsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT .* FROM students WHERE id = \\$1").
		WithArgs("abc").
		WillReturnError(&pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "abc"`})

	repo := repository.NewStudentRepository(sqlx.NewDb(db, "sqlmock"))
	svc := NewStudentService(repo, nil, nil, plainHasher{}, nil, nil, config.CascadeConfig{}, nil, zap.NewNop())

	_, err = svc.Get(context.Background(), "abc")

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Equal(t, http.StatusNotFound, appErr.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMalformedIDErrorMapping(t *testing.T) {
	malformed := fmt.Errorf("list grades: %w", &pq.Error{Code: "22P02"})

	assert.True(t, errors.Is(lookupError(malformed, "course"), appErrors.ErrNotFound))
	assert.True(t, errors.Is(writeError(malformed, "grade", "failed to update grade"), appErrors.ErrNotFound))

	listErr := appErrors.FromError(internalError(malformed, "failed to list grades"))
	assert.Equal(t, appErrors.ErrValidation.Code, listErr.Code)
	assert.Equal(t, http.StatusBadRequest, listErr.Status)

	other := appErrors.FromError(internalError(errors.New("connection reset"), "failed to list grades"))
	assert.Equal(t, appErrors.ErrInternal.Code, other.Code)
}

func TestPaginateMatchesRepositoryWindow(t *testing.T) {
	cases := []struct {
		page, size         int
		wantPage, wantSize int
	}{
		{0, 0, 1, 20},
		{2, 50, 2, 50},
		{1, 100, 1, 100},
		{1, 150, 1, 20},
		{-3, -1, 1, 20},
	}
	for _, tc := range cases {
		p := paginate(tc.page, tc.size, 7)
		assert.Equal(t, tc.wantPage, p.Page, "page %d size %d", tc.page, tc.size)
		assert.Equal(t, tc.wantSize, p.PageSize, "page %d size %d", tc.page, tc.size)
		assert.Equal(t, 7, p.TotalCount)
	}
}
