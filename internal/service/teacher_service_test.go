package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/gestion-notas-api/internal/models"
	"github.com/noah-isme/gestion-notas-api/internal/repository"
	"github.com/noah-isme/gestion-notas-api/pkg/config"
	appErrors "github.com/noah-isme/gestion-notas-api/pkg/errors"
)

func newTeacherServiceWith(cascade config.CascadeConfig, teachers ...models.Teacher) (*TeacherService, *fakeTeacherRepo, *fakeUserRepo, *fakeBlobStore) {
	repo := newFakeTeacherRepo(teachers...)
	accounts := newFakeUserRepo(
		models.User{ID: "u1", Email: "rosa@colegio.edu.pe", Role: models.RoleTeacher, Active: true},
		models.User{ID: "u2", Email: "jorge@colegio.edu.pe", Role: models.RoleTeacher, Active: true},
	)
	blobs := newFakeBlobStore()
	svc := NewTeacherService(repo, accounts, blobs, plainHasher{}, &fakeTx{}, cascade, nil, zap.NewNop())
	return svc, repo, accounts, blobs
}

func TestTeacherServiceCreate(t *testing.T) {
	svc, repo, _, _ := newTeacherServiceWith(config.CascadeConfig{})
	ctx := context.Background()
	hired := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)

	first, err := svc.Create(ctx, CreateTeacherRequest{FirstNames: " Rosa ", LastNames: "Huamán", Specialty: strPtr("Matemática"), HireDate: &hired})
	require.NoError(t, err)
	assert.Equal(t, "DOC000001", first.Code)
	assert.Equal(t, "Rosa", first.FirstNames)
	assert.Equal(t, hired, *first.HireDate)

	second, err := svc.Create(ctx, CreateTeacherRequest{FirstNames: "Jorge", LastNames: "Paz"})
	require.NoError(t, err)
	assert.Equal(t, "DOC000002", second.Code)

	_, err = svc.Create(ctx, CreateTeacherRequest{Code: "DOC000001", FirstNames: "Otro", LastNames: "Docente"})
	assert.True(t, errors.Is(err, appErrors.ErrDuplicateCode))

	_, err = svc.Create(ctx, CreateTeacherRequest{FirstNames: ""})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Len(t, repo.teachers, 2)
}

func TestTeacherServiceAccountBinding(t *testing.T) {
	svc, repo, _, _ := newTeacherServiceWith(config.CascadeConfig{}, models.Teacher{ID: "t1", Code: "DOC000001", FirstNames: "Rosa", LastNames: "Huamán", AccountID: strPtr("u1")})
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateTeacherRequest{FirstNames: "Jorge", LastNames: "Paz", AccountID: strPtr("u1")})
	assert.True(t, errors.Is(err, appErrors.ErrAccountAlreadyBound))

	_, err = svc.Create(ctx, CreateTeacherRequest{FirstNames: "Jorge", LastNames: "Paz", AccountID: strPtr("nope")})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	repo.createErr = &repository.UniqueViolationError{Constraint: repository.ConstraintTeacherAccount, Err: errors.New("duplicate key")}
	_, err = svc.Create(ctx, CreateTeacherRequest{FirstNames: "Jorge", LastNames: "Paz", AccountID: strPtr("u2")})
	assert.True(t, errors.Is(err, appErrors.ErrAccountAlreadyBound))
}

func TestTeacherServiceUpdate(t *testing.T) {
	svc, _, _, _ := newTeacherServiceWith(config.CascadeConfig{},
		models.Teacher{ID: "t1", Code: "DOC000001", FirstNames: "Rosa", LastNames: "Huamán"},
		models.Teacher{ID: "t2", Code: "DOC000002", FirstNames: "Jorge", LastNames: "Paz", AccountID: strPtr("u2")},
	)
	ctx := context.Background()

	updated, err := svc.Update(ctx, "t1", UpdateTeacherRequest{Code: "DOC-MAT", FirstNames: "Rosa", LastNames: "Huamán", Specialty: strPtr("Física"), AccountID: strPtr("u1")})
	require.NoError(t, err)
	assert.Equal(t, "DOC-MAT", updated.Code)
	assert.Equal(t, "u1", *updated.AccountID)

	_, err = svc.Update(ctx, "t1", UpdateTeacherRequest{Code: "DOC000002", FirstNames: "Rosa", LastNames: "Huamán"})
	assert.True(t, errors.Is(err, appErrors.ErrDuplicateCode))

	_, err = svc.Update(ctx, "t1", UpdateTeacherRequest{FirstNames: "Rosa", LastNames: "Huamán", AccountID: strPtr("u2")})
	assert.True(t, errors.Is(err, appErrors.ErrAccountAlreadyBound))

	_, err = svc.Update(ctx, "ghost", UpdateTeacherRequest{FirstNames: "Rosa", LastNames: "Huamán"})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestTeacherServiceUpdateProfileEmailGoesToAccount(t *testing.T) {
	svc, repo, accounts, _ := newTeacherServiceWith(config.CascadeConfig{},
		models.Teacher{ID: "t1", Code: "DOC000001", FirstNames: "Rosa", LastNames: "Huamán", AccountID: strPtr("u1")},
		models.Teacher{ID: "t2", Code: "DOC000002", FirstNames: "Ana", LastNames: "Soto"},
	)
	ctx := context.Background()

	teacher, err := svc.UpdateProfile(ctx, "t1", UpdateTeacherProfileRequest{Specialty: strPtr("Historia"), Email: strPtr("ROSA.H@colegio.edu.pe")})
	require.NoError(t, err)
	assert.Equal(t, "Historia", *teacher.Specialty)
	assert.Equal(t, "rosa.h@colegio.edu.pe", accounts.users["u1"].Email)

	_, err = svc.UpdateProfile(ctx, "t1", UpdateTeacherProfileRequest{Email: strPtr("jorge@colegio.edu.pe")})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	// an unbound teacher has nowhere to put the email
	unbound, err := svc.UpdateProfile(ctx, "t2", UpdateTeacherProfileRequest{Email: strPtr("ana@colegio.edu.pe"), Phone: strPtr("987654321")})
	require.NoError(t, err)
	assert.Equal(t, "987654321", *unbound.Phone)
	assert.Equal(t, "987654321", *repo.teachers["t2"].Phone)
}

func TestTeacherServiceUpdatePhoto(t *testing.T) {
	svc, repo, _, blobs := newTeacherServiceWith(config.CascadeConfig{}, models.Teacher{ID: "t1", Code: "DOC000001", FirstNames: "Rosa", LastNames: "Huamán", Photo: strPtr("old.png")})
	ctx := context.Background()

	blobs.storeErr = errors.New("disk full")
	_, err := svc.UpdatePhoto(ctx, "t1", "new.png", strings.NewReader("img"))
	require.Error(t, err)
	assert.Equal(t, "old.png", *repo.teachers["t1"].Photo)

	blobs.storeErr = nil
	blobs.deleteErr = errors.New("gone")
	teacher, err := svc.UpdatePhoto(ctx, "t1", "new.png", strings.NewReader("img"))
	require.NoError(t, err)
	assert.Equal(t, "blob-1", *teacher.Photo)
	assert.Equal(t, []string{TeacherPhotoCategory + "/old.png"}, blobs.deleted)
}

func TestTeacherServiceDelete(t *testing.T) {
	seed := models.Teacher{ID: "t1", Code: "DOC000001", FirstNames: "Rosa", LastNames: "Huamán", AccountID: strPtr("u1"), Photo: strPtr("p.png")}

	svc, repo, accounts, blobs := newTeacherServiceWith(config.CascadeConfig{}, seed)
	require.NoError(t, svc.Delete(context.Background(), "t1"))
	assert.Empty(t, repo.teachers)
	assert.Contains(t, accounts.users, "u1")
	assert.Equal(t, []string{TeacherPhotoCategory + "/p.png"}, blobs.deleted)

	svc, _, accounts, _ = newTeacherServiceWith(config.CascadeConfig{AccountOnProfileDelete: true}, seed)
	require.NoError(t, svc.Delete(context.Background(), "t1"))
	assert.NotContains(t, accounts.users, "u1")

	assert.True(t, errors.Is(svc.Delete(context.Background(), "t1"), appErrors.ErrNotFound))
}

func TestTeacherServiceCreateWithAccount(t *testing.T) {
	svc, _, accounts, _ := newTeacherServiceWith(config.CascadeConfig{})

	teacher, err := svc.CreateWithAccount(context.Background(), RegisterTeacherRequest{
		Email:    "nuevo.docente@colegio.edu.pe",
		Password: "secreto",
		Profile:  CreateTeacherRequest{FirstNames: "Nuevo", LastNames: "Docente"},
	})
	require.NoError(t, err)
	require.NotNil(t, teacher.AccountID)
	account := accounts.users[*teacher.AccountID]
	assert.Equal(t, models.RoleTeacher, account.Role)
	assert.Equal(t, "hashed:secreto", account.PasswordHash)
	assert.Equal(t, "DOC000001", teacher.Code)
}

func TestTeacherServiceCountBySpecialty(t *testing.T) {
	svc, _, _, _ := newTeacherServiceWith(config.CascadeConfig{},
		models.Teacher{ID: "t1", Code: "DOC000001", Specialty: strPtr("Arte")},
		models.Teacher{ID: "t2", Code: "DOC000002", Specialty: strPtr("Arte")},
	)

	counts, err := svc.CountBySpecialty(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.SpecialtyCount{{Specialty: "Arte", Total: 2}}, counts)

	list, _, err := svc.List(context.Background(), models.TeacherFilter{Specialty: "Arte"})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestTeacherServiceUpdatePhotoUnknownTeacherReleasesBlob(t *testing.T) {
	svc, _, _, blobs := newTeacherServiceWith(config.CascadeConfig{})

	_, err := svc.UpdatePhoto(context.Background(), "missing", "new.png", strings.NewReader("img"))
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.Equal(t, []string{TeacherPhotoCategory + "/blob-1"}, blobs.deleted)
	assert.Empty(t, blobs.blobs)
}
