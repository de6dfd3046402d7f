package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/gestion-notas-api/internal/models"
	appErrors "github.com/noah-isme/gestion-notas-api/pkg/errors"
)

func newAuthFixture() (*AuthService, *fakeUserRepo) {
	users := newFakeUserRepo(
		models.User{ID: "u1", Email: "ana@colegio.edu.pe", PasswordHash: "hashed:secreto", Role: models.RoleStudent, Active: true},
		models.User{ID: "u2", Email: "rosa@colegio.edu.pe", PasswordHash: "hashed:secreto", Role: models.RoleTeacher, Active: true},
		models.User{ID: "u3", Email: "baja@colegio.edu.pe", PasswordHash: "hashed:secreto", Role: models.RoleAdmin, Active: false},
	)
	students := newFakeStudentRepo(models.Student{ID: "s1", Code: "EST000001", FirstNames: "Ana", LastNames: "Quispe", AccountID: strPtr("u1")})
	teachers := newFakeTeacherRepo()
	svc := NewAuthService(users, students, teachers, plainHasher{}, nil, zap.NewNop(), AuthConfig{
		AccessTokenSecret: "test-secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "gestion-notas-api",
	})
	return svc, users
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	svc, users := newAuthFixture()

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "ANA@colegio.edu.pe", Password: "secreto", IP: "127.0.0.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "u1", resp.User.ID)
	require.NotNil(t, resp.Student)
	assert.Equal(t, "EST000001", resp.Student.Code)
	assert.Nil(t, resp.Teacher)

	assert.True(t, users.lastLogin["u1"])
	require.Len(t, users.auditLogs, 1)
	assert.Equal(t, models.AuditActionLogin, users.auditLogs[0].Action)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestAuthServiceLoginTeacherWithoutProfile(t *testing.T) {
	svc, _ := newAuthFixture()

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "rosa@colegio.edu.pe", Password: "secreto"})
	require.NoError(t, err)
	assert.Nil(t, resp.Teacher)
	assert.Nil(t, resp.Student)
	assert.Equal(t, models.RoleTeacher, resp.User.Role)
}

func TestAuthServiceLoginFailures(t *testing.T) {
	svc, users := newAuthFixture()
	ctx := context.Background()

	_, err := svc.Login(ctx, models.LoginRequest{Email: "ana@colegio.edu.pe", Password: "wrong"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))

	_, err = svc.Login(ctx, models.LoginRequest{Email: "nadie@colegio.edu.pe", Password: "secreto"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))

	_, err = svc.Login(ctx, models.LoginRequest{Email: "baja@colegio.edu.pe", Password: "secreto"})
	assert.True(t, errors.Is(err, appErrors.ErrInactiveAccount))

	// an inactive account with a wrong password does not reveal its status
	_, err = svc.Login(ctx, models.LoginRequest{Email: "baja@colegio.edu.pe", Password: "wrong"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))

	_, err = svc.Login(ctx, models.LoginRequest{Email: "bad"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, users.auditLogs)
}

func TestAuthServiceMe(t *testing.T) {
	svc, _ := newAuthFixture()

	profile, err := svc.Me(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "ana@colegio.edu.pe", profile.User.Email)
	require.NotNil(t, profile.Student)
	assert.Equal(t, "s1", profile.Student.ID)

	_, err = svc.Me(context.Background(), "ghost")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestAuthServiceChangePassword(t *testing.T) {
	svc, users := newAuthFixture()
	ctx := context.Background()

	err := svc.ChangePassword(ctx, "u1", models.ChangePasswordRequest{OldPassword: "wrong", NewPassword: "nuevaclave"})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	require.NoError(t, svc.ChangePassword(ctx, "u1", models.ChangePasswordRequest{OldPassword: "secreto", NewPassword: "nuevaclave"}))
	assert.Equal(t, "hashed:nuevaclave", users.users["u1"].PasswordHash)

	_, err = svc.Login(ctx, models.LoginRequest{Email: "ana@colegio.edu.pe", Password: "nuevaclave"})
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, "u1", models.ChangePasswordRequest{OldPassword: "nuevaclave", NewPassword: "123"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestAuthServiceValidateTokenRejects(t *testing.T) {
	svc, _ := newAuthFixture()

	_, err := svc.ValidateToken("not-a-token")
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	now := time.Now()
	sign := func(secret, issuer string, expires time.Time) string {
		claims := &models.JWTClaims{UserID: "u1", Role: models.RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
		}}
		token, signErr := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, signErr)
		return token
	}

	_, err = svc.ValidateToken(sign("other-secret", "gestion-notas-api", now.Add(time.Hour)))
	assert.Error(t, err)
	_, err = svc.ValidateToken(sign("test-secret", "someone-else", now.Add(time.Hour)))
	assert.Error(t, err)
	_, err = svc.ValidateToken(sign("test-secret", "gestion-notas-api", now.Add(-time.Hour)))
	assert.Error(t, err)

	claims, err := svc.ValidateToken(sign("test-secret", "gestion-notas-api", now.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}
