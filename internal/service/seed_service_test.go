package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/gestion-notas-api/internal/models"
	"github.com/noah-isme/gestion-notas-api/pkg/config"
	appErrors "github.com/noah-isme/gestion-notas-api/pkg/errors"
)

type seedFixture struct {
	svc      *SeedService
	users    *fakeUserRepo
	students *fakeStudentRepo
	teachers *fakeTeacherRepo
	courses  *fakeCourseRepo
	grades   *fakeGradeRepo
}

func newSeedFixture(cfg config.SeedConfig) *seedFixture {
	f := &seedFixture{
		users:    newFakeUserRepo(),
		students: newFakeStudentRepo(),
		teachers: newFakeTeacherRepo(),
		courses:  newFakeCourseRepo(),
		grades:   &fakeGradeRepo{},
	}
	tx := &fakeTx{}
	logger := zap.NewNop()
	studentSvc := NewStudentService(f.students, f.users, newFakeBlobStore(), plainHasher{}, tx, nil, config.CascadeConfig{}, nil, logger)
	teacherSvc := NewTeacherService(f.teachers, f.users, newFakeBlobStore(), plainHasher{}, tx, config.CascadeConfig{}, nil, logger)
	courseSvc := NewCourseService(f.courses, f.teachers, tx, nil, nil, logger)
	gradeSvc := NewGradeService(f.grades, f.students, f.courses, tx, nil, nil, nil, logger)
	f.svc = NewSeedService(f.users, studentSvc, teacherSvc, courseSvc, gradeSvc, plainHasher{}, cfg, logger)
	return f
}

func TestSeedServiceAdminOnly(t *testing.T) {
	f := newSeedFixture(config.SeedConfig{AdminEmail: "Admin@Colegio.edu.pe", AdminPassword: "admin123"})

	report, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.AdminCreated)
	require.Len(t, f.users.users, 1)
	for _, u := range f.users.users {
		assert.Equal(t, "admin@colegio.edu.pe", u.Email)
		assert.Equal(t, models.RoleAdmin, u.Role)
		assert.Equal(t, "hashed:admin123", u.PasswordHash)
	}
	assert.Empty(t, f.students.students)

	report, err = f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.AdminCreated)
	assert.Len(t, f.users.users, 1)
}

func TestSeedServiceRequiresAdminPassword(t *testing.T) {
	f := newSeedFixture(config.SeedConfig{AdminEmail: "admin@colegio.edu.pe"})

	_, err := f.svc.Run(context.Background())
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestSeedServiceDemoDataIsIdempotent(t *testing.T) {
	f := newSeedFixture(config.SeedConfig{DemoData: true})
	ctx := context.Background()

	report, err := f.svc.Run(ctx)
	require.NoError(t, err)
	assert.False(t, report.AdminCreated)
	assert.Equal(t, len(demoTeachers), report.Teachers)
	assert.Equal(t, len(demoStudents), report.Students)
	assert.Equal(t, len(demoCourses), report.Courses)
	assert.Equal(t, len(demoStudents)*len(demoCourses), report.Grades)
	assert.Len(t, f.users.users, len(demoTeachers)+len(demoStudents))

	for _, c := range f.courses.courses {
		assert.NotNil(t, c.TeacherID)
	}

	again, err := f.svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, &SeedReport{}, again)
	assert.Len(t, f.grades.grades, len(demoStudents)*len(demoCourses))
}
