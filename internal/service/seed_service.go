package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/gestion-notas-api/internal/models"
	"github.com/noah-isme/gestion-notas-api/pkg/config"
	appErrors "github.com/noah-isme/gestion-notas-api/pkg/errors"
)

type seedUserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

// SeedReport counts what a seed run inserted.
type SeedReport struct {
	AdminCreated bool
	Teachers     int
	Students     int
	Courses      int
	Grades       int
}

// SeedService inserts the bootstrap admin and optional demo data. Every step
// is skipped when its record already exists, so runs can be repeated.
type SeedService struct {
	users    seedUserStore
	students *StudentService
	teachers *TeacherService
	courses  *CourseService
	grades   *GradeService
	hasher   PasswordHasher
	cfg      config.SeedConfig
	logger   *zap.Logger
}

// NewSeedService constructs SeedService.
func NewSeedService(users seedUserStore, students *StudentService, teachers *TeacherService, courses *CourseService, grades *GradeService, hasher PasswordHasher, cfg config.SeedConfig, logger *zap.Logger) *SeedService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	return &SeedService{
		users:    users,
		students: students,
		teachers: teachers,
		courses:  courses,
		grades:   grades,
		hasher:   hasher,
		cfg:      cfg,
		logger:   logger,
	}
}

type demoTeacher struct {
	code, first, last, specialty, email string
}

type demoStudent struct {
	code, first, last, district, email string
}

type demoCourse struct {
	code, name, teacherCode string
	credits                 int
}

var (
	demoTeachers = []demoTeacher{
		{"DOC900001", "Rosa", "Huamán Torres", "Matemática", "rosa.huaman@demo.edu.pe"},
		{"DOC900002", "Jorge", "Paz Salinas", "Comunicación", "jorge.paz@demo.edu.pe"},
	}
	demoStudents = []demoStudent{
		{"EST900001", "Ana", "Quispe Mamani", "Lince", "ana.quispe@demo.edu.pe"},
		{"EST900002", "Luis", "Rojas Vega", "Miraflores", "luis.rojas@demo.edu.pe"},
		{"EST900003", "Carla", "Flores Ríos", "Lince", "carla.flores@demo.edu.pe"},
	}
	demoCourses = []demoCourse{
		{"CUR9001", "Álgebra", "DOC900001", 4},
		{"CUR9002", "Redacción", "DOC900002", 3},
	}
	// demoGrades holds one row of values per student, in course order.
	demoGrades = [][]float64{
		{18.5, 17},
		{10, 12.5},
		{14, 15.75},
	}
)

const demoPassword = "demo1234"

// Run seeds the admin account and, when enabled, the demo dataset.
func (s *SeedService) Run(ctx context.Context) (*SeedReport, error) {
	report := &SeedReport{}
	created, err := s.seedAdmin(ctx)
	if err != nil {
		return nil, err
	}
	report.AdminCreated = created
	if !s.cfg.DemoData {
		return report, nil
	}

	teacherIDs := map[string]string{}
	for _, t := range demoTeachers {
		id, inserted, err := s.seedTeacher(ctx, t)
		if err != nil {
			return nil, err
		}
		teacherIDs[t.code] = id
		if inserted {
			report.Teachers++
		}
	}

	studentIDs := make([]string, 0, len(demoStudents))
	for _, st := range demoStudents {
		id, inserted, err := s.seedStudent(ctx, st)
		if err != nil {
			return nil, err
		}
		studentIDs = append(studentIDs, id)
		if inserted {
			report.Students++
		}
	}

	courseIDs := make([]string, 0, len(demoCourses))
	for _, c := range demoCourses {
		id, inserted, err := s.seedCourse(ctx, c, teacherIDs[c.teacherCode])
		if err != nil {
			return nil, err
		}
		courseIDs = append(courseIDs, id)
		if inserted {
			report.Courses++
		}
	}

	for ci, courseID := range courseIDs {
		_, page, err := s.grades.List(ctx, models.GradeFilter{CourseID: courseID, PageSize: 1})
		if err != nil {
			return nil, err
		}
		if page.TotalCount > 0 {
			continue
		}
		items := make([]BulkGradeItem, 0, len(studentIDs))
		for si, studentID := range studentIDs {
			value := demoGrades[si][ci]
			items = append(items, BulkGradeItem{StudentID: studentID, Value: &value})
		}
		grades, err := s.grades.BulkCreate(ctx, BulkCreateGradesRequest{CourseID: courseID, EvaluationType: models.EvaluationPartial, Items: items})
		if err != nil {
			return nil, err
		}
		report.Grades += len(grades)
	}

	s.logger.Info("seed completed",
		zap.Bool("admin_created", report.AdminCreated),
		zap.Int("teachers", report.Teachers),
		zap.Int("students", report.Students),
		zap.Int("courses", report.Courses),
		zap.Int("grades", report.Grades),
	)
	return report, nil
}

func (s *SeedService) seedAdmin(ctx context.Context) (bool, error) {
	email := strings.ToLower(strings.TrimSpace(s.cfg.AdminEmail))
	if email == "" {
		return false, nil
	}
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return false, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return false, internalError(err, "failed to look up admin account")
	}
	if s.cfg.AdminPassword == "" {
		return false, appErrors.Clone(appErrors.ErrValidation, "seed admin password is required")
	}
	hash, err := s.hasher.Hash(s.cfg.AdminPassword)
	if err != nil {
		return false, internalError(err, "failed to hash admin password")
	}
	admin := &models.User{Email: email, PasswordHash: hash, Role: models.RoleAdmin, Active: true}
	if err := s.users.Create(ctx, admin); err != nil {
		return false, writeError(err, "user", "failed to create admin account")
	}
	s.logger.Info("admin account seeded", zap.String("email", email))
	return true, nil
}

func (s *SeedService) seedTeacher(ctx context.Context, t demoTeacher) (string, bool, error) {
	if existing, err := s.teachers.GetByCode(ctx, t.code); err == nil {
		return existing.ID, false, nil
	} else if !errors.Is(err, appErrors.ErrNotFound) {
		return "", false, err
	}
	teacher, err := s.teachers.CreateWithAccount(ctx, RegisterTeacherRequest{
		Email:    t.email,
		Password: demoPassword,
		Profile: CreateTeacherRequest{
			Code:       t.code,
			FirstNames: t.first,
			LastNames:  t.last,
			Specialty:  &t.specialty,
		},
	})
	if err != nil {
		return "", false, err
	}
	return teacher.ID, true, nil
}

func (s *SeedService) seedStudent(ctx context.Context, st demoStudent) (string, bool, error) {
	if existing, err := s.students.GetByCode(ctx, st.code); err == nil {
		return existing.ID, false, nil
	} else if !errors.Is(err, appErrors.ErrNotFound) {
		return "", false, err
	}
	student, err := s.students.CreateWithAccount(ctx, RegisterStudentRequest{
		Email:    st.email,
		Password: demoPassword,
		Profile: CreateStudentRequest{
			Code:       st.code,
			FirstNames: st.first,
			LastNames:  st.last,
			District:   &st.district,
		},
	})
	if err != nil {
		return "", false, err
	}
	return student.ID, true, nil
}

func (s *SeedService) seedCourse(ctx context.Context, c demoCourse, teacherID string) (string, bool, error) {
	if existing, err := s.courses.GetByCode(ctx, c.code); err == nil {
		return existing.ID, false, nil
	} else if !errors.Is(err, appErrors.ErrNotFound) {
		return "", false, err
	}
	req := CreateCourseRequest{Code: c.code, Name: c.name, Credits: &c.credits}
	if teacherID != "" {
		req.TeacherID = &teacherID
	}
	course, err := s.courses.Create(ctx, req)
	if err != nil {
		return "", false, err
	}
	return course.ID, true, nil
}
