package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/gestion-notas-api/internal/models"
)

type fakeTx struct {
	calls int
}

func (f *fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

// fakeGradeRepo keeps grades in insertion order.
type fakeGradeRepo struct {
	grades    []*models.Grade
	createErr error
	aggErr    error
	updates   int
}

func (f *fakeGradeRepo) detail(g *models.Grade) models.GradeDetail {
	return models.GradeDetail{Grade: *g}
}

func (f *fakeGradeRepo) matching(filter models.GradeFilter) []*models.Grade {
	var out []*models.Grade
	for _, g := range f.grades {
		if filter.StudentID != "" && g.StudentID != filter.StudentID {
			continue
		}
		if filter.CourseID != "" && g.CourseID != filter.CourseID {
			continue
		}
		if filter.EvaluationType != nil && g.EvaluationType != *filter.EvaluationType {
			continue
		}
		if filter.MinValue != nil && g.Value < *filter.MinValue {
			continue
		}
		out = append(out, g)
	}
	return out
}

func (f *fakeGradeRepo) List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, int, error) {
	matched := f.matching(filter)
	out := make([]models.GradeDetail, 0, len(matched))
	for _, g := range matched {
		out = append(out, f.detail(g))
	}
	return out, len(out), nil
}

func (f *fakeGradeRepo) ListAll(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, error) {
	out, _, _ := f.List(ctx, filter)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	return out, nil
}

func (f *fakeGradeRepo) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	for _, g := range f.grades {
		if g.ID == id {
			copy := *g
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeGradeRepo) FindDetail(ctx context.Context, id string) (*models.GradeDetail, error) {
	g, err := f.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d := f.detail(g)
	return &d, nil
}

func (f *fakeGradeRepo) Create(ctx context.Context, grade *models.Grade) error {
	if f.createErr != nil {
		return f.createErr
	}
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	copy := *grade
	f.grades = append(f.grades, &copy)
	return nil
}

func (f *fakeGradeRepo) Update(ctx context.Context, grade *models.Grade) error {
	for _, g := range f.grades {
		if g.ID == grade.ID {
			// only the editable columns, as the real statement does
			g.Value = grade.Value
			g.EvaluationType = grade.EvaluationType
			g.Observations = grade.Observations
			g.UpdatedAt = grade.UpdatedAt
			f.updates++
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeGradeRepo) Delete(ctx context.Context, id string) error {
	for i, g := range f.grades {
		if g.ID == id {
			f.grades = append(f.grades[:i], f.grades[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeGradeRepo) Aggregate(ctx context.Context, scope models.GradeScope) (models.GradeAggregate, error) {
	if f.aggErr != nil {
		return models.GradeAggregate{}, f.aggErr
	}
	var agg models.GradeAggregate
	for _, g := range f.matching(models.GradeFilter{StudentID: scope.StudentID, CourseID: scope.CourseID}) {
		agg.Count++
		agg.Sum += g.Value
	}
	return agg, nil
}

func (f *fakeGradeRepo) CountByEvaluationType(ctx context.Context) ([]models.EvaluationTypeCount, error) {
	counts := map[models.EvaluationType]int{}
	for _, g := range f.grades {
		counts[g.EvaluationType]++
	}
	var out []models.EvaluationTypeCount
	for t, n := range counts {
		out = append(out, models.EvaluationTypeCount{EvaluationType: t, Total: n})
	}
	return out, nil
}

func (f *fakeGradeRepo) StudentAveragesForCourse(ctx context.Context, courseID string) ([]models.StudentCourseAverage, error) {
	byStudent := map[string]*models.StudentCourseAverage{}
	var order []string
	for _, g := range f.matching(models.GradeFilter{CourseID: courseID}) {
		row, ok := byStudent[g.StudentID]
		if !ok {
			row = &models.StudentCourseAverage{StudentID: g.StudentID, StudentCode: "code-" + g.StudentID}
			byStudent[g.StudentID] = row
			order = append(order, g.StudentID)
		}
		row.Count++
		row.Sum += g.Value
	}
	out := make([]models.StudentCourseAverage, 0, len(order))
	for _, id := range order {
		out = append(out, *byStudent[id])
	}
	return out, nil
}

type fakeStudentRepo struct {
	students  map[string]*models.Student
	createErr error
	updateErr error
	deleted   []string
	unlinked  []string
}

func newFakeStudentRepo(students ...models.Student) *fakeStudentRepo {
	repo := &fakeStudentRepo{students: map[string]*models.Student{}}
	for i := range students {
		s := students[i]
		repo.students[s.ID] = &s
	}
	return repo
}

func (f *fakeStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	var out []models.Student
	for _, s := range f.students {
		if filter.Search != "" && !strings.Contains(strings.ToLower(s.FullName()), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (f *fakeStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := f.students[id]; ok {
		copy := *s
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStudentRepo) FindByCode(ctx context.Context, code string) (*models.Student, error) {
	for _, s := range f.students {
		if s.Code == code {
			copy := *s
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStudentRepo) FindByAccountID(ctx context.Context, accountID string) (*models.Student, error) {
	for _, s := range f.students {
		if s.AccountID != nil && *s.AccountID == accountID {
			copy := *s
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStudentRepo) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	for _, s := range f.students {
		if s.Code == code && s.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStudentRepo) ExistsByAccount(ctx context.Context, accountID, excludeID string) (bool, error) {
	for _, s := range f.students {
		if s.AccountID != nil && *s.AccountID == accountID && s.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStudentRepo) Count(ctx context.Context) (int, error) {
	return len(f.students), nil
}

func (f *fakeStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if f.createErr != nil {
		return f.createErr
	}
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	copy := *student
	f.students[student.ID] = &copy
	return nil
}

func (f *fakeStudentRepo) Update(ctx context.Context, student *models.Student) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.students[student.ID]; !ok {
		return sql.ErrNoRows
	}
	copy := *student
	f.students[student.ID] = &copy
	return nil
}

func (f *fakeStudentRepo) UnlinkAccount(ctx context.Context, accountID string) error {
	for _, s := range f.students {
		if s.AccountID != nil && *s.AccountID == accountID {
			s.AccountID = nil
			f.unlinked = append(f.unlinked, s.ID)
		}
	}
	return nil
}

func (f *fakeStudentRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.students[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.students, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeStudentRepo) CountByDistrict(ctx context.Context) ([]models.DistrictCount, error) {
	counts := map[string]int{}
	for _, s := range f.students {
		counts[deref(s.District)]++
	}
	var out []models.DistrictCount
	for d, n := range counts {
		out = append(out, models.DistrictCount{District: d, Total: n})
	}
	return out, nil
}

type fakeTeacherRepo struct {
	teachers  map[string]*models.Teacher
	createErr error
	deleted   []string
	unlinked  []string
}

func newFakeTeacherRepo(teachers ...models.Teacher) *fakeTeacherRepo {
	repo := &fakeTeacherRepo{teachers: map[string]*models.Teacher{}}
	for i := range teachers {
		t := teachers[i]
		repo.teachers[t.ID] = &t
	}
	return repo
}

func (f *fakeTeacherRepo) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	var out []models.Teacher
	for _, t := range f.teachers {
		if filter.Specialty != "" && deref(t.Specialty) != filter.Specialty {
			continue
		}
		out = append(out, *t)
	}
	return out, len(out), nil
}

func (f *fakeTeacherRepo) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	if t, ok := f.teachers[id]; ok {
		copy := *t
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeTeacherRepo) FindByCode(ctx context.Context, code string) (*models.Teacher, error) {
	for _, t := range f.teachers {
		if t.Code == code {
			copy := *t
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeTeacherRepo) FindByAccountID(ctx context.Context, accountID string) (*models.Teacher, error) {
	for _, t := range f.teachers {
		if t.AccountID != nil && *t.AccountID == accountID {
			copy := *t
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeTeacherRepo) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	for _, t := range f.teachers {
		if t.Code == code && t.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTeacherRepo) ExistsByAccount(ctx context.Context, accountID, excludeID string) (bool, error) {
	for _, t := range f.teachers {
		if t.AccountID != nil && *t.AccountID == accountID && t.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTeacherRepo) Count(ctx context.Context) (int, error) {
	return len(f.teachers), nil
}

func (f *fakeTeacherRepo) Create(ctx context.Context, teacher *models.Teacher) error {
	if f.createErr != nil {
		return f.createErr
	}
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	copy := *teacher
	f.teachers[teacher.ID] = &copy
	return nil
}

func (f *fakeTeacherRepo) Update(ctx context.Context, teacher *models.Teacher) error {
	if _, ok := f.teachers[teacher.ID]; !ok {
		return sql.ErrNoRows
	}
	copy := *teacher
	f.teachers[teacher.ID] = &copy
	return nil
}

func (f *fakeTeacherRepo) UnlinkAccount(ctx context.Context, accountID string) error {
	for _, t := range f.teachers {
		if t.AccountID != nil && *t.AccountID == accountID {
			t.AccountID = nil
			f.unlinked = append(f.unlinked, t.ID)
		}
	}
	return nil
}

func (f *fakeTeacherRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.teachers[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.teachers, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeTeacherRepo) CountBySpecialty(ctx context.Context) ([]models.SpecialtyCount, error) {
	counts := map[string]int{}
	for _, t := range f.teachers {
		counts[deref(t.Specialty)]++
	}
	var out []models.SpecialtyCount
	for sp, n := range counts {
		out = append(out, models.SpecialtyCount{Specialty: sp, Total: n})
	}
	return out, nil
}

type fakeCourseRepo struct {
	courses map[string]*models.Course
}

func newFakeCourseRepo(courses ...models.Course) *fakeCourseRepo {
	repo := &fakeCourseRepo{courses: map[string]*models.Course{}}
	for i := range courses {
		c := courses[i]
		repo.courses[c.ID] = &c
	}
	return repo
}

func (f *fakeCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	var out []models.CourseDetail
	for _, c := range f.courses {
		if filter.Active != nil && c.Active != *filter.Active {
			continue
		}
		out = append(out, models.CourseDetail{Course: *c})
	}
	return out, len(out), nil
}

func (f *fakeCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := f.courses[id]; ok {
		copy := *c
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCourseRepo) FindDetail(ctx context.Context, column, value string) (*models.CourseDetail, error) {
	for _, c := range f.courses {
		if (column == "id" && c.ID == value) || (column == "code" && c.Code == value) {
			return &models.CourseDetail{Course: *c}, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCourseRepo) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	for _, c := range f.courses {
		if c.Code == code && c.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCourseRepo) Count(ctx context.Context) (int, error) {
	return len(f.courses), nil
}

func (f *fakeCourseRepo) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	copy := *course
	f.courses[course.ID] = &copy
	return nil
}

func (f *fakeCourseRepo) Update(ctx context.Context, course *models.Course) error {
	if _, ok := f.courses[course.ID]; !ok {
		return sql.ErrNoRows
	}
	copy := *course
	f.courses[course.ID] = &copy
	return nil
}

func (f *fakeCourseRepo) SetActive(ctx context.Context, id string, active bool) error {
	c, ok := f.courses[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.Active = active
	return nil
}

func (f *fakeCourseRepo) AssignTeacher(ctx context.Context, id string, teacherID *string) error {
	c, ok := f.courses[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.TeacherID = teacherID
	return nil
}

func (f *fakeCourseRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.courses[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.courses, id)
	return nil
}

func (f *fakeCourseRepo) CountByTeacher(ctx context.Context) ([]models.TeacherCourseCount, error) {
	counts := map[string]int{}
	for _, c := range f.courses {
		if c.TeacherID != nil {
			counts[*c.TeacherID]++
		}
	}
	var out []models.TeacherCourseCount
	for id, n := range counts {
		out = append(out, models.TeacherCourseCount{TeacherID: id, Total: n})
	}
	return out, nil
}

type fakeUserRepo struct {
	users     map[string]*models.User
	createErr error
	auditLogs []*models.AuditLog
	deleted   []string
	lastLogin map[string]bool
}

func newFakeUserRepo(users ...models.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: map[string]*models.User{}, lastLogin: map[string]bool{}}
	for i := range users {
		u := users[i]
		repo.users[u.ID] = &u
	}
	return repo
}

func (f *fakeUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, u := range f.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (f *fakeUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		copy := *u
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			copy := *u
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	for _, u := range f.users {
		if u.Email == email && u.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	copy := *user
	f.users[user.ID] = &copy
	return nil
}

func (f *fakeUserRepo) Update(ctx context.Context, user *models.User) error {
	if _, ok := f.users[user.ID]; !ok {
		return sql.ErrNoRows
	}
	copy := *user
	f.users[user.ID] = &copy
	return nil
}

func (f *fakeUserRepo) SetActive(ctx context.Context, id string, active bool) error {
	u, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Active = active
	return nil
}

func (f *fakeUserRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.users, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeUserRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	f.lastLogin[id] = true
	return nil
}

func (f *fakeUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	u, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash = passwordHash
	return nil
}

func (f *fakeUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	f.auditLogs = append(f.auditLogs, log)
	return nil
}

// plainHasher stores passwords reversibly so tests stay fast.
type plainHasher struct{}

func (plainHasher) Hash(plain string) (string, error) { return "hashed:" + plain, nil }

func (plainHasher) Compare(hash, plain string) error {
	if hash != "hashed:"+plain {
		return errors.New("mismatch")
	}
	return nil
}

type fakeBlobStore struct {
	blobs     map[string]string
	storeErr  error
	deleteErr error
	deleted   []string
	seq       int
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: map[string]string{}}
}

func (f *fakeBlobStore) Store(category, originalName string, r io.Reader) (string, error) {
	if f.storeErr != nil {
		return "", f.storeErr
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.seq++
	key := fmt.Sprintf("blob-%d", f.seq)
	f.blobs[category+"/"+key] = string(body)
	return key, nil
}

func (f *fakeBlobStore) Delete(key, category string) error {
	f.deleted = append(f.deleted, category+"/"+key)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.blobs, category+"/"+key)
	return nil
}

func strPtr(value string) *string {
	return &value
}

func floatPtr(value float64) *float64 {
	return &value
}
