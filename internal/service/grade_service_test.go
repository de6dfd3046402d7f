package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/gestion-notas-api/internal/models"
	appErrors "github.com/noah-isme/gestion-notas-api/pkg/errors"
)

type gradeFixture struct {
	svc      *GradeService
	grades   *fakeGradeRepo
	students *fakeStudentRepo
	courses  *fakeCourseRepo
	cache    *memoryCacheRepo
	stats    *CacheService
	metrics  *MetricsService
	tx       *fakeTx
}

func newGradeFixture() *gradeFixture {
	f := &gradeFixture{
		grades:   &fakeGradeRepo{},
		students: newFakeStudentRepo(models.Student{ID: "s1", Code: "EST000001"}, models.Student{ID: "s2", Code: "EST000002"}),
		courses:  newFakeCourseRepo(models.Course{ID: "c1", Code: "CUR0001", Name: "Matemática", Active: true}, models.Course{ID: "c2", Code: "CUR0002", Name: "Historia", Active: true}),
		cache:    newMemoryCacheRepo(),
		metrics:  NewMetricsService(),
		tx:       &fakeTx{},
	}
	f.stats = NewCacheService(f.cache, f.metrics, time.Minute, zap.NewNop(), true)
	f.svc = NewGradeService(f.grades, f.students, f.courses, f.tx, f.stats, f.metrics, nil, zap.NewNop())
	return f
}

func (f *gradeFixture) record(t *testing.T, studentID, courseID string, value float64, evalType models.EvaluationType) *models.Grade {
	t.Helper()
	grade, err := f.svc.Create(context.Background(), CreateGradeRequest{StudentID: studentID, CourseID: courseID, Value: floatPtr(value), EvaluationType: evalType})
	require.NoError(t, err)
	return grade
}

func TestGradeServiceCreateValueBounds(t *testing.T) {
	cases := []struct {
		value float64
		ok    bool
	}{
		{-0.01, false},
		{0.00, true},
		{10.5, true},
		{20.00, true},
		{20.01, false},
	}
	for _, tc := range cases {
		f := newGradeFixture()
		_, err := f.svc.Create(context.Background(), CreateGradeRequest{StudentID: "s1", CourseID: "c1", Value: floatPtr(tc.value)})
		if tc.ok {
			assert.NoError(t, err, "value %.2f", tc.value)
			assert.Len(t, f.grades.grades, 1)
		} else {
			assert.True(t, errors.Is(err, appErrors.ErrOutOfRange), "value %.2f", tc.value)
			assert.Empty(t, f.grades.grades)
		}
	}
}

func TestGradeServiceCreateDefaultsAndStamps(t *testing.T) {
	f := newGradeFixture()
	fixed := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return fixed }

	grade, err := f.svc.Create(context.Background(), CreateGradeRequest{StudentID: "s1", CourseID: "c1", Value: floatPtr(15.456), Observations: strPtr("  ")})
	require.NoError(t, err)
	assert.Equal(t, models.EvaluationPartial, grade.EvaluationType)
	assert.Equal(t, fixed, grade.RecordedAt)
	assert.Equal(t, 15.46, grade.Value)
	assert.Nil(t, grade.Observations)
	assert.Equal(t, 1, f.tx.calls)
	assert.Equal(t, uint64(1), f.metrics.Snapshot().GradesRecorded)
}

func TestGradeServiceCreateRejectsUnknownReferencesAndTypes(t *testing.T) {
	f := newGradeFixture()

	_, err := f.svc.Create(context.Background(), CreateGradeRequest{StudentID: "missing", CourseID: "c1", Value: floatPtr(12)})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = f.svc.Create(context.Background(), CreateGradeRequest{StudentID: "s1", CourseID: "missing", Value: floatPtr(12)})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = f.svc.Create(context.Background(), CreateGradeRequest{StudentID: "s1", CourseID: "c1", Value: floatPtr(12), EvaluationType: "QUIZ"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidEnum))

	_, err = f.svc.Create(context.Background(), CreateGradeRequest{StudentID: "s1", CourseID: "c1"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	assert.Empty(t, f.grades.grades)
}

func TestGradeServiceCreateAcceptsLowercaseType(t *testing.T) {
	f := newGradeFixture()
	grade := f.record(t, "s1", "c1", 14, "examen")
	assert.Equal(t, models.EvaluationExam, grade.EvaluationType)
}

func TestGradeServiceUpdateKeepsRecordedAt(t *testing.T) {
	f := newGradeFixture()
	created := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return created }
	grade := f.record(t, "s1", "c1", 12, models.EvaluationPartial)

	f.svc.now = func() time.Time { return created.Add(48 * time.Hour) }
	updated, err := f.svc.Update(context.Background(), grade.ID, UpdateGradeRequest{Value: floatPtr(17), EvaluationType: models.EvaluationFinal, Observations: strPtr("recuperación")})
	require.NoError(t, err)
	assert.Equal(t, 17.0, updated.Value)
	assert.Equal(t, models.EvaluationFinal, updated.EvaluationType)
	assert.Equal(t, "recuperación", *updated.Observations)
	assert.Equal(t, created, updated.RecordedAt)

	stored, err := f.grades.FindByID(context.Background(), grade.ID)
	require.NoError(t, err)
	assert.Equal(t, grade.RecordedAt, stored.RecordedAt)
	assert.Equal(t, "s1", stored.StudentID)
	assert.Equal(t, "c1", stored.CourseID)
}

func TestGradeServiceUpdateValidation(t *testing.T) {
	f := newGradeFixture()
	grade := f.record(t, "s1", "c1", 12, models.EvaluationHomework)

	_, err := f.svc.Update(context.Background(), grade.ID, UpdateGradeRequest{Value: floatPtr(20.01)})
	assert.True(t, errors.Is(err, appErrors.ErrOutOfRange))

	_, err = f.svc.Update(context.Background(), "missing", UpdateGradeRequest{Value: floatPtr(10)})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	kept, err := f.svc.Update(context.Background(), grade.ID, UpdateGradeRequest{Value: floatPtr(10)})
	require.NoError(t, err)
	assert.Equal(t, models.EvaluationHomework, kept.EvaluationType)
	assert.Equal(t, 1, f.grades.updates)
}

func TestGradeServiceDelete(t *testing.T) {
	f := newGradeFixture()
	grade := f.record(t, "s1", "c1", 12, models.EvaluationPartial)

	require.NoError(t, f.svc.Delete(context.Background(), grade.ID))
	assert.Empty(t, f.grades.grades)

	err := f.svc.Delete(context.Background(), grade.ID)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestGradeServiceAveragesWithoutGrades(t *testing.T) {
	f := newGradeFixture()
	ctx := context.Background()

	avg, err := f.svc.AverageForStudentInCourse(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, avg)

	status, err := f.svc.AcademicStatus(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, status)

	passed, err := f.svc.Passed(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.False(t, passed)

	avg, err = f.svc.AverageForStudent(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, avg)

	avg, err = f.svc.AverageForCourse(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, avg)
}

func TestGradeServiceAverageBoundaryIsBueno(t *testing.T) {
	f := newGradeFixture()
	ctx := context.Background()
	for _, v := range []float64{12, 14, 16} {
		f.record(t, "s1", "c1", v, models.EvaluationPartial)
	}

	avg, err := f.svc.AverageForStudentInCourse(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 14.0, avg)

	status, err := f.svc.AcademicStatus(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusGood, status)

	passed, err := f.svc.Passed(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.True(t, passed)
}

func TestGradeServiceStatusAroundExcellent(t *testing.T) {
	f := newGradeFixture()
	ctx := context.Background()
	f.record(t, "s1", "c1", 18, models.EvaluationFinal)
	f.record(t, "s2", "c1", 17.99, models.EvaluationFinal)

	status, err := f.svc.AcademicStatus(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusExcellent, status)

	status, err = f.svc.AcademicStatus(ctx, "s2", "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusVeryGood, status)
}

func TestGradeServiceAverageScopes(t *testing.T) {
	f := newGradeFixture()
	ctx := context.Background()
	f.record(t, "s1", "c1", 10, models.EvaluationPartial)
	f.record(t, "s1", "c2", 20, models.EvaluationPartial)
	f.record(t, "s2", "c1", 16, models.EvaluationPartial)

	avg, err := f.svc.AverageForStudent(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 15.0, avg)

	avg, err = f.svc.AverageForCourse(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 13.0, avg)

	standing, err := f.svc.Standing(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, standing.Average)
	assert.Equal(t, 1, standing.GradeCount)
	assert.Equal(t, models.StatusFailed, standing.Status)
	assert.False(t, standing.Passed)
}

func TestGradeServiceTopGradesForCourse(t *testing.T) {
	f := newGradeFixture()
	for _, v := range []float64{15, 20, 10} {
		f.record(t, "s1", "c1", v, models.EvaluationPartial)
	}
	f.record(t, "s1", "c2", 19, models.EvaluationPartial)

	top, err := f.svc.TopGradesForCourse(context.Background(), "c1", 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, 20.0, top[0].Value)
	assert.Equal(t, 15.0, top[1].Value)

	all, err := f.svc.TopGradesForCourse(context.Background(), "c1", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGradeServiceApprovingGrades(t *testing.T) {
	f := newGradeFixture()
	for _, v := range []float64{10.99, 11, 18} {
		f.record(t, "s1", "c1", v, models.EvaluationPartial)
	}

	approving, err := f.svc.ApprovingGrades(context.Background())
	require.NoError(t, err)
	require.Len(t, approving, 2)
	assert.Equal(t, 18.0, approving[0].Value)
	assert.Equal(t, 11.0, approving[1].Value)

	high, err := f.svc.GradesWithMinimum(context.Background(), 17.5)
	require.NoError(t, err)
	assert.Len(t, high, 1)
}

func TestGradeServiceCountByEvaluationType(t *testing.T) {
	f := newGradeFixture()
	f.record(t, "s1", "c1", 12, models.EvaluationPartial)
	f.record(t, "s2", "c1", 13, models.EvaluationPartial)
	f.record(t, "s1", "c1", 14, models.EvaluationFinal)

	counts, err := f.svc.CountByEvaluationType(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[models.EvaluationType]int{models.EvaluationPartial: 2, models.EvaluationFinal: 1}, counts)

	listed, hit, err := f.svc.EvaluationTypeCounts(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, listed, len(models.EvaluationTypes()))
	assert.Equal(t, models.EvaluationTypeCount{EvaluationType: models.EvaluationPartial, Total: 2}, listed[0])
	assert.Equal(t, models.EvaluationTypeCount{EvaluationType: models.EvaluationExam, Total: 0}, listed[4])

	_, hit, err = f.svc.EvaluationTypeCounts(context.Background())
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestGradeServiceCourseSummaryCachedAndInvalidated(t *testing.T) {
	f := newGradeFixture()
	ctx := context.Background()
	f.record(t, "s1", "c1", 18, models.EvaluationPartial)
	f.record(t, "s1", "c1", 16, models.EvaluationFinal)
	f.record(t, "s2", "c1", 8, models.EvaluationPartial)

	summary, hit, err := f.svc.CourseSummary(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "CUR0001", summary.CourseCode)
	assert.Equal(t, 3, summary.GradeCount)
	assert.Equal(t, 14.0, summary.Average)
	assert.Equal(t, 2, summary.StudentCount)
	assert.Equal(t, 1, summary.PassedCount)
	assert.Equal(t, 1, summary.FailedCount)
	require.Len(t, summary.Students, 2)
	assert.Equal(t, models.StatusVeryGood, summary.Students[0].Status)
	assert.Equal(t, models.StatusFailed, summary.Students[1].Status)
	assert.Equal(t, 18.0, summary.TopGrades[0].Value)

	_, hit, err = f.svc.CourseSummary(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, hit)

	f.record(t, "s2", "c1", 20, models.EvaluationFinal)
	assert.Contains(t, f.cache.invalidate, "grades:course:c1:*")

	summary, hit, err = f.svc.CourseSummary(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 4, summary.GradeCount)

	_, _, err = f.svc.CourseSummary(ctx, "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestGradeServiceBulkCreateIsAllOrNothing(t *testing.T) {
	f := newGradeFixture()
	ctx := context.Background()

	_, err := f.svc.BulkCreate(ctx, BulkCreateGradesRequest{CourseID: "c1", Items: []BulkGradeItem{
		{StudentID: "s1", Value: floatPtr(12)},
		{StudentID: "s2", Value: floatPtr(21)},
	}})
	assert.True(t, errors.Is(err, appErrors.ErrOutOfRange))
	assert.Empty(t, f.grades.grades)

	grades, err := f.svc.BulkCreate(ctx, BulkCreateGradesRequest{CourseID: "c1", EvaluationType: models.EvaluationPractice, Items: []BulkGradeItem{
		{StudentID: "s1", Value: floatPtr(12)},
		{StudentID: "s2", Value: floatPtr(19.5)},
	}})
	require.NoError(t, err)
	assert.Len(t, grades, 2)
	assert.Equal(t, models.EvaluationPractice, grades[1].EvaluationType)
	assert.Equal(t, grades[0].RecordedAt, grades[1].RecordedAt)
	assert.Equal(t, uint64(2), f.metrics.Snapshot().GradesRecorded)

	_, err = f.svc.BulkCreate(ctx, BulkCreateGradesRequest{CourseID: "c1", Items: []BulkGradeItem{{StudentID: "ghost", Value: floatPtr(12)}}})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestGradeServiceWrapsRepositoryFailures(t *testing.T) {
	f := newGradeFixture()
	f.grades.aggErr = errors.New("connection reset")

	_, err := f.svc.AverageForStudent(context.Background(), "s1")
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}

func TestGradeServiceCreateReportsFieldDetails(t *testing.T) {
	f := newGradeFixture()

	_, err := f.svc.Create(context.Background(), CreateGradeRequest{CourseID: "c1"})

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, map[string]string{"student_id": "required", "value": "required"}, appErr.Details)
}

// warmStatistics fills the evaluation type and course summary cache entries.
func (f *gradeFixture) warmStatistics(t *testing.T, courseID string) {
	t.Helper()
	ctx := context.Background()
	_, _, err := f.svc.EvaluationTypeCounts(ctx)
	require.NoError(t, err)
	_, _, err = f.svc.CourseSummary(ctx, courseID)
	require.NoError(t, err)
	_, hit, err := f.svc.EvaluationTypeCounts(ctx)
	require.NoError(t, err)
	require.True(t, hit)
}

// dropStudentGrades mirrors the ON DELETE CASCADE from students to grades.
func (f *gradeFixture) dropStudentGrades(studentID string) {
	kept := f.grades.grades[:0]
	for _, g := range f.grades.grades {
		if g.StudentID != studentID {
			kept = append(kept, g)
		}
	}
	f.grades.grades = kept
}

func (f *gradeFixture) assertStatisticsRecomputed(t *testing.T, courseID string, wantGrades int) {
	t.Helper()
	ctx := context.Background()
	counts, hit, err := f.svc.EvaluationTypeCounts(ctx)
	require.NoError(t, err)
	assert.False(t, hit)
	total := 0
	for _, c := range counts {
		total += c.Total
	}
	assert.Equal(t, wantGrades, total)

	summary, hit, err := f.svc.CourseSummary(ctx, courseID)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, wantGrades, summary.GradeCount)
}
