package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gestion-notas-api/internal/models"
	appErrors "github.com/noah-isme/gestion-notas-api/pkg/errors"
	"github.com/noah-isme/gestion-notas-api/pkg/jobs"
)

type recordingWarmer struct {
	courses []string
}

func (r *recordingWarmer) Warm(courseID string) { r.courses = append(r.courses, courseID) }

type summarySourceStub struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (s *summarySourceStub) CourseSummary(ctx context.Context, courseID string) (*models.CourseGradeSummary, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, courseID)
	if s.err != nil {
		return nil, false, s.err
	}
	return &models.CourseGradeSummary{CourseID: courseID}, false, nil
}

func (s *summarySourceStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestGradeServiceWarmsAfterWrites(t *testing.T) {
	f := newGradeFixture()
	warmer := &recordingWarmer{}
	f.svc.UseWarmer(warmer)

	grade := f.record(t, "s1", "c1", 15, models.EvaluationPartial)
	require.NoError(t, f.svc.Delete(context.Background(), grade.ID))

	assert.Equal(t, []string{"c1", "c1"}, warmer.courses)
}

func TestSummaryWarmerRecomputes(t *testing.T) {
	source := &summarySourceStub{}
	w := NewSummaryWarmer(source, nil, jobs.QueueConfig{Workers: 1})
	w.Start(context.Background())
	defer w.Stop()

	w.Warm("c1")
	w.Warm("")
	require.Eventually(t, func() bool { return source.callCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSummaryWarmerIgnoresMissingCourse(t *testing.T) {
	source := &summarySourceStub{err: appErrors.Clone(appErrors.ErrNotFound, "course not found")}
	w := NewSummaryWarmer(source, nil, jobs.QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: time.Millisecond})
	w.Start(context.Background())

	w.Warm("gone")
	require.Eventually(t, func() bool { return source.callCount() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	w.Stop()
	assert.Equal(t, 1, source.callCount())
}

func TestSummaryWarmerBeforeStartIsNoop(t *testing.T) {
	source := &summarySourceStub{err: errors.New("unused")}
	w := NewSummaryWarmer(source, nil, jobs.QueueConfig{})
	w.Warm("c1")
	assert.Zero(t, source.callCount())

	var nilWarmer *SummaryWarmer
	assert.NotPanics(t, func() { nilWarmer.Warm("c1") })
}
