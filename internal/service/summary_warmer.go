package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/gestion-notas-api/pkg/errors"
	"github.com/noah-isme/gestion-notas-api/pkg/jobs"
)

const warmCourseSummaryJob = "course-summary"

// SummaryWarmer recomputes invalidated course summaries in the background so
// the next read is served from the cache.
type SummaryWarmer struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewSummaryWarmer builds a warmer over source. Call Start before use.
func NewSummaryWarmer(source courseSummarySource, metrics *MetricsService, cfg jobs.QueueConfig) *SummaryWarmer {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	w := &SummaryWarmer{logger: cfg.Logger}
	w.queue = jobs.NewQueue("summary-warmer", func(ctx context.Context, job jobs.Job) error {
		_, _, err := source.CourseSummary(ctx, job.Key)
		if errors.Is(err, appErrors.ErrNotFound) {
			// Course removed meanwhile.
			return nil
		}
		metrics.RecordWarm(err)
		return err
	}, cfg)
	return w
}

// Start launches the workers.
func (w *SummaryWarmer) Start(ctx context.Context) { w.queue.Start(ctx) }

// Stop waits for in-flight recomputations.
func (w *SummaryWarmer) Stop() { w.queue.Stop() }

// Warm schedules a recomputation. Failures only cost a cache miss.
func (w *SummaryWarmer) Warm(courseID string) {
	if w == nil || courseID == "" {
		return
	}
	if err := w.queue.Enqueue(jobs.Job{Key: courseID, Type: warmCourseSummaryJob}); err != nil {
		w.logger.Debug("summary warm skipped", zap.String("course_id", courseID), zap.Error(err))
	}
}
