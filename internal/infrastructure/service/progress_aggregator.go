// Package service wires domain logic to infrastructure: the cached progress
// aggregator, certificate issuance and outbound notifications.
package service

import (
	"context"
	"log/slog"

	"github.com/skillforge/skillforge-lms/internal/domain/content"
	"github.com/skillforge/skillforge-lms/internal/domain/progress"
	"github.com/skillforge/skillforge-lms/internal/domain/shared"
	"github.com/skillforge/skillforge-lms/internal/infrastructure/persistence/redis"
)

// ProgressAggregator serves lesson and course summaries, cache first with the
// ledger as fallback. The cache is an optimization only: any value it returns
// must equal what the ledger would produce, and callers that gate decisions
// (certificate eligibility) use the FromLedger variants exclusively.
type ProgressAggregator struct {
	contentRepo  content.Repository
	progressRepo progress.Repository
	cache        *redis.ProgressCache
	calc         *progress.Calculator
	logger       *slog.Logger
}

// NewProgressAggregator creates the aggregator. cache may be nil, in which
// case every read goes to the ledger.
func NewProgressAggregator(
	contentRepo content.Repository,
	progressRepo progress.Repository,
	cache *redis.ProgressCache,
	logger *slog.Logger,
) *ProgressAggregator {
	if logger == nil {
		logger = slog.Default()
	}

	return &ProgressAggregator{
		contentRepo:  contentRepo,
		progressRepo: progressRepo,
		cache:        cache,
		calc:         progress.NewCalculator(),
		logger:       logger,
	}
}

// LessonProgress returns the summary of one lesson, from cache when possible.
func (a *ProgressAggregator) LessonProgress(ctx context.Context, studentID, lessonID string) (*progress.LessonSummary, error) {
	if a.cache != nil {
		summary, err := a.cache.GetLessonSummary(ctx, studentID, lessonID)
		if err == nil {
			return summary, nil
		}
		a.logCacheFailure(err, "lesson summary read")
	}

	summary, err := a.lessonFromLedger(ctx, studentID, lessonID)
	if err != nil {
		return nil, err
	}

	if a.cache != nil {
		if err := a.cache.SetLessonSummary(ctx, summary); err != nil {
			a.logCacheFailure(err, "lesson summary write")
		}
	}

	return summary, nil
}

// CourseProgress returns the summary of a whole course, from cache when possible.
func (a *ProgressAggregator) CourseProgress(ctx context.Context, studentID, courseID string) (*progress.CourseSummary, error) {
	if a.cache != nil {
		summary, err := a.cache.GetCourseSummary(ctx, studentID, courseID)
		if err == nil {
			return summary, nil
		}
		a.logCacheFailure(err, "course summary read")
	}

	summary, err := a.CourseProgressFromLedger(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}

	if a.cache != nil {
		if err := a.cache.SetCourseSummary(ctx, summary); err != nil {
			a.logCacheFailure(err, "course summary write")
		}
	}

	return summary, nil
}

// CourseProgressFromLedger computes the course summary directly from
// completion facts, bypassing the cache entirely. Certificate eligibility
// always reads through here.
func (a *ProgressAggregator) CourseProgressFromLedger(ctx context.Context, studentID, courseID string) (*progress.CourseSummary, error) {
	course, err := a.contentRepo.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	facts, err := a.progressRepo.ListByCourse(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}

	summary := a.calc.CourseSummary(studentID, course, facts)
	return &summary, nil
}

// InvalidateStep drops the summary keys a step write touched. Called
// synchronously on the write path before the write returns; an unreachable
// cache is logged and swallowed because the entry TTL bounds the staleness.
func (a *ProgressAggregator) InvalidateStep(ctx context.Context, studentID, lessonID, courseID string) {
	if a.cache == nil {
		return
	}
	if err := a.cache.InvalidateStep(ctx, studentID, lessonID, courseID); err != nil {
		a.logCacheFailure(err, "step invalidation")
	}
}

func (a *ProgressAggregator) lessonFromLedger(ctx context.Context, studentID, lessonID string) (*progress.LessonSummary, error) {
	lesson, err := a.contentRepo.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}

	facts, err := a.progressRepo.ListByLesson(ctx, studentID, lessonID)
	if err != nil {
		return nil, err
	}

	summary := a.calc.LessonSummary(studentID, lesson, lesson.CourseID, facts)
	return &summary, nil
}

func (a *ProgressAggregator) logCacheFailure(err error, op string) {
	if shared.IsNotFound(err) {
		return // plain miss, expected
	}
	a.logger.Warn("progress cache degraded, serving from ledger", "op", op, "error", err)
}
