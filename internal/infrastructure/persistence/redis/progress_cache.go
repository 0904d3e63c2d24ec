package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/skillforge/skillforge-lms/internal/domain/progress"
	"github.com/skillforge/skillforge-lms/internal/domain/shared"
	"github.com/skillforge/skillforge-lms/pkg/circuitbreaker"
)

// ProgressCache stores derived lesson/course summaries behind a circuit
// breaker. Every method fails open: a cache outage surfaces as
// shared.ErrCacheUnavailable, which callers treat as a miss and serve from
// the ledger instead.
type ProgressCache struct {
	cache   *Cache
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewProgressCache creates a ProgressCache around an existing cache client.
func NewProgressCache(cache *Cache, logger *slog.Logger) *ProgressCache {
	if logger == nil {
		logger = slog.Default()
	}

	breaker := circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
		logger.Warn("cache circuit state changed",
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
		)
	})

	return &ProgressCache{
		cache:   cache,
		breaker: breaker,
		logger:  logger,
	}
}

// GetLessonSummary returns the cached per-lesson summary.
// Returns shared.ErrNotFound on a miss and shared.ErrCacheUnavailable when
// the backend is unreachable or the circuit is open.
func (p *ProgressCache) GetLessonSummary(ctx context.Context, studentID, lessonID string) (*progress.LessonSummary, error) {
	var summary progress.LessonSummary
	if err := p.get(ctx, LessonProgressKey(studentID, lessonID), &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// SetLessonSummary stores a per-lesson summary.
func (p *ProgressCache) SetLessonSummary(ctx context.Context, summary *progress.LessonSummary) error {
	return p.set(ctx, LessonProgressKey(summary.StudentID, summary.LessonID), summary, TTLLessonProgress)
}

// GetCourseSummary returns the cached per-course summary.
func (p *ProgressCache) GetCourseSummary(ctx context.Context, studentID, courseID string) (*progress.CourseSummary, error) {
	var summary progress.CourseSummary
	if err := p.get(ctx, CourseProgressKey(studentID, courseID), &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// SetCourseSummary stores a per-course summary.
func (p *ProgressCache) SetCourseSummary(ctx context.Context, summary *progress.CourseSummary) error {
	return p.set(ctx, CourseProgressKey(summary.StudentID, summary.CourseID), summary, TTLCourseProgress)
}

// InvalidateStep removes exactly the summary keys a step write can have
// changed: the owning lesson, the owning course and the student dashboard.
// Unrelated students and courses keep their entries.
func (p *ProgressCache) InvalidateStep(ctx context.Context, studentID, lessonID, courseID string) error {
	return p.execute(ctx, func(ctx context.Context) error {
		return p.cache.Delete(ctx,
			LessonProgressKey(studentID, lessonID),
			CourseProgressKey(studentID, courseID),
			DashboardKey(studentID),
		)
	})
}

// InvalidateDashboard removes only the dashboard aggregate of one student.
func (p *ProgressCache) InvalidateDashboard(ctx context.Context, studentID string) error {
	return p.execute(ctx, func(ctx context.Context) error {
		return p.cache.Delete(ctx, DashboardKey(studentID))
	})
}

// GetDashboard returns the cached cross-course dashboard payload.
func (p *ProgressCache) GetDashboard(ctx context.Context, studentID string, dest interface{}) error {
	return p.get(ctx, DashboardKey(studentID), dest)
}

// SetDashboard stores the cross-course dashboard payload.
func (p *ProgressCache) SetDashboard(ctx context.Context, studentID string, value interface{}) error {
	return p.set(ctx, DashboardKey(studentID), value, TTLDashboard)
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func (p *ProgressCache) get(ctx context.Context, key string, dest interface{}) error {
	var missed bool
	err := p.execute(ctx, func(ctx context.Context) error {
		err := p.cache.Get(ctx, key, dest)
		if errors.Is(err, ErrCacheMiss) {
			// A miss is a normal outcome, not a breaker failure.
			missed = true
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	if missed {
		return shared.ErrNotFound
	}
	return nil
}

func (p *ProgressCache) set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return p.execute(ctx, func(ctx context.Context) error {
		return p.cache.Set(ctx, key, value, ttl)
	})
}

func (p *ProgressCache) execute(ctx context.Context, fn func(context.Context) error) error {
	err := p.breaker.Execute(ctx, fn)
	if err == nil {
		return nil
	}
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return shared.ErrCacheUnavailable
	}
	if errors.Is(err, shared.ErrNotFound) {
		return err
	}
	return shared.WrapError("progress", "Cache", shared.ErrCacheUnavailable, "cache operation failed", err)
}
