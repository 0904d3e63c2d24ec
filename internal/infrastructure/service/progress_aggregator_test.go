package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/skillforge-lms/internal/domain/shared"
)

func TestAggregator_LessonProgressFromLedger(t *testing.T) {
	course := testCourse()
	progressRepo := &fakeProgressRepo{}
	progressRepo.complete("student-1", course, "s1")

	agg := NewProgressAggregator(&fakeContentRepo{course: course}, progressRepo, nil, quietLogger())

	summary, err := agg.LessonProgress(context.Background(), "student-1", "lesson-1")
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalSteps)
	assert.Equal(t, 1, summary.CompletedSteps)
	assert.Equal(t, 50, summary.Percent)
	assert.False(t, summary.IsComplete)
	assert.Equal(t, "course-1", summary.CourseID)
}

func TestAggregator_CourseProgressFromLedger(t *testing.T) {
	course := testCourse()
	progressRepo := &fakeProgressRepo{}
	progressRepo.complete("student-1", course, "s1", "s2")

	agg := NewProgressAggregator(&fakeContentRepo{course: course}, progressRepo, nil, quietLogger())

	summary, err := agg.CourseProgressFromLedger(context.Background(), "student-1", "course-1")
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalSteps)
	assert.Equal(t, 2, summary.CompletedSteps)
	assert.Equal(t, 66, summary.Percent, "floor rounding, never up to 100 early")
	assert.Equal(t, 2, summary.TotalLessons)
	assert.Equal(t, 1, summary.CompletedLessons)
	assert.False(t, summary.IsComplete())
}

func TestAggregator_CourseComplete(t *testing.T) {
	course := testCourse()
	progressRepo := &fakeProgressRepo{}
	progressRepo.complete("student-1", course, "s1", "s2", "s3")

	agg := NewProgressAggregator(&fakeContentRepo{course: course}, progressRepo, nil, quietLogger())

	summary, err := agg.CourseProgressFromLedger(context.Background(), "student-1", "course-1")
	require.NoError(t, err)
	assert.True(t, summary.IsComplete())
	assert.Equal(t, 100, summary.Percent)
}

func TestAggregator_NoFacts(t *testing.T) {
	course := testCourse()
	agg := NewProgressAggregator(&fakeContentRepo{course: course}, &fakeProgressRepo{}, nil, quietLogger())

	summary, err := agg.CourseProgress(context.Background(), "student-1", "course-1")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.CompletedSteps)
	assert.Equal(t, 0, summary.Percent)
	assert.False(t, summary.IsComplete())
}

func TestAggregator_UnknownCourse(t *testing.T) {
	agg := NewProgressAggregator(&fakeContentRepo{}, &fakeProgressRepo{}, nil, quietLogger())

	_, err := agg.CourseProgress(context.Background(), "student-1", "no-such-course")
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
}

func TestAggregator_InvalidateStepWithoutCache(t *testing.T) {
	agg := NewProgressAggregator(&fakeContentRepo{course: testCourse()}, &fakeProgressRepo{}, nil, quietLogger())

	// No cache configured: invalidation is a no-op, not a panic.
	agg.InvalidateStep(context.Background(), "student-1", "lesson-1", "course-1")
}
