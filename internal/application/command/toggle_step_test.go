package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/skillforge-lms/internal/domain/shared"
	"github.com/skillforge/skillforge-lms/internal/infrastructure/service"
)

func newStepEnv() (*SetStepCompletionHandler, *fakeProgressRepo, *recordingPublisher) {
	contentRepo := newFakeContentRepo(testCourse())
	progressRepo := newFakeProgressRepo()
	pub := &recordingPublisher{}
	aggregator := service.NewProgressAggregator(contentRepo, progressRepo, nil, nil)

	return NewSetStepCompletionHandler(contentRepo, progressRepo, aggregator, pub, nil), progressRepo, pub
}

func TestSetStepCompletion_FirstCompletion(t *testing.T) {
	h, repo, pub := newStepEnv()

	res, err := h.Handle(context.Background(), SetStepCompletionCommand{
		StudentID: "student-1",
		StepID:    "s1",
		Completed: true,
	})
	require.NoError(t, err)

	assert.True(t, res.Changed)
	assert.True(t, res.Fact.IsCompleted)
	assert.False(t, res.Fact.CompletedAt.IsZero())
	assert.Equal(t, "lesson-1", res.Fact.LessonID)
	assert.Equal(t, "course-1", res.Fact.CourseID)

	// Summaries reflect the write that just happened, at both scopes.
	require.NotNil(t, res.Lesson)
	assert.Equal(t, 2, res.Lesson.TotalSteps)
	assert.Equal(t, 1, res.Lesson.CompletedSteps)
	assert.Equal(t, 50, res.Lesson.Percent)
	assert.False(t, res.Lesson.IsComplete)

	require.NotNil(t, res.Course)
	assert.Equal(t, "course-1", res.Course.CourseID)
	assert.Equal(t, 3, res.Course.TotalSteps)
	assert.Equal(t, 1, res.Course.CompletedSteps)
	assert.Equal(t, 33, res.Course.Percent)
	assert.Equal(t, 0, res.Course.CompletedLessons)

	assert.Equal(t, 1, repo.upserts)
	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.EventStepCompletionChanged, pub.events[0].EventType())
}

func TestSetStepCompletion_Idempotent(t *testing.T) {
	h, repo, pub := newStepEnv()
	cmd := SetStepCompletionCommand{StudentID: "student-1", StepID: "s1", Completed: true}

	first, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)
	require.True(t, first.Changed)

	second, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)

	// Same value again: no write, no event, summary still served.
	assert.False(t, second.Changed)
	assert.Equal(t, 1, repo.upserts)
	assert.Len(t, pub.events, 1)
	require.NotNil(t, second.Lesson)
	assert.Equal(t, 1, second.Lesson.CompletedSteps)
}

func TestSetStepCompletion_Uncomplete(t *testing.T) {
	h, _, pub := newStepEnv()
	ctx := context.Background()

	_, err := h.Handle(ctx, SetStepCompletionCommand{StudentID: "student-1", StepID: "s1", Completed: true})
	require.NoError(t, err)

	res, err := h.Handle(ctx, SetStepCompletionCommand{StudentID: "student-1", StepID: "s1", Completed: false})
	require.NoError(t, err)

	assert.True(t, res.Changed)
	assert.False(t, res.Fact.IsCompleted)
	assert.True(t, res.Fact.CompletedAt.IsZero())
	assert.Equal(t, 0, res.Lesson.CompletedSteps)

	require.Len(t, pub.events, 2)
	assert.Equal(t,
		[]shared.EventType{shared.EventStepCompletionChanged, shared.EventStepCompletionChanged},
		pub.typesSeen(),
	)
}

func TestSetStepCompletion_LessonCompletes(t *testing.T) {
	h, _, _ := newStepEnv()
	ctx := context.Background()

	_, err := h.Handle(ctx, SetStepCompletionCommand{StudentID: "student-1", StepID: "s1", Completed: true})
	require.NoError(t, err)

	res, err := h.Handle(ctx, SetStepCompletionCommand{StudentID: "student-1", StepID: "s2", Completed: true})
	require.NoError(t, err)

	assert.True(t, res.Lesson.IsComplete)
	assert.Equal(t, 100, res.Lesson.Percent)

	// The course summary counts the finished lesson but not the course.
	require.NotNil(t, res.Course)
	assert.Equal(t, 1, res.Course.CompletedLessons)
	assert.Equal(t, 2, res.Course.TotalLessons)
	assert.Equal(t, 2, res.Course.CompletedSteps)
	assert.False(t, res.Course.IsComplete())
}

func TestSetStepCompletion_StudentsIsolated(t *testing.T) {
	h, _, _ := newStepEnv()
	ctx := context.Background()

	_, err := h.Handle(ctx, SetStepCompletionCommand{StudentID: "student-1", StepID: "s1", Completed: true})
	require.NoError(t, err)

	res, err := h.Handle(ctx, SetStepCompletionCommand{StudentID: "student-2", StepID: "s2", Completed: true})
	require.NoError(t, err)

	// student-2 only gets credit for their own step.
	assert.Equal(t, 1, res.Lesson.CompletedSteps)
	assert.Equal(t, "student-2", res.Lesson.StudentID)
}

func TestSetStepCompletion_UnknownStep(t *testing.T) {
	h, repo, pub := newStepEnv()

	_, err := h.Handle(context.Background(), SetStepCompletionCommand{
		StudentID: "student-1",
		StepID:    "no-such-step",
		Completed: true,
	})
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
	assert.Equal(t, 0, repo.upserts)
	assert.Empty(t, pub.events)
}

func TestSetStepCompletion_Validation(t *testing.T) {
	h, _, _ := newStepEnv()

	tests := []struct {
		name string
		cmd  SetStepCompletionCommand
	}{
		{"missing student", SetStepCompletionCommand{StepID: "s1", Completed: true}},
		{"missing step", SetStepCompletionCommand{StudentID: "student-1", Completed: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Handle(context.Background(), tt.cmd)
			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}
