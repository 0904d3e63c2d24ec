package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/skillforge/skillforge-lms/internal/domain/content"
)

func twoLessonCourse() *content.Course {
	return &content.Course{
		ID: "course-1",
		Lessons: []content.Lesson{
			{
				ID: "lesson-1", CourseID: "course-1", Position: 1,
				Steps: []content.Step{
					{ID: "step-1", LessonID: "lesson-1", Position: 1},
					{ID: "step-2", LessonID: "lesson-1", Position: 2},
				},
			},
			{
				ID: "lesson-2", CourseID: "course-1", Position: 2,
				Steps: []content.Step{
					{ID: "step-3", LessonID: "lesson-2", Position: 1},
					{ID: "step-4", LessonID: "lesson-2", Position: 2},
					{ID: "step-5", LessonID: "lesson-2", Position: 3},
				},
			},
		},
	}
}

func completedFact(stepID, lessonID string, at time.Time) CompletionFact {
	return CompletionFact{
		StudentID:   "student-1",
		StepID:      stepID,
		LessonID:    lessonID,
		CourseID:    "course-1",
		IsCompleted: true,
		CompletedAt: at,
	}
}

func TestLessonSummary(t *testing.T) {
	course := twoLessonCourse()
	lesson, _ := course.LessonByID("lesson-1")
	calc := NewCalculator()

	t.Run("partial", func(t *testing.T) {
		facts := []CompletionFact{completedFact("step-1", "lesson-1", time.Now())}
		sum := calc.LessonSummary("student-1", lesson, "course-1", facts)

		assert.Equal(t, 2, sum.TotalSteps)
		assert.Equal(t, 1, sum.CompletedSteps)
		assert.Equal(t, 50, sum.Percent)
		assert.False(t, sum.IsComplete)
	})

	t.Run("complete", func(t *testing.T) {
		facts := []CompletionFact{
			completedFact("step-1", "lesson-1", time.Now()),
			completedFact("step-2", "lesson-1", time.Now()),
		}
		sum := calc.LessonSummary("student-1", lesson, "course-1", facts)

		assert.Equal(t, 100, sum.Percent)
		assert.True(t, sum.IsComplete)
	})

	t.Run("uncompleted facts do not count", func(t *testing.T) {
		facts := []CompletionFact{
			{StudentID: "student-1", StepID: "step-1", LessonID: "lesson-1", IsCompleted: false},
		}
		sum := calc.LessonSummary("student-1", lesson, "course-1", facts)

		assert.Equal(t, 0, sum.CompletedSteps)
		assert.False(t, sum.IsComplete)
	})

	t.Run("empty lesson is never complete", func(t *testing.T) {
		empty := &content.Lesson{ID: "lesson-x", CourseID: "course-1"}
		sum := calc.LessonSummary("student-1", empty, "course-1", nil)

		assert.Equal(t, 0, sum.Percent)
		assert.False(t, sum.IsComplete)
	})
}

func TestCourseSummary(t *testing.T) {
	course := twoLessonCourse()
	calc := NewCalculator()

	first := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	last := time.Date(2026, 2, 3, 17, 30, 0, 0, time.UTC)

	facts := []CompletionFact{
		completedFact("step-1", "lesson-1", first),
		completedFact("step-2", "lesson-1", last),
		completedFact("step-3", "lesson-2", first),
	}

	sum := calc.CourseSummary("student-1", course, facts)

	assert.Equal(t, 5, sum.TotalSteps)
	assert.Equal(t, 3, sum.CompletedSteps)
	assert.Equal(t, 60, sum.Percent)
	assert.Equal(t, 2, sum.TotalLessons)
	assert.Equal(t, 1, sum.CompletedLessons)
	assert.Equal(t, last, sum.LastActivity)
	assert.False(t, sum.IsComplete())
}

func TestCourseSummary_ExactCompletionGate(t *testing.T) {
	course := twoLessonCourse()
	calc := NewCalculator()

	var facts []CompletionFact
	for _, step := range []struct{ id, lesson string }{
		{"step-1", "lesson-1"}, {"step-2", "lesson-1"},
		{"step-3", "lesson-2"}, {"step-4", "lesson-2"},
	} {
		facts = append(facts, completedFact(step.id, step.lesson, time.Now()))
	}

	sum := calc.CourseSummary("student-1", course, facts)
	assert.Equal(t, 80, sum.Percent)
	assert.False(t, sum.IsComplete())

	facts = append(facts, completedFact("step-5", "lesson-2", time.Now()))
	sum = calc.CourseSummary("student-1", course, facts)
	assert.Equal(t, 100, sum.Percent)
	assert.True(t, sum.IsComplete())
}

func TestCourseSummary_EmptyCourseNotComplete(t *testing.T) {
	calc := NewCalculator()
	sum := calc.CourseSummary("student-1", &content.Course{ID: "course-x"}, nil)

	assert.Equal(t, 0, sum.Percent)
	assert.False(t, sum.IsComplete())
}

func TestCompletionFact_SetIdempotent(t *testing.T) {
	fact := NewCompletionFact("student-1", "step-1", "lesson-1", "course-1", false)

	assert.True(t, fact.Set(true))
	assert.False(t, fact.CompletedAt.IsZero())

	// Same value again is a no-op.
	assert.False(t, fact.Set(true))

	assert.True(t, fact.Set(false))
	assert.True(t, fact.CompletedAt.IsZero())
}
