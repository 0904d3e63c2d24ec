package progress

import (
	"time"

	"github.com/skillforge/skillforge-lms/internal/domain/content"
)

// LessonSummary is the derived completion state of one lesson for one student.
type LessonSummary struct {
	StudentID      string    `json:"student_id"`
	LessonID       string    `json:"lesson_id"`
	CourseID       string    `json:"course_id"`
	TotalSteps     int       `json:"total_steps"`
	CompletedSteps int       `json:"completed_steps"`
	Percent        int       `json:"percent"`
	IsComplete     bool      `json:"is_complete"`
	ComputedAt     time.Time `json:"computed_at"`
}

// CourseSummary is the derived completion state of a whole course for one student.
type CourseSummary struct {
	StudentID        string    `json:"student_id"`
	CourseID         string    `json:"course_id"`
	TotalSteps       int       `json:"total_steps"`
	CompletedSteps   int       `json:"completed_steps"`
	Percent          int       `json:"percent"`
	TotalLessons     int       `json:"total_lessons"`
	CompletedLessons int       `json:"completed_lessons"`
	LastActivity     time.Time `json:"last_activity"`
	ComputedAt       time.Time `json:"computed_at"`
}

// IsComplete reports exact course completion. The certification gate uses
// this, never the rounded Percent: rounding is for display and must not be
// able to hide missing steps behind a 100% figure.
func (s CourseSummary) IsComplete() bool {
	return s.TotalSteps > 0 && s.CompletedSteps == s.TotalSteps
}

// percent floor-rounds completed/total to an integer for display.
func percent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return completed * 100 / total
}

// Calculator derives summaries from completion facts. It is pure: all inputs
// are passed in, nothing is read from storage or cache.
type Calculator struct{}

// NewCalculator creates a progress calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// LessonSummary computes the summary of one lesson from its facts.
// A lesson is complete iff it has steps and every step is completed.
func (c *Calculator) LessonSummary(studentID string, lesson *content.Lesson, courseID string, facts []CompletionFact) LessonSummary {
	completedByStep := factIndex(facts)

	completed := 0
	for _, step := range lesson.Steps {
		if completedByStep[step.ID] {
			completed++
		}
	}

	total := len(lesson.Steps)
	return LessonSummary{
		StudentID:      studentID,
		LessonID:       lesson.ID,
		CourseID:       courseID,
		TotalSteps:     total,
		CompletedSteps: completed,
		Percent:        percent(completed, total),
		IsComplete:     total > 0 && completed == total,
		ComputedAt:     time.Now().UTC(),
	}
}

// CourseSummary computes the summary of a whole course from its facts.
func (c *Calculator) CourseSummary(studentID string, course *content.Course, facts []CompletionFact) CourseSummary {
	completedByStep := factIndex(facts)

	var lastActivity time.Time
	for _, f := range facts {
		if f.IsCompleted && f.CompletedAt.After(lastActivity) {
			lastActivity = f.CompletedAt
		}
	}

	totalSteps := 0
	completedSteps := 0
	completedLessons := 0
	for i := range course.Lessons {
		lesson := &course.Lessons[i]
		lessonTotal := len(lesson.Steps)
		lessonDone := 0
		for _, step := range lesson.Steps {
			if completedByStep[step.ID] {
				lessonDone++
			}
		}

		totalSteps += lessonTotal
		completedSteps += lessonDone
		if lessonTotal > 0 && lessonDone == lessonTotal {
			completedLessons++
		}
	}

	return CourseSummary{
		StudentID:        studentID,
		CourseID:         course.ID,
		TotalSteps:       totalSteps,
		CompletedSteps:   completedSteps,
		Percent:          percent(completedSteps, totalSteps),
		TotalLessons:     len(course.Lessons),
		CompletedLessons: completedLessons,
		LastActivity:     lastActivity,
		ComputedAt:       time.Now().UTC(),
	}
}

func factIndex(facts []CompletionFact) map[string]bool {
	idx := make(map[string]bool, len(facts))
	for _, f := range facts {
		if f.IsCompleted {
			idx[f.StepID] = true
		}
	}
	return idx
}
