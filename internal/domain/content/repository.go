package content

import "context"

// Repository provides read-only access to the content hierarchy.
type Repository interface {
	// GetCourse returns the course with its full lesson/step tree.
	GetCourse(ctx context.Context, courseID string) (*Course, error)

	// GetLesson returns a single lesson with its steps.
	GetLesson(ctx context.Context, lessonID string) (*Lesson, error)

	// ResolveStep maps a step ID to its owning lesson and course.
	ResolveStep(ctx context.Context, stepID string) (StepRef, error)

	// ListCourseIDsForStudent returns the IDs of courses the student has
	// completion facts in. Used by the dashboard aggregate.
	ListCourseIDsForStudent(ctx context.Context, studentID string) ([]string, error)
}
