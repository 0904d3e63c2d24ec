package review

import (
	"context"
	"time"
)

// Repository is the persistence contract of the submission workflow.
// All writes for one transition happen inside a single transaction; a failed
// transition leaves no partial state behind.
type Repository interface {
	// GetByID returns a submission by ID, or shared.ErrNotFound.
	GetByID(ctx context.Context, submissionID string) (*Submission, error)

	// GetByLesson returns the submission for a (student, lesson) pair,
	// or shared.ErrNotFound.
	GetByLesson(ctx context.Context, studentID, lessonID string) (*Submission, error)

	// ListByCourse returns all submissions of a student within one course.
	ListByCourse(ctx context.Context, studentID, courseID string) ([]Submission, error)

	// ApplyResult persists the outcome of one transition atomically: the
	// submission upsert, retiring the prior review when a new one is set,
	// and appending new improvement items.
	ApplyResult(ctx context.Context, result *Result) error

	// HighestImprovementNumber returns the largest item number assigned to a
	// submission, 0 when it has none.
	HighestImprovementNumber(ctx context.Context, submissionID string) (int, error)

	// ListImprovements returns all improvement items of a submission in
	// number order.
	ListImprovements(ctx context.Context, submissionID string) ([]ImprovementItem, error)

	// GetImprovement returns one improvement item by ID.
	GetImprovement(ctx context.Context, improvementID string) (*ImprovementItem, error)

	// UpdateImprovement persists a toggled improvement item.
	UpdateImprovement(ctx context.Context, item *ImprovementItem) error

	// GetReview returns the current review of a submission, or shared.ErrNotFound.
	GetReview(ctx context.Context, submissionID string) (*Review, error)

	// SumReviewTime returns the total reviewer time spent across a student's
	// course, used for the frozen certificate statistics.
	SumReviewTime(ctx context.Context, studentID, courseID string) (time.Duration, error)
}
