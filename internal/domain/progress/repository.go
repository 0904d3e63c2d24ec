package progress

import "context"

// Repository is the persistence contract of the completion ledger.
// The ledger is the only component allowed to mutate completion facts.
type Repository interface {
	// Upsert writes a completion fact, creating it on first interaction and
	// updating it in place afterwards. Exactly one row per (student, step).
	Upsert(ctx context.Context, fact *CompletionFact) error

	// Get returns the fact for a (student, step) pair, or shared.ErrNotFound.
	Get(ctx context.Context, studentID, stepID string) (*CompletionFact, error)

	// ListByLesson returns all facts of a student within one lesson.
	ListByLesson(ctx context.Context, studentID, lessonID string) ([]CompletionFact, error)

	// ListByCourse returns all facts of a student within one course.
	ListByCourse(ctx context.Context, studentID, courseID string) ([]CompletionFact, error)
}
