// Package progress owns the completion ledger: per-student, per-step
// completion facts and the summaries derived from them. Facts are the only
// ground truth; every percentage in the system is computed from them.
package progress

import "time"

// CompletionFact records whether a student finished a specific step.
// Unique per (StudentID, StepID); created on first interaction and mutated
// in place afterwards, never duplicated.
type CompletionFact struct {
	StudentID   string
	StepID      string
	LessonID    string
	CourseID    string
	IsCompleted bool
	CompletedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewCompletionFact creates a completion fact for the first interaction with a step.
func NewCompletionFact(studentID, stepID, lessonID, courseID string, completed bool) *CompletionFact {
	now := time.Now().UTC()
	fact := &CompletionFact{
		StudentID:   studentID,
		StepID:      stepID,
		LessonID:    lessonID,
		CourseID:    courseID,
		IsCompleted: completed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if completed {
		fact.CompletedAt = now
	}
	return fact
}

// Set flips the completion state. Returns false when the value is unchanged,
// which makes SetStepCompletion idempotent at the ledger level.
func (f *CompletionFact) Set(completed bool) bool {
	if f.IsCompleted == completed {
		return false
	}

	f.IsCompleted = completed
	f.UpdatedAt = time.Now().UTC()
	if completed {
		f.CompletedAt = f.UpdatedAt
	} else {
		f.CompletedAt = time.Time{}
	}
	return true
}
