// Package review owns the submission workflow: a student's single current
// piece of work per lesson, the mentor verdict on it, and the persistent
// improvement items accumulated across resubmissions.
package review

import (
	"time"

	"github.com/google/uuid"
)

// Status is the submission workflow state.
type Status string

const (
	// StatusPending means the submission is waiting for a reviewer verdict.
	StatusPending Status = "pending"
	// StatusChangesRequested means the reviewer sent the work back.
	StatusChangesRequested Status = "changes_requested"
	// StatusApproved is terminal. No mentor action may leave it.
	StatusApproved Status = "approved"
)

// ReviewStatus is the verdict carried by a Review.
type ReviewStatus string

const (
	ReviewApproved  ReviewStatus = "approved"
	ReviewNeedsWork ReviewStatus = "needs_work"
)

// Priority ranks improvement items.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Submission is a student's current work for one lesson. Unique per
// (StudentID, LessonID): a resubmission overwrites this record rather than
// creating a new one, while improvement items persist underneath it.
type Submission struct {
	ID              string
	StudentID       string
	LessonID        string
	CourseID        string
	ContentRef      string
	Status          Status
	ReviewerID      string
	ReviewerComment string
	ReviewedAt      *time.Time
	// RevisionCount increments only on the changes_requested → pending
	// transition: only failed attempts count as revisions.
	RevisionCount int
	SubmittedAt   time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Review is the latest verdict on a submission. A re-review retires the
// prior row; history is carried by improvement items, not reviews.
type Review struct {
	ID           string
	SubmissionID string
	ReviewerID   string
	Status       ReviewStatus
	Comment      string
	TimeSpent    time.Duration
	CreatedAt    time.Time
}

// ImprovementItem is a numbered point fix attached to a submission. Items
// are never deleted and accumulate across resubmissions; ReviewID is a weak
// back-reference kept for lookup only and may point at a retired review.
type ImprovementItem struct {
	ID           string
	SubmissionID string
	ReviewID     string
	Number       int
	Title        string
	Text         string
	Priority     Priority
	IsCompleted  bool
	CompletedAt  *time.Time
	CreatedAt    time.Time
}

// ImprovementDraft is reviewer input for a new improvement item.
type ImprovementDraft struct {
	Title    string
	Text     string
	Priority Priority
}

// Toggle flips the student-facing completion flag. Toggling has no workflow
// effect; it never changes the submission status.
func (i *ImprovementItem) Toggle() {
	i.IsCompleted = !i.IsCompleted
	if i.IsCompleted {
		now := time.Now().UTC()
		i.CompletedAt = &now
	} else {
		i.CompletedAt = nil
	}
}

func newSubmission(studentID, lessonID, courseID, contentRef string, now time.Time) *Submission {
	return &Submission{
		ID:            uuid.NewString(),
		StudentID:     studentID,
		LessonID:      lessonID,
		CourseID:      courseID,
		ContentRef:    contentRef,
		Status:        StatusPending,
		RevisionCount: 0,
		SubmittedAt:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func newReview(submissionID, reviewerID string, status ReviewStatus, comment string, timeSpent time.Duration, now time.Time) *Review {
	return &Review{
		ID:           uuid.NewString(),
		SubmissionID: submissionID,
		ReviewerID:   reviewerID,
		Status:       status,
		Comment:      comment,
		TimeSpent:    timeSpent,
		CreatedAt:    now,
	}
}
