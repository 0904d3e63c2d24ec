package review

import (
	"time"

	"github.com/google/uuid"

	"github.com/skillforge/skillforge-lms/internal/domain/shared"
)

// Action is a workflow input applied to a submission.
type Action interface {
	actionName() string
}

// SubmitAction creates the first submission for a lesson.
type SubmitAction struct {
	StudentID  string
	LessonID   string
	CourseID   string
	ContentRef string
}

// ResubmitAction sends reworked content back for review. Legal only from
// changes_requested.
type ResubmitAction struct {
	ContentRef string
}

// ApproveAction is the reviewer accepting the work. Legal only from pending.
type ApproveAction struct {
	ReviewerID string
	Comment    string
	TimeSpent  time.Duration
}

// RequestChangesAction is the reviewer sending the work back, optionally with
// new improvement items. Legal only from pending.
type RequestChangesAction struct {
	ReviewerID   string
	Comment      string
	TimeSpent    time.Duration
	Improvements []ImprovementDraft
}

func (SubmitAction) actionName() string         { return "submit" }
func (ResubmitAction) actionName() string       { return "resubmit" }
func (ApproveAction) actionName() string        { return "approve" }
func (RequestChangesAction) actionName() string { return "request_changes" }

// Input is the current workflow state an action is applied against.
// Submission is nil when no submission exists yet for the lesson.
// HighestImprovementNumber is the largest item number already assigned to the
// submission, so new items continue the sequence without reusing numbers.
type Input struct {
	Submission               *Submission
	HighestImprovementNumber int
}

// Result is the outcome of a legal transition. Submission is the new value
// to persist; NewReview, when set, replaces the prior review for the
// submission; NewImprovements are appended, never replacing existing items.
// Events must be published after the state is durably stored.
type Result struct {
	Submission      *Submission
	NewReview       *Review
	NewImprovements []ImprovementItem
	Events          []shared.Event
}

// Apply runs one state-machine transition. It is a pure function: no storage,
// no clock beyond the injected now, so every edge is unit-testable. Illegal
// transitions return an error wrapping shared.ErrInvalidTransition and a nil
// result; callers must not persist anything in that case.
func Apply(in Input, action Action, now time.Time) (*Result, error) {
	switch a := action.(type) {
	case SubmitAction:
		return applySubmit(in, a, now)
	case ResubmitAction:
		return applyResubmit(in, a, now)
	case ApproveAction:
		return applyApprove(in, a, now)
	case RequestChangesAction:
		return applyRequestChanges(in, a, now)
	default:
		return nil, shared.NewDomainError("review", "Apply", shared.ErrInvalidInput, "unknown action")
	}
}

func applySubmit(in Input, a SubmitAction, now time.Time) (*Result, error) {
	if in.Submission != nil {
		return nil, shared.ErrSubmissionAlreadyExists
	}

	sub := newSubmission(a.StudentID, a.LessonID, a.CourseID, a.ContentRef, now)
	return &Result{
		Submission: sub,
		Events: []shared.Event{
			shared.NewSubmissionReceivedEvent(sub.StudentID, sub.CourseID, sub.LessonID, sub.ID, sub.RevisionCount),
		},
	}, nil
}

func applyResubmit(in Input, a ResubmitAction, now time.Time) (*Result, error) {
	if in.Submission == nil {
		return nil, shared.ErrSubmissionNotFound
	}
	if in.Submission.Status != StatusChangesRequested {
		return nil, shared.ErrResubmitNotAllowed
	}

	sub := *in.Submission
	sub.ContentRef = a.ContentRef
	sub.Status = StatusPending
	sub.ReviewerID = ""
	sub.ReviewerComment = ""
	sub.ReviewedAt = nil
	sub.RevisionCount++
	sub.SubmittedAt = now
	sub.UpdatedAt = now

	// Improvement items are left untouched: the student toggles each one
	// explicitly, resubmitting does not mark them done.
	return &Result{
		Submission: &sub,
		Events: []shared.Event{
			shared.NewSubmissionReceivedEvent(sub.StudentID, sub.CourseID, sub.LessonID, sub.ID, sub.RevisionCount),
		},
	}, nil
}

func applyApprove(in Input, a ApproveAction, now time.Time) (*Result, error) {
	if in.Submission == nil {
		return nil, shared.ErrSubmissionNotFound
	}
	if in.Submission.Status == StatusApproved {
		return nil, shared.ErrSubmissionApproved
	}
	if in.Submission.Status != StatusPending {
		return nil, shared.ErrSubmissionNotPending
	}

	sub := *in.Submission
	sub.Status = StatusApproved
	sub.ReviewerID = a.ReviewerID
	sub.ReviewerComment = a.Comment
	sub.ReviewedAt = &now
	sub.UpdatedAt = now

	return &Result{
		Submission: &sub,
		NewReview:  newReview(sub.ID, a.ReviewerID, ReviewApproved, a.Comment, a.TimeSpent, now),
		Events: []shared.Event{
			shared.NewSubmissionApprovedEvent(sub.StudentID, sub.CourseID, sub.LessonID, sub.ID, a.ReviewerID),
		},
	}, nil
}

func applyRequestChanges(in Input, a RequestChangesAction, now time.Time) (*Result, error) {
	if in.Submission == nil {
		return nil, shared.ErrSubmissionNotFound
	}
	if in.Submission.Status == StatusApproved {
		return nil, shared.ErrSubmissionApproved
	}
	if in.Submission.Status != StatusPending {
		return nil, shared.ErrSubmissionNotPending
	}

	sub := *in.Submission
	sub.Status = StatusChangesRequested
	sub.ReviewerID = a.ReviewerID
	sub.ReviewerComment = a.Comment
	sub.ReviewedAt = &now
	sub.UpdatedAt = now

	rev := newReview(sub.ID, a.ReviewerID, ReviewNeedsWork, a.Comment, a.TimeSpent, now)

	// Numbers continue past the highest existing item and are never reused,
	// so history stays addressable across resubmissions.
	items := make([]ImprovementItem, 0, len(a.Improvements))
	next := in.HighestImprovementNumber + 1
	for _, draft := range a.Improvements {
		priority := draft.Priority
		if priority == "" {
			priority = PriorityMedium
		}
		items = append(items, ImprovementItem{
			ID:           uuid.NewString(),
			SubmissionID: sub.ID,
			ReviewID:     rev.ID,
			Number:       next,
			Title:        draft.Title,
			Text:         draft.Text,
			Priority:     priority,
			CreatedAt:    now,
		})
		next++
	}

	return &Result{
		Submission:      &sub,
		NewReview:       rev,
		NewImprovements: items,
		Events: []shared.Event{
			shared.NewChangesRequestedEvent(sub.StudentID, sub.CourseID, sub.LessonID, sub.ID, a.ReviewerID, len(items)),
		},
	}, nil
}
