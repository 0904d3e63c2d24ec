package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/skillforge/skillforge-lms/internal/domain/review"
	"github.com/skillforge/skillforge-lms/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REVIEW SUBMISSION COMMAND
// The reviewer verdict: approve, or send back with improvement items.
// ══════════════════════════════════════════════════════════════════════════════

// Verdict is the reviewer decision on a pending submission.
type Verdict string

const (
	VerdictApprove        Verdict = "approve"
	VerdictRequestChanges Verdict = "request_changes"
)

// ImprovementInput is one improvement item accompanying a request-changes
// verdict.
type ImprovementInput struct {
	// Title is the short label shown in the student's checklist.
	Title string

	// Text is the full description of what to fix.
	Text string

	// Priority is low, medium or high. Empty defaults to medium.
	Priority review.Priority
}

// ReviewSubmissionCommand records a reviewer verdict on a submission.
type ReviewSubmissionCommand struct {
	// SubmissionID identifies the submission under review.
	SubmissionID string

	// ReviewerID is the internal ID of the reviewer.
	ReviewerID string

	// Verdict is the decision: approve or request_changes.
	Verdict Verdict

	// Comment is the reviewer's overall feedback.
	Comment string

	// TimeSpent is how long the review took. Accumulated into certificate
	// statistics on course completion.
	TimeSpent time.Duration

	// Improvements are new checklist items. Only valid with request_changes.
	Improvements []ImprovementInput
}

// Validate validates the command.
func (c ReviewSubmissionCommand) Validate() error {
	if c.SubmissionID == "" {
		return errors.New("review_submission: submission_id is required")
	}
	if c.ReviewerID == "" {
		return errors.New("review_submission: reviewer_id is required")
	}
	if c.Verdict != VerdictApprove && c.Verdict != VerdictRequestChanges {
		return fmt.Errorf("review_submission: unknown verdict %q", c.Verdict)
	}
	if c.Verdict == VerdictApprove && len(c.Improvements) > 0 {
		return errors.New("review_submission: improvements require a request_changes verdict")
	}
	if c.TimeSpent < 0 {
		return errors.New("review_submission: time_spent cannot be negative")
	}
	for i, item := range c.Improvements {
		if item.Title == "" {
			return fmt.Errorf("review_submission: improvement %d has no title", i+1)
		}
	}
	return nil
}

// ReviewSubmissionResult contains the workflow state after the verdict.
type ReviewSubmissionResult struct {
	Submission      *review.Submission
	Review          *review.Review
	NewImprovements []review.ImprovementItem
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ReviewSubmissionHandler handles ReviewSubmissionCommand.
type ReviewSubmissionHandler struct {
	reviewRepo     review.Repository
	eventPublisher shared.EventPublisher
	logger         *slog.Logger
}

// NewReviewSubmissionHandler creates a new ReviewSubmissionHandler.
func NewReviewSubmissionHandler(
	reviewRepo review.Repository,
	eventPublisher shared.EventPublisher,
	logger *slog.Logger,
) *ReviewSubmissionHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &ReviewSubmissionHandler{
		reviewRepo:     reviewRepo,
		eventPublisher: eventPublisher,
		logger:         logger,
	}
}

// Handle executes the command. The transition itself is computed by the pure
// state machine; this handler only loads state, persists the outcome
// atomically and publishes afterwards.
func (h *ReviewSubmissionHandler) Handle(ctx context.Context, cmd ReviewSubmissionCommand) (*ReviewSubmissionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("review", "ReviewSubmission", shared.ErrValidation, err.Error(), err)
	}

	sub, err := h.reviewRepo.GetByID(ctx, cmd.SubmissionID)
	if err != nil {
		return nil, err
	}

	var action review.Action
	switch cmd.Verdict {
	case VerdictApprove:
		action = review.ApproveAction{
			ReviewerID: cmd.ReviewerID,
			Comment:    cmd.Comment,
			TimeSpent:  cmd.TimeSpent,
		}
	case VerdictRequestChanges:
		drafts := make([]review.ImprovementDraft, 0, len(cmd.Improvements))
		for _, item := range cmd.Improvements {
			drafts = append(drafts, review.ImprovementDraft{
				Title:    item.Title,
				Text:     item.Text,
				Priority: item.Priority,
			})
		}
		action = review.RequestChangesAction{
			ReviewerID:   cmd.ReviewerID,
			Comment:      cmd.Comment,
			TimeSpent:    cmd.TimeSpent,
			Improvements: drafts,
		}
	}

	highest, err := h.reviewRepo.HighestImprovementNumber(ctx, sub.ID)
	if err != nil {
		return nil, err
	}

	result, err := review.Apply(review.Input{
		Submission:               sub,
		HighestImprovementNumber: highest,
	}, action, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if err := h.reviewRepo.ApplyResult(ctx, result); err != nil {
		return nil, err
	}

	// Persisted state wins over event delivery problems.
	for _, event := range result.Events {
		if err := h.eventPublisher.Publish(event); err != nil {
			h.logger.Error("event publish failed after committed write",
				"event_type", event.EventType(),
				"submission_id", result.Submission.ID,
				"error", err,
			)
		}
	}

	return &ReviewSubmissionResult{
		Submission:      result.Submission,
		Review:          result.NewReview,
		NewImprovements: result.NewImprovements,
	}, nil
}
