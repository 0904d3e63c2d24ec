package command

import (
	"context"
	"errors"

	"github.com/skillforge/skillforge-lms/internal/domain/review"
	"github.com/skillforge/skillforge-lms/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TOGGLE IMPROVEMENT COMMAND
// Student-facing checklist flip. Pure bookkeeping: the submission status is
// never touched.
// ══════════════════════════════════════════════════════════════════════════════

// ToggleImprovementCommand flips the completion flag on an improvement item.
type ToggleImprovementCommand struct {
	// StudentID is the internal ID of the student toggling the item.
	StudentID string

	// ImprovementID identifies the item.
	ImprovementID string
}

// Validate validates the command.
func (c ToggleImprovementCommand) Validate() error {
	if c.StudentID == "" {
		return errors.New("toggle_improvement: student_id is required")
	}
	if c.ImprovementID == "" {
		return errors.New("toggle_improvement: improvement_id is required")
	}
	return nil
}

// ToggleImprovementResult contains the item after the flip.
type ToggleImprovementResult struct {
	Item *review.ImprovementItem
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ToggleImprovementHandler handles ToggleImprovementCommand.
type ToggleImprovementHandler struct {
	reviewRepo review.Repository
}

// NewToggleImprovementHandler creates a new ToggleImprovementHandler.
func NewToggleImprovementHandler(reviewRepo review.Repository) *ToggleImprovementHandler {
	return &ToggleImprovementHandler{reviewRepo: reviewRepo}
}

// Handle executes the command. Only the owning student may toggle an item.
func (h *ToggleImprovementHandler) Handle(ctx context.Context, cmd ToggleImprovementCommand) (*ToggleImprovementResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("review", "ToggleImprovement", shared.ErrValidation, err.Error(), err)
	}

	item, err := h.reviewRepo.GetImprovement(ctx, cmd.ImprovementID)
	if err != nil {
		return nil, err
	}

	sub, err := h.reviewRepo.GetByID(ctx, item.SubmissionID)
	if err != nil {
		return nil, err
	}
	if sub.StudentID != cmd.StudentID {
		return nil, shared.NewDomainError("review", "ToggleImprovement", shared.ErrForbidden, "item belongs to another student")
	}

	item.Toggle()

	if err := h.reviewRepo.UpdateImprovement(ctx, item); err != nil {
		return nil, err
	}

	return &ToggleImprovementResult{Item: item}, nil
}
