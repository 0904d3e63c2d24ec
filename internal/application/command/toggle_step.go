// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"log/slog"

	"github.com/skillforge/skillforge-lms/internal/domain/content"
	"github.com/skillforge/skillforge-lms/internal/domain/progress"
	"github.com/skillforge/skillforge-lms/internal/domain/shared"
	"github.com/skillforge/skillforge-lms/internal/infrastructure/service"
)

// ══════════════════════════════════════════════════════════════════════════════
// SET STEP COMPLETION COMMAND
// The single write path into the completion ledger. Idempotent: setting a
// step to its current value changes nothing and emits nothing.
// ══════════════════════════════════════════════════════════════════════════════

// SetStepCompletionCommand marks a step complete or incomplete for a student.
type SetStepCompletionCommand struct {
	// StudentID is the internal ID of the student.
	StudentID string

	// StepID identifies the step being toggled.
	StepID string

	// Completed is the desired completion state.
	Completed bool
}

// Validate validates the command.
func (c SetStepCompletionCommand) Validate() error {
	if c.StudentID == "" {
		return errors.New("set_step_completion: student_id is required")
	}
	if c.StepID == "" {
		return errors.New("set_step_completion: step_id is required")
	}
	return nil
}

// SetStepCompletionResult contains the outcome of the write.
type SetStepCompletionResult struct {
	// Fact is the completion fact after the write.
	Fact *progress.CompletionFact

	// Changed is false when the ledger already held the requested value.
	Changed bool

	// Lesson is the fresh per-lesson summary, recomputed after the write.
	Lesson *progress.LessonSummary

	// Course is the fresh per-course summary, recomputed after the write.
	Course *progress.CourseSummary
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SetStepCompletionHandler handles SetStepCompletionCommand.
type SetStepCompletionHandler struct {
	contentRepo    content.Repository
	progressRepo   progress.Repository
	aggregator     *service.ProgressAggregator
	eventPublisher shared.EventPublisher
	logger         *slog.Logger
}

// NewSetStepCompletionHandler creates a new SetStepCompletionHandler.
func NewSetStepCompletionHandler(
	contentRepo content.Repository,
	progressRepo progress.Repository,
	aggregator *service.ProgressAggregator,
	eventPublisher shared.EventPublisher,
	logger *slog.Logger,
) *SetStepCompletionHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &SetStepCompletionHandler{
		contentRepo:    contentRepo,
		progressRepo:   progressRepo,
		aggregator:     aggregator,
		eventPublisher: eventPublisher,
		logger:         logger,
	}
}

// Handle executes the command. The order is fixed: persist the fact,
// invalidate the touched cache keys, then publish. A subsequent read in the
// same client session therefore never sees the pre-write summary.
func (h *SetStepCompletionHandler) Handle(ctx context.Context, cmd SetStepCompletionCommand) (*SetStepCompletionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("progress", "SetStepCompletion", shared.ErrValidation, err.Error(), err)
	}

	// Resolve once so the ledger row and the invalidation target the same
	// lesson and course.
	ref, err := h.contentRepo.ResolveStep(ctx, cmd.StepID)
	if err != nil {
		return nil, err
	}

	fact, err := h.progressRepo.Get(ctx, cmd.StudentID, cmd.StepID)
	changed := false
	switch {
	case err == nil:
		changed = fact.Set(cmd.Completed)
	case shared.IsNotFound(err):
		fact = progress.NewCompletionFact(cmd.StudentID, cmd.StepID, ref.LessonID, ref.CourseID, cmd.Completed)
		changed = true
	default:
		return nil, err
	}

	if changed {
		if err := h.progressRepo.Upsert(ctx, fact); err != nil {
			return nil, err
		}

		h.aggregator.InvalidateStep(ctx, cmd.StudentID, ref.LessonID, ref.CourseID)

		// Persisted state wins over event delivery problems.
		event := shared.NewStepCompletionChangedEvent(
			cmd.StudentID, ref.CourseID, ref.LessonID, cmd.StepID, cmd.Completed,
		)
		if err := h.eventPublisher.Publish(event); err != nil {
			h.logger.Error("event publish failed after committed write",
				"event_type", event.EventType(),
				"student_id", cmd.StudentID,
				"step_id", cmd.StepID,
				"error", err,
			)
		}
	}

	lesson, err := h.aggregator.LessonProgress(ctx, cmd.StudentID, ref.LessonID)
	if err != nil {
		return nil, err
	}

	course, err := h.aggregator.CourseProgress(ctx, cmd.StudentID, ref.CourseID)
	if err != nil {
		return nil, err
	}

	return &SetStepCompletionResult{
		Fact:    fact,
		Changed: changed,
		Lesson:  lesson,
		Course:  course,
	}, nil
}
