package command

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/skillforge/skillforge-lms/internal/domain/content"
	"github.com/skillforge/skillforge-lms/internal/domain/review"
	"github.com/skillforge/skillforge-lms/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT WORK COMMAND
// First submission and resubmission share one entry point: the workflow state
// decides which transition applies.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitWorkCommand submits (or resubmits) a student's work for a lesson.
type SubmitWorkCommand struct {
	// StudentID is the internal ID of the student.
	StudentID string

	// LessonID identifies the lesson the work belongs to.
	LessonID string

	// ContentRef points at the submitted artifact (repository URL, upload key).
	ContentRef string
}

// Validate validates the command.
func (c SubmitWorkCommand) Validate() error {
	if c.StudentID == "" {
		return errors.New("submit_work: student_id is required")
	}
	if c.LessonID == "" {
		return errors.New("submit_work: lesson_id is required")
	}
	if c.ContentRef == "" {
		return errors.New("submit_work: content_ref is required")
	}
	return nil
}

// SubmitWorkResult contains the persisted submission after the transition.
type SubmitWorkResult struct {
	Submission *review.Submission

	// Resubmission is true when an earlier attempt existed and the work went
	// back to pending.
	Resubmission bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SubmitWorkHandler handles SubmitWorkCommand.
type SubmitWorkHandler struct {
	contentRepo    content.Repository
	reviewRepo     review.Repository
	eventPublisher shared.EventPublisher
	logger         *slog.Logger
}

// NewSubmitWorkHandler creates a new SubmitWorkHandler.
func NewSubmitWorkHandler(
	contentRepo content.Repository,
	reviewRepo review.Repository,
	eventPublisher shared.EventPublisher,
	logger *slog.Logger,
) *SubmitWorkHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &SubmitWorkHandler{
		contentRepo:    contentRepo,
		reviewRepo:     reviewRepo,
		eventPublisher: eventPublisher,
		logger:         logger,
	}
}

// Handle executes the command. Lessons unlock in order: submitting to a
// lesson requires the preceding lesson's submission to be approved. The first
// lesson of a course has no predecessor and is always open.
func (h *SubmitWorkHandler) Handle(ctx context.Context, cmd SubmitWorkCommand) (*SubmitWorkResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("review", "SubmitWork", shared.ErrValidation, err.Error(), err)
	}

	lesson, err := h.contentRepo.GetLesson(ctx, cmd.LessonID)
	if err != nil {
		return nil, err
	}

	course, err := h.contentRepo.GetCourse(ctx, lesson.CourseID)
	if err != nil {
		return nil, err
	}

	if err := h.checkUnlocked(ctx, cmd.StudentID, course, lesson.ID); err != nil {
		return nil, err
	}

	existing, err := h.reviewRepo.GetByLesson(ctx, cmd.StudentID, cmd.LessonID)
	if err != nil && !shared.IsNotFound(err) {
		return nil, err
	}

	var action review.Action
	if existing == nil {
		action = review.SubmitAction{
			StudentID:  cmd.StudentID,
			LessonID:   cmd.LessonID,
			CourseID:   course.ID,
			ContentRef: cmd.ContentRef,
		}
	} else {
		action = review.ResubmitAction{ContentRef: cmd.ContentRef}
	}

	result, err := review.Apply(review.Input{Submission: existing}, action, time.Now().UTC())
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

	return &SubmitWorkResult{
		Submission:   result.Submission,
		Resubmission: existing != nil,
	}, nil
}

// checkUnlocked enforces the sequential gate. The gate reads workflow state,
// not progress summaries: step completion alone never unlocks the next lesson.
func (h *SubmitWorkHandler) checkUnlocked(ctx context.Context, studentID string, course *content.Course, lessonID string) error {
	prev, ok := course.PrecedingLesson(lessonID)
	if !ok {
		return nil
	}

	prevSub, err := h.reviewRepo.GetByLesson(ctx, studentID, prev.ID)
	if err != nil {
		if shared.IsNotFound(err) {
			return shared.ErrLessonLocked
		}
		return err
	}
	if prevSub.Status != review.StatusApproved {
		return shared.ErrLessonLocked
	}
	return nil
}
