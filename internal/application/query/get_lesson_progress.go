// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"

	"github.com/skillforge/skillforge-lms/internal/domain/progress"
	"github.com/skillforge/skillforge-lms/internal/domain/review"
	"github.com/skillforge/skillforge-lms/internal/domain/shared"
	"github.com/skillforge/skillforge-lms/internal/infrastructure/service"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LESSON PROGRESS QUERY
// The per-lesson view: step counts plus the submission workflow state for the
// same lesson, so the client renders one screen from one call.
// ══════════════════════════════════════════════════════════════════════════════

// GetLessonProgressQuery contains the parameters for a lesson progress read.
type GetLessonProgressQuery struct {
	// StudentID is the internal ID of the student.
	StudentID string

	// LessonID identifies the lesson.
	LessonID string

	// IncludeSubmission also loads the submission and its improvement items.
	IncludeSubmission bool
}

// Validate validates the query parameters.
func (q GetLessonProgressQuery) Validate() error {
	if q.StudentID == "" {
		return errors.New("student_id is required")
	}
	if q.LessonID == "" {
		return errors.New("lesson_id is required")
	}
	return nil
}

// SubmissionDTO is the workflow state attached to a lesson progress read.
type SubmissionDTO struct {
	ID              string                   `json:"id"`
	Status          review.Status            `json:"status"`
	ContentRef      string                   `json:"content_ref"`
	ReviewerComment string                   `json:"reviewer_comment,omitempty"`
	RevisionCount   int                      `json:"revision_count"`
	Improvements    []review.ImprovementItem `json:"improvements,omitempty"`
}

// GetLessonProgressResult is the query result.
type GetLessonProgressResult struct {
	Summary *progress.LessonSummary `json:"summary"`

	// Submission is nil when the student has not submitted yet or the
	// query did not ask for it.
	Submission *SubmissionDTO `json:"submission,omitempty"`
}

// GetLessonProgressHandler handles GetLessonProgressQuery.
type GetLessonProgressHandler struct {
	aggregator *service.ProgressAggregator
	reviewRepo review.Repository
}

// NewGetLessonProgressHandler creates a new GetLessonProgressHandler.
func NewGetLessonProgressHandler(
	aggregator *service.ProgressAggregator,
	reviewRepo review.Repository,
) *GetLessonProgressHandler {
	return &GetLessonProgressHandler{
		aggregator: aggregator,
		reviewRepo: reviewRepo,
	}
}

// Handle executes the query.
func (h *GetLessonProgressHandler) Handle(ctx context.Context, q GetLessonProgressQuery) (*GetLessonProgressResult, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetLessonProgress", shared.ErrValidation, err.Error(), err)
	}

	summary, err := h.aggregator.LessonProgress(ctx, q.StudentID, q.LessonID)
	if err != nil {
		return nil, err
	}

	result := &GetLessonProgressResult{Summary: summary}

	if q.IncludeSubmission {
		sub, err := h.reviewRepo.GetByLesson(ctx, q.StudentID, q.LessonID)
		switch {
		case err == nil:
			items, err := h.reviewRepo.ListImprovements(ctx, sub.ID)
			if err != nil {
				return nil, err
			}
			result.Submission = &SubmissionDTO{
				ID:              sub.ID,
				Status:          sub.Status,
				ContentRef:      sub.ContentRef,
				ReviewerComment: sub.ReviewerComment,
				RevisionCount:   sub.RevisionCount,
				Improvements:    items,
			}
		case shared.IsNotFound(err):
			// No submission yet, the summary alone is the answer.
		default:
			return nil, err
		}
	}

	return result, nil
}
