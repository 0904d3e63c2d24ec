package query

import (
	"context"
	"errors"

	"github.com/skillforge/skillforge-lms/internal/domain/certificate"
	"github.com/skillforge/skillforge-lms/internal/domain/content"
	"github.com/skillforge/skillforge-lms/internal/domain/progress"
	"github.com/skillforge/skillforge-lms/internal/domain/review"
	"github.com/skillforge/skillforge-lms/internal/domain/shared"
	"github.com/skillforge/skillforge-lms/internal/infrastructure/service"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET COURSE PROGRESS QUERY
// Course summary plus per-lesson workflow states. The lock state of each
// lesson is derived here so the client never re-implements the gating rule.
// ══════════════════════════════════════════════════════════════════════════════

// GetCourseProgressQuery contains the parameters for a course progress read.
type GetCourseProgressQuery struct {
	// StudentID is the internal ID of the student.
	StudentID string

	// CourseID identifies the course.
	CourseID string

	// IncludeCertificate also looks up an issued certificate.
	IncludeCertificate bool
}

// Validate validates the query parameters.
func (q GetCourseProgressQuery) Validate() error {
	if q.StudentID == "" {
		return errors.New("student_id is required")
	}
	if q.CourseID == "" {
		return errors.New("course_id is required")
	}
	return nil
}

// LessonStateDTO combines step progress with the workflow state of one lesson.
type LessonStateDTO struct {
	LessonID         string        `json:"lesson_id"`
	Title            string        `json:"title"`
	Position         int           `json:"position"`
	CompletedSteps   int           `json:"completed_steps"`
	TotalSteps       int           `json:"total_steps"`
	SubmissionStatus review.Status `json:"submission_status,omitempty"`

	// Locked is true while the preceding lesson's submission is not approved.
	Locked bool `json:"locked"`
}

// GetCourseProgressResult is the query result.
type GetCourseProgressResult struct {
	Summary *progress.CourseSummary `json:"summary"`
	Lessons []LessonStateDTO        `json:"lessons"`

	// Certificate is set when one has been issued and the query asked for it.
	Certificate *certificate.Certificate `json:"certificate,omitempty"`
}

// GetCourseProgressHandler handles GetCourseProgressQuery.
type GetCourseProgressHandler struct {
	contentRepo content.Repository
	aggregator  *service.ProgressAggregator
	reviewRepo  review.Repository
	certRepo    certificate.Repository
}

// NewGetCourseProgressHandler creates a new GetCourseProgressHandler.
func NewGetCourseProgressHandler(
	contentRepo content.Repository,
	aggregator *service.ProgressAggregator,
	reviewRepo review.Repository,
	certRepo certificate.Repository,
) *GetCourseProgressHandler {
	return &GetCourseProgressHandler{
		contentRepo: contentRepo,
		aggregator:  aggregator,
		reviewRepo:  reviewRepo,
		certRepo:    certRepo,
	}
}

// Handle executes the query.
func (h *GetCourseProgressHandler) Handle(ctx context.Context, q GetCourseProgressQuery) (*GetCourseProgressResult, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetCourseProgress", shared.ErrValidation, err.Error(), err)
	}

	course, err := h.contentRepo.GetCourse(ctx, q.CourseID)
	if err != nil {
		return nil, err
	}

	summary, err := h.aggregator.CourseProgress(ctx, q.StudentID, q.CourseID)
	if err != nil {
		return nil, err
	}

	subs, err := h.reviewRepo.ListByCourse(ctx, q.StudentID, q.CourseID)
	if err != nil {
		return nil, err
	}
	statusByLesson := make(map[string]review.Status, len(subs))
	for i := range subs {
		statusByLesson[subs[i].LessonID] = subs[i].Status
	}

	lessons := make([]LessonStateDTO, 0, len(course.Lessons))
	prevApproved := true
	for _, lesson := range course.OrderedLessons() {
		ls, err := h.aggregator.LessonProgress(ctx, q.StudentID, lesson.ID)
		if err != nil {
			return nil, err
		}
		lessons = append(lessons, LessonStateDTO{
			LessonID:         lesson.ID,
			Title:            lesson.Title,
			Position:         lesson.Position,
			CompletedSteps:   ls.CompletedSteps,
			TotalSteps:       ls.TotalSteps,
			SubmissionStatus: statusByLesson[lesson.ID],
			Locked:           !prevApproved,
		})
		prevApproved = statusByLesson[lesson.ID] == review.StatusApproved
	}

	result := &GetCourseProgressResult{
		Summary: summary,
		Lessons: lessons,
	}

	if q.IncludeCertificate {
		cert, err := h.certRepo.Get(ctx, q.StudentID, q.CourseID)
		switch {
		case err == nil:
			result.Certificate = cert
		case shared.IsNotFound(err):
			// Not issued yet.
		default:
			return nil, err
		}
	}

	return result, nil
}
