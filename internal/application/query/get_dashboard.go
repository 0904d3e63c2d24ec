package query

import (
	"context"
	"errors"
	"time"

	"github.com/skillforge/skillforge-lms/internal/domain/certificate"
	"github.com/skillforge/skillforge-lms/internal/domain/content"
	"github.com/skillforge/skillforge-lms/internal/domain/progress"
	"github.com/skillforge/skillforge-lms/internal/domain/shared"
	"github.com/skillforge/skillforge-lms/internal/infrastructure/persistence/redis"
	"github.com/skillforge/skillforge-lms/internal/infrastructure/service"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET DASHBOARD QUERY
// The cross-course aggregate for one student. The whole payload is cached as
// one entry with a short TTL; any step write for the student drops it.
// ══════════════════════════════════════════════════════════════════════════════

// GetDashboardQuery contains the parameters for a dashboard read.
type GetDashboardQuery struct {
	// StudentID is the internal ID of the student.
	StudentID string

	// SkipCache forces recomputation from the ledger.
	SkipCache bool
}

// Validate validates the query parameters.
func (q GetDashboardQuery) Validate() error {
	if q.StudentID == "" {
		return errors.New("student_id is required")
	}
	return nil
}

// DashboardCourseDTO is one course line on the dashboard.
type DashboardCourseDTO struct {
	CourseID          string                 `json:"course_id"`
	Title             string                 `json:"title"`
	Summary           progress.CourseSummary `json:"summary"`
	CertificateNumber string                 `json:"certificate_number,omitempty"`
}

// GetDashboardResult is the query result.
type GetDashboardResult struct {
	StudentID   string               `json:"student_id"`
	Courses     []DashboardCourseDTO `json:"courses"`
	GeneratedAt time.Time            `json:"generated_at"`
}

// GetDashboardHandler handles GetDashboardQuery.
type GetDashboardHandler struct {
	contentRepo content.Repository
	aggregator  *service.ProgressAggregator
	certRepo    certificate.Repository
	cache       *redis.ProgressCache
}

// NewGetDashboardHandler creates a new GetDashboardHandler. cache may be nil.
func NewGetDashboardHandler(
	contentRepo content.Repository,
	aggregator *service.ProgressAggregator,
	certRepo certificate.Repository,
	cache *redis.ProgressCache,
) *GetDashboardHandler {
	return &GetDashboardHandler{
		contentRepo: contentRepo,
		aggregator:  aggregator,
		certRepo:    certRepo,
		cache:       cache,
	}
}

// Handle executes the query. Only courses the student has touched appear;
// enrollment as such is not tracked, the ledger is the source of the list.
func (h *GetDashboardHandler) Handle(ctx context.Context, q GetDashboardQuery) (*GetDashboardResult, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetDashboard", shared.ErrValidation, err.Error(), err)
	}

	if h.cache != nil && !q.SkipCache {
		var cached GetDashboardResult
		if err := h.cache.GetDashboard(ctx, q.StudentID, &cached); err == nil {
			return &cached, nil
		}
	}

	courseIDs, err := h.contentRepo.ListCourseIDsForStudent(ctx, q.StudentID)
	if err != nil {
		return nil, err
	}

	result := &GetDashboardResult{
		StudentID:   q.StudentID,
		Courses:     make([]DashboardCourseDTO, 0, len(courseIDs)),
		GeneratedAt: time.Now().UTC(),
	}

	for _, courseID := range courseIDs {
		course, err := h.contentRepo.GetCourse(ctx, courseID)
		if err != nil {
			return nil, err
		}

		summary, err := h.aggregator.CourseProgress(ctx, q.StudentID, courseID)
		if err != nil {
			return nil, err
		}

		dto := DashboardCourseDTO{
			CourseID: courseID,
			Title:    course.Title,
			Summary:  *summary,
		}

		cert, err := h.certRepo.Get(ctx, q.StudentID, courseID)
		switch {
		case err == nil:
			if cert.IsActive() {
				dto.CertificateNumber = cert.Number
			}
		case shared.IsNotFound(err):
		default:
			return nil, err
		}

		result.Courses = append(result.Courses, dto)
	}

	if h.cache != nil && !q.SkipCache {
		// Best effort, the TTL keeps a failed write from mattering for long.
		_ = h.cache.SetDashboard(ctx, q.StudentID, result)
	}

	return result, nil
}
