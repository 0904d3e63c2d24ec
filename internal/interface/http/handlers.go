// Package http implements the REST API of the SkillForge LMS.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/skillforge/skillforge-lms/internal/application/command"
	"github.com/skillforge/skillforge-lms/internal/application/query"
	"github.com/skillforge/skillforge-lms/internal/domain/review"
	"github.com/skillforge/skillforge-lms/internal/domain/shared"
	"github.com/skillforge/skillforge-lms/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "SkillForge LMS API",
		"version":     "v1",
		"description": "Progress tracking, submission review and certification",
		"endpoints": map[string]string{
			"health":    "/health",
			"dashboard": "/api/v1/students/{id}/dashboard",
			"verify":    "/api/v1/certificates/verify",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type setStepCompletionRequest struct {
	StudentID string `json:"student_id"`
	Completed bool   `json:"completed"`
}

// handleSetStepCompletion handles POST /api/v1/steps/{id}/completion
func (s *Server) handleSetStepCompletion(w http.ResponseWriter, r *http.Request) {
	stepID := r.PathValue("id")

	var req setStepCompletionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.deps.SetStepCompletionHandler.Handle(r.Context(), command.SetStepCompletionCommand{
		StudentID: req.StudentID,
		StepID:    stepID,
		Completed: req.Completed,
	})
	if err != nil {
		s.writeDomainError(w, r, err, "failed to set step completion")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetLessonProgress handles GET /api/v1/students/{id}/lessons/{lessonID}/progress
func (s *Server) handleGetLessonProgress(w http.ResponseWriter, r *http.Request) {
	q := query.GetLessonProgressQuery{
		StudentID:         r.PathValue("id"),
		LessonID:          r.PathValue("lessonID"),
		IncludeSubmission: getQueryParamBool(r, "include_submission"),
	}

	result, err := s.deps.GetLessonProgressHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get lesson progress")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetCourseProgress handles GET /api/v1/students/{id}/courses/{courseID}/progress
func (s *Server) handleGetCourseProgress(w http.ResponseWriter, r *http.Request) {
	q := query.GetCourseProgressQuery{
		StudentID:          r.PathValue("id"),
		CourseID:           r.PathValue("courseID"),
		IncludeCertificate: getQueryParamBool(r, "include_certificate"),
	}

	result, err := s.deps.GetCourseProgressHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get course progress")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetDashboard handles GET /api/v1/students/{id}/dashboard
func (s *Server) handleGetDashboard(w http.ResponseWriter, r *http.Request) {
	q := query.GetDashboardQuery{
		StudentID: r.PathValue("id"),
		SkipCache: getQueryParamBool(r, "fresh"),
	}

	result, err := s.deps.GetDashboardHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get dashboard")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBMISSION WORKFLOW HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type submitWorkRequest struct {
	StudentID  string `json:"student_id"`
	ContentRef string `json:"content_ref"`
}

// handleSubmitWork handles POST /api/v1/lessons/{id}/submission
func (s *Server) handleSubmitWork(w http.ResponseWriter, r *http.Request) {
	lessonID := r.PathValue("id")

	var req submitWorkRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.deps.SubmitWorkHandler.Handle(r.Context(), command.SubmitWorkCommand{
		StudentID:  req.StudentID,
		LessonID:   lessonID,
		ContentRef: req.ContentRef,
	})
	if err != nil {
		s.writeDomainError(w, r, err, "failed to submit work")
		return
	}

	status := http.StatusCreated
	if result.Resubmission {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

type reviewSubmissionRequest struct {
	ReviewerID       string `json:"reviewer_id"`
	Verdict          string `json:"verdict"`
	Comment          string `json:"comment"`
	TimeSpentSeconds int    `json:"time_spent_seconds"`
	Improvements     []struct {
		Title    string `json:"title"`
		Text     string `json:"text"`
		Priority string `json:"priority"`
	} `json:"improvements"`
}

// handleReviewSubmission handles POST /api/v1/submissions/{id}/review
func (s *Server) handleReviewSubmission(w http.ResponseWriter, r *http.Request) {
	submissionID := r.PathValue("id")

	var req reviewSubmissionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	cmd := command.ReviewSubmissionCommand{
		SubmissionID: submissionID,
		ReviewerID:   req.ReviewerID,
		Verdict:      command.Verdict(req.Verdict),
		Comment:      req.Comment,
		TimeSpent:    time.Duration(req.TimeSpentSeconds) * time.Second,
	}
	for _, item := range req.Improvements {
		cmd.Improvements = append(cmd.Improvements, command.ImprovementInput{
			Title:    item.Title,
			Text:     item.Text,
			Priority: review.Priority(item.Priority),
		})
	}

	result, err := s.deps.ReviewSubmissionHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to review submission")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type toggleImprovementRequest struct {
	StudentID string `json:"student_id"`
}

// handleToggleImprovement handles POST /api/v1/improvements/{id}/toggle
func (s *Server) handleToggleImprovement(w http.ResponseWriter, r *http.Request) {
	improvementID := r.PathValue("id")

	var req toggleImprovementRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.deps.ToggleImprovementHandler.Handle(r.Context(), command.ToggleImprovementCommand{
		StudentID:     req.StudentID,
		ImprovementID: improvementID,
	})
	if err != nil {
		s.writeDomainError(w, r, err, "failed to toggle improvement")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// CERTIFICATE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetCertificate handles GET /api/v1/students/{id}/courses/{courseID}/certificate
func (s *Server) handleGetCertificate(w http.ResponseWriter, r *http.Request) {
	q := query.GetCertificateQuery{
		StudentID: r.PathValue("id"),
		CourseID:  r.PathValue("courseID"),
	}

	cert, err := s.deps.GetCertificateHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get certificate")
		return
	}

	writeJSON(w, http.StatusOK, cert)
}

// handleVerifyCertificate handles GET /api/v1/certificates/verify
func (s *Server) handleVerifyCertificate(w http.ResponseWriter, r *http.Request) {
	q := query.VerifyCertificateQuery{
		Number: getQueryParam(r, "number", ""),
		Code:   getQueryParam(r, "code", ""),
	}

	result, err := s.deps.GetCertificateHandler.Verify(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to verify certificate")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type revokeCertificateRequest struct {
	Reason string `json:"reason"`
}

// handleRevokeCertificate handles POST /api/v1/students/{id}/courses/{courseID}/certificate/revoke
func (s *Server) handleRevokeCertificate(w http.ResponseWriter, r *http.Request) {
	var req revokeCertificateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	cert, err := s.deps.CertificateIssuer.Revoke(r.Context(), r.PathValue("id"), r.PathValue("courseID"), req.Reason)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to revoke certificate")
		return
	}

	writeJSON(w, http.StatusOK, cert)
}

// handleRestoreCertificate handles POST /api/v1/students/{id}/courses/{courseID}/certificate/restore
func (s *Server) handleRestoreCertificate(w http.ResponseWriter, r *http.Request) {
	cert, err := s.deps.CertificateIssuer.Restore(r.Context(), r.PathValue("id"), r.PathValue("courseID"))
	if err != nil {
		s.writeDomainError(w, r, err, "failed to restore certificate")
		return
	}

	writeJSON(w, http.StatusOK, cert)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError maps domain errors to HTTP status codes. The workflow
// errors map to 409 because the request was well formed but the state no
// longer admits the transition.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	switch {
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		writeJSONError(w, http.StatusForbidden, "forbidden", err.Error())
	case shared.IsInvalidTransition(err) || errors.Is(err, shared.ErrInvalidState):
		writeJSONError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, shared.ErrValidation) || errors.Is(err, shared.ErrInvalidInput):
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		s.logger.Error(logMsg,
			logger.Err(err),
			logger.String("path", r.URL.Path),
			logger.String("request_id", getRequestID(r.Context())),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

// decodeBody decodes a JSON request body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	defer r.Body.Close()

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := decoder.Decode(dest); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return false
	}
	return true
}
