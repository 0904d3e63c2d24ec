// Package eventhandler contains domain event handlers. They are the reactive
// part of the system: side effects like certificate issuance run here, after
// the triggering write has committed.
package eventhandler

import (
	"context"
	"log/slog"
	"time"

	"github.com/skillforge/skillforge-lms/internal/domain/shared"
	"github.com/skillforge/skillforge-lms/internal/infrastructure/service"
)

// ═══════════════════════════════════════════════════════════════════════════
// CERTIFICATION TRIGGER
// Listens for the two events that can complete a course: a step completion
// flip and a submission approval. Every occurrence re-evaluates eligibility
// from scratch; issuance itself is exactly-once, so over-triggering is
// harmless and under-triggering is the only real bug.
// ═══════════════════════════════════════════════════════════════════════════

// CertificationTriggerHandler evaluates certificate eligibility when progress
// or workflow state changes.
type CertificationTriggerHandler struct {
	issuer *service.CertificateIssuer
	logger *slog.Logger
	config CertificationTriggerConfig
}

// CertificationTriggerConfig contains the handler configuration.
type CertificationTriggerConfig struct {
	// EvaluationTimeout bounds one eligibility check plus issuance.
	EvaluationTimeout time.Duration
}

// DefaultCertificationTriggerConfig returns the default configuration.
func DefaultCertificationTriggerConfig() CertificationTriggerConfig {
	return CertificationTriggerConfig{
		EvaluationTimeout: 10 * time.Second,
	}
}

// NewCertificationTriggerHandler creates the handler.
func NewCertificationTriggerHandler(
	issuer *service.CertificateIssuer,
	logger *slog.Logger,
	config CertificationTriggerConfig,
) *CertificationTriggerHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &CertificationTriggerHandler{
		issuer: issuer,
		logger: logger.With("handler", "certification_trigger"),
		config: config,
	}
}

// HandleStepCompletionChanged reacts to a completion ledger write.
// Implements shared.EventHandler.
func (h *CertificationTriggerHandler) HandleStepCompletionChanged(event shared.Event) error {
	stepEvent, ok := event.(shared.StepCompletionChangedEvent)
	if !ok {
		h.logger.Warn("received non-StepCompletionChangedEvent", "event_type", event.EventType())
		return nil
	}

	// Un-completing a step can only move the student away from eligibility.
	if !stepEvent.Completed {
		return nil
	}

	return h.evaluate(stepEvent.StudentID, stepEvent.CourseID)
}

// HandleSubmissionApproved reacts to a reviewer approval.
// Implements shared.EventHandler.
func (h *CertificationTriggerHandler) HandleSubmissionApproved(event shared.Event) error {
	subEvent, ok := event.(shared.SubmissionApprovedEvent)
	if !ok {
		h.logger.Warn("received non-SubmissionApprovedEvent", "event_type", event.EventType())
		return nil
	}

	return h.evaluate(subEvent.StudentID, subEvent.CourseID)
}

func (h *CertificationTriggerHandler) evaluate(studentID, courseID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.EvaluationTimeout)
	defer cancel()

	cert, err := h.issuer.IssueIfEligible(ctx, studentID, courseID, studentID)
	if err != nil {
		h.logger.Error("eligibility evaluation failed",
			"student_id", studentID,
			"course_id", courseID,
			"error", err,
		)
		return err
	}

	if cert != nil {
		h.logger.Info("certification evaluated",
			"student_id", studentID,
			"course_id", courseID,
			"number", cert.Number,
		)
	}

	return nil
}
