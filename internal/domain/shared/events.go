// Package shared contains common domain types, errors, and events
// that are used across all domain packages.
package shared

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven certification pipeline.
const (
	// Progress events
	EventStepCompletionChanged EventType = "progress.step_completion_changed"

	// Review events
	EventSubmissionReceived EventType = "review.submission_received"
	EventSubmissionApproved EventType = "review.submission_approved"
	EventChangesRequested   EventType = "review.changes_requested"

	// Certificate events
	EventCertificateIssued  EventType = "certificate.issued"
	EventCertificateRevoked EventType = "certificate.revoked"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// StepCompletionChangedEvent is emitted when a completion fact flips state.
// The certification trigger re-evaluates eligibility on every occurrence,
// so handlers must be idempotent.
type StepCompletionChangedEvent struct {
	BaseEvent
	StudentID string `json:"student_id"`
	CourseID  string `json:"course_id"`
	LessonID  string `json:"lesson_id"`
	StepID    string `json:"step_id"`
	Completed bool   `json:"completed"`
}

// Payload implements Event interface.
func (e StepCompletionChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"course_id":  e.CourseID,
		"lesson_id":  e.LessonID,
		"step_id":    e.StepID,
		"completed":  e.Completed,
	}
}

// NewStepCompletionChangedEvent creates a new StepCompletionChangedEvent.
func NewStepCompletionChangedEvent(studentID, courseID, lessonID, stepID string, completed bool) StepCompletionChangedEvent {
	return StepCompletionChangedEvent{
		BaseEvent: NewBaseEvent(EventStepCompletionChanged, studentID),
		StudentID: studentID,
		CourseID:  courseID,
		LessonID:  lessonID,
		StepID:    stepID,
		Completed: completed,
	}
}

// SubmissionReceivedEvent is emitted on first submit and on each resubmit.
type SubmissionReceivedEvent struct {
	BaseEvent
	StudentID     string `json:"student_id"`
	CourseID      string `json:"course_id"`
	LessonID      string `json:"lesson_id"`
	SubmissionID  string `json:"submission_id"`
	RevisionCount int    `json:"revision_count"`
}

// Payload implements Event interface.
func (e SubmissionReceivedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":     e.StudentID,
		"course_id":      e.CourseID,
		"lesson_id":      e.LessonID,
		"submission_id":  e.SubmissionID,
		"revision_count": e.RevisionCount,
	}
}

// NewSubmissionReceivedEvent creates a new SubmissionReceivedEvent.
func NewSubmissionReceivedEvent(studentID, courseID, lessonID, submissionID string, revisionCount int) SubmissionReceivedEvent {
	return SubmissionReceivedEvent{
		BaseEvent:     NewBaseEvent(EventSubmissionReceived, studentID),
		StudentID:     studentID,
		CourseID:      courseID,
		LessonID:      lessonID,
		SubmissionID:  submissionID,
		RevisionCount: revisionCount,
	}
}

// SubmissionApprovedEvent is emitted when a reviewer approves a submission.
type SubmissionApprovedEvent struct {
	BaseEvent
	StudentID    string `json:"student_id"`
	CourseID     string `json:"course_id"`
	LessonID     string `json:"lesson_id"`
	SubmissionID string `json:"submission_id"`
	ReviewerID   string `json:"reviewer_id"`
}

// Payload implements Event interface.
func (e SubmissionApprovedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":    e.StudentID,
		"course_id":     e.CourseID,
		"lesson_id":     e.LessonID,
		"submission_id": e.SubmissionID,
		"reviewer_id":   e.ReviewerID,
	}
}

// NewSubmissionApprovedEvent creates a new SubmissionApprovedEvent.
func NewSubmissionApprovedEvent(studentID, courseID, lessonID, submissionID, reviewerID string) SubmissionApprovedEvent {
	return SubmissionApprovedEvent{
		BaseEvent:    NewBaseEvent(EventSubmissionApproved, studentID),
		StudentID:    studentID,
		CourseID:     courseID,
		LessonID:     lessonID,
		SubmissionID: submissionID,
		ReviewerID:   reviewerID,
	}
}

// ChangesRequestedEvent is emitted when a reviewer sends a submission back.
type ChangesRequestedEvent struct {
	BaseEvent
	StudentID        string `json:"student_id"`
	CourseID         string `json:"course_id"`
	LessonID         string `json:"lesson_id"`
	SubmissionID     string `json:"submission_id"`
	ReviewerID       string `json:"reviewer_id"`
	ImprovementCount int    `json:"improvement_count"`
}

// Payload implements Event interface.
func (e ChangesRequestedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":        e.StudentID,
		"course_id":         e.CourseID,
		"lesson_id":         e.LessonID,
		"submission_id":     e.SubmissionID,
		"reviewer_id":       e.ReviewerID,
		"improvement_count": e.ImprovementCount,
	}
}

// NewChangesRequestedEvent creates a new ChangesRequestedEvent.
func NewChangesRequestedEvent(studentID, courseID, lessonID, submissionID, reviewerID string, improvements int) ChangesRequestedEvent {
	return ChangesRequestedEvent{
		BaseEvent:        NewBaseEvent(EventChangesRequested, studentID),
		StudentID:        studentID,
		CourseID:         courseID,
		LessonID:         lessonID,
		SubmissionID:     submissionID,
		ReviewerID:       reviewerID,
		ImprovementCount: improvements,
	}
}

// CertificateIssuedEvent is emitted exactly once per (student, course).
type CertificateIssuedEvent struct {
	BaseEvent
	StudentID     string `json:"student_id"`
	CourseID      string `json:"course_id"`
	CertificateID string `json:"certificate_id"`
	Number        string `json:"number"`
}

// Payload implements Event interface.
func (e CertificateIssuedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":     e.StudentID,
		"course_id":      e.CourseID,
		"certificate_id": e.CertificateID,
		"number":         e.Number,
	}
}

// NewCertificateIssuedEvent creates a new CertificateIssuedEvent.
func NewCertificateIssuedEvent(studentID, courseID, certificateID, number string) CertificateIssuedEvent {
	return CertificateIssuedEvent{
		BaseEvent:     NewBaseEvent(EventCertificateIssued, studentID),
		StudentID:     studentID,
		CourseID:      courseID,
		CertificateID: certificateID,
		Number:        number,
	}
}

// CertificateRevokedEvent is emitted when an issued certificate is marked
// inactive. Verification must stop validating the number immediately.
type CertificateRevokedEvent struct {
	BaseEvent
	StudentID     string `json:"student_id"`
	CourseID      string `json:"course_id"`
	CertificateID string `json:"certificate_id"`
	Number        string `json:"number"`
	Reason        string `json:"reason"`
}

// Payload implements Event interface.
func (e CertificateRevokedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":     e.StudentID,
		"course_id":      e.CourseID,
		"certificate_id": e.CertificateID,
		"number":         e.Number,
		"reason":         e.Reason,
	}
}

// NewCertificateRevokedEvent creates a new CertificateRevokedEvent.
func NewCertificateRevokedEvent(studentID, courseID, certificateID, number, reason string) CertificateRevokedEvent {
	return CertificateRevokedEvent{
		BaseEvent:     NewBaseEvent(EventCertificateRevoked, studentID),
		StudentID:     studentID,
		CourseID:      courseID,
		CertificateID: certificateID,
		Number:        number,
		Reason:        reason,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
