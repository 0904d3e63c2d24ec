// Package certificate models issued course certificates. A certificate is
// immutable once issued except for the explicit revoke/restore pair, and at
// most one ever exists per (student, course) - the uniqueness is enforced by
// storage at creation time, not by convention.
package certificate

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skillforge/skillforge-lms/internal/domain/shared"
)

// Stats is the completion snapshot frozen at issuance. It never tracks
// later changes to the ledger or the workflow.
type Stats struct {
	LessonsCompleted    int           `json:"lessons_completed"`
	StepsCompleted      int           `json:"steps_completed"`
	TotalSteps          int           `json:"total_steps"`
	AssignmentsApproved int           `json:"assignments_approved"`
	TotalRevisions      int           `json:"total_revisions"`
	TotalTimeSpent      time.Duration `json:"total_time_spent"`
}

// Certificate is the immutable record of course completion.
type Certificate struct {
	ID        string
	StudentID string
	CourseID  string

	// Number is the human-meaningful certificate number, e.g. "SF-2026-000412".
	Number string

	// VerificationCode is derived deterministically from the number, the
	// student identity and a server secret. It is stable, public, and
	// reveals nothing about the secret.
	VerificationCode string

	Stats    Stats
	IssuedAt time.Time

	// Revocation state. The row is never deleted.
	Revoked      bool
	RevokedAt    *time.Time
	RevokeReason string
	RestoredAt   *time.Time

	// ArtifactURL points at the rendered PDF. Empty until rendering succeeds;
	// rendering is retried independently of issuance.
	ArtifactURL        string
	ArtifactRenderedAt *time.Time
}

// New creates a certificate ready for insertion. sequence feeds the
// human-meaningful number; secret feeds the verification code.
func New(studentID, courseID, studentIdentity string, sequence int64, stats Stats, secret []byte) *Certificate {
	now := time.Now().UTC()
	number := FormatNumber(now.Year(), sequence)

	return &Certificate{
		ID:               uuid.NewString(),
		StudentID:        studentID,
		CourseID:         courseID,
		Number:           number,
		VerificationCode: VerificationCode(number, studentIdentity, secret),
		Stats:            stats,
		IssuedAt:         now,
	}
}

// FormatNumber renders the human-meaningful certificate number.
func FormatNumber(year int, sequence int64) string {
	return fmt.Sprintf("SF-%d-%06d", year, sequence)
}

// Revoke marks the certificate inactive. It does not delete the row and does
// not re-trigger issuance logic.
func (c *Certificate) Revoke(reason string) error {
	if c.Revoked {
		return shared.ErrCertificateRevoked
	}

	now := time.Now().UTC()
	c.Revoked = true
	c.RevokedAt = &now
	c.RevokeReason = reason
	c.RestoredAt = nil
	return nil
}

// Restore reverses a revocation.
func (c *Certificate) Restore() error {
	if !c.Revoked {
		return shared.ErrCertificateNotRevoked
	}

	now := time.Now().UTC()
	c.Revoked = false
	c.RevokeReason = ""
	c.RestoredAt = &now
	return nil
}

// IsActive reports whether the certificate currently stands.
func (c *Certificate) IsActive() bool {
	return !c.Revoked
}

// HasArtifact reports whether the PDF has been rendered.
func (c *Certificate) HasArtifact() bool {
	return c.ArtifactURL != ""
}
