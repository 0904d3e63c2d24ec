package query

import (
	"context"
	"errors"

	"github.com/skillforge/skillforge-lms/internal/domain/certificate"
	"github.com/skillforge/skillforge-lms/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET CERTIFICATE QUERY
// Lookup by (student, course) for owners, lookup by number plus code for
// third-party verification.
// ══════════════════════════════════════════════════════════════════════════════

// GetCertificateQuery fetches a student's certificate for a course.
type GetCertificateQuery struct {
	// StudentID is the internal ID of the student.
	StudentID string

	// CourseID identifies the course.
	CourseID string
}

// Validate validates the query parameters.
func (q GetCertificateQuery) Validate() error {
	if q.StudentID == "" {
		return errors.New("student_id is required")
	}
	if q.CourseID == "" {
		return errors.New("course_id is required")
	}
	return nil
}

// VerifyCertificateQuery checks a certificate number against its
// verification code. This is the public endpoint an employer uses.
type VerifyCertificateQuery struct {
	// Number is the printed certificate number.
	Number string

	// Code is the verification code printed next to the number.
	Code string
}

// Validate validates the query parameters.
func (q VerifyCertificateQuery) Validate() error {
	if q.Number == "" {
		return errors.New("number is required")
	}
	if q.Code == "" {
		return errors.New("code is required")
	}
	return nil
}

// VerifyCertificateResult is the verification outcome.
type VerifyCertificateResult struct {
	// Valid is true when the number exists, the code matches and the
	// certificate has not been revoked.
	Valid bool `json:"valid"`

	// Revoked distinguishes a revoked certificate from an unknown or
	// mismatched one. Only set when the number and code were correct.
	Revoked bool `json:"revoked,omitempty"`

	// Certificate is returned only on a valid match.
	Certificate *certificate.Certificate `json:"certificate,omitempty"`
}

// VerificationCache caches certificates by their public number for the
// verification endpoint. Implemented by the Redis certificate cache; writes
// degrade silently so the cache can never fail a lookup.
type VerificationCache interface {
	GetByNumber(ctx context.Context, number string) (*certificate.Certificate, error)
	SetByNumber(ctx context.Context, cert *certificate.Certificate)
}

// GetCertificateHandler handles certificate lookups and verification.
type GetCertificateHandler struct {
	certRepo certificate.Repository
	cache    VerificationCache
}

// NewGetCertificateHandler creates a new GetCertificateHandler.
func NewGetCertificateHandler(certRepo certificate.Repository) *GetCertificateHandler {
	return &GetCertificateHandler{certRepo: certRepo}
}

// WithVerificationCache caches number lookups, typically for an hour.
// Verification is a public, third-party facing read; the cache keeps repeat
// checks of the same number off the database.
func (h *GetCertificateHandler) WithVerificationCache(cache VerificationCache) *GetCertificateHandler {
	h.cache = cache
	return h
}

// Handle fetches the certificate for a (student, course) pair.
func (h *GetCertificateHandler) Handle(ctx context.Context, q GetCertificateQuery) (*certificate.Certificate, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetCertificate", shared.ErrValidation, err.Error(), err)
	}
	return h.certRepo.Get(ctx, q.StudentID, q.CourseID)
}

// Verify checks a number/code pair. An unknown number and a wrong code are
// deliberately indistinguishable in the result.
func (h *GetCertificateHandler) Verify(ctx context.Context, q VerifyCertificateQuery) (*VerifyCertificateResult, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("query", "VerifyCertificate", shared.ErrValidation, err.Error(), err)
	}

	cert, err := h.lookupByNumber(ctx, q.Number)
	if err != nil {
		if shared.IsNotFound(err) {
			return &VerifyCertificateResult{Valid: false}, nil
		}
		return nil, err
	}

	if !cert.Matches(q.Code) {
		return &VerifyCertificateResult{Valid: false}, nil
	}

	if cert.Revoked {
		return &VerifyCertificateResult{Valid: false, Revoked: true}, nil
	}

	return &VerifyCertificateResult{
		Valid:       true,
		Certificate: cert,
	}, nil
}

// lookupByNumber reads through the verification cache. Any cache error,
// including an open circuit, counts as a miss; unknown numbers are never
// cached so a guess at a not-yet-issued number cannot pin a negative entry.
func (h *GetCertificateHandler) lookupByNumber(ctx context.Context, number string) (*certificate.Certificate, error) {
	if h.cache != nil {
		if cert, err := h.cache.GetByNumber(ctx, number); err == nil {
			return cert, nil
		}
	}

	cert, err := h.certRepo.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		h.cache.SetByNumber(ctx, cert)
	}
	return cert, nil
}
