package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/skillforge-lms/internal/domain/certificate"
	"github.com/skillforge/skillforge-lms/internal/domain/shared"
)

// fakeCertificateRepo serves certificates by number and by (student, course)
// and counts number lookups so the caching tests can see who answered.
type fakeCertificateRepo struct {
	certs   map[string]*certificate.Certificate // keyed by number
	lookups int
}

func newFakeCertificateRepo(certs ...*certificate.Certificate) *fakeCertificateRepo {
	r := &fakeCertificateRepo{certs: make(map[string]*certificate.Certificate)}
	for _, c := range certs {
		r.certs[c.Number] = c
	}
	return r
}

func (r *fakeCertificateRepo) GetByNumber(_ context.Context, number string) (*certificate.Certificate, error) {
	r.lookups++
	if cert, ok := r.certs[number]; ok {
		cp := *cert
		return &cp, nil
	}
	return nil, shared.ErrCertificateNotFound
}

func (r *fakeCertificateRepo) Get(_ context.Context, studentID, courseID string) (*certificate.Certificate, error) {
	for _, cert := range r.certs {
		if cert.StudentID == studentID && cert.CourseID == courseID {
			cp := *cert
			return &cp, nil
		}
	}
	return nil, shared.ErrCertificateNotFound
}

func (r *fakeCertificateRepo) InsertIfAbsent(_ context.Context, _ *certificate.Certificate) (bool, error) {
	return false, errors.New("not used in these tests")
}

func (r *fakeCertificateRepo) NextSequence(_ context.Context) (int64, error) {
	return 0, errors.New("not used in these tests")
}

func (r *fakeCertificateRepo) UpdateRevocation(_ context.Context, _ *certificate.Certificate) error {
	return errors.New("not used in these tests")
}

func (r *fakeCertificateRepo) UpdateArtifact(_ context.Context, _ *certificate.Certificate) error {
	return errors.New("not used in these tests")
}

func (r *fakeCertificateRepo) ListMissingArtifacts(_ context.Context, _ int) ([]certificate.Certificate, error) {
	return nil, nil
}

// fakeVerifyCache is an in-memory VerificationCache.
type fakeVerifyCache struct {
	entries map[string]*certificate.Certificate
	sets    int
}

func newFakeVerifyCache() *fakeVerifyCache {
	return &fakeVerifyCache{entries: make(map[string]*certificate.Certificate)}
}

func (c *fakeVerifyCache) GetByNumber(_ context.Context, number string) (*certificate.Certificate, error) {
	if cert, ok := c.entries[number]; ok {
		cp := *cert
		return &cp, nil
	}
	return nil, shared.ErrNotFound
}

func (c *fakeVerifyCache) SetByNumber(_ context.Context, cert *certificate.Certificate) {
	cp := *cert
	c.entries[cert.Number] = &cp
	c.sets++
}

func issuedCertificate(studentID string) *certificate.Certificate {
	return certificate.New(studentID, "course-1", studentID+"@example.com", 412, certificate.Stats{
		LessonsCompleted: 2,
		StepsCompleted:   3,
		TotalSteps:       3,
	}, []byte("test-secret"))
}

func TestVerifyCertificate_ValidMatch(t *testing.T) {
	cert := issuedCertificate("student-1")
	h := NewGetCertificateHandler(newFakeCertificateRepo(cert))

	res, err := h.Verify(context.Background(), VerifyCertificateQuery{
		Number: cert.Number,
		Code:   cert.VerificationCode,
	})
	require.NoError(t, err)

	assert.True(t, res.Valid)
	assert.False(t, res.Revoked)
	require.NotNil(t, res.Certificate)
	assert.Equal(t, cert.Number, res.Certificate.Number)
}

func TestVerifyCertificate_WrongCodeLooksLikeUnknownNumber(t *testing.T) {
	cert := issuedCertificate("student-1")
	h := NewGetCertificateHandler(newFakeCertificateRepo(cert))
	ctx := context.Background()

	wrongCode, err := h.Verify(ctx, VerifyCertificateQuery{Number: cert.Number, Code: "not-the-code"})
	require.NoError(t, err)

	unknownNumber, err := h.Verify(ctx, VerifyCertificateQuery{Number: "SF-2026-999999", Code: "whatever"})
	require.NoError(t, err)

	// An employer cannot tell a forged code from a made-up number.
	assert.Equal(t, unknownNumber, wrongCode)
	assert.False(t, wrongCode.Valid)
	assert.False(t, wrongCode.Revoked)
	assert.Nil(t, wrongCode.Certificate)
}

func TestVerifyCertificate_Revoked(t *testing.T) {
	cert := issuedCertificate("student-1")
	require.NoError(t, cert.Revoke("plagiarism confirmed"))
	h := NewGetCertificateHandler(newFakeCertificateRepo(cert))

	res, err := h.Verify(context.Background(), VerifyCertificateQuery{
		Number: cert.Number,
		Code:   cert.VerificationCode,
	})
	require.NoError(t, err)

	assert.False(t, res.Valid)
	assert.True(t, res.Revoked)
	assert.Nil(t, res.Certificate)
}

func TestVerifyCertificate_RepeatLookupServedFromCache(t *testing.T) {
	cert := issuedCertificate("student-1")
	repo := newFakeCertificateRepo(cert)
	cache := newFakeVerifyCache()
	h := NewGetCertificateHandler(repo).WithVerificationCache(cache)
	ctx := context.Background()

	query := VerifyCertificateQuery{Number: cert.Number, Code: cert.VerificationCode}

	first, err := h.Verify(ctx, query)
	require.NoError(t, err)
	assert.True(t, first.Valid)
	assert.Equal(t, 1, repo.lookups)
	assert.Equal(t, 1, cache.sets)

	second, err := h.Verify(ctx, query)
	require.NoError(t, err)
	assert.True(t, second.Valid)
	// The second check never reaches the database.
	assert.Equal(t, 1, repo.lookups)
	assert.Equal(t, 1, cache.sets)
}

func TestVerifyCertificate_UnknownNumberNeverCached(t *testing.T) {
	cache := newFakeVerifyCache()
	h := NewGetCertificateHandler(newFakeCertificateRepo()).WithVerificationCache(cache)

	res, err := h.Verify(context.Background(), VerifyCertificateQuery{
		Number: "SF-2026-999999",
		Code:   "whatever",
	})
	require.NoError(t, err)

	assert.False(t, res.Valid)
	assert.Equal(t, 0, cache.sets)
	assert.Empty(t, cache.entries)
}

func TestGetCertificate_Validation(t *testing.T) {
	h := NewGetCertificateHandler(newFakeCertificateRepo())

	_, err := h.Handle(context.Background(), GetCertificateQuery{CourseID: "course-1"})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = h.Verify(context.Background(), VerifyCertificateQuery{Number: "SF-2026-000001"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}
