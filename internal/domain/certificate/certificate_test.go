package certificate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/skillforge-lms/internal/domain/shared"
)

var testSecret = []byte("unit-test-secret")

func TestVerificationCode_Deterministic(t *testing.T) {
	a := VerificationCode("SF-2026-000001", "student-1", testSecret)
	b := VerificationCode("SF-2026-000001", "student-1", testSecret)

	assert.Equal(t, a, b)
	assert.Len(t, a, verificationCodeLen*2) // hex encoded
}

func TestVerificationCode_DistinctInputs(t *testing.T) {
	base := VerificationCode("SF-2026-000001", "student-1", testSecret)

	assert.NotEqual(t, base, VerificationCode("SF-2026-000002", "student-1", testSecret))
	assert.NotEqual(t, base, VerificationCode("SF-2026-000001", "student-2", testSecret))
	assert.NotEqual(t, base, VerificationCode("SF-2026-000001", "student-1", []byte("other-secret")))
}

func TestVerificationCode_NoLengthExtensionAmbiguity(t *testing.T) {
	// Separator bytes keep ("ab", "c") and ("a", "bc") distinct.
	a := VerificationCode("ab", "c", testSecret)
	b := VerificationCode("a", "bc", testSecret)
	assert.NotEqual(t, a, b)
}

func TestNew_PopulatesNumberAndCode(t *testing.T) {
	cert := New("student-1", "course-1", "student-1@example.com", 412, Stats{LessonsCompleted: 8}, testSecret)

	assert.NotEmpty(t, cert.ID)
	assert.Regexp(t, `^SF-\d{4}-000412$`, cert.Number)
	assert.True(t, cert.Matches(VerificationCode(cert.Number, "student-1@example.com", testSecret)))
	assert.True(t, cert.IsActive())
	assert.False(t, cert.HasArtifact())
	assert.Equal(t, 8, cert.Stats.LessonsCompleted)
	assert.False(t, cert.IssuedAt.IsZero())
}

func TestRevokeRestore(t *testing.T) {
	cert := New("student-1", "course-1", "student-1", 1, Stats{}, testSecret)

	require.NoError(t, cert.Revoke("plagiarism report upheld"))
	assert.True(t, cert.Revoked)
	assert.NotNil(t, cert.RevokedAt)
	assert.Equal(t, "plagiarism report upheld", cert.RevokeReason)

	// Double revoke is rejected.
	assert.ErrorIs(t, cert.Revoke("again"), shared.ErrInvalidState)

	require.NoError(t, cert.Restore())
	assert.True(t, cert.IsActive())
	assert.Empty(t, cert.RevokeReason)
	assert.NotNil(t, cert.RestoredAt)

	// Restore without revocation is rejected.
	assert.ErrorIs(t, cert.Restore(), shared.ErrInvalidState)
}
