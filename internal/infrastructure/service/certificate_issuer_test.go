package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/skillforge-lms/internal/domain/certificate"
	"github.com/skillforge/skillforge-lms/internal/domain/shared"
)

type issuerEnv struct {
	issuer       *CertificateIssuer
	progressRepo *fakeProgressRepo
	reviewRepo   *fakeReviewRepo
	certRepo     *fakeCertRepo
	renderer     *fakeRenderer
	notifier     *fakeNotifier
	publisher    *recordingPublisher
	certCache    *fakeVerificationCache
}

func newIssuerEnv() *issuerEnv {
	course := testCourse()
	env := &issuerEnv{
		progressRepo: &fakeProgressRepo{},
		reviewRepo:   &fakeReviewRepo{},
		certRepo:     newFakeCertRepo(),
		renderer:     &fakeRenderer{url: "https://cdn.skillforge.dev/certs/x.pdf"},
		notifier:     &fakeNotifier{},
		publisher:    &recordingPublisher{},
		certCache:    &fakeVerificationCache{},
	}

	contentRepo := &fakeContentRepo{course: course}
	aggregator := NewProgressAggregator(contentRepo, env.progressRepo, nil, quietLogger())
	env.issuer = NewCertificateIssuer(
		aggregator,
		contentRepo,
		env.reviewRepo,
		env.certRepo,
		env.renderer,
		env.notifier,
		env.publisher,
		[]byte("test-secret"),
		quietLogger(),
	).WithVerificationCache(env.certCache)
	return env
}

// completeCourse stages a fully certifiable student: all steps done, every
// lesson's submission approved.
func (env *issuerEnv) completeCourse(studentID string) {
	course := testCourse()
	env.progressRepo.complete(studentID, course, "s1", "s2", "s3")
	env.reviewRepo.approve(studentID, "lesson-1", "course-1", 2)
	env.reviewRepo.approve(studentID, "lesson-2", "course-1", 0)
	env.reviewRepo.reviewTime = 45 * time.Minute
}

func TestCheckEligibility_IncompleteSteps(t *testing.T) {
	env := newIssuerEnv()
	env.progressRepo.complete("student-1", testCourse(), "s1", "s2") // s3 missing
	env.reviewRepo.approve("student-1", "lesson-1", "course-1", 0)
	env.reviewRepo.approve("student-1", "lesson-2", "course-1", 0)

	elig, err := env.issuer.CheckEligibility(context.Background(), "student-1", "course-1")
	require.NoError(t, err)
	assert.False(t, elig.Eligible)
}

func TestCheckEligibility_PendingSubmissionBlocks(t *testing.T) {
	env := newIssuerEnv()
	env.progressRepo.complete("student-1", testCourse(), "s1", "s2", "s3")
	env.reviewRepo.approve("student-1", "lesson-1", "course-1", 0)
	env.reviewRepo.pending("student-1", "lesson-2", "course-1")

	elig, err := env.issuer.CheckEligibility(context.Background(), "student-1", "course-1")
	require.NoError(t, err)
	assert.False(t, elig.Eligible)
}

func TestCheckEligibility_MissingSubmissionBlocks(t *testing.T) {
	env := newIssuerEnv()
	env.progressRepo.complete("student-1", testCourse(), "s1", "s2", "s3")
	env.reviewRepo.approve("student-1", "lesson-1", "course-1", 0)
	// lesson-2 never submitted

	elig, err := env.issuer.CheckEligibility(context.Background(), "student-1", "course-1")
	require.NoError(t, err)
	assert.False(t, elig.Eligible)
}

func TestCheckEligibility_AllCriteriaMet(t *testing.T) {
	env := newIssuerEnv()
	env.completeCourse("student-1")

	elig, err := env.issuer.CheckEligibility(context.Background(), "student-1", "course-1")
	require.NoError(t, err)
	require.True(t, elig.Eligible)

	assert.Equal(t, 2, elig.Stats.LessonsCompleted)
	assert.Equal(t, 3, elig.Stats.StepsCompleted)
	assert.Equal(t, 3, elig.Stats.TotalSteps)
	assert.Equal(t, 2, elig.Stats.AssignmentsApproved)
	assert.Equal(t, 2, elig.Stats.TotalRevisions)
	assert.Equal(t, 45*time.Minute, elig.Stats.TotalTimeSpent)
}

func TestIssueIfEligible_NotEligibleIsQuietNoOp(t *testing.T) {
	env := newIssuerEnv()

	cert, err := env.issuer.IssueIfEligible(context.Background(), "student-1", "course-1", "student@example.com")
	require.NoError(t, err)
	assert.Nil(t, cert)
	assert.Equal(t, 0, env.certRepo.inserts)
	assert.Empty(t, env.publisher.events)
}

func TestIssueIfEligible_Issues(t *testing.T) {
	env := newIssuerEnv()
	env.completeCourse("student-1")

	cert, err := env.issuer.IssueIfEligible(context.Background(), "student-1", "course-1", "student@example.com")
	require.NoError(t, err)
	require.NotNil(t, cert)

	assert.NotEmpty(t, cert.Number)
	assert.NotEmpty(t, cert.VerificationCode)
	assert.Equal(t, 3, cert.Stats.StepsCompleted)

	stored, err := env.certRepo.Get(context.Background(), "student-1", "course-1")
	require.NoError(t, err)
	assert.Equal(t, cert.Number, stored.Number)
	// Artifact rendered inline and persisted.
	assert.Equal(t, "https://cdn.skillforge.dev/certs/x.pdf", stored.ArtifactURL)

	require.Len(t, env.publisher.events, 1)
	assert.Equal(t, shared.EventCertificateIssued, env.publisher.events[0].EventType())
	assert.Equal(t, []string{cert.Number}, env.notifier.notified)
}

func TestIssueIfEligible_ExactlyOnce(t *testing.T) {
	env := newIssuerEnv()
	env.completeCourse("student-1")
	ctx := context.Background()

	first, err := env.issuer.IssueIfEligible(ctx, "student-1", "course-1", "student@example.com")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := env.issuer.IssueIfEligible(ctx, "student-1", "course-1", "student@example.com")
	require.NoError(t, err)
	require.NotNil(t, second)

	// The second call loses the insert and returns the original certificate.
	assert.Equal(t, first.Number, second.Number)
	assert.Equal(t, 2, env.certRepo.inserts)
	assert.Len(t, env.certRepo.certs, 1)

	// Only the winning insert publishes and notifies.
	assert.Len(t, env.publisher.events, 1)
	assert.Len(t, env.notifier.notified, 1)
}

func TestIssueIfEligible_ConcurrentCallersSingleWinner(t *testing.T) {
	env := newIssuerEnv()
	env.completeCourse("student-1")

	// Simultaneous triggers for the same pair, the way a step completion and
	// an approval can land together. Exactly one insert may win.
	const callers = 16
	certs := make([]*certificate.Certificate, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			certs[i], errs[i] = env.issuer.IssueIfEligible(
				context.Background(), "student-1", "course-1", "student@example.com",
			)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, certs[i])
		// Losers read back the winner's row, so every caller sees one number.
		assert.Equal(t, certs[0].Number, certs[i].Number)
	}

	assert.Len(t, env.certRepo.certs, 1)
	assert.Len(t, env.publisher.events, 1)
	assert.Len(t, env.notifier.notified, 1)
}

func TestIssueIfEligible_RenderFailureDoesNotRollBack(t *testing.T) {
	env := newIssuerEnv()
	env.completeCourse("student-1")
	env.renderer.err = errors.New("renderer down")

	cert, err := env.issuer.IssueIfEligible(context.Background(), "student-1", "course-1", "student@example.com")
	require.NoError(t, err)
	require.NotNil(t, cert)

	stored, err := env.certRepo.Get(context.Background(), "student-1", "course-1")
	require.NoError(t, err)
	assert.Empty(t, stored.ArtifactURL, "artifact stays missing until the backfill job succeeds")

	// Issuance event and notification still go out.
	assert.Len(t, env.publisher.events, 1)
	assert.Len(t, env.notifier.notified, 1)
}

func TestRenderArtifact_SkipsRenderedCertificates(t *testing.T) {
	env := newIssuerEnv()
	env.completeCourse("student-1")

	cert, err := env.issuer.IssueIfEligible(context.Background(), "student-1", "course-1", "student@example.com")
	require.NoError(t, err)
	require.True(t, cert.HasArtifact())

	callsAfterIssue := env.renderer.calls
	require.NoError(t, env.issuer.RenderArtifact(context.Background(), cert))
	assert.Equal(t, callsAfterIssue, env.renderer.calls)
}

func TestRevokeAndRestore(t *testing.T) {
	env := newIssuerEnv()
	env.completeCourse("student-1")
	ctx := context.Background()

	_, err := env.issuer.IssueIfEligible(ctx, "student-1", "course-1", "student@example.com")
	require.NoError(t, err)

	revoked, err := env.issuer.Revoke(ctx, "student-1", "course-1", "plagiarism confirmed")
	require.NoError(t, err)
	assert.True(t, revoked.Revoked)
	assert.Equal(t, "plagiarism confirmed", revoked.RevokeReason)
	assert.NotNil(t, revoked.RevokedAt)

	// Revocation announces itself and drops the cached verification entry.
	require.Len(t, env.publisher.events, 2)
	revokedEvent, ok := env.publisher.events[1].(shared.CertificateRevokedEvent)
	require.True(t, ok)
	assert.Equal(t, revoked.Number, revokedEvent.Number)
	assert.Equal(t, "plagiarism confirmed", revokedEvent.Reason)
	assert.Equal(t, []string{revoked.Number}, env.certCache.invalidated)

	// Double revoke is an invalid state change.
	_, err = env.issuer.Revoke(ctx, "student-1", "course-1", "again")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	restored, err := env.issuer.Restore(ctx, "student-1", "course-1")
	require.NoError(t, err)
	assert.False(t, restored.Revoked)
	assert.Empty(t, restored.RevokeReason)
	assert.NotNil(t, restored.RestoredAt)

	// Restore invalidates the lookup too, so verification sees the row again.
	assert.Equal(t, []string{restored.Number, restored.Number}, env.certCache.invalidated)

	// Restore without a revocation is likewise rejected.
	_, err = env.issuer.Restore(ctx, "student-1", "course-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestRevoke_NoCertificate(t *testing.T) {
	env := newIssuerEnv()

	_, err := env.issuer.Revoke(context.Background(), "student-1", "course-1", "reason")
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
}
