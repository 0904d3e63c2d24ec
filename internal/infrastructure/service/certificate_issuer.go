package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/skillforge/skillforge-lms/internal/domain/certificate"
	"github.com/skillforge/skillforge-lms/internal/domain/content"
	"github.com/skillforge/skillforge-lms/internal/domain/review"
	"github.com/skillforge/skillforge-lms/internal/domain/shared"
	"github.com/skillforge/skillforge-lms/pkg/retry"
)

// ArtifactRenderer renders the certificate PDF and returns its URL.
type ArtifactRenderer interface {
	Render(ctx context.Context, cert *certificate.Certificate) (string, error)
}

// Notifier delivers the issuance notification to the student.
type Notifier interface {
	NotifyCertificateIssued(ctx context.Context, cert *certificate.Certificate) error
}

// VerificationCache drops cached verification lookups when a certificate
// changes state. Implemented by the Redis certificate cache.
type VerificationCache interface {
	InvalidateNumber(ctx context.Context, number string)
}

// CertificateIssuer checks course completion and issues certificates.
//
// Issuance is exactly-once per (student, course): eligibility is evaluated
// from the ledger and the workflow tables directly, never from cached
// summaries, and the actual creation is a single atomic insert-if-absent.
// Losing the insert race is a normal outcome, not an error.
type CertificateIssuer struct {
	aggregator  *ProgressAggregator
	contentRepo content.Repository
	reviewRepo  review.Repository
	certRepo    certificate.Repository
	renderer    ArtifactRenderer
	notifier    Notifier
	eventBus    shared.EventPublisher
	certCache   VerificationCache
	secret      []byte
	renderRetry *retry.Retrier
	logger      *slog.Logger
}

// NewCertificateIssuer creates the issuer. renderer and notifier may be nil;
// the corresponding side effects are then skipped (the scheduler backfills
// missing artifacts).
func NewCertificateIssuer(
	aggregator *ProgressAggregator,
	contentRepo content.Repository,
	reviewRepo review.Repository,
	certRepo certificate.Repository,
	renderer ArtifactRenderer,
	notifier Notifier,
	eventBus shared.EventPublisher,
	secret []byte,
	logger *slog.Logger,
) *CertificateIssuer {
	if logger == nil {
		logger = slog.Default()
	}

	return &CertificateIssuer{
		aggregator:  aggregator,
		contentRepo: contentRepo,
		reviewRepo:  reviewRepo,
		certRepo:    certRepo,
		renderer:    renderer,
		notifier:    notifier,
		eventBus:    eventBus,
		secret:      secret,
		renderRetry: retry.RendererRetrier(),
		logger:      logger,
	}
}

// WithVerificationCache invalidates cached verification lookups on revoke
// and restore. cache may be nil.
func (s *CertificateIssuer) WithVerificationCache(cache VerificationCache) *CertificateIssuer {
	s.certCache = cache
	return s
}

// Eligibility is the outcome of a completion check, with the frozen
// statistics to stamp on the certificate if it issues.
type Eligibility struct {
	Eligible bool
	Stats    certificate.Stats
}

// CheckEligibility evaluates the certification criteria from ground truth:
// every step completed (exact count, not the rounded percentage) and every
// lesson's submission approved with none still pending.
func (s *CertificateIssuer) CheckEligibility(ctx context.Context, studentID, courseID string) (*Eligibility, error) {
	summary, err := s.aggregator.CourseProgressFromLedger(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	if !summary.IsComplete() {
		return &Eligibility{}, nil
	}

	course, err := s.contentRepo.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	subs, err := s.reviewRepo.ListByCourse(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}

	byLesson := make(map[string]*review.Submission, len(subs))
	for i := range subs {
		byLesson[subs[i].LessonID] = &subs[i]
	}

	totalRevisions := 0
	approved := 0
	for i := range course.Lessons {
		sub, ok := byLesson[course.Lessons[i].ID]
		if !ok || sub.Status != review.StatusApproved {
			return &Eligibility{}, nil
		}
		approved++
		totalRevisions += sub.RevisionCount
	}

	timeSpent, err := s.reviewRepo.SumReviewTime(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}

	return &Eligibility{
		Eligible: true,
		Stats: certificate.Stats{
			LessonsCompleted:    summary.CompletedLessons,
			StepsCompleted:      summary.CompletedSteps,
			TotalSteps:          summary.TotalSteps,
			AssignmentsApproved: approved,
			TotalRevisions:      totalRevisions,
			TotalTimeSpent:      timeSpent,
		},
	}, nil
}

// IssueIfEligible checks eligibility and issues the certificate when the
// criteria hold. Safe to call any number of times for the same pair: repeat
// calls after issuance are no-ops. Rendering and notification are best
// effort; their failure never rolls back the issued certificate.
func (s *CertificateIssuer) IssueIfEligible(ctx context.Context, studentID, courseID, studentIdentity string) (*certificate.Certificate, error) {
	elig, err := s.CheckEligibility(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	if !elig.Eligible {
		return nil, nil
	}

	seq, err := s.certRepo.NextSequence(ctx)
	if err != nil {
		return nil, err
	}

	cert := certificate.New(studentID, courseID, studentIdentity, seq, elig.Stats, s.secret)

	inserted, err := s.certRepo.InsertIfAbsent(ctx, cert)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Another issuance won the race, or the certificate already existed.
		// The reserved sequence number stays burned.
		s.logger.Debug("certificate already issued",
			"student_id", studentID,
			"course_id", courseID,
		)
		return s.certRepo.Get(ctx, studentID, courseID)
	}

	s.logger.Info("certificate issued",
		"student_id", studentID,
		"course_id", courseID,
		"number", cert.Number,
	)

	if s.eventBus != nil {
		event := shared.NewCertificateIssuedEvent(studentID, courseID, cert.ID, cert.Number)
		if err := s.eventBus.Publish(event); err != nil {
			s.logger.Error("failed to publish certificate issued event", "error", err)
		}
	}

	s.renderAndNotify(ctx, cert)

	return cert, nil
}

// RenderArtifact renders the PDF for an issued certificate and persists its
// location. Retried with backoff; used both inline after issuance and by the
// backfill job for certificates whose render previously failed.
func (s *CertificateIssuer) RenderArtifact(ctx context.Context, cert *certificate.Certificate) error {
	if s.renderer == nil || cert.HasArtifact() {
		return nil
	}

	var url string
	err := s.renderRetry.Do(ctx, func(ctx context.Context) error {
		rendered, err := s.renderer.Render(ctx, cert)
		if err != nil {
			return retry.Retryable(err)
		}
		url = rendered
		return nil
	})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	cert.ArtifactURL = url
	cert.ArtifactRenderedAt = &now

	return s.certRepo.UpdateArtifact(ctx, cert)
}

// Revoke marks an issued certificate inactive.
func (s *CertificateIssuer) Revoke(ctx context.Context, studentID, courseID, reason string) (*certificate.Certificate, error) {
	cert, err := s.certRepo.Get(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}

	if err := cert.Revoke(reason); err != nil {
		return nil, err
	}

	if err := s.certRepo.UpdateRevocation(ctx, cert); err != nil {
		return nil, err
	}

	s.logger.Info("certificate revoked",
		"student_id", studentID,
		"course_id", courseID,
		"number", cert.Number,
		"reason", reason,
	)

	if s.certCache != nil {
		s.certCache.InvalidateNumber(ctx, cert.Number)
	}

	if s.eventBus != nil {
		event := shared.NewCertificateRevokedEvent(studentID, courseID, cert.ID, cert.Number, reason)
		if err := s.eventBus.Publish(event); err != nil {
			s.logger.Error("failed to publish certificate revoked event", "error", err)
		}
	}

	return cert, nil
}

// Restore reverses a revocation. It never re-runs issuance logic; the
// original certificate row simply becomes active again.
func (s *CertificateIssuer) Restore(ctx context.Context, studentID, courseID string) (*certificate.Certificate, error) {
	cert, err := s.certRepo.Get(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}

	if err := cert.Restore(); err != nil {
		return nil, err
	}

	if err := s.certRepo.UpdateRevocation(ctx, cert); err != nil {
		return nil, err
	}

	if s.certCache != nil {
		s.certCache.InvalidateNumber(ctx, cert.Number)
	}

	return cert, nil
}

func (s *CertificateIssuer) renderAndNotify(ctx context.Context, cert *certificate.Certificate) {
	if err := s.RenderArtifact(ctx, cert); err != nil {
		// The scheduler retries certificates without artifacts.
		s.logger.Error("certificate artifact render failed",
			"number", cert.Number,
			"error", err,
		)
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyCertificateIssued(ctx, cert); err != nil {
			s.logger.Error("certificate notification failed",
				"number", cert.Number,
				"error", err,
			)
		}
	}
}
