package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/skillforge/skillforge-lms/internal/domain/certificate"
	"github.com/skillforge/skillforge-lms/internal/domain/content"
	"github.com/skillforge/skillforge-lms/internal/domain/progress"
	"github.com/skillforge/skillforge-lms/internal/domain/review"
	"github.com/skillforge/skillforge-lms/internal/domain/shared"
)

// In-memory fixtures for the aggregator and issuer tests. The course is a
// small two-lesson tree so completion edges (one step missing, one lesson
// unapproved) are easy to stage.

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCourse() *content.Course {
	return &content.Course{
		ID:    "course-1",
		Slug:  "go-basics",
		Title: "Go Basics",
		Lessons: []content.Lesson{
			{
				ID:       "lesson-1",
				CourseID: "course-1",
				Position: 1,
				Steps: []content.Step{
					{ID: "s1", LessonID: "lesson-1", Position: 1},
					{ID: "s2", LessonID: "lesson-1", Position: 2},
				},
			},
			{
				ID:       "lesson-2",
				CourseID: "course-1",
				Position: 2,
				Steps: []content.Step{
					{ID: "s3", LessonID: "lesson-2", Position: 1},
				},
			},
		},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Content
// ─────────────────────────────────────────────────────────────────────────────

type fakeContentRepo struct {
	course *content.Course
}

func (r *fakeContentRepo) GetCourse(_ context.Context, courseID string) (*content.Course, error) {
	if r.course != nil && r.course.ID == courseID {
		return r.course, nil
	}
	return nil, shared.ErrCourseNotFound
}

func (r *fakeContentRepo) GetLesson(_ context.Context, lessonID string) (*content.Lesson, error) {
	if r.course == nil {
		return nil, shared.ErrLessonNotFound
	}
	if l, ok := r.course.LessonByID(lessonID); ok {
		return l, nil
	}
	return nil, shared.ErrLessonNotFound
}

func (r *fakeContentRepo) ResolveStep(_ context.Context, stepID string) (content.StepRef, error) {
	if r.course != nil {
		for i := range r.course.Lessons {
			for _, s := range r.course.Lessons[i].Steps {
				if s.ID == stepID {
					return content.StepRef{StepID: stepID, LessonID: r.course.Lessons[i].ID, CourseID: r.course.ID}, nil
				}
			}
		}
	}
	return content.StepRef{}, shared.ErrStepNotFound
}

func (r *fakeContentRepo) ListCourseIDsForStudent(_ context.Context, _ string) ([]string, error) {
	if r.course == nil {
		return nil, nil
	}
	return []string{r.course.ID}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Progress ledger
// ─────────────────────────────────────────────────────────────────────────────

type fakeProgressRepo struct {
	facts []progress.CompletionFact
}

func (r *fakeProgressRepo) complete(studentID string, course *content.Course, stepIDs ...string) {
	for _, stepID := range stepIDs {
		for i := range course.Lessons {
			for _, s := range course.Lessons[i].Steps {
				if s.ID == stepID {
					r.facts = append(r.facts, progress.CompletionFact{
						StudentID:   studentID,
						StepID:      stepID,
						LessonID:    course.Lessons[i].ID,
						CourseID:    course.ID,
						IsCompleted: true,
						CompletedAt: time.Now().UTC(),
					})
				}
			}
		}
	}
}

func (r *fakeProgressRepo) Upsert(_ context.Context, fact *progress.CompletionFact) error {
	r.facts = append(r.facts, *fact)
	return nil
}

func (r *fakeProgressRepo) Get(_ context.Context, studentID, stepID string) (*progress.CompletionFact, error) {
	for i := range r.facts {
		if r.facts[i].StudentID == studentID && r.facts[i].StepID == stepID {
			cp := r.facts[i]
			return &cp, nil
		}
	}
	return nil, shared.ErrCompletionNotFound
}

func (r *fakeProgressRepo) ListByLesson(_ context.Context, studentID, lessonID string) ([]progress.CompletionFact, error) {
	var out []progress.CompletionFact
	for _, f := range r.facts {
		if f.StudentID == studentID && f.LessonID == lessonID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *fakeProgressRepo) ListByCourse(_ context.Context, studentID, courseID string) ([]progress.CompletionFact, error) {
	var out []progress.CompletionFact
	for _, f := range r.facts {
		if f.StudentID == studentID && f.CourseID == courseID {
			out = append(out, f)
		}
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Review workflow (only the queries the issuer reads)
// ─────────────────────────────────────────────────────────────────────────────

type fakeReviewRepo struct {
	submissions []review.Submission
	reviewTime  time.Duration
}

func (r *fakeReviewRepo) approve(studentID, lessonID, courseID string, revisions int) {
	r.submissions = append(r.submissions, review.Submission{
		ID:            "sub-" + lessonID,
		StudentID:     studentID,
		LessonID:      lessonID,
		CourseID:      courseID,
		Status:        review.StatusApproved,
		RevisionCount: revisions,
	})
}

func (r *fakeReviewRepo) pending(studentID, lessonID, courseID string) {
	r.submissions = append(r.submissions, review.Submission{
		ID:        "sub-" + lessonID,
		StudentID: studentID,
		LessonID:  lessonID,
		CourseID:  courseID,
		Status:    review.StatusPending,
	})
}

func (r *fakeReviewRepo) GetByID(_ context.Context, submissionID string) (*review.Submission, error) {
	for i := range r.submissions {
		if r.submissions[i].ID == submissionID {
			cp := r.submissions[i]
			return &cp, nil
		}
	}
	return nil, shared.ErrSubmissionNotFound
}

func (r *fakeReviewRepo) GetByLesson(_ context.Context, studentID, lessonID string) (*review.Submission, error) {
	for i := range r.submissions {
		if r.submissions[i].StudentID == studentID && r.submissions[i].LessonID == lessonID {
			cp := r.submissions[i]
			return &cp, nil
		}
	}
	return nil, shared.ErrSubmissionNotFound
}

func (r *fakeReviewRepo) ListByCourse(_ context.Context, studentID, courseID string) ([]review.Submission, error) {
	var out []review.Submission
	for _, s := range r.submissions {
		if s.StudentID == studentID && s.CourseID == courseID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeReviewRepo) ApplyResult(_ context.Context, _ *review.Result) error {
	return errors.New("not used in these tests")
}

func (r *fakeReviewRepo) HighestImprovementNumber(_ context.Context, _ string) (int, error) {
	return 0, nil
}

func (r *fakeReviewRepo) ListImprovements(_ context.Context, _ string) ([]review.ImprovementItem, error) {
	return nil, nil
}

func (r *fakeReviewRepo) GetImprovement(_ context.Context, _ string) (*review.ImprovementItem, error) {
	return nil, shared.ErrImprovementNotFound
}

func (r *fakeReviewRepo) UpdateImprovement(_ context.Context, _ *review.ImprovementItem) error {
	return errors.New("not used in these tests")
}

func (r *fakeReviewRepo) GetReview(_ context.Context, _ string) (*review.Review, error) {
	return nil, shared.ErrNotFound
}

func (r *fakeReviewRepo) SumReviewTime(_ context.Context, _, _ string) (time.Duration, error) {
	return r.reviewTime, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Certificates
// ─────────────────────────────────────────────────────────────────────────────

// fakeCertRepo is safe for concurrent use: the issuance race tests hit it
// from multiple goroutines, exactly like pooled connections would.
type fakeCertRepo struct {
	mu      sync.Mutex
	certs   map[string]*certificate.Certificate // keyed by studentID|courseID
	seq     int64
	inserts int
}

func newFakeCertRepo() *fakeCertRepo {
	return &fakeCertRepo{certs: make(map[string]*certificate.Certificate)}
}

func certKey(studentID, courseID string) string {
	return studentID + "|" + courseID
}

func (r *fakeCertRepo) InsertIfAbsent(_ context.Context, cert *certificate.Certificate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.inserts++
	key := certKey(cert.StudentID, cert.CourseID)
	if _, exists := r.certs[key]; exists {
		return false, nil
	}
	cp := *cert
	r.certs[key] = &cp
	return true, nil
}

func (r *fakeCertRepo) Get(_ context.Context, studentID, courseID string) (*certificate.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cert, ok := r.certs[certKey(studentID, courseID)]; ok {
		cp := *cert
		return &cp, nil
	}
	return nil, shared.ErrCertificateNotFound
}

func (r *fakeCertRepo) GetByNumber(_ context.Context, number string) (*certificate.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, cert := range r.certs {
		if cert.Number == number {
			cp := *cert
			return &cp, nil
		}
	}
	return nil, shared.ErrCertificateNotFound
}

func (r *fakeCertRepo) NextSequence(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	return r.seq, nil
}

func (r *fakeCertRepo) UpdateRevocation(_ context.Context, cert *certificate.Certificate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *cert
	r.certs[certKey(cert.StudentID, cert.CourseID)] = &cp
	return nil
}

func (r *fakeCertRepo) UpdateArtifact(_ context.Context, cert *certificate.Certificate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *cert
	r.certs[certKey(cert.StudentID, cert.CourseID)] = &cp
	return nil
}

func (r *fakeCertRepo) ListMissingArtifacts(_ context.Context, limit int) ([]certificate.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []certificate.Certificate
	for _, cert := range r.certs {
		if !cert.HasArtifact() {
			out = append(out, *cert)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Side effects
// ─────────────────────────────────────────────────────────────────────────────

type fakeRenderer struct {
	mu    sync.Mutex
	url   string
	err   error
	calls int
}

func (r *fakeRenderer) Render(_ context.Context, _ *certificate.Certificate) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	if r.err != nil {
		return "", r.err
	}
	return r.url, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	notified []string
}

func (n *fakeNotifier) NotifyCertificateIssued(_ context.Context, cert *certificate.Certificate) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.notified = append(n.notified, cert.Number)
	return nil
}

type fakeVerificationCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *fakeVerificationCache) InvalidateNumber(_ context.Context, number string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.invalidated = append(c.invalidated, number)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)
	return nil
}
