package command

import (
	"context"
	"sort"
	"time"

	"github.com/skillforge/skillforge-lms/internal/domain/content"
	"github.com/skillforge/skillforge-lms/internal/domain/progress"
	"github.com/skillforge/skillforge-lms/internal/domain/review"
	"github.com/skillforge/skillforge-lms/internal/domain/shared"
)

// In-memory fakes shared by the command handler tests. They copy on read and
// write like a real store would, so a handler mutating a returned value
// without persisting it is caught by the tests.

// ─────────────────────────────────────────────────────────────────────────────
// Content
// ─────────────────────────────────────────────────────────────────────────────

type fakeContentRepo struct {
	courses map[string]*content.Course
}

func newFakeContentRepo(courses ...*content.Course) *fakeContentRepo {
	r := &fakeContentRepo{courses: make(map[string]*content.Course)}
	for _, c := range courses {
		r.courses[c.ID] = c
	}
	return r
}

func (r *fakeContentRepo) GetCourse(_ context.Context, courseID string) (*content.Course, error) {
	if c, ok := r.courses[courseID]; ok {
		return c, nil
	}
	return nil, shared.ErrCourseNotFound
}

func (r *fakeContentRepo) GetLesson(_ context.Context, lessonID string) (*content.Lesson, error) {
	for _, c := range r.courses {
		if l, ok := c.LessonByID(lessonID); ok {
			return l, nil
		}
	}
	return nil, shared.ErrLessonNotFound
}

func (r *fakeContentRepo) ResolveStep(_ context.Context, stepID string) (content.StepRef, error) {
	for _, c := range r.courses {
		for i := range c.Lessons {
			for _, s := range c.Lessons[i].Steps {
				if s.ID == stepID {
					return content.StepRef{
						StepID:   stepID,
						LessonID: c.Lessons[i].ID,
						CourseID: c.ID,
					}, nil
				}
			}
		}
	}
	return content.StepRef{}, shared.ErrStepNotFound
}

func (r *fakeContentRepo) ListCourseIDsForStudent(_ context.Context, _ string) ([]string, error) {
	ids := make([]string, 0, len(r.courses))
	for id := range r.courses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Progress ledger
// ─────────────────────────────────────────────────────────────────────────────

type fakeProgressRepo struct {
	facts   map[string]progress.CompletionFact // keyed by studentID|stepID
	upserts int
}

func newFakeProgressRepo() *fakeProgressRepo {
	return &fakeProgressRepo{facts: make(map[string]progress.CompletionFact)}
}

func factKey(studentID, stepID string) string {
	return studentID + "|" + stepID
}

func (r *fakeProgressRepo) Upsert(_ context.Context, fact *progress.CompletionFact) error {
	r.facts[factKey(fact.StudentID, fact.StepID)] = *fact
	r.upserts++
	return nil
}

func (r *fakeProgressRepo) Get(_ context.Context, studentID, stepID string) (*progress.CompletionFact, error) {
	if f, ok := r.facts[factKey(studentID, stepID)]; ok {
		cp := f
		return &cp, nil
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
// Review workflow
// ─────────────────────────────────────────────────────────────────────────────

type fakeReviewRepo struct {
	submissions  map[string]review.Submission      // by submission ID
	reviews      map[string]review.Review          // by submission ID
	improvements map[string]review.ImprovementItem // by item ID
	applied      int
}

func newFakeReviewRepo() *fakeReviewRepo {
	return &fakeReviewRepo{
		submissions:  make(map[string]review.Submission),
		reviews:      make(map[string]review.Review),
		improvements: make(map[string]review.ImprovementItem),
	}
}

func (r *fakeReviewRepo) GetByID(_ context.Context, submissionID string) (*review.Submission, error) {
	if s, ok := r.submissions[submissionID]; ok {
		cp := s
		return &cp, nil
	}
	return nil, shared.ErrSubmissionNotFound
}

func (r *fakeReviewRepo) GetByLesson(_ context.Context, studentID, lessonID string) (*review.Submission, error) {
	for _, s := range r.submissions {
		if s.StudentID == studentID && s.LessonID == lessonID {
			cp := s
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

func (r *fakeReviewRepo) ApplyResult(_ context.Context, result *review.Result) error {
	r.submissions[result.Submission.ID] = *result.Submission
	if result.NewReview != nil {
		r.reviews[result.Submission.ID] = *result.NewReview
	}
	for _, item := range result.NewImprovements {
		r.improvements[item.ID] = item
	}
	r.applied++
	return nil
}

func (r *fakeReviewRepo) HighestImprovementNumber(_ context.Context, submissionID string) (int, error) {
	highest := 0
	for _, item := range r.improvements {
		if item.SubmissionID == submissionID && item.Number > highest {
			highest = item.Number
		}
	}
	return highest, nil
}

func (r *fakeReviewRepo) ListImprovements(_ context.Context, submissionID string) ([]review.ImprovementItem, error) {
	var out []review.ImprovementItem
	for _, item := range r.improvements {
		if item.SubmissionID == submissionID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (r *fakeReviewRepo) GetImprovement(_ context.Context, improvementID string) (*review.ImprovementItem, error) {
	if item, ok := r.improvements[improvementID]; ok {
		cp := item
		return &cp, nil
	}
	return nil, shared.ErrImprovementNotFound
}

func (r *fakeReviewRepo) UpdateImprovement(_ context.Context, item *review.ImprovementItem) error {
	r.improvements[item.ID] = *item
	return nil
}

func (r *fakeReviewRepo) GetReview(_ context.Context, submissionID string) (*review.Review, error) {
	if rev, ok := r.reviews[submissionID]; ok {
		cp := rev
		return &cp, nil
	}
	return nil, shared.ErrNotFound
}

func (r *fakeReviewRepo) SumReviewTime(_ context.Context, studentID, courseID string) (time.Duration, error) {
	var total time.Duration
	for subID, rev := range r.reviews {
		sub, ok := r.submissions[subID]
		if ok && sub.StudentID == studentID && sub.CourseID == courseID {
			total += rev.TimeSpent
		}
	}
	return total, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Event publisher
// ─────────────────────────────────────────────────────────────────────────────

type recordingPublisher struct {
	events []shared.Event
}

func (p *recordingPublisher) Publish(event shared.Event) error {
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) typesSeen() []shared.EventType {
	out := make([]shared.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

// failingPublisher rejects every event, simulating a broken bus.
type failingPublisher struct {
	err error
}

func (p *failingPublisher) Publish(_ shared.Event) error {
	return p.err
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────────────────────

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

// seedSubmission stores a submission directly, bypassing the state machine.
func seedSubmission(r *fakeReviewRepo, id, studentID, lessonID, courseID string, status review.Status) *review.Submission {
	sub := review.Submission{
		ID:          id,
		StudentID:   studentID,
		LessonID:    lessonID,
		CourseID:    courseID,
		ContentRef:  "https://github.com/student/work",
		Status:      status,
		SubmittedAt: testNow,
		CreatedAt:   testNow,
		UpdatedAt:   testNow,
	}
	r.submissions[id] = sub
	return &sub
}

// seedImprovement stores an improvement item directly.
func seedImprovement(r *fakeReviewRepo, id, submissionID string, number int) *review.ImprovementItem {
	item := review.ImprovementItem{
		ID:           id,
		SubmissionID: submissionID,
		Number:       number,
		Title:        "fix error handling",
		Priority:     review.PriorityMedium,
		CreatedAt:    testNow,
	}
	r.improvements[id] = item
	return &item
}

// testCourse builds a two-lesson course: lesson-1 with steps s1, s2 and
// lesson-2 with step s3.
func testCourse() *content.Course {
	return &content.Course{
		ID:    "course-1",
		Slug:  "go-basics",
		Title: "Go Basics",
		Lessons: []content.Lesson{
			{
				ID:       "lesson-1",
				CourseID: "course-1",
				Title:    "Hello World",
				Position: 1,
				Steps: []content.Step{
					{ID: "s1", LessonID: "lesson-1", Position: 1},
					{ID: "s2", LessonID: "lesson-1", Position: 2},
				},
			},
			{
				ID:       "lesson-2",
				CourseID: "course-1",
				Title:    "Structs",
				Position: 2,
				Steps: []content.Step{
					{ID: "s3", LessonID: "lesson-2", Position: 1},
				},
			},
		},
	}
}
