package command

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/skillforge-lms/internal/domain/review"
	"github.com/skillforge/skillforge-lms/internal/domain/shared"
)

func newSubmitEnv() (*SubmitWorkHandler, *fakeReviewRepo, *recordingPublisher) {
	reviewRepo := newFakeReviewRepo()
	pub := &recordingPublisher{}

	return NewSubmitWorkHandler(newFakeContentRepo(testCourse()), reviewRepo, pub, nil), reviewRepo, pub
}

func TestSubmitWork_FirstSubmission(t *testing.T) {
	h, repo, pub := newSubmitEnv()

	res, err := h.Handle(context.Background(), SubmitWorkCommand{
		StudentID:  "student-1",
		LessonID:   "lesson-1",
		ContentRef: "https://github.com/student/hello",
	})
	require.NoError(t, err)

	assert.False(t, res.Resubmission)
	assert.Equal(t, review.StatusPending, res.Submission.Status)
	assert.Equal(t, 0, res.Submission.RevisionCount)
	assert.Equal(t, "course-1", res.Submission.CourseID)

	stored, err := repo.GetByID(context.Background(), res.Submission.ID)
	require.NoError(t, err)
	assert.Equal(t, review.StatusPending, stored.Status)

	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.EventSubmissionReceived, pub.events[0].EventType())
}

func TestSubmitWork_FirstLessonNeverLocked(t *testing.T) {
	h, _, _ := newSubmitEnv()

	// No prior activity at all: lesson-1 has no predecessor.
	_, err := h.Handle(context.Background(), SubmitWorkCommand{
		StudentID:  "student-1",
		LessonID:   "lesson-1",
		ContentRef: "ref",
	})
	assert.NoError(t, err)
}

func TestSubmitWork_SecondLessonLocked(t *testing.T) {
	h, repo, pub := newSubmitEnv()

	_, err := h.Handle(context.Background(), SubmitWorkCommand{
		StudentID:  "student-1",
		LessonID:   "lesson-2",
		ContentRef: "ref",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.Equal(t, 0, repo.applied)
	assert.Empty(t, pub.events)
}

func TestSubmitWork_LockedWhilePredecessorPending(t *testing.T) {
	h, repo, _ := newSubmitEnv()
	seedSubmission(repo, "sub-1", "student-1", "lesson-1", "course-1", review.StatusPending)

	// A pending predecessor does not unlock; only approval does.
	_, err := h.Handle(context.Background(), SubmitWorkCommand{
		StudentID:  "student-1",
		LessonID:   "lesson-2",
		ContentRef: "ref",
	})
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestSubmitWork_UnlockedAfterApproval(t *testing.T) {
	h, repo, _ := newSubmitEnv()
	seedSubmission(repo, "sub-1", "student-1", "lesson-1", "course-1", review.StatusApproved)

	res, err := h.Handle(context.Background(), SubmitWorkCommand{
		StudentID:  "student-1",
		LessonID:   "lesson-2",
		ContentRef: "ref",
	})
	require.NoError(t, err)
	assert.Equal(t, review.StatusPending, res.Submission.Status)
	assert.Equal(t, "lesson-2", res.Submission.LessonID)
}

func TestSubmitWork_GateIsPerStudent(t *testing.T) {
	h, repo, _ := newSubmitEnv()
	seedSubmission(repo, "sub-1", "student-1", "lesson-1", "course-1", review.StatusApproved)

	// student-1's approval unlocks nothing for student-2.
	_, err := h.Handle(context.Background(), SubmitWorkCommand{
		StudentID:  "student-2",
		LessonID:   "lesson-2",
		ContentRef: "ref",
	})
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestSubmitWork_ResubmitWhilePending(t *testing.T) {
	h, repo, pub := newSubmitEnv()
	seedSubmission(repo, "sub-1", "student-1", "lesson-1", "course-1", review.StatusPending)

	_, err := h.Handle(context.Background(), SubmitWorkCommand{
		StudentID:  "student-1",
		LessonID:   "lesson-1",
		ContentRef: "ref-v2",
	})
	require.Error(t, err)
	assert.True(t, shared.IsInvalidTransition(err))
	assert.Equal(t, 0, repo.applied)
	assert.Empty(t, pub.events)
}

func TestSubmitWork_ResubmitAfterChangesRequested(t *testing.T) {
	h, repo, pub := newSubmitEnv()
	seeded := seedSubmission(repo, "sub-1", "student-1", "lesson-1", "course-1", review.StatusChangesRequested)

	res, err := h.Handle(context.Background(), SubmitWorkCommand{
		StudentID:  "student-1",
		LessonID:   "lesson-1",
		ContentRef: "ref-v2",
	})
	require.NoError(t, err)

	assert.True(t, res.Resubmission)
	assert.Equal(t, seeded.ID, res.Submission.ID, "resubmission overwrites, never creates a second record")
	assert.Equal(t, review.StatusPending, res.Submission.Status)
	assert.Equal(t, 1, res.Submission.RevisionCount)
	assert.Equal(t, "ref-v2", res.Submission.ContentRef)
	assert.Empty(t, res.Submission.ReviewerID)
	assert.Nil(t, res.Submission.ReviewedAt)

	require.Len(t, pub.events, 1)
	received, ok := pub.events[0].(shared.SubmissionReceivedEvent)
	require.True(t, ok)
	assert.Equal(t, 1, received.RevisionCount)
}

func TestSubmitWork_ResubmitKeepsImprovements(t *testing.T) {
	h, repo, _ := newSubmitEnv()
	seedSubmission(repo, "sub-1", "student-1", "lesson-1", "course-1", review.StatusChangesRequested)
	seedImprovement(repo, "imp-1", "sub-1", 1)

	_, err := h.Handle(context.Background(), SubmitWorkCommand{
		StudentID:  "student-1",
		LessonID:   "lesson-1",
		ContentRef: "ref-v2",
	})
	require.NoError(t, err)

	items, err := repo.ListImprovements(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.False(t, items[0].IsCompleted)
}

func TestSubmitWork_UnknownLesson(t *testing.T) {
	h, _, _ := newSubmitEnv()

	_, err := h.Handle(context.Background(), SubmitWorkCommand{
		StudentID:  "student-1",
		LessonID:   "no-such-lesson",
		ContentRef: "ref",
	})
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
}

func TestSubmitWork_PublishFailureDoesNotFailWrite(t *testing.T) {
	reviewRepo := newFakeReviewRepo()
	h := NewSubmitWorkHandler(
		newFakeContentRepo(testCourse()),
		reviewRepo,
		&failingPublisher{err: errors.New("bus down")},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	res, err := h.Handle(context.Background(), SubmitWorkCommand{
		StudentID:  "student-1",
		LessonID:   "lesson-1",
		ContentRef: "ref",
	})
	require.NoError(t, err)

	// The committed submission survives the delivery failure.
	assert.Equal(t, 1, reviewRepo.applied)
	stored, err := reviewRepo.GetByID(context.Background(), res.Submission.ID)
	require.NoError(t, err)
	assert.Equal(t, review.StatusPending, stored.Status)
}

func TestSubmitWork_Validation(t *testing.T) {
	h, _, _ := newSubmitEnv()

	tests := []struct {
		name string
		cmd  SubmitWorkCommand
	}{
		{"missing student", SubmitWorkCommand{LessonID: "lesson-1", ContentRef: "ref"}},
		{"missing lesson", SubmitWorkCommand{StudentID: "student-1", ContentRef: "ref"}},
		{"missing content ref", SubmitWorkCommand{StudentID: "student-1", LessonID: "lesson-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Handle(context.Background(), tt.cmd)
			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}
