package command

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/skillforge-lms/internal/domain/review"
	"github.com/skillforge/skillforge-lms/internal/domain/shared"
)

func newReviewEnv() (*ReviewSubmissionHandler, *fakeReviewRepo, *recordingPublisher) {
	repo := newFakeReviewRepo()
	pub := &recordingPublisher{}

	return NewReviewSubmissionHandler(repo, pub, nil), repo, pub
}

func TestReviewSubmission_Approve(t *testing.T) {
	h, repo, pub := newReviewEnv()
	seedSubmission(repo, "sub-1", "student-1", "lesson-1", "course-1", review.StatusPending)

	res, err := h.Handle(context.Background(), ReviewSubmissionCommand{
		SubmissionID: "sub-1",
		ReviewerID:   "mentor-1",
		Verdict:      VerdictApprove,
		Comment:      "clean solution",
		TimeSpent:    12 * time.Minute,
	})
	require.NoError(t, err)

	assert.Equal(t, review.StatusApproved, res.Submission.Status)
	assert.Equal(t, "mentor-1", res.Submission.ReviewerID)
	assert.NotNil(t, res.Submission.ReviewedAt)

	require.NotNil(t, res.Review)
	assert.Equal(t, review.ReviewApproved, res.Review.Status)
	assert.Equal(t, 12*time.Minute, res.Review.TimeSpent)
	assert.Empty(t, res.NewImprovements)

	stored, err := repo.GetByID(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, review.StatusApproved, stored.Status)

	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.EventSubmissionApproved, pub.events[0].EventType())
}

func TestReviewSubmission_RequestChanges(t *testing.T) {
	h, repo, pub := newReviewEnv()
	seedSubmission(repo, "sub-1", "student-1", "lesson-1", "course-1", review.StatusPending)

	res, err := h.Handle(context.Background(), ReviewSubmissionCommand{
		SubmissionID: "sub-1",
		ReviewerID:   "mentor-1",
		Verdict:      VerdictRequestChanges,
		Comment:      "close, two things to fix",
		TimeSpent:    8 * time.Minute,
		Improvements: []ImprovementInput{
			{Title: "handle nil input", Priority: review.PriorityHigh},
			{Title: "add test for empty course"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, review.StatusChangesRequested, res.Submission.Status)
	require.NotNil(t, res.Review)
	assert.Equal(t, review.ReviewNeedsWork, res.Review.Status)

	require.Len(t, res.NewImprovements, 2)
	assert.Equal(t, 1, res.NewImprovements[0].Number)
	assert.Equal(t, 2, res.NewImprovements[1].Number)
	assert.Equal(t, review.PriorityHigh, res.NewImprovements[0].Priority)
	// Unspecified priority defaults to medium.
	assert.Equal(t, review.PriorityMedium, res.NewImprovements[1].Priority)

	items, err := repo.ListImprovements(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	require.Len(t, pub.events, 1)
	changes, ok := pub.events[0].(shared.ChangesRequestedEvent)
	require.True(t, ok)
	assert.Equal(t, 2, changes.ImprovementCount)
}

func TestReviewSubmission_NumbersContinueAcrossRounds(t *testing.T) {
	h, repo, _ := newReviewEnv()
	seedSubmission(repo, "sub-1", "student-1", "lesson-1", "course-1", review.StatusPending)
	seedImprovement(repo, "imp-1", "sub-1", 1)
	seedImprovement(repo, "imp-2", "sub-1", 2)
	seedImprovement(repo, "imp-3", "sub-1", 3)

	res, err := h.Handle(context.Background(), ReviewSubmissionCommand{
		SubmissionID: "sub-1",
		ReviewerID:   "mentor-1",
		Verdict:      VerdictRequestChanges,
		Improvements: []ImprovementInput{{Title: "still wrong"}},
	})
	require.NoError(t, err)

	require.Len(t, res.NewImprovements, 1)
	assert.Equal(t, 4, res.NewImprovements[0].Number)

	items, err := repo.ListImprovements(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Len(t, items, 4, "old items accumulate, never replaced")
}

func TestReviewSubmission_ApprovedIsTerminal(t *testing.T) {
	h, repo, pub := newReviewEnv()
	seedSubmission(repo, "sub-1", "student-1", "lesson-1", "course-1", review.StatusApproved)

	for _, verdict := range []Verdict{VerdictApprove, VerdictRequestChanges} {
		_, err := h.Handle(context.Background(), ReviewSubmissionCommand{
			SubmissionID: "sub-1",
			ReviewerID:   "mentor-1",
			Verdict:      verdict,
		})
		require.Error(t, err)
		assert.True(t, shared.IsInvalidTransition(err))
	}

	assert.Equal(t, 0, repo.applied)
	assert.Empty(t, pub.events)
}

func TestReviewSubmission_ChangesRequestedNotReviewable(t *testing.T) {
	h, repo, _ := newReviewEnv()
	seedSubmission(repo, "sub-1", "student-1", "lesson-1", "course-1", review.StatusChangesRequested)

	// The student has to resubmit before another verdict is possible.
	_, err := h.Handle(context.Background(), ReviewSubmissionCommand{
		SubmissionID: "sub-1",
		ReviewerID:   "mentor-1",
		Verdict:      VerdictApprove,
	})
	require.Error(t, err)
	assert.True(t, shared.IsInvalidTransition(err))
}

func TestReviewSubmission_NotFound(t *testing.T) {
	h, _, _ := newReviewEnv()

	_, err := h.Handle(context.Background(), ReviewSubmissionCommand{
		SubmissionID: "no-such-submission",
		ReviewerID:   "mentor-1",
		Verdict:      VerdictApprove,
	})
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
}

func TestReviewSubmission_PublishFailureDoesNotFailWrite(t *testing.T) {
	repo := newFakeReviewRepo()
	seedSubmission(repo, "sub-1", "student-1", "lesson-1", "course-1", review.StatusPending)
	h := NewReviewSubmissionHandler(
		repo,
		&failingPublisher{err: errors.New("bus down")},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	res, err := h.Handle(context.Background(), ReviewSubmissionCommand{
		SubmissionID: "sub-1",
		ReviewerID:   "mentor-1",
		Verdict:      VerdictApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, review.StatusApproved, res.Submission.Status)

	// The committed verdict survives the delivery failure.
	stored, err := repo.GetByID(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, review.StatusApproved, stored.Status)
}

func TestReviewSubmission_Validation(t *testing.T) {
	h, _, _ := newReviewEnv()

	tests := []struct {
		name string
		cmd  ReviewSubmissionCommand
	}{
		{"missing submission", ReviewSubmissionCommand{ReviewerID: "mentor-1", Verdict: VerdictApprove}},
		{"missing reviewer", ReviewSubmissionCommand{SubmissionID: "sub-1", Verdict: VerdictApprove}},
		{"unknown verdict", ReviewSubmissionCommand{SubmissionID: "sub-1", ReviewerID: "mentor-1", Verdict: "maybe"}},
		{"negative time spent", ReviewSubmissionCommand{
			SubmissionID: "sub-1", ReviewerID: "mentor-1", Verdict: VerdictApprove, TimeSpent: -time.Minute,
		}},
		{"improvements with approve", ReviewSubmissionCommand{
			SubmissionID: "sub-1", ReviewerID: "mentor-1", Verdict: VerdictApprove,
			Improvements: []ImprovementInput{{Title: "fix"}},
		}},
		{"untitled improvement", ReviewSubmissionCommand{
			SubmissionID: "sub-1", ReviewerID: "mentor-1", Verdict: VerdictRequestChanges,
			Improvements: []ImprovementInput{{Text: "no title"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Handle(context.Background(), tt.cmd)
			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}
