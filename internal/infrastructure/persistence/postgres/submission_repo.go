// Package postgres implements the PostgreSQL persistence layer.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skillforge/skillforge-lms/internal/domain/review"
	"github.com/skillforge/skillforge-lms/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMISSION WORKFLOW REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// SubmissionRepository implements review.Repository for PostgreSQL.
type SubmissionRepository struct {
	conn *Connection
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(conn *Connection) *SubmissionRepository {
	return &SubmissionRepository{conn: conn}
}

// GetByID returns a submission by ID.
func (r *SubmissionRepository) GetByID(ctx context.Context, submissionID string) (*review.Submission, error) {
	query := submissionSelect + ` WHERE id = $1`

	sub, err := r.scanSubmission(r.conn.QueryRow(ctx, query, submissionID))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return sub, nil
}

// GetByLesson returns the submission for a (student, lesson) pair.
func (r *SubmissionRepository) GetByLesson(ctx context.Context, studentID, lessonID string) (*review.Submission, error) {
	query := submissionSelect + ` WHERE student_id = $1 AND lesson_id = $2`

	sub, err := r.scanSubmission(r.conn.QueryRow(ctx, query, studentID, lessonID))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return sub, nil
}

// ListByCourse returns all submissions of a student within one course.
func (r *SubmissionRepository) ListByCourse(ctx context.Context, studentID, courseID string) ([]review.Submission, error) {
	query := submissionSelect + ` WHERE student_id = $1 AND course_id = $2 ORDER BY submitted_at`

	rows, err := r.conn.Query(ctx, query, studentID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var subs []review.Submission
	for rows.Next() {
		sub, err := r.scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, *sub)
	}

	return subs, rows.Err()
}

// ApplyResult persists the outcome of one transition atomically. The
// submission upsert, retiring the prior review and appending improvement
// items either all commit or none do.
func (r *SubmissionRepository) ApplyResult(ctx context.Context, result *review.Result) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if err := upsertSubmission(ctx, tx, result.Submission); err != nil {
			return err
		}

		if result.NewReview != nil {
			// A re-review replaces the prior verdict row. Improvement items
			// keep their weak review_id reference to the retired review.
			if _, err := tx.Exec(ctx,
				`DELETE FROM reviews WHERE submission_id = $1`,
				result.Submission.ID,
			); err != nil {
				return fmt.Errorf("failed to retire prior review: %w", err)
			}

			if err := insertReview(ctx, tx, result.NewReview); err != nil {
				return err
			}
		}

		for i := range result.NewImprovements {
			if err := insertImprovement(ctx, tx, &result.NewImprovements[i]); err != nil {
				return err
			}
		}

		return nil
	})
}

// HighestImprovementNumber returns the largest item number assigned to a
// submission, 0 when it has none.
func (r *SubmissionRepository) HighestImprovementNumber(ctx context.Context, submissionID string) (int, error) {
	query := `
		SELECT COALESCE(MAX(number), 0)
		FROM improvement_items
		WHERE submission_id = $1
	`

	var highest int
	if err := r.conn.QueryRow(ctx, query, submissionID).Scan(&highest); err != nil {
		return 0, fmt.Errorf("failed to get highest improvement number: %w", err)
	}
	return highest, nil
}

// ListImprovements returns all improvement items of a submission in number order.
func (r *SubmissionRepository) ListImprovements(ctx context.Context, submissionID string) ([]review.ImprovementItem, error) {
	query := improvementSelect + ` WHERE submission_id = $1 ORDER BY number`

	rows, err := r.conn.Query(ctx, query, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list improvement items: %w", err)
	}
	defer rows.Close()

	var items []review.ImprovementItem
	for rows.Next() {
		item, err := r.scanImprovement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan improvement item: %w", err)
		}
		items = append(items, *item)
	}

	return items, rows.Err()
}

// GetImprovement returns one improvement item by ID.
func (r *SubmissionRepository) GetImprovement(ctx context.Context, improvementID string) (*review.ImprovementItem, error) {
	query := improvementSelect + ` WHERE id = $1`

	item, err := r.scanImprovement(r.conn.QueryRow(ctx, query, improvementID))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrImprovementNotFound
		}
		return nil, fmt.Errorf("failed to get improvement item: %w", err)
	}
	return item, nil
}

// UpdateImprovement persists a toggled improvement item.
func (r *SubmissionRepository) UpdateImprovement(ctx context.Context, item *review.ImprovementItem) error {
	query := `
		UPDATE improvement_items SET
			is_completed = $1,
			completed_at = $2
		WHERE id = $3
	`

	tag, err := r.conn.Exec(ctx, query, item.IsCompleted, item.CompletedAt, item.ID)
	if err != nil {
		return fmt.Errorf("failed to update improvement item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrImprovementNotFound
	}

	return nil
}

// GetReview returns the current review of a submission.
func (r *SubmissionRepository) GetReview(ctx context.Context, submissionID string) (*review.Review, error) {
	query := `
		SELECT id, submission_id, reviewer_id, status, comment, time_spent_seconds, created_at
		FROM reviews
		WHERE submission_id = $1
	`

	var rev review.Review
	var seconds int64
	err := r.conn.QueryRow(ctx, query, submissionID).Scan(
		&rev.ID,
		&rev.SubmissionID,
		&rev.ReviewerID,
		&rev.Status,
		&rev.Comment,
		&seconds,
		&rev.CreatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NewDomainError("review", "GetReview", shared.ErrNotFound, "review not found")
		}
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	rev.TimeSpent = time.Duration(seconds) * time.Second

	return &rev, nil
}

// SumReviewTime returns the total reviewer time spent across a student's course.
func (r *SubmissionRepository) SumReviewTime(ctx context.Context, studentID, courseID string) (time.Duration, error) {
	query := `
		SELECT COALESCE(SUM(rv.time_spent_seconds), 0)
		FROM reviews rv
		JOIN submissions s ON s.id = rv.submission_id
		WHERE s.student_id = $1 AND s.course_id = $2
	`

	var seconds int64
	if err := r.conn.QueryRow(ctx, query, studentID, courseID).Scan(&seconds); err != nil {
		return 0, fmt.Errorf("failed to sum review time: %w", err)
	}

	return time.Duration(seconds) * time.Second, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

const submissionSelect = `
	SELECT id, student_id, lesson_id, course_id, content_ref, status,
		   reviewer_id, reviewer_comment, reviewed_at, revision_count,
		   submitted_at, created_at, updated_at
	FROM submissions
`

const improvementSelect = `
	SELECT id, submission_id, review_id, number, title, text, priority,
		   is_completed, completed_at, created_at
	FROM improvement_items
`

func upsertSubmission(ctx context.Context, tx pgx.Tx, sub *review.Submission) error {
	query := `
		INSERT INTO submissions (
			id, student_id, lesson_id, course_id, content_ref, status,
			reviewer_id, reviewer_comment, reviewed_at, revision_count,
			submitted_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (student_id, lesson_id) DO UPDATE SET
			content_ref = EXCLUDED.content_ref,
			status = EXCLUDED.status,
			reviewer_id = EXCLUDED.reviewer_id,
			reviewer_comment = EXCLUDED.reviewer_comment,
			reviewed_at = EXCLUDED.reviewed_at,
			revision_count = EXCLUDED.revision_count,
			submitted_at = EXCLUDED.submitted_at,
			updated_at = EXCLUDED.updated_at
	`

	var reviewerID *string
	if sub.ReviewerID != "" {
		reviewerID = &sub.ReviewerID
	}

	_, err := tx.Exec(ctx, query,
		sub.ID,
		sub.StudentID,
		sub.LessonID,
		sub.CourseID,
		sub.ContentRef,
		string(sub.Status),
		reviewerID,
		sub.ReviewerComment,
		sub.ReviewedAt,
		sub.RevisionCount,
		sub.SubmittedAt,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert submission: %w", err)
	}

	return nil
}

func insertReview(ctx context.Context, tx pgx.Tx, rev *review.Review) error {
	query := `
		INSERT INTO reviews (id, submission_id, reviewer_id, status, comment, time_spent_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := tx.Exec(ctx, query,
		rev.ID,
		rev.SubmissionID,
		rev.ReviewerID,
		string(rev.Status),
		rev.Comment,
		int64(rev.TimeSpent/time.Second),
		rev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert review: %w", err)
	}

	return nil
}

func insertImprovement(ctx context.Context, tx pgx.Tx, item *review.ImprovementItem) error {
	query := `
		INSERT INTO improvement_items (
			id, submission_id, review_id, number, title, text, priority,
			is_completed, completed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	var reviewID *string
	if item.ReviewID != "" {
		reviewID = &item.ReviewID
	}

	_, err := tx.Exec(ctx, query,
		item.ID,
		item.SubmissionID,
		reviewID,
		item.Number,
		item.Title,
		item.Text,
		string(item.Priority),
		item.IsCompleted,
		item.CompletedAt,
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert improvement item: %w", err)
	}

	return nil
}

func (r *SubmissionRepository) scanSubmission(row pgx.Row) (*review.Submission, error) {
	var sub review.Submission
	var reviewerID *string
	var status string

	err := row.Scan(
		&sub.ID,
		&sub.StudentID,
		&sub.LessonID,
		&sub.CourseID,
		&sub.ContentRef,
		&status,
		&reviewerID,
		&sub.ReviewerComment,
		&sub.ReviewedAt,
		&sub.RevisionCount,
		&sub.SubmittedAt,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.Status = review.Status(status)
	if reviewerID != nil {
		sub.ReviewerID = *reviewerID
	}

	return &sub, nil
}

func (r *SubmissionRepository) scanImprovement(row pgx.Row) (*review.ImprovementItem, error) {
	var item review.ImprovementItem
	var reviewID *string
	var priority string

	err := row.Scan(
		&item.ID,
		&item.SubmissionID,
		&reviewID,
		&item.Number,
		&item.Title,
		&item.Text,
		&priority,
		&item.IsCompleted,
		&item.CompletedAt,
		&item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Priority = review.Priority(priority)
	if reviewID != nil {
		item.ReviewID = *reviewID
	}

	return &item, nil
}
