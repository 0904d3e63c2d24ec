// Package postgres implements the PostgreSQL persistence layer.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skillforge/skillforge-lms/internal/domain/progress"
	"github.com/skillforge/skillforge-lms/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETION LEDGER IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements progress.Repository for PostgreSQL.
// The UNIQUE(student_id, step_id) constraint backs the one-row-per-fact
// invariant; Upsert rides on it instead of checking existence first.
type ProgressRepository struct {
	conn *Connection
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

// Upsert writes a completion fact, creating it on first interaction and
// updating it in place afterwards.
func (r *ProgressRepository) Upsert(ctx context.Context, fact *progress.CompletionFact) error {
	query := `
		INSERT INTO step_completions (
			student_id, step_id, lesson_id, course_id,
			is_completed, completed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (student_id, step_id) DO UPDATE SET
			is_completed = EXCLUDED.is_completed,
			completed_at = EXCLUDED.completed_at,
			updated_at = EXCLUDED.updated_at
	`

	var completedAt *time.Time
	if !fact.CompletedAt.IsZero() {
		completedAt = &fact.CompletedAt
	}

	_, err := r.conn.Exec(ctx, query,
		fact.StudentID,
		fact.StepID,
		fact.LessonID,
		fact.CourseID,
		fact.IsCompleted,
		completedAt,
		fact.CreatedAt,
		fact.UpdatedAt,
	)
	if err != nil {
		// The step row disappeared between resolve and write, typically a
		// course unpublish racing the completion toggle.
		if IsForeignKeyViolation(err) {
			return shared.ErrStepNotFound
		}
		return fmt.Errorf("failed to upsert completion fact: %w", err)
	}

	return nil
}

// Get returns the fact for a (student, step) pair.
func (r *ProgressRepository) Get(ctx context.Context, studentID, stepID string) (*progress.CompletionFact, error) {
	query := r.selectQuery() + ` WHERE student_id = $1 AND step_id = $2`

	row := r.conn.QueryRow(ctx, query, studentID, stepID)
	fact, err := r.scanFact(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCompletionNotFound
		}
		return nil, fmt.Errorf("failed to get completion fact: %w", err)
	}

	return fact, nil
}

// ListByLesson returns all facts of a student within one lesson.
func (r *ProgressRepository) ListByLesson(ctx context.Context, studentID, lessonID string) ([]progress.CompletionFact, error) {
	query := r.selectQuery() + ` WHERE student_id = $1 AND lesson_id = $2`
	return r.list(ctx, query, studentID, lessonID)
}

// ListByCourse returns all facts of a student within one course.
func (r *ProgressRepository) ListByCourse(ctx context.Context, studentID, courseID string) ([]progress.CompletionFact, error) {
	query := r.selectQuery() + ` WHERE student_id = $1 AND course_id = $2`
	return r.list(ctx, query, studentID, courseID)
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *ProgressRepository) selectQuery() string {
	return `
		SELECT student_id, step_id, lesson_id, course_id,
			   is_completed, completed_at, created_at, updated_at
		FROM step_completions
	`
}

func (r *ProgressRepository) list(ctx context.Context, query string, args ...interface{}) ([]progress.CompletionFact, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list completion facts: %w", err)
	}
	defer rows.Close()

	var facts []progress.CompletionFact
	for rows.Next() {
		fact, err := r.scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan completion fact: %w", err)
		}
		facts = append(facts, *fact)
	}

	return facts, rows.Err()
}

func (r *ProgressRepository) scanFact(row pgx.Row) (*progress.CompletionFact, error) {
	var fact progress.CompletionFact
	var completedAt *time.Time

	err := row.Scan(
		&fact.StudentID,
		&fact.StepID,
		&fact.LessonID,
		&fact.CourseID,
		&fact.IsCompleted,
		&completedAt,
		&fact.CreatedAt,
		&fact.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if completedAt != nil {
		fact.CompletedAt = *completedAt
	}

	return &fact, nil
}
