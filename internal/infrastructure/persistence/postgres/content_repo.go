// Package postgres implements the PostgreSQL persistence layer.
package postgres

import (
	"context"
	"fmt"

	"github.com/skillforge/skillforge-lms/internal/domain/content"
	"github.com/skillforge/skillforge-lms/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ContentRepository implements content.Repository for PostgreSQL.
type ContentRepository struct {
	conn *Connection
}

// NewContentRepository creates a new ContentRepository.
func NewContentRepository(conn *Connection) *ContentRepository {
	return &ContentRepository{conn: conn}
}

// GetCourse returns the course with its full lesson/step tree.
func (r *ContentRepository) GetCourse(ctx context.Context, courseID string) (*content.Course, error) {
	query := `
		SELECT id, slug, title, description, published_at, created_at, updated_at
		FROM courses
		WHERE id = $1
	`

	var c content.Course
	err := r.conn.QueryRow(ctx, query, courseID).Scan(
		&c.ID,
		&c.Slug,
		&c.Title,
		&c.Description,
		&c.PublishedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	lessons, err := r.loadLessons(ctx, courseID)
	if err != nil {
		return nil, err
	}
	c.Lessons = lessons

	return &c, nil
}

// GetLesson returns a single lesson with its steps.
func (r *ContentRepository) GetLesson(ctx context.Context, lessonID string) (*content.Lesson, error) {
	query := `
		SELECT id, course_id, title, position
		FROM lessons
		WHERE id = $1
	`

	var l content.Lesson
	err := r.conn.QueryRow(ctx, query, lessonID).Scan(&l.ID, &l.CourseID, &l.Title, &l.Position)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrLessonNotFound
		}
		return nil, fmt.Errorf("failed to get lesson: %w", err)
	}

	steps, err := r.loadSteps(ctx, []string{lessonID})
	if err != nil {
		return nil, err
	}
	l.Steps = steps[lessonID]

	return &l, nil
}

// ResolveStep maps a step ID to its owning lesson and course.
func (r *ContentRepository) ResolveStep(ctx context.Context, stepID string) (content.StepRef, error) {
	query := `
		SELECT s.id, s.lesson_id, l.course_id
		FROM steps s
		JOIN lessons l ON l.id = s.lesson_id
		WHERE s.id = $1
	`

	var ref content.StepRef
	err := r.conn.QueryRow(ctx, query, stepID).Scan(&ref.StepID, &ref.LessonID, &ref.CourseID)
	if err != nil {
		if IsNoRows(err) {
			return content.StepRef{}, shared.ErrStepNotFound
		}
		return content.StepRef{}, fmt.Errorf("failed to resolve step: %w", err)
	}

	return ref, nil
}

// ListCourseIDsForStudent returns the IDs of courses the student has
// completion facts in.
func (r *ContentRepository) ListCourseIDsForStudent(ctx context.Context, studentID string) ([]string, error) {
	query := `
		SELECT DISTINCT course_id
		FROM step_completions
		WHERE student_id = $1
		ORDER BY course_id
	`

	rows, err := r.conn.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses for student: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan course id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *ContentRepository) loadLessons(ctx context.Context, courseID string) ([]content.Lesson, error) {
	query := `
		SELECT id, course_id, title, position
		FROM lessons
		WHERE course_id = $1
		ORDER BY position
	`

	rows, err := r.conn.Query(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lessons: %w", err)
	}
	defer rows.Close()

	var lessons []content.Lesson
	var lessonIDs []string
	for rows.Next() {
		var l content.Lesson
		if err := rows.Scan(&l.ID, &l.CourseID, &l.Title, &l.Position); err != nil {
			return nil, fmt.Errorf("failed to scan lesson: %w", err)
		}
		lessons = append(lessons, l)
		lessonIDs = append(lessonIDs, l.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(lessonIDs) == 0 {
		return lessons, nil
	}

	stepsByLesson, err := r.loadSteps(ctx, lessonIDs)
	if err != nil {
		return nil, err
	}
	for i := range lessons {
		lessons[i].Steps = stepsByLesson[lessons[i].ID]
	}

	return lessons, nil
}

func (r *ContentRepository) loadSteps(ctx context.Context, lessonIDs []string) (map[string][]content.Step, error) {
	query := `
		SELECT id, lesson_id, title, position
		FROM steps
		WHERE lesson_id = ANY($1)
		ORDER BY lesson_id, position
	`

	rows, err := r.conn.Query(ctx, query, lessonIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps: %w", err)
	}
	defer rows.Close()

	byLesson := make(map[string][]content.Step, len(lessonIDs))
	for rows.Next() {
		var s content.Step
		if err := rows.Scan(&s.ID, &s.LessonID, &s.Title, &s.Position); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		byLesson[s.LessonID] = append(byLesson[s.LessonID], s)
	}

	return byLesson, rows.Err()
}
