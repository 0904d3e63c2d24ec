// Package postgres implements the PostgreSQL persistence layer.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE CONTENT
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create content hierarchy tables
-- Version: 001
-- The Course -> Lesson -> Step tree is authored externally; this service
-- only reads it.

CREATE TABLE IF NOT EXISTS courses (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    slug VARCHAR(100) NOT NULL UNIQUE,
    title VARCHAR(255) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    published_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_courses_slug ON courses(slug);

CREATE TABLE IF NOT EXISTS lessons (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    course_id UUID NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    title VARCHAR(255) NOT NULL,
    position INTEGER NOT NULL,

    UNIQUE(course_id, position)
);

CREATE INDEX IF NOT EXISTS idx_lessons_course ON lessons(course_id);

CREATE TABLE IF NOT EXISTS steps (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    lesson_id UUID NOT NULL REFERENCES lessons(id) ON DELETE CASCADE,
    title VARCHAR(255) NOT NULL,
    position INTEGER NOT NULL,

    UNIQUE(lesson_id, position)
);

CREATE INDEX IF NOT EXISTS idx_steps_lesson ON steps(lesson_id);

-- Updated_at trigger function for automatic timestamp updates
CREATE OR REPLACE FUNCTION update_updated_at_column()
RETURNS TRIGGER AS $$
BEGIN
    NEW.updated_at = NOW();
    RETURN NEW;
END;
$$ language 'plpgsql';

DROP TRIGGER IF EXISTS update_courses_updated_at ON courses;
CREATE TRIGGER update_courses_updated_at
    BEFORE UPDATE ON courses
    FOR EACH ROW
    EXECUTE FUNCTION update_updated_at_column();
`

const migration001Down = `
DROP TRIGGER IF EXISTS update_courses_updated_at ON courses;
DROP FUNCTION IF EXISTS update_updated_at_column();
DROP TABLE IF EXISTS steps;
DROP TABLE IF EXISTS lessons;
DROP TABLE IF EXISTS courses;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE COMPLETION LEDGER
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create the step completion ledger
-- Version: 002
-- One row per (student, step), created on first interaction and mutated in
-- place afterwards. The unique constraint is the ledger invariant.

CREATE TABLE IF NOT EXISTS step_completions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    student_id UUID NOT NULL,
    step_id UUID NOT NULL REFERENCES steps(id) ON DELETE CASCADE,
    lesson_id UUID NOT NULL REFERENCES lessons(id) ON DELETE CASCADE,
    course_id UUID NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    is_completed BOOLEAN NOT NULL DEFAULT FALSE,
    completed_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    UNIQUE(student_id, step_id)
);

CREATE INDEX IF NOT EXISTS idx_step_completions_student_lesson ON step_completions(student_id, lesson_id);
CREATE INDEX IF NOT EXISTS idx_step_completions_student_course ON step_completions(student_id, course_id);
CREATE INDEX IF NOT EXISTS idx_step_completions_updated_at ON step_completions(updated_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS step_completions;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE REVIEW WORKFLOW
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create submission workflow tables
-- Version: 003
-- One submission row per (student, lesson). Resubmissions overwrite the row;
-- improvement items accumulate underneath it and are never deleted.

CREATE TABLE IF NOT EXISTS submissions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    student_id UUID NOT NULL,
    lesson_id UUID NOT NULL REFERENCES lessons(id) ON DELETE CASCADE,
    course_id UUID NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    content_ref TEXT NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    reviewer_id UUID,
    reviewer_comment TEXT NOT NULL DEFAULT '',
    reviewed_at TIMESTAMP WITH TIME ZONE,
    revision_count INTEGER NOT NULL DEFAULT 0,
    submitted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    UNIQUE(student_id, lesson_id),
    CONSTRAINT valid_submission_status CHECK (status IN ('pending', 'changes_requested', 'approved')),
    CONSTRAINT valid_revision_count CHECK (revision_count >= 0)
);

CREATE INDEX IF NOT EXISTS idx_submissions_student_course ON submissions(student_id, course_id);
CREATE INDEX IF NOT EXISTS idx_submissions_lesson ON submissions(lesson_id);
CREATE INDEX IF NOT EXISTS idx_submissions_pending ON submissions(status) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS reviews (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    submission_id UUID NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
    reviewer_id UUID NOT NULL,
    status VARCHAR(20) NOT NULL,
    comment TEXT NOT NULL DEFAULT '',
    time_spent_seconds INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_review_status CHECK (status IN ('approved', 'needs_work'))
);

CREATE INDEX IF NOT EXISTS idx_reviews_submission ON reviews(submission_id);
CREATE INDEX IF NOT EXISTS idx_reviews_reviewer ON reviews(reviewer_id);

CREATE TABLE IF NOT EXISTS improvement_items (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    submission_id UUID NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
    review_id UUID,
    number INTEGER NOT NULL,
    title VARCHAR(255) NOT NULL,
    text TEXT NOT NULL DEFAULT '',
    priority VARCHAR(10) NOT NULL DEFAULT 'medium',
    is_completed BOOLEAN NOT NULL DEFAULT FALSE,
    completed_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    UNIQUE(submission_id, number),
    CONSTRAINT valid_priority CHECK (priority IN ('low', 'medium', 'high')),
    CONSTRAINT valid_number CHECK (number >= 1)
);

CREATE INDEX IF NOT EXISTS idx_improvement_items_submission ON improvement_items(submission_id, number);
`

const migration003Down = `
DROP TABLE IF EXISTS improvement_items;
DROP TABLE IF EXISTS reviews;
DROP TABLE IF EXISTS submissions;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: CREATE CERTIFICATES
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
-- Migration: Create certificate store
-- Version: 004
-- The unique (student_id, course_id) index is the exactly-once issuance
-- guarantee: concurrent issuers race on the insert and exactly one wins.

CREATE SEQUENCE IF NOT EXISTS certificate_number_seq START 1;

CREATE TABLE IF NOT EXISTS certificates (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    student_id UUID NOT NULL,
    course_id UUID NOT NULL REFERENCES courses(id) ON DELETE RESTRICT,
    number VARCHAR(30) NOT NULL UNIQUE,
    verification_code VARCHAR(64) NOT NULL,
    stats JSONB NOT NULL DEFAULT '{}'::jsonb,
    issued_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    revoked BOOLEAN NOT NULL DEFAULT FALSE,
    revoked_at TIMESTAMP WITH TIME ZONE,
    revoke_reason TEXT NOT NULL DEFAULT '',
    restored_at TIMESTAMP WITH TIME ZONE,
    artifact_url TEXT NOT NULL DEFAULT '',
    artifact_rendered_at TIMESTAMP WITH TIME ZONE,

    UNIQUE(student_id, course_id)
);

CREATE INDEX IF NOT EXISTS idx_certificates_number ON certificates(number);
CREATE INDEX IF NOT EXISTS idx_certificates_verification ON certificates(verification_code);
CREATE INDEX IF NOT EXISTS idx_certificates_missing_artifact ON certificates(issued_at) WHERE artifact_url = '';
`

const migration004Down = `
DROP TABLE IF EXISTS certificates;
DROP SEQUENCE IF EXISTS certificate_number_seq;
`

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_content",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_completion_ledger",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_review_workflow",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
		{
			Version: 4,
			Name:    "create_certificates",
			UpSQL:   migration004Up,
			DownSQL: migration004Down,
		},
	}
}
