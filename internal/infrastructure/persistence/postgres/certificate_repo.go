// Package postgres implements the PostgreSQL persistence layer.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skillforge/skillforge-lms/internal/domain/certificate"
	"github.com/skillforge/skillforge-lms/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CERTIFICATE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CertificateRepository implements certificate.Repository for PostgreSQL.
// Exactly-once issuance rests on the UNIQUE(student_id, course_id) index:
// InsertIfAbsent is a single INSERT ... ON CONFLICT DO NOTHING, never a
// read followed by a write.
type CertificateRepository struct {
	conn *Connection
}

// NewCertificateRepository creates a new CertificateRepository.
func NewCertificateRepository(conn *Connection) *CertificateRepository {
	return &CertificateRepository{conn: conn}
}

// InsertIfAbsent atomically creates the certificate unless one already exists
// for its (student, course) pair. Returns whether this call inserted the row.
func (r *CertificateRepository) InsertIfAbsent(ctx context.Context, cert *certificate.Certificate) (bool, error) {
	query := `
		INSERT INTO certificates (
			id, student_id, course_id, number, verification_code, stats,
			issued_at, revoked, revoked_at, revoke_reason, restored_at,
			artifact_url, artifact_rendered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (student_id, course_id) DO NOTHING
	`

	statsJSON, err := json.Marshal(cert.Stats)
	if err != nil {
		return false, fmt.Errorf("failed to marshal certificate stats: %w", err)
	}

	tag, err := r.conn.Exec(ctx, query,
		cert.ID,
		cert.StudentID,
		cert.CourseID,
		cert.Number,
		cert.VerificationCode,
		statsJSON,
		cert.IssuedAt,
		cert.Revoked,
		cert.RevokedAt,
		cert.RevokeReason,
		cert.RestoredAt,
		cert.ArtifactURL,
		cert.ArtifactRenderedAt,
	)
	if err != nil {
		// The (student_id, course_id) conflict is absorbed by ON CONFLICT, so
		// a unique violation here means the certificate number collided.
		if IsUniqueViolation(err) {
			return false, shared.ErrDuplicateCertificate
		}
		return false, fmt.Errorf("failed to insert certificate: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// Get returns the certificate for a (student, course) pair.
func (r *CertificateRepository) Get(ctx context.Context, studentID, courseID string) (*certificate.Certificate, error) {
	query := certificateSelect + ` WHERE student_id = $1 AND course_id = $2`

	cert, err := r.scanCertificate(r.conn.QueryRow(ctx, query, studentID, courseID))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCertificateNotFound
		}
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}
	return cert, nil
}

// GetByNumber returns a certificate by its public number.
func (r *CertificateRepository) GetByNumber(ctx context.Context, number string) (*certificate.Certificate, error) {
	query := certificateSelect + ` WHERE number = $1`

	cert, err := r.scanCertificate(r.conn.QueryRow(ctx, query, number))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCertificateNotFound
		}
		return nil, fmt.Errorf("failed to get certificate by number: %w", err)
	}
	return cert, nil
}

// NextSequence reserves the next value of the certificate number sequence.
// A value consumed by an issuance that loses the insert race leaves a gap in
// the numbering, which is acceptable; reuse is not.
func (r *CertificateRepository) NextSequence(ctx context.Context) (int64, error) {
	var seq int64
	if err := r.conn.QueryRow(ctx, `SELECT nextval('certificate_number_seq')`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to reserve certificate sequence: %w", err)
	}
	return seq, nil
}

// UpdateRevocation persists revoke/restore state changes.
func (r *CertificateRepository) UpdateRevocation(ctx context.Context, cert *certificate.Certificate) error {
	query := `
		UPDATE certificates SET
			revoked = $1,
			revoked_at = $2,
			revoke_reason = $3,
			restored_at = $4
		WHERE id = $5
	`

	tag, err := r.conn.Exec(ctx, query,
		cert.Revoked,
		cert.RevokedAt,
		cert.RevokeReason,
		cert.RestoredAt,
		cert.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update certificate revocation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrCertificateNotFound
	}

	return nil
}

// UpdateArtifact persists the rendered PDF location.
func (r *CertificateRepository) UpdateArtifact(ctx context.Context, cert *certificate.Certificate) error {
	query := `
		UPDATE certificates SET
			artifact_url = $1,
			artifact_rendered_at = $2
		WHERE id = $3
	`

	tag, err := r.conn.Exec(ctx, query, cert.ArtifactURL, cert.ArtifactRenderedAt, cert.ID)
	if err != nil {
		return fmt.Errorf("failed to update certificate artifact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrCertificateNotFound
	}

	return nil
}

// ListMissingArtifacts returns issued certificates whose PDF has not been
// rendered yet, oldest first.
func (r *CertificateRepository) ListMissingArtifacts(ctx context.Context, limit int) ([]certificate.Certificate, error) {
	query := certificateSelect + ` WHERE artifact_url = '' ORDER BY issued_at LIMIT $1`

	rows, err := r.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates missing artifacts: %w", err)
	}
	defer rows.Close()

	var certs []certificate.Certificate
	for rows.Next() {
		cert, err := r.scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan certificate: %w", err)
		}
		certs = append(certs, *cert)
	}

	return certs, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

const certificateSelect = `
	SELECT id, student_id, course_id, number, verification_code, stats,
		   issued_at, revoked, revoked_at, revoke_reason, restored_at,
		   artifact_url, artifact_rendered_at
	FROM certificates
`

func (r *CertificateRepository) scanCertificate(row pgx.Row) (*certificate.Certificate, error) {
	var cert certificate.Certificate
	var statsJSON []byte
	var issuedAt time.Time

	err := row.Scan(
		&cert.ID,
		&cert.StudentID,
		&cert.CourseID,
		&cert.Number,
		&cert.VerificationCode,
		&statsJSON,
		&issuedAt,
		&cert.Revoked,
		&cert.RevokedAt,
		&cert.RevokeReason,
		&cert.RestoredAt,
		&cert.ArtifactURL,
		&cert.ArtifactRenderedAt,
	)
	if err != nil {
		return nil, err
	}

	cert.IssuedAt = issuedAt
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &cert.Stats); err != nil {
			return nil, fmt.Errorf("failed to unmarshal certificate stats: %w", err)
		}
	}

	return &cert, nil
}
