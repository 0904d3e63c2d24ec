package certificate

import "context"

// Repository is the persistence contract for certificates.
type Repository interface {
	// InsertIfAbsent atomically creates the certificate unless one already
	// exists for its (student, course) pair. It returns (true, nil) when the
	// row was inserted and (false, nil) when an earlier certificate won the
	// race - never a read-then-write pair. Any other error is a storage failure.
	InsertIfAbsent(ctx context.Context, cert *Certificate) (bool, error)

	// Get returns the certificate for a (student, course) pair, or shared.ErrNotFound.
	Get(ctx context.Context, studentID, courseID string) (*Certificate, error)

	// GetByNumber returns a certificate by its public number.
	GetByNumber(ctx context.Context, number string) (*Certificate, error)

	// NextSequence reserves the next value of the certificate number sequence.
	NextSequence(ctx context.Context) (int64, error)

	// UpdateRevocation persists revoke/restore state changes.
	UpdateRevocation(ctx context.Context, cert *Certificate) error

	// UpdateArtifact persists the rendered PDF location.
	UpdateArtifact(ctx context.Context, cert *Certificate) error

	// ListMissingArtifacts returns issued certificates whose PDF has not been
	// rendered yet, oldest first, capped at limit.
	ListMissingArtifacts(ctx context.Context, limit int) ([]Certificate, error)
}
