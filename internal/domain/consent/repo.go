package consent

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Create persists a new record. Returns ErrConflict when an active or
	// pending record already exists for the (patient, professional) pair;
	// the storage layer enforces this with a partial unique index so that
	// concurrent grants serialize instead of duplicating.
	Create(ctx context.Context, c *ConsentRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*ConsentRecord, error)
	Update(ctx context.Context, c *ConsentRecord) error
	// Delete removes a record permanently. Only the service may call this,
	// and only for revoked records past the retention floor.
	Delete(ctx context.Context, id uuid.UUID) error

	// FindActivePair returns the single active record for the pair, or
	// ErrNotFound. Every authorization check re-reads through here; consent
	// state is never cached across requests.
	FindActivePair(ctx context.Context, professionalID, patientID uuid.UUID) (*ConsentRecord, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ConsentRecord, int, error)
	ListByProfessional(ctx context.Context, professionalID uuid.UUID, limit, offset int) ([]*ConsentRecord, int, error)

	// Sweep selections. Each returns at most limit records so the lifecycle
	// job can process in bounded batches.
	ListExpiredActive(ctx context.Context, cutoff time.Time, limit int) ([]*ConsentRecord, error)
	ListLongRevoked(ctx context.Context, cutoff time.Time, limit int) ([]*ConsentRecord, error)
	// ListActiveGrantedBefore selects active, not-yet-flagged records granted
	// in (after, cutoff), oldest first. The after cursor lets the caller page
	// through the whole population even when earlier records are skipped.
	ListActiveGrantedBefore(ctx context.Context, cutoff, after time.Time, limit int) ([]*ConsentRecord, error)
}
