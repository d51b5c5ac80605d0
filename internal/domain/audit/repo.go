package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrWriteFailed wraps a failed audit persistence attempt. Callers on the
// emergency path treat this as fatal; the normal read path records it as an
// operational alert instead.
var ErrWriteFailed = errors.New("audit write failed")

// ErrNotFound indicates an unknown audit entry id.
var ErrNotFound = errors.New("audit entry not found")

// Repository is append-only: there is deliberately no Update or Delete.
type Repository interface {
	Create(ctx context.Context, e *LogEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*LogEntry, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*LogEntry, int, error)
	// ListByProfessionalWithConsent returns the professional's entries
	// limited to pairs holding a currently active consent at now. Total is
	// counted after that filter so pages and totals agree.
	ListByProfessionalWithConsent(ctx context.Context, professionalID uuid.UUID, now time.Time, limit, offset int) ([]*LogEntry, int, error)
	// CountUsageForPair counts entries of the given types for the pair since
	// the cutoff. The inactive-access sweep uses this to detect consents
	// that are granted but unused.
	CountUsageForPair(ctx context.Context, professionalID, patientID uuid.UUID, since time.Time, types []AccessType) (int, error)
}
