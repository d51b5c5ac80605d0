package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Record appends an audit entry and returns its id. Entries are immutable
// once created.
func (s *Service) Record(ctx context.Context, e *LogEntry) (uuid.UUID, error) {
	if e.ProfessionalID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("professional_id is required")
	}
	if e.PatientID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("patient_id is required")
	}
	if !e.AccessType.Valid() {
		return uuid.Nil, fmt.Errorf("unknown access_type %q", e.AccessType)
	}
	if e.AccessedAt.IsZero() {
		e.AccessedAt = time.Now().UTC()
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return uuid.Nil, err
	}
	return e.ID, nil
}

// ListForPatient returns a patient's own access history.
func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*LogEntry, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// ListForProfessional returns the professional's own logged accesses, but
// only those concerning patients for whom the professional currently holds
// an active consent. Entries outside active consents are filtered out to
// avoid leaking history after revocation; the filter runs inside the
// repository query so page contents and the reported total agree.
func (s *Service) ListForProfessional(ctx context.Context, professionalID uuid.UUID, now time.Time, limit, offset int) ([]*LogEntry, int, error) {
	return s.repo.ListByProfessionalWithConsent(ctx, professionalID, now, limit, offset)
}

// Get returns a single entry by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*LogEntry, error) {
	return s.repo.GetByID(ctx, id)
}
