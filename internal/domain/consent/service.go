package consent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Notifier is the patient notification channel. Delivery is fire-and-forget:
// implementations must not block consent-state transitions on failures.
type Notifier interface {
	Notify(ctx context.Context, patientID uuid.UUID, templateKind string, payload map[string]string)
}

// Notification template kinds emitted by this service.
const (
	NotifyConsentGranted = "consent-granted"
	NotifyConsentRevoked = "consent-revoked"
)

// Config holds the retention windows for patient-driven transitions.
type Config struct {
	RestoreWindowDays   int // revoked -> active allowed within this many days
	DeleteRetentionDays int // forced deletion allowed after this many days revoked
}

func (c *Config) applyDefaults() {
	if c.RestoreWindowDays <= 0 {
		c.RestoreWindowDays = 30
	}
	if c.DeleteRetentionDays <= 0 {
		c.DeleteRetentionDays = 90
	}
}

type Service struct {
	repo     Repository
	notifier Notifier
	cfg      Config
}

func NewService(repo Repository, notifier Notifier, cfg Config) *Service {
	cfg.applyDefaults()
	return &Service{repo: repo, notifier: notifier, cfg: cfg}
}

// Create records a patient-initiated grant. The record becomes active
// immediately. The storage layer rejects a second active/pending record for
// the same pair with ErrConflict.
func (s *Service) Create(ctx context.Context, c *ConsentRecord, actorID uuid.UUID, now time.Time) error {
	if c.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if c.ProfessionalID == uuid.Nil {
		return fmt.Errorf("professional_id is required")
	}
	if actorID != c.PatientID {
		return ErrForbidden
	}
	if !c.AccessLevel.Valid() {
		return fmt.Errorf("access_level must be %q or %q", AccessReadOnly, AccessFull)
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
		return fmt.Errorf("expires_at must be in the future")
	}

	c.Status = StatusActive
	c.GrantedAt = now
	c.RevokedAt = nil
	if err := s.repo.Create(ctx, c); err != nil {
		return err
	}

	s.notify(ctx, c, NotifyConsentGranted)
	return nil
}

// RequestAccess records a professional-initiated request. The record is
// pending until the patient grants or denies it. This is the only consent
// mutation a professional may perform.
func (s *Service) RequestAccess(ctx context.Context, professionalID, patientID uuid.UUID, level AccessLevel, expiresAt *time.Time, now time.Time) (*ConsentRecord, error) {
	if professionalID == uuid.Nil {
		return nil, fmt.Errorf("professional_id is required")
	}
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required")
	}
	if !level.Valid() {
		return nil, fmt.Errorf("access_level must be %q or %q", AccessReadOnly, AccessFull)
	}
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, fmt.Errorf("expires_at must be in the future")
	}

	c := &ConsentRecord{
		PatientID:      patientID,
		ProfessionalID: professionalID,
		GrantedAt:      now, // request time; overwritten when the patient grants
		ExpiresAt:      expiresAt,
		AccessLevel:    level,
		Status:         StatusPending,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Grant activates a pending request. Only the patient may grant, and only
// while the record is pending.
func (s *Service) Grant(ctx context.Context, id, actorID uuid.UUID, now time.Time) (*ConsentRecord, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorID != c.PatientID {
		return nil, ErrForbidden
	}
	if c.Status != StatusPending {
		return nil, ErrInvalidTransition
	}

	c.Status = StatusActive
	c.GrantedAt = now
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}

	s.notify(ctx, c, NotifyConsentGranted)
	return c, nil
}

// Deny rejects a pending request. The record is retained as a denied
// artifact for audit completeness rather than deleted.
func (s *Service) Deny(ctx context.Context, id, actorID uuid.UUID, now time.Time) (*ConsentRecord, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorID != c.PatientID {
		return nil, ErrForbidden
	}
	if c.Status != StatusPending {
		return nil, ErrInvalidTransition
	}

	c.Status = StatusDenied
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Revoke withdraws an active consent at the patient's will.
func (s *Service) Revoke(ctx context.Context, id, actorID uuid.UUID, now time.Time) (*ConsentRecord, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorID != c.PatientID {
		return nil, ErrForbidden
	}
	if c.Status != StatusActive {
		return nil, ErrInvalidTransition
	}

	c.Status = StatusRevoked
	c.RevokedAt = &now
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}

	s.notify(ctx, c, NotifyConsentRevoked)
	return c, nil
}

// Restore re-activates a revoked consent within the restore window. The same
// record (and id) returns to active; no new consent is created.
func (s *Service) Restore(ctx context.Context, id, actorID uuid.UUID, now time.Time) (*ConsentRecord, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorID != c.PatientID {
		return nil, ErrForbidden
	}
	if c.Status != StatusRevoked || c.RevokedAt == nil {
		return nil, ErrInvalidTransition
	}
	window := time.Duration(s.cfg.RestoreWindowDays) * 24 * time.Hour
	if now.Sub(*c.RevokedAt) > window {
		return nil, ErrInvalidTransition
	}

	c.Status = StatusActive
	c.RevokedAt = nil
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}

	s.notify(ctx, c, NotifyConsentGranted)
	return c, nil
}

// Extend moves the expiry of an active consent further into the future.
func (s *Service) Extend(ctx context.Context, id, actorID uuid.UUID, newExpiry time.Time, now time.Time) (*ConsentRecord, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorID != c.PatientID {
		return nil, ErrForbidden
	}
	if c.Status != StatusActive {
		return nil, ErrInvalidTransition
	}
	if !newExpiry.After(now) {
		return nil, fmt.Errorf("expires_at must be in the future")
	}

	c.ExpiresAt = &newExpiry
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ModifyScope changes the access level and optional data-type list of an
// active consent.
func (s *Service) ModifyScope(ctx context.Context, id, actorID uuid.UUID, level AccessLevel, dataTypes []string, now time.Time) (*ConsentRecord, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorID != c.PatientID {
		return nil, ErrForbidden
	}
	if c.Status != StatusActive {
		return nil, ErrInvalidTransition
	}
	if !level.Valid() {
		return nil, fmt.Errorf("access_level must be %q or %q", AccessReadOnly, AccessFull)
	}

	c.AccessLevel = level
	c.DataTypes = dataTypes
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ForceDelete permanently removes a revoked consent once it is older than
// the retention floor. Archived and expired records are never deleted here.
func (s *Service) ForceDelete(ctx context.Context, id, actorID uuid.UUID, now time.Time) error {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if actorID != c.PatientID {
		return ErrForbidden
	}
	if c.Status != StatusRevoked || c.RevokedAt == nil {
		return ErrInvalidTransition
	}
	floor := time.Duration(s.cfg.DeleteRetentionDays) * 24 * time.Hour
	if now.Sub(*c.RevokedAt) < floor {
		return ErrInvalidTransition
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*ConsentRecord, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ConsentRecord, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListByProfessional(ctx context.Context, professionalID uuid.UUID, limit, offset int) ([]*ConsentRecord, int, error) {
	return s.repo.ListByProfessional(ctx, professionalID, limit, offset)
}

func (s *Service) notify(ctx context.Context, c *ConsentRecord, kind string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, c.PatientID, kind, map[string]string{
		"consent_id":      c.ID.String(),
		"professional_id": c.ProfessionalID.String(),
		"access_level":    string(c.AccessLevel),
	})
}
