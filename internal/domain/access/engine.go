package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fkeenv/lyra-health-sub001/internal/domain/audit"
	"github.com/fkeenv/lyra-health-sub001/internal/domain/consent"
)

// DenyReason explains a negative decision.
type DenyReason string

const (
	ReasonNoConsent       DenyReason = "no_consent"
	ReasonScopeNotCovered DenyReason = "scope_not_covered"
	ReasonNotVerified     DenyReason = "professional_not_verified"
)

// Decision is the result of an authorization check. When Allowed is true the
// caller must record the access through the audit service before releasing
// any data; an allow without a matching audit entry is a contract violation.
type Decision struct {
	Allowed      bool       `json:"allowed"`
	Reason       DenyReason `json:"reason,omitempty"`
	GrantedScope []string   `json:"granted_scope,omitempty"`
	ConsentID    *uuid.UUID `json:"consent_id,omitempty"`
	Emergency    bool       `json:"emergency,omitempty"`
}

// ConsentSource is the read side of the consent store the engine consults.
// Every call re-reads current state; the engine holds no cache, so a revoke
// concurrent with an authorization check is never masked by staleness.
type ConsentSource interface {
	FindActivePair(ctx context.Context, professionalID, patientID uuid.UUID) (*consent.ConsentRecord, error)
}

// Verifier reports the externally managed verification status of a medical
// professional. Only verified professionals may use the emergency path.
type Verifier interface {
	IsVerified(ctx context.Context, professionalID uuid.UUID) (bool, error)
}

// AuditRecorder is the slice of the audit service the engine needs for the
// emergency path.
type AuditRecorder interface {
	Record(ctx context.Context, e *audit.LogEntry) (uuid.UUID, error)
}

type Engine struct {
	consents ConsentSource
	verifier Verifier
	auditor  AuditRecorder
	logger   zerolog.Logger
}

func NewEngine(consents ConsentSource, verifier Verifier, auditor AuditRecorder, logger zerolog.Logger) *Engine {
	return &Engine{consents: consents, verifier: verifier, auditor: auditor, logger: logger}
}

// Authorize decides whether the professional may read the requested data
// category for the patient at the given instant. It is a pure function over
// the stored consent state and now: no request or session context leaks in.
// Any ambiguity (lookup failure, corrupt scope) resolves to deny.
func (e *Engine) Authorize(ctx context.Context, professionalID, patientID uuid.UUID, category string, now time.Time) (Decision, error) {
	rec, err := e.consents.FindActivePair(ctx, professionalID, patientID)
	if err != nil {
		if errors.Is(err, consent.ErrNotFound) {
			return Decision{Allowed: false, Reason: ReasonNoConsent}, nil
		}
		// Storage errors deny rather than allow; the caller sees the error.
		return Decision{Allowed: false, Reason: ReasonNoConsent}, err
	}

	if !rec.ActiveAt(now) {
		return Decision{Allowed: false, Reason: ReasonNoConsent}, nil
	}

	if category != "" && !rec.CoversCategory(category) {
		return Decision{Allowed: false, Reason: ReasonScopeNotCovered}, nil
	}

	id := rec.ID
	return Decision{
		Allowed:      true,
		GrantedScope: grantedScope(rec, category),
		ConsentID:    &id,
	}, nil
}

// AuthorizeEmergency is the bypass path for verified professionals. It does
// not consult consent state at all, and it writes the emergency audit entry
// synchronously: if the entry cannot be persisted the whole call fails. This
// path favors overlogging over a silent bypass.
func (e *Engine) AuthorizeEmergency(ctx context.Context, professionalID, patientID uuid.UUID, now time.Time, meta AccessMeta) (Decision, error) {
	verified, err := e.verifier.IsVerified(ctx, professionalID)
	if err != nil {
		return Decision{Allowed: false, Reason: ReasonNotVerified}, err
	}
	if !verified {
		return Decision{Allowed: false, Reason: ReasonNotVerified}, nil
	}

	entry := &audit.LogEntry{
		ProfessionalID: professionalID,
		PatientID:      patientID,
		AccessedAt:     now,
		AccessType:     audit.AccessEmergency,
		DataScope:      allCategories(),
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
	}
	if _, err := e.auditor.Record(ctx, entry); err != nil {
		return Decision{}, fmt.Errorf("emergency access aborted: %w", err)
	}

	e.logger.Warn().
		Str("professional_id", professionalID.String()).
		Str("patient_id", patientID.String()).
		Time("accessed_at", now).
		Str("remote_ip", meta.IPAddress).
		Msg("emergency_access")

	return Decision{
		Allowed:      true,
		GrantedScope: allCategories(),
		Emergency:    true,
	}, nil
}

// RecordAccess writes the audit entry for a permitted normal read. A failure
// here is reported to the caller as an operational alert; the data has
// already been released, so the access itself is not rolled back.
func (e *Engine) RecordAccess(ctx context.Context, d Decision, professionalID, patientID uuid.UUID, accessType audit.AccessType, now time.Time, meta AccessMeta) error {
	entry := &audit.LogEntry{
		ProfessionalID: professionalID,
		PatientID:      patientID,
		AccessedAt:     now,
		AccessType:     accessType,
		DataScope:      d.GrantedScope,
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
	}
	if _, err := e.auditor.Record(ctx, entry); err != nil {
		e.logger.Error().Err(err).
			Str("professional_id", professionalID.String()).
			Str("patient_id", patientID.String()).
			Msg("audit write failed for completed access")
		return fmt.Errorf("%w: %v", audit.ErrWriteFailed, err)
	}
	return nil
}

// AccessMeta carries the request-level facts an audit entry records.
type AccessMeta struct {
	IPAddress string
	UserAgent *string
}

func grantedScope(rec *consent.ConsentRecord, category string) []string {
	if category != "" {
		return []string{category}
	}
	if len(rec.DataTypes) > 0 {
		out := make([]string, len(rec.DataTypes))
		copy(out, rec.DataTypes)
		return out
	}
	if rec.AccessLevel == consent.AccessFull || rec.EmergencyAccess {
		return allCategories()
	}
	return []string{consent.CategoryVitalSigns, consent.CategoryHealthTrends}
}

func allCategories() []string {
	return []string{
		consent.CategoryVitalSigns,
		consent.CategoryHealthTrends,
		consent.CategoryRecommendations,
		consent.CategoryClinicalNotes,
	}
}
