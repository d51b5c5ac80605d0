package consent

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a consent record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusExpired  Status = "expired"
	StatusRevoked  Status = "revoked"
	StatusDenied   Status = "denied"
	StatusArchived Status = "archived"
)

// AccessLevel is the breadth of data categories a consent authorizes.
type AccessLevel string

const (
	AccessReadOnly AccessLevel = "read_only"
	AccessFull     AccessLevel = "full_access"
)

// Data categories that a consent can gate access to.
const (
	CategoryVitalSigns      = "vital_signs"
	CategoryHealthTrends    = "health_trends"
	CategoryRecommendations = "recommendations"
	CategoryClinicalNotes   = "clinical_notes"
)

// readOnlyCategories is the allow-list covered by the read_only level.
// Clinical-note authoring categories are deliberately excluded.
var readOnlyCategories = map[string]bool{
	CategoryVitalSigns:   true,
	CategoryHealthTrends: true,
}

// Covers reports whether the access level authorizes the given data category.
// full_access covers every category; read_only covers a fixed allow-list.
func (l AccessLevel) Covers(category string) bool {
	switch l {
	case AccessFull:
		return true
	case AccessReadOnly:
		return readOnlyCategories[category]
	default:
		return false
	}
}

// Valid reports whether the access level is one of the known values.
func (l AccessLevel) Valid() bool {
	return l == AccessReadOnly || l == AccessFull
}

// FlagKind identifies a soft marker the lifecycle job can set on a record.
// Keeping these enumerated keeps the invariant checks enumerable.
type FlagKind string

const (
	FlagInactiveAccess FlagKind = "inactive_access"
)

// ConsentRecord maps to the consent_record table. It represents a patient's
// time-bounded grant of data access to a single medical professional.
type ConsentRecord struct {
	ID              uuid.UUID             `db:"id" json:"id"`
	PatientID       uuid.UUID             `db:"patient_id" json:"patient_id"`
	ProfessionalID  uuid.UUID             `db:"professional_id" json:"professional_id"`
	GrantedAt       time.Time             `db:"granted_at" json:"granted_at"`
	ExpiresAt       *time.Time            `db:"expires_at" json:"expires_at,omitempty"`
	RevokedAt       *time.Time            `db:"revoked_at" json:"revoked_at,omitempty"`
	AccessLevel     AccessLevel           `db:"access_level" json:"access_level"`
	DataTypes       []string              `db:"data_types" json:"data_types,omitempty"`
	EmergencyAccess bool                  `db:"emergency_access" json:"emergency_access"`
	Status          Status                `db:"status" json:"status"`
	Flags           map[FlagKind]time.Time `db:"flags" json:"flags,omitempty"`
	Notes           *string               `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time             `db:"updated_at" json:"updated_at"`
}

// ActiveAt reports whether the record authorizes access at the given instant.
// A set revoked_at always means revoked, even if the timestamp lies in the
// future (clock skew); revocation is never delayed. An expires_at exactly
// equal to now is NOT active: the comparison is strict greater-than.
func (c *ConsentRecord) ActiveAt(now time.Time) bool {
	if c.Status != StatusActive {
		return false
	}
	if c.RevokedAt != nil {
		return false
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
		return false
	}
	return true
}

// CoversCategory reports whether this consent's scope authorizes the data
// category. When the record carries an explicit data_types list, membership
// in that list is required in addition to the access-level check.
func (c *ConsentRecord) CoversCategory(category string) bool {
	// Emergency-flagged consents imply full_access semantics.
	level := c.AccessLevel
	if c.EmergencyAccess {
		level = AccessFull
	}
	if !level.Covers(category) {
		return false
	}
	if len(c.DataTypes) > 0 {
		for _, dt := range c.DataTypes {
			if dt == category {
				return true
			}
		}
		return false
	}
	return true
}

// SetFlag records a soft marker with the time it was set.
func (c *ConsentRecord) SetFlag(kind FlagKind, at time.Time) {
	if c.Flags == nil {
		c.Flags = make(map[FlagKind]time.Time)
	}
	c.Flags[kind] = at
}

// HasFlag reports whether the given marker is present.
func (c *ConsentRecord) HasFlag(kind FlagKind) bool {
	_, ok := c.Flags[kind]
	return ok
}
