package audit

import (
	"time"

	"github.com/google/uuid"
)

// AccessType classifies what an audit entry records.
type AccessType string

const (
	AccessView            AccessType = "view"
	AccessExport          AccessType = "export"
	AccessPrint           AccessType = "print"
	AccessConsentExpired  AccessType = "consent_expired"
	AccessConsentArchived AccessType = "consent_archived"
	AccessEmergency       AccessType = "emergency"
)

// Valid reports whether the access type is one of the known values.
func (t AccessType) Valid() bool {
	switch t {
	case AccessView, AccessExport, AccessPrint,
		AccessConsentExpired, AccessConsentArchived, AccessEmergency:
		return true
	}
	return false
}

// usageTypes are the access types counted as actual data use by the
// inactive-access sweep. Automated lifecycle entries do not count.
var usageTypes = []AccessType{AccessView, AccessExport, AccessPrint}

// UsageTypes returns the access types that represent real data use.
func UsageTypes() []AccessType {
	out := make([]AccessType, len(usageTypes))
	copy(out, usageTypes)
	return out
}

// LogEntry maps to the audit_log table. Entries are append-only: no update
// or delete path exists within the retention horizon.
type LogEntry struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	ProfessionalID  uuid.UUID  `db:"professional_id" json:"professional_id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	AccessedAt      time.Time  `db:"accessed_at" json:"accessed_at"`
	AccessType      AccessType `db:"access_type" json:"access_type"`
	DataScope       []string   `db:"data_scope" json:"data_scope,omitempty"`
	IPAddress       string     `db:"ip_address" json:"ip_address"`
	UserAgent       *string    `db:"user_agent" json:"user_agent,omitempty"`
	SessionDuration *int       `db:"session_duration" json:"session_duration,omitempty"`
	Notes           *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}
