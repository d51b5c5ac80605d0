package consent

import (
	"testing"
	"time"
)

func TestAccessLevel_Covers(t *testing.T) {
	tests := []struct {
		name     string
		level    AccessLevel
		category string
		want     bool
	}{
		{"full covers vitals", AccessFull, CategoryVitalSigns, true},
		{"full covers notes", AccessFull, CategoryClinicalNotes, true},
		{"read-only covers vitals", AccessReadOnly, CategoryVitalSigns, true},
		{"read-only covers trends", AccessReadOnly, CategoryHealthTrends, true},
		{"read-only excludes notes", AccessReadOnly, CategoryClinicalNotes, false},
		{"read-only excludes recommendations", AccessReadOnly, CategoryRecommendations, false},
		{"unknown level covers nothing", AccessLevel("write"), CategoryVitalSigns, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.level.Covers(tt.category); got != tt.want {
				t.Errorf("Covers(%q) = %v, want %v", tt.category, got, tt.want)
			}
		})
	}
}

func TestConsentRecord_ActiveAt(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name string
		rec  ConsentRecord
		want bool
	}{
		{"active no expiry", ConsentRecord{Status: StatusActive}, true},
		{"active future expiry", ConsentRecord{Status: StatusActive, ExpiresAt: &future}, true},
		{"expiry exactly now is not active", ConsentRecord{Status: StatusActive, ExpiresAt: &now}, false},
		{"past expiry", ConsentRecord{Status: StatusActive, ExpiresAt: &past}, false},
		{"pending", ConsentRecord{Status: StatusPending}, false},
		{"revoked status", ConsentRecord{Status: StatusRevoked, RevokedAt: &past}, false},
		{"future revoked_at still revoked", ConsentRecord{Status: StatusActive, RevokedAt: &future}, false},
		{"expired", ConsentRecord{Status: StatusExpired}, false},
		{"archived", ConsentRecord{Status: StatusArchived}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.ActiveAt(now); got != tt.want {
				t.Errorf("ActiveAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConsentRecord_CoversCategory(t *testing.T) {
	tests := []struct {
		name     string
		rec      ConsentRecord
		category string
		want     bool
	}{
		{"full no list", ConsentRecord{AccessLevel: AccessFull}, CategoryClinicalNotes, true},
		{"read-only no list", ConsentRecord{AccessLevel: AccessReadOnly}, CategoryVitalSigns, true},
		{"read-only notes denied", ConsentRecord{AccessLevel: AccessReadOnly}, CategoryClinicalNotes, false},
		{
			"explicit list constrains full",
			ConsentRecord{AccessLevel: AccessFull, DataTypes: []string{CategoryVitalSigns}},
			CategoryClinicalNotes, false,
		},
		{
			"explicit list allows member",
			ConsentRecord{AccessLevel: AccessFull, DataTypes: []string{CategoryVitalSigns}},
			CategoryVitalSigns, true,
		},
		{
			"list cannot widen read-only",
			ConsentRecord{AccessLevel: AccessReadOnly, DataTypes: []string{CategoryClinicalNotes}},
			CategoryClinicalNotes, false,
		},
		{
			"emergency flag implies full",
			ConsentRecord{AccessLevel: AccessReadOnly, EmergencyAccess: true},
			CategoryClinicalNotes, true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.CoversCategory(tt.category); got != tt.want {
				t.Errorf("CoversCategory(%q) = %v, want %v", tt.category, got, tt.want)
			}
		})
	}
}

func TestConsentRecord_Flags(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	var rec ConsentRecord

	if rec.HasFlag(FlagInactiveAccess) {
		t.Error("fresh record must not carry flags")
	}

	rec.SetFlag(FlagInactiveAccess, now)
	if !rec.HasFlag(FlagInactiveAccess) {
		t.Error("flag not recorded")
	}
	if rec.Flags[FlagInactiveAccess] != now {
		t.Errorf("flag timestamp = %v, want %v", rec.Flags[FlagInactiveAccess], now)
	}

	// Setting again overwrites the timestamp rather than erroring.
	later := now.Add(time.Hour)
	rec.SetFlag(FlagInactiveAccess, later)
	if rec.Flags[FlagInactiveAccess] != later {
		t.Error("re-setting a flag must update its timestamp")
	}
}
