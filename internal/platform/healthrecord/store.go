// Package healthrecord is the health-record store collaborator: it holds the
// patient data that the access decision engine gates. The engine's granted
// scope controls which categories a caller may request from Fetch.
package healthrecord

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Record is a single stored health measurement or note.
type Record struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	Category   string    `db:"category" json:"category"`
	Kind       string    `db:"kind" json:"kind"`
	Value      *float64  `db:"value" json:"value,omitempty"`
	Unit       *string   `db:"unit" json:"unit,omitempty"`
	Text       *string   `db:"text" json:"text,omitempty"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Store exposes the read surface the access layer authorizes against.
type Store interface {
	Fetch(ctx context.Context, patientID uuid.UUID, categories []string, from, to time.Time) ([]*Record, error)
}
