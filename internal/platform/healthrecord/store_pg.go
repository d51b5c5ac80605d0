package healthrecord

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type StorePG struct {
	pool *pgxpool.Pool
}

func NewStorePG(pool *pgxpool.Pool) *StorePG {
	return &StorePG{pool: pool}
}

func (s *StorePG) Fetch(ctx context.Context, patientID uuid.UUID, categories []string, from, to time.Time) ([]*Record, error) {
	q := `SELECT id, patient_id, category, kind, value, unit, text, recorded_at, created_at
		FROM health_record
		WHERE patient_id = $1 AND category = ANY($2)
		AND recorded_at >= $3 AND recorded_at <= $4
		ORDER BY recorded_at DESC`
	rows, err := s.pool.Query(ctx, q, patientID, categories, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.PatientID, &r.Category, &r.Kind, &r.Value,
			&r.Unit, &r.Text, &r.RecordedAt, &r.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &r)
	}
	return items, rows.Err()
}
