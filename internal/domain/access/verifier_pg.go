package access

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VerifierPG reads a professional's verification status from the
// medical_professional table. Verification is managed outside this service;
// we only consult the stored status.
type VerifierPG struct {
	pool *pgxpool.Pool
}

func NewVerifierPG(pool *pgxpool.Pool) *VerifierPG {
	return &VerifierPG{pool: pool}
}

func (v *VerifierPG) IsVerified(ctx context.Context, professionalID uuid.UUID) (bool, error) {
	var status string
	err := v.pool.QueryRow(ctx,
		"SELECT verification_status FROM medical_professional WHERE id = $1",
		professionalID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Unknown professionals are simply not verified.
			return false, nil
		}
		return false, err
	}
	return status == "verified", nil
}
