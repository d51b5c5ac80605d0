package notification

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// RecipientResolver maps a patient id to a deliverable address.
type RecipientResolver interface {
	RecipientFor(ctx context.Context, patientID uuid.UUID) (string, error)
}

// ResolverPG looks up patient contact addresses in the patient table.
type ResolverPG struct {
	pool *pgxpool.Pool
}

func NewResolverPG(pool *pgxpool.Pool) *ResolverPG {
	return &ResolverPG{pool: pool}
}

func (r *ResolverPG) RecipientFor(ctx context.Context, patientID uuid.UUID) (string, error) {
	var email string
	err := r.pool.QueryRow(ctx,
		"SELECT email FROM patient WHERE id = $1", patientID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", errors.New("patient has no contact address")
		}
		return "", err
	}
	return email, nil
}

// PatientNotifier sends templated consent notifications to patients. Delivery
// is best effort: failures are logged and never propagate to the caller, so a
// broken mail relay cannot block a consent transition.
type PatientNotifier struct {
	manager *NotificationManager
	resolve RecipientResolver
	logger  zerolog.Logger
}

func NewPatientNotifier(manager *NotificationManager, resolve RecipientResolver, logger zerolog.Logger) *PatientNotifier {
	return &PatientNotifier{manager: manager, resolve: resolve, logger: logger}
}

func (n *PatientNotifier) Notify(ctx context.Context, patientID uuid.UUID, templateKind string, payload map[string]string) {
	recipient, err := n.resolve.RecipientFor(ctx, patientID)
	if err != nil {
		n.logger.Warn().Err(err).
			Str("patient_id", patientID.String()).
			Str("template", templateKind).
			Msg("notification recipient lookup failed")
		return
	}

	if _, err := n.manager.SendFromTemplate(ctx, templateKind, payload, recipient); err != nil {
		n.logger.Warn().Err(err).
			Str("patient_id", patientID.String()).
			Str("template", templateKind).
			Msg("notification delivery failed")
	}
}
