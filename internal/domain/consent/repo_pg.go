package consent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fkeenv/lyra-health-sub001/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const consentCols = `id, patient_id, professional_id, granted_at, expires_at, revoked_at,
	access_level, data_types, emergency_access, status, flags, notes,
	created_at, updated_at`

func scanConsent(row pgx.Row) (*ConsentRecord, error) {
	var c ConsentRecord
	var flagsRaw []byte
	err := row.Scan(
		&c.ID, &c.PatientID, &c.ProfessionalID, &c.GrantedAt, &c.ExpiresAt, &c.RevokedAt,
		&c.AccessLevel, &c.DataTypes, &c.EmergencyAccess, &c.Status, &flagsRaw, &c.Notes,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(flagsRaw) > 0 {
		if err := json.Unmarshal(flagsRaw, &c.Flags); err != nil {
			return nil, fmt.Errorf("decode consent flags: %w", err)
		}
	}
	return &c, nil
}

func marshalFlags(flags map[FlagKind]time.Time) ([]byte, error) {
	if len(flags) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(flags)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *RepoPG) Create(ctx context.Context, c *ConsentRecord) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	flags, err := marshalFlags(c.Flags)
	if err != nil {
		return fmt.Errorf("encode consent flags: %w", err)
	}

	q := `INSERT INTO consent_record (id, patient_id, professional_id, granted_at, expires_at, revoked_at,
		access_level, data_types, emergency_access, status, flags, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`
	_, err = r.conn(ctx).Exec(ctx, q,
		c.ID, c.PatientID, c.ProfessionalID, c.GrantedAt, c.ExpiresAt, c.RevokedAt,
		c.AccessLevel, c.DataTypes, c.EmergencyAccess, c.Status, flags, c.Notes,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ConsentRecord, error) {
	q := fmt.Sprintf("SELECT %s FROM consent_record WHERE id = $1", consentCols)
	return scanConsent(r.conn(ctx).QueryRow(ctx, q, id))
}

func (r *RepoPG) Update(ctx context.Context, c *ConsentRecord) error {
	c.UpdatedAt = time.Now().UTC()

	flags, err := marshalFlags(c.Flags)
	if err != nil {
		return fmt.Errorf("encode consent flags: %w", err)
	}

	q := `UPDATE consent_record SET granted_at=$2, expires_at=$3, revoked_at=$4,
		access_level=$5, data_types=$6, emergency_access=$7, status=$8, flags=$9,
		notes=$10, updated_at=$11
		WHERE id = $1`
	tag, err := r.conn(ctx).Exec(ctx, q,
		c.ID, c.GrantedAt, c.ExpiresAt, c.RevokedAt,
		c.AccessLevel, c.DataTypes, c.EmergencyAccess, c.Status, flags,
		c.Notes, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, "DELETE FROM consent_record WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RepoPG) FindActivePair(ctx context.Context, professionalID, patientID uuid.UUID) (*ConsentRecord, error) {
	q := fmt.Sprintf(`SELECT %s FROM consent_record
		WHERE professional_id = $1 AND patient_id = $2 AND status = 'active'`, consentCols)
	return scanConsent(r.conn(ctx).QueryRow(ctx, q, professionalID, patientID))
}

func (r *RepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ConsentRecord, int, error) {
	return r.list(ctx, "patient_id", patientID, limit, offset)
}

func (r *RepoPG) ListByProfessional(ctx context.Context, professionalID uuid.UUID, limit, offset int) ([]*ConsentRecord, int, error) {
	return r.list(ctx, "professional_id", professionalID, limit, offset)
}

func (r *RepoPG) list(ctx context.Context, col string, id uuid.UUID, limit, offset int) ([]*ConsentRecord, int, error) {
	var total int
	countQ := fmt.Sprintf("SELECT COUNT(*) FROM consent_record WHERE %s = $1", col)
	if err := r.conn(ctx).QueryRow(ctx, countQ, id).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf(`SELECT %s FROM consent_record WHERE %s = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, consentCols, col)
	rows, err := r.conn(ctx).Query(ctx, q, id, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *RepoPG) ListExpiredActive(ctx context.Context, cutoff time.Time, limit int) ([]*ConsentRecord, error) {
	q := fmt.Sprintf(`SELECT %s FROM consent_record
		WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at < $1
		ORDER BY expires_at ASC LIMIT $2`, consentCols)
	rows, err := r.conn(ctx).Query(ctx, q, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func (r *RepoPG) ListLongRevoked(ctx context.Context, cutoff time.Time, limit int) ([]*ConsentRecord, error) {
	q := fmt.Sprintf(`SELECT %s FROM consent_record
		WHERE status = 'revoked' AND revoked_at IS NOT NULL AND revoked_at < $1
		ORDER BY revoked_at ASC LIMIT $2`, consentCols)
	rows, err := r.conn(ctx).Query(ctx, q, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func (r *RepoPG) ListActiveGrantedBefore(ctx context.Context, cutoff, after time.Time, limit int) ([]*ConsentRecord, error) {
	q := fmt.Sprintf(`SELECT %s FROM consent_record
		WHERE status = 'active' AND granted_at < $1 AND granted_at > $2
		AND NOT (flags ? $3)
		ORDER BY granted_at ASC LIMIT $4`, consentCols)
	rows, err := r.conn(ctx).Query(ctx, q, cutoff, after, string(FlagInactiveAccess), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows pgx.Rows) ([]*ConsentRecord, error) {
	var items []*ConsentRecord
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}
