package audit

import (
	"context"
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

const auditCols = `id, professional_id, patient_id, accessed_at, access_type, data_scope,
	ip_address, user_agent, session_duration, notes, created_at`

func scanEntry(row pgx.Row) (*LogEntry, error) {
	var e LogEntry
	err := row.Scan(
		&e.ID, &e.ProfessionalID, &e.PatientID, &e.AccessedAt, &e.AccessType, &e.DataScope,
		&e.IPAddress, &e.UserAgent, &e.SessionDuration, &e.Notes, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *RepoPG) Create(ctx context.Context, e *LogEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Now().UTC()

	q := `INSERT INTO audit_log (id, professional_id, patient_id, accessed_at, access_type,
		data_scope, ip_address, user_agent, session_duration, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := r.conn(ctx).Exec(ctx, q,
		e.ID, e.ProfessionalID, e.PatientID, e.AccessedAt, e.AccessType,
		e.DataScope, e.IPAddress, e.UserAgent, e.SessionDuration, e.Notes, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*LogEntry, error) {
	q := fmt.Sprintf("SELECT %s FROM audit_log WHERE id = $1", auditCols)
	return scanEntry(r.conn(ctx).QueryRow(ctx, q, id))
}

func (r *RepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*LogEntry, int, error) {
	return r.list(ctx, "patient_id", patientID, limit, offset)
}

// activePairExists mirrors ConsentRecord.ActiveAt for the professional
// listing: status active, no revocation set, expiry strictly in the future.
const activePairExists = `EXISTS (SELECT 1 FROM consent_record c
	WHERE c.professional_id = a.professional_id AND c.patient_id = a.patient_id
	AND c.status = 'active' AND c.revoked_at IS NULL
	AND (c.expires_at IS NULL OR c.expires_at > $2))`

func (r *RepoPG) ListByProfessionalWithConsent(ctx context.Context, professionalID uuid.UUID, now time.Time, limit, offset int) ([]*LogEntry, int, error) {
	var total int
	countQ := fmt.Sprintf(`SELECT COUNT(*) FROM audit_log a
		WHERE a.professional_id = $1 AND %s`, activePairExists)
	if err := r.conn(ctx).QueryRow(ctx, countQ, professionalID, now).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf(`SELECT %s FROM audit_log a
		WHERE a.professional_id = $1 AND %s
		ORDER BY a.accessed_at DESC LIMIT $3 OFFSET $4`, auditCols, activePairExists)
	rows, err := r.conn(ctx).Query(ctx, q, professionalID, now, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*LogEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}

func (r *RepoPG) list(ctx context.Context, col string, id uuid.UUID, limit, offset int) ([]*LogEntry, int, error) {
	var total int
	countQ := fmt.Sprintf("SELECT COUNT(*) FROM audit_log WHERE %s = $1", col)
	if err := r.conn(ctx).QueryRow(ctx, countQ, id).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf(`SELECT %s FROM audit_log WHERE %s = $1
		ORDER BY accessed_at DESC LIMIT $2 OFFSET $3`, auditCols, col)
	rows, err := r.conn(ctx).Query(ctx, q, id, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*LogEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}

func (r *RepoPG) CountUsageForPair(ctx context.Context, professionalID, patientID uuid.UUID, since time.Time, types []AccessType) (int, error) {
	typeStrs := make([]string, len(types))
	for i, t := range types {
		typeStrs[i] = string(t)
	}

	var count int
	q := `SELECT COUNT(*) FROM audit_log
		WHERE professional_id = $1 AND patient_id = $2
		AND accessed_at >= $3 AND access_type = ANY($4)`
	err := r.conn(ctx).QueryRow(ctx, q, professionalID, patientID, since, typeStrs).Scan(&count)
	return count, err
}
