package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fkeenv/lyra-health-sub001/internal/domain/audit"
	"github.com/fkeenv/lyra-health-sub001/internal/domain/consent"
)

// CleanupType selects which sweep passes a run performs.
type CleanupType string

const (
	CleanupExpired        CleanupType = "expired"
	CleanupLongRevoked    CleanupType = "long_revoked"
	CleanupInactiveAccess CleanupType = "inactive_access"
)

// Notification template kinds emitted by the sweeper.
const (
	NotifyConsentExpired = "consent-expired"
	NotifyInactiveAccess = "inactive-access"
)

// Options parameterizes a single sweep run.
type Options struct {
	Types               []CleanupType
	ExpiredGraceDays    int  // grace past expires_at before the record expires
	RevokedCleanupDays  int  // age of revoked_at before archival
	InactiveCleanupDays int  // granted-age with no usage before flagging
	DryRun              bool // select and log, mutate nothing
	Notify              bool
	BatchSize           int
	Timeout             time.Duration // hard ceiling for the whole run
}

func (o *Options) applyDefaults() {
	if len(o.Types) == 0 {
		o.Types = []CleanupType{CleanupExpired, CleanupLongRevoked, CleanupInactiveAccess}
	}
	if o.ExpiredGraceDays <= 0 {
		o.ExpiredGraceDays = 7
	}
	if o.RevokedCleanupDays <= 0 {
		o.RevokedCleanupDays = 90
	}
	if o.InactiveCleanupDays <= 0 {
		o.InactiveCleanupDays = 180
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Minute
	}
}

// Stats summarizes a sweep run. Errors counts per-record failures that were
// isolated; the batch never aborts on a single record.
type Stats struct {
	Processed int `json:"processed"`
	Expired   int `json:"expired"`
	Archived  int `json:"archived"`
	Flagged   int `json:"flagged"`
	Notified  int `json:"notified"`
	Errors    int `json:"errors"`
}

// ConsentStore is the slice of the consent repository the sweeper needs.
type ConsentStore interface {
	Update(ctx context.Context, c *consent.ConsentRecord) error
	ListExpiredActive(ctx context.Context, cutoff time.Time, limit int) ([]*consent.ConsentRecord, error)
	ListLongRevoked(ctx context.Context, cutoff time.Time, limit int) ([]*consent.ConsentRecord, error)
	ListActiveGrantedBefore(ctx context.Context, cutoff, after time.Time, limit int) ([]*consent.ConsentRecord, error)
}

// UsageCounter answers whether a pair has any real data use in a window.
type UsageCounter interface {
	CountUsageForPair(ctx context.Context, professionalID, patientID uuid.UUID, since time.Time, types []audit.AccessType) (int, error)
}

// AuditRecorder appends lifecycle audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, e *audit.LogEntry) (uuid.UUID, error)
}

// TxRunner runs fn inside one storage transaction so a status transition and
// its audit entry commit or roll back together.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Sweeper struct {
	consents ConsentStore
	usage    UsageCounter
	auditor  AuditRecorder
	notifier consent.Notifier
	tx       TxRunner
	logger   zerolog.Logger
}

func NewSweeper(consents ConsentStore, usage UsageCounter, auditor AuditRecorder, notifier consent.Notifier, tx TxRunner, logger zerolog.Logger) *Sweeper {
	return &Sweeper{consents: consents, usage: usage, auditor: auditor, notifier: notifier, tx: tx, logger: logger}
}

func (s *Sweeper) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.RunInTx(ctx, fn)
}

// Run executes the selected sweeps once. Every record is an independent,
// retryable unit: a failure is logged and counted, and the run continues.
// Re-running after a partial failure re-evaluates the same selection
// criteria, so records already transitioned are not touched again. Past the
// configured ceiling the run is abandoned; partial completion is safe.
func (s *Sweeper) Run(ctx context.Context, opts Options, now time.Time) (Stats, error) {
	opts.applyDefaults()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var stats Stats
	for _, t := range opts.Types {
		var err error
		switch t {
		case CleanupExpired:
			err = s.sweepExpired(ctx, opts, now, &stats)
		case CleanupLongRevoked:
			err = s.sweepLongRevoked(ctx, opts, now, &stats)
		case CleanupInactiveAccess:
			err = s.sweepInactive(ctx, opts, now, &stats)
		default:
			s.logger.Warn().Str("cleanup_type", string(t)).Msg("unknown cleanup type skipped")
			continue
		}
		if err != nil {
			// Run ceiling reached; return what was completed.
			s.logger.Warn().Err(err).Msg("sweep abandoned")
			return stats, nil
		}
	}

	s.logger.Info().
		Int("processed", stats.Processed).
		Int("expired", stats.Expired).
		Int("archived", stats.Archived).
		Int("flagged", stats.Flagged).
		Int("notified", stats.Notified).
		Int("errors", stats.Errors).
		Bool("dry_run", opts.DryRun).
		Msg("lifecycle sweep complete")
	return stats, nil
}

// sweepExpired transitions active consents whose expiry has passed by more
// than the grace period, with one consent_expired audit entry each.
func (s *Sweeper) sweepExpired(ctx context.Context, opts Options, now time.Time, stats *Stats) error {
	cutoff := now.AddDate(0, 0, -opts.ExpiredGraceDays)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := s.consents.ListExpiredActive(ctx, cutoff, opts.BatchSize)
		if err != nil {
			s.logger.Error().Err(err).Msg("expired sweep selection failed")
			stats.Errors++
			return nil
		}
		if len(batch) == 0 {
			return nil
		}

		progressed := 0
		for _, rec := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			stats.Processed++

			if opts.DryRun {
				s.logger.Info().
					Str("consent_id", rec.ID.String()).
					Time("expires_at", derefTime(rec.ExpiresAt)).
					Msg("dry-run: would expire consent")
				continue
			}

			// Transition and audit entry commit together; if the entry
			// cannot be written the record stays active and is retried on
			// the next run.
			err := s.inTx(ctx, func(ctx context.Context) error {
				rec.Status = consent.StatusExpired
				if err := s.consents.Update(ctx, rec); err != nil {
					return err
				}
				return s.recordTransition(ctx, rec, audit.AccessConsentExpired, now)
			})
			if err != nil {
				s.logger.Error().Err(err).Str("consent_id", rec.ID.String()).Msg("expire transition failed")
				stats.Errors++
				continue
			}
			progressed++
			stats.Expired++

			s.notifyPatient(ctx, opts, rec, NotifyConsentExpired, stats)
		}

		// Dry runs never shrink the selection; one bounded preview batch
		// is enough. Real runs stop once a batch makes no progress so a
		// persistently failing record cannot spin the job.
		if opts.DryRun || progressed == 0 || len(batch) < opts.BatchSize {
			return nil
		}
	}
}

// sweepLongRevoked archives consents revoked longer ago than the retention
// threshold. Archived records are kept solely for audit.
func (s *Sweeper) sweepLongRevoked(ctx context.Context, opts Options, now time.Time, stats *Stats) error {
	cutoff := now.AddDate(0, 0, -opts.RevokedCleanupDays)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := s.consents.ListLongRevoked(ctx, cutoff, opts.BatchSize)
		if err != nil {
			s.logger.Error().Err(err).Msg("long-revoked sweep selection failed")
			stats.Errors++
			return nil
		}
		if len(batch) == 0 {
			return nil
		}

		progressed := 0
		for _, rec := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			stats.Processed++

			if opts.DryRun {
				s.logger.Info().
					Str("consent_id", rec.ID.String()).
					Time("revoked_at", derefTime(rec.RevokedAt)).
					Msg("dry-run: would archive consent")
				continue
			}

			err := s.inTx(ctx, func(ctx context.Context) error {
				rec.Status = consent.StatusArchived
				if err := s.consents.Update(ctx, rec); err != nil {
					return err
				}
				return s.recordTransition(ctx, rec, audit.AccessConsentArchived, now)
			})
			if err != nil {
				s.logger.Error().Err(err).Str("consent_id", rec.ID.String()).Msg("archive transition failed")
				stats.Errors++
				continue
			}
			progressed++
			stats.Archived++
		}

		if opts.DryRun || progressed == 0 || len(batch) < opts.BatchSize {
			return nil
		}
	}
}

// sweepInactive flags active consents granted long ago with no recorded use
// by the pair in the window. Advisory only: status never changes here.
// The selection excludes already-flagged records, and the granted_at cursor
// advances past every examined record, so batches full of in-use or failing
// consents never block younger candidates from being reached.
func (s *Sweeper) sweepInactive(ctx context.Context, opts Options, now time.Time, stats *Stats) error {
	cutoff := now.AddDate(0, 0, -opts.InactiveCleanupDays)

	var after time.Time
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := s.consents.ListActiveGrantedBefore(ctx, cutoff, after, opts.BatchSize)
		if err != nil {
			s.logger.Error().Err(err).Msg("inactive sweep selection failed")
			stats.Errors++
			return nil
		}
		if len(batch) == 0 {
			return nil
		}

		for _, rec := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			after = rec.GrantedAt
			stats.Processed++

			used, err := s.usage.CountUsageForPair(ctx, rec.ProfessionalID, rec.PatientID, cutoff, audit.UsageTypes())
			if err != nil {
				s.logger.Error().Err(err).Str("consent_id", rec.ID.String()).Msg("usage lookup failed")
				stats.Errors++
				continue
			}
			if used > 0 {
				continue
			}

			if opts.DryRun {
				s.logger.Info().
					Str("consent_id", rec.ID.String()).
					Time("granted_at", rec.GrantedAt).
					Msg("dry-run: would flag inactive access")
				continue
			}

			rec.SetFlag(consent.FlagInactiveAccess, now)
			if err := s.consents.Update(ctx, rec); err != nil {
				s.logger.Error().Err(err).Str("consent_id", rec.ID.String()).Msg("inactive flag failed")
				stats.Errors++
				continue
			}
			stats.Flagged++

			s.notifyPatient(ctx, opts, rec, NotifyInactiveAccess, stats)
		}

		if len(batch) < opts.BatchSize {
			return nil
		}
	}
}

func (s *Sweeper) recordTransition(ctx context.Context, rec *consent.ConsentRecord, t audit.AccessType, now time.Time) error {
	notes := "automated lifecycle transition"
	_, err := s.auditor.Record(ctx, &audit.LogEntry{
		ProfessionalID: rec.ProfessionalID,
		PatientID:      rec.PatientID,
		AccessedAt:     now,
		AccessType:     t,
		IPAddress:      "system",
		Notes:          &notes,
	})
	return err
}

func (s *Sweeper) notifyPatient(ctx context.Context, opts Options, rec *consent.ConsentRecord, kind string, stats *Stats) {
	if !opts.Notify || s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, rec.PatientID, kind, map[string]string{
		"consent_id":      rec.ID.String(),
		"professional_id": rec.ProfessionalID.String(),
	})
	stats.Notified++
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
