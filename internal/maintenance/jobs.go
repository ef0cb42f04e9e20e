package maintenance

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tradetools/ttconnect/internal/database"
	"github.com/tradetools/ttconnect/internal/reliability"
	"github.com/tradetools/ttconnect/store"
)

// Default schedules, evaluated in IST. The vendors publish the day's
// instrument master early morning; refreshing before market open keeps
// the local snapshot usable all session.
const (
	DefaultRefreshSchedule    = "45 8 * * *"
	DefaultCheckpointSchedule = "@every 1h"
	DefaultBackupSchedule     = "30 18 * * *"
)

// RefreshJob rebuilds the instrument master from the vendor.
type RefreshJob struct {
	store *store.Store
	fetch store.FetchFunc
	log   zerolog.Logger
}

// NewRefreshJob wires the daily refresh to a store and its fetcher.
func NewRefreshJob(st *store.Store, fetch store.FetchFunc, log zerolog.Logger) *RefreshJob {
	return &RefreshJob{
		store: st,
		fetch: fetch,
		log:   log.With().Str("job", "instrument_refresh").Logger(),
	}
}

// Run refreshes the master unconditionally; the schedule, not the
// staleness check, decides when this job fires.
func (j *RefreshJob) Run(ctx context.Context) error {
	if err := j.store.Refresh(ctx, j.fetch); err != nil {
		return fmt.Errorf("failed to refresh instruments: %w", err)
	}

	counts, err := j.store.Counts(ctx)
	if err != nil {
		return err
	}
	j.log.Info().
		Int("instruments", counts.Instruments).
		Int("futures", counts.Futures).
		Int("options", counts.Options).
		Msg("Instrument master refreshed")
	return nil
}

func (j *RefreshJob) Name() string { return "instrument_refresh" }

// CheckpointJob truncates the WAL so it cannot grow unbounded between
// refreshes.
type CheckpointJob struct {
	db  *database.DB
	log zerolog.Logger
}

// NewCheckpointJob wires the periodic WAL checkpoint.
func NewCheckpointJob(db *database.DB, log zerolog.Logger) *CheckpointJob {
	return &CheckpointJob{
		db:  db,
		log: log.With().Str("job", "wal_checkpoint").Logger(),
	}
}

// Run forces a truncating WAL checkpoint.
func (j *CheckpointJob) Run(_ context.Context) error {
	if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
		return err
	}

	stats, err := j.db.GetStats()
	if err != nil {
		return err
	}
	j.log.Debug().
		Int64("db_bytes", stats.SizeBytes).
		Int64("wal_bytes", stats.WALSizeBytes).
		Msg("WAL checkpoint completed")
	return nil
}

func (j *CheckpointJob) Name() string { return "wal_checkpoint" }

// BackupJob uploads a fresh archive and rotates old ones.
type BackupJob struct {
	backups       *reliability.Backups
	retentionDays int
	log           zerolog.Logger
}

// NewBackupJob wires the daily backup with a retention window in days.
func NewBackupJob(backups *reliability.Backups, retentionDays int, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		backups:       backups,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "backup").Logger(),
	}
}

// Run backs up, then rotates. Rotation failure is logged, not fatal:
// today's backup already landed.
func (j *BackupJob) Run(ctx context.Context) error {
	if err := j.backups.Backup(ctx); err != nil {
		return err
	}
	if err := j.backups.Rotate(ctx, j.retentionDays); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}
	return nil
}

func (j *BackupJob) Name() string { return "backup" }
