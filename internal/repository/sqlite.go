package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"battlelog-tracker/internal/constants"
	"battlelog-tracker/internal/domain"

	"github.com/rs/zerolog"
)

type SQLiteSnapshotStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewSQLiteSnapshotStore(sqlDB *sql.DB, logger zerolog.Logger) *SQLiteSnapshotStore {
	return &SQLiteSnapshotStore{
		db:     sqlDB,
		logger: logger.With().Str("store", "sqlite").Logger(),
	}
}

func (r *SQLiteSnapshotStore) Load(ctx context.Context, season string) ([]domain.BattleRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	var payload []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM season_snapshots WHERE season = ?`, season,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", season, err)
	}

	return decodeSnapshot(payload, season)
}

func (r *SQLiteSnapshotStore) Save(ctx context.Context, season string, records []domain.BattleRecord) error {
	payload, err := encodeSnapshot(records)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO season_snapshots (season, payload, record_count, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(season) DO UPDATE SET
			payload = excluded.payload,
			record_count = excluded.record_count,
			updated_at = excluded.updated_at`,
		season, string(payload), len(records), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot %s: %w", season, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot %s: %w", season, err)
	}

	r.logger.Debug().Str("season", season).Int("records", len(records)).Msg("snapshot saved")
	return nil
}
