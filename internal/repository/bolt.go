package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"battlelog-tracker/internal/domain"

	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"
)

const snapshotBucket = "season_snapshots"

// BoltSnapshotStore keeps one key per season in a single bucket.
type BoltSnapshotStore struct {
	db     *bbolt.DB
	logger zerolog.Logger
}

func OpenBoltSnapshotStore(path string, logger zerolog.Logger) (*BoltSnapshotStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("snapshot path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(snapshotBucket)); err != nil {
			return fmt.Errorf("failed to create snapshot bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info().Str("path", path).Msg("snapshot bolt store ready")
	return &BoltSnapshotStore{db: db, logger: logger.With().Str("store", "bolt").Logger()}, nil
}

func (s *BoltSnapshotStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BoltSnapshotStore) Load(ctx context.Context, season string) ([]domain.BattleRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var payload []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(snapshotBucket))
		if bucket == nil {
			return fmt.Errorf("snapshot bucket is missing")
		}
		v := bucket.Get([]byte(season))
		if v == nil {
			return ErrSnapshotNotFound
		}
		// v is only valid inside the transaction
		payload = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return decodeSnapshot(payload, season)
}

func (s *BoltSnapshotStore) Save(ctx context.Context, season string, records []domain.BattleRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(season) == "" {
		return fmt.Errorf("season is required")
	}

	payload, err := encodeSnapshot(records)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(snapshotBucket))
		if bucket == nil {
			return fmt.Errorf("snapshot bucket is missing")
		}
		return bucket.Put([]byte(season), payload)
	})
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", season, err)
	}

	s.logger.Debug().Str("season", season).Int("records", len(records)).Msg("snapshot saved")
	return nil
}
