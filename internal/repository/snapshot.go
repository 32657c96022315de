package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"battlelog-tracker/internal/domain"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotStore persists the last built record list of each season so a
// restart does not have to rebuild from the sheets.
type SnapshotStore interface {
	Load(ctx context.Context, season string) ([]domain.BattleRecord, error)
	Save(ctx context.Context, season string, records []domain.BattleRecord) error
}

// snapshots are stored as flat rows so the payload matches the sheet layout
func encodeSnapshot(records []domain.BattleRecord) ([]byte, error) {
	rows := make([]domain.Row, len(records))
	for i, rec := range records {
		rows[i] = rec.Row()
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return payload, nil
}

func decodeSnapshot(payload []byte, season string) ([]domain.BattleRecord, error) {
	var rows []domain.Row
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	records := make([]domain.BattleRecord, len(rows))
	for i, row := range rows {
		records[i] = domain.RecordFromRow(row, season)
	}
	return records, nil
}
