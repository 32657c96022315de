package service

import (
	"context"

	"battlelog-tracker/internal/api"
	"battlelog-tracker/internal/convert"
	"battlelog-tracker/internal/domain"
)

// RecordSource is the remote store of converted battle logs.
type RecordSource interface {
	FetchRecords(ctx context.Context, season string, origin domain.Origin) ([]domain.BattleRecord, error)
}

type RosterSource interface {
	FetchStrikers(ctx context.Context) ([]domain.Character, error)
	FetchSpecials(ctx context.Context) ([]domain.Character, error)
	FetchIconMap(ctx context.Context) (domain.IconMap, error)
}

// RawLogWriter is the write side of the remote store: raw rows go in, the
// converter's newest output row comes back.
type RawLogWriter interface {
	InsertRawRow(ctx context.Context, values []string) error
	FetchLatestRecord(ctx context.Context) (domain.Row, error)
}

type Converter interface {
	Run(ctx context.Context) error
}

type PeerPusher interface {
	Configured() bool
	PushBattleLog(ctx context.Context, row domain.Row) error
}

var (
	_ RecordSource = (*api.SheetsClient)(nil)
	_ RosterSource = (*api.SheetsClient)(nil)
	_ RawLogWriter = (*api.SheetsClient)(nil)
	_ Converter    = (*convert.Runner)(nil)
	_ PeerPusher   = (*api.PeerClient)(nil)
)
