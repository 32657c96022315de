package service

import (
	"context"
	"fmt"
	"strings"

	"battlelog-tracker/internal/constants"
	"battlelog-tracker/internal/domain"
	"battlelog-tracker/internal/metrics"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"
)

type SubmitResult struct {
	ID         string              `json:"id"`
	Record     domain.BattleRecord `json:"-"`
	Row        domain.Row          `json:"row"`
	PeerPushed bool                `json:"peer_pushed"`
}

// IngestService is the write path: uploaded raw rows and rows pushed by the
// peer deployment both end up at the head of the current season.
type IngestService struct {
	writer    RawLogWriter
	converter Converter
	peer      PeerPusher
	seasons   *SeasonLogCache
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

func NewIngestService(writer RawLogWriter, converter Converter, peer PeerPusher, seasons *SeasonLogCache, logger zerolog.Logger, m *metrics.Metrics) *IngestService {
	return &IngestService{
		writer:    writer,
		converter: converter,
		peer:      peer,
		seasons:   seasons,
		logger:    logger.With().Str("component", "ingest").Logger(),
		metrics:   m,
	}
}

// Submit writes a raw row, converts it and appends the converted record to
// the current season. Each failing stage returns its own sentinel error.
func (s *IngestService) Submit(ctx context.Context, raw []string) (*SubmitResult, error) {
	if len(raw) != constants.RawRowFields {
		s.metrics.Ingest(ReasonInvalidRow)
		return nil, fmt.Errorf("%w: expected %d fields, got %d", ErrInvalidRow, constants.RawRowFields, len(raw))
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate submission id: %w", err)
	}
	logger := s.logger.With().Str("submission_id", id).Logger()

	values := make([]string, len(raw))
	for i, v := range raw {
		values[i] = norm.NFKC.String(v)
	}

	if err := s.writer.InsertRawRow(ctx, values); err != nil {
		s.metrics.Ingest(ReasonWriteFailed)
		logger.Error().Err(err).Msg("failed to insert raw row")
		return nil, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	// the raw row is written; later stages run on their own timeouts
	ctx = context.WithoutCancel(ctx)

	if err := s.converter.Run(ctx); err != nil {
		s.metrics.Ingest(ReasonConversionFailed)
		logger.Error().Err(err).Msg("raw row written but conversion failed")
		return nil, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	row, err := s.writer.FetchLatestRecord(ctx)
	if err != nil {
		s.metrics.Ingest(ReasonConvertedRowMissing)
		logger.Error().Err(err).Msg("converted row could not be read back")
		return nil, fmt.Errorf("%w: %w", ErrConvertedRowMissing, err)
	}

	rec := domain.RecordFromRow(row, s.seasons.CurrentSeason())
	if _, err := s.seasons.AppendHead(ctx, "", rec, domain.OriginSelfHosted); err != nil {
		s.metrics.Ingest("append_failed")
		logger.Error().Err(err).Msg("failed to append converted record")
		return nil, fmt.Errorf("failed to append record: %w", err)
	}

	res := &SubmitResult{ID: id, Record: rec, Row: row}
	if s.peer != nil && s.peer.Configured() {
		if err := s.peer.PushBattleLog(ctx, row); err != nil {
			s.metrics.Ingest("peer_push_failed")
			logger.Warn().Err(err).Msg("failed to push battle log to peer")
		} else {
			res.PeerPushed = true
		}
	}

	s.metrics.Ingest("ok")
	logger.Info().Str("date", rec.Date).Bool("peer_pushed", res.PeerPushed).Msg("battle log submitted")
	return res, nil
}

// Receive appends a converted row pushed by the peer deployment. The row's
// source column selects the origin; without one it is federated.
func (s *IngestService) Receive(ctx context.Context, row domain.Row) (*SeasonLog, error) {
	if isEmptyRow(row) {
		s.metrics.Ingest(ReasonInvalidRow)
		return nil, fmt.Errorf("%w: no data received", ErrInvalidRow)
	}

	origin, err := domain.ParseOrigin(row[domain.ColumnOrigin])
	if err != nil {
		s.metrics.Ingest(ReasonInvalidRow)
		return nil, fmt.Errorf("%w: %w", ErrInvalidRow, err)
	}

	rec := domain.RecordFromRow(row, s.seasons.CurrentSeason())
	log, err := s.seasons.AppendHead(ctx, "", rec, origin)
	if err != nil {
		s.metrics.Ingest("append_failed")
		return nil, fmt.Errorf("failed to append record: %w", err)
	}

	s.metrics.Ingest("received")
	s.logger.Info().Str("origin", string(origin)).Str("date", rec.Date).Msg("battle log received from peer")
	return log, nil
}

func isEmptyRow(row domain.Row) bool {
	for k, v := range row {
		if k != domain.ColumnOrigin && strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
