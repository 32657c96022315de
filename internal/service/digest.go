package service

import (
	"context"
	"fmt"

	"battlelog-tracker/internal/domain"
	"battlelog-tracker/internal/metrics"

	"github.com/rs/zerolog"
)

// DigestService builds the "latest losses" feed.
type DigestService struct {
	seasons *SeasonLogCache
	catalog *CharacterCatalog
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewDigestService(seasons *SeasonLogCache, catalog *CharacterCatalog, logger zerolog.Logger, m *metrics.Metrics) *DigestService {
	return &DigestService{
		seasons: seasons,
		catalog: catalog,
		logger:  logger.With().Str("component", "digest").Logger(),
		metrics: m,
	}
}

// LatestLosses returns up to n losing compositions in the season's stored
// order. Records without exactly one losing side are skipped.
func (s *DigestService) LatestLosses(ctx context.Context, n int, season string, excludeFederated bool) ([]domain.LossDigest, error) {
	if n <= 0 {
		return []domain.LossDigest{}, nil
	}

	records, err := s.seasons.Get(ctx, season)
	if err != nil {
		return nil, fmt.Errorf("failed to load season: %w", err)
	}

	lookup := s.catalog.Lookup(ctx)
	digests := make([]domain.LossDigest, 0, min(n, len(records)))
	skipped := 0
	for _, rec := range records {
		if len(digests) == n {
			break
		}
		if excludeFederated && rec.Origin != domain.OriginSelfHosted {
			continue
		}
		side, ok := rec.LosingSide()
		if !ok {
			skipped++
			s.metrics.AnomalySkipped()
			continue
		}
		team := rec.Team(side)
		digests = append(digests, domain.LossDigest{
			Date:       rec.Date,
			Origin:     rec.Origin,
			Side:       side,
			Player:     team.Player,
			Characters: lookup.Composition(team.Characters),
		})
	}

	if skipped > 0 {
		s.logger.Debug().Int("skipped", skipped).Str("season", season).Msg("skipped records without a single losing side")
	}
	return digests, nil
}
