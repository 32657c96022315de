package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"battlelog-tracker/internal/constants"
	"battlelog-tracker/internal/domain"
	"battlelog-tracker/internal/metrics"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
)

type SearchQuery struct {
	Side       domain.Side
	Characters []string
	Season     string
	// ExcludeFederated keeps only self-hosted records.
	ExcludeFederated bool
}

// SearchService finds the battles a composition lost and pairs each with
// the composition that beat it.
type SearchService struct {
	seasons *SeasonLogCache
	catalog *CharacterCatalog
	logger  zerolog.Logger
	metrics *metrics.Metrics

	// matched records per (season version, query); enrichment is redone on
	// every call so icon reloads show up immediately
	memo *expirable.LRU[string, []domain.BattleRecord]
}

func NewSearchService(seasons *SeasonLogCache, catalog *CharacterCatalog, logger zerolog.Logger, m *metrics.Metrics) *SearchService {
	return &SearchService{
		seasons: seasons,
		catalog: catalog,
		logger:  logger.With().Str("component", "search").Logger(),
		metrics: m,
		memo:    expirable.NewLRU[string, []domain.BattleRecord](constants.SearchMemoSize, nil, constants.SearchMemoTTL),
	}
}

// Validate checks q without touching any cache and returns the normalized
// composition.
func (q SearchQuery) Validate() (domain.Composition, error) {
	var comp domain.Composition
	if !q.Side.Valid() {
		return comp, fmt.Errorf("%w: %q", ErrInvalidSide, q.Side)
	}
	if len(q.Characters) != domain.CompositionSize {
		return comp, fmt.Errorf("%w: got %d", ErrInvalidSlotCount, len(q.Characters))
	}
	copy(comp[:], q.Characters)
	comp = domain.NormalizeComposition(comp)
	if domain.NewMatcher(comp).Empty() {
		return comp, ErrEmptyQuery
	}
	return comp, nil
}

func (s *SearchService) Search(ctx context.Context, q SearchQuery) ([]domain.MatchResult, error) {
	comp, err := q.Validate()
	if err != nil {
		s.metrics.Search(sideLabel(q.Side), err)
		return nil, err
	}

	log, err := s.seasons.Snapshot(ctx, q.Season)
	if err != nil {
		s.metrics.Search(sideLabel(q.Side), err)
		s.logger.Error().Err(err).Str("season", q.Season).Msg("failed to load season")
		return nil, fmt.Errorf("failed to load season: %w", err)
	}

	key := memoKey(log, q, comp)
	matched, hit := s.memo.Get(key)
	if hit {
		s.metrics.SearchMemoHit()
	} else {
		matched = match(log.Records, comp, q.Side, q.ExcludeFederated)
		s.memo.Add(key, matched)
	}

	results := enrich(matched, q.Side, s.catalog.Icons(ctx))
	s.metrics.Search(sideLabel(q.Side), nil)
	s.logger.Debug().
		Str("season", log.Season).
		Str("side", string(q.Side)).
		Bool("exclude_federated", q.ExcludeFederated).
		Bool("memo_hit", hit).
		Int("count", len(results)).
		Msg("search completed")
	return results, nil
}

func sideLabel(s domain.Side) string {
	if s.Valid() {
		return string(s)
	}
	return "invalid"
}

func memoKey(log *SeasonLog, q SearchQuery, comp domain.Composition) string {
	return fmt.Sprintf("%s\x00%d\x00%s\x00%t\x00%s", log.Season, log.Version, q.Side, q.ExcludeFederated, strings.Join(comp[:], "\x1f"))
}

// match keeps records where the queried side lost to the other side and the
// queried side's characters satisfy the matcher, newest first.
func match(records []domain.BattleRecord, comp domain.Composition, side domain.Side, excludeFederated bool) []domain.BattleRecord {
	m := domain.NewMatcher(comp)
	opposing := side.Opposite()

	var out []domain.BattleRecord
	for _, rec := range records {
		if excludeFederated && rec.Origin != domain.OriginSelfHosted {
			continue
		}
		if rec.Team(opposing).Outcome != domain.OutcomeWin {
			continue
		}
		if !m.Matches(rec, side) {
			continue
		}
		out = append(out, rec)
	}
	out = slices.Clip(out)
	domain.SortByDateDesc(out)
	return out
}

func enrich(matched []domain.BattleRecord, loser domain.Side, icons domain.IconMap) []domain.MatchResult {
	winner := loser.Opposite()
	results := make([]domain.MatchResult, len(matched))
	for i, rec := range matched {
		w, l := rec.Team(winner), rec.Team(loser)
		results[i] = domain.MatchResult{
			Origin:            rec.Origin,
			WinnerSide:        winner,
			WinnerIcon:        icons.SideIcon(winner),
			WinnerOutcomeIcon: icons.Get(domain.IconWin),
			WinnerPlayer:      w.Player,
			WinnerCharacters:  w.Characters,
			LoserSide:         loser,
			LoserIcon:         icons.SideIcon(loser),
			LoserOutcomeIcon:  icons.Get(domain.IconLose),
			LoserPlayer:       l.Player,
			LoserCharacters:   l.Characters,
			Date:              rec.Date,
		}
	}
	return results
}
