package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"battlelog-tracker/internal/constants"
	"battlelog-tracker/internal/domain"
	"battlelog-tracker/internal/metrics"
	"battlelog-tracker/internal/repository"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// SeasonLog is an immutable view of one season's records, newest first. A
// new version is published on every rebuild or append; Records is never
// modified after publication.
type SeasonLog struct {
	Season    string
	Version   uint64
	Records   []domain.BattleRecord
	UpdatedAt time.Time
}

// SeasonLogCache holds the merged battle logs of both origins per season.
// Seasons load lazily from the snapshot store, falling back to a rebuild from
// the remote store, and stay in memory until the next rebuild or append.
type SeasonLogCache struct {
	source        RecordSource
	store         repository.SnapshotStore
	currentSeason string
	logger        zerolog.Logger
	metrics       *metrics.Metrics

	flight  singleflight.Group
	version atomic.Uint64

	// serializes publication and persistence
	writeMu sync.Mutex

	mu      sync.RWMutex
	seasons map[string]*SeasonLog
}

func NewSeasonLogCache(source RecordSource, store repository.SnapshotStore, currentSeason string, logger zerolog.Logger, m *metrics.Metrics) *SeasonLogCache {
	return &SeasonLogCache{
		source:        source,
		store:         store,
		currentSeason: currentSeason,
		logger:        logger.With().Str("component", "season_log").Logger(),
		metrics:       m,
		seasons:       make(map[string]*SeasonLog),
	}
}

func (c *SeasonLogCache) CurrentSeason() string {
	return c.currentSeason
}

func (c *SeasonLogCache) resolve(season string) string {
	if season == "" {
		return c.currentSeason
	}
	return season
}

// Get returns the season's records, loading them on first access.
func (c *SeasonLogCache) Get(ctx context.Context, season string) ([]domain.BattleRecord, error) {
	log, err := c.Snapshot(ctx, season)
	if err != nil {
		return nil, err
	}
	return log.Records, nil
}

// Peek returns the in-memory view without loading.
func (c *SeasonLogCache) Peek(season string) (*SeasonLog, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	log, ok := c.seasons[c.resolve(season)]
	return log, ok
}

// flightResult is what a per-season flight hands its callers. fetched is
// set when the flight went to the remote store rather than a snapshot.
type flightResult struct {
	log     *SeasonLog
	fetched bool
}

// Snapshot is Get plus the version, for callers that memoize on it.
// Lazy loads and rebuilds of one season share a single flight, so a season
// has at most one remote fetch in progress.
func (c *SeasonLogCache) Snapshot(ctx context.Context, season string) (*SeasonLog, error) {
	season = c.resolve(season)
	if log, ok := c.Peek(season); ok {
		return log, nil
	}

	ch := c.flight.DoChan(season, func() (any, error) {
		if log, ok := c.Peek(season); ok {
			return flightResult{log: log}, nil
		}
		return c.load(context.WithoutCancel(ctx), season)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(flightResult).log, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *SeasonLogCache) load(ctx context.Context, season string) (flightResult, error) {
	base := c.currentVersion(season)
	records, err := c.store.Load(ctx, season)
	switch {
	case err == nil:
		c.logger.Info().Str("season", season).Int("count", len(records)).Msg("season loaded from snapshot")
		return flightResult{log: c.publish(ctx, season, records, false, base)}, nil
	case errors.Is(err, repository.ErrSnapshotNotFound):
		c.logger.Info().Str("season", season).Msg("no snapshot, rebuilding season")
	default:
		c.metrics.SnapshotError("load")
		c.logger.Warn().Err(err).Str("season", season).Msg("failed to load snapshot, rebuilding season")
	}
	log, err := c.rebuild(ctx, season)
	if err != nil {
		return flightResult{}, err
	}
	return flightResult{log: log, fetched: true}, nil
}

// Rebuild refetches both origins and replaces the season wholesale. A
// caller that lands on a flight which fetched remotely shares its result; one
// that lands on a snapshot load waits for it and then starts its own fetch.
func (c *SeasonLogCache) Rebuild(ctx context.Context, season string) (*SeasonLog, error) {
	season = c.resolve(season)
	for {
		ran := false
		ch := c.flight.DoChan(season, func() (any, error) {
			ran = true
			log, err := c.rebuild(context.WithoutCancel(ctx), season)
			return flightResult{log: log, fetched: true}, err
		})

		select {
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
			if r := res.Val.(flightResult); ran || r.fetched {
				return r.log, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *SeasonLogCache) currentVersion(season string) uint64 {
	if log, ok := c.Peek(season); ok {
		return log.Version
	}
	return 0
}

func (c *SeasonLogCache) rebuild(ctx context.Context, season string) (*SeasonLog, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RebuildTimeout)
	defer cancel()

	start := time.Now()
	base := c.currentVersion(season)
	var selfHosted, federated []domain.BattleRecord

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		selfHosted, err = c.source.FetchRecords(gCtx, season, domain.OriginSelfHosted)
		return err
	})
	g.Go(func() error {
		recs, err := c.source.FetchRecords(gCtx, season, domain.OriginFederated)
		if err != nil {
			c.logger.Warn().Err(err).Str("season", season).Msg("federated fetch failed, continuing without it")
			return nil
		}
		federated = recs
		return nil
	})

	if err := g.Wait(); err != nil {
		c.metrics.SeasonRebuild(err)
		c.logger.Error().Err(err).Str("season", season).Msg("failed to rebuild season")
		return nil, fmt.Errorf("failed to rebuild season %s: %w", season, err)
	}

	merged := make([]domain.BattleRecord, 0, len(selfHosted)+len(federated))
	for _, rec := range selfHosted {
		rec.Origin, rec.Season = domain.OriginSelfHosted, season
		merged = append(merged, rec)
	}
	for _, rec := range federated {
		rec.Origin, rec.Season = domain.OriginFederated, season
		merged = append(merged, rec)
	}
	domain.SortByDateDesc(merged)

	log := c.publish(ctx, season, merged, true, base)
	c.metrics.SeasonRebuild(nil)
	c.logger.Info().
		Str("season", season).
		Int("self_hosted", len(selfHosted)).
		Int("federated", len(federated)).
		Dur("duration", time.Since(start)).
		Msg("season rebuilt")
	return log, nil
}

// AppendHead puts rec at index 0 of the season without re-sorting. A season
// that was never loaded is loaded first.
func (c *SeasonLogCache) AppendHead(ctx context.Context, season string, rec domain.BattleRecord, origin domain.Origin) (*SeasonLog, error) {
	season = c.resolve(season)
	// load outside writeMu, since a rebuild publishes under it
	if _, err := c.Snapshot(ctx, season); err != nil {
		return nil, err
	}

	rec.Origin, rec.Season = origin, season

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var existing []domain.BattleRecord
	var base uint64
	if cur, ok := c.Peek(season); ok {
		existing, base = cur.Records, cur.Version
	}
	records := make([]domain.BattleRecord, 0, len(existing)+1)
	records = append(records, rec)
	records = append(records, existing...)

	log := c.publishLocked(ctx, season, records, true, base)
	c.logger.Info().
		Str("season", season).
		Str("origin", string(origin)).
		Str("date", rec.Date).
		Int("count", len(records)).
		Msg("record appended")
	return log, nil
}

func (c *SeasonLogCache) publish(ctx context.Context, season string, records []domain.BattleRecord, persist bool, base uint64) *SeasonLog {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.publishLocked(ctx, season, records, persist, base)
}

// publishLocked persists and swaps in a new version. base is the season's
// version when the records were read; if another version was published since,
// the records are dropped and the current view is returned. A persistence
// failure is logged and counted; the in-memory view is replaced regardless.
func (c *SeasonLogCache) publishLocked(ctx context.Context, season string, records []domain.BattleRecord, persist bool, base uint64) *SeasonLog {
	if cur, ok := c.Peek(season); ok && cur.Version != base {
		c.logger.Info().
			Str("season", season).
			Uint64("base_version", base).
			Uint64("current_version", cur.Version).
			Msg("season changed while loading, keeping the newer version")
		return cur
	}

	if persist {
		if err := c.store.Save(ctx, season, records); err != nil {
			c.metrics.SnapshotError("save")
			c.logger.Error().Err(err).Str("season", season).Msg("failed to persist snapshot")
		}
	}

	log := &SeasonLog{
		Season:    season,
		Version:   c.version.Add(1),
		Records:   records,
		UpdatedAt: time.Now(),
	}

	c.mu.Lock()
	c.seasons[season] = log
	c.mu.Unlock()
	return log
}
