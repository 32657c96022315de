package fx

import (
	"context"

	"battlelog-tracker/internal/api"
	"battlelog-tracker/internal/cache"
	"battlelog-tracker/internal/config"
	"battlelog-tracker/internal/convert"
	"battlelog-tracker/internal/database"
	"battlelog-tracker/internal/logger"
	"battlelog-tracker/internal/metrics"
	"battlelog-tracker/internal/repository"
	"battlelog-tracker/internal/server"
	"battlelog-tracker/internal/service"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// ProvideSnapshotStore opens the store selected by SNAPSHOT_DRIVER and
// closes it when the app stops.
func ProvideSnapshotStore(lc fx.Lifecycle, cfg *config.Config, logger zerolog.Logger) (repository.SnapshotStore, error) {
	switch cfg.SnapshotDriver {
	case config.SnapshotDriverBolt:
		store, err := repository.OpenBoltSnapshotStore(cfg.BoltPath, logger)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.StopHook(store.Close))
		return store, nil
	default:
		sqlDB, err := database.New(cfg, logger)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.StopHook(sqlDB.Close))
		return repository.NewSQLiteSnapshotStore(sqlDB, logger), nil
	}
}

func ProvideSeasonLogCache(source service.RecordSource, store repository.SnapshotStore, cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) *service.SeasonLogCache {
	return service.NewSeasonLogCache(source, store, cfg.CurrentSeason, logger, m)
}

func ProvideCharacterCatalog(src service.RosterSource, cfg *config.Config, clock clockwork.Clock, logger zerolog.Logger, m *metrics.Metrics) *service.CharacterCatalog {
	return service.NewCharacterCatalog(src, cfg.RosterTTL, clock, logger, m)
}

// ProvideScheduler keeps the rosters warm while the app runs.
func ProvideScheduler(lc fx.Lifecycle, catalog *service.CharacterCatalog, clock clockwork.Clock, logger zerolog.Logger) *cache.Scheduler {
	s := cache.NewScheduler(clock, logger.With().Str("component", "scheduler").Logger(), catalog.Refreshers()...)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			s.Stop()
			return nil
		},
	})
	return s
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(metrics.New),
	fx.Provide(clockwork.NewRealClock),
	// storage
	fx.Provide(ProvideSnapshotStore),
	// external clients
	fx.Provide(fx.Annotate(
		api.NewSheetsClient,
		fx.As(new(service.RecordSource)),
		fx.As(new(service.RosterSource)),
		fx.As(new(service.RawLogWriter)),
	)),
	fx.Provide(fx.Annotate(api.NewPeerClientFromConfig, fx.As(new(service.PeerPusher)))),
	fx.Provide(fx.Annotate(convert.NewRunnerFromConfig, fx.As(new(service.Converter)))),
	// svc
	fx.Provide(ProvideSeasonLogCache),
	fx.Provide(ProvideCharacterCatalog),
	fx.Provide(service.NewSearchService),
	fx.Provide(service.NewDigestService),
	fx.Provide(service.NewIngestService),
	fx.Provide(ProvideScheduler),
	fx.Invoke(func(*cache.Scheduler) {}),
	// server
	fx.Provide(server.NewBattleLogServer),
)
