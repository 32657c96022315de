package service

import (
	"context"
	"time"

	"battlelog-tracker/internal/cache"
	"battlelog-tracker/internal/constants"
	"battlelog-tracker/internal/domain"
	"battlelog-tracker/internal/metrics"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// CharacterCatalog serves the two rosters and the icon map. Reads never
// fail: they return the best data available, empty if nothing was ever
// fetched.
type CharacterCatalog struct {
	strikers *cache.TTLCache[[]domain.Character]
	specials *cache.TTLCache[[]domain.Character]
	icons    *cache.TTLCache[domain.IconMap]
	logger   zerolog.Logger
}

func NewCharacterCatalog(src RosterSource, rosterTTL time.Duration, clock clockwork.Clock, logger zerolog.Logger, m *metrics.Metrics) *CharacterCatalog {
	logger = logger.With().Str("component", "catalog").Logger()
	rosterOpts := cache.Options{
		Lifetime: rosterTTL,
		Timeout:  constants.ExternalAPITimeout,
		Clock:    clock,
		Logger:   logger,
		Metrics:  m,
	}
	iconOpts := rosterOpts
	iconOpts.Lifetime = constants.IconCacheTTL

	return &CharacterCatalog{
		strikers: cache.New("strikers", src.FetchStrikers, rosterOpts),
		specials: cache.New("specials", src.FetchSpecials, rosterOpts),
		icons:    cache.New("icons", src.FetchIconMap, iconOpts),
		logger:   logger,
	}
}

// Refreshers lists the caches the scheduler keeps warm. The icon cache is
// included but has no lifetime, so the scheduler skips it.
func (c *CharacterCatalog) Refreshers() []cache.Refresher {
	return []cache.Refresher{c.strikers, c.specials, c.icons}
}

func (c *CharacterCatalog) Strikers(ctx context.Context) []domain.Character {
	return read(ctx, c.strikers, c.logger)
}

func (c *CharacterCatalog) Specials(ctx context.Context) []domain.Character {
	return read(ctx, c.specials, c.logger)
}

func (c *CharacterCatalog) Icons(ctx context.Context) domain.IconMap {
	icons := read(ctx, c.icons, c.logger)
	if icons == nil {
		return domain.IconMap{}
	}
	return icons
}

// ReloadIcons refetches the icon map. A failed reload keeps and returns the
// previous map; the error is only returned when no map was ever loaded.
func (c *CharacterCatalog) ReloadIcons(ctx context.Context) (domain.IconMap, error) {
	icons, err := c.icons.ForceRefresh(ctx)
	if err != nil {
		return domain.IconMap{}, err
	}
	c.logger.Info().Int("count", len(icons)).Msg("icons reloaded")
	return icons, nil
}

// Lookup snapshots both rosters into a name index for one enrichment pass.
func (c *CharacterCatalog) Lookup(ctx context.Context) IconLookup {
	return NewIconLookup(c.Strikers(ctx), c.Specials(ctx))
}

func read[T any](ctx context.Context, tc *cache.TTLCache[T], logger zerolog.Logger) T {
	data, err := tc.Get(ctx)
	if err != nil {
		logger.Warn().Err(err).Str("cache", tc.Name()).Msg("no data available")
	}
	return data
}

// IconLookup resolves character names to icons. Main slots prefer the
// striker roster, special slots prefer the special roster.
type IconLookup struct {
	strikers map[string]string
	specials map[string]string
}

func NewIconLookup(strikers, specials []domain.Character) IconLookup {
	return IconLookup{
		strikers: index(strikers),
		specials: index(specials),
	}
}

func index(roster []domain.Character) map[string]string {
	m := make(map[string]string, len(roster))
	for _, ch := range roster {
		key := domain.Normalize(ch.Name)
		if _, ok := m[key]; !ok {
			m[key] = ch.Icon
		}
	}
	return m
}

// Icon returns the icon of name in slot, or "" when no roster knows it.
func (l IconLookup) Icon(name string, slot int) string {
	key := domain.Normalize(name)
	if key == "" {
		return ""
	}
	first, second := l.strikers, l.specials
	if slot >= domain.MainSlots {
		first, second = l.specials, l.strikers
	}
	if icon, ok := first[key]; ok {
		return icon
	}
	return second[key]
}

// Composition maps all six slots of c to icons.
func (l IconLookup) Composition(c domain.Composition) [domain.CompositionSize]domain.CharacterIcon {
	var out [domain.CompositionSize]domain.CharacterIcon
	for i, name := range c {
		out[i] = domain.CharacterIcon{Name: name, Icon: l.Icon(name, i)}
	}
	return out
}
