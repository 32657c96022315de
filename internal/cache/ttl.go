// Package cache provides a generic read-through cache with a fixed lifetime,
// stale-on-error fallback and a scheduler that refreshes caches in the
// background.
//
// A TTLCache never runs more than one fetch at a time: concurrent readers
// that observe staleness share the in-flight refresh.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"battlelog-tracker/internal/metrics"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Fetcher loads a fresh value from the backing source.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Entry is a cached value and the time it was fetched.
type Entry[T any] struct {
	Data          T
	LastRefreshed time.Time
}

// Stale reports whether the entry is due for refresh. A lifetime <= 0 never
// expires.
func (e Entry[T]) Stale(now time.Time, lifetime time.Duration) bool {
	if lifetime <= 0 {
		return false
	}
	return now.Sub(e.LastRefreshed) >= lifetime
}

type Options struct {
	// Lifetime <= 0 keeps data until Invalidate or ForceRefresh.
	Lifetime time.Duration
	// Timeout bounds a single fetch. Zero means no bound beyond the caller's.
	Timeout time.Duration
	Clock   clockwork.Clock
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

type TTLCache[T any] struct {
	name     string
	fetch    Fetcher[T]
	lifetime time.Duration
	timeout  time.Duration
	clock    clockwork.Clock
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	flight singleflight.Group

	mu          sync.RWMutex
	entry       *Entry[T]
	invalidated bool
}

func New[T any](name string, fetch Fetcher[T], opts Options) *TTLCache[T] {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TTLCache[T]{
		name:     name,
		fetch:    fetch,
		lifetime: opts.Lifetime,
		timeout:  opts.Timeout,
		clock:    clock,
		logger:   opts.Logger.With().Str("cache", name).Logger(),
		metrics:  opts.Metrics,
	}
}

func (c *TTLCache[T]) Name() string {
	return c.name
}

func (c *TTLCache[T]) Lifetime() time.Duration {
	return c.lifetime
}

// Get returns cached data, refreshing it first when missing or stale. A
// failed refresh falls back to the previous data; the error is only returned
// when nothing was ever fetched.
func (c *TTLCache[T]) Get(ctx context.Context) (T, error) {
	if e, ok := c.fresh(); ok {
		return e.Data, nil
	}
	return c.refresh(ctx, false)
}

// ForceRefresh fetches regardless of age, with the same fallback as Get.
func (c *TTLCache[T]) ForceRefresh(ctx context.Context) (T, error) {
	return c.refresh(ctx, true)
}

// Refresh is ForceRefresh without the data, for the scheduler.
func (c *TTLCache[T]) Refresh(ctx context.Context) error {
	_, err := c.ForceRefresh(ctx)
	return err
}

// Peek returns the current entry without fetching.
func (c *TTLCache[T]) Peek() (Entry[T], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil {
		return Entry[T]{}, false
	}
	return *c.entry, true
}

// Invalidate makes the next Get refresh. The current data is kept as the
// stale fallback.
func (c *TTLCache[T]) Invalidate() {
	c.mu.Lock()
	c.invalidated = true
	c.mu.Unlock()
}

func (c *TTLCache[T]) fresh() (Entry[T], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil || c.invalidated || c.entry.Stale(c.clock.Now(), c.lifetime) {
		return Entry[T]{}, false
	}
	return *c.entry, true
}

// refreshResult boxes T so a nil interface T survives the trip through
// singleflight's any.
type refreshResult[T any] struct {
	data T
}

func (c *TTLCache[T]) refresh(ctx context.Context, force bool) (T, error) {
	ch := c.flight.DoChan(c.name, func() (any, error) {
		// a flight that finished just before this one started may have
		// already refreshed the entry
		if !force {
			if e, ok := c.fresh(); ok {
				return refreshResult[T]{data: e.Data}, nil
			}
		}
		return c.load(context.WithoutCancel(ctx))
	})

	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(refreshResult[T]).data, nil
	case <-ctx.Done():
		if e, ok := c.Peek(); ok {
			c.logger.Warn().Err(ctx.Err()).Msg("caller gave up waiting for refresh, serving stale data")
			c.metrics.CacheStaleServed(c.name)
			return e.Data, nil
		}
		return zero, ctx.Err()
	}
}

func (c *TTLCache[T]) load(ctx context.Context) (refreshResult[T], error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := c.clock.Now()
	data, err := c.fetch(ctx)
	c.metrics.CacheRefresh(c.name, err)

	if err != nil {
		prev, ok := c.Peek()
		if !ok {
			c.logger.Error().Err(err).Msg("refresh failed with no cached data")
			return refreshResult[T]{}, fmt.Errorf("failed to refresh %s: %w", c.name, err)
		}
		c.logger.Warn().
			Err(err).
			Time("last_refreshed", prev.LastRefreshed).
			Msg("refresh failed, serving stale data")
		c.metrics.CacheStaleServed(c.name)
		return refreshResult[T]{data: prev.Data}, nil
	}

	now := c.clock.Now()
	c.mu.Lock()
	c.entry = &Entry[T]{Data: data, LastRefreshed: now}
	c.invalidated = false
	c.mu.Unlock()

	c.logger.Debug().Dur("duration", now.Sub(start)).Msg("cache refreshed")
	return refreshResult[T]{data: data}, nil
}
