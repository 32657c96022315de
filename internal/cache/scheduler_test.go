package cache

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

type signalRefresher struct {
	name     string
	lifetime time.Duration
	done     chan struct{}
}

func (r *signalRefresher) Name() string            { return r.name }
func (r *signalRefresher) Lifetime() time.Duration { return r.lifetime }
func (r *signalRefresher) Refresh(ctx context.Context) error {
	r.done <- struct{}{}
	return nil
}

func waitRefresh(t *testing.T, r *signalRefresher) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected %s to refresh", r.name)
	}
}

func TestSchedulerRefreshesEveryLifetime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	roster := &signalRefresher{name: "strikers", lifetime: 6 * time.Hour, done: make(chan struct{}, 4)}
	icons := &signalRefresher{name: "icons", lifetime: 0, done: make(chan struct{}, 4)}

	s := NewScheduler(clock, zerolog.Nop(), roster, icons)
	s.Start()
	defer s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("waiting for ticker: %v", err)
	}

	clock.Advance(6 * time.Hour)
	waitRefresh(t, roster)

	clock.Advance(6 * time.Hour)
	waitRefresh(t, roster)

	select {
	case <-icons.done:
		t.Fatal("expected cache without lifetime not to be scheduled")
	default:
	}
}

func TestSchedulerDrivesTTLCache(t *testing.T) {
	clock := clockwork.NewFakeClock()
	f := &countingFetcher{value: []string{"a"}}
	c := newTestCache(f, clock, time.Hour)

	s := NewScheduler(clock, zerolog.Nop(), c)
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("waiting for ticker: %v", err)
	}
	clock.Advance(time.Hour)

	deadline := time.Now().Add(2 * time.Second)
	for f.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected scheduled refresh to fetch")
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	if _, ok := c.Peek(); !ok {
		t.Fatal("expected scheduled refresh to populate the cache")
	}
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	s := NewScheduler(clockwork.NewFakeClock(), zerolog.Nop())
	s.Stop()
	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
}
