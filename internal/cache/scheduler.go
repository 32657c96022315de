package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Refresher is a cache the scheduler can refresh on its own lifetime.
type Refresher interface {
	Name() string
	Lifetime() time.Duration
	Refresh(ctx context.Context) error
}

// Scheduler runs one ticker per registered cache and forces a refresh every
// lifetime, independent of read traffic. Caches without a lifetime are
// skipped.
type Scheduler struct {
	clock  clockwork.Clock
	logger zerolog.Logger
	jobs   []Refresher

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewScheduler(clock clockwork.Clock, logger zerolog.Logger, jobs ...Refresher) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{clock: clock, logger: logger, jobs: jobs}
}

// Start launches the background loops. Calling Start on a running scheduler
// does nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	for _, job := range s.jobs {
		if job.Lifetime() <= 0 {
			s.logger.Debug().Str("cache", job.Name()).Msg("cache has no lifetime, not scheduling")
			continue
		}
		s.wg.Add(1)
		go s.run(ctx, job)
	}
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("refresh scheduler started")
}

// Stop cancels every loop and waits for in-progress refreshes to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("refresh scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, job Refresher) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(job.Lifetime())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := job.Refresh(ctx); err != nil {
				s.logger.Warn().Err(err).Str("cache", job.Name()).Msg("scheduled refresh failed")
				continue
			}
			s.logger.Debug().Str("cache", job.Name()).Msg("scheduled refresh completed")
		}
	}
}
