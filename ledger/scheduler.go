/*
scheduler.go - Periodic balance re-check

PURPOSE:
  Runs RecomputeAll on an interval so cached account balances that drifted
  (manual database edits, interrupted writes on non-transactional stores)
  are repaired even when nobody lists accounts.

DESIGN:
  - One background goroutine, first pass immediately on Start
  - Errors are logged and the next tick retries
  - Stop cancels the running pass and waits for the goroutine

USAGE:
  sched := ledger.NewBalanceScheduler(svc, time.Hour)
  sched.Start(ctx)
  defer sched.Stop()
*/
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCheckInterval is used when NewBalanceScheduler gets a non-positive interval.
const DefaultCheckInterval = time.Hour

// Recomputer is the part of Service the scheduler drives.
type Recomputer interface {
	RecomputeAll(ctx context.Context) (int, error)
}

type BalanceScheduler struct {
	target   Recomputer
	interval time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	runs   int
}

type SchedulerOption func(*BalanceScheduler)

func WithSchedulerLogger(l zerolog.Logger) SchedulerOption {
	return func(s *BalanceScheduler) { s.log = l.With().Str("component", "balance-scheduler").Logger() }
}

func NewBalanceScheduler(target Recomputer, interval time.Duration, opts ...SchedulerOption) *BalanceScheduler {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	s := &BalanceScheduler{target: target, interval: interval, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the loop. Calling Start on a running scheduler is a no-op.
func (s *BalanceScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
	s.log.Info().Dur("interval", s.interval).Msg("started")
}

// Stop halts the loop and waits for an in-flight pass to return.
func (s *BalanceScheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.log.Info().Msg("stopped")
}

// Runs reports how many passes have completed, successful or not.
func (s *BalanceScheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func (s *BalanceScheduler) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.check(ctx)
	for {
		select {
		case <-ticker.C:
			s.check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *BalanceScheduler) check(ctx context.Context) {
	changed, err := s.target.RecomputeAll(ctx)
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error().Err(err).Msg("balance check failed")
		}
		return
	}
	if changed > 0 {
		s.log.Warn().Int("changed", changed).Msg("repaired drifted balances")
	}
}
