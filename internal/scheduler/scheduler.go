// Package scheduler drives the scan loop on a fixed interval with a
// single-flight guard: a tick that fires while a scan is still running
// is skipped, not queued.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultInterval = 5 * time.Minute

// RunFunc executes one scan cycle.
type RunFunc func(ctx context.Context) error

// Scheduler ticks at a fixed interval. Stop prevents future ticks; an
// in-flight run is allowed to finish.
type Scheduler struct {
	interval time.Duration
	run      RunFunc

	inFlight atomic.Bool
	skipped  atomic.Int64

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func New(interval time.Duration, run RunFunc) *Scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Scheduler{
		interval: interval,
		run:      run,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the ticker loop. The first run fires immediately, not
// after the first interval. Start returns right away.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		log.Info().Dur("interval", s.interval).Msg("scheduler: started")
		s.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// tick runs one cycle unless one is already in flight. The run gets a
// context detached from the loop's: stopping the scheduler ends future
// ticks but must not cancel a scan already underway.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		log.Warn().Msg("scheduler: scan still in flight, skipping tick")
		return
	}
	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer s.inFlight.Store(false)
		if err := s.run(runCtx); err != nil {
			log.Error().Err(err).Msg("scheduler: scan cycle failed")
		}
	}()
}

// Skipped reports how many ticks were dropped by the single-flight
// guard.
func (s *Scheduler) Skipped() int64 {
	return s.skipped.Load()
}

// Stop halts future ticks and waits for the loop to exit. It does not
// cancel an in-flight scan.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}
