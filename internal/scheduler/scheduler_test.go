package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunsImmediatelyAndOnTicks(t *testing.T) {
	var runs atomic.Int64
	s := New(20*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool { return runs.Load() >= 3 },
		time.Second, 5*time.Millisecond)
}

func TestScheduler_SkipsTickWhileScanInFlight(t *testing.T) {
	var runs atomic.Int64
	release := make(chan struct{})
	s := New(15*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		<-release
		return nil
	})
	s.Start(context.Background())

	require.Eventually(t, func() bool { return s.Skipped() >= 2 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), runs.Load(), "overlapping ticks must not start new scans")

	close(release)
	require.Eventually(t, func() bool { return runs.Load() >= 2 },
		time.Second, 5*time.Millisecond)
	s.Stop()
}

func TestScheduler_StopHaltsTicks(t *testing.T) {
	var runs atomic.Int64
	s := New(10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	s.Start(context.Background())
	require.Eventually(t, func() bool { return runs.Load() >= 1 },
		time.Second, 5*time.Millisecond)

	s.Stop()
	settled := runs.Load()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, runs.Load(), settled+1, "no new ticks after stop")
}

func TestScheduler_CancelDoesNotAbortInFlightScan(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	interrupted := make(chan error, 1)
	s := New(time.Hour, func(runCtx context.Context) error {
		close(started)
		select {
		case <-runCtx.Done():
			interrupted <- runCtx.Err()
		case <-time.After(100 * time.Millisecond):
			interrupted <- nil
		}
		return nil
	})
	s.Start(ctx)

	<-started
	cancel()
	s.Stop()

	require.NoError(t, <-interrupted, "shutdown must let the running scan finish")
}

func TestScheduler_ContextCancelStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(10*time.Millisecond, func(ctx context.Context) error { return nil })
	s.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler loop did not exit on context cancel")
	}
}
