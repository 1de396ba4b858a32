package usage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracker_Counts(t *testing.T) {
	tracker := NewTracker(time.Hour)

	tracker.RecordCall()
	tracker.RecordCall()
	tracker.RecordFailure()
	tracker.RecordRateLimit()

	snap := tracker.GetSnapshot()
	assert.Equal(t, 2, snap.CallsLastHour)
	assert.Equal(t, 1, snap.FailuresLastHour)
	assert.Equal(t, 1, snap.RateLimitsLastHour)
}

func TestTracker_WindowEviction(t *testing.T) {
	tracker := NewTracker(time.Hour)
	now := time.Now()
	tracker.SetClock(func() time.Time { return now })

	tracker.RecordCall()
	tracker.RecordFailure()

	// Inside the window, entries are retained.
	now = now.Add(30 * time.Minute)
	tracker.RecordCall()
	snap := tracker.GetSnapshot()
	assert.Equal(t, 2, snap.CallsLastHour)
	assert.Equal(t, 1, snap.FailuresLastHour)

	// Past the window, the first batch is evicted lazily.
	now = now.Add(45 * time.Minute)
	snap = tracker.GetSnapshot()
	assert.Equal(t, 1, snap.CallsLastHour)
	assert.Equal(t, 0, snap.FailuresLastHour)

	now = now.Add(time.Hour)
	snap = tracker.GetSnapshot()
	assert.Equal(t, Snapshot{}, snap)
}

func TestTracker_ConcurrentRecording(t *testing.T) {
	tracker := NewTracker(time.Hour)

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				tracker.RecordCall()
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}

	assert.Equal(t, 400, tracker.GetSnapshot().CallsLastHour)
}
