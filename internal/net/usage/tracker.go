package usage

import (
	"sync"
	"time"
)

// Snapshot holds sliding-window counts for operator monitoring.
type Snapshot struct {
	CallsLastHour      int `json:"calls_last_hour"`
	FailuresLastHour   int `json:"failures_last_hour"`
	RateLimitsLastHour int `json:"rate_limits_last_hour"`
}

// Tracker keeps sliding-window counters for external API calls,
// failures and rate-limit hits. It is pure bookkeeping for monitoring;
// gating misbehaving dependencies is the circuit breaker's job.
type Tracker struct {
	mu         sync.Mutex
	window     time.Duration
	calls      []time.Time
	failures   []time.Time
	rateLimits []time.Time
	now        func() time.Time
}

// NewTracker creates a tracker with the given window. A zero window
// defaults to one hour.
func NewTracker(window time.Duration) *Tracker {
	if window <= 0 {
		window = time.Hour
	}
	return &Tracker{
		window: window,
		now:    time.Now,
	}
}

// RecordCall notes an outbound API call.
func (t *Tracker) RecordCall() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, t.now())
	t.evict()
}

// RecordFailure notes a failed API call.
func (t *Tracker) RecordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = append(t.failures, t.now())
	t.evict()
}

// RecordRateLimit notes a 429 response.
func (t *Tracker) RecordRateLimit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rateLimits = append(t.rateLimits, t.now())
	t.evict()
}

// GetSnapshot returns current in-window counts.
func (t *Tracker) GetSnapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evict()
	return Snapshot{
		CallsLastHour:      len(t.calls),
		FailuresLastHour:   len(t.failures),
		RateLimitsLastHour: len(t.rateLimits),
	}
}

// evict drops timestamps older than the window. Caller holds the lock.
func (t *Tracker) evict() {
	cutoff := t.now().Add(-t.window)
	t.calls = trim(t.calls, cutoff)
	t.failures = trim(t.failures, cutoff)
	t.rateLimits = trim(t.rateLimits, cutoff)
}

func trim(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}

// SetClock overrides the tracker's time source. Test hook.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}
