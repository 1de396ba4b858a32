package circuit

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cryptoscout/scout/internal/metrics"
)

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	StateClosed   State = iota // Circuit is closed, requests allowed
	StateOpen                  // Circuit is open, requests blocked
	StateHalfOpen              // Circuit is half-open, one trial request allowed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config represents circuit breaker configuration
type Config struct {
	Name             string        // Dependency name, used in logs and snapshots
	FailureThreshold int           // Consecutive failures to open circuit
	RecoveryTimeout  time.Duration // Time to wait before allowing a half-open trial
}

// DefaultConfig returns the breaker settings used for external data sources.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		RecoveryTimeout:  120 * time.Second,
	}
}

// Snapshot is the operator-facing view of a breaker.
type Snapshot struct {
	Name         string `json:"name"`
	State        string `json:"state"`
	FailureCount int    `json:"failure_count"`
}

// Breaker is a record-style circuit breaker guarding one flaky network
// dependency. Callers probe CanExecute before attempting a call and
// report the outcome with RecordSuccess/RecordFailure. The record-style
// contract lets a caller count an HTTP-level success as a breaker
// failure (e.g. a 429 response), which an execute-wrapper API cannot.
type Breaker struct {
	mu              sync.Mutex
	config          Config
	state           State
	failures        int
	lastFailureTime time.Time
	now             func() time.Time
}

// NewBreaker creates a circuit breaker with the specified configuration.
func NewBreaker(config Config) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 120 * time.Second
	}
	b := &Breaker{
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}
	b.publishState()
	return b
}

// publishState mirrors the state onto the provider gauge. Callers hold
// the lock except during construction.
func (b *Breaker) publishState() {
	metrics.SetCircuitState(b.config.Name, float64(b.state))
}

// CanExecute reports whether a call may be attempted. While OPEN it
// returns false until the recovery timeout elapses, then transitions to
// HALF-OPEN and allows exactly one trial call; the next recorded
// outcome decides whether the breaker closes or re-opens.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastFailureTime) > b.config.RecoveryTimeout {
			log.Info().Str("breaker", b.config.Name).Msg("Circuit breaker entering HALF-OPEN state")
			b.state = StateHalfOpen
			b.publishState()
			return true
		}
		return false
	case StateHalfOpen:
		// Trial call already in flight; hold further callers back.
		return false
	default:
		return true
	}
}

// RecordSuccess resets the failure count and closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateClosed {
		log.Info().Str("breaker", b.config.Name).Msg("Circuit breaker CLOSED")
	}
	b.failures = 0
	b.state = StateClosed
	b.publishState()
}

// RecordFailure increments the failure count and opens the circuit once
// the threshold is reached. A failed HALF-OPEN trial re-opens immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailureTime = b.now()

	if b.state == StateHalfOpen || b.failures >= b.config.FailureThreshold {
		if b.state != StateOpen {
			log.Warn().
				Str("breaker", b.config.Name).
				Int("failures", b.failures).
				Msg("Circuit breaker OPENED")
		}
		b.state = StateOpen
		b.publishState()
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// GetSnapshot returns the current state and failure count.
func (b *Breaker) GetSnapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:         b.config.Name,
		State:        b.state.String(),
		FailureCount: b.failures,
	}
}

// SetClock overrides the breaker's time source. Test hook.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}
