package circuit

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cryptoscout/scout/internal/metrics"
)

func testConfig() Config {
	return Config{
		Name:             "test",
		FailureThreshold: 3,
		RecoveryTimeout:  100 * time.Millisecond,
	}
}

func TestBreaker_ClosedState(t *testing.T) {
	breaker := NewBreaker(testConfig())

	if breaker.State() != StateClosed {
		t.Errorf("Breaker should start in closed state, got %s", breaker.State())
	}
	if !breaker.CanExecute() {
		t.Error("Closed breaker should allow execution")
	}

	breaker.RecordSuccess()
	if breaker.State() != StateClosed {
		t.Errorf("Breaker should remain closed after success, got %s", breaker.State())
	}
}

func TestBreaker_OpenOnFailures(t *testing.T) {
	breaker := NewBreaker(testConfig())

	// Below threshold the breaker stays closed.
	breaker.RecordFailure()
	breaker.RecordFailure()
	if breaker.State() != StateClosed {
		t.Errorf("Breaker should stay closed below threshold, got %s", breaker.State())
	}

	breaker.RecordFailure()
	if breaker.State() != StateOpen {
		t.Errorf("Breaker should be open after threshold failures, got %s", breaker.State())
	}
	if breaker.CanExecute() {
		t.Error("Open breaker should block execution")
	}
	if got := breaker.GetSnapshot().FailureCount; got != 3 {
		t.Errorf("Snapshot failure count = %d, want 3", got)
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	breaker := NewBreaker(testConfig())

	breaker.RecordFailure()
	breaker.RecordFailure()
	breaker.RecordSuccess()

	if got := breaker.GetSnapshot().FailureCount; got != 0 {
		t.Errorf("Failure count after success = %d, want 0", got)
	}

	// The streak restarts; two more failures must not open the circuit.
	breaker.RecordFailure()
	breaker.RecordFailure()
	if breaker.State() != StateClosed {
		t.Errorf("Breaker should be closed after reset streak, got %s", breaker.State())
	}
}

func TestBreaker_HalfOpenSingleTrial(t *testing.T) {
	breaker := NewBreaker(testConfig())
	now := time.Now()
	breaker.SetClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		breaker.RecordFailure()
	}
	if breaker.State() != StateOpen {
		t.Fatal("Breaker should be open")
	}
	if breaker.CanExecute() {
		t.Error("Breaker should block before recovery timeout")
	}

	// Advance past the recovery timeout: exactly one trial is allowed.
	now = now.Add(150 * time.Millisecond)
	if !breaker.CanExecute() {
		t.Error("Breaker should allow one trial after recovery timeout")
	}
	if breaker.State() != StateHalfOpen {
		t.Errorf("Breaker should be half-open, got %s", breaker.State())
	}
	if breaker.CanExecute() {
		t.Error("Half-open breaker should allow only a single trial")
	}
}

func TestBreaker_PublishesStateGauge(t *testing.T) {
	cfg := testConfig()
	cfg.Name = "gauge-test"
	breaker := NewBreaker(cfg)
	now := time.Now()
	breaker.SetClock(func() time.Time { return now })

	gauge := func() float64 {
		return testutil.ToFloat64(metrics.ProviderCircuitState.WithLabelValues("gauge-test"))
	}
	if got := gauge(); got != float64(StateClosed) {
		t.Errorf("New breaker gauge = %v, want %v", got, float64(StateClosed))
	}

	for i := 0; i < 3; i++ {
		breaker.RecordFailure()
	}
	if got := gauge(); got != float64(StateOpen) {
		t.Errorf("Open breaker gauge = %v, want %v", got, float64(StateOpen))
	}

	now = now.Add(150 * time.Millisecond)
	breaker.CanExecute()
	if got := gauge(); got != float64(StateHalfOpen) {
		t.Errorf("Half-open breaker gauge = %v, want %v", got, float64(StateHalfOpen))
	}

	breaker.RecordSuccess()
	if got := gauge(); got != float64(StateClosed) {
		t.Errorf("Closed breaker gauge = %v, want %v", got, float64(StateClosed))
	}
}

func TestBreaker_HalfOpenOutcomes(t *testing.T) {
	t.Run("trial success closes", func(t *testing.T) {
		breaker := NewBreaker(testConfig())
		now := time.Now()
		breaker.SetClock(func() time.Time { return now })

		for i := 0; i < 3; i++ {
			breaker.RecordFailure()
		}
		now = now.Add(150 * time.Millisecond)
		if !breaker.CanExecute() {
			t.Fatal("Trial should be allowed")
		}

		breaker.RecordSuccess()
		if breaker.State() != StateClosed {
			t.Errorf("Breaker should close after trial success, got %s", breaker.State())
		}
		if !breaker.CanExecute() {
			t.Error("Closed breaker should allow execution")
		}
	})

	t.Run("trial failure reopens", func(t *testing.T) {
		breaker := NewBreaker(testConfig())
		now := time.Now()
		breaker.SetClock(func() time.Time { return now })

		for i := 0; i < 3; i++ {
			breaker.RecordFailure()
		}
		now = now.Add(150 * time.Millisecond)
		if !breaker.CanExecute() {
			t.Fatal("Trial should be allowed")
		}

		breaker.RecordFailure()
		if breaker.State() != StateOpen {
			t.Errorf("Breaker should reopen after trial failure, got %s", breaker.State())
		}
		if breaker.CanExecute() {
			t.Error("Reopened breaker should block until the next recovery window")
		}
	})
}
