package scan

import (
	"sync"
	"time"
)

// StatusSnapshot is the health-endpoint view of the scan loop.
type StatusSnapshot struct {
	Running       bool      `json:"running"`
	LastScanTime  time.Time `json:"last_scan_time"`
	LastDuration  string    `json:"last_duration"`
	Processed     int       `json:"processed"`
	AIAnalyzed    int       `json:"ai_analyzed"`
	AlertsEmitted int       `json:"alerts_emitted"`
	FailureCount  int       `json:"failure_count"`
	LastError     string    `json:"last_error,omitempty"`
}

// Status tracks scan loop health. A success resets the failure streak;
// failures only increment it.
type Status struct {
	mu            sync.Mutex
	running       bool
	lastScanTime  time.Time
	lastDuration  time.Duration
	processed     int
	aiAnalyzed    int
	alertsEmitted int
	failureCount  int
	lastError     string
}

func NewStatus() *Status {
	return &Status{}
}

func (s *Status) SetRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = running
}

// Success records a completed cycle and clears the failure streak.
func (s *Status) Success(sum Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastScanTime = time.Now().UTC()
	s.lastDuration = sum.Duration
	s.processed = sum.Processed
	s.aiAnalyzed = sum.AIAnalyzed
	s.alertsEmitted = sum.Alerts
	s.failureCount = 0
	s.lastError = ""
}

// Failure records a failed cycle.
func (s *Status) Failure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastScanTime = time.Now().UTC()
	s.failureCount++
	if err != nil {
		s.lastError = err.Error()
	}
}

func (s *Status) FailureCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failureCount
}

func (s *Status) Snapshot() StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatusSnapshot{
		Running:       s.running,
		LastScanTime:  s.lastScanTime,
		LastDuration:  s.lastDuration.String(),
		Processed:     s.processed,
		AIAnalyzed:    s.aiAnalyzed,
		AlertsEmitted: s.alertsEmitted,
		FailureCount:  s.failureCount,
		LastError:     s.lastError,
	}
}
