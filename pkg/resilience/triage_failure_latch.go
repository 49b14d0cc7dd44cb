package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrLatchOpen is returned when the latch has tripped and work must not run.
var ErrLatchOpen = errors.New("failure latch is open")

// FailureLatch counts consecutive failures from one external dependency and
// latches open once the threshold is reached. Unlike a circuit breaker it
// never half-opens on its own: automatic triggering stays suspended until an
// operator calls Reset. Used by the polling scheduler so a failing mailbox
// cannot cause a retry storm.
type FailureLatch struct {
	name      string
	threshold int

	mu           sync.Mutex
	failures     int
	open         bool
	lastFailure  time.Time
	onStateChange func(name string, open bool)
}

// NewFailureLatch creates a latch that opens after threshold consecutive
// failures (default 5).
func NewFailureLatch(name string, threshold int) *FailureLatch {
	if threshold <= 0 {
		threshold = 5
	}
	return &FailureLatch{name: name, threshold: threshold}
}

// OnStateChange sets a callback invoked when the latch opens or resets.
func (l *FailureLatch) OnStateChange(fn func(name string, open bool)) {
	l.mu.Lock()
	l.onStateChange = fn
	l.mu.Unlock()
}

// Allow reports whether work may run.
func (l *FailureLatch) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.open
}

// Execute runs fn unless the latch is open, recording the outcome.
func (l *FailureLatch) Execute(fn func() error) error {
	if !l.Allow() {
		return ErrLatchOpen
	}
	err := fn()
	if err != nil {
		l.RecordFailure()
	} else {
		l.RecordSuccess()
	}
	return err
}

// RecordFailure increments the consecutive failure count, opening the latch
// at the threshold.
func (l *FailureLatch) RecordFailure() {
	l.mu.Lock()
	l.failures++
	l.lastFailure = time.Now()
	tripped := !l.open && l.failures >= l.threshold
	if tripped {
		l.open = true
	}
	cb := l.onStateChange
	l.mu.Unlock()

	if tripped && cb != nil {
		cb(l.name, true)
	}
}

// RecordSuccess clears the consecutive failure count. An open latch stays
// open: only Reset closes it.
func (l *FailureLatch) RecordSuccess() {
	l.mu.Lock()
	if !l.open {
		l.failures = 0
	}
	l.mu.Unlock()
}

// Reset closes the latch and clears counters. Operator action.
func (l *FailureLatch) Reset() {
	l.mu.Lock()
	wasOpen := l.open
	l.open = false
	l.failures = 0
	cb := l.onStateChange
	l.mu.Unlock()

	if wasOpen && cb != nil {
		cb(l.name, false)
	}
}

// LatchStats is a point-in-time snapshot for admin surfaces.
type LatchStats struct {
	Name        string    `json:"name"`
	Open        bool      `json:"open"`
	Failures    int       `json:"failures"`
	Threshold   int       `json:"threshold"`
	LastFailure time.Time `json:"last_failure,omitempty"`
}

// Stats returns current latch statistics.
func (l *FailureLatch) Stats() LatchStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LatchStats{
		Name:        l.name,
		Open:        l.open,
		Failures:    l.failures,
		Threshold:   l.threshold,
		LastFailure: l.lastFailure,
	}
}
