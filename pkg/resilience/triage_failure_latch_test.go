package resilience

import (
	"errors"
	"testing"
)

func TestFailureLatchOpensAtThreshold(t *testing.T) {
	latch := NewFailureLatch("gmail-poll", 3)

	failing := func() error { return errors.New("boom") }

	for i := 0; i < 3; i++ {
		if !latch.Allow() {
			t.Fatalf("latch open after %d failures, want open only at 3", i)
		}
		latch.Execute(failing)
	}

	if latch.Allow() {
		t.Error("latch should be open after 3 consecutive failures")
	}
	if err := latch.Execute(failing); err != ErrLatchOpen {
		t.Errorf("Execute on open latch = %v, want ErrLatchOpen", err)
	}
}

func TestFailureLatchSuccessResetsCount(t *testing.T) {
	latch := NewFailureLatch("gmail-poll", 3)

	latch.RecordFailure()
	latch.RecordFailure()
	latch.RecordSuccess()
	latch.RecordFailure()
	latch.RecordFailure()

	if !latch.Allow() {
		t.Error("latch opened even though failures were not consecutive")
	}

	latch.RecordFailure()
	if latch.Allow() {
		t.Error("latch should open after 3 consecutive failures")
	}
}

func TestFailureLatchStaysOpenUntilReset(t *testing.T) {
	latch := NewFailureLatch("gmail-poll", 1)
	latch.RecordFailure()

	if latch.Allow() {
		t.Fatal("latch should be open")
	}

	// Success must not close a latched-open switch.
	latch.RecordSuccess()
	if latch.Allow() {
		t.Error("success closed the latch, want manual reset only")
	}

	latch.Reset()
	if !latch.Allow() {
		t.Error("latch should be closed after Reset")
	}
	if got := latch.Stats().Failures; got != 0 {
		t.Errorf("failures after reset = %d, want 0", got)
	}
}

func TestFailureLatchStateChangeCallback(t *testing.T) {
	latch := NewFailureLatch("gmail-poll", 2)

	var events []bool
	latch.OnStateChange(func(name string, open bool) {
		if name != "gmail-poll" {
			t.Errorf("callback name = %q", name)
		}
		events = append(events, open)
	})

	latch.RecordFailure()
	latch.RecordFailure()
	latch.Reset()

	if len(events) != 2 || events[0] != true || events[1] != false {
		t.Errorf("state change events = %v, want [true false]", events)
	}
}
