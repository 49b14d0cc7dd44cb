package worker

import (
	"testing"
	"time"
)

func TestNewMessageDefaults(t *testing.T) {
	msg := NewMessage(JobTriageCycle, map[string]any{"thread_id": int64(7)})

	if msg.ID == "" {
		t.Fatal("expected generated id")
	}
	if msg.Type != JobTriageCycle {
		t.Errorf("Type = %q, want %q", msg.Type, JobTriageCycle)
	}
	if msg.Priority != PriorityNormal {
		t.Errorf("Priority = %d, want %d", msg.Priority, PriorityNormal)
	}
	if msg.Retries != 0 {
		t.Errorf("Retries = %d, want 0", msg.Retries)
	}
}

func TestIsPriority(t *testing.T) {
	tests := []struct {
		name     string
		priority Priority
		want     bool
	}{
		{"low", PriorityLow, false},
		{"normal", PriorityNormal, false},
		{"high", PriorityHigh, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := NewPriorityMessage(JobMailboxPoll, nil, tt.priority)
			if got := msg.IsPriority(); got != tt.want {
				t.Errorf("IsPriority() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParsePayload(t *testing.T) {
	msg := NewMessage(JobTriageCycle, map[string]any{
		"thread_id":  float64(42),
		"message_id": float64(9),
	})

	payload, err := ParsePayload[TriageCyclePayload](msg)
	if err != nil {
		t.Fatalf("ParsePayload() error = %v", err)
	}
	if payload.ThreadID != 42 {
		t.Errorf("ThreadID = %d, want 42", payload.ThreadID)
	}
	if payload.MessageID != 9 {
		t.Errorf("MessageID = %d, want 9", payload.MessageID)
	}
}

func TestParsePayloadIgnoresUnknownKeys(t *testing.T) {
	msg := NewMessage(JobMailboxPoll, map[string]any{
		"mailbox": "support@example.com",
		"id":      "job-1",
		"queued":  true,
	})

	payload, err := ParsePayload[MailboxPollPayload](msg)
	if err != nil {
		t.Fatalf("ParsePayload() error = %v", err)
	}
	if payload.Mailbox != "support@example.com" {
		t.Errorf("Mailbox = %q, want support@example.com", payload.Mailbox)
	}
}

func TestRateLimiterExhaustion(t *testing.T) {
	limiter := newRateLimiter(3)

	for i := 0; i < 3; i++ {
		if !limiter.allow() {
			t.Fatalf("allow() = false on token %d", i)
		}
	}
	if limiter.allow() {
		t.Error("allow() = true after tokens exhausted")
	}
}

func TestRateLimiterRefill(t *testing.T) {
	limiter := newRateLimiter(1)
	if !limiter.allow() {
		t.Fatal("first allow() = false")
	}
	if limiter.allow() {
		t.Fatal("allow() = true with empty bucket")
	}

	limiter.lastRefill = time.Now().Add(-2 * time.Second)
	if !limiter.allow() {
		t.Error("allow() = false after refill window")
	}
}
