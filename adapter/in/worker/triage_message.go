// Package worker consumes the job streams and drives the triage,
// polling, indexing and learning processors through a shared pool.
package worker

import (
	"time"

	"github.com/google/uuid"
)

// Priority levels for job scheduling.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2
)

// JobType represents the type of a job.
type JobType = string

const (
	JobTriageCycle  JobType = "triage.cycle"
	JobMailboxPoll          = "mailbox.poll"
	JobKBIndex              = "kb.index"
	JobLearningMine         = "learning.mine"
	JobCRMSync              = "crm.sync"
)

type Message struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Priority  Priority       `json:"priority"`
	CreatedAt time.Time      `json:"created_at"`
	Retries   int            `json:"retries"`
}

func NewMessage(jobType string, payload map[string]any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   payload,
		Priority:  PriorityNormal,
		CreatedAt: time.Now(),
	}
}

// NewPriorityMessage creates a message with specific priority.
func NewPriorityMessage(jobType string, payload map[string]any, priority Priority) *Message {
	m := NewMessage(jobType, payload)
	m.Priority = priority
	return m
}

// IsPriority checks if the message should bypass the normal queue.
func (m *Message) IsPriority() bool {
	return m.Priority >= PriorityHigh
}

// Job payloads. These mirror the producer-side job structs so either
// side can evolve its envelope independently.

type TriageCyclePayload struct {
	ThreadID  int64 `json:"thread_id"`
	MessageID int64 `json:"message_id,omitempty"`
}

type MailboxPollPayload struct {
	Mailbox string `json:"mailbox"`
}

type KBIndexPayload struct {
	DocID int64 `json:"doc_id"`
}

type LearningMinePayload struct {
	ThreadID int64 `json:"thread_id"`
}

type CRMSyncPayload struct {
	ThreadID int64  `json:"thread_id"`
	Outcome  string `json:"outcome"`
}
