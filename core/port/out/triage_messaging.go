package out

import (
	"context"
	"time"
)

// JobProducer defines the outbound port for the job stream producer.
type JobProducer interface {
	PublishTriage(ctx context.Context, job *TriageJob) error
	PublishPoll(ctx context.Context, job *PollJob) error
	PublishIndex(ctx context.Context, job *IndexJob) error
	PublishLearning(ctx context.Context, job *LearningJob) error
	PublishCRMSync(ctx context.Context, job *CRMSyncJob) error
}

// TriageJob runs one triage cycle over the newest inbound message of a
// thread. A new inbound arriving mid-cycle queues another job instead
// of interrupting the running one.
type TriageJob struct {
	JobID     string    `json:"job_id"`
	ThreadID  int64     `json:"thread_id"`
	MessageID int64     `json:"message_id"`
	Attempt   int       `json:"attempt,omitempty"`
	QueuedAt  time.Time `json:"queued_at"`
}

// PollJob triggers one polling pass over a mailbox.
type PollJob struct {
	JobID    string    `json:"job_id"`
	Mailbox  string    `json:"mailbox"`
	QueuedAt time.Time `json:"queued_at"`
}

// IndexJob embeds the unembedded chunks of a document.
type IndexJob struct {
	JobID    string    `json:"job_id"`
	DocID    int64     `json:"doc_id"`
	QueuedAt time.Time `json:"queued_at"`
}

// LearningJob mines one closed thread into proposals.
type LearningJob struct {
	JobID    string    `json:"job_id"`
	ThreadID int64     `json:"thread_id"`
	QueuedAt time.Time `json:"queued_at"`
}

// CRMSyncJob syncs a stable triage outcome to the CRM.
type CRMSyncJob struct {
	JobID    string    `json:"job_id"`
	ThreadID int64     `json:"thread_id"`
	Outcome  string    `json:"outcome"`
	QueuedAt time.Time `json:"queued_at"`
}
