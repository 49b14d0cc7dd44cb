package thread

import (
	"context"
	"testing"
	"time"

	"triage_server/core/domain"
)

const supportMailbox = "support@partshub.example"

func newTestNormalizer() (*Normalizer, *fakeThreadRepo, *fakeMessageRepo, *fakeEventRepo) {
	threads := newFakeThreadRepo()
	messages := newFakeMessageRepo()
	events := newFakeEventRepo()
	machine := NewStateMachine(threads, events)
	n := NewNormalizer(threads, messages, events, &fakeRawRepo{}, machine, supportMailbox)
	return n, threads, messages, events
}

func inbound(providerID, providerThread string) *domain.InboundMessage {
	return &domain.InboundMessage{
		ProviderID:     providerID,
		ProviderThread: providerThread,
		Channel:        domain.ChannelEmail,
		Sender:         "Jamie Doe <jamie@example.com>",
		Recipient:      supportMailbox,
		Subject:        "Where is my order #4093",
		Body:           "Hi, I ordered brake pads last week and have no tracking yet.",
		SentAt:         time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestIngestIdempotent(t *testing.T) {
	n, _, messages, _ := newTestNormalizer()
	ctx := context.Background()

	first, err := n.Ingest(ctx, inbound("prov-1", "gt-900"))
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if first.Duplicate {
		t.Fatal("first ingest flagged as duplicate")
	}

	second, err := n.Ingest(ctx, inbound("prov-1", "gt-900"))
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if !second.Duplicate {
		t.Error("re-delivery not absorbed as duplicate")
	}
	if second.Message.ID != first.Message.ID {
		t.Errorf("duplicate produced a new row: %d vs %d", second.Message.ID, first.Message.ID)
	}
	if len(messages.messages) != 1 {
		t.Errorf("message rows = %d, want 1", len(messages.messages))
	}
}

func TestIngestWithoutRawStore(t *testing.T) {
	threads := newFakeThreadRepo()
	messages := newFakeMessageRepo()
	events := newFakeEventRepo()
	n := NewNormalizer(threads, messages, events, nil, NewStateMachine(threads, events), supportMailbox)

	msg := inbound("prov-raw-1", "gt-901")
	msg.HTMLBody = "<p>Hi, I ordered brake pads last week.</p>"
	msg.Attachments = []*domain.AttachmentRef{{ExternalID: "att-1", Filename: "receipt.pdf", MimeType: "application/pdf"}}

	result, err := n.Ingest(context.Background(), msg)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.Duplicate {
		t.Fatal("first ingest flagged as duplicate")
	}
	if len(result.Message.Attachments) != 1 {
		t.Errorf("attachment refs = %d, want 1", len(result.Message.Attachments))
	}
	if len(messages.messages) != 1 {
		t.Errorf("message rows = %d, want 1", len(messages.messages))
	}
}

func TestIngestFingerprintFallback(t *testing.T) {
	n, _, messages, _ := newTestNormalizer()
	ctx := context.Background()

	msg := inbound("", "gt-901")
	if _, err := n.Ingest(ctx, msg); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	res, err := n.Ingest(ctx, inbound("", "gt-901"))
	if err != nil {
		t.Fatalf("re-ingest: %v", err)
	}
	if !res.Duplicate {
		t.Error("identical content without provider id not deduplicated")
	}
	if len(messages.messages) != 1 {
		t.Errorf("message rows = %d, want 1", len(messages.messages))
	}
}

func TestIngestDirectionInference(t *testing.T) {
	n, _, _, _ := newTestNormalizer()
	ctx := context.Background()

	in, err := n.Ingest(ctx, inbound("prov-2", "gt-902"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if in.Message.Direction != domain.DirectionInbound {
		t.Errorf("customer message direction = %s, want inbound", in.Message.Direction)
	}

	reply := inbound("prov-3", "gt-902")
	reply.Sender = "Support Team <support+ticket@partshub.example>"
	reply.Recipient = "jamie@example.com"
	res, err := n.Ingest(ctx, reply)
	if err != nil {
		t.Fatalf("ingest reply: %v", err)
	}
	if res.Message.Direction != domain.DirectionOutbound {
		t.Errorf("mailbox message direction = %s, want outbound", res.Message.Direction)
	}
}

func TestIngestTouchesThread(t *testing.T) {
	n, threads, _, _ := newTestNormalizer()
	ctx := context.Background()

	res, err := n.Ingest(ctx, inbound("prov-4", "gt-903"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	before := threads.threads[res.Thread.ID].UpdatedAt

	time.Sleep(5 * time.Millisecond)
	next := inbound("prov-5", "gt-903")
	if _, err := n.Ingest(ctx, next); err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	after := threads.threads[res.Thread.ID].UpdatedAt
	if !after.After(before) {
		t.Error("thread updated_at not advanced by ingest")
	}
}

func TestIngestReopensResolvedThread(t *testing.T) {
	n, threads, _, events := newTestNormalizer()
	ctx := context.Background()

	res, err := n.Ingest(ctx, inbound("prov-6", "gt-904"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	threads.threads[res.Thread.ID].State = domain.ThreadStateResolved

	followUp := inbound("prov-7", "gt-904")
	followUp.Body = "Actually the part arrived damaged."
	reopened, err := n.Ingest(ctx, followUp)
	if err != nil {
		t.Fatalf("follow-up ingest: %v", err)
	}
	if !reopened.Reopened {
		t.Error("resolved thread not reported as reopened")
	}
	if threads.threads[res.Thread.ID].State != domain.ThreadStateInProgress {
		t.Errorf("reopened state = %s, want IN_PROGRESS", threads.threads[res.Thread.ID].State)
	}
	if events.countByType(domain.EventStateTransition) == 0 {
		t.Error("reopen transition not audited")
	}
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"jamie@example.com", "jamie@example.com"},
		{"Jamie Doe <Jamie@Example.com>", "jamie@example.com"},
		{"jamie+orders@example.com", "jamie@example.com"},
		{"  Vendor Bot <bounce+xyz@mailer.vendor.io>  ", "bounce@mailer.vendor.io"},
		{"no-at-sign", "no-at-sign"},
	}

	for _, tt := range tests {
		if got := NormalizeAddress(tt.in); got != tt.want {
			t.Errorf("NormalizeAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
