package triage

import (
	"context"
	"errors"
	"testing"
	"time"

	"triage_server/core/domain"
	"triage_server/core/service/thread"
	"triage_server/pkg/apperr"
)

func newTestPipeline(t *domain.Thread, msg *domain.Message, llm *fakeLLM, verifier *fakeVerifier, retriever *fakeRetriever, settings *domain.PipelineSettings) (*Pipeline, *fakeThreadRepo, *fakeMessageRepo, *fakeEventRepo, *fakeDraftRepo, *fakeProvider, *fakeLocker) {
	threads := newFakeThreadRepo(t)
	messages := newFakeMessageRepo(msg)
	events := &fakeEventRepo{}
	drafts := newFakeDraftRepo()
	provider := &fakeProvider{}
	locker := newFakeLocker()

	p := NewPipeline(PipelineDeps{
		Threads:   threads,
		Messages:  messages,
		Events:    events,
		Drafts:    drafts,
		Settings:  &fakeSettingsRepo{settings: settings},
		LLM:       llm,
		Retriever: retriever,
		Verifier:  verifier,
		Machine:   thread.NewStateMachine(threads, events),
		Provider:  provider,
		Locker:    locker,
	})
	return p, threads, messages, events, drafts, provider, locker
}

func inboundMessage(threadID int64) *domain.Message {
	return &domain.Message{
		ID:        1,
		ThreadID:  threadID,
		Direction: domain.DirectionInbound,
		Channel:   domain.ChannelEmail,
		Sender:    "kim@example.com",
		Subject:   "Where is order #4093",
		Body:      "It has been a week, any update?",
		SentAt:    time.Now().Add(-time.Minute),
	}
}

func TestRunCycleAutosendsEligibleDraft(t *testing.T) {
	th := &domain.Thread{
		ID:            10,
		State:         domain.ThreadStateNew,
		Subject:       "Where is order #4093",
		CustomerEmail: "kim@example.com",
		Mailbox:       "support@shop.example",
	}
	settings := gateSettings()
	llm := &fakeLLM{
		intent:    domain.IntentResult{Intent: domain.IntentOrderStatus, Confidence: 0.92},
		draftText: "Your order 4093 shipped yesterday, tracking TRK99.",
		citedIDs:  []int64{1},
	}
	verifier := &fakeVerifier{ctx: &domain.CustomerContext{Verified: true, CustomerID: "cust-1", OrderNumber: "4093"}}
	retriever := &fakeRetriever{chunks: groundedChunks(0.9)}

	p, threads, messages, events, _, provider, _ := newTestPipeline(th, inboundMessage(10), llm, verifier, retriever, settings)

	result, err := p.RunCycle(context.Background(), 10, 1)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if !result.Sent {
		t.Fatalf("expected autosend, verdict %s violations %v", result.Draft.Verdict, result.Draft.Violations)
	}
	if result.Draft.Verdict != domain.VerdictEligibleForAutosend {
		t.Fatalf("verdict = %s", result.Draft.Verdict)
	}
	if th.State != domain.ThreadStateInProgress {
		t.Fatalf("thread state = %s, want IN_PROGRESS", th.State)
	}
	if len(provider.sent) != 1 {
		t.Fatalf("provider sends = %d", len(provider.sent))
	}
	if provider.sent[0].Subject != "Re: Where is order #4093" {
		t.Fatalf("reply subject = %q", provider.sent[0].Subject)
	}
	if got := threads.intents[10]; got != domain.IntentOrderStatus {
		t.Fatalf("persisted intent = %s", got)
	}
	if len(messages.outbound(10)) != 1 {
		t.Fatal("outbound message not recorded")
	}
	if events.countByType(domain.EventDraftGenerated) != 1 || events.countByType(domain.EventDraftSent) != 1 {
		t.Fatal("missing draft events")
	}
	if len(result.Draft.Citations) != 1 || result.Draft.Citations[0].ChunkID != 1 {
		t.Fatalf("citations = %+v", result.Draft.Citations)
	}
}

func TestRunCycleUnknownIntentEscalates(t *testing.T) {
	th := &domain.Thread{ID: 11, State: domain.ThreadStateNew, CustomerEmail: "kim@example.com", Mailbox: "support@shop.example"}
	llm := &fakeLLM{
		intent:    domain.IntentResult{Intent: domain.IntentUnknown, Confidence: 0},
		draftText: "Thanks for reaching out, a teammate will follow up.",
	}
	verifier := &fakeVerifier{ctx: &domain.CustomerContext{}}
	retriever := &fakeRetriever{}

	msg := inboundMessage(11)
	p, _, _, events, _, provider, _ := newTestPipeline(th, msg, llm, verifier, retriever, gateSettings())

	result, err := p.RunCycle(context.Background(), 11, 1)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.Sent {
		t.Fatal("unknown intent must not autosend")
	}
	if result.Draft.Verdict != domain.VerdictNeedsReview {
		t.Fatalf("verdict = %s", result.Draft.Verdict)
	}
	if !containsString(result.Draft.Violations, ViolationIntentUnknown) {
		t.Fatalf("violations = %v", result.Draft.Violations)
	}
	if !result.Escalated || th.State != domain.ThreadStateEscalated {
		t.Fatalf("expected escalation, state = %s", th.State)
	}
	if len(provider.sent) != 0 {
		t.Fatal("no mail should be sent")
	}
	if events.countByType(domain.EventStateTransition) == 0 {
		t.Fatal("escalation transition not audited")
	}
}

func TestRunCycleNeverAutosendsUnverifiedOrderIntent(t *testing.T) {
	th := &domain.Thread{ID: 12, State: domain.ThreadStateNew, CustomerEmail: "kim@example.com", Mailbox: "support@shop.example"}
	llm := &fakeLLM{
		intent:    domain.IntentResult{Intent: domain.IntentRefundRequest, Confidence: 0.99},
		draftText: "Your refund will arrive in 3 days.",
	}
	verifier := &fakeVerifier{ctx: &domain.CustomerContext{Verified: false}}
	retriever := &fakeRetriever{chunks: groundedChunks(0.95)}

	p, _, _, _, _, provider, _ := newTestPipeline(th, inboundMessage(12), llm, verifier, retriever, gateSettings())

	result, err := p.RunCycle(context.Background(), 12, 1)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.Sent || len(provider.sent) != 0 {
		t.Fatal("unverified customer must never receive an autosent reply")
	}
	if !containsString(result.Draft.Violations, ViolationUnverifiedCustomer) {
		t.Fatalf("violations = %v", result.Draft.Violations)
	}
}

func TestRunCycleHighStakesWithoutGrounding(t *testing.T) {
	th := &domain.Thread{ID: 13, State: domain.ThreadStateNew, CustomerEmail: "kim@example.com", Mailbox: "support@shop.example"}
	llm := &fakeLLM{
		intent:    domain.IntentResult{Intent: domain.IntentWarrantyClaim, Confidence: 0.9},
		draftText: "Your warranty covers this.",
	}
	verifier := &fakeVerifier{ctx: &domain.CustomerContext{Verified: true}}
	retriever := &fakeRetriever{chunks: nil}

	p, _, _, _, _, _, _ := newTestPipeline(th, inboundMessage(13), llm, verifier, retriever, gateSettings())

	result, err := p.RunCycle(context.Background(), 13, 1)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if !result.Draft.NoGrounding {
		t.Fatal("NoGrounding flag not set")
	}
	if result.Sent {
		t.Fatal("ungrounded high-stakes draft must not autosend")
	}
}

func TestRunCycleSkipsHumanHandledThread(t *testing.T) {
	th := &domain.Thread{ID: 14, State: domain.ThreadStateHumanHandling, CustomerEmail: "kim@example.com"}
	p, _, _, _, drafts, _, _ := newTestPipeline(th, inboundMessage(14), &fakeLLM{}, &fakeVerifier{ctx: &domain.CustomerContext{}}, &fakeRetriever{}, gateSettings())

	result, err := p.RunCycle(context.Background(), 14, 1)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if !result.Skipped {
		t.Fatal("expected skip")
	}
	if len(drafts.drafts) != 0 {
		t.Fatal("no draft should be generated")
	}
}

func TestRunCycleRejectsConcurrentCycle(t *testing.T) {
	th := &domain.Thread{ID: 15, State: domain.ThreadStateNew, CustomerEmail: "kim@example.com", Mailbox: "support@shop.example"}
	p, _, _, _, _, _, locker := newTestPipeline(th, inboundMessage(15), &fakeLLM{}, &fakeVerifier{ctx: &domain.CustomerContext{}}, &fakeRetriever{}, gateSettings())

	if _, err := locker.SetNX(context.Background(), "triage:cycle:15", "1", time.Minute); err != nil {
		t.Fatal(err)
	}
	_, err := p.RunCycle(context.Background(), 15, 1)
	appErr := apperr.AsAppError(err)
	if appErr == nil || appErr.Code != apperr.CodeCycleInFlight {
		t.Fatalf("expected cycle in flight error, got %v", err)
	}
}

func TestRunCycleReleasesLock(t *testing.T) {
	th := &domain.Thread{ID: 16, State: domain.ThreadStateNew, CustomerEmail: "kim@example.com", Mailbox: "support@shop.example"}
	llm := &fakeLLM{
		intent:    domain.IntentResult{Intent: domain.IntentProductQuestion, Confidence: 0.85},
		draftText: "The part fits 2019 and newer models.",
	}
	p, _, _, _, _, _, locker := newTestPipeline(th, inboundMessage(16), llm, &fakeVerifier{ctx: &domain.CustomerContext{}}, &fakeRetriever{chunks: groundedChunks(0.8)}, gateSettings())

	if _, err := p.RunCycle(context.Background(), 16, 1); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if locker.held["triage:cycle:16"] {
		t.Fatal("lock not released")
	}
}

func TestRunCycleGenerateFailureRecordsEvent(t *testing.T) {
	th := &domain.Thread{ID: 17, State: domain.ThreadStateNew, CustomerEmail: "kim@example.com", Mailbox: "support@shop.example"}
	llm := &fakeLLM{
		intent:      domain.IntentResult{Intent: domain.IntentOrderStatus, Confidence: 0.9},
		generateErr: errors.New("provider timeout"),
	}
	p, _, _, events, _, _, _ := newTestPipeline(th, inboundMessage(17), llm, &fakeVerifier{ctx: &domain.CustomerContext{Verified: true}}, &fakeRetriever{}, gateSettings())

	_, err := p.RunCycle(context.Background(), 17, 1)
	if err == nil {
		t.Fatal("expected error")
	}
	if events.countByType(domain.EventTriageCycleFailed) != 1 {
		t.Fatal("failure not audited")
	}
	if th.State != domain.ThreadStateNew {
		t.Fatalf("thread state must be untouched, got %s", th.State)
	}
}

func TestRunCycleWithoutLLMConfigured(t *testing.T) {
	p := NewPipeline(PipelineDeps{LLM: nil, Locker: newFakeLocker()})

	_, err := p.RunCycle(context.Background(), 30, 1)
	appErr := apperr.AsAppError(err)
	if appErr == nil || appErr.Code != apperr.CodeConfigError {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestRunCycleClassifyFailureDegradesToUnknown(t *testing.T) {
	th := &domain.Thread{ID: 31, State: domain.ThreadStateNew, CustomerEmail: "kim@example.com", Mailbox: "support@shop.example"}
	llm := &fakeLLM{
		intent:      domain.IntentResult{Intent: domain.IntentUnknown, Confidence: 0},
		classifyErr: errors.New("provider timeout"),
		draftText:   "Thanks for reaching out, a teammate will follow up.",
	}
	p, _, _, _, _, provider, _ := newTestPipeline(th, inboundMessage(31), llm, &fakeVerifier{ctx: &domain.CustomerContext{}}, &fakeRetriever{}, gateSettings())

	result, err := p.RunCycle(context.Background(), 31, 1)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.Draft.Intent != domain.IntentUnknown {
		t.Fatalf("intent = %s, want UNKNOWN", result.Draft.Intent)
	}
	if result.Sent || len(provider.sent) != 0 {
		t.Fatal("degraded classification must not autosend")
	}
	if !result.Escalated {
		t.Fatal("expected escalation")
	}
}

func TestRunCycleScopesRetrievalByExtractedTags(t *testing.T) {
	th := &domain.Thread{ID: 32, State: domain.ThreadStateNew, CustomerEmail: "kim@example.com", Mailbox: "support@shop.example"}
	llm := &fakeLLM{
		intent: domain.IntentResult{
			Intent:      domain.IntentProductQuestion,
			Confidence:  0.9,
			ProductTags: []string{"brake-pads"},
			VehicleTags: []string{"honda-civic"},
		},
		draftText: "Those pads fit the 2016-2021 Civic.",
	}
	retriever := &fakeRetriever{chunks: groundedChunks(0.85)}
	p, _, _, _, _, _, _ := newTestPipeline(th, inboundMessage(32), llm, &fakeVerifier{ctx: &domain.CustomerContext{Verified: true}}, retriever, gateSettings())

	if _, err := p.RunCycle(context.Background(), 32, 1); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if retriever.lastQuery == nil {
		t.Fatal("retriever not called")
	}
	if len(retriever.lastQuery.ProductTags) != 1 || retriever.lastQuery.ProductTags[0] != "brake-pads" {
		t.Fatalf("product tags = %v", retriever.lastQuery.ProductTags)
	}
	if len(retriever.lastQuery.VehicleTags) != 1 || retriever.lastQuery.VehicleTags[0] != "honda-civic" {
		t.Fatalf("vehicle tags = %v", retriever.lastQuery.VehicleTags)
	}
}

func TestApproveAndSendRecordsEdit(t *testing.T) {
	th := &domain.Thread{ID: 18, State: domain.ThreadStateNew, CustomerEmail: "kim@example.com", Mailbox: "support@shop.example", Subject: "Return question"}
	settings := gateSettings()
	settings.AutosendEnabled = false
	llm := &fakeLLM{
		intent:    domain.IntentResult{Intent: domain.IntentProductQuestion, Confidence: 0.9},
		draftText: "The part ships in two days.",
	}
	p, _, _, events, _, provider, _ := newTestPipeline(th, inboundMessage(18), llm, &fakeVerifier{ctx: &domain.CustomerContext{Verified: true}}, &fakeRetriever{chunks: groundedChunks(0.9)}, settings)

	result, err := p.RunCycle(context.Background(), 18, 1)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.Sent {
		t.Fatal("autosend disabled, draft should wait for review")
	}

	final := "The part ships in two business days."
	sent, err := p.ApproveAndSend(context.Background(), result.Draft.ID, final, "agent-7")
	if err != nil {
		t.Fatalf("ApproveAndSend: %v", err)
	}
	if !sent.WasSent || !sent.WasEdited {
		t.Fatalf("sent=%t edited=%t", sent.WasSent, sent.WasEdited)
	}
	if sent.EditDistance == 0 {
		t.Fatal("edit distance not recorded")
	}
	if len(provider.sent) != 1 {
		t.Fatal("reply not delivered")
	}
	if th.State != domain.ThreadStateInProgress {
		t.Fatalf("thread state = %s", th.State)
	}
	if events.countByType(domain.EventDraftSent) != 1 {
		t.Fatal("draft_sent event missing")
	}

	if _, err := p.ApproveAndSend(context.Background(), result.Draft.ID, final, "agent-7"); err == nil {
		t.Fatal("second send must fail")
	}
}
