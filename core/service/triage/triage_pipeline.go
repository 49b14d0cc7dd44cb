package triage

import (
	"context"
	"fmt"
	"time"

	"triage_server/core/agent/rag"
	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/core/service/thread"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
)

const cycleLockTTL = 2 * time.Minute

// CycleLocker serializes triage cycles per thread. Satisfied by the
// Redis cache.
type CycleLocker interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Verifier grounds a thread in the commerce platform.
type Verifier interface {
	Verify(ctx context.Context, t *domain.Thread, subject, body string) (*domain.CustomerContext, error)
}

// Retriever is the knowledge retrieval pass.
type Retriever interface {
	Retrieve(ctx context.Context, q *rag.Query) ([]*domain.RetrievedChunk, error)
}

// CycleResult is the outcome of one triage cycle.
type CycleResult struct {
	Thread    *domain.Thread
	Draft     *domain.DraftGeneration
	Sent      bool
	Escalated bool
	// Skipped is set when the thread state excludes automation.
	Skipped bool
}

// Pipeline runs the triage cycle for one inbound message: classify the
// intent, verify the customer, retrieve knowledge, generate a draft,
// gate it, and autosend when policy allows. At most one cycle runs per
// thread at a time; a failed cycle leaves the thread state untouched so
// the next message retries.
type Pipeline struct {
	threads   out.ThreadRepository
	messages  out.MessageRepository
	events    out.EventRepository
	drafts    out.DraftRepository
	settings  out.SettingsRepository
	llm       out.LLMPort
	retriever Retriever
	verifier  Verifier
	machine   *thread.StateMachine
	provider  out.MailProviderPort
	locker    CycleLocker
	gate      *PolicyGate
	log       *logger.Logger
}

type PipelineDeps struct {
	Threads   out.ThreadRepository
	Messages  out.MessageRepository
	Events    out.EventRepository
	Drafts    out.DraftRepository
	Settings  out.SettingsRepository
	LLM       out.LLMPort
	Retriever Retriever
	Verifier  Verifier
	Machine   *thread.StateMachine
	Provider  out.MailProviderPort
	Locker    CycleLocker
}

func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		threads:   deps.Threads,
		messages:  deps.Messages,
		events:    deps.Events,
		drafts:    deps.Drafts,
		settings:  deps.Settings,
		llm:       deps.LLM,
		retriever: deps.Retriever,
		verifier:  deps.Verifier,
		machine:   deps.Machine,
		provider:  deps.Provider,
		locker:    deps.Locker,
		gate:      NewPolicyGate(),
		log:       logger.Default().WithField("component", "triage_pipeline"),
	}
}

// RunCycle processes one inbound message. messageID 0 means the newest
// inbound message on the thread.
func (p *Pipeline) RunCycle(ctx context.Context, threadID, messageID int64) (*CycleResult, error) {
	if p.llm == nil {
		return nil, apperr.ConfigError("llm provider not configured, triage unavailable")
	}

	settings, err := p.loadSettings(ctx)
	if err != nil {
		return nil, err
	}

	lockKey := fmt.Sprintf("triage:cycle:%d", threadID)
	acquired, err := p.locker.SetNX(ctx, lockKey, "1", cycleLockTTL)
	if err != nil {
		return nil, apperr.ExternalError("redis", err)
	}
	if !acquired {
		return nil, apperr.CycleInFlight(threadID)
	}
	defer func() {
		if err := p.locker.Delete(context.WithoutCancel(ctx), lockKey); err != nil {
			p.log.WithThread(threadID).WithError(err).Warn("failed to release cycle lock")
		}
	}()

	t, err := p.threads.GetByID(ctx, threadID)
	if err != nil {
		return nil, apperr.DatabaseError("load thread", err)
	}
	if t == nil {
		return nil, apperr.NotFound("thread")
	}
	if t.State == domain.ThreadStateHumanHandling || t.State == domain.ThreadStateResolved {
		p.log.WithThread(threadID).Info("skipping triage, thread state %s", t.State)
		return &CycleResult{Thread: t, Skipped: true}, nil
	}

	msg, err := p.loadMessage(ctx, threadID, messageID)
	if err != nil {
		return nil, err
	}

	history, err := p.loadHistory(ctx, threadID, settings.HistoryWindow)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := &CycleResult{Thread: t}

	intentResult, err := p.llm.Classify(ctx, msg.Subject, msg.Body, history)
	if err != nil {
		p.log.WithThread(t.ID).WithError(err).Warn("intent classification degraded to UNKNOWN")
	}
	if intentResult.Intent != domain.IntentUnknown {
		if err := p.threads.UpdateIntent(ctx, t.ID, intentResult.Intent); err != nil {
			p.log.WithThread(t.ID).WithError(err).Warn("failed to persist intent")
		}
		intent := intentResult.Intent
		t.LastIntent = &intent
	}

	customer, err := p.verifier.Verify(ctx, t, msg.Subject, msg.Body)
	if err != nil {
		p.recordFailure(ctx, t.ID, "verify", err)
		return nil, err
	}

	chunks, err := p.retriever.Retrieve(ctx, &rag.Query{
		Text:          msg.Subject + "\n" + msg.Body,
		ProductTags:   intentResult.ProductTags,
		VehicleTags:   intentResult.VehicleTags,
		TopN:          settings.RetrievalTopN,
		MinSimilarity: settings.MinSimilarity,
	})
	if err != nil {
		p.recordFailure(ctx, t.ID, "retrieve", err)
		return nil, apperr.ExternalError("retrieval", err)
	}

	noGrounding := intentResult.Intent.HighStakes() && len(chunks) == 0

	generated, err := p.llm.GenerateDraft(ctx, &out.DraftRequest{
		Intent:      intentResult.Intent,
		Subject:     msg.Subject,
		Body:        msg.Body,
		History:     history,
		Chunks:      chunks,
		Customer:    customer,
		NoGrounding: noGrounding,
	})
	if err != nil {
		p.recordFailure(ctx, t.ID, "generate", err)
		return nil, apperr.ExternalError("llm", err)
	}

	decision := p.gate.Evaluate(settings, &GateInput{
		Text:        generated.Text,
		Intent:      intentResult.Intent,
		Confidence:  intentResult.Confidence,
		Verified:    customer.Verified,
		Chunks:      chunks,
		NoGrounding: noGrounding,
	})

	draft := buildDraft(t.ID, msg.ID, intentResult, generated, chunks, noGrounding, decision)
	if err := p.drafts.Create(ctx, draft); err != nil {
		p.recordFailure(ctx, t.ID, "persist_draft", err)
		return nil, apperr.DatabaseError("create draft", err)
	}
	result.Draft = draft

	p.appendEvent(ctx, t.ID, domain.EventDraftGenerated, domain.DraftGeneratedPayload{
		DraftID:    draft.ID,
		Intent:     draft.Intent,
		Verdict:    draft.Verdict,
		Violations: draft.Violations,
		ChunkIDs:   draft.ChunkIDs,
	})

	switch {
	case draft.Verdict == domain.VerdictEligibleForAutosend:
		if err := p.send(ctx, t, msg, draft, draft.RawText, "system", true); err != nil {
			p.recordFailure(ctx, t.ID, "send", err)
			return nil, err
		}
		result.Sent = true
	case intentResult.Intent == domain.IntentUnknown:
		if _, err := p.machine.Apply(ctx, t, domain.TriggerEscalate, "intent classification failed"); err != nil {
			p.log.WithThread(t.ID).WithError(err).Warn("escalation transition rejected")
		} else {
			result.Escalated = true
		}
	}

	p.log.WithThread(t.ID).WithDuration(time.Since(start)).
		Info("triage cycle finished: intent=%s verdict=%s sent=%t", draft.Intent, draft.Verdict, result.Sent)
	return result, nil
}

// ApproveAndSend delivers a reviewed draft. finalText may differ from
// the generated text; the edit distance is recorded for the learning
// loop.
func (p *Pipeline) ApproveAndSend(ctx context.Context, draftID int64, finalText, sentBy string) (*domain.DraftGeneration, error) {
	draft, err := p.drafts.GetByID(ctx, draftID)
	if err != nil {
		return nil, apperr.DatabaseError("load draft", err)
	}
	if draft == nil {
		return nil, apperr.NotFound("draft")
	}
	if draft.WasSent {
		return nil, apperr.Conflict("draft already sent")
	}
	if !draft.Sendable() {
		return nil, apperr.Forbidden("draft is blocked by policy")
	}

	t, err := p.threads.GetByID(ctx, draft.ThreadID)
	if err != nil {
		return nil, apperr.DatabaseError("load thread", err)
	}
	if t == nil {
		return nil, apperr.NotFound("thread")
	}

	msg, err := p.messages.GetByID(ctx, draft.MessageID)
	if err != nil {
		return nil, apperr.DatabaseError("load message", err)
	}

	if finalText == "" {
		finalText = draft.RawText
	}
	if err := p.send(ctx, t, msg, draft, finalText, sentBy, false); err != nil {
		return nil, err
	}
	return p.drafts.GetByID(ctx, draftID)
}

// send delivers the reply, records the outbound message, marks the
// draft sent and applies the draft_sent transition.
func (p *Pipeline) send(ctx context.Context, t *domain.Thread, inReplyTo *domain.Message, draft *domain.DraftGeneration, finalText, sentBy string, auto bool) error {
	if p.provider == nil {
		return apperr.ConfigError("mail provider not configured, delivery unavailable")
	}

	mail := &out.OutboundMail{
		To:             t.CustomerEmail,
		Subject:        replySubject(t.Subject),
		Body:           finalText,
		ProviderThread: t.ProviderThread,
	}
	if inReplyTo != nil {
		mail.InReplyTo = inReplyTo.ProviderID
	}

	providerID, err := p.provider.Send(ctx, t.Mailbox, mail)
	if err != nil {
		return apperr.ExternalError("mail provider", err)
	}

	now := time.Now().UTC()
	outbound := &domain.Message{
		ThreadID:   t.ID,
		Direction:  domain.DirectionOutbound,
		Role:       domain.RoleNormal,
		Channel:    domain.ChannelEmail,
		Sender:     t.Mailbox,
		Recipient:  t.CustomerEmail,
		Subject:    mail.Subject,
		Body:       finalText,
		ProviderID: providerID,
		SentAt:     now,
		CreatedAt:  now,
	}
	if err := p.messages.Create(ctx, outbound); err != nil {
		p.log.WithThread(t.ID).WithError(err).Error("sent reply but failed to record outbound message")
	}

	edited := finalText != draft.RawText
	distance := 0
	if edited {
		distance = EditDistance(draft.RawText, finalText)
	}
	if err := p.drafts.MarkSent(ctx, draft.ID, finalText, edited, distance, sentBy, now); err != nil {
		return apperr.DatabaseError("mark draft sent", err)
	}
	draft.WasSent = true
	draft.FinalText = finalText
	draft.WasEdited = edited
	draft.EditDistance = distance
	draft.SentAt = &now
	sender := sentBy
	draft.SentBy = &sender

	p.appendEvent(ctx, t.ID, domain.EventDraftSent, domain.DraftSentPayload{
		DraftID:      draft.ID,
		MessageID:    outbound.ID,
		WasEdited:    edited,
		EditDistance: distance,
		SentBy:       sentBy,
		AutoSent:     auto,
	})

	if _, err := p.machine.Apply(ctx, t, domain.TriggerDraftSent, "reply delivered"); err != nil {
		p.log.WithThread(t.ID).WithError(err).Warn("draft_sent transition rejected")
	}
	return nil
}

func (p *Pipeline) loadSettings(ctx context.Context) (*domain.PipelineSettings, error) {
	settings, err := p.settings.Load(ctx)
	if err != nil {
		return nil, apperr.DatabaseError("load settings", err)
	}
	if settings == nil {
		settings = domain.DefaultPipelineSettings()
	}
	return settings, nil
}

func (p *Pipeline) loadMessage(ctx context.Context, threadID, messageID int64) (*domain.Message, error) {
	var msg *domain.Message
	var err error
	if messageID > 0 {
		msg, err = p.messages.GetByID(ctx, messageID)
	} else {
		msg, err = p.messages.LatestInbound(ctx, threadID)
	}
	if err != nil {
		return nil, apperr.DatabaseError("load message", err)
	}
	if msg == nil {
		return nil, apperr.NotFound("message")
	}
	return msg, nil
}

func (p *Pipeline) loadHistory(ctx context.Context, threadID int64, window int) ([]string, error) {
	if window <= 0 {
		window = 10
	}
	msgs, err := p.messages.ListByThread(ctx, threadID, window)
	if err != nil {
		return nil, apperr.DatabaseError("load history", err)
	}
	history := make([]string, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, fmt.Sprintf("[%s] %s", m.Direction, m.Body))
	}
	return history, nil
}

func (p *Pipeline) appendEvent(ctx context.Context, threadID int64, typ domain.EventType, payload any) {
	event, err := domain.NewEvent(threadID, typ, payload)
	if err == nil {
		err = p.events.Append(ctx, event)
	}
	if err != nil {
		p.log.WithThread(threadID).WithError(err).Error("failed to append %s event", typ)
	}
}

func (p *Pipeline) recordFailure(ctx context.Context, threadID int64, stage string, err error) {
	p.appendEvent(ctx, threadID, domain.EventTriageCycleFailed, domain.TriageCycleFailedPayload{
		Stage: stage,
		Error: err.Error(),
	})
	p.log.WithThread(threadID).WithError(err).Error("triage cycle failed at %s", stage)
}

func buildDraft(threadID, messageID int64, intent domain.IntentResult, generated *out.DraftResult, chunks []*domain.RetrievedChunk, noGrounding bool, decision *GateDecision) *domain.DraftGeneration {
	cited := make(map[int64]bool, len(generated.CitedChunkIDs))
	for _, id := range generated.CitedChunkIDs {
		cited[id] = true
	}

	draft := &domain.DraftGeneration{
		ThreadID:    threadID,
		MessageID:   messageID,
		Intent:      intent.Intent,
		Confidence:  decision.Composite,
		RawText:     generated.Text,
		FinalText:   generated.Text,
		NoGrounding: noGrounding,
		Verdict:     decision.Verdict,
		Violations:  decision.Violations,
		TokensUsed:  generated.TokensUsed,
		CreatedAt:   time.Now().UTC(),
	}
	for _, c := range chunks {
		draft.ChunkIDs = append(draft.ChunkIDs, c.Chunk.ID)
		if cited[c.Chunk.ID] {
			draft.Citations = append(draft.Citations, c.Citation())
		}
	}
	return draft
}

func replySubject(subject string) string {
	if subject == "" {
		return "Re: your inquiry"
	}
	if len(subject) >= 3 && (subject[:3] == "Re:" || subject[:3] == "RE:") {
		return subject
	}
	return "Re: " + subject
}
