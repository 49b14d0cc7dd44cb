package triage

import (
	"context"
	"sync"
	"time"

	"triage_server/core/agent/rag"
	"triage_server/core/domain"
	"triage_server/core/port/out"
)

type fakeThreadRepo struct {
	out.ThreadRepository
	mu      sync.Mutex
	threads map[int64]*domain.Thread
	intents map[int64]domain.Intent
}

func newFakeThreadRepo(threads ...*domain.Thread) *fakeThreadRepo {
	r := &fakeThreadRepo{
		threads: make(map[int64]*domain.Thread),
		intents: make(map[int64]domain.Intent),
	}
	for _, t := range threads {
		r.threads[t.ID] = t
	}
	return r
}

func (r *fakeThreadRepo) GetByID(_ context.Context, id int64) (*domain.Thread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.threads[id], nil
}

func (r *fakeThreadRepo) UpdateState(_ context.Context, id int64, expected, next domain.ThreadState) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.threads[id]
	if !ok || t.State != expected {
		return false, nil
	}
	t.State = next
	return true, nil
}

func (r *fakeThreadRepo) UpdateIntent(_ context.Context, id int64, intent domain.Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents[id] = intent
	return nil
}

func (r *fakeThreadRepo) UpdateVerification(_ context.Context, id int64, status domain.VerificationStatus, customerID, orderNumber *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.threads[id]; ok {
		t.Verification = status
		t.CustomerID = customerID
		t.OrderNumber = orderNumber
	}
	return nil
}

type fakeMessageRepo struct {
	out.MessageRepository
	mu       sync.Mutex
	messages map[int64]*domain.Message
	nextID   int64
}

func newFakeMessageRepo(msgs ...*domain.Message) *fakeMessageRepo {
	r := &fakeMessageRepo{messages: make(map[int64]*domain.Message), nextID: 100}
	for _, m := range msgs {
		r.messages[m.ID] = m
	}
	return r
}

func (r *fakeMessageRepo) Create(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	msg.ID = r.nextID
	r.messages[msg.ID] = msg
	return nil
}

func (r *fakeMessageRepo) GetByID(_ context.Context, id int64) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages[id], nil
}

func (r *fakeMessageRepo) ListByThread(_ context.Context, threadID int64, limit int) ([]*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.Message
	for _, m := range r.messages {
		if m.ThreadID == threadID {
			result = append(result, m)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *fakeMessageRepo) LatestInbound(_ context.Context, threadID int64) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.Message
	for _, m := range r.messages {
		if m.ThreadID == threadID && m.Direction == domain.DirectionInbound {
			if latest == nil || m.SentAt.After(latest.SentAt) {
				latest = m
			}
		}
	}
	return latest, nil
}

func (r *fakeMessageRepo) outbound(threadID int64) []*domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.Message
	for _, m := range r.messages {
		if m.ThreadID == threadID && m.Direction == domain.DirectionOutbound {
			result = append(result, m)
		}
	}
	return result
}

type fakeEventRepo struct {
	out.EventRepository
	mu     sync.Mutex
	events []*domain.Event
}

func (r *fakeEventRepo) Append(_ context.Context, event *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event.ID = int64(len(r.events) + 1)
	r.events = append(r.events, event)
	return nil
}

func (r *fakeEventRepo) countByType(typ domain.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type fakeDraftRepo struct {
	out.DraftRepository
	mu     sync.Mutex
	drafts map[int64]*domain.DraftGeneration
	nextID int64
}

func newFakeDraftRepo() *fakeDraftRepo {
	return &fakeDraftRepo{drafts: make(map[int64]*domain.DraftGeneration)}
}

func (r *fakeDraftRepo) Create(_ context.Context, draft *domain.DraftGeneration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	draft.ID = r.nextID
	r.drafts[draft.ID] = draft
	return nil
}

func (r *fakeDraftRepo) GetByID(_ context.Context, id int64) (*domain.DraftGeneration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drafts[id], nil
}

func (r *fakeDraftRepo) MarkSent(_ context.Context, id int64, finalText string, edited bool, editDistance int, sentBy string, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drafts[id]
	if !ok {
		return nil
	}
	d.WasSent = true
	d.FinalText = finalText
	d.WasEdited = edited
	d.EditDistance = editDistance
	d.SentBy = &sentBy
	d.SentAt = &sentAt
	return nil
}

type fakeSettingsRepo struct {
	out.SettingsRepository
	settings *domain.PipelineSettings
}

func (r *fakeSettingsRepo) Load(context.Context) (*domain.PipelineSettings, error) {
	return r.settings, nil
}

type fakeLLM struct {
	intent      domain.IntentResult
	classifyErr error
	draftText   string
	citedIDs    []int64
	generateErr error
}

func (f *fakeLLM) Classify(context.Context, string, string, []string) (domain.IntentResult, error) {
	return f.intent, f.classifyErr
}

func (f *fakeLLM) GenerateDraft(_ context.Context, req *out.DraftRequest) (*out.DraftResult, error) {
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	return &out.DraftResult{Text: f.draftText, CitedChunkIDs: f.citedIDs, TokensUsed: 42}, nil
}

type fakeRetriever struct {
	chunks    []*domain.RetrievedChunk
	lastQuery *rag.Query
}

func (f *fakeRetriever) Retrieve(_ context.Context, q *rag.Query) ([]*domain.RetrievedChunk, error) {
	f.lastQuery = q
	return f.chunks, nil
}

type fakeVerifier struct {
	ctx *domain.CustomerContext
}

func (f *fakeVerifier) Verify(_ context.Context, t *domain.Thread, _, _ string) (*domain.CustomerContext, error) {
	if f.ctx.Verified {
		t.Verification = domain.VerificationVerified
	}
	return f.ctx, nil
}

type fakeProvider struct {
	out.MailProviderPort
	mu   sync.Mutex
	sent []*out.OutboundMail
}

func (f *fakeProvider) Send(_ context.Context, _ string, mail *out.OutboundMail) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, mail)
	return "provider-msg-1", nil
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (f *fakeLocker) SetNX(_ context.Context, key, _ string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return false, nil
	}
	f.held[key] = true
	return true, nil
}

func (f *fakeLocker) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, key)
	return nil
}
