package thread

import (
	"context"
	"time"

	"triage_server/core/domain"
)

type fakeThreadRepo struct {
	threads map[int64]*domain.Thread
	nextID  int64
}

func newFakeThreadRepo() *fakeThreadRepo {
	return &fakeThreadRepo{threads: make(map[int64]*domain.Thread), nextID: 1}
}

func (r *fakeThreadRepo) Create(_ context.Context, t *domain.Thread) error {
	t.ID = r.nextID
	r.nextID++
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	r.threads[t.ID] = t
	return nil
}

func (r *fakeThreadRepo) GetByID(_ context.Context, id int64) (*domain.Thread, error) {
	return r.threads[id], nil
}

func (r *fakeThreadRepo) GetByProviderThread(_ context.Context, mailbox, providerThreadID string) (*domain.Thread, error) {
	for _, t := range r.threads {
		if t.Mailbox == mailbox && t.ProviderThread == providerThreadID {
			return t, nil
		}
	}
	return nil, nil
}

func (r *fakeThreadRepo) GetByCustomerEmail(_ context.Context, email string, limit int) ([]*domain.Thread, error) {
	var out []*domain.Thread
	for _, t := range r.threads {
		if t.CustomerEmail == email {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeThreadRepo) List(_ context.Context, _ *domain.ThreadFilter) ([]*domain.Thread, int, error) {
	var out []*domain.Thread
	for _, t := range r.threads {
		out = append(out, t)
	}
	return out, len(out), nil
}

func (r *fakeThreadRepo) UpdateState(_ context.Context, id int64, expected, next domain.ThreadState) (bool, error) {
	t, ok := r.threads[id]
	if !ok || t.State != expected {
		return false, nil
	}
	t.State = next
	return true, nil
}

func (r *fakeThreadRepo) UpdateIntent(_ context.Context, id int64, intent domain.Intent) error {
	if t, ok := r.threads[id]; ok {
		t.LastIntent = &intent
	}
	return nil
}

func (r *fakeThreadRepo) UpdateVerification(_ context.Context, id int64, status domain.VerificationStatus, customerID, orderNumber *string) error {
	if t, ok := r.threads[id]; ok {
		t.Verification = status
		t.CustomerID = customerID
		t.OrderNumber = orderNumber
	}
	return nil
}

func (r *fakeThreadRepo) Touch(_ context.Context, id int64, at time.Time) error {
	if t, ok := r.threads[id]; ok {
		t.UpdatedAt = at
	}
	return nil
}

func (r *fakeThreadRepo) SetResolved(_ context.Context, id int64, at time.Time) error {
	if t, ok := r.threads[id]; ok {
		t.ResolvedAt = &at
	}
	return nil
}

func (r *fakeThreadRepo) ListClosedSince(_ context.Context, since time.Time, limit int) ([]*domain.Thread, error) {
	return nil, nil
}

type fakeMessageRepo struct {
	messages []*domain.Message
	nextID   int64
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{nextID: 1}
}

func (r *fakeMessageRepo) Create(_ context.Context, m *domain.Message) error {
	m.ID = r.nextID
	r.nextID++
	m.CreatedAt = time.Now()
	r.messages = append(r.messages, m)
	return nil
}

func (r *fakeMessageRepo) GetByID(_ context.Context, id int64) (*domain.Message, error) {
	for _, m := range r.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeMessageRepo) GetByProviderID(_ context.Context, threadID int64, providerID string) (*domain.Message, error) {
	for _, m := range r.messages {
		if m.ThreadID == threadID && m.ProviderID == providerID {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeMessageRepo) GetByFingerprint(_ context.Context, threadID int64, fingerprint string) (*domain.Message, error) {
	for _, m := range r.messages {
		if m.ThreadID == threadID && m.Fingerprint == fingerprint {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeMessageRepo) ListByThread(_ context.Context, threadID int64, limit int) ([]*domain.Message, error) {
	var out []*domain.Message
	for _, m := range r.messages {
		if m.ThreadID == threadID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) LatestInbound(_ context.Context, threadID int64) (*domain.Message, error) {
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].ThreadID == threadID && r.messages[i].Direction == domain.DirectionInbound {
			return r.messages[i], nil
		}
	}
	return nil, nil
}

type fakeEventRepo struct {
	events []*domain.Event
	nextID int64
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{nextID: 1}
}

func (r *fakeEventRepo) Append(_ context.Context, e *domain.Event) error {
	e.ID = r.nextID
	r.nextID++
	r.events = append(r.events, e)
	return nil
}

func (r *fakeEventRepo) ListByThread(_ context.Context, threadID int64, limit int) ([]*domain.Event, error) {
	var out []*domain.Event
	for _, e := range r.events {
		if e.ThreadID == threadID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeEventRepo) ListByType(_ context.Context, threadID int64, typ domain.EventType, limit int) ([]*domain.Event, error) {
	var out []*domain.Event
	for _, e := range r.events {
		if e.ThreadID == threadID && e.Type == typ {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeEventRepo) PurgeByThread(_ context.Context, threadID int64) (int64, error) {
	var kept []*domain.Event
	var purged int64
	for _, e := range r.events {
		if e.ThreadID == threadID {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	return purged, nil
}

func (r *fakeEventRepo) countByType(typ domain.EventType) int {
	n := 0
	for _, e := range r.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type fakeRawRepo struct {
	saved []*domain.RawMessage
}

func (r *fakeRawRepo) Save(_ context.Context, raw *domain.RawMessage) error {
	r.saved = append(r.saved, raw)
	return nil
}

func (r *fakeRawRepo) GetByMessageID(_ context.Context, messageID int64) (*domain.RawMessage, error) {
	for _, m := range r.saved {
		if m.MessageID == messageID {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeRawRepo) DeleteByThread(_ context.Context, threadID int64) (int64, error) {
	return 0, nil
}
