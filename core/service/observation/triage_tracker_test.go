package observation

import (
	"context"
	"sync"
	"testing"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/core/service/thread"
	"triage_server/pkg/apperr"
)

type fakeThreadRepo struct {
	out.ThreadRepository
	mu       sync.Mutex
	threads  map[int64]*domain.Thread
	resolved map[int64]time.Time
}

func newFakeThreadRepo(threads ...*domain.Thread) *fakeThreadRepo {
	r := &fakeThreadRepo{threads: make(map[int64]*domain.Thread), resolved: make(map[int64]time.Time)}
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

func (r *fakeThreadRepo) SetResolved(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved[id] = at
	return nil
}

type fakeEventRepo struct {
	out.EventRepository
	events []*domain.Event
}

func (r *fakeEventRepo) Append(_ context.Context, event *domain.Event) error {
	r.events = append(r.events, event)
	return nil
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

type fakeObservationRepo struct {
	out.ObservationRepository
	observations map[int64]*domain.Observation
	nextID       int64
}

func newFakeObservationRepo() *fakeObservationRepo {
	return &fakeObservationRepo{observations: make(map[int64]*domain.Observation)}
}

func (r *fakeObservationRepo) Create(_ context.Context, obs *domain.Observation) error {
	r.nextID++
	obs.ID = r.nextID
	r.observations[obs.ID] = obs
	return nil
}

func (r *fakeObservationRepo) GetOpenByThread(_ context.Context, threadID int64) (*domain.Observation, error) {
	for _, o := range r.observations {
		if o.ThreadID == threadID && o.Open() {
			return o, nil
		}
	}
	return nil, nil
}

func (r *fakeObservationRepo) Close(_ context.Context, id int64, end time.Time, resolution domain.ResolutionClass, summary *domain.ObservationSummary) error {
	o := r.observations[id]
	o.InterventionEnd = &end
	o.Resolution = &resolution
	o.Summary = summary
	return nil
}

func newTestTracker(th *domain.Thread) (*Tracker, *fakeEventRepo, *fakeObservationRepo, *fakeThreadRepo) {
	threads := newFakeThreadRepo(th)
	events := &fakeEventRepo{}
	observations := newFakeObservationRepo()
	tracker := NewTracker(observations, threads, events, thread.NewStateMachine(threads, events))
	return tracker, events, observations, threads
}

func TestEnterOpensObservation(t *testing.T) {
	th := &domain.Thread{ID: 1, State: domain.ThreadStateInProgress}
	tracker, events, _, _ := newTestTracker(th)

	obs, err := tracker.Enter(context.Background(), 1, "agent-7")
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	if !obs.Open() {
		t.Fatal("observation should be open")
	}
	if th.State != domain.ThreadStateHumanHandling {
		t.Fatalf("thread state = %s, want HUMAN_HANDLING", th.State)
	}
	if events.countByType(domain.EventObservationOpened) != 1 {
		t.Fatal("observation_opened event missing")
	}
}

func TestEnterFailsWhenAlreadyOpen(t *testing.T) {
	th := &domain.Thread{ID: 1, State: domain.ThreadStateInProgress}
	tracker, _, _, _ := newTestTracker(th)

	if _, err := tracker.Enter(context.Background(), 1, "agent-7"); err != nil {
		t.Fatalf("first Enter: %v", err)
	}
	_, err := tracker.Enter(context.Background(), 1, "agent-8")
	appErr := apperr.AsAppError(err)
	if appErr == nil || appErr.Code != apperr.CodeObservationOpen {
		t.Fatalf("expected observation open error, got %v", err)
	}
}

func TestExitClosesAndHandsBack(t *testing.T) {
	th := &domain.Thread{ID: 1, State: domain.ThreadStateInProgress}
	tracker, events, _, _ := newTestTracker(th)

	if _, err := tracker.Enter(context.Background(), 1, "agent-7"); err != nil {
		t.Fatalf("Enter: %v", err)
	}
	summary := &domain.ObservationSummary{
		QuestionsAsked: []string{"which engine variant?"},
		StepsTaken:     []string{"checked fitment chart"},
		Notes:          "customer needed the facelift model part",
	}
	obs, err := tracker.Exit(context.Background(), 1, domain.ResolutionNeedsRule, summary)
	if err != nil {
		t.Fatalf("Exit: %v", err)
	}
	if obs.Open() {
		t.Fatal("observation should be closed")
	}
	if *obs.Resolution != domain.ResolutionNeedsRule {
		t.Fatalf("resolution = %s", *obs.Resolution)
	}
	if th.State != domain.ThreadStateInProgress {
		t.Fatalf("thread state = %s, want IN_PROGRESS after handback", th.State)
	}
	if events.countByType(domain.EventObservationClosed) != 1 {
		t.Fatal("observation_closed event missing")
	}
}

func TestExitResolvedAlsoResolvesThread(t *testing.T) {
	th := &domain.Thread{ID: 1, State: domain.ThreadStateEscalated}
	tracker, _, _, threads := newTestTracker(th)

	if _, err := tracker.Enter(context.Background(), 1, "agent-7"); err != nil {
		t.Fatalf("Enter: %v", err)
	}
	if _, err := tracker.Exit(context.Background(), 1, domain.ResolutionResolved, nil); err != nil {
		t.Fatalf("Exit: %v", err)
	}
	if th.State != domain.ThreadStateResolved {
		t.Fatalf("thread state = %s, want RESOLVED", th.State)
	}
	if _, ok := threads.resolved[1]; !ok {
		t.Fatal("resolution time not stamped")
	}
}

func TestExitFailsWithoutOpenObservation(t *testing.T) {
	th := &domain.Thread{ID: 1, State: domain.ThreadStateInProgress}
	tracker, _, _, _ := newTestTracker(th)

	_, err := tracker.Exit(context.Background(), 1, domain.ResolutionAbandoned, nil)
	appErr := apperr.AsAppError(err)
	if appErr == nil || appErr.Code != apperr.CodeNoObservation {
		t.Fatalf("expected no observation error, got %v", err)
	}
}
