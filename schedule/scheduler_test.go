package schedule

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/metorial/go-callbacks/core"
	"github.com/metorial/go-callbacks/dispatch"
)

type fakeEventStore struct {
	events   map[string]*core.CallbackEvent
	due      []string
	releases []core.ReleaseEventInput
}

func newFakeEventStore(events ...*core.CallbackEvent) *fakeEventStore {
	store := &fakeEventStore{events: map[string]*core.CallbackEvent{}}
	for _, event := range events {
		store.events[event.ID] = event
		store.due = append(store.due, event.ID)
	}
	return store
}

func (s *fakeEventStore) Create(ctx context.Context, in core.CreateEventInput) (core.CallbackEvent, error) {
	return core.CallbackEvent{}, fmt.Errorf("not implemented")
}

func (s *fakeEventStore) Get(ctx context.Context, id string) (core.CallbackEvent, error) {
	event, ok := s.events[id]
	if !ok {
		return core.CallbackEvent{}, core.ErrEventNotFound
	}
	return *event, nil
}

func (s *fakeEventStore) ClaimDue(ctx context.Context, owner string, lease time.Duration, limit int) ([]core.CallbackEvent, error) {
	claimed := make([]core.CallbackEvent, 0, len(s.due))
	for _, id := range s.due {
		event := s.events[id]
		if event.Status.Terminal() {
			continue
		}
		event.LeaseOwner = owner
		claimed = append(claimed, *event)
		if len(claimed) >= limit {
			break
		}
	}
	s.due = nil
	return claimed, nil
}

func (s *fakeEventStore) AppendAttempt(ctx context.Context, in core.AppendAttemptInput) (core.ProcessingAttempt, error) {
	event, ok := s.events[in.EventID]
	if !ok {
		return core.ProcessingAttempt{}, core.ErrEventNotFound
	}
	attempt := core.ProcessingAttempt{
		ID:                 fmt.Sprintf("att_%d", len(event.Attempts)),
		EventID:            in.EventID,
		Index:              len(event.Attempts),
		DestinationID:      in.DestinationID,
		Status:             in.Status,
		ErrorCode:          in.ErrorCode,
		ResponseStatusCode: in.ResponseStatusCode,
		DurationMs:         in.DurationMs,
	}
	event.Attempts = append(event.Attempts, attempt)
	return attempt, nil
}

func (s *fakeEventStore) Release(ctx context.Context, in core.ReleaseEventInput) error {
	event, ok := s.events[in.EventID]
	if !ok {
		return core.ErrEventNotFound
	}
	if event.Status.Terminal() && in.Status != event.Status {
		return core.ErrEventTerminal
	}
	event.Status = in.Status
	event.NextAttemptAt = in.NextAttemptAt
	event.LeaseOwner = ""
	if len(in.PayloadOutgoing) > 0 {
		event.PayloadOutgoing = in.PayloadOutgoing
	}
	s.releases = append(s.releases, in)
	if !event.Status.Terminal() {
		s.due = append(s.due, event.ID)
	}
	return nil
}

func (s *fakeEventStore) MarkFailed(ctx context.Context, id string, reason string) error {
	event, ok := s.events[id]
	if !ok {
		return core.ErrEventNotFound
	}
	event.Status = core.EventStatusFailed
	return nil
}

type fakeCallbackStore struct {
	callbacks map[string]core.Callback
	advanced  map[string]time.Time
}

func (s *fakeCallbackStore) Create(ctx context.Context, in core.CreateCallbackInput) (core.Callback, error) {
	return core.Callback{}, fmt.Errorf("not implemented")
}

func (s *fakeCallbackStore) Get(ctx context.Context, id string) (core.Callback, error) {
	callback, ok := s.callbacks[id]
	if !ok {
		return core.Callback{}, core.ErrCallbackNotFound
	}
	return callback, nil
}

func (s *fakeCallbackStore) ListDuePolling(ctx context.Context, now time.Time, limit int) ([]core.Callback, error) {
	due := []core.Callback{}
	for _, callback := range s.callbacks {
		if callback.Type != core.CallbackTypePolling || callback.Schedule == nil {
			continue
		}
		if !callback.Schedule.NextRunAt.After(now) {
			due = append(due, callback)
		}
	}
	return due, nil
}

func (s *fakeCallbackStore) AdvanceSchedule(ctx context.Context, id string, nextRunAt time.Time) error {
	if s.advanced == nil {
		s.advanced = map[string]time.Time{}
	}
	s.advanced[id] = nextRunAt
	if callback, ok := s.callbacks[id]; ok && callback.Schedule != nil {
		callback.Schedule.NextRunAt = nextRunAt
	}
	return nil
}

func (s *fakeCallbackStore) SoftDelete(ctx context.Context, id string) error {
	return nil
}

type fakeDestinationReader struct {
	destinations []core.CallbackDestination
}

func (r *fakeDestinationReader) Get(ctx context.Context, id string) (core.CallbackDestination, error) {
	for _, destination := range r.destinations {
		if destination.ID == id {
			return destination, nil
		}
	}
	return core.CallbackDestination{}, core.ErrDestinationNotFound
}

func (r *fakeDestinationReader) ListActiveByInstance(ctx context.Context, instanceID string) ([]core.CallbackDestination, error) {
	matched := []core.CallbackDestination{}
	for _, destination := range r.destinations {
		if destination.InstanceID == instanceID && destination.Status == core.DestinationStatusActive {
			matched = append(matched, destination)
		}
	}
	return matched, nil
}

// scriptedDeliverer replays a fixed sequence of verdicts and records each
// attempt against the store like the real dispatcher does.
type scriptedDeliverer struct {
	store    *fakeEventStore
	verdicts []dispatch.Verdict
	calls    int
}

func (d *scriptedDeliverer) Deliver(ctx context.Context, event core.CallbackEvent, destination core.CallbackDestination) (dispatch.DeliveryOutcome, error) {
	verdict := dispatch.Verdict{Succeeded: true}
	if d.calls < len(d.verdicts) {
		verdict = d.verdicts[d.calls]
	}
	d.calls++

	status := core.AttemptStatusFailed
	responseCode := http.StatusInternalServerError
	if verdict.Succeeded {
		status = core.AttemptStatusSucceeded
		responseCode = http.StatusOK
	} else if !verdict.Retryable {
		responseCode = http.StatusNotFound
	}
	attempt, err := d.store.AppendAttempt(ctx, core.AppendAttemptInput{
		EventID:            event.ID,
		DestinationID:      destination.ID,
		Status:             status,
		ErrorCode:          verdict.ErrorCode,
		ResponseStatusCode: responseCode,
	})
	if err != nil {
		return dispatch.DeliveryOutcome{}, err
	}
	return dispatch.DeliveryOutcome{
		Attempt: attempt,
		Body:    []byte(`{"object":"callback.event"}`),
		Verdict: verdict,
	}, nil
}

func pendingEvent() *core.CallbackEvent {
	return &core.CallbackEvent{
		ID:              "evt_1",
		CallbackID:      "cb_1",
		InstanceID:      "inst_1",
		Type:            "session.completed",
		Status:          core.EventStatusPending,
		PayloadIncoming: []byte(`{"session":"ses_9"}`),
	}
}

func testRegistry(t *testing.T, events *fakeEventStore, destinations ...core.CallbackDestination) *core.Registry {
	t.Helper()
	callbacks := &fakeCallbackStore{callbacks: map[string]core.Callback{}}
	registry, err := core.NewRegistry(callbacks, &fakeDestinationReader{destinations: destinations})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return registry
}

func activeDestination() core.CallbackDestination {
	return core.CallbackDestination{
		ID:         "dst_1",
		InstanceID: "inst_1",
		Type:       core.DestinationTypeWebhook,
		URL:        "https://receiver.example.com/hook",
		Status:     core.DestinationStatusActive,
		Rule:       core.RoutingRule{Type: core.SelectionTypeAll},
	}
}

func newTestScheduler(t *testing.T, events *fakeEventStore, deliverer Deliverer, destinations ...core.CallbackDestination) *Scheduler {
	t.Helper()
	scheduler, err := NewScheduler(
		events,
		testRegistry(t, events, destinations...),
		deliverer,
		WithRetryPolicy(dispatch.ExponentialRetryPolicy{
			Base:   time.Second,
			Max:    30 * time.Minute,
			Jitter: func() float64 { return 1.0 },
		}),
		WithOwner("worker-test"),
	)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return scheduler
}

func TestSchedulerTransientFailuresThenSuccess(t *testing.T) {
	event := pendingEvent()
	events := newFakeEventStore(event)
	deliverer := &scriptedDeliverer{
		store: events,
		verdicts: []dispatch.Verdict{
			{Retryable: true, ErrorCode: dispatch.ErrCodeDestinationError},
			{Retryable: true, ErrorCode: dispatch.ErrCodeDestinationError},
			{Retryable: true, ErrorCode: dispatch.ErrCodeDestinationError},
			{Succeeded: true},
		},
	}
	scheduler := newTestScheduler(t, events, deliverer, activeDestination())

	for cycle := 0; cycle < 4; cycle++ {
		if _, err := scheduler.RunOnce(context.Background()); err != nil {
			t.Fatalf("cycle %d: %v", cycle, err)
		}
	}

	if event.Status != core.EventStatusSucceeded {
		t.Fatalf("expected succeeded, got %q", event.Status)
	}
	if len(event.Attempts) != 4 {
		t.Fatalf("expected 4 attempts, got %d", len(event.Attempts))
	}
	for index, attempt := range event.Attempts {
		if attempt.Index != index {
			t.Fatalf("attempt index gap at %d: got %d", index, attempt.Index)
		}
	}
}

func TestSchedulerPermanentFailureShortCircuits(t *testing.T) {
	event := pendingEvent()
	events := newFakeEventStore(event)
	deliverer := &scriptedDeliverer{
		store:    events,
		verdicts: []dispatch.Verdict{{Retryable: false, ErrorCode: dispatch.ErrCodeDestinationRejected}},
	}
	scheduler := newTestScheduler(t, events, deliverer, activeDestination())

	if _, err := scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if event.Status != core.EventStatusFailed {
		t.Fatalf("expected failed, got %q", event.Status)
	}
	if len(event.Attempts) != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", len(event.Attempts))
	}
}

func TestSchedulerRetryBudgetExhaustion(t *testing.T) {
	event := pendingEvent()
	events := newFakeEventStore(event)
	deliverer := &scriptedDeliverer{store: events}
	verdicts := make([]dispatch.Verdict, 10)
	for index := range verdicts {
		verdicts[index] = dispatch.Verdict{Retryable: true, ErrorCode: dispatch.ErrCodeDestinationError}
	}
	deliverer.verdicts = verdicts

	scheduler, err := NewScheduler(
		events,
		testRegistry(t, events, activeDestination()),
		deliverer,
		WithMaxAttempts(3),
		WithOwner("worker-test"),
	)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	for cycle := 0; cycle < 3; cycle++ {
		if _, err := scheduler.RunOnce(context.Background()); err != nil {
			t.Fatalf("cycle %d: %v", cycle, err)
		}
	}

	if event.Status != core.EventStatusFailed {
		t.Fatalf("expected budget exhaustion to fail the event, got %q", event.Status)
	}
	if len(event.Attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(event.Attempts))
	}
}

func TestSchedulerFirstRetryWaitsBaseDelay(t *testing.T) {
	event := pendingEvent()
	events := newFakeEventStore(event)
	deliverer := &scriptedDeliverer{
		store:    events,
		verdicts: []dispatch.Verdict{{Retryable: true, ErrorCode: dispatch.ErrCodeDestinationError}},
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	scheduler, err := NewScheduler(
		events,
		testRegistry(t, events, activeDestination()),
		deliverer,
		WithRetryPolicy(dispatch.ExponentialRetryPolicy{
			Base:   time.Second,
			Max:    30 * time.Minute,
			Jitter: func() float64 { return 1.0 },
		}),
		WithOwner("worker-test"),
		WithClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	if _, err := scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if event.Status != core.EventStatusRetrying {
		t.Fatalf("expected retrying, got %q", event.Status)
	}
	if event.NextAttemptAt == nil {
		t.Fatal("expected a next attempt time")
	}
	// One recorded attempt means the failed attempt's index is 0: the first
	// retry waits the base delay, not twice it.
	if got := event.NextAttemptAt.Sub(now); got != time.Second {
		t.Fatalf("expected base delay before the first retry, got %s", got)
	}
}

func TestSchedulerZeroDestinationsSucceedsVacuously(t *testing.T) {
	event := pendingEvent()
	events := newFakeEventStore(event)
	deliverer := &scriptedDeliverer{store: events}
	scheduler := newTestScheduler(t, events, deliverer)

	if _, err := scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if event.Status != core.EventStatusSucceeded {
		t.Fatalf("expected vacuous success, got %q", event.Status)
	}
	if len(event.Attempts) != 0 {
		t.Fatalf("expected zero attempts, got %d", len(event.Attempts))
	}
	if deliverer.calls != 0 {
		t.Fatalf("expected no deliveries, got %d", deliverer.calls)
	}
}

func TestSchedulerTerminalRecheckBeforeDispatch(t *testing.T) {
	event := pendingEvent()
	events := newFakeEventStore(event)
	deliverer := &scriptedDeliverer{store: events}
	scheduler := newTestScheduler(t, events, deliverer, activeDestination())

	// Terminal mark lands between the claim and the dispatch.
	claimed, err := events.ClaimDue(context.Background(), "worker-test", time.Minute, 10)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %v (%d)", err, len(claimed))
	}
	if err := events.MarkFailed(context.Background(), event.ID, "manual"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	if _, err := scheduler.processEvent(context.Background(), claimed[0]); err != nil {
		t.Fatalf("process: %v", err)
	}
	if deliverer.calls != 0 {
		t.Fatal("terminal event must not be dispatched")
	}
	if event.Status != core.EventStatusFailed {
		t.Fatalf("terminal status must not change, got %q", event.Status)
	}
}

func TestSchedulerRetryAfterOverridesBackoff(t *testing.T) {
	event := pendingEvent()
	events := newFakeEventStore(event)
	deliverer := &scriptedDeliverer{
		store: events,
		verdicts: []dispatch.Verdict{{
			Retryable:  true,
			ErrorCode:  dispatch.ErrCodeRateLimited,
			RetryAfter: time.Hour,
		}},
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	scheduler, err := NewScheduler(
		events,
		testRegistry(t, events, activeDestination()),
		deliverer,
		WithRetryPolicy(dispatch.ExponentialRetryPolicy{
			Base:   time.Second,
			Max:    30 * time.Minute,
			Jitter: func() float64 { return 1.0 },
		}),
		WithOwner("worker-test"),
		WithClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	if _, err := scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if event.Status != core.EventStatusRetrying {
		t.Fatalf("expected retrying, got %q", event.Status)
	}
	if event.NextAttemptAt == nil {
		t.Fatal("expected a next attempt time")
	}
	if got := event.NextAttemptAt.Sub(now); got != time.Hour {
		t.Fatalf("expected Retry-After to win over backoff, got %s", got)
	}
}
