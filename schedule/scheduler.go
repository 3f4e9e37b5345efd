package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/metorial/go-callbacks/core"
	"github.com/metorial/go-callbacks/dispatch"
)

// Deliverer performs one destination delivery; dispatch.Dispatcher satisfies it.
type Deliverer interface {
	Deliver(ctx context.Context, event core.CallbackEvent, destination core.CallbackDestination) (dispatch.DeliveryOutcome, error)
}

// Scheduler drains due events under per-event leases and decides each event's
// next lifecycle step from the aggregate of its destination deliveries.
type Scheduler struct {
	events      core.EventStore
	registry    *core.Registry
	deliverer   Deliverer
	policy      dispatch.RetryPolicy
	maxAttempts int
	lease       time.Duration
	batchSize   int
	owner       string
	logger      core.Logger
	now         func() time.Time
}

type SchedulerOption func(*Scheduler)

func WithRetryPolicy(policy dispatch.RetryPolicy) SchedulerOption {
	return func(s *Scheduler) {
		if policy != nil {
			s.policy = policy
		}
	}
}

func WithMaxAttempts(max int) SchedulerOption {
	return func(s *Scheduler) {
		if max > 0 {
			s.maxAttempts = max
		}
	}
}

func WithLease(lease time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if lease > 0 {
			s.lease = lease
		}
	}
}

func WithBatchSize(size int) SchedulerOption {
	return func(s *Scheduler) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

func WithOwner(owner string) SchedulerOption {
	return func(s *Scheduler) {
		if strings.TrimSpace(owner) != "" {
			s.owner = strings.TrimSpace(owner)
		}
	}
}

func WithLogger(logger core.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func NewScheduler(
	events core.EventStore,
	registry *core.Registry,
	deliverer Deliverer,
	options ...SchedulerOption,
) (*Scheduler, error) {
	if events == nil {
		return nil, fmt.Errorf("schedule: event store is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("schedule: registry is required")
	}
	if deliverer == nil {
		return nil, fmt.Errorf("schedule: deliverer is required")
	}
	scheduler := &Scheduler{
		events:    events,
		registry:  registry,
		deliverer: deliverer,
		policy: dispatch.ExponentialRetryPolicy{
			Base: time.Second,
			Max:  30 * time.Minute,
		},
		maxAttempts: 20,
		lease:       time.Minute,
		batchSize:   50,
		owner:       "scheduler-" + uuid.NewString(),
		now:         time.Now,
	}
	for _, option := range options {
		if option != nil {
			option(scheduler)
		}
	}
	return scheduler, nil
}

// BatchResult summarizes one scheduler pass.
type BatchResult struct {
	Claimed   int
	Succeeded int
	Retried   int
	Failed    int
}

// RunOnce claims one batch of due events and processes each to its next
// state. Per-event failures are folded into the batch result rather than
// aborting the pass; the error return is for the claim itself.
func (s *Scheduler) RunOnce(ctx context.Context) (BatchResult, error) {
	if s == nil || s.events == nil {
		return BatchResult{}, fmt.Errorf("schedule: scheduler is not configured")
	}
	claimed, err := s.events.ClaimDue(ctx, s.owner, s.lease, s.batchSize)
	if err != nil {
		return BatchResult{}, fmt.Errorf("schedule: claim due events: %w", err)
	}

	result := BatchResult{Claimed: len(claimed)}
	for _, event := range claimed {
		status, err := s.processEvent(ctx, event)
		if err != nil {
			s.logError("event processing failed", event.ID, err)
			result.Failed++
			continue
		}
		switch status {
		case core.EventStatusSucceeded:
			result.Succeeded++
		case core.EventStatusFailed:
			result.Failed++
		default:
			result.Retried++
		}
	}
	return result, nil
}

func (s *Scheduler) processEvent(ctx context.Context, event core.CallbackEvent) (core.EventStatus, error) {
	// Re-read immediately before dispatching so an out-of-band terminal mark
	// wins over the claim we hold.
	fresh, err := s.events.Get(ctx, event.ID)
	if err != nil {
		return "", err
	}
	if fresh.Status.Terminal() {
		return fresh.Status, s.events.Release(ctx, core.ReleaseEventInput{
			EventID: fresh.ID,
			Owner:   s.owner,
			Status:  fresh.Status,
		})
	}

	destinations, err := s.registry.ResolveDestinations(ctx, fresh)
	if err != nil {
		return "", err
	}
	if len(destinations) == 0 {
		status := core.EventStatusSucceeded
		return status, s.events.Release(ctx, core.ReleaseEventInput{
			EventID: fresh.ID,
			Owner:   s.owner,
			Status:  status,
		})
	}

	cycle := s.deliverAll(ctx, fresh, destinations)
	if cycle.infraErr != nil {
		return "", cycle.infraErr
	}

	attempts := fresh.AttemptCount() + len(destinations)
	status, nextAttemptAt := s.decide(cycle, attempts)
	release := core.ReleaseEventInput{
		EventID:         fresh.ID,
		Owner:           s.owner,
		Status:          status,
		PayloadOutgoing: cycle.lastBody,
	}
	if nextAttemptAt != nil {
		release.NextAttemptAt = nextAttemptAt
	}
	return status, s.events.Release(ctx, release)
}

type deliveryCycle struct {
	succeeded  int
	transient  int
	permanent  int
	retryAfter time.Duration
	lastBody   []byte
	infraErr   error
}

func (s *Scheduler) deliverAll(ctx context.Context, event core.CallbackEvent, destinations []core.CallbackDestination) deliveryCycle {
	var cycle deliveryCycle
	for _, destination := range destinations {
		outcome, err := s.deliverer.Deliver(ctx, event, destination)
		if err != nil {
			cycle.infraErr = err
			return cycle
		}
		if len(outcome.Body) > 0 {
			cycle.lastBody = outcome.Body
		}
		switch {
		case outcome.Verdict.Succeeded:
			cycle.succeeded++
		case outcome.Verdict.Retryable:
			cycle.transient++
			if outcome.Verdict.RetryAfter > cycle.retryAfter {
				cycle.retryAfter = outcome.Verdict.RetryAfter
			}
		default:
			cycle.permanent++
		}
	}
	return cycle
}

// decide folds a cycle into the event's next status. The aggregate is the
// least successful destination outcome: one permanent rejection fails the
// event, one transient failure keeps it retrying until the attempt budget
// runs out.
func (s *Scheduler) decide(cycle deliveryCycle, attempts int) (core.EventStatus, *time.Time) {
	switch {
	case cycle.permanent > 0:
		return core.EventStatusFailed, nil
	case cycle.transient == 0:
		return core.EventStatusSucceeded, nil
	case attempts >= s.maxAttempts:
		return core.EventStatusFailed, nil
	}

	delay := s.policy.NextDelay(attempts - 1)
	if cycle.retryAfter > delay {
		delay = cycle.retryAfter
	}
	next := s.clock().Add(delay)
	return core.EventStatusRetrying, &next
}

func (s *Scheduler) clock() time.Time {
	if s != nil && s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

func (s *Scheduler) logError(message string, eventID string, err error) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Error(message, "event_id", eventID, "error", fmt.Sprint(err))
}
