package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	JobIDEventDispatch = "callbacks.event.dispatch"
	JobIDCallbackPoll  = "callbacks.poll.run"
)

// EventTypePollFailed marks events that record a failed poll rather than a
// pulled trigger.
const EventTypePollFailed = "callback.poll_failed"

// Engine owns the event lifecycle between ingestion and dispatch: it records
// normalized events, routes them, and hands due work to the queue. Delivery
// itself lives in the dispatch package; timing in the schedule package.
type Engine struct {
	config   Config
	logger   Logger
	provider LoggerProvider
	metrics  MetricsRecorder
	mapError ErrorMapper

	callbacks    CallbackStore
	destinations DestinationReader
	events       EventStore
	claims       DeliveryClaimStore
	enqueuer     JobEnqueuer
	registry     *Registry

	now func() time.Time
}

func NewEngine(runtime Config, options ...Option) (*Engine, error) {
	builder := defaultEngineBuilder(runtime)
	for _, option := range options {
		if option == nil {
			continue
		}
		option(&builder)
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, fmt.Errorf("core: load config: %w", err)
	}
	resolved, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, fmt.Errorf("core: resolve config: %w", err)
	}

	if builder.callbackStore == nil {
		return nil, fmt.Errorf("core: callback store is required")
	}
	if builder.destinations == nil {
		return nil, fmt.Errorf("core: destination reader is required")
	}
	if builder.eventStore == nil {
		return nil, fmt.Errorf("core: event store is required")
	}

	registry, err := NewRegistry(builder.callbackStore, builder.destinations)
	if err != nil {
		return nil, err
	}

	return &Engine{
		config:       resolved,
		logger:       builder.logger,
		provider:     builder.loggerProvider,
		metrics:      builder.metricsRecorder,
		mapError:     builder.errorMapper,
		callbacks:    builder.callbackStore,
		destinations: builder.destinations,
		events:       builder.eventStore,
		claims:       builder.claimStore,
		enqueuer:     builder.enqueuer,
		registry:     registry,
		now:          builder.now,
	}, nil
}

func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return e.config
}

func (e *Engine) Registry() *Registry {
	if e == nil {
		return nil
	}
	return e.registry
}

func (e *Engine) Callbacks() CallbackStore {
	if e == nil {
		return nil
	}
	return e.callbacks
}

func (e *Engine) Destinations() DestinationReader {
	if e == nil {
		return nil
	}
	return e.destinations
}

func (e *Engine) EventStore() EventStore {
	if e == nil {
		return nil
	}
	return e.events
}

func (e *Engine) DeliveryClaims() DeliveryClaimStore {
	if e == nil {
		return nil
	}
	return e.claims
}

type NewEventInput struct {
	CallbackID string
	Type       string
	Payload    []byte
}

// RecordEvent persists a pending event for an already-normalized trigger and
// enqueues its first dispatch. A callback with zero matching destinations is
// a valid no-op sink: the event is recorded terminally succeeded with zero
// attempts and never enters the dispatch queue.
func (e *Engine) RecordEvent(ctx context.Context, in NewEventInput) (CallbackEvent, error) {
	startedAt := e.clock()
	event, err := e.recordEvent(ctx, in)
	e.observeOperation(ctx, startedAt, "event_record", err, map[string]any{
		"callback_id": in.CallbackID,
		"event_type":  in.Type,
	})
	if err != nil {
		return CallbackEvent{}, e.wrapError(err)
	}
	return event, nil
}

func (e *Engine) recordEvent(ctx context.Context, in NewEventInput) (CallbackEvent, error) {
	if e == nil || e.events == nil {
		return CallbackEvent{}, fmt.Errorf("core: engine is not configured")
	}
	callbackID := strings.TrimSpace(in.CallbackID)
	if callbackID == "" {
		return CallbackEvent{}, fmt.Errorf("core: callback id is required")
	}
	eventType := strings.TrimSpace(in.Type)
	if eventType == "" {
		return CallbackEvent{}, fmt.Errorf("core: event type is required")
	}

	callback, err := e.callbacks.Get(ctx, callbackID)
	if err != nil {
		return CallbackEvent{}, err
	}
	if callback.DeletedAt != nil {
		return CallbackEvent{}, fmt.Errorf("%w: %s", ErrCallbackNotFound, callbackID)
	}

	routeKey := CallbackEvent{
		CallbackID: callback.ID,
		InstanceID: callback.InstanceID,
	}
	destinations, err := e.registry.ResolveDestinations(ctx, routeKey)
	if err != nil {
		return CallbackEvent{}, err
	}

	status := EventStatusPending
	if len(destinations) == 0 {
		status = EventStatusSucceeded
	}

	event, err := e.events.Create(ctx, CreateEventInput{
		CallbackID:      callback.ID,
		InstanceID:      callback.InstanceID,
		Type:            eventType,
		Status:          status,
		PayloadIncoming: in.Payload,
	})
	if err != nil {
		return CallbackEvent{}, err
	}

	if status == EventStatusPending {
		if err := e.enqueueDispatch(ctx, event.ID); err != nil {
			return CallbackEvent{}, err
		}
	}
	return event, nil
}

func (e *Engine) enqueueDispatch(ctx context.Context, eventID string) error {
	if e.enqueuer == nil {
		return nil
	}
	return e.enqueuer.Enqueue(ctx, &JobExecutionMessage{
		JobID:          JobIDEventDispatch,
		Parameters:     map[string]any{"event_id": eventID},
		IdempotencyKey: "dispatch:" + eventID,
	})
}

func (e *Engine) GetEvent(ctx context.Context, id string) (CallbackEvent, error) {
	if e == nil || e.events == nil {
		return CallbackEvent{}, fmt.Errorf("core: engine is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return CallbackEvent{}, e.wrapError(fmt.Errorf("core: event id is required"))
	}
	event, err := e.events.Get(ctx, id)
	if err != nil {
		return CallbackEvent{}, e.wrapError(err)
	}
	return event, nil
}

// MarkEventFailed administratively fails an event. The scheduler re-checks
// terminal status immediately before each dispatch, so an in-flight attempt
// cannot resurrect the event.
func (e *Engine) MarkEventFailed(ctx context.Context, id string, reason string) error {
	startedAt := e.clock()
	err := e.markEventFailed(ctx, id, reason)
	e.observeOperation(ctx, startedAt, "event_mark_failed", err, map[string]any{
		"event_id": id,
	})
	if err != nil {
		return e.wrapError(err)
	}
	return nil
}

func (e *Engine) markEventFailed(ctx context.Context, id string, reason string) error {
	if e == nil || e.events == nil {
		return fmt.Errorf("core: engine is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("core: event id is required")
	}
	return e.events.MarkFailed(ctx, id, strings.TrimSpace(reason))
}

// RecordPollFailure records a terminally failed event for a polling callback
// whose fetch errored, so the failure is visible through the normal event
// surface: one failed event carrying a single attempt with the fetch error.
func (e *Engine) RecordPollFailure(ctx context.Context, callbackID string, cause string) (CallbackEvent, error) {
	startedAt := e.clock()
	event, err := e.recordPollFailure(ctx, callbackID, cause)
	e.observeOperation(ctx, startedAt, "poll_failure_record", err, map[string]any{
		"callback_id": callbackID,
	})
	if err != nil {
		return CallbackEvent{}, e.wrapError(err)
	}
	return event, nil
}

func (e *Engine) recordPollFailure(ctx context.Context, callbackID string, cause string) (CallbackEvent, error) {
	if e == nil || e.events == nil {
		return CallbackEvent{}, fmt.Errorf("core: engine is not configured")
	}
	callbackID = strings.TrimSpace(callbackID)
	if callbackID == "" {
		return CallbackEvent{}, fmt.Errorf("core: callback id is required")
	}
	callback, err := e.callbacks.Get(ctx, callbackID)
	if err != nil {
		return CallbackEvent{}, err
	}

	event, err := e.events.Create(ctx, CreateEventInput{
		CallbackID: callback.ID,
		InstanceID: callback.InstanceID,
		Type:       EventTypePollFailed,
		Status:     EventStatusFailed,
	})
	if err != nil {
		return CallbackEvent{}, err
	}
	if _, err := e.events.AppendAttempt(ctx, AppendAttemptInput{
		EventID:      event.ID,
		Status:       AttemptStatusFailed,
		ErrorCode:    AttemptErrorCodePollFailed,
		ErrorMessage: strings.TrimSpace(cause),
	}); err != nil {
		return CallbackEvent{}, err
	}
	return e.events.Get(ctx, event.ID)
}

// ReplayEvent re-delivers a terminal event by recording a fresh copy with the
// same trigger payload; the original attempt history stays immutable.
func (e *Engine) ReplayEvent(ctx context.Context, id string) (CallbackEvent, error) {
	startedAt := e.clock()
	replayed, err := e.replayEvent(ctx, id)
	e.observeOperation(ctx, startedAt, "event_replay", err, map[string]any{
		"event_id": id,
	})
	if err != nil {
		return CallbackEvent{}, e.wrapError(err)
	}
	return replayed, nil
}

func (e *Engine) replayEvent(ctx context.Context, id string) (CallbackEvent, error) {
	if e == nil || e.events == nil {
		return CallbackEvent{}, fmt.Errorf("core: engine is not configured")
	}
	original, err := e.events.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return CallbackEvent{}, err
	}
	if !original.Status.Terminal() {
		return CallbackEvent{}, fmt.Errorf("core: event %s is still in flight and cannot be replayed", original.ID)
	}
	return e.recordEvent(ctx, NewEventInput{
		CallbackID: original.CallbackID,
		Type:       original.Type,
		Payload:    original.PayloadIncoming,
	})
}

func (e *Engine) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if e == nil || e.mapError == nil {
		return callbackErrorMapper(err)
	}
	mapped := e.mapError(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (e *Engine) clock() time.Time {
	if e != nil && e.now != nil {
		return e.now().UTC()
	}
	return time.Now().UTC()
}
