package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type CreateCallbackInput struct {
	InstanceID  string
	Type        CallbackType
	URL         string
	Name        string
	Description string
	Schedule    *Schedule
}

type CreateDestinationInput struct {
	InstanceID    string
	Name          string
	Description   string
	URL           string
	SigningSecret string
	Rule          RoutingRule
}

type CreateEventInput struct {
	CallbackID      string
	InstanceID      string
	Type            string
	Status          EventStatus
	PayloadIncoming []byte
}

type AppendAttemptInput struct {
	EventID            string
	DestinationID      string
	Status             AttemptStatus
	ErrorCode          string
	ErrorMessage       string
	ResponseStatusCode int
	DurationMs         int64
}

// ReleaseEventInput finishes a leased dispatch cycle: the event's status,
// rendered body, and next-attempt time are stamped and the lease is dropped.
// Stores must refuse a release that would move an already-terminal event.
type ReleaseEventInput struct {
	EventID         string
	Owner           string
	Status          EventStatus
	PayloadOutgoing []byte
	NextAttemptAt   *time.Time
}

type CallbackStore interface {
	Create(ctx context.Context, in CreateCallbackInput) (Callback, error)
	Get(ctx context.Context, id string) (Callback, error)
	ListDuePolling(ctx context.Context, now time.Time, limit int) ([]Callback, error)
	AdvanceSchedule(ctx context.Context, id string, nextRunAt time.Time) error
	SoftDelete(ctx context.Context, id string) error
}

type DestinationReader interface {
	Get(ctx context.Context, id string) (CallbackDestination, error)
	ListActiveByInstance(ctx context.Context, instanceID string) ([]CallbackDestination, error)
}

type DestinationStore interface {
	DestinationReader
	Create(ctx context.Context, in CreateDestinationInput) (CallbackDestination, error)
	Deactivate(ctx context.Context, id string) error
}

type EventStore interface {
	Create(ctx context.Context, in CreateEventInput) (CallbackEvent, error)
	Get(ctx context.Context, id string) (CallbackEvent, error)
	// ClaimDue atomically leases due pending/retrying events for one worker.
	// A claimed event is invisible to other workers until its lease expires
	// or the worker releases it.
	ClaimDue(ctx context.Context, owner string, lease time.Duration, limit int) ([]CallbackEvent, error)
	AppendAttempt(ctx context.Context, in AppendAttemptInput) (ProcessingAttempt, error)
	Release(ctx context.Context, in ReleaseEventInput) error
	// MarkFailed terminally fails an event out-of-band, bypassing the lease.
	// The reason is preserved on the event's attempt history.
	MarkFailed(ctx context.Context, id string, reason string) error
}

// DeliveryClaim records one inbound provider delivery for replay suppression.
type DeliveryClaim struct {
	ID         string
	Source     string
	DeliveryID string
	EventID    string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// DeliveryClaimStore is the idempotency ledger for inbound webhooks. Claim is
// an atomic check-and-set: of two racing claims for the same key exactly one
// is accepted.
type DeliveryClaimStore interface {
	Claim(ctx context.Context, source string, deliveryID string, ttl time.Duration) (DeliveryClaim, bool, error)
	Resolve(ctx context.Context, source string, deliveryID string) (DeliveryClaim, error)
	Bind(ctx context.Context, claimID string, eventID string) error
}

type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}
