package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidCallbackType          = errors.New("core: invalid callback type")
	ErrInvalidRoutingRule           = errors.New("core: invalid routing rule")
	ErrInvalidEventStatusTransition = errors.New("core: invalid event status transition")
	ErrEventTerminal                = errors.New("core: event is in a terminal status")
	ErrScheduleRequired             = errors.New("core: polling callback requires a schedule")
	ErrEventNotFound                = errors.New("core: callback event not found")
	ErrCallbackNotFound             = errors.New("core: callback not found")
	ErrDestinationNotFound          = errors.New("core: callback destination not found")
)

type CallbackType string

const (
	CallbackTypeWebhookManaged CallbackType = "webhook_managed"
	CallbackTypeWebhookManual  CallbackType = "webhook_manual"
	CallbackTypePolling        CallbackType = "polling"
)

func (t CallbackType) Valid() bool {
	switch t {
	case CallbackTypeWebhookManaged, CallbackTypeWebhookManual, CallbackTypePolling:
		return true
	default:
		return false
	}
}

// Schedule drives pull-mode callbacks. NextRunAt is always advanced past now
// after each run, regardless of the run outcome.
type Schedule struct {
	IntervalSeconds int
	NextRunAt       time.Time
}

func (s *Schedule) Advance(now time.Time) {
	if s == nil {
		return
	}
	interval := s.IntervalSeconds
	if interval < 1 {
		interval = 1
	}
	s.NextRunAt = now.UTC().Add(time.Duration(interval) * time.Second)
}

type Callback struct {
	ID          string
	InstanceID  string
	Type        CallbackType
	URL         string
	Name        string
	Description string
	Schedule    *Schedule
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

func (c Callback) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("core: callback id is required")
	}
	if strings.TrimSpace(c.InstanceID) == "" {
		return fmt.Errorf("core: callback instance id is required")
	}
	if !c.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCallbackType, c.Type)
	}
	if c.Type == CallbackTypePolling {
		if c.Schedule == nil || c.Schedule.IntervalSeconds <= 0 {
			return ErrScheduleRequired
		}
	}
	return nil
}

type SelectionType string

const (
	SelectionTypeAll      SelectionType = "all"
	SelectionTypeSelected SelectionType = "selected"
)

// RoutingRule is the tagged variant deciding which callbacks a destination
// receives: every callback for the instance, or an explicit allow-list.
type RoutingRule struct {
	Type        SelectionType
	CallbackIDs []string
}

func (r RoutingRule) Validate() error {
	switch r.Type {
	case SelectionTypeAll:
		return nil
	case SelectionTypeSelected:
		if len(r.CallbackIDs) == 0 {
			return fmt.Errorf("%w: selected rule requires callback ids", ErrInvalidRoutingRule)
		}
		for _, id := range r.CallbackIDs {
			if strings.TrimSpace(id) == "" {
				return fmt.Errorf("%w: empty callback id in selection", ErrInvalidRoutingRule)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRoutingRule, r.Type)
	}
}

func (r RoutingRule) Matches(callbackID string) bool {
	callbackID = strings.TrimSpace(callbackID)
	switch r.Type {
	case SelectionTypeAll:
		return true
	case SelectionTypeSelected:
		for _, id := range r.CallbackIDs {
			if strings.TrimSpace(id) == callbackID {
				return true
			}
		}
		return false
	default:
		return false
	}
}

type DestinationStatus string

const (
	DestinationStatusActive   DestinationStatus = "active"
	DestinationStatusInactive DestinationStatus = "inactive"
)

const DestinationTypeWebhook = "webhook_http"

type CallbackDestination struct {
	ID          string
	InstanceID  string
	Type        string
	Name        string
	Description string
	URL         string
	// SigningSecret is write-once at creation and never presented back in
	// plaintext; deliveries carry only the derived signature.
	SigningSecret string
	Status        DestinationStatus
	Rule          RoutingRule
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type EventStatus string

const (
	EventStatusPending   EventStatus = "pending"
	EventStatusRetrying  EventStatus = "retrying"
	EventStatusSucceeded EventStatus = "succeeded"
	EventStatusFailed    EventStatus = "failed"
)

func (s EventStatus) Terminal() bool {
	return s == EventStatusSucceeded || s == EventStatusFailed
}

type AttemptStatus string

const (
	AttemptStatusSucceeded AttemptStatus = "succeeded"
	AttemptStatusFailed    AttemptStatus = "failed"
)

// Error codes for attempts the engine synthesizes itself rather than deriving
// from a destination response.
const (
	AttemptErrorCodeMarkedFailed = "marked_failed"
	AttemptErrorCodePollFailed   = "poll_failed"
)

// ProcessingAttempt is the immutable record of one delivery try. Attempts for
// an event are append-only, ordered by a contiguous 0-based Index.
type ProcessingAttempt struct {
	ID                 string
	EventID            string
	Index              int
	DestinationID      string
	Status             AttemptStatus
	ErrorCode          string
	ErrorMessage       string
	ResponseStatusCode int
	DurationMs         int64
	CreatedAt          time.Time
}

type CallbackEvent struct {
	ID         string
	CallbackID string
	InstanceID string
	Type       string
	Status     EventStatus
	// PayloadIncoming holds the raw trigger bytes verbatim; immutable once set.
	PayloadIncoming []byte
	// PayloadOutgoing is the last-rendered delivery body; nil before the
	// first attempt.
	PayloadOutgoing []byte
	Attempts        []ProcessingAttempt
	NextAttemptAt   *time.Time
	LeaseOwner      string
	LeaseExpiresAt  *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TransitionTo enforces the monotonic lifecycle
// pending -> retrying* -> {succeeded | failed}. Terminal statuses never change.
func (e *CallbackEvent) TransitionTo(status EventStatus, now time.Time) error {
	if e == nil {
		return nil
	}
	if e.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrEventTerminal, e.Status)
	}
	if !eventTransitionAllowed(e.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidEventStatusTransition, e.Status, status)
	}
	e.Status = status
	e.UpdatedAt = now.UTC()
	return nil
}

func eventTransitionAllowed(current, next EventStatus) bool {
	switch current {
	case EventStatusPending:
		return next == EventStatusRetrying || next == EventStatusSucceeded || next == EventStatusFailed
	case EventStatusRetrying:
		return next == EventStatusRetrying || next == EventStatusSucceeded || next == EventStatusFailed
	default:
		return false
	}
}

// AttemptCount reports how many attempts have been recorded for the event.
func (e *CallbackEvent) AttemptCount() int {
	if e == nil {
		return 0
	}
	return len(e.Attempts)
}
