package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/metorial/go-callbacks/core"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultMaxBodyBytes = 64 * 1024
	defaultUserAgent    = "metorial-callbacks/1.0"
)

// HTTPDoer is the transport seam; *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Dispatcher performs one signed HTTP delivery per destination and records
// the attempt. It never transitions event status; the scheduler owns that.
type Dispatcher struct {
	client  HTTPDoer
	events  core.EventStore
	timeout time.Duration
	maxBody int64
	agent   string
	now     func() time.Time
}

type DispatcherOption func(*Dispatcher)

func WithHTTPClient(client HTTPDoer) DispatcherOption {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func WithUserAgent(agent string) DispatcherOption {
	return func(d *Dispatcher) {
		if strings.TrimSpace(agent) != "" {
			d.agent = strings.TrimSpace(agent)
		}
	}
}

func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

func NewDispatcher(events core.EventStore, options ...DispatcherOption) (*Dispatcher, error) {
	if events == nil {
		return nil, fmt.Errorf("dispatch: event store is required")
	}
	dispatcher := &Dispatcher{
		client:  &http.Client{},
		events:  events,
		timeout: defaultTimeout,
		maxBody: defaultMaxBodyBytes,
		agent:   defaultUserAgent,
		now:     time.Now,
	}
	for _, option := range options {
		if option != nil {
			option(dispatcher)
		}
	}
	return dispatcher, nil
}

// DeliveryOutcome is the result of one destination delivery: the recorded
// attempt, the body that was sent, and the retry verdict.
type DeliveryOutcome struct {
	Attempt core.ProcessingAttempt
	Body    []byte
	Verdict Verdict
}

// Deliver renders the outbound body, signs it with the destination secret,
// posts it, and appends exactly one processing attempt. Delivery failures are
// encoded in the outcome; the error return is reserved for infrastructure
// faults such as the attempt insert failing.
func (d *Dispatcher) Deliver(ctx context.Context, event core.CallbackEvent, destination core.CallbackDestination) (DeliveryOutcome, error) {
	if d == nil || d.events == nil {
		return DeliveryOutcome{}, fmt.Errorf("dispatch: dispatcher is not configured")
	}

	body, err := RenderBody(event)
	if err != nil {
		return d.recordOutcome(ctx, event, destination, nil, Verdict{
			Retryable: false,
			ErrorCode: ErrCodeRequestError,
		}, 0, 0, err.Error())
	}

	verdict, statusCode, duration, message := d.post(ctx, destination, event, body)
	return d.recordOutcome(ctx, event, destination, body, verdict, statusCode, duration, message)
}

func (d *Dispatcher) post(ctx context.Context, destination core.CallbackDestination, event core.CallbackEvent, body []byte) (Verdict, int, time.Duration, string) {
	signature, err := SignBody(destination.SigningSecret, body)
	if err != nil {
		return Verdict{Retryable: false, ErrorCode: ErrCodeRequestError}, 0, 0, err.Error()
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, destination.URL, bytes.NewReader(body))
	if err != nil {
		return Verdict{Retryable: false, ErrorCode: ErrCodeInvalidURL}, 0, 0, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.agent)
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderEventID, event.ID)
	req.Header.Set(HeaderCallbackID, event.CallbackID)

	startedAt := d.clock()
	resp, err := d.client.Do(req)
	duration := d.clock().Sub(startedAt)
	if err != nil {
		verdict := classifyError(err)
		return verdict, 0, duration, err.Error()
	}
	defer resp.Body.Close()
	// Drain a bounded amount so the transport can reuse the connection.
	io.Copy(io.Discard, io.LimitReader(resp.Body, d.maxBody))

	verdict := classifyResponse(resp, d.clock())
	message := ""
	if !verdict.Succeeded {
		message = fmt.Sprintf("destination responded %d", resp.StatusCode)
	}
	return verdict, resp.StatusCode, duration, message
}

func (d *Dispatcher) recordOutcome(
	ctx context.Context,
	event core.CallbackEvent,
	destination core.CallbackDestination,
	body []byte,
	verdict Verdict,
	statusCode int,
	duration time.Duration,
	message string,
) (DeliveryOutcome, error) {
	status := core.AttemptStatusFailed
	if verdict.Succeeded {
		status = core.AttemptStatusSucceeded
	}
	attempt, err := d.events.AppendAttempt(ctx, core.AppendAttemptInput{
		EventID:            event.ID,
		DestinationID:      destination.ID,
		Status:             status,
		ErrorCode:          verdict.ErrorCode,
		ErrorMessage:       message,
		ResponseStatusCode: statusCode,
		DurationMs:         duration.Milliseconds(),
	})
	if err != nil {
		return DeliveryOutcome{}, fmt.Errorf("dispatch: append attempt for event %s: %w", event.ID, err)
	}
	return DeliveryOutcome{Attempt: attempt, Body: body, Verdict: verdict}, nil
}

func (d *Dispatcher) clock() time.Time {
	if d != nil && d.now != nil {
		return d.now()
	}
	return time.Now()
}

// deliveryBody is the wire shape of an outbound delivery.
type deliveryBody struct {
	Object     string          `json:"object"`
	EventID    string          `json:"event_id"`
	CallbackID string          `json:"callback_id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
}

// RenderBody builds the canonical delivery envelope. The trigger payload is
// embedded verbatim when it is valid JSON and as a JSON string otherwise.
func RenderBody(event core.CallbackEvent) ([]byte, error) {
	payload := json.RawMessage("null")
	if len(event.PayloadIncoming) > 0 {
		if json.Valid(event.PayloadIncoming) {
			payload = json.RawMessage(event.PayloadIncoming)
		} else {
			encoded, err := json.Marshal(string(event.PayloadIncoming))
			if err != nil {
				return nil, fmt.Errorf("dispatch: encode payload for event %s: %w", event.ID, err)
			}
			payload = encoded
		}
	}
	body, err := json.Marshal(deliveryBody{
		Object:     "callback.event",
		EventID:    event.ID,
		CallbackID: event.CallbackID,
		Type:       event.Type,
		Payload:    payload,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch: render body for event %s: %w", event.ID, err)
	}
	return body, nil
}
