package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/metorial/go-callbacks/core"
)

// Trigger is one pulled occurrence from a polling callback's source.
type Trigger struct {
	Type    string
	Payload []byte
}

// Fetcher pulls pending triggers from a polling callback's upstream.
type Fetcher interface {
	Fetch(ctx context.Context, callback core.Callback) ([]Trigger, error)
}

// EventRecorder persists poll outcomes as callback events; the core engine
// satisfies it. Failed fetches are recorded too, so a broken upstream is
// visible through the event surface and not just in logs.
type EventRecorder interface {
	RecordEvent(ctx context.Context, in core.NewEventInput) (core.CallbackEvent, error)
	RecordPollFailure(ctx context.Context, callbackID string, cause string) (core.CallbackEvent, error)
}

// Poller runs due polling callbacks. The schedule always advances by the
// callback's interval, fetch outcome notwithstanding: a broken upstream slows
// nothing down and floods nothing.
type Poller struct {
	registry  *core.Registry
	callbacks core.CallbackStore
	recorder  EventRecorder
	fetcher   Fetcher
	batchSize int
	logger    core.Logger
	now       func() time.Time
}

type PollerOption func(*Poller)

func WithPollBatchSize(size int) PollerOption {
	return func(p *Poller) {
		if size > 0 {
			p.batchSize = size
		}
	}
}

func WithPollLogger(logger core.Logger) PollerOption {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithPollClock(now func() time.Time) PollerOption {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPoller(
	registry *core.Registry,
	callbacks core.CallbackStore,
	recorder EventRecorder,
	fetcher Fetcher,
	options ...PollerOption,
) (*Poller, error) {
	if registry == nil {
		return nil, fmt.Errorf("schedule: registry is required")
	}
	if callbacks == nil {
		return nil, fmt.Errorf("schedule: callback store is required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("schedule: event recorder is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("schedule: fetcher is required")
	}
	poller := &Poller{
		registry:  registry,
		callbacks: callbacks,
		recorder:  recorder,
		fetcher:   fetcher,
		batchSize: 20,
		now:       time.Now,
	}
	for _, option := range options {
		if option != nil {
			option(poller)
		}
	}
	return poller, nil
}

// PollResult summarizes one polling pass.
type PollResult struct {
	Due      int
	Recorded int
	Errors   int
}

// RunOnce fetches triggers for every due polling callback and records them as
// events. Each callback's nextRunAt is advanced unconditionally.
func (p *Poller) RunOnce(ctx context.Context) (PollResult, error) {
	if p == nil || p.registry == nil {
		return PollResult{}, fmt.Errorf("schedule: poller is not configured")
	}
	now := p.clock()
	due, err := p.registry.GetDueCallbacks(ctx, now, p.batchSize)
	if err != nil {
		return PollResult{}, fmt.Errorf("schedule: list due callbacks: %w", err)
	}

	result := PollResult{Due: len(due)}
	for _, callback := range due {
		recorded, err := p.pollOne(ctx, callback, now)
		result.Recorded += recorded
		if err != nil {
			result.Errors++
			p.logError("poll run failed", callback.ID, err)
		}
	}
	return result, nil
}

func (p *Poller) pollOne(ctx context.Context, callback core.Callback, now time.Time) (int, error) {
	schedule := callback.Schedule
	if schedule == nil {
		return 0, fmt.Errorf("schedule: callback %s has no schedule", callback.ID)
	}
	schedule.Advance(now)
	if err := p.callbacks.AdvanceSchedule(ctx, callback.ID, schedule.NextRunAt); err != nil {
		return 0, err
	}

	triggers, err := p.fetcher.Fetch(ctx, callback)
	if err != nil {
		if _, recordErr := p.recorder.RecordPollFailure(ctx, callback.ID, err.Error()); recordErr != nil {
			p.logError("poll failure record failed", callback.ID, recordErr)
		}
		return 0, err
	}
	recorded := 0
	for _, trigger := range triggers {
		if _, err := p.recorder.RecordEvent(ctx, core.NewEventInput{
			CallbackID: callback.ID,
			Type:       trigger.Type,
			Payload:    trigger.Payload,
		}); err != nil {
			return recorded, err
		}
		recorded++
	}
	return recorded, nil
}

func (p *Poller) clock() time.Time {
	if p != nil && p.now != nil {
		return p.now().UTC()
	}
	return time.Now().UTC()
}

func (p *Poller) logError(message string, callbackID string, err error) {
	if p == nil || p.logger == nil {
		return
	}
	p.logger.Error(message, "callback_id", callbackID, "error", fmt.Sprint(err))
}

// HTTPFetcher pulls triggers with a GET against the callback URL. The
// upstream responds with {"events": [{"type": ..., "payload": ...}]}.
type HTTPFetcher struct {
	Client  *http.Client
	Timeout time.Duration
	MaxBody int64
}

func NewHTTPFetcher() HTTPFetcher {
	return HTTPFetcher{Timeout: 15 * time.Second, MaxBody: 1 << 20}
}

func (f HTTPFetcher) Fetch(ctx context.Context, callback core.Callback) ([]Trigger, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, callback.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("schedule: build poll request for %s: %w", callback.ID, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("schedule: poll %s: %w", callback.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("schedule: poll %s: upstream responded %d", callback.ID, resp.StatusCode)
	}

	maxBody := f.MaxBody
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("schedule: read poll response for %s: %w", callback.ID, err)
	}

	var envelope struct {
		Events []struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		} `json:"events"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("schedule: decode poll response for %s: %w", callback.ID, err)
	}
	triggers := make([]Trigger, 0, len(envelope.Events))
	for _, event := range envelope.Events {
		triggers = append(triggers, Trigger{
			Type:    event.Type,
			Payload: []byte(event.Payload),
		})
	}
	return triggers, nil
}

var _ Fetcher = HTTPFetcher{}
