package dispatch

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/metorial/go-callbacks/core"
)

type stubEventStore struct {
	attempts []core.AppendAttemptInput
	failNext error
}

func (s *stubEventStore) Create(ctx context.Context, in core.CreateEventInput) (core.CallbackEvent, error) {
	return core.CallbackEvent{}, nil
}

func (s *stubEventStore) Get(ctx context.Context, id string) (core.CallbackEvent, error) {
	return core.CallbackEvent{}, core.ErrEventNotFound
}

func (s *stubEventStore) ClaimDue(ctx context.Context, owner string, lease time.Duration, limit int) ([]core.CallbackEvent, error) {
	return nil, nil
}

func (s *stubEventStore) AppendAttempt(ctx context.Context, in core.AppendAttemptInput) (core.ProcessingAttempt, error) {
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return core.ProcessingAttempt{}, err
	}
	s.attempts = append(s.attempts, in)
	return core.ProcessingAttempt{
		ID:                 "att_test",
		EventID:            in.EventID,
		Index:              len(s.attempts) - 1,
		DestinationID:      in.DestinationID,
		Status:             in.Status,
		ErrorCode:          in.ErrorCode,
		ErrorMessage:       in.ErrorMessage,
		ResponseStatusCode: in.ResponseStatusCode,
		DurationMs:         in.DurationMs,
	}, nil
}

func (s *stubEventStore) Release(ctx context.Context, in core.ReleaseEventInput) error {
	return nil
}

func (s *stubEventStore) MarkFailed(ctx context.Context, id string, reason string) error {
	return nil
}

func testEvent() core.CallbackEvent {
	return core.CallbackEvent{
		ID:              "evt_1",
		CallbackID:      "cb_1",
		InstanceID:      "inst_1",
		Type:            "session.completed",
		Status:          core.EventStatusPending,
		PayloadIncoming: []byte(`{"session":"ses_9"}`),
	}
}

func testDestination(targetURL string) core.CallbackDestination {
	return core.CallbackDestination{
		ID:            "dst_1",
		InstanceID:    "inst_1",
		Type:          core.DestinationTypeWebhook,
		URL:           targetURL,
		SigningSecret: "whsec_test",
		Status:        core.DestinationStatusActive,
		Rule:          core.RoutingRule{Type: core.SelectionTypeAll},
	}
}

func TestDeliverSuccessSignsAndRecordsAttempt(t *testing.T) {
	var gotSignature, gotEventID, gotCallbackID string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get(HeaderSignature)
		gotEventID = r.Header.Get(HeaderEventID)
		gotCallbackID = r.Header.Get(HeaderCallbackID)
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = buf
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := &stubEventStore{}
	dispatcher, err := NewDispatcher(store)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	outcome, err := dispatcher.Deliver(context.Background(), testEvent(), testDestination(server.URL))
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if !outcome.Verdict.Succeeded {
		t.Fatal("expected delivery to succeed")
	}
	if outcome.Attempt.Status != core.AttemptStatusSucceeded {
		t.Fatalf("unexpected attempt status %q", outcome.Attempt.Status)
	}
	if outcome.Attempt.ResponseStatusCode != http.StatusOK {
		t.Fatalf("unexpected response status %d", outcome.Attempt.ResponseStatusCode)
	}
	if len(store.attempts) != 1 {
		t.Fatalf("expected exactly one recorded attempt, got %d", len(store.attempts))
	}

	if gotEventID != "evt_1" || gotCallbackID != "cb_1" {
		t.Fatalf("unexpected identity headers %q %q", gotEventID, gotCallbackID)
	}

	mac := hmac.New(sha256.New, []byte("whsec_test"))
	mac.Write(gotBody)
	want := SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
	if gotSignature != want {
		t.Fatalf("signature mismatch: got %q want %q", gotSignature, want)
	}

	var envelope map[string]any
	if err := json.Unmarshal(gotBody, &envelope); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if envelope["object"] != "callback.event" {
		t.Fatalf("unexpected object %v", envelope["object"])
	}
	if envelope["event_id"] != "evt_1" || envelope["type"] != "session.completed" {
		t.Fatalf("unexpected envelope %v", envelope)
	}
}

func TestDeliverClientErrorIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	store := &stubEventStore{}
	dispatcher, err := NewDispatcher(store)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	outcome, err := dispatcher.Deliver(context.Background(), testEvent(), testDestination(server.URL))
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if outcome.Verdict.Succeeded || outcome.Verdict.Retryable {
		t.Fatalf("expected permanent failure, got %+v", outcome.Verdict)
	}
	if outcome.Attempt.Status != core.AttemptStatusFailed {
		t.Fatalf("unexpected attempt status %q", outcome.Attempt.Status)
	}
	if outcome.Attempt.ErrorCode != ErrCodeDestinationRejected {
		t.Fatalf("unexpected error code %q", outcome.Attempt.ErrorCode)
	}
	if outcome.Attempt.ResponseStatusCode != http.StatusNotFound {
		t.Fatalf("unexpected response status %d", outcome.Attempt.ResponseStatusCode)
	}
}

func TestDeliverServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	store := &stubEventStore{}
	dispatcher, err := NewDispatcher(store)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	outcome, err := dispatcher.Deliver(context.Background(), testEvent(), testDestination(server.URL))
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if !outcome.Verdict.Retryable {
		t.Fatal("expected 502 to be retryable")
	}
	if outcome.Attempt.ErrorCode != ErrCodeDestinationError {
		t.Fatalf("unexpected error code %q", outcome.Attempt.ErrorCode)
	}
}

func TestDeliverRateLimitCarriesHint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "45")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	store := &stubEventStore{}
	dispatcher, err := NewDispatcher(store)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	outcome, err := dispatcher.Deliver(context.Background(), testEvent(), testDestination(server.URL))
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if !outcome.Verdict.Retryable {
		t.Fatal("expected 429 to be retryable")
	}
	if outcome.Verdict.RetryAfter != 45*time.Second {
		t.Fatalf("expected 45s hint, got %s", outcome.Verdict.RetryAfter)
	}
}

func TestDeliverMalformedURLIsPermanent(t *testing.T) {
	store := &stubEventStore{}
	dispatcher, err := NewDispatcher(store)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	outcome, err := dispatcher.Deliver(context.Background(), testEvent(), testDestination("://not-a-url"))
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if outcome.Verdict.Retryable {
		t.Fatal("expected malformed url to be permanent")
	}
	if outcome.Attempt.ErrorCode != ErrCodeInvalidURL {
		t.Fatalf("unexpected error code %q", outcome.Attempt.ErrorCode)
	}
}

func TestRenderBodyNonJSONPayload(t *testing.T) {
	event := testEvent()
	event.PayloadIncoming = []byte("plain text body")

	body, err := RenderBody(event)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	var envelope struct {
		Payload string `json:"payload"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Payload != "plain text body" {
		t.Fatalf("unexpected payload %q", envelope.Payload)
	}
}
