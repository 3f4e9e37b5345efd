package ingest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/metorial/go-callbacks/core"
)

// Delivery is one raw inbound webhook as received from a provider.
type Delivery struct {
	// CallbackID names the managed webhook callback this delivery belongs to.
	CallbackID string
	// Source identifies the provider; it scopes the dedupe key.
	Source string
	// DeliveryID is the provider's unique id for this delivery.
	DeliveryID string
	// EventType is the declared type header, optional when the body carries one.
	EventType string
	// Signature is the raw signature header value.
	Signature string
	Body      []byte
}

// Result reports how a delivery was ingested. Duplicate deliveries are
// accepted with no effect and point at the originally recorded event.
type Result struct {
	EventID   string
	Duplicate bool
}

// EventRecorder persists a normalized trigger as a callback event; the core
// engine satisfies it.
type EventRecorder interface {
	RecordEvent(ctx context.Context, in core.NewEventInput) (core.CallbackEvent, error)
}

// SecretResolver returns the shared secret used to verify deliveries for a
// callback. Resolution failure fails the delivery closed.
type SecretResolver func(ctx context.Context, callbackID string) (string, error)

// Endpoint is the ingestion pipeline for inbound webhooks:
// verify -> claim -> normalize -> record.
type Endpoint struct {
	recorder   EventRecorder
	verifier   Verifier
	claims     core.DeliveryClaimStore
	normalizer Normalizer
	secrets    SecretResolver
	claimTTL   time.Duration
	logger     core.Logger
}

type EndpointOption func(*Endpoint)

func WithVerifier(verifier Verifier) EndpointOption {
	return func(e *Endpoint) {
		if verifier != nil {
			e.verifier = verifier
		}
	}
}

func WithNormalizer(normalizer Normalizer) EndpointOption {
	return func(e *Endpoint) {
		if normalizer != nil {
			e.normalizer = normalizer
		}
	}
}

func WithClaimTTL(ttl time.Duration) EndpointOption {
	return func(e *Endpoint) {
		if ttl > 0 {
			e.claimTTL = ttl
		}
	}
}

func WithLogger(logger core.Logger) EndpointOption {
	return func(e *Endpoint) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func NewEndpoint(
	recorder EventRecorder,
	claims core.DeliveryClaimStore,
	secrets SecretResolver,
	options ...EndpointOption,
) (*Endpoint, error) {
	if recorder == nil {
		return nil, ingestInternal("ingest: event recorder is required", nil)
	}
	if claims == nil {
		return nil, ingestInternal("ingest: delivery claim store is required", nil)
	}
	if secrets == nil {
		return nil, ingestInternal("ingest: secret resolver is required", nil)
	}
	endpoint := &Endpoint{
		recorder:   recorder,
		verifier:   NewHMACVerifier(),
		claims:     claims,
		normalizer: NewJSONNormalizer(),
		secrets:    secrets,
		claimTTL:   72 * time.Hour,
	}
	for _, option := range options {
		if option != nil {
			option(endpoint)
		}
	}
	return endpoint, nil
}

// Ingest runs one delivery through the pipeline. Verification happens before
// the dedupe claim so forged deliveries can never poison the claim ledger.
func (e *Endpoint) Ingest(ctx context.Context, delivery Delivery) (Result, error) {
	if e == nil {
		return Result{}, ingestInternal("ingest: endpoint is nil", nil)
	}
	delivery.CallbackID = strings.TrimSpace(delivery.CallbackID)
	delivery.Source = strings.TrimSpace(delivery.Source)
	delivery.DeliveryID = strings.TrimSpace(delivery.DeliveryID)
	if delivery.CallbackID == "" {
		return Result{}, ingestBadInput("ingest: callback id is required", nil)
	}
	if delivery.Source == "" {
		return Result{}, ingestBadInput("ingest: delivery source is required", metadataFor(delivery))
	}
	if delivery.DeliveryID == "" {
		return Result{}, ingestBadInput("ingest: delivery id is required", metadataFor(delivery))
	}
	if strings.TrimSpace(delivery.Signature) == "" {
		return Result{}, ingestUnauthorized(nil, "ingest: signature header is required", metadataFor(delivery))
	}

	secret, err := e.secrets(ctx, delivery.CallbackID)
	if err != nil {
		return Result{}, ingestUnauthorized(err, "ingest: resolve signing secret", metadataFor(delivery))
	}
	if err := e.verifier.Verify(ctx, delivery.Body, delivery.Signature, secret); err != nil {
		e.logWarn("delivery rejected", delivery, err)
		return Result{}, ingestUnauthorized(err, "ingest: delivery verification failed", metadataFor(delivery))
	}

	claim, accepted, err := e.claims.Claim(ctx, delivery.Source, delivery.DeliveryID, e.claimTTL)
	if err != nil {
		return Result{}, ingestWrapError(
			err,
			goerrors.CategoryOperation,
			"ingest: delivery claim failed",
			http.StatusInternalServerError,
			core.CallbackErrorInternal,
			metadataFor(delivery),
		)
	}
	if !accepted {
		e.logInfo("duplicate delivery folded", delivery, claim.EventID)
		return Result{EventID: claim.EventID, Duplicate: true}, nil
	}

	trigger, err := e.normalizer.Normalize(delivery)
	if err != nil {
		return Result{}, err
	}

	event, err := e.recorder.RecordEvent(ctx, core.NewEventInput{
		CallbackID: delivery.CallbackID,
		Type:       trigger.Type,
		Payload:    trigger.Payload,
	})
	if err != nil {
		return Result{}, err
	}
	if err := e.claims.Bind(ctx, claim.ID, event.ID); err != nil {
		return Result{}, ingestWrapError(
			err,
			goerrors.CategoryOperation,
			"ingest: bind delivery claim",
			http.StatusInternalServerError,
			core.CallbackErrorInternal,
			metadataFor(delivery),
		)
	}
	return Result{EventID: event.ID}, nil
}

func (e *Endpoint) logInfo(message string, delivery Delivery, eventID string) {
	if e == nil || e.logger == nil {
		return
	}
	e.logger.Info(message,
		"callback_id", delivery.CallbackID,
		"source", delivery.Source,
		"delivery_id", delivery.DeliveryID,
		"event_id", eventID,
	)
}

func (e *Endpoint) logWarn(message string, delivery Delivery, err error) {
	if e == nil || e.logger == nil {
		return
	}
	e.logger.Warn(message,
		"callback_id", delivery.CallbackID,
		"source", delivery.Source,
		"delivery_id", delivery.DeliveryID,
		"error", fmt.Sprint(err),
	)
}

func metadataFor(delivery Delivery) map[string]any {
	return map[string]any{
		"callback_id": delivery.CallbackID,
		"source":      delivery.Source,
		"delivery_id": delivery.DeliveryID,
	}
}
