package ingest

import (
	"encoding/json"
	"strings"
)

// NormalizedTrigger is the canonical form of an inbound delivery: a stable
// type tag plus the raw payload, carried verbatim.
type NormalizedTrigger struct {
	Type    string
	Payload []byte
}

// Normalizer maps a raw delivery to its canonical trigger. The mapping must
// be deterministic so replayed deliveries normalize identically.
type Normalizer interface {
	Normalize(delivery Delivery) (NormalizedTrigger, error)
}

// JSONNormalizer resolves the event type from the delivery's declared type
// header first, then from a top-level "type" field in a JSON body, then from
// a source-derived fallback. The payload is never rewritten.
type JSONNormalizer struct {
	// FallbackSuffix is appended to the source when no type is declared.
	FallbackSuffix string
}

func NewJSONNormalizer() JSONNormalizer {
	return JSONNormalizer{FallbackSuffix: ".event"}
}

func (n JSONNormalizer) Normalize(delivery Delivery) (NormalizedTrigger, error) {
	eventType := strings.TrimSpace(delivery.EventType)
	if eventType == "" {
		eventType = typeFromBody(delivery.Body)
	}
	if eventType == "" {
		source := strings.TrimSpace(delivery.Source)
		if source == "" {
			return NormalizedTrigger{}, ingestBadInput("ingest: cannot derive event type", nil)
		}
		suffix := n.FallbackSuffix
		if suffix == "" {
			suffix = ".event"
		}
		eventType = source + suffix
	}
	return NormalizedTrigger{
		Type:    eventType,
		Payload: delivery.Body,
	}, nil
}

func typeFromBody(body []byte) string {
	if len(body) == 0 || !json.Valid(body) {
		return ""
	}
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	return strings.TrimSpace(envelope.Type)
}

var _ Normalizer = JSONNormalizer{}
