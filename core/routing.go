package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Registry resolves which destinations receive a callback's events and which
// polling callbacks are due. Reads are safe to front with a short-TTL cache:
// staleness only delays a routing-rule update, it cannot corrupt state.
type Registry struct {
	callbacks    CallbackStore
	destinations DestinationReader
}

func NewRegistry(callbacks CallbackStore, destinations DestinationReader) (*Registry, error) {
	if callbacks == nil {
		return nil, fmt.Errorf("core: callback store is required")
	}
	if destinations == nil {
		return nil, fmt.Errorf("core: destination reader is required")
	}
	return &Registry{
		callbacks:    callbacks,
		destinations: destinations,
	}, nil
}

// ResolveDestinations returns every active destination whose routing rule
// matches the event's owning callback. An empty result is not an error: a
// callback with no destination is a legitimate no-op sink.
func (r *Registry) ResolveDestinations(ctx context.Context, event CallbackEvent) ([]CallbackDestination, error) {
	if r == nil || r.destinations == nil {
		return nil, fmt.Errorf("core: registry is not configured")
	}
	instanceID := strings.TrimSpace(event.InstanceID)
	if instanceID == "" {
		return nil, fmt.Errorf("core: event instance id is required")
	}
	callbackID := strings.TrimSpace(event.CallbackID)
	if callbackID == "" {
		return nil, fmt.Errorf("core: event callback id is required")
	}

	candidates, err := r.destinations.ListActiveByInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	matched := make([]CallbackDestination, 0, len(candidates))
	for _, destination := range candidates {
		if destination.Status != DestinationStatusActive {
			continue
		}
		if destination.Rule.Matches(callbackID) {
			matched = append(matched, destination)
		}
	}
	return matched, nil
}

// GetDueCallbacks returns polling callbacks whose next run is at or before now.
func (r *Registry) GetDueCallbacks(ctx context.Context, now time.Time, limit int) ([]Callback, error) {
	if r == nil || r.callbacks == nil {
		return nil, fmt.Errorf("core: registry is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	return r.callbacks.ListDuePolling(ctx, now.UTC(), limit)
}
