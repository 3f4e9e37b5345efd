package core

import (
	"context"
	"testing"
	"time"
)

func TestResolveDestinationsFiltersByRuleAndStatus(t *testing.T) {
	ctx := context.Background()
	reader := stubDestinationReader{destinations: []CallbackDestination{
		{ID: "dst_all", InstanceID: "inst_1", Status: DestinationStatusActive, Rule: RoutingRule{Type: SelectionTypeAll}},
		{ID: "dst_selected", InstanceID: "inst_1", Status: DestinationStatusActive, Rule: RoutingRule{
			Type:        SelectionTypeSelected,
			CallbackIDs: []string{"cb_2"},
		}},
		{ID: "dst_inactive", InstanceID: "inst_1", Status: DestinationStatusInactive, Rule: RoutingRule{Type: SelectionTypeAll}},
	}}

	registry, err := NewRegistry(stubCallbackStore{}, reader)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	matched, err := registry.ResolveDestinations(ctx, CallbackEvent{CallbackID: "cb_1", InstanceID: "inst_1"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(matched) != 1 || matched[0].ID != "dst_all" {
		t.Fatalf("expected only the catch-all destination, got %#v", matched)
	}

	matched, err = registry.ResolveDestinations(ctx, CallbackEvent{CallbackID: "cb_2", InstanceID: "inst_1"})
	if err != nil {
		t.Fatalf("resolve cb_2: %v", err)
	}
	if len(matched) != 2 {
		t.Fatalf("expected catch-all plus selected, got %d", len(matched))
	}
}

func TestResolveDestinationsRequiresEventIdentity(t *testing.T) {
	registry, err := NewRegistry(stubCallbackStore{}, stubDestinationReader{})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if _, err := registry.ResolveDestinations(context.Background(), CallbackEvent{CallbackID: "cb_1"}); err == nil {
		t.Fatalf("expected missing instance id to be rejected")
	}
	if _, err := registry.ResolveDestinations(context.Background(), CallbackEvent{InstanceID: "inst_1"}); err == nil {
		t.Fatalf("expected missing callback id to be rejected")
	}
}

func TestGetDueCallbacksClampsLimit(t *testing.T) {
	store := dueRecordingCallbackStore{}
	registry, err := NewRegistry(&store, stubDestinationReader{})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if _, err := registry.GetDueCallbacks(context.Background(), time.Now(), 0); err != nil {
		t.Fatalf("get due: %v", err)
	}
	if store.lastLimit != 1 {
		t.Fatalf("expected limit clamp to 1, got %d", store.lastLimit)
	}
}

type dueRecordingCallbackStore struct {
	stubCallbackStore
	lastLimit int
}

func (s *dueRecordingCallbackStore) ListDuePolling(_ context.Context, _ time.Time, limit int) ([]Callback, error) {
	s.lastLimit = limit
	return nil, nil
}
