package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/metorial/go-callbacks/core"
)

const defaultClaimCapacity = 10000

// MemoryClaimStore is an in-process delivery claim ledger for tests and
// single-node deployments. Production fan-in uses the SQL-backed store; this
// one trades durability for zero dependencies.
type MemoryClaimStore struct {
	mu       sync.Mutex
	entries  map[string]core.DeliveryClaim
	byID     map[string]string
	capacity int
	Now      func() time.Time
}

func NewMemoryClaimStore() *MemoryClaimStore {
	return &MemoryClaimStore{
		entries:  map[string]core.DeliveryClaim{},
		byID:     map[string]string{},
		capacity: defaultClaimCapacity,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Claim is atomic check-and-set on (source, deliveryID): the first caller
// wins, later callers for a live claim get accepted=false. Expired claims are
// reclaimable.
func (s *MemoryClaimStore) Claim(_ context.Context, source string, deliveryID string, ttl time.Duration) (core.DeliveryClaim, bool, error) {
	if s == nil {
		return core.DeliveryClaim{}, false, ingestInternal("ingest: claim store is nil", nil)
	}
	key, err := claimKey(source, deliveryID)
	if err != nil {
		return core.DeliveryClaim{}, false, err
	}
	now := s.now()
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(now)

	if existing, ok := s.entries[key]; ok && now.Before(existing.ExpiresAt) {
		return existing, false, nil
	}
	claim := core.DeliveryClaim{
		ID:         uuid.NewString(),
		Source:     strings.TrimSpace(source),
		DeliveryID: strings.TrimSpace(deliveryID),
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	s.entries[key] = claim
	s.byID[claim.ID] = key
	return claim, true, nil
}

func (s *MemoryClaimStore) Resolve(_ context.Context, source string, deliveryID string) (core.DeliveryClaim, error) {
	if s == nil {
		return core.DeliveryClaim{}, ingestInternal("ingest: claim store is nil", nil)
	}
	key, err := claimKey(source, deliveryID)
	if err != nil {
		return core.DeliveryClaim{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	claim, ok := s.entries[key]
	if !ok || !s.now().Before(claim.ExpiresAt) {
		return core.DeliveryClaim{}, fmt.Errorf("ingest: delivery claim not found for %s", key)
	}
	return claim, nil
}

// Bind attaches the recorded event to a claim so duplicate deliveries can
// report the event they were folded into.
func (s *MemoryClaimStore) Bind(_ context.Context, claimID string, eventID string) error {
	if s == nil {
		return ingestInternal("ingest: claim store is nil", nil)
	}
	claimID = strings.TrimSpace(claimID)
	eventID = strings.TrimSpace(eventID)
	if claimID == "" || eventID == "" {
		return ingestBadInput("ingest: claim id and event id are required", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byID[claimID]
	if !ok {
		return nil
	}
	claim, exists := s.entries[key]
	if !exists || claim.ID != claimID {
		delete(s.byID, claimID)
		return nil
	}
	claim.EventID = eventID
	s.entries[key] = claim
	return nil
}

func (s *MemoryClaimStore) evictLocked(now time.Time) {
	for key, claim := range s.entries {
		if !now.Before(claim.ExpiresAt) {
			delete(s.entries, key)
			delete(s.byID, claim.ID)
		}
	}
	capacity := s.capacity
	if capacity <= 0 {
		capacity = defaultClaimCapacity
	}
	for len(s.entries) >= capacity {
		oldestKey := ""
		var oldest core.DeliveryClaim
		for key, claim := range s.entries {
			if oldestKey == "" || claim.CreatedAt.Before(oldest.CreatedAt) {
				oldestKey = key
				oldest = claim
			}
		}
		if oldestKey == "" {
			return
		}
		delete(s.entries, oldestKey)
		delete(s.byID, oldest.ID)
	}
}

func (s *MemoryClaimStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func claimKey(source string, deliveryID string) (string, error) {
	source = strings.TrimSpace(source)
	deliveryID = strings.TrimSpace(deliveryID)
	if source == "" {
		return "", ingestBadInput("ingest: delivery source is required", nil)
	}
	if deliveryID == "" {
		return "", ingestBadInput("ingest: delivery id is required", map[string]any{"source": source})
	}
	return source + ":" + deliveryID, nil
}

var _ core.DeliveryClaimStore = (*MemoryClaimStore)(nil)
