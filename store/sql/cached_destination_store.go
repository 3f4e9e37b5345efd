package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/metorial/go-callbacks/core"
)

const destinationCacheKeyPrefix = "go-callbacks::destinations::v1"

// CachedDestinationStore fronts destination routing reads with a short-TTL
// cache. Staleness only delays a routing-rule change; it cannot corrupt event
// state, so the trade is safe. Writes invalidate the instance listing.
type CachedDestinationStore struct {
	base  core.DestinationStore
	cache repositorycache.CacheService
}

func NewCachedDestinationStore(
	base core.DestinationStore,
	cacheService repositorycache.CacheService,
) (*CachedDestinationStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base destination store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: destination cache service is required")
	}
	return &CachedDestinationStore{base: base, cache: cacheService}, nil
}

// DestinationListCacheKey is the deterministic key contract for per-instance
// destination listings: go-callbacks::destinations::v1::list::<instance_id>.
func DestinationListCacheKey(instanceID string) (string, error) {
	instanceID = strings.TrimSpace(instanceID)
	if instanceID == "" {
		return "", fmt.Errorf("sqlstore: instance id is required")
	}
	return destinationCacheKeyPrefix + "::list::" + url.PathEscape(instanceID), nil
}

func destinationGetCacheKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("sqlstore: destination id is required")
	}
	return destinationCacheKeyPrefix + "::get::" + url.PathEscape(id), nil
}

func (s *CachedDestinationStore) Get(ctx context.Context, id string) (core.CallbackDestination, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.CallbackDestination{}, fmt.Errorf("sqlstore: cached destination store is not configured")
	}
	cacheKey, err := destinationGetCacheKey(id)
	if err != nil {
		return core.CallbackDestination{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.CallbackDestination, error) {
		return s.base.Get(ctx, id)
	})
}

func (s *CachedDestinationStore) ListActiveByInstance(ctx context.Context, instanceID string) ([]core.CallbackDestination, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached destination store is not configured")
	}
	cacheKey, err := DestinationListCacheKey(instanceID)
	if err != nil {
		return nil, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) ([]core.CallbackDestination, error) {
		return s.base.ListActiveByInstance(ctx, instanceID)
	})
}

func (s *CachedDestinationStore) Create(ctx context.Context, in core.CreateDestinationInput) (core.CallbackDestination, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.CallbackDestination{}, fmt.Errorf("sqlstore: cached destination store is not configured")
	}
	created, err := s.base.Create(ctx, in)
	if err != nil {
		return core.CallbackDestination{}, err
	}
	if err := s.invalidateInstance(ctx, created.InstanceID); err != nil {
		return core.CallbackDestination{}, err
	}
	return created, nil
}

func (s *CachedDestinationStore) Deactivate(ctx context.Context, id string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached destination store is not configured")
	}
	existing, err := s.base.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.base.Deactivate(ctx, id); err != nil {
		return err
	}
	if cacheKey, keyErr := destinationGetCacheKey(id); keyErr == nil {
		if err := s.cache.Delete(ctx, cacheKey); err != nil {
			return err
		}
	}
	return s.invalidateInstance(ctx, existing.InstanceID)
}

func (s *CachedDestinationStore) invalidateInstance(ctx context.Context, instanceID string) error {
	cacheKey, err := DestinationListCacheKey(instanceID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

var _ core.DestinationStore = (*CachedDestinationStore)(nil)
