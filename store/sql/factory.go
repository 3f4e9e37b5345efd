package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/metorial/go-callbacks/core"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the SQL-backed stores over a shared bun DB. The
// destination store is optionally wrapped with a cache when a cache service
// is attached before BuildStores.
type RepositoryFactory struct {
	db    *bun.DB
	cache repositorycache.CacheService

	callbackStore      *CallbackStore
	destinationStore   *DestinationStore
	cachedDestinations *CachedDestinationStore
	eventStore         *EventStore
	deliveryClaimStore *DeliveryClaimStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// WithCache attaches a cache service for destination routing reads. Must be
// called before BuildStores.
func (f *RepositoryFactory) WithCache(cacheService repositorycache.CacheService) *RepositoryFactory {
	if f != nil {
		f.cache = cacheService
	}
	return f
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.callbackStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) CallbackStore() core.CallbackStore {
	if f == nil {
		return nil
	}
	return f.callbackStore
}

// DestinationStore returns the cached wrapper when a cache was attached, the
// bare store otherwise.
func (f *RepositoryFactory) DestinationStore() core.DestinationStore {
	if f == nil {
		return nil
	}
	if f.cachedDestinations != nil {
		return f.cachedDestinations
	}
	return f.destinationStore
}

func (f *RepositoryFactory) EventStore() core.EventStore {
	if f == nil {
		return nil
	}
	return f.eventStore
}

func (f *RepositoryFactory) DeliveryClaimStore() core.DeliveryClaimStore {
	if f == nil {
		return nil
	}
	return f.deliveryClaimStore
}

func (f *RepositoryFactory) initStores() error {
	callbackStore, err := NewCallbackStore(f.db)
	if err != nil {
		return err
	}
	f.callbackStore = callbackStore

	destinationStore, err := NewDestinationStore(f.db)
	if err != nil {
		return err
	}
	f.destinationStore = destinationStore
	if f.cache != nil {
		cached, err := NewCachedDestinationStore(destinationStore, f.cache)
		if err != nil {
			return err
		}
		f.cachedDestinations = cached
	}

	eventStore, err := NewEventStore(f.db)
	if err != nil {
		return err
	}
	f.eventStore = eventStore

	deliveryClaimStore, err := NewDeliveryClaimStore(f.db)
	if err != nil {
		return err
	}
	f.deliveryClaimStore = deliveryClaimStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
