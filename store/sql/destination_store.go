package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/metorial/go-callbacks/core"
	"github.com/uptrace/bun"
)

type DestinationStore struct {
	db   *bun.DB
	repo repository.Repository[*destinationRecord]
}

func NewDestinationStore(db *bun.DB) (*DestinationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*destinationRecord](db, destinationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid destination repository wiring: %w", err)
		}
	}
	return &DestinationStore{db: db, repo: repo}, nil
}

func (s *DestinationStore) Create(ctx context.Context, in core.CreateDestinationInput) (core.CallbackDestination, error) {
	if s == nil || s.repo == nil {
		return core.CallbackDestination{}, fmt.Errorf("sqlstore: destination store is not configured")
	}
	if strings.TrimSpace(in.InstanceID) == "" {
		return core.CallbackDestination{}, fmt.Errorf("sqlstore: instance id is required")
	}
	if strings.TrimSpace(in.URL) == "" {
		return core.CallbackDestination{}, fmt.Errorf("sqlstore: destination url is required")
	}
	if strings.TrimSpace(in.SigningSecret) == "" {
		return core.CallbackDestination{}, fmt.Errorf("sqlstore: signing secret is required")
	}
	if err := in.Rule.Validate(); err != nil {
		return core.CallbackDestination{}, err
	}

	record := newDestinationRecord(in, time.Now().UTC())
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.CallbackDestination{}, err
	}
	return created.toDomain(), nil
}

func (s *DestinationStore) Get(ctx context.Context, id string) (core.CallbackDestination, error) {
	if s == nil || s.repo == nil {
		return core.CallbackDestination{}, fmt.Errorf("sqlstore: destination store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.CallbackDestination{}, fmt.Errorf("sqlstore: destination id is required")
	}
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return core.CallbackDestination{}, fmt.Errorf("%w: %s", core.ErrDestinationNotFound, id)
		}
		return core.CallbackDestination{}, err
	}
	return record.toDomain(), nil
}

func (s *DestinationStore) ListActiveByInstance(ctx context.Context, instanceID string) ([]core.CallbackDestination, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: destination store is not configured")
	}
	instanceID = strings.TrimSpace(instanceID)
	if instanceID == "" {
		return nil, fmt.Errorf("sqlstore: instance id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("instance_id", "=", instanceID),
		repository.SelectBy("status", "=", string(core.DestinationStatusActive)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.deleted_at IS NULL")
		}),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.CallbackDestination, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *DestinationStore) Deactivate(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: destination store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: destination id is required")
	}
	result, err := s.db.NewUpdate().
		Model((*destinationRecord)(nil)).
		Set("status = ?", string(core.DestinationStatusInactive)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrDestinationNotFound, id)
	}
	return nil
}

var _ core.DestinationStore = (*DestinationStore)(nil)
