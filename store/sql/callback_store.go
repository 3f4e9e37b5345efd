package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/metorial/go-callbacks/core"
	"github.com/uptrace/bun"
)

type CallbackStore struct {
	db   *bun.DB
	repo repository.Repository[*callbackRecord]
}

func NewCallbackStore(db *bun.DB) (*CallbackStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*callbackRecord](db, callbackHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid callback repository wiring: %w", err)
		}
	}
	return &CallbackStore{db: db, repo: repo}, nil
}

func (s *CallbackStore) Create(ctx context.Context, in core.CreateCallbackInput) (core.Callback, error) {
	if s == nil || s.repo == nil {
		return core.Callback{}, fmt.Errorf("sqlstore: callback store is not configured")
	}
	if strings.TrimSpace(in.InstanceID) == "" {
		return core.Callback{}, fmt.Errorf("sqlstore: instance id is required")
	}
	if !in.Type.Valid() {
		return core.Callback{}, fmt.Errorf("%w: %q", core.ErrInvalidCallbackType, in.Type)
	}
	if in.Type == core.CallbackTypePolling {
		if in.Schedule == nil || in.Schedule.IntervalSeconds <= 0 {
			return core.Callback{}, core.ErrScheduleRequired
		}
	}

	record := newCallbackRecord(in, time.Now().UTC())
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Callback{}, err
	}
	return created.toDomain(), nil
}

func (s *CallbackStore) Get(ctx context.Context, id string) (core.Callback, error) {
	if s == nil || s.repo == nil {
		return core.Callback{}, fmt.Errorf("sqlstore: callback store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Callback{}, fmt.Errorf("sqlstore: callback id is required")
	}
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return core.Callback{}, fmt.Errorf("%w: %s", core.ErrCallbackNotFound, id)
		}
		return core.Callback{}, err
	}
	return record.toDomain(), nil
}

func (s *CallbackStore) ListDuePolling(ctx context.Context, now time.Time, limit int) ([]core.Callback, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: callback store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("type", "=", string(core.CallbackTypePolling)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("?TableAlias.deleted_at IS NULL").
				Where("?TableAlias.next_run_at IS NOT NULL").
				Where("?TableAlias.next_run_at <= ?", now.UTC()).
				Limit(limit)
		}),
		repository.OrderBy("next_run_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Callback, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *CallbackStore) AdvanceSchedule(ctx context.Context, id string, nextRunAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: callback store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: callback id is required")
	}
	result, err := s.db.NewUpdate().
		Model((*callbackRecord)(nil)).
		Set("next_run_at = ?", nextRunAt.UTC()).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrCallbackNotFound, id)
	}
	return nil
}

func (s *CallbackStore) SoftDelete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: callback store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: callback id is required")
	}
	_, err := s.db.NewDelete().
		Model((*callbackRecord)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func isNoRows(err error) bool {
	if err == nil {
		return false
	}
	if err == sql.ErrNoRows {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no rows")
}

var _ core.CallbackStore = (*CallbackStore)(nil)
