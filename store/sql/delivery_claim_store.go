package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/metorial/go-callbacks/core"
	"github.com/uptrace/bun"
)

// DeliveryClaimStore is the durable idempotency ledger for inbound webhook
// deliveries. Atomicity comes from the unique index on (source, delivery_id):
// of two racing inserts exactly one lands, the loser reads the winner's row.
type DeliveryClaimStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryClaimRecord]
}

func NewDeliveryClaimStore(db *bun.DB) (*DeliveryClaimStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryClaimRecord](db, deliveryClaimHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery claim repository wiring: %w", err)
		}
	}
	return &DeliveryClaimStore{db: db, repo: repo}, nil
}

func (s *DeliveryClaimStore) Claim(ctx context.Context, source string, deliveryID string, ttl time.Duration) (core.DeliveryClaim, bool, error) {
	if s == nil || s.db == nil {
		return core.DeliveryClaim{}, false, fmt.Errorf("sqlstore: delivery claim store is not configured")
	}
	source = strings.TrimSpace(source)
	deliveryID = strings.TrimSpace(deliveryID)
	if source == "" || deliveryID == "" {
		return core.DeliveryClaim{}, false, fmt.Errorf("sqlstore: delivery source and delivery id are required")
	}
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}

	now := time.Now().UTC()
	record := &deliveryClaimRecord{
		ID:         uuid.NewString(),
		Source:     source,
		DeliveryID: deliveryID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.get(ctx, source, deliveryID)
			if getErr != nil {
				return core.DeliveryClaim{}, false, getErr
			}
			if !now.Before(existing.ExpiresAt) {
				return s.reclaim(ctx, existing, now, ttl)
			}
			return existing.toDomain(), false, nil
		}
		return core.DeliveryClaim{}, false, err
	}
	return record.toDomain(), true, nil
}

// reclaim takes over an expired claim row in place. The CAS on expires_at
// keeps two racing reclaimers from both winning.
func (s *DeliveryClaimStore) reclaim(ctx context.Context, expired *deliveryClaimRecord, now time.Time, ttl time.Duration) (core.DeliveryClaim, bool, error) {
	claimID := uuid.NewString()
	result, err := s.db.NewUpdate().
		Model((*deliveryClaimRecord)(nil)).
		Set("id = ?", claimID).
		Set("event_id = ?", "").
		Set("created_at = ?", now).
		Set("expires_at = ?", now.Add(ttl)).
		Where("source = ?", expired.Source).
		Where("delivery_id = ?", expired.DeliveryID).
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return core.DeliveryClaim{}, false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return core.DeliveryClaim{}, false, err
	}
	if affected == 0 {
		current, getErr := s.get(ctx, expired.Source, expired.DeliveryID)
		if getErr != nil {
			return core.DeliveryClaim{}, false, getErr
		}
		return current.toDomain(), false, nil
	}
	return core.DeliveryClaim{
		ID:         claimID,
		Source:     expired.Source,
		DeliveryID: expired.DeliveryID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}, true, nil
}

func (s *DeliveryClaimStore) Resolve(ctx context.Context, source string, deliveryID string) (core.DeliveryClaim, error) {
	if s == nil || s.db == nil {
		return core.DeliveryClaim{}, fmt.Errorf("sqlstore: delivery claim store is not configured")
	}
	record, err := s.get(ctx, strings.TrimSpace(source), strings.TrimSpace(deliveryID))
	if err != nil {
		return core.DeliveryClaim{}, err
	}
	return record.toDomain(), nil
}

func (s *DeliveryClaimStore) Bind(ctx context.Context, claimID string, eventID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery claim store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	eventID = strings.TrimSpace(eventID)
	if claimID == "" || eventID == "" {
		return fmt.Errorf("sqlstore: claim id and event id are required")
	}
	_, err := s.db.NewUpdate().
		Model((*deliveryClaimRecord)(nil)).
		Set("event_id = ?", eventID).
		Where("id = ?", claimID).
		Exec(ctx)
	return err
}

func (s *DeliveryClaimStore) get(ctx context.Context, source string, deliveryID string) (*deliveryClaimRecord, error) {
	record := &deliveryClaimRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.source = ?", source).
		Where("?TableAlias.delivery_id = ?", deliveryID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("sqlstore: delivery claim not found for source %q delivery %q", source, deliveryID)
		}
		return nil, err
	}
	return record, nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var _ core.DeliveryClaimStore = (*DeliveryClaimStore)(nil)
