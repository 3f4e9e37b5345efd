package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/metorial/go-callbacks/core"
	"github.com/uptrace/bun"
)

type EventStore struct {
	db       *bun.DB
	repo     repository.Repository[*eventRecord]
	attempts repository.Repository[*attemptRecord]
}

func NewEventStore(db *bun.DB) (*EventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*eventRecord](db, eventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid event repository wiring: %w", err)
		}
	}
	attempts := repository.NewRepository[*attemptRecord](db, attemptHandlers())
	if validator, ok := attempts.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid attempt repository wiring: %w", err)
		}
	}
	return &EventStore{db: db, repo: repo, attempts: attempts}, nil
}

func (s *EventStore) Create(ctx context.Context, in core.CreateEventInput) (core.CallbackEvent, error) {
	if s == nil || s.repo == nil {
		return core.CallbackEvent{}, fmt.Errorf("sqlstore: event store is not configured")
	}
	if strings.TrimSpace(in.CallbackID) == "" {
		return core.CallbackEvent{}, fmt.Errorf("sqlstore: event callback id is required")
	}
	if strings.TrimSpace(in.InstanceID) == "" {
		return core.CallbackEvent{}, fmt.Errorf("sqlstore: event instance id is required")
	}
	if strings.TrimSpace(in.Type) == "" {
		return core.CallbackEvent{}, fmt.Errorf("sqlstore: event type is required")
	}

	record := newEventRecord(in, time.Now().UTC())
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.CallbackEvent{}, err
	}
	return created.toDomain(nil), nil
}

func (s *EventStore) Get(ctx context.Context, id string) (core.CallbackEvent, error) {
	if s == nil || s.repo == nil {
		return core.CallbackEvent{}, fmt.Errorf("sqlstore: event store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.CallbackEvent{}, fmt.Errorf("sqlstore: event id is required")
	}
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return core.CallbackEvent{}, fmt.Errorf("%w: %s", core.ErrEventNotFound, id)
		}
		return core.CallbackEvent{}, err
	}
	attempts, err := s.listAttempts(ctx, id)
	if err != nil {
		return core.CallbackEvent{}, err
	}
	return record.toDomain(attempts), nil
}

// ClaimDue stamps the lease on one batch of due events in a single CTE
// update, so two workers can never hold the same event. Rows with a live
// lease are skipped; expired leases are fair game.
func (s *EventStore) ClaimDue(ctx context.Context, owner string, lease time.Duration, limit int) ([]core.CallbackEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: event store is not configured")
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, fmt.Errorf("sqlstore: lease owner is required")
	}
	if lease <= 0 {
		lease = time.Minute
	}
	if limit <= 0 {
		limit = 1
	}

	now := time.Now().UTC()
	expiresAt := now.Add(lease)
	var records []eventRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH claimed AS (
	SELECT id
	FROM callback_events
	WHERE status IN (?, ?)
	  AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
	  AND (lease_expires_at IS NULL OR lease_expires_at <= ?)
	ORDER BY created_at ASC
	LIMIT ?
)
UPDATE callback_events
SET lease_owner = ?, lease_expires_at = ?, updated_at = ?
WHERE id IN (SELECT id FROM claimed)
  AND (lease_expires_at IS NULL OR lease_expires_at <= ?)
RETURNING
	id,
	callback_id,
	instance_id,
	type,
	status,
	payload_incoming,
	payload_outgoing,
	next_attempt_at,
	lease_owner,
	lease_expires_at,
	created_at,
	updated_at
`
		return tx.NewRaw(
			query,
			string(core.EventStatusPending),
			string(core.EventStatusRetrying),
			now,
			now,
			limit,
			owner,
			expiresAt,
			now,
			now,
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}

	events := make([]core.CallbackEvent, 0, len(records))
	for _, record := range records {
		attempts, err := s.listAttempts(ctx, record.ID)
		if err != nil {
			return nil, err
		}
		events = append(events, record.toDomain(attempts))
	}
	return events, nil
}

// AppendAttempt inserts the next attempt record for an event. The index is
// assigned inside a transaction from the current count, keeping the sequence
// contiguous and 0-based under the event's lease.
func (s *EventStore) AppendAttempt(ctx context.Context, in core.AppendAttemptInput) (core.ProcessingAttempt, error) {
	if s == nil || s.db == nil {
		return core.ProcessingAttempt{}, fmt.Errorf("sqlstore: event store is not configured")
	}
	eventID := strings.TrimSpace(in.EventID)
	if eventID == "" {
		return core.ProcessingAttempt{}, fmt.Errorf("sqlstore: attempt event id is required")
	}
	if in.Status != core.AttemptStatusSucceeded && in.Status != core.AttemptStatusFailed {
		return core.ProcessingAttempt{}, fmt.Errorf("sqlstore: invalid attempt status %q", in.Status)
	}

	record := &attemptRecord{
		ID:                 uuid.NewString(),
		EventID:            eventID,
		DestinationID:      strings.TrimSpace(in.DestinationID),
		Status:             string(in.Status),
		ErrorCode:          strings.TrimSpace(in.ErrorCode),
		ErrorMessage:       strings.TrimSpace(in.ErrorMessage),
		ResponseStatusCode: in.ResponseStatusCode,
		DurationMs:         in.DurationMs,
		CreatedAt:          time.Now().UTC(),
	}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		count, err := tx.NewSelect().
			Model((*attemptRecord)(nil)).
			Where("event_id = ?", eventID).
			Count(ctx)
		if err != nil {
			return err
		}
		record.AttemptIndex = count
		_, err = tx.NewInsert().Model(record).Exec(ctx)
		return err
	})
	if err != nil {
		return core.ProcessingAttempt{}, err
	}
	return record.toDomain(), nil
}

// Release finishes a leased dispatch cycle. The guard clause refuses to move
// an event that went terminal out-of-band, and only the lease holder can
// release.
func (s *EventStore) Release(ctx context.Context, in core.ReleaseEventInput) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event store is not configured")
	}
	eventID := strings.TrimSpace(in.EventID)
	if eventID == "" {
		return fmt.Errorf("sqlstore: event id is required")
	}
	owner := strings.TrimSpace(in.Owner)
	if owner == "" {
		return fmt.Errorf("sqlstore: lease owner is required")
	}

	now := time.Now().UTC()
	update := s.db.NewUpdate().
		Model((*eventRecord)(nil)).
		Set("status = ?", string(in.Status)).
		Set("lease_owner = ?", "").
		Set("lease_expires_at = NULL").
		Set("updated_at = ?", now).
		Where("id = ?", eventID).
		Where("lease_owner = ?", owner).
		Where("(status IN (?, ?) OR status = ?)",
			string(core.EventStatusPending),
			string(core.EventStatusRetrying),
			string(in.Status),
		)
	if in.NextAttemptAt != nil {
		update = update.Set("next_attempt_at = ?", in.NextAttemptAt.UTC())
	} else {
		update = update.Set("next_attempt_at = NULL")
	}
	if len(in.PayloadOutgoing) > 0 {
		update = update.Set("payload_outgoing = ?", in.PayloadOutgoing)
	}

	result, err := update.Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return s.explainReleaseRefusal(ctx, eventID, owner)
	}
	return nil
}

func (s *EventStore) explainReleaseRefusal(ctx context.Context, eventID string, owner string) error {
	record, err := s.repo.GetByID(ctx, eventID)
	if err != nil {
		if isNoRows(err) {
			return fmt.Errorf("%w: %s", core.ErrEventNotFound, eventID)
		}
		return err
	}
	if core.EventStatus(record.Status).Terminal() {
		return fmt.Errorf("%w: %s", core.ErrEventTerminal, record.Status)
	}
	return fmt.Errorf("sqlstore: event %s lease is not held by %s", eventID, owner)
}

// MarkFailed terminally fails an event out-of-band. It bypasses the lease:
// the scheduler's terminal re-check before dispatch makes this safe. The
// reason survives as a synthetic terminal attempt on the event.
func (s *EventStore) MarkFailed(ctx context.Context, id string, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: event id is required")
	}
	result, err := s.db.NewUpdate().
		Model((*eventRecord)(nil)).
		Set("status = ?", string(core.EventStatusFailed)).
		Set("next_attempt_at = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status IN (?, ?)",
			string(core.EventStatusPending),
			string(core.EventStatusRetrying),
		).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		record, getErr := s.repo.GetByID(ctx, id)
		if getErr != nil {
			if isNoRows(getErr) {
				return fmt.Errorf("%w: %s", core.ErrEventNotFound, id)
			}
			return getErr
		}
		return fmt.Errorf("%w: %s", core.ErrEventTerminal, record.Status)
	}
	if _, err := s.AppendAttempt(ctx, core.AppendAttemptInput{
		EventID:      id,
		Status:       core.AttemptStatusFailed,
		ErrorCode:    core.AttemptErrorCodeMarkedFailed,
		ErrorMessage: reason,
	}); err != nil {
		return fmt.Errorf("sqlstore: record failure reason for event %s: %w", id, err)
	}
	return nil
}

func (s *EventStore) listAttempts(ctx context.Context, eventID string) ([]attemptRecord, error) {
	var attempts []attemptRecord
	err := s.db.NewSelect().
		Model(&attempts).
		Where("?TableAlias.event_id = ?", eventID).
		Order("attempt_index ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

var _ core.EventStore = (*EventStore)(nil)
