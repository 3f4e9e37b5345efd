package sqlstore

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/metorial/go-callbacks/core"
)

func newCallbackRecord(in core.CreateCallbackInput, now time.Time) *callbackRecord {
	record := &callbackRecord{
		ID:          uuid.NewString(),
		InstanceID:  strings.TrimSpace(in.InstanceID),
		Type:        string(in.Type),
		URL:         strings.TrimSpace(in.URL),
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Schedule != nil {
		interval := in.Schedule.IntervalSeconds
		record.IntervalSeconds = &interval
		if !in.Schedule.NextRunAt.IsZero() {
			nextRunAt := in.Schedule.NextRunAt.UTC()
			record.NextRunAt = &nextRunAt
		}
	}
	return record
}

func (r *callbackRecord) toDomain() core.Callback {
	if r == nil {
		return core.Callback{}
	}
	callback := core.Callback{
		ID:          r.ID,
		InstanceID:  r.InstanceID,
		Type:        core.CallbackType(r.Type),
		URL:         r.URL,
		Name:        r.Name,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		DeletedAt:   cloneTimePointer(r.DeletedAt),
	}
	if r.IntervalSeconds != nil {
		schedule := &core.Schedule{IntervalSeconds: *r.IntervalSeconds}
		if r.NextRunAt != nil {
			schedule.NextRunAt = r.NextRunAt.UTC()
		}
		callback.Schedule = schedule
	}
	return callback
}

func newDestinationRecord(in core.CreateDestinationInput, now time.Time) *destinationRecord {
	return &destinationRecord{
		ID:            uuid.NewString(),
		InstanceID:    strings.TrimSpace(in.InstanceID),
		Type:          core.DestinationTypeWebhook,
		Name:          strings.TrimSpace(in.Name),
		Description:   strings.TrimSpace(in.Description),
		URL:           strings.TrimSpace(in.URL),
		SigningSecret: strings.TrimSpace(in.SigningSecret),
		Status:        string(core.DestinationStatusActive),
		SelectionType: string(in.Rule.Type),
		CallbackIDs:   append([]string(nil), in.Rule.CallbackIDs...),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (r *destinationRecord) toDomain() core.CallbackDestination {
	if r == nil {
		return core.CallbackDestination{}
	}
	return core.CallbackDestination{
		ID:            r.ID,
		InstanceID:    r.InstanceID,
		Type:          r.Type,
		Name:          r.Name,
		Description:   r.Description,
		URL:           r.URL,
		SigningSecret: r.SigningSecret,
		Status:        core.DestinationStatus(r.Status),
		Rule: core.RoutingRule{
			Type:        core.SelectionType(r.SelectionType),
			CallbackIDs: append([]string(nil), r.CallbackIDs...),
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func newEventRecord(in core.CreateEventInput, now time.Time) *eventRecord {
	status := in.Status
	if strings.TrimSpace(string(status)) == "" {
		status = core.EventStatusPending
	}
	return &eventRecord{
		ID:              uuid.NewString(),
		CallbackID:      strings.TrimSpace(in.CallbackID),
		InstanceID:      strings.TrimSpace(in.InstanceID),
		Type:            strings.TrimSpace(in.Type),
		Status:          string(status),
		PayloadIncoming: append([]byte(nil), in.PayloadIncoming...),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (r *eventRecord) toDomain(attempts []attemptRecord) core.CallbackEvent {
	if r == nil {
		return core.CallbackEvent{}
	}
	event := core.CallbackEvent{
		ID:              r.ID,
		CallbackID:      r.CallbackID,
		InstanceID:      r.InstanceID,
		Type:            r.Type,
		Status:          core.EventStatus(r.Status),
		PayloadIncoming: append([]byte(nil), r.PayloadIncoming...),
		PayloadOutgoing: append([]byte(nil), r.PayloadOutgoing...),
		NextAttemptAt:   cloneTimePointer(r.NextAttemptAt),
		LeaseOwner:      r.LeaseOwner,
		LeaseExpiresAt:  cloneTimePointer(r.LeaseExpiresAt),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	for _, attempt := range attempts {
		event.Attempts = append(event.Attempts, attempt.toDomain())
	}
	return event
}

func (r attemptRecord) toDomain() core.ProcessingAttempt {
	return core.ProcessingAttempt{
		ID:                 r.ID,
		EventID:            r.EventID,
		Index:              r.AttemptIndex,
		DestinationID:      r.DestinationID,
		Status:             core.AttemptStatus(r.Status),
		ErrorCode:          r.ErrorCode,
		ErrorMessage:       r.ErrorMessage,
		ResponseStatusCode: r.ResponseStatusCode,
		DurationMs:         r.DurationMs,
		CreatedAt:          r.CreatedAt,
	}
}

func (r *deliveryClaimRecord) toDomain() core.DeliveryClaim {
	if r == nil {
		return core.DeliveryClaim{}
	}
	return core.DeliveryClaim{
		ID:         r.ID,
		Source:     r.Source,
		DeliveryID: r.DeliveryID,
		EventID:    r.EventID,
		CreatedAt:  r.CreatedAt,
		ExpiresAt:  r.ExpiresAt,
	}
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
