package query

import (
	"context"
	"time"

	"github.com/metorial/go-callbacks/core"
)

type EventReader interface {
	GetEvent(ctx context.Context, id string) (core.CallbackEvent, error)
}

type CallbackReader interface {
	Get(ctx context.Context, id string) (core.Callback, error)
}

type DueCallbackReader interface {
	GetDueCallbacks(ctx context.Context, now time.Time, limit int) ([]core.Callback, error)
}

type DeliveryClaimReader interface {
	Resolve(ctx context.Context, source string, deliveryID string) (core.DeliveryClaim, error)
}

type GetEventQuery struct {
	reader EventReader
}

func NewGetEventQuery(reader EventReader) *GetEventQuery {
	return &GetEventQuery{reader: reader}
}

func (q *GetEventQuery) Query(ctx context.Context, msg GetEventMessage) (core.CallbackEvent, error) {
	if q == nil || q.reader == nil {
		return core.CallbackEvent{}, queryDependencyError("query: event reader is required")
	}
	return q.reader.GetEvent(ctx, msg.EventID)
}

type GetCallbackQuery struct {
	reader CallbackReader
}

func NewGetCallbackQuery(reader CallbackReader) *GetCallbackQuery {
	return &GetCallbackQuery{reader: reader}
}

func (q *GetCallbackQuery) Query(ctx context.Context, msg GetCallbackMessage) (core.Callback, error) {
	if q == nil || q.reader == nil {
		return core.Callback{}, queryDependencyError("query: callback reader is required")
	}
	return q.reader.Get(ctx, msg.CallbackID)
}

type ListDestinationsQuery struct {
	reader core.DestinationReader
}

func NewListDestinationsQuery(reader core.DestinationReader) *ListDestinationsQuery {
	return &ListDestinationsQuery{reader: reader}
}

func (q *ListDestinationsQuery) Query(
	ctx context.Context,
	msg ListDestinationsMessage,
) ([]core.CallbackDestination, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: destination reader is required")
	}
	return q.reader.ListActiveByInstance(ctx, msg.InstanceID)
}

type ListDueCallbacksQuery struct {
	reader DueCallbackReader
}

func NewListDueCallbacksQuery(reader DueCallbackReader) *ListDueCallbacksQuery {
	return &ListDueCallbacksQuery{reader: reader}
}

func (q *ListDueCallbacksQuery) Query(ctx context.Context, msg ListDueCallbacksMessage) ([]core.Callback, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: due callback reader is required")
	}
	now := msg.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return q.reader.GetDueCallbacks(ctx, now, msg.Limit)
}

type ResolveDeliveryQuery struct {
	reader DeliveryClaimReader
}

func NewResolveDeliveryQuery(reader DeliveryClaimReader) *ResolveDeliveryQuery {
	return &ResolveDeliveryQuery{reader: reader}
}

func (q *ResolveDeliveryQuery) Query(ctx context.Context, msg ResolveDeliveryMessage) (core.DeliveryClaim, error) {
	if q == nil || q.reader == nil {
		return core.DeliveryClaim{}, queryDependencyError("query: delivery claim reader is required")
	}
	return q.reader.Resolve(ctx, msg.Source, msg.DeliveryID)
}
