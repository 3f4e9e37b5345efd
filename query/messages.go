package query

import (
	"strings"
	"time"
)

const (
	TypeGetEvent         = "callbacks.query.event.get"
	TypeGetCallback      = "callbacks.query.callback.get"
	TypeListDestinations = "callbacks.query.destination.list"
	TypeListDueCallbacks = "callbacks.query.callback.due"
	TypeResolveDelivery  = "callbacks.query.delivery.resolve"
)

type GetEventMessage struct {
	EventID string
}

func (GetEventMessage) Type() string { return TypeGetEvent }

func (m GetEventMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return queryInvalidInputError("query: event id is required")
	}
	return nil
}

type GetCallbackMessage struct {
	CallbackID string
}

func (GetCallbackMessage) Type() string { return TypeGetCallback }

func (m GetCallbackMessage) Validate() error {
	if strings.TrimSpace(m.CallbackID) == "" {
		return queryInvalidInputError("query: callback id is required")
	}
	return nil
}

type ListDestinationsMessage struct {
	InstanceID string
}

func (ListDestinationsMessage) Type() string { return TypeListDestinations }

func (m ListDestinationsMessage) Validate() error {
	if strings.TrimSpace(m.InstanceID) == "" {
		return queryInvalidInputError("query: instance id is required")
	}
	return nil
}

type ListDueCallbacksMessage struct {
	Now   time.Time
	Limit int
}

func (ListDueCallbacksMessage) Type() string { return TypeListDueCallbacks }

func (m ListDueCallbacksMessage) Validate() error {
	if m.Limit < 0 {
		return queryInvalidInputError("query: limit must be >= 0")
	}
	return nil
}

type ResolveDeliveryMessage struct {
	Source     string
	DeliveryID string
}

func (ResolveDeliveryMessage) Type() string { return TypeResolveDelivery }

func (m ResolveDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.Source) == "" {
		return queryInvalidInputError("query: delivery source is required")
	}
	if strings.TrimSpace(m.DeliveryID) == "" {
		return queryInvalidInputError("query: delivery id is required")
	}
	return nil
}
