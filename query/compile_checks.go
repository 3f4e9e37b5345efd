package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/metorial/go-callbacks/core"
)

var (
	_ gocmd.Querier[GetEventMessage, core.CallbackEvent]                 = (*GetEventQuery)(nil)
	_ gocmd.Querier[GetCallbackMessage, core.Callback]                   = (*GetCallbackQuery)(nil)
	_ gocmd.Querier[ListDestinationsMessage, []core.CallbackDestination] = (*ListDestinationsQuery)(nil)
	_ gocmd.Querier[ListDueCallbacksMessage, []core.Callback]            = (*ListDueCallbacksQuery)(nil)
	_ gocmd.Querier[ResolveDeliveryMessage, core.DeliveryClaim]          = (*ResolveDeliveryQuery)(nil)
)
