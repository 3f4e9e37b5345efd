package sqlstore

import "github.com/metorial/go-callbacks/core"

var (
	_ core.CallbackStore      = (*CallbackStore)(nil)
	_ core.DestinationReader  = (*DestinationStore)(nil)
	_ core.DestinationReader  = (*CachedDestinationStore)(nil)
	_ core.EventStore         = (*EventStore)(nil)
	_ core.DeliveryClaimStore = (*DeliveryClaimStore)(nil)
)
