package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[CreateCallbackMessage]        = (*CreateCallbackCommand)(nil)
	_ gocmd.Commander[DeleteCallbackMessage]        = (*DeleteCallbackCommand)(nil)
	_ gocmd.Commander[CreateDestinationMessage]     = (*CreateDestinationCommand)(nil)
	_ gocmd.Commander[DeactivateDestinationMessage] = (*DeactivateDestinationCommand)(nil)
	_ gocmd.Commander[RecordEventMessage]           = (*RecordEventCommand)(nil)
	_ gocmd.Commander[ReplayEventMessage]           = (*ReplayEventCommand)(nil)
	_ gocmd.Commander[MarkEventFailedMessage]       = (*MarkEventFailedCommand)(nil)
	_ gocmd.Commander[DispatchDueMessage]           = (*DispatchDueCommand)(nil)
	_ gocmd.Commander[PollDueMessage]               = (*PollDueCommand)(nil)
)
