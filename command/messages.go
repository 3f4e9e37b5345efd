package command

import (
	"strings"

	"github.com/metorial/go-callbacks/core"
)

const (
	TypeCreateCallback        = "callbacks.command.callback.create"
	TypeDeleteCallback        = "callbacks.command.callback.delete"
	TypeCreateDestination     = "callbacks.command.destination.create"
	TypeDeactivateDestination = "callbacks.command.destination.deactivate"
	TypeRecordEvent           = "callbacks.command.event.record"
	TypeReplayEvent           = "callbacks.command.event.replay"
	TypeMarkEventFailed       = "callbacks.command.event.mark_failed"
	TypeDispatchDue           = "callbacks.command.dispatch.run"
	TypePollDue               = "callbacks.command.poll.run"
)

type CreateCallbackMessage struct {
	Input core.CreateCallbackInput
}

func (CreateCallbackMessage) Type() string { return TypeCreateCallback }

func (m CreateCallbackMessage) Validate() error {
	if strings.TrimSpace(m.Input.InstanceID) == "" {
		return commandInvalidInputError("command: instance id is required")
	}
	if !m.Input.Type.Valid() {
		return commandInvalidInputError("command: callback type is required")
	}
	if m.Input.Type == core.CallbackTypePolling {
		if m.Input.Schedule == nil || m.Input.Schedule.IntervalSeconds <= 0 {
			return commandInvalidInputError("command: polling callback requires a schedule interval")
		}
	}
	return nil
}

type DeleteCallbackMessage struct {
	CallbackID string
}

func (DeleteCallbackMessage) Type() string { return TypeDeleteCallback }

func (m DeleteCallbackMessage) Validate() error {
	if strings.TrimSpace(m.CallbackID) == "" {
		return commandInvalidInputError("command: callback id is required")
	}
	return nil
}

type CreateDestinationMessage struct {
	Input core.CreateDestinationInput
}

func (CreateDestinationMessage) Type() string { return TypeCreateDestination }

func (m CreateDestinationMessage) Validate() error {
	if strings.TrimSpace(m.Input.InstanceID) == "" {
		return commandInvalidInputError("command: instance id is required")
	}
	if strings.TrimSpace(m.Input.URL) == "" {
		return commandInvalidInputError("command: destination url is required")
	}
	if strings.TrimSpace(m.Input.SigningSecret) == "" {
		return commandInvalidInputError("command: signing secret is required")
	}
	if err := m.Input.Rule.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid routing rule")
	}
	return nil
}

type DeactivateDestinationMessage struct {
	DestinationID string
}

func (DeactivateDestinationMessage) Type() string { return TypeDeactivateDestination }

func (m DeactivateDestinationMessage) Validate() error {
	if strings.TrimSpace(m.DestinationID) == "" {
		return commandInvalidInputError("command: destination id is required")
	}
	return nil
}

type RecordEventMessage struct {
	Input core.NewEventInput
}

func (RecordEventMessage) Type() string { return TypeRecordEvent }

func (m RecordEventMessage) Validate() error {
	if strings.TrimSpace(m.Input.CallbackID) == "" {
		return commandInvalidInputError("command: callback id is required")
	}
	if strings.TrimSpace(m.Input.Type) == "" {
		return commandInvalidInputError("command: event type is required")
	}
	return nil
}

type ReplayEventMessage struct {
	EventID string
}

func (ReplayEventMessage) Type() string { return TypeReplayEvent }

func (m ReplayEventMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return commandInvalidInputError("command: event id is required")
	}
	return nil
}

type MarkEventFailedMessage struct {
	EventID string
	Reason  string
}

func (MarkEventFailedMessage) Type() string { return TypeMarkEventFailed }

func (m MarkEventFailedMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return commandInvalidInputError("command: event id is required")
	}
	return nil
}

type DispatchDueMessage struct{}

func (DispatchDueMessage) Type() string { return TypeDispatchDue }

func (DispatchDueMessage) Validate() error { return nil }

type PollDueMessage struct{}

func (PollDueMessage) Type() string { return TypePollDue }

func (PollDueMessage) Validate() error { return nil }
