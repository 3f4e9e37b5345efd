package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/metorial/go-callbacks/core"
	"github.com/metorial/go-callbacks/schedule"
)

type EventMutator interface {
	RecordEvent(ctx context.Context, in core.NewEventInput) (core.CallbackEvent, error)
	ReplayEvent(ctx context.Context, id string) (core.CallbackEvent, error)
	MarkEventFailed(ctx context.Context, id string, reason string) error
}

type CallbackAdmin interface {
	Create(ctx context.Context, in core.CreateCallbackInput) (core.Callback, error)
	SoftDelete(ctx context.Context, id string) error
}

type DestinationAdmin interface {
	Create(ctx context.Context, in core.CreateDestinationInput) (core.CallbackDestination, error)
	Deactivate(ctx context.Context, id string) error
}

type DispatchRunner interface {
	RunOnce(ctx context.Context) (schedule.BatchResult, error)
}

type PollRunner interface {
	RunOnce(ctx context.Context) (schedule.PollResult, error)
}

type CreateCallbackCommand struct {
	admin CallbackAdmin
}

func NewCreateCallbackCommand(admin CallbackAdmin) *CreateCallbackCommand {
	return &CreateCallbackCommand{admin: admin}
}

func (c *CreateCallbackCommand) Execute(ctx context.Context, msg CreateCallbackMessage) error {
	if c == nil || c.admin == nil {
		return commandDependencyError("command: callback admin is required")
	}
	out, err := c.admin.Create(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeleteCallbackCommand struct {
	admin CallbackAdmin
}

func NewDeleteCallbackCommand(admin CallbackAdmin) *DeleteCallbackCommand {
	return &DeleteCallbackCommand{admin: admin}
}

func (c *DeleteCallbackCommand) Execute(ctx context.Context, msg DeleteCallbackMessage) error {
	if c == nil || c.admin == nil {
		return commandDependencyError("command: callback admin is required")
	}
	return c.admin.SoftDelete(ctx, msg.CallbackID)
}

type CreateDestinationCommand struct {
	admin DestinationAdmin
}

func NewCreateDestinationCommand(admin DestinationAdmin) *CreateDestinationCommand {
	return &CreateDestinationCommand{admin: admin}
}

func (c *CreateDestinationCommand) Execute(ctx context.Context, msg CreateDestinationMessage) error {
	if c == nil || c.admin == nil {
		return commandDependencyError("command: destination admin is required")
	}
	out, err := c.admin.Create(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeactivateDestinationCommand struct {
	admin DestinationAdmin
}

func NewDeactivateDestinationCommand(admin DestinationAdmin) *DeactivateDestinationCommand {
	return &DeactivateDestinationCommand{admin: admin}
}

func (c *DeactivateDestinationCommand) Execute(ctx context.Context, msg DeactivateDestinationMessage) error {
	if c == nil || c.admin == nil {
		return commandDependencyError("command: destination admin is required")
	}
	return c.admin.Deactivate(ctx, msg.DestinationID)
}

type RecordEventCommand struct {
	service EventMutator
}

func NewRecordEventCommand(service EventMutator) *RecordEventCommand {
	return &RecordEventCommand{service: service}
}

func (c *RecordEventCommand) Execute(ctx context.Context, msg RecordEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: event service is required")
	}
	out, err := c.service.RecordEvent(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReplayEventCommand struct {
	service EventMutator
}

func NewReplayEventCommand(service EventMutator) *ReplayEventCommand {
	return &ReplayEventCommand{service: service}
}

func (c *ReplayEventCommand) Execute(ctx context.Context, msg ReplayEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: event service is required")
	}
	out, err := c.service.ReplayEvent(ctx, msg.EventID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type MarkEventFailedCommand struct {
	service EventMutator
}

func NewMarkEventFailedCommand(service EventMutator) *MarkEventFailedCommand {
	return &MarkEventFailedCommand{service: service}
}

func (c *MarkEventFailedCommand) Execute(ctx context.Context, msg MarkEventFailedMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: event service is required")
	}
	return c.service.MarkEventFailed(ctx, msg.EventID, msg.Reason)
}

type DispatchDueCommand struct {
	runner DispatchRunner
}

func NewDispatchDueCommand(runner DispatchRunner) *DispatchDueCommand {
	return &DispatchDueCommand{runner: runner}
}

func (c *DispatchDueCommand) Execute(ctx context.Context, _ DispatchDueMessage) error {
	if c == nil || c.runner == nil {
		return commandDependencyError("command: dispatch runner is required")
	}
	out, err := c.runner.RunOnce(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PollDueCommand struct {
	runner PollRunner
}

func NewPollDueCommand(runner PollRunner) *PollDueCommand {
	return &PollDueCommand{runner: runner}
}

func (c *PollDueCommand) Execute(ctx context.Context, _ PollDueMessage) error {
	if c == nil || c.runner == nil {
		return commandDependencyError("command: poll runner is required")
	}
	out, err := c.runner.RunOnce(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
