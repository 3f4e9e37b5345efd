package callbacks

import (
	"fmt"

	callbackscommand "github.com/metorial/go-callbacks/command"
	"github.com/metorial/go-callbacks/core"
	callbacksquery "github.com/metorial/go-callbacks/query"
)

type Commands struct {
	CreateCallback        *callbackscommand.CreateCallbackCommand
	DeleteCallback        *callbackscommand.DeleteCallbackCommand
	CreateDestination     *callbackscommand.CreateDestinationCommand
	DeactivateDestination *callbackscommand.DeactivateDestinationCommand
	RecordEvent           *callbackscommand.RecordEventCommand
	ReplayEvent           *callbackscommand.ReplayEventCommand
	MarkEventFailed       *callbackscommand.MarkEventFailedCommand
	DispatchDue           *callbackscommand.DispatchDueCommand
	PollDue               *callbackscommand.PollDueCommand
}

type Queries struct {
	GetEvent         *callbacksquery.GetEventQuery
	GetCallback      *callbacksquery.GetCallbackQuery
	ListDestinations *callbacksquery.ListDestinationsQuery
	ListDueCallbacks *callbacksquery.ListDueCallbacksQuery
	ResolveDelivery  *callbacksquery.ResolveDeliveryQuery
}

// Facade bundles the command and query handlers around one engine. Admin
// surfaces that the engine does not own, destination writes and the batch
// runners, are injected through options and stay nil-safe until configured.
type Facade struct {
	engine   *core.Engine
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	destinationAdmin callbackscommand.DestinationAdmin
	dispatchRunner   callbackscommand.DispatchRunner
	pollRunner       callbackscommand.PollRunner
}

func WithDestinationAdmin(admin callbackscommand.DestinationAdmin) FacadeOption {
	return func(options *facadeOptions) {
		options.destinationAdmin = admin
	}
}

func WithDispatchRunner(runner callbackscommand.DispatchRunner) FacadeOption {
	return func(options *facadeOptions) {
		options.dispatchRunner = runner
	}
}

func WithPollRunner(runner callbackscommand.PollRunner) FacadeOption {
	return func(options *facadeOptions) {
		options.pollRunner = runner
	}
}

// WithRuntime wires the runtime's scheduler and poller in as the batch
// runners behind the DispatchDue and PollDue commands.
func WithRuntime(runtime *Runtime) FacadeOption {
	return func(options *facadeOptions) {
		if runtime == nil {
			return
		}
		if runtime.scheduler != nil {
			options.dispatchRunner = runtime.scheduler
		}
		if runtime.poller != nil {
			options.pollRunner = runtime.poller
		}
	}
}

func NewFacade(engine *core.Engine, opts ...FacadeOption) (*Facade, error) {
	if engine == nil {
		return nil, fmt.Errorf("callbacks: engine is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	admin := cfg.destinationAdmin
	if admin == nil {
		if store, ok := engine.Destinations().(callbackscommand.DestinationAdmin); ok {
			admin = store
		}
	}

	facade := &Facade{engine: engine}
	facade.commands = Commands{
		CreateCallback:        callbackscommand.NewCreateCallbackCommand(engine.Callbacks()),
		DeleteCallback:        callbackscommand.NewDeleteCallbackCommand(engine.Callbacks()),
		CreateDestination:     callbackscommand.NewCreateDestinationCommand(admin),
		DeactivateDestination: callbackscommand.NewDeactivateDestinationCommand(admin),
		RecordEvent:           callbackscommand.NewRecordEventCommand(engine),
		ReplayEvent:           callbackscommand.NewReplayEventCommand(engine),
		MarkEventFailed:       callbackscommand.NewMarkEventFailedCommand(engine),
		DispatchDue:           callbackscommand.NewDispatchDueCommand(cfg.dispatchRunner),
		PollDue:               callbackscommand.NewPollDueCommand(cfg.pollRunner),
	}
	facade.queries = Queries{
		GetEvent:         callbacksquery.NewGetEventQuery(engine),
		GetCallback:      callbacksquery.NewGetCallbackQuery(engine.Callbacks()),
		ListDestinations: callbacksquery.NewListDestinationsQuery(engine.Destinations()),
		ListDueCallbacks: callbacksquery.NewListDueCallbacksQuery(engine.Registry()),
		ResolveDelivery:  callbacksquery.NewResolveDeliveryQuery(engine.DeliveryClaims()),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Engine() *core.Engine {
	if f == nil {
		return nil
	}
	return f.engine
}
