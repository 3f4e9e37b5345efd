package callbacks

import "github.com/metorial/go-callbacks/core"

type Config = core.Config

type DeliveryConfig = core.DeliveryConfig

type IngestConfig = core.IngestConfig

type SchedulerConfig = core.SchedulerConfig

type Option = core.Option

type Engine = core.Engine

type Callback = core.Callback
type CallbackDestination = core.CallbackDestination
type CallbackEvent = core.CallbackEvent
type ProcessingAttempt = core.ProcessingAttempt
type RoutingRule = core.RoutingRule
type Schedule = core.Schedule

type NewEventInput = core.NewEventInput
type CreateCallbackInput = core.CreateCallbackInput
type CreateDestinationInput = core.CreateDestinationInput

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithErrorMapper        = core.WithErrorMapper
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithCallbackStore      = core.WithCallbackStore
	WithDestinationReader  = core.WithDestinationReader
	WithEventStore         = core.WithEventStore
	WithDeliveryClaimStore = core.WithDeliveryClaimStore
	WithJobEnqueuer        = core.WithJobEnqueuer
	WithClock              = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	return core.NewEngine(cfg, opts...)
}
