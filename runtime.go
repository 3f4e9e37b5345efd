package callbacks

import (
	"fmt"

	adapterlogger "github.com/metorial/go-callbacks/adapters/gologger"
	"github.com/metorial/go-callbacks/core"
	"github.com/metorial/go-callbacks/dispatch"
	"github.com/metorial/go-callbacks/ingest"
	"github.com/metorial/go-callbacks/schedule"
)

// Runtime bundles the delivery-side workers built from an engine's resolved
// configuration. Construction is where each config section reaches its
// consumer: delivery bounds feed the dispatcher and retry policy, scheduler
// bounds feed the batch loops, and the ingest claim TTL feeds the endpoint.
type Runtime struct {
	dispatcher *dispatch.Dispatcher
	scheduler  *schedule.Scheduler
	poller     *schedule.Poller
	endpoint   *ingest.Endpoint
}

type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	provider core.LoggerProvider
	logger   core.Logger
	client   dispatch.HTTPDoer
	fetcher  schedule.Fetcher
	secrets  ingest.SecretResolver
}

func WithRuntimeLoggerProvider(provider core.LoggerProvider) RuntimeOption {
	return func(options *runtimeOptions) {
		options.provider = provider
	}
}

func WithRuntimeLogger(logger core.Logger) RuntimeOption {
	return func(options *runtimeOptions) {
		options.logger = logger
	}
}

func WithRuntimeHTTPClient(client dispatch.HTTPDoer) RuntimeOption {
	return func(options *runtimeOptions) {
		options.client = client
	}
}

func WithRuntimeFetcher(fetcher schedule.Fetcher) RuntimeOption {
	return func(options *runtimeOptions) {
		options.fetcher = fetcher
	}
}

// WithRuntimeSecretResolver enables the ingestion endpoint. Without a secret
// resolver the runtime carries no endpoint and serves push-side work only.
func WithRuntimeSecretResolver(secrets ingest.SecretResolver) RuntimeOption {
	return func(options *runtimeOptions) {
		options.secrets = secrets
	}
}

func NewRuntime(engine *core.Engine, opts ...RuntimeOption) (*Runtime, error) {
	if engine == nil {
		return nil, fmt.Errorf("callbacks: engine is required")
	}
	options := runtimeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&options)
	}

	cfg := engine.Config()
	_, logger := adapterlogger.Resolve(cfg.ServiceName, options.provider, options.logger)

	dispatcherOptions := []dispatch.DispatcherOption{
		dispatch.WithTimeout(cfg.Delivery.Timeout()),
	}
	if options.client != nil {
		dispatcherOptions = append(dispatcherOptions, dispatch.WithHTTPClient(options.client))
	}
	dispatcher, err := dispatch.NewDispatcher(engine.EventStore(), dispatcherOptions...)
	if err != nil {
		return nil, err
	}

	scheduler, err := schedule.NewScheduler(
		engine.EventStore(),
		engine.Registry(),
		dispatcher,
		schedule.WithRetryPolicy(dispatch.ExponentialRetryPolicy{
			Base: cfg.Delivery.BaseDelay(),
			Max:  cfg.Delivery.MaxDelay(),
		}),
		schedule.WithMaxAttempts(cfg.Delivery.MaxAttempts),
		schedule.WithLease(cfg.Scheduler.Lease()),
		schedule.WithBatchSize(cfg.Scheduler.BatchSize),
		schedule.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	fetcher := options.fetcher
	if fetcher == nil {
		httpFetcher := schedule.NewHTTPFetcher()
		httpFetcher.Timeout = cfg.Scheduler.PollTimeout()
		fetcher = httpFetcher
	}
	poller, err := schedule.NewPoller(
		engine.Registry(),
		engine.Callbacks(),
		engine,
		fetcher,
		schedule.WithPollBatchSize(cfg.Scheduler.PollBatchSize),
		schedule.WithPollLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	var endpoint *ingest.Endpoint
	if options.secrets != nil {
		claims := engine.DeliveryClaims()
		if claims == nil {
			return nil, fmt.Errorf("callbacks: ingestion requires a delivery claim store on the engine")
		}
		endpoint, err = ingest.NewEndpoint(
			engine,
			claims,
			options.secrets,
			ingest.WithClaimTTL(cfg.Ingest.ClaimTTL()),
			ingest.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
	}

	return &Runtime{
		dispatcher: dispatcher,
		scheduler:  scheduler,
		poller:     poller,
		endpoint:   endpoint,
	}, nil
}

func (r *Runtime) Dispatcher() *dispatch.Dispatcher {
	if r == nil {
		return nil
	}
	return r.dispatcher
}

func (r *Runtime) Scheduler() *schedule.Scheduler {
	if r == nil {
		return nil
	}
	return r.scheduler
}

func (r *Runtime) Poller() *schedule.Poller {
	if r == nil {
		return nil
	}
	return r.poller
}

// Endpoint is nil unless the runtime was built with a secret resolver.
func (r *Runtime) Endpoint() *ingest.Endpoint {
	if r == nil {
		return nil
	}
	return r.endpoint
}
