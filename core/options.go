package core

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type engineBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	callbackStore   CallbackStore
	destinations    DestinationReader
	eventStore      EventStore
	claimStore      DeliveryClaimStore
	enqueuer        JobEnqueuer
	now             func() time.Time
}

type Option func(*engineBuilder)

func WithLogger(logger Logger) Option {
	return func(b *engineBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *engineBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *engineBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *engineBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *engineBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *engineBuilder) {
		b.optionsResolver = resolver
	}
}

func WithCallbackStore(store CallbackStore) Option {
	return func(b *engineBuilder) {
		b.callbackStore = store
	}
}

func WithDestinationReader(reader DestinationReader) Option {
	return func(b *engineBuilder) {
		b.destinations = reader
	}
}

func WithEventStore(store EventStore) Option {
	return func(b *engineBuilder) {
		b.eventStore = store
	}
}

func WithDeliveryClaimStore(store DeliveryClaimStore) Option {
	return func(b *engineBuilder) {
		b.claimStore = store
	}
}

func WithJobEnqueuer(enqueuer JobEnqueuer) Option {
	return func(b *engineBuilder) {
		b.enqueuer = enqueuer
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *engineBuilder) {
		if now != nil {
			b.now = now
		}
	}
}

func defaultEngineBuilder(runtime Config) engineBuilder {
	loggerProvider, logger := glog.Resolve("callbacks", nil, nil)
	return engineBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return callbackErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || cfg.ServiceName != "" {
		layer["service_name"] = cfg.ServiceName
	}

	delivery := map[string]any{}
	if includeZero || cfg.Delivery.MaxAttempts > 0 {
		delivery["max_attempts"] = cfg.Delivery.MaxAttempts
	}
	if includeZero || cfg.Delivery.BaseDelayMs > 0 {
		delivery["base_delay_ms"] = cfg.Delivery.BaseDelayMs
	}
	if includeZero || cfg.Delivery.MaxDelayMs > 0 {
		delivery["max_delay_ms"] = cfg.Delivery.MaxDelayMs
	}
	if includeZero || cfg.Delivery.TimeoutMs > 0 {
		delivery["timeout_ms"] = cfg.Delivery.TimeoutMs
	}
	if len(delivery) > 0 {
		layer["delivery"] = delivery
	}

	if includeZero || cfg.Ingest.ClaimTTLMinutes > 0 {
		layer["ingest"] = map[string]any{
			"claim_ttl_minutes": cfg.Ingest.ClaimTTLMinutes,
		}
	}

	scheduler := map[string]any{}
	if includeZero || cfg.Scheduler.BatchSize > 0 {
		scheduler["batch_size"] = cfg.Scheduler.BatchSize
	}
	if includeZero || cfg.Scheduler.LeaseSeconds > 0 {
		scheduler["lease_seconds"] = cfg.Scheduler.LeaseSeconds
	}
	if includeZero || cfg.Scheduler.PollBatchSize > 0 {
		scheduler["poll_batch_size"] = cfg.Scheduler.PollBatchSize
	}
	if includeZero || cfg.Scheduler.PollTimeoutMs > 0 {
		scheduler["poll_timeout_ms"] = cfg.Scheduler.PollTimeoutMs
	}
	if includeZero || cfg.Scheduler.RegistryCacheTTLs > 0 {
		scheduler["registry_cache_ttl_s"] = cfg.Scheduler.RegistryCacheTTLs
	}
	if len(scheduler) > 0 {
		layer["scheduler"] = scheduler
	}
	return layer
}
