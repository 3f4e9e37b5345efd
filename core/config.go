package core

import (
	"fmt"
	"strings"
	"time"
)

type DeliveryConfig struct {
	MaxAttempts int `koanf:"max_attempts" mapstructure:"max_attempts"`
	BaseDelayMs int `koanf:"base_delay_ms" mapstructure:"base_delay_ms"`
	MaxDelayMs  int `koanf:"max_delay_ms" mapstructure:"max_delay_ms"`
	TimeoutMs   int `koanf:"timeout_ms" mapstructure:"timeout_ms"`
}

func (c DeliveryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMs) * time.Millisecond
}

func (c DeliveryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}

func (c DeliveryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

type IngestConfig struct {
	ClaimTTLMinutes int `koanf:"claim_ttl_minutes" mapstructure:"claim_ttl_minutes"`
}

func (c IngestConfig) ClaimTTL() time.Duration {
	return time.Duration(c.ClaimTTLMinutes) * time.Minute
}

type SchedulerConfig struct {
	BatchSize         int `koanf:"batch_size" mapstructure:"batch_size"`
	LeaseSeconds      int `koanf:"lease_seconds" mapstructure:"lease_seconds"`
	PollBatchSize     int `koanf:"poll_batch_size" mapstructure:"poll_batch_size"`
	PollTimeoutMs     int `koanf:"poll_timeout_ms" mapstructure:"poll_timeout_ms"`
	RegistryCacheTTLs int `koanf:"registry_cache_ttl_s" mapstructure:"registry_cache_ttl_s"`
}

func (c SchedulerConfig) Lease() time.Duration {
	return time.Duration(c.LeaseSeconds) * time.Second
}

func (c SchedulerConfig) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutMs) * time.Millisecond
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	Delivery    DeliveryConfig  `koanf:"delivery" mapstructure:"delivery"`
	Ingest      IngestConfig    `koanf:"ingest" mapstructure:"ingest"`
	Scheduler   SchedulerConfig `koanf:"scheduler" mapstructure:"scheduler"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "callbacks",
		Delivery: DeliveryConfig{
			MaxAttempts: 20,
			BaseDelayMs: 1000,
			MaxDelayMs:  int((30 * time.Minute).Milliseconds()),
			TimeoutMs:   int((10 * time.Second).Milliseconds()),
		},
		Ingest: IngestConfig{
			// providers do not replay indefinitely; three days of dedupe
			// retention covers GitHub-style redelivery windows
			ClaimTTLMinutes: 3 * 24 * 60,
		},
		Scheduler: SchedulerConfig{
			BatchSize:         50,
			LeaseSeconds:      60,
			PollBatchSize:     20,
			PollTimeoutMs:     int((15 * time.Second).Milliseconds()),
			RegistryCacheTTLs: 5,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Delivery.MaxAttempts <= 0 {
		return fmt.Errorf("core: delivery.max_attempts must be positive")
	}
	if c.Delivery.BaseDelayMs <= 0 || c.Delivery.MaxDelayMs < c.Delivery.BaseDelayMs {
		return fmt.Errorf("core: delivery backoff bounds are invalid")
	}
	if c.Delivery.TimeoutMs <= 0 {
		return fmt.Errorf("core: delivery.timeout_ms must be positive")
	}
	if c.Ingest.ClaimTTLMinutes <= 0 {
		return fmt.Errorf("core: ingest.claim_ttl_minutes must be positive")
	}
	if c.Scheduler.BatchSize <= 0 || c.Scheduler.LeaseSeconds <= 0 {
		return fmt.Errorf("core: scheduler batch size and lease must be positive")
	}
	return nil
}
