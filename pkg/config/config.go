// Package config holds the client configuration surface: endpoint, channel
// pool sizing, request timeout, retry strategy, error delivery mode, logging
// and observability. Configuration can be built in code starting from
// DefaultConfig or loaded from YAML.
//
// Example:
//
//	cfg, err := config.Load("relay.yaml")
//	if err != nil {
//		return err
//	}
//	cfg.Channels.Count = 8
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Retry strategy names
const (
	StrategyNever        = "never"
	StrategyFixedCount   = "fixed_count"
	StrategyFixedTimeout = "fixed_timeout"
	StrategyExponential  = "exponential"
)

// Config is the complete client configuration
type Config struct {
	// Endpoint is the host:port of the cache service
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	TLS      TLSConfig     `json:"tls" yaml:"tls"`
	Channels ChannelConfig `json:"channels" yaml:"channels"`

	// RequestTimeout is the overall budget of one logical call, retries included
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`

	// ErrorMode is "value" (errors inside the response union) or "throw"
	ErrorMode string `json:"error_mode" yaml:"error_mode"`

	Retry         RetryConfig         `json:"retry" yaml:"retry"`
	Logging       LoggingConfig       `json:"logging" yaml:"logging"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// TLSConfig configures transport security
type TLSConfig struct {
	// Insecure disables TLS entirely; for local development only
	Insecure           bool   `json:"insecure" yaml:"insecure"`
	CAFile             string `json:"ca_file,omitempty" yaml:"ca_file,omitempty"`
	ServerName         string `json:"server_name,omitempty" yaml:"server_name,omitempty"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// ChannelConfig sizes and tunes the channel pool
type ChannelConfig struct {
	Count                        int           `json:"count" yaml:"count"`
	MaxIdle                      time.Duration `json:"max_idle" yaml:"max_idle"`
	KeepAliveTime                time.Duration `json:"keep_alive_time" yaml:"keep_alive_time"`
	KeepAliveTimeout             time.Duration `json:"keep_alive_timeout" yaml:"keep_alive_timeout"`
	KeepAlivePermitWithoutStream bool          `json:"keep_alive_permit_without_stream" yaml:"keep_alive_permit_without_stream"`
	MaxSendMessageBytes          int           `json:"max_send_message_bytes" yaml:"max_send_message_bytes"`
	MaxRecvMessageBytes          int           `json:"max_recv_message_bytes" yaml:"max_recv_message_bytes"`
	// Prewarm connects every channel when the client is built
	Prewarm bool `json:"prewarm" yaml:"prewarm"`
}

// RetryConfig selects and tunes the retry strategy
type RetryConfig struct {
	Strategy    string `json:"strategy" yaml:"strategy"`
	MaxAttempts int    `json:"max_attempts" yaml:"max_attempts"`

	// fixed_timeout
	RetryDelayInterval          time.Duration `json:"retry_delay_interval" yaml:"retry_delay_interval"`
	ResponseDataReceivedTimeout time.Duration `json:"response_data_received_timeout" yaml:"response_data_received_timeout"`
	Jitter                      float64       `json:"jitter" yaml:"jitter"`

	// exponential
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay" yaml:"max_delay"`
	Multiplier   float64       `json:"multiplier" yaml:"multiplier"`
}

// LoggingConfig selects the logger
type LoggingConfig struct {
	Level   string `json:"level" yaml:"level"`
	Format  string `json:"format" yaml:"format"`
	Backend string `json:"backend" yaml:"backend"`
}

// ObservabilityConfig enables metrics and tracing
type ObservabilityConfig struct {
	EnableMetrics    bool          `json:"enable_metrics" yaml:"enable_metrics"`
	EnableTracing    bool          `json:"enable_tracing" yaml:"enable_tracing"`
	MetricsNamespace string        `json:"metrics_namespace" yaml:"metrics_namespace"`
	Tracing          TracingConfig `json:"tracing" yaml:"tracing"`
}

// TracingConfig configures the OpenTelemetry exporter
type TracingConfig struct {
	ServiceName string  `json:"service_name" yaml:"service_name"`
	Exporter    string  `json:"exporter" yaml:"exporter"`
	Endpoint    string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Insecure    bool    `json:"insecure" yaml:"insecure"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`
}

// DefaultConfig returns a configuration suitable for in-region traffic
func DefaultConfig() Config {
	return Config{
		Channels: ChannelConfig{
			Count:               6,
			MaxIdle:             4 * time.Minute,
			KeepAliveTime:       5 * time.Second,
			KeepAliveTimeout:    1 * time.Second,
			MaxSendMessageBytes: 5 * 1024 * 1024,
			MaxRecvMessageBytes: 5 * 1024 * 1024,
		},
		RequestTimeout: 5 * time.Second,
		ErrorMode:      "value",
		Retry: RetryConfig{
			Strategy:                    StrategyFixedCount,
			MaxAttempts:                 3,
			RetryDelayInterval:          100 * time.Millisecond,
			ResponseDataReceivedTimeout: 1 * time.Second,
			Jitter:                      0.1,
			InitialDelay:                50 * time.Millisecond,
			MaxDelay:                    2 * time.Second,
			Multiplier:                  2,
		},
		Logging: LoggingConfig{
			Level:   "warn",
			Format:  "text",
			Backend: "builtin",
		},
		Observability: ObservabilityConfig{
			MetricsNamespace: "relay",
			Tracing: TracingConfig{
				ServiceName: "relay-client",
				Exporter:    "noop",
				SampleRate:  1.0,
			},
		},
	}
}

// Load reads a YAML file; keys it omits keep their defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over DefaultConfig and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for values no component can work with
func (c *Config) Validate() error {
	var errs []error

	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}
	if c.Channels.Count < 0 {
		errs = append(errs, errors.New("channels.count must not be negative"))
	}
	if c.Channels.MaxIdle < 0 {
		errs = append(errs, errors.New("channels.max_idle must not be negative"))
	}
	if c.Channels.MaxSendMessageBytes < 0 || c.Channels.MaxRecvMessageBytes < 0 {
		errs = append(errs, errors.New("channels message size limits must not be negative"))
	}

	switch strings.ToLower(c.ErrorMode) {
	case "", "value", "throw":
	default:
		errs = append(errs, fmt.Errorf("error_mode must be \"value\" or \"throw\", got %q", c.ErrorMode))
	}

	if err := c.Retry.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Observability.EnableTracing {
		rate := c.Observability.Tracing.SampleRate
		if rate < 0 || rate > 1 {
			errs = append(errs, fmt.Errorf("observability.tracing.sample_rate must be within [0,1], got %v", rate))
		}
	}

	return errors.Join(errs...)
}

// Validate checks the retry section
func (r RetryConfig) Validate() error {
	switch r.Strategy {
	case "", StrategyNever:
		return nil
	case StrategyFixedCount:
		if r.MaxAttempts < 0 {
			return errors.New("retry.max_attempts must not be negative")
		}
	case StrategyFixedTimeout:
		if r.RetryDelayInterval < 0 || r.ResponseDataReceivedTimeout < 0 {
			return errors.New("retry intervals must not be negative")
		}
		if r.Jitter < 0 || r.Jitter >= 1 {
			return fmt.Errorf("retry.jitter must be within [0,1), got %v", r.Jitter)
		}
	case StrategyExponential:
		if r.InitialDelay <= 0 {
			return errors.New("retry.initial_delay must be positive")
		}
		if r.MaxDelay < r.InitialDelay {
			return errors.New("retry.max_delay must not be below initial_delay")
		}
		if r.Multiplier < 1 {
			return fmt.Errorf("retry.multiplier must be at least 1, got %v", r.Multiplier)
		}
	default:
		return fmt.Errorf("unknown retry strategy %q", r.Strategy)
	}
	return nil
}
