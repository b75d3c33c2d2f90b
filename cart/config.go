package cart

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultStorageKey is the fixed durable slot the engine snapshot lives
// under. It matches the storage key the original web client persisted to,
// so a deployment can keep one stable key across versions.
const DefaultStorageKey = "groupkart-storage"

// Persistence providers selectable via configuration. The sqlite provider
// lives in the cart/sqlite package and is wired by the composition root
// with WithSnapshots; it cannot be constructed here without an import
// cycle.
const (
	PersistenceNone   = "none"
	PersistenceMemory = "memory"
	PersistenceRedis  = "redis"
)

// Config holds configuration for the cart engine and its collaborators.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithServiceName("groupkart"),
//	    WithPersistence(PersistenceRedis),
//	    WithRedisURL("redis://localhost:6379"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	// ServiceName identifies this process in logs and telemetry.
	ServiceName string `json:"service_name" yaml:"service_name" env:"GROUPKART_SERVICE_NAME"`

	// StorageKey is the durable slot the state snapshot is written to.
	StorageKey string `json:"storage_key" yaml:"storage_key" env:"GROUPKART_STORAGE_KEY"`

	// Persistence configuration
	Persistence PersistenceConfig `json:"persistence" yaml:"persistence"`

	// Telemetry configuration (optional module)
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// PersistenceConfig selects and configures the snapshot medium.
type PersistenceConfig struct {
	Provider  string `json:"provider" yaml:"provider" env:"GROUPKART_PERSISTENCE_PROVIDER"`
	RedisURL  string `json:"redis_url" yaml:"redis_url" env:"GROUPKART_REDIS_URL"`
	Namespace string `json:"namespace" yaml:"namespace" env:"GROUPKART_REDIS_NAMESPACE"`
}

// TelemetryConfig configures the optional OpenTelemetry provider.
type TelemetryConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled" env:"GROUPKART_TELEMETRY_ENABLED"`
	Endpoint string `json:"endpoint" yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// LoggingConfig configures the ProductionLogger.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"GROUPKART_LOG_LEVEL"`
	Format string `json:"format" yaml:"format" env:"GROUPKART_LOG_FORMAT"`
}

// DefaultConfig returns a Config populated with defaults only.
func DefaultConfig() *Config {
	return &Config{
		ServiceName: "groupkart",
		StorageKey:  DefaultStorageKey,
		Persistence: PersistenceConfig{
			Provider:  PersistenceMemory,
			Namespace: "groupkart",
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables take precedence over defaults but are overridden
// by functional options.
func (c *Config) LoadFromEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadFromFile loads configuration from a JSON or YAML file. File values
// are applied on top of whatever the Config already holds.
func (c *Config) LoadFromFile(path string) error {
	cleanPath := filepath.Clean(path)

	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %s: %w", ext, ErrInvalidConfiguration)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", cleanPath, err)
	}

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse JSON config file: %v: %w", err, ErrInvalidConfiguration)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse YAML config file: %v: %w", err, ErrInvalidConfiguration)
		}
	}

	return nil
}

// Validate checks if the configuration is valid and returns an error if
// not. Called automatically by NewConfig() but can also be called manually
// after modifying configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return &StoreError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "service name is required",
			Err:     ErrMissingConfiguration,
		}
	}

	if strings.TrimSpace(c.StorageKey) == "" {
		return &StoreError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "storage key is required",
			Err:     ErrMissingConfiguration,
		}
	}

	switch c.Persistence.Provider {
	case PersistenceNone, PersistenceMemory:
	case PersistenceRedis:
		if strings.TrimSpace(c.Persistence.RedisURL) == "" {
			return &StoreError{
				Op:      "Config.Validate",
				Kind:    "config",
				Message: "redis URL is required when the redis persistence provider is selected",
				Err:     ErrMissingConfiguration,
			}
		}
	default:
		return &StoreError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("unknown persistence provider: %q", c.Persistence.Provider),
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.Telemetry.Enabled && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		return &StoreError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "telemetry endpoint is required when telemetry is enabled",
			Err:     ErrMissingConfiguration,
		}
	}

	return nil
}

// Option is a functional option for Config.
type Option func(*Config) error

// WithServiceName sets the service name used in logs and telemetry.
func WithServiceName(name string) Option {
	return func(c *Config) error {
		c.ServiceName = name
		return nil
	}
}

// WithStorageKey overrides the durable slot key the snapshot is saved under.
func WithStorageKey(key string) Option {
	return func(c *Config) error {
		c.StorageKey = key
		return nil
	}
}

// WithPersistence selects the snapshot persistence provider.
func WithPersistence(provider string) Option {
	return func(c *Config) error {
		c.Persistence.Provider = provider
		return nil
	}
}

// WithRedisURL sets the Redis connection URL and selects the redis provider.
func WithRedisURL(url string) Option {
	return func(c *Config) error {
		c.Persistence.RedisURL = url
		c.Persistence.Provider = PersistenceRedis
		return nil
	}
}

// WithRedisNamespace sets the key namespace for the Redis snapshot slot.
func WithRedisNamespace(namespace string) Option {
	return func(c *Config) error {
		c.Persistence.Namespace = namespace
		return nil
	}
}

// WithTelemetry enables telemetry with the given OTLP endpoint.
func WithTelemetry(enabled bool, endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = enabled
		if endpoint != "" {
			c.Telemetry.Endpoint = endpoint
		}
		return nil
	}
}

// WithLogLevel sets the log level (DEBUG, INFO, WARN, ERROR).
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = strings.ToUpper(level)
		return nil
	}
}

// WithLogFormat sets the log output format ("json" or "text").
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		if format != "json" && format != "text" {
			return fmt.Errorf("unknown log format %q: %w", format, ErrInvalidConfiguration)
		}
		c.Logging.Format = format
		return nil
	}
}

// WithConfigFile loads a JSON or YAML config file. Later options still
// override values loaded from the file.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFromFile(path)
	}
}

// NewConfig creates a Config by applying defaults, environment variables
// and functional options in priority order, then validating the result.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
