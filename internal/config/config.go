// Package config loads coordinator configuration from an optional YAML
// file with environment variable overrides, plus a watcher for the
// runtime-tunable limits.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all static coordinator configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Stores  StoresConfig  `yaml:"stores"`
	Gateway GatewayConfig `yaml:"gateway"`
	Saga    SagaConfig    `yaml:"saga"`
	Cache   CacheConfig   `yaml:"cache"`
	Plans   PlansConfig   `yaml:"plans"`

	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
}

// ServerConfig configures the HTTP boundary.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoresConfig selects and configures the three store backends.
type StoresConfig struct {
	// Backend is "memory" for development or "durable" for the real
	// SQLite/DynamoDB/Badger stack.
	Backend string `yaml:"backend"`

	SQLitePath string `yaml:"sqlite_path"`
	BadgerPath string `yaml:"badger_path"`

	AWSRegion        string `yaml:"aws_region"`
	DynamoDBTable    string `yaml:"dynamodb_table"`
	DynamoDBEndpoint string `yaml:"dynamodb_endpoint"`
}

// GatewayConfig configures the reasoning gateway and its circuit breaker.
type GatewayConfig struct {
	// Provider is "mock" or "openai".
	Provider    string `yaml:"provider"`
	OpenAIKey   string `yaml:"openai_key"`
	OpenAIModel string `yaml:"openai_model"`

	BreakerConsecutiveFailures uint32        `yaml:"breaker_consecutive_failures"`
	BreakerOpenTimeout         time.Duration `yaml:"breaker_open_timeout"`
	BreakerHalfOpenRequests    uint32        `yaml:"breaker_half_open_requests"`
	ResponseCacheTTL           time.Duration `yaml:"response_cache_ttl"`
}

// SagaConfig configures plan execution.
type SagaConfig struct {
	StoreTimeout        time.Duration `yaml:"store_timeout"`
	ReasoningTimeout    time.Duration `yaml:"reasoning_timeout"`
	CompensationTimeout time.Duration `yaml:"compensation_timeout"`
	// RetryMaxAttempts counts total step attempts, the first included.
	RetryMaxAttempts int `yaml:"retry_max_attempts"`
	RetryBaseDelay      time.Duration `yaml:"retry_base_delay"`
}

// CacheConfig configures the shared in-memory cache.
type CacheConfig struct {
	MaxItems        int           `yaml:"max_items"`
	MaxMemoryMB     int           `yaml:"max_memory_mb"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// PlansConfig configures the plan submission boundary.
type PlansConfig struct {
	// StatusTTL is how long terminal async plan statuses stay pollable.
	StatusTTL time.Duration `yaml:"status_ttl"`
}

// Load reads configuration: defaults, then the YAML file at path (skipped
// when path is empty or missing), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Address:         ":8080",
			ShutdownTimeout: 15 * time.Second,
		},
		Stores: StoresConfig{
			Backend:       "memory",
			SQLitePath:    "noesis.db",
			BadgerPath:    "noesis-docs",
			AWSRegion:     "us-west-2",
			DynamoDBTable: "noesis-graph",
		},
		Gateway: GatewayConfig{
			Provider:                   "mock",
			BreakerConsecutiveFailures: 5,
			BreakerOpenTimeout:         30 * time.Second,
			BreakerHalfOpenRequests:    1,
			ResponseCacheTTL:           5 * time.Minute,
		},
		Saga: SagaConfig{
			StoreTimeout:        5 * time.Second,
			ReasoningTimeout:    60 * time.Second,
			CompensationTimeout: 10 * time.Second,
			RetryMaxAttempts:    4,
			RetryBaseDelay:      100 * time.Millisecond,
		},
		Cache: CacheConfig{
			MaxItems:        10000,
			MaxMemoryMB:     100,
			CleanupInterval: time.Minute,
		},
		Plans: PlansConfig{
			StatusTTL: time.Hour,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Server.Address = getEnv("SERVER_ADDRESS", cfg.Server.Address)

	cfg.Stores.Backend = getEnv("STORE_BACKEND", cfg.Stores.Backend)
	cfg.Stores.SQLitePath = getEnv("SQLITE_PATH", cfg.Stores.SQLitePath)
	cfg.Stores.BadgerPath = getEnv("BADGER_PATH", cfg.Stores.BadgerPath)
	cfg.Stores.AWSRegion = getEnv("AWS_REGION", cfg.Stores.AWSRegion)
	cfg.Stores.DynamoDBTable = getEnv("DYNAMODB_TABLE", cfg.Stores.DynamoDBTable)
	cfg.Stores.DynamoDBEndpoint = getEnv("DYNAMODB_ENDPOINT", cfg.Stores.DynamoDBEndpoint)

	cfg.Gateway.Provider = getEnv("REASONING_PROVIDER", cfg.Gateway.Provider)
	cfg.Gateway.OpenAIKey = getEnv("OPENAI_API_KEY", cfg.Gateway.OpenAIKey)
	cfg.Gateway.OpenAIModel = getEnv("OPENAI_MODEL", cfg.Gateway.OpenAIModel)
	cfg.Gateway.BreakerConsecutiveFailures = uint32(getEnvInt("BREAKER_CONSECUTIVE_FAILURES", int(cfg.Gateway.BreakerConsecutiveFailures)))
	cfg.Gateway.BreakerOpenTimeout = getEnvDuration("BREAKER_OPEN_TIMEOUT", cfg.Gateway.BreakerOpenTimeout)
	cfg.Gateway.ResponseCacheTTL = getEnvDuration("RESPONSE_CACHE_TTL", cfg.Gateway.ResponseCacheTTL)

	cfg.Saga.StoreTimeout = getEnvDuration("SAGA_STORE_TIMEOUT", cfg.Saga.StoreTimeout)
	cfg.Saga.ReasoningTimeout = getEnvDuration("SAGA_REASONING_TIMEOUT", cfg.Saga.ReasoningTimeout)
	cfg.Saga.RetryMaxAttempts = getEnvInt("SAGA_RETRY_MAX_ATTEMPTS", cfg.Saga.RetryMaxAttempts)
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.Stores.Backend {
	case "memory", "durable":
	default:
		return fmt.Errorf("unknown store backend %q", c.Stores.Backend)
	}

	switch c.Gateway.Provider {
	case "mock":
	case "openai":
		if c.Gateway.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
	default:
		return fmt.Errorf("unknown reasoning provider %q", c.Gateway.Provider)
	}

	if c.Stores.Backend == "durable" && c.Stores.DynamoDBTable == "" {
		return fmt.Errorf("DYNAMODB_TABLE is required for the durable backend")
	}
	if c.Gateway.BreakerConsecutiveFailures == 0 {
		return fmt.Errorf("breaker_consecutive_failures must be positive")
	}
	if c.Saga.RetryMaxAttempts <= 0 {
		return fmt.Errorf("retry_max_attempts must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
