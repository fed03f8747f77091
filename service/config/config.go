package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Networks recognised by ZCASH_NETWORK and their default local zcashd endpoints.
const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"

	MainnetRPCURL = "http://127.0.0.1:8232/"
	TestnetRPCURL = "http://127.0.0.1:18232/"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	LogLevel string

	// Zcash node configuration
	Network     string
	RPCURL      string
	RPCUser     string
	RPCPassword string
	RPCTimeout  time.Duration
	// Verbose echoes the endpoint and credentials to the log when a client is built.
	Verbose bool

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Watcher configuration
	WatchAddresses []string
	WatchInterval  time.Duration
	MetricsAddr    string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Zcash node configuration
	cfg.Network = getEnvOrDefault("ZCASH_NETWORK", NetworkMainnet)
	rpcURL, err := NodeURL(cfg.Network)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.RPCURL = getEnvOrDefault("ZCASH_RPC_URL", rpcURL)

	cfg.RPCUser = os.Getenv("ZCASH_RPC_USER")
	if cfg.RPCUser == "" {
		errs = append(errs, fmt.Errorf("ZCASH_RPC_USER is required"))
	}

	cfg.RPCPassword = os.Getenv("ZCASH_RPC_PASSWORD")
	if cfg.RPCPassword == "" {
		errs = append(errs, fmt.Errorf("ZCASH_RPC_PASSWORD is required"))
	}

	timeout, err := parseDuration("ZCASH_RPC_TIMEOUT", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RPCTimeout = timeout
	}

	verbose, err := parseBool("ZCASH_RPC_VERBOSE", false)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.Verbose = verbose
	}

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "zcash-shielded-polling")

	// Watcher configuration
	cfg.WatchAddresses = splitList(os.Getenv("WATCH_ADDRESSES"))
	interval, err := parseDuration("WATCH_INTERVAL", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.WatchInterval = interval
	}
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9091")

	if len(errs) == 0 {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for process initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	errs := c.nodeErrors()

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.WatchInterval < time.Second {
		errs = append(errs, fmt.Errorf("WatchInterval must be at least 1 second"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// ValidateNode checks only the fields needed to talk to zcashd.
func (c *Config) ValidateNode() error {
	if errs := c.nodeErrors(); len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}
	return nil
}

func (c *Config) nodeErrors() []error {
	var errs []error

	if _, err := NodeURL(c.Network); err != nil {
		errs = append(errs, err)
	}

	if c.RPCURL == "" {
		errs = append(errs, fmt.Errorf("RPCURL is required"))
	} else if u, err := url.Parse(c.RPCURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("RPCURL %q is not an absolute URL", c.RPCURL))
	}

	if c.RPCUser == "" {
		errs = append(errs, fmt.Errorf("RPCUser is required"))
	}

	if c.RPCPassword == "" {
		errs = append(errs, fmt.Errorf("RPCPassword is required"))
	}

	if c.RPCTimeout <= 0 {
		errs = append(errs, fmt.Errorf("RPCTimeout must be positive"))
	}

	return errs
}

// NodeURL returns the default local zcashd endpoint for a network.
func NodeURL(network string) (string, error) {
	switch network {
	case NetworkMainnet:
		return MainnetRPCURL, nil
	case NetworkTestnet:
		return TestnetRPCURL, nil
	default:
		return "", fmt.Errorf("unknown network %q: allowed values are %q or %q", network, NetworkTestnet, NetworkMainnet)
	}
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return duration, nil
}

func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid boolean for %s: %w", key, err)
	}
	return b, nil
}

// splitList splits a comma separated list, dropping empty entries.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
