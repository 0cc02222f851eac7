package config

import "time"

// TimeoutConfig holds timeout settings for various operations.
// These can be configured via CLI flags to tune performance for different environments.
type TimeoutConfig struct {
	// Fetch bounds a single snapshot download attempt. Default: 30s
	Fetch time.Duration

	// EnginePrepare bounds the engine readiness probe. Default: 10s
	EnginePrepare time.Duration

	// Shutdown is how long the HTTP server waits for in-flight requests.
	// Default: 10s
	Shutdown time.Duration
}

// DefaultTimeoutConfig returns the default timeout configuration
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		Fetch:         30 * time.Second,
		EnginePrepare: 10 * time.Second,
		Shutdown:      10 * time.Second,
	}
}

// global instance that can be set at startup
var globalTimeouts = DefaultTimeoutConfig()

// SetGlobalTimeouts sets the global timeout configuration
func SetGlobalTimeouts(cfg *TimeoutConfig) {
	globalTimeouts = cfg
}

// GetTimeouts returns the global timeout configuration
func GetTimeouts() *TimeoutConfig {
	return globalTimeouts
}
