// pkg/config/env_config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// EnvironmentConfig holds the deployment settings of the propagation server.
// Every field can be set through a DEADRECKON_* environment variable.
type EnvironmentConfig struct {
	// HTTP API
	ServerAddr   string
	ServerPort   int
	HealthPort   int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Per-client rate limiting of the API
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Optional Redis stream sink. An empty RedisAddr disables it.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string

	// Circuit breaker guarding the sink
	CircuitBreakerMaxRequests         uint32
	CircuitBreakerInterval            time.Duration
	CircuitBreakerTimeout             time.Duration
	CircuitBreakerMaxConsecutiveFails uint32

	EnableMetrics   bool
	LogFile         string
	MaxMemoryMB     int
	ShutdownTimeout time.Duration
}

// ValidationError reports an out-of-range environment setting.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Message)
}

// LoadConfigFromEnv reads the server settings from the environment, falling
// back to defaults for unset or malformed variables, and validates the result.
func LoadConfigFromEnv() (*EnvironmentConfig, error) {
	config := &EnvironmentConfig{
		ServerAddr:   getEnvOrDefault("DEADRECKON_SERVER_ADDR", "0.0.0.0"),
		ServerPort:   getEnvAsIntOrDefault("DEADRECKON_SERVER_PORT", 8080),
		HealthPort:   getEnvAsIntOrDefault("DEADRECKON_HEALTH_PORT", 8081),
		ReadTimeout:  getEnvAsDurationOrDefault("DEADRECKON_READ_TIMEOUT", 15*time.Second),
		WriteTimeout: getEnvAsDurationOrDefault("DEADRECKON_WRITE_TIMEOUT", 15*time.Second),

		RateLimitRequests: getEnvAsIntOrDefault("DEADRECKON_RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   getEnvAsDurationOrDefault("DEADRECKON_RATE_LIMIT_WINDOW", time.Second),

		RedisAddr:     getEnvOrDefault("DEADRECKON_REDIS_ADDR", ""),
		RedisPassword: getEnvOrDefault("DEADRECKON_REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsIntOrDefault("DEADRECKON_REDIS_DB", 0),
		RedisStream:   getEnvOrDefault("DEADRECKON_REDIS_STREAM", "deadreckon:states"),

		CircuitBreakerMaxRequests:         uint32(getEnvAsIntOrDefault("DEADRECKON_CB_MAX_REQUESTS", 3)),
		CircuitBreakerInterval:            getEnvAsDurationOrDefault("DEADRECKON_CB_INTERVAL", 60*time.Second),
		CircuitBreakerTimeout:             getEnvAsDurationOrDefault("DEADRECKON_CB_TIMEOUT", 30*time.Second),
		CircuitBreakerMaxConsecutiveFails: uint32(getEnvAsIntOrDefault("DEADRECKON_CB_MAX_FAILS", 5)),

		EnableMetrics:   getEnvAsBoolOrDefault("DEADRECKON_METRICS_ENABLED", true),
		LogFile:         getEnvOrDefault("DEADRECKON_LOG_FILE", ""),
		MaxMemoryMB:     getEnvAsIntOrDefault("DEADRECKON_MAX_MEMORY_MB", 512),
		ShutdownTimeout: getEnvAsDurationOrDefault("DEADRECKON_SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("environment configuration: %w", err)
	}

	return config, nil
}

// Validate checks the server settings. Model inputs are not validated here.
func (c *EnvironmentConfig) Validate() error {
	return validateEnvironmentConfig(c)
}

func validateEnvironmentConfig(c *EnvironmentConfig) error {
	if c.ServerAddr == "" {
		return &ValidationError{Field: "ServerAddr", Value: c.ServerAddr, Message: "must not be empty"}
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return &ValidationError{Field: "ServerPort", Value: c.ServerPort, Message: "must be between 1 and 65535"}
	}
	if c.HealthPort < 1 || c.HealthPort > 65535 {
		return &ValidationError{Field: "HealthPort", Value: c.HealthPort, Message: "must be between 1 and 65535"}
	}
	if c.HealthPort == c.ServerPort {
		return &ValidationError{Field: "HealthPort", Value: c.HealthPort, Message: "must differ from ServerPort"}
	}
	if c.ReadTimeout < time.Second || c.ReadTimeout > 5*time.Minute {
		return &ValidationError{Field: "ReadTimeout", Value: c.ReadTimeout, Message: "must be between 1s and 5m"}
	}
	if c.WriteTimeout < time.Second || c.WriteTimeout > 5*time.Minute {
		return &ValidationError{Field: "WriteTimeout", Value: c.WriteTimeout, Message: "must be between 1s and 5m"}
	}
	if c.RateLimitRequests < 1 {
		return &ValidationError{Field: "RateLimitRequests", Value: c.RateLimitRequests, Message: "must be positive"}
	}
	if c.RateLimitWindow <= 0 {
		return &ValidationError{Field: "RateLimitWindow", Value: c.RateLimitWindow, Message: "must be positive"}
	}
	if c.RedisDB < 0 || c.RedisDB > 15 {
		return &ValidationError{Field: "RedisDB", Value: c.RedisDB, Message: "must be between 0 and 15"}
	}
	if c.RedisAddr != "" && c.RedisStream == "" {
		return &ValidationError{Field: "RedisStream", Value: c.RedisStream, Message: "required when RedisAddr is set"}
	}
	if c.CircuitBreakerMaxRequests < 1 {
		return &ValidationError{Field: "CircuitBreakerMaxRequests", Value: c.CircuitBreakerMaxRequests, Message: "must be at least 1"}
	}
	if c.CircuitBreakerInterval < time.Second {
		return &ValidationError{Field: "CircuitBreakerInterval", Value: c.CircuitBreakerInterval, Message: "must be at least 1s"}
	}
	if c.CircuitBreakerTimeout < time.Second {
		return &ValidationError{Field: "CircuitBreakerTimeout", Value: c.CircuitBreakerTimeout, Message: "must be at least 1s"}
	}
	if c.CircuitBreakerMaxConsecutiveFails < 1 {
		return &ValidationError{Field: "CircuitBreakerMaxConsecutiveFails", Value: c.CircuitBreakerMaxConsecutiveFails, Message: "must be at least 1"}
	}
	if c.MaxMemoryMB < 16 {
		return &ValidationError{Field: "MaxMemoryMB", Value: c.MaxMemoryMB, Message: "must be at least 16"}
	}
	if c.ShutdownTimeout < time.Second {
		return &ValidationError{Field: "ShutdownTimeout", Value: c.ShutdownTimeout, Message: "must be at least 1s"}
	}
	return nil
}

// ListenAddress returns the host:port the API server binds to.
func (c *EnvironmentConfig) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.ServerAddr, c.ServerPort)
}

// HealthAddress returns the host:port the health server binds to.
func (c *EnvironmentConfig) HealthAddress() string {
	return fmt.Sprintf("%s:%d", c.ServerAddr, c.HealthPort)
}

// ApplyEnvironmentOverrides applies DEADRECKON_OMEGA_MAX,
// DEADRECKON_STEP_SECONDS and DEADRECKON_TICK_HZ to a model configuration.
// DEADRECKON_OMEGA_MAX replaces the turn-rate limit of the default class.
func ApplyEnvironmentOverrides(config *ModelConfig) error {
	if v := os.Getenv("DEADRECKON_OMEGA_MAX"); v != "" {
		omega, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("DEADRECKON_OMEGA_MAX: %w", err)
		}
		if config.Classes == nil {
			config.Classes = make(map[string]VehicleClass)
		}
		class := config.DefaultClass
		if class == "" {
			class = DefaultClassName
			config.DefaultClass = class
		}
		vc := config.Classes[class]
		vc.OmegaMax = omega
		config.Classes[class] = vc
	}

	if v := os.Getenv("DEADRECKON_STEP_SECONDS"); v != "" {
		step, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("DEADRECKON_STEP_SECONDS: %w", err)
		}
		config.StepSeconds = step
	}

	if v := os.Getenv("DEADRECKON_TICK_HZ"); v != "" {
		hz, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("DEADRECKON_TICK_HZ: %w", err)
		}
		if hz <= 0 {
			return fmt.Errorf("DEADRECKON_TICK_HZ must be positive, got %v", hz)
		}
		config.TickHz = hz
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}
