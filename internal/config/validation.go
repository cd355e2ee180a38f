package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ajitpratap0/tradesim/internal/store"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// Validate performs comprehensive configuration validation
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateServer()...)
	errors = append(errors, c.validateQuotes()...)
	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateNATS()...)
	errors = append(errors, c.validateMonitoring()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "app.name",
			Message: "Application name is required",
		})
	}

	validEnvs := []string{"development", "staging", "production"}
	if !slices.Contains(validEnvs, c.App.Environment) {
		errors = append(errors, ValidationError{
			Field:   "app.environment",
			Message: fmt.Sprintf("Invalid environment '%s'. Must be one of: %s", c.App.Environment, strings.Join(validEnvs, ", ")),
		})
	}

	validLevels := []string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}
	if !slices.Contains(validLevels, strings.ToLower(c.App.LogLevel)) {
		errors = append(errors, ValidationError{
			Field:   "app.log_level",
			Message: fmt.Sprintf("Invalid log level '%s'. Must be one of: %s", c.App.LogLevel, strings.Join(validLevels, ", ")),
		})
	}

	if c.App.LogFormat != "json" && c.App.LogFormat != "console" {
		errors = append(errors, ValidationError{
			Field:   "app.log_format",
			Message: fmt.Sprintf("Invalid log format '%s'. Must be 'json' or 'console'", c.App.LogFormat),
		})
	}

	return errors
}

func (c *Config) validateServer() ValidationErrors {
	var errors ValidationErrors

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1 and 65535", c.Server.Port),
		})
	}

	if c.Server.IdleTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "server.idle_timeout",
			Message: "Idle timeout must be positive",
		})
	}

	if c.Server.WriteTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "server.write_timeout",
			Message: "Write timeout must be positive",
		})
	} else if c.Server.IdleTimeout > 0 && c.Server.WriteTimeout > c.Server.IdleTimeout {
		errors = append(errors, ValidationError{
			Field:   "server.write_timeout",
			Message: fmt.Sprintf("Write timeout (%s) must not exceed server.idle_timeout (%s)", c.Server.WriteTimeout, c.Server.IdleTimeout),
		})
	}

	if c.Server.ReadLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "server.read_limit",
			Message: "Read limit must be positive",
		})
	}

	if c.Server.InboxSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "server.inbox_size",
			Message: "Inbox size must be at least 1",
		})
	}

	if c.Server.RateLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "server.rate_limit",
			Message: "Rate limit cannot be negative (use 0 to disable)",
		})
	}

	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		errors = append(errors, ValidationError{
			Field:   "server.rate_burst",
			Message: "Rate burst must be at least 1 when rate limiting is enabled",
		})
	}

	return errors
}

func (c *Config) validateQuotes() ValidationErrors {
	var errors ValidationErrors

	if c.Quotes.Interval <= 0 {
		errors = append(errors, ValidationError{
			Field:   "quotes.interval",
			Message: "Quote interval must be positive",
		})
	}

	if c.Quotes.Min <= 0 {
		errors = append(errors, ValidationError{
			Field:   "quotes.min",
			Message: "Minimum quote value must be positive",
		})
	}

	if c.Quotes.Max <= c.Quotes.Min {
		errors = append(errors, ValidationError{
			Field:   "quotes.max",
			Message: fmt.Sprintf("Maximum quote value (%.4f) must be greater than minimum (%.4f)", c.Quotes.Max, c.Quotes.Min),
		})
	}

	if c.Quotes.HistoryLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "quotes.history_limit",
			Message: "History limit cannot be negative (use 0 for unbounded)",
		})
	}

	return errors
}

func (c *Config) validateStore() ValidationErrors {
	var errors ValidationErrors

	validBackends := []string{store.BackendMemory, store.BackendPostgres, store.BackendRedis}
	if !slices.Contains(validBackends, c.Store.Backend) {
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Message: fmt.Sprintf("Invalid store backend '%s'. Must be one of: %s", c.Store.Backend, strings.Join(validBackends, ", ")),
		})
	}

	// store calls run on the session loop, so they share the idle bound
	if c.Store.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "store.timeout",
			Message: "Store timeout must be positive",
		})
	} else if c.Server.IdleTimeout > 0 && c.Store.Timeout > c.Server.IdleTimeout {
		errors = append(errors, ValidationError{
			Field:   "store.timeout",
			Message: fmt.Sprintf("Store timeout (%s) must not exceed server.idle_timeout (%s)", c.Store.Timeout, c.Server.IdleTimeout),
		})
	}

	if c.Store.Retries < 0 {
		errors = append(errors, ValidationError{
			Field:   "store.retries",
			Message: "Store retries cannot be negative",
		})
	}

	switch c.Store.Backend {
	case store.BackendPostgres:
		errors = append(errors, c.validateDatabase()...)
	case store.BackendRedis:
		errors = append(errors, c.validateRedis()...)
	}

	return errors
}

func (c *Config) validateDatabase() ValidationErrors {
	var errors ValidationErrors

	if c.Database.URL != "" {
		return errors
	}

	if c.Database.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "database.host",
			Message: "Database host is required",
		})
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "database.port",
			Message: fmt.Sprintf("Invalid database port %d. Must be between 1 and 65535", c.Database.Port),
		})
	}

	if c.Database.Database == "" {
		errors = append(errors, ValidationError{
			Field:   "database.database",
			Message: "Database name is required",
		})
	}

	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.Database.SSLMode) {
		errors = append(errors, ValidationError{
			Field:   "database.ssl_mode",
			Message: fmt.Sprintf("Invalid SSL mode '%s'. Must be one of: %s", c.Database.SSLMode, strings.Join(validSSLModes, ", ")),
		})
	}

	if c.Database.PoolSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.pool_size",
			Message: "Database pool size must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateRedis() ValidationErrors {
	var errors ValidationErrors

	if c.Redis.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "redis.host",
			Message: "Redis host is required",
		})
	}

	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "redis.port",
			Message: fmt.Sprintf("Invalid Redis port %d. Must be between 1 and 65535", c.Redis.Port),
		})
	}

	if c.Redis.DB < 0 || c.Redis.DB > 15 {
		errors = append(errors, ValidationError{
			Field:   "redis.db",
			Message: fmt.Sprintf("Invalid Redis database %d. Must be between 0 and 15", c.Redis.DB),
		})
	}

	if c.Redis.TTL < 0 {
		errors = append(errors, ValidationError{
			Field:   "redis.ttl",
			Message: "Redis TTL cannot be negative (use 0 to keep orders forever)",
		})
	}

	return errors
}

func (c *Config) validateNATS() ValidationErrors {
	var errors ValidationErrors

	if !c.NATS.Enabled {
		return errors
	}

	if c.NATS.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: "NATS URL is required when NATS is enabled",
		})
	} else if !strings.HasPrefix(c.NATS.URL, "nats://") && !strings.HasPrefix(c.NATS.URL, "tls://") {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: fmt.Sprintf("Invalid NATS URL '%s'. Must start with nats:// or tls://", c.NATS.URL),
		})
	}

	return errors
}

func (c *Config) validateMonitoring() ValidationErrors {
	var errors ValidationErrors

	if !c.Monitoring.EnableMetrics {
		return errors
	}

	if c.Monitoring.PrometheusPort < 1 || c.Monitoring.PrometheusPort > 65535 {
		errors = append(errors, ValidationError{
			Field:   "monitoring.prometheus_port",
			Message: fmt.Sprintf("Invalid Prometheus port %d. Must be between 1 and 65535", c.Monitoring.PrometheusPort),
		})
	} else if c.Monitoring.PrometheusPort == c.Server.Port {
		errors = append(errors, ValidationError{
			Field:   "monitoring.prometheus_port",
			Message: fmt.Sprintf("Prometheus port %d conflicts with server.port", c.Monitoring.PrometheusPort),
		})
	}

	return errors
}
