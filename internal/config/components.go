package config

import (
	"github.com/ajitpratap0/tradesim/internal/db"
	"github.com/ajitpratap0/tradesim/internal/events"
	"github.com/ajitpratap0/tradesim/internal/market"
	"github.com/ajitpratap0/tradesim/internal/session"
	"github.com/ajitpratap0/tradesim/internal/store"
)

// SessionConfig returns the per-connection settings
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		IdleTimeout:  c.Server.IdleTimeout,
		WriteTimeout: c.Server.WriteTimeout,
		InboxSize:    c.Server.InboxSize,
		RateLimit:    c.Server.RateLimit,
		RateBurst:    c.Server.RateBurst,
	}
}

// GeneratorConfig returns the quote generator settings
func (c *Config) GeneratorConfig() market.GeneratorConfig {
	return market.GeneratorConfig{
		Min:          c.Quotes.Min,
		Max:          c.Quotes.Max,
		HistoryLimit: c.Quotes.HistoryLimit,
	}
}

// StoreOptions returns the guard chain settings for the selected backend
func (c *Config) StoreOptions() store.Options {
	retry := store.DefaultRetryConfig()
	retry.MaxRetries = c.Store.Retries
	if c.Store.RetryBackoff > 0 {
		retry.InitialBackoff = c.Store.RetryBackoff
		if retry.MaxBackoff < retry.InitialBackoff {
			retry.MaxBackoff = retry.InitialBackoff
		}
	}
	return store.Options{
		Backend: c.Store.Backend,
		Timeout: c.Store.Timeout,
		Retry:   retry,
		Breaker: store.DefaultBreakerSettings(),
	}
}

// DBConfig returns the PostgreSQL pool settings
func (c *Config) DBConfig() db.Config {
	size := int32(c.Database.PoolSize)
	return db.Config{
		URL:      c.Database.GetDSN(),
		MaxConns: size,
		MinConns: min(2, size),
	}
}

// EventsConfig returns the NATS publisher settings
func (c *Config) EventsConfig() events.Config {
	cfg := events.DefaultConfig()
	cfg.URL = c.NATS.URL
	if c.NATS.Prefix != "" {
		cfg.Prefix = c.NATS.Prefix
	}
	cfg.Name = c.App.Name
	return cfg
}
