// Trading simulator WebSocket server
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/tradesim/internal/api"
	"github.com/ajitpratap0/tradesim/internal/config"
	"github.com/ajitpratap0/tradesim/internal/db"
	"github.com/ajitpratap0/tradesim/internal/events"
	"github.com/ajitpratap0/tradesim/internal/market"
	"github.com/ajitpratap0/tradesim/internal/metrics"
	"github.com/ajitpratap0/tradesim/internal/session"
	"github.com/ajitpratap0/tradesim/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./configs/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	log.Info().
		Str("version", config.GetVersion()).
		Str("environment", cfg.App.Environment).
		Str("store", cfg.Store.Backend).
		Msg("Starting tradesim")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
	log.Info().Msg("Server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	orders, ready, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	guarded := store.NewGuarded(orders, cfg.StoreOptions())

	var (
		executions session.ExecutionPublisher
		quotes     market.QuotePublisher
	)
	if cfg.NATS.Enabled {
		publisher, err := events.NewPublisher(cfg.EventsConfig())
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to drain NATS connection")
			}
		}()
		executions, quotes = publisher, publisher
	}

	generator, err := market.NewGenerator(cfg.GeneratorConfig())
	if err != nil {
		return fmt.Errorf("failed to create quote generator: %w", err)
	}

	dispatcher := session.NewDispatcher(guarded, executions)
	manager := session.NewManager(dispatcher, cfg.SessionConfig())
	scheduler := market.NewScheduler(generator, manager, quotes, cfg.Quotes.Interval)

	server := api.NewServer(api.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadLimit:      cfg.Server.ReadLimit,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Version:        config.GetVersion(),
	}, manager, generator.History())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Stop(shutdownCtx)
	})
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	if cfg.Monitoring.EnableMetrics {
		metricsServer := metrics.NewServer(cfg.Monitoring.PrometheusPort, ready, config.NewLogger("metrics"))
		g.Go(func() error {
			return metricsServer.ListenAndServe(gctx)
		})
	}

	return g.Wait()
}

// openStore connects the configured backend and returns its readiness probe and cleanup func
func openStore(ctx context.Context, cfg *config.Config) (store.OrderStore, metrics.ReadyFunc, func(), error) {
	switch cfg.Store.Backend {
	case store.BackendPostgres:
		database, err := db.New(ctx, cfg.DBConfig())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return database.Orders(), database.Health, database.Close, nil

	case store.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		rs, err := store.NewRedisStore(client, cfg.Redis.TTL)
		if err != nil {
			_ = client.Close()
			return nil, nil, nil, err
		}
		ready := func(ctx context.Context) error { return client.Ping(ctx).Err() }
		return rs, ready, func() {
			if err := client.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close Redis client")
			}
		}, nil

	default:
		return store.NewMemoryStore(), nil, func() {}, nil
	}
}
