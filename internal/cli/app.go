// Package cli implements the finahack command line: the local companion
// server and one-shot commands sharing its stores.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/google/subcommands"
	goredis "github.com/redis/go-redis/v9"

	"github.com/nmathey/finahack/internal/infra/gateway/finary"
	"github.com/nmathey/finahack/internal/infra/memory"
	"github.com/nmathey/finahack/internal/infra/postgres"
	infraRedis "github.com/nmathey/finahack/internal/infra/redis"
	"github.com/nmathey/finahack/internal/platform/sync"
	"github.com/nmathey/finahack/internal/transport/httpapi/handler"
	"github.com/nmathey/finahack/pkg/config"
	"github.com/nmathey/finahack/pkg/logger"
)

// Register adds every finahack subcommand to c.
func Register(c *subcommands.Commander, app *App) {
	c.Register(&serveCmd{app: app}, "server")

	c.Register(&syncCmd{app: app}, "holdings")
	c.Register(&exportCmd{app: app}, "holdings")
	c.Register(&importCmd{app: app}, "holdings")
	c.Register(&moversCmd{app: app}, "holdings")

	c.Register(&currencyCmd{app: app}, "settings")
}

// App carries what every subcommand needs and the resources opened for it.
type App struct {
	Config *config.Config
	Logger *logger.Logger

	closers []func()
}

// NewApp creates an App from the loaded configuration.
func NewApp(cfg *config.Config, log *logger.Logger) *App {
	return &App{Config: cfg, Logger: log}
}

// Close releases every resource opened by the stores.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// stores opens the cache and history stores. Redis and PostgreSQL are used
// when configured, the in-process stores otherwise.
func (a *App) stores(ctx context.Context) (sync.CacheStore, sync.HistoryStore, map[string]handler.Pinger, error) {
	checks := map[string]handler.Pinger{}

	var cache sync.CacheStore
	if a.Config.RedisURL != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     a.Config.RedisURL,
			Password: a.Config.RedisPassword,
			DB:       0,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		a.closers = append(a.closers, func() { client.Close() })
		cache = infraRedis.NewCacheStore(client, a.Logger)
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
		a.Logger.Info("Redis connection established")
	} else {
		cache = memory.NewCacheStore()
		a.Logger.Warn("REDIS_URL not configured, asset cache is kept in memory")
	}

	var hist sync.HistoryStore
	if a.Config.DatabaseURL != "" {
		db, err := postgres.NewPool(ctx, postgres.Config{URL: a.Config.DatabaseURL})
		if err != nil {
			return nil, nil, nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := db.EnsureSchema(ctx); err != nil {
			return nil, nil, nil, err
		}
		hist = postgres.NewSnapshotRepository(db.Pool, a.Logger)
		checks["database"] = handler.PingFunc(db.Health)
		a.Logger.Info("Database connection established")
	} else {
		hist = memory.NewHistoryStore()
		a.Logger.Warn("DATABASE_URL not configured, snapshot history is kept in memory")
	}

	return cache, hist, checks, nil
}

// client builds the Finary client over provider.
func (a *App) client(provider finary.TokenProvider) *finary.Client {
	return finary.NewClient(provider, finary.Config{
		BaseURL: a.Config.FinaryAPIURL,
		Retry: finary.RetryPolicy{
			MaxRetries: a.Config.APIMaxRetries,
			Delay:      a.Config.APIRetryDelay,
		},
		TokenTimeout:   a.Config.TokenTimeout,
		RequestTimeout: a.Config.APIRequestTimeout,
		RateLimit:      a.Config.APIRateLimit,
	}, a.Logger)
}

// syncService wires the sync service over client and the configured stores.
func (a *App) syncService(ctx context.Context, client *finary.Client) (*sync.Service, map[string]handler.Pinger, error) {
	cache, hist, checks, err := a.stores(ctx)
	if err != nil {
		return nil, nil, err
	}

	svc := sync.NewService(&sync.Config{
		PollInterval: a.Config.SyncPollInterval,
		Retention:    a.Config.HistoryRetention,
		StrictKeys:   a.Config.StrictKeys,
		Enabled:      a.Config.SyncPollInterval > 0,
	}, finary.NewHoldingsAdapter(client, a.Logger), cache, hist, a.Logger)
	return svc, checks, nil
}

// failf reports a command failure on stderr.
func failf(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	return subcommands.ExitFailure
}
