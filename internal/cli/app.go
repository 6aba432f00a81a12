// Package cli wires configuration, storage and identity provider into an
// auth.Client and runs habitauth commands against it.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/habit-tracker/go-auth"
	"github.com/habit-tracker/go-auth/activitymap"
	"github.com/habit-tracker/go-auth/metrics"
	"github.com/habit-tracker/go-auth/provider/cognito"
	"github.com/habit-tracker/go-auth/provider/memory"
	memstore "github.com/habit-tracker/go-auth/storage/memory"
	redisstore "github.com/habit-tracker/go-auth/storage/redis"
	"github.com/habit-tracker/go-auth/storage/sqlite"
)

// App is an assembled client plus what must be closed after use.
type App struct {
	Client   *auth.Client
	Provider auth.IdentityProvider
	Metrics  *prometheus.Registry
	Out      io.Writer

	closers []func() error
}

// NewLogger builds the zap logger for level.
func NewLogger(level string) (*zap.Logger, error) {
	logCfg := zap.NewProductionConfig()
	atomic, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	logCfg.Level = atomic
	return logCfg.Build(zap.AddCaller())
}

// Build opens storage and the identity provider selected by cfg.
func Build(ctx context.Context, cfg auth.Config, logger *zap.Logger, out io.Writer) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	authLogger := auth.NewZapLogger(logger)
	app := &App{Out: out, Metrics: prometheus.NewRegistry()}

	storage, err := app.openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case auth.ProviderMemory:
		app.Provider = memory.New(memory.WithLogger(authLogger))
	default:
		pcfg := cognito.DefaultConfig(cfg.Region, cfg.UserPoolID, cfg.ClientID)
		pcfg.ClientSecret = cfg.ClientSecret
		pcfg.GlobalSignOut = cfg.GlobalSignOut
		pcfg.ClockDrift = cfg.ClockDrift

		provider, err := cognito.New(ctx, pcfg, storage, cognito.WithLogger(authLogger))
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.Provider = provider
	}

	app.Client = auth.NewClient(app.Provider, storage).
		WithNamespace(cfg.Namespace).
		WithLogger(authLogger).
		WithActivitySink(auth.MultiActivitySink(
			activitymap.LogSink(logger.Named("activity")),
			metrics.NewPrometheusSink(app.Metrics),
		))

	return app, nil
}

func (a *App) openStorage(ctx context.Context, cfg auth.Config) (auth.Storage, error) {
	switch cfg.StorageBackend {
	case auth.StorageMemory:
		return memstore.New(), nil
	case auth.StorageRedis:
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		return redisstore.New(client), nil
	default:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite %s: %w", cfg.SQLitePath, err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	}
}

// Close releases storage connections.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
