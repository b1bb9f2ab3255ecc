package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/actions"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/config"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/engine"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/messaging"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/metrics"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/natsx"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ratelimit"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/store"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/store/postgres"
)

// app holds the collaborators built from a Config. close releases them in
// reverse order of creation.
type app struct {
	cfg     *config.Config
	backend store.Backend
	nc      *nats.Conn
	engine  *engine.Engine
	metrics *metrics.Collector
	closers []func() error
}

// openBackend connects the configured rule and record store.
func openBackend(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	switch cfg.Database.Driver {
	case "postgres":
		s, err := postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	default:
		s, err := store.Open(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store %s: %w", cfg.Database.Path, err)
		}
		return s, nil
	}
}

// newApp opens the store, connects NATS when configured and builds the
// engine with the configured messenger.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.backend = backend
	a.closers = append(a.closers, backend.Close)

	if cfg.NATS.URL != "" {
		nc, err := natsx.Connect(cfg.NATS.URL, "bizflow")
		if err != nil {
			a.close()
			return nil, fmt.Errorf("nats: %w", err)
		}
		a.nc = nc
		a.closers = append(a.closers, func() error { nc.Close(); return nil })
	}

	var messenger messaging.Messenger = messaging.Simulated{}
	if cfg.Messaging.Driver == "nats" {
		messenger = messaging.NewNATSPublisher(a.nc)
	}

	opts := []engine.Option{engine.WithActionTimeout(cfg.Engine.ActionTimeout)}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewCollector()
		opts = append(opts, engine.WithObserver(a.metrics))
	}
	a.engine = engine.New(backend, actions.NewDefaultRegistry(messenger, backend), opts...)
	return a, nil
}

// newLimiter builds the event intake limiter on the configured backend.
func (a *app) newLimiter() (*ratelimit.Limiter, error) {
	var st ratelimit.Store
	switch a.cfg.RateLimit.Backend {
	case "redis":
		client := ratelimit.DialRedis(a.cfg.RateLimit.RedisAddr, "", 0)
		a.closers = append(a.closers, client.Close)
		st = ratelimit.NewRedisStore(client, "")
	default:
		mem := ratelimit.NewMemoryStore(a.cfg.RateLimit.Window, a.cfg.RateLimit.Window)
		a.closers = append(a.closers, mem.Close)
		st = mem
	}
	return ratelimit.New(st, a.cfg.RateLimit.Limit, a.cfg.RateLimit.Window, ratelimit.WithPrefix("events"))
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		slog.Warn("shutdown incomplete", "error", err)
		return err
	}
	return nil
}
