package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"

	"reconcile/internal/contact"
	"reconcile/internal/contact/cache"
	"reconcile/internal/contact/events"
	contactmetrics "reconcile/internal/contact/metrics"
	"reconcile/internal/contact/service"
	"reconcile/internal/contact/store"
	"reconcile/internal/platform/config"
	"reconcile/internal/platform/kafka"
	"reconcile/internal/platform/logger"
	"reconcile/internal/platform/postgres"
	"reconcile/internal/platform/redis"
	"reconcile/internal/platform/sqlite"
	"reconcile/pkg/platform/circuit"
	"reconcile/pkg/platform/pii"
)

// app holds the long-lived dependencies shared by the subcommands.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	store   service.Store
	tx      service.ContactStoreTx
	metrics *contactmetrics.Metrics
	queue   *events.Queue
	worker  *events.Worker
	service *contact.Service
	closers []func() error
}

type appOptions struct {
	// withSideEffects enables the view cache and event publishing.
	withSideEffects bool
	registerer      prometheus.Registerer
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a := &app{
		cfg:    cfg,
		logger: logger.New(cfg.Log.Level, cfg.Log.Format),
	}
	if opts.registerer == nil {
		opts.registerer = prometheus.NewRegistry()
	}
	a.metrics = contactmetrics.New(opts.registerer)

	if err := a.openStore(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	svcOpts := []service.Option{
		service.WithLogger(a.logger),
		service.WithMetrics(a.metrics),
		service.WithFingerprinter(pii.NewFingerprinter(cfg.PIIKey)),
	}
	if opts.withSideEffects {
		more, err := a.openSideEffects(ctx)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		svcOpts = append(svcOpts, more...)
	}
	a.service = contact.NewService(a.store, a.tx, svcOpts...)
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store.Backend {
	case config.BackendMemory:
		mem := store.NewInMemory(store.WithTxTimeout(a.cfg.Store.TxTimeout))
		a.store, a.tx = mem, mem
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, a.cfg.Database)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		if err := store.EnsureSchema(ctx, db, store.Postgres); err != nil {
			return err
		}
		s := store.NewPostgres(db)
		a.store, a.tx = s, store.NewSQLTx(s, a.cfg.Store.TxTimeout)
	case config.BackendSQLite:
		db, err := sqlite.Open(ctx, a.cfg.SQLite.Path)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		if err := store.EnsureSchema(ctx, db, store.SQLite); err != nil {
			return err
		}
		s := store.NewSQLite(db)
		a.store, a.tx = s, store.NewSQLTx(s, a.cfg.Store.TxTimeout)
	default:
		return fmt.Errorf("unknown store backend %q", a.cfg.Store.Backend)
	}
	a.logger.Info("contact store ready", "backend", a.cfg.Store.Backend)
	return nil
}

func (a *app) openSideEffects(ctx context.Context) ([]service.Option, error) {
	var opts []service.Option

	rdb, err := redis.New(ctx, a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rdb != nil {
		a.closers = append(a.closers, rdb.Close)
		breaker := circuit.New("view-cache")
		opts = append(opts, service.WithCache(cache.NewRedis(rdb.Client,
			cache.WithTTL(a.cfg.Redis.CacheTTL),
			cache.WithBreaker(breaker),
			cache.WithMetrics(a.metrics),
			cache.WithLogger(a.logger),
		)))
		a.logger.Info("identity view cache enabled", "ttl", a.cfg.Redis.CacheTTL)
	}

	client, err := kafka.NewClient(ctx, a.cfg.Kafka)
	if err != nil {
		return nil, err
	}
	if client != nil {
		a.closers = append(a.closers, closeKafka(client))
		if err := kafka.EnsureTopic(ctx, client, a.cfg.Kafka.Topic, 3, 1); err != nil {
			a.logger.Warn("could not ensure event topic", "topic", a.cfg.Kafka.Topic, "error", err)
		}
		a.queue = events.NewQueue(0, a.logger, a.metrics)
		a.worker = events.NewWorker(events.NewKafkaPublisher(client, a.cfg.Kafka.Topic), a.queue.Events(), a.logger, a.metrics)
		opts = append(opts, service.WithEvents(a.queue))
		a.logger.Info("contact event publishing enabled", "topic", a.cfg.Kafka.Topic)
	}
	return opts, nil
}

func closeKafka(client *kgo.Client) func() error {
	return func() error {
		client.Close()
		return nil
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
