package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fjod/plancart/internal/cache"
	"github.com/fjod/plancart/internal/catalog"
	"github.com/fjod/plancart/internal/config"
	"github.com/fjod/plancart/internal/coupon"
	plangrpc "github.com/fjod/plancart/internal/grpc"
	planhttp "github.com/fjod/plancart/internal/http"
	"github.com/fjod/plancart/internal/metrics"
	"github.com/fjod/plancart/internal/orders"
	"github.com/fjod/plancart/internal/pricing"
	"github.com/fjod/plancart/internal/publisher"
	"github.com/fjod/plancart/internal/repository"
	"github.com/fjod/plancart/internal/service"
	"github.com/fjod/plancart/pkg/circuitbreaker"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const idempotencyTTL = 24 * time.Hour

// orderStore is satisfied by every order backend; each records an outbox
// event in the same write as the order.
type orderStore interface {
	orders.Store
	orders.Outbox
}

// app holds the wired components and the resources to release on shutdown.
type app struct {
	catalog    catalog.Store
	coupons    *coupon.Validator
	calculator *pricing.Calculator
	carts      *service.CartService
	relay      *publisher.OutboxPoller
	metrics    *metrics.Metrics
	checks     map[string]plangrpc.Check
	closers    []func(context.Context) error
	logger     zerolog.Logger
}

func newApp(log zerolog.Logger) *app {
	return &app{
		metrics: metrics.New(),
		checks:  make(map[string]plangrpc.Check),
		logger:  log,
	}
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to release resource")
		}
	}
	a.closers = nil
}

// newCatalog builds only what the quote command needs.
func newCatalog(cfg *config.Config, a *app) error {
	switch cfg.Catalog.Driver {
	case "sqlite":
		store, err := catalog.NewSQLStore(cfg.Catalog.SQLitePath)
		if err != nil {
			return err
		}
		a.onClose(func(context.Context) error { return store.Close() })
		if err := store.RunMigrations(cfg.Catalog.MigrationsPath); err != nil {
			return err
		}
		a.checks["catalog"] = store.Ping
		a.catalog = store
	default:
		a.catalog = catalog.NewSeededMemoryStore()
	}
	a.logger.Info().Str("driver", cfg.Catalog.Driver).Msg("Catalog ready")

	a.coupons = coupon.NewValidator(a.catalog, a.metrics, a.logger)
	a.calculator = pricing.NewCalculator(a.catalog, a.coupons, cfg.Pricing.TaxPercent, cfg.Pricing.Currency, a.metrics, a.logger)
	return nil
}

func buildApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (_ *app, err error) {
	a := newApp(log)
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	if err := newCatalog(cfg, a); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	deps := service.Dependencies{
		Quoter:      a.calculator,
		Coupons:     a.coupons,
		CouponUsage: a.catalog,
		Metrics:     a.metrics,
		Logger:      log,
	}

	switch cfg.Carts.Driver {
	case "mongo":
		db, err := repository.ConnectMongoDB(ctx, repository.MongoOptions{URI: cfg.Carts.MongoURI, Database: cfg.Carts.MongoDB})
		if err != nil {
			return nil, err
		}
		a.onClose(func(ctx context.Context) error { return db.Client().Disconnect(ctx) })
		repo := repository.NewMongoRepository(db)
		if err := repo.CreateIndexes(ctx); err != nil {
			return nil, err
		}
		a.checks["mongo"] = func(ctx context.Context) error { return db.Client().Ping(ctx, nil) }
		deps.Repo = repo
		log.Info().Str("database", cfg.Carts.MongoDB).Msg("Connected to MongoDB")
	default:
		deps.Repo = repository.NewMemoryRepository()
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.onClose(func(context.Context) error { return client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		a.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		deps.Cache = cache.NewRedisCache(client, cfg.Redis.CacheTTL)
		deps.Idempotency = cache.NewRedisIdempotencyStore(client, idempotencyTTL)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis ping succeeded")
	}

	var store orderStore = orders.NewMemoryStore()
	if cfg.Orders.Driver == "postgres" {
		pg, err := orders.NewPostgresStore(cfg.Orders.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return pg.Close() })
		if err := pg.RunMigrations(cfg.Orders.MigrationsPath); err != nil {
			return nil, err
		}
		a.checks["postgres"] = pg.Ping
		store = pg
		log.Info().Msg("Connected to orders database")
	}
	deps.Orders = orders.NewBreakerStore(store, circuitbreaker.Settings{Name: "orders"}, log)

	// Checkout events leave through the outbox, never directly from the service.
	var pub publisher.Publisher = publisher.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := publisher.NewKafkaPublisher(cfg.Kafka.Topic, log, cfg.Kafka.Brokers...)
		a.onClose(func(context.Context) error { return kp.Close() })
		pub = kp
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Publishing checkout events to Kafka")
	}
	a.relay = publisher.NewOutboxPoller(store, pub, cfg.Kafka.PollInterval, log)

	a.carts = service.NewCartService(deps, service.Options{
		TaxPercent: cfg.Pricing.TaxPercent,
		Currency:   cfg.Pricing.Currency,
		MaxRetries: cfg.Pricing.MaxRetries,
	})
	return a, nil
}

func (a *app) router(cfg *config.Config) http.Handler {
	timeout := cfg.Server.RequestTimeout
	return planhttp.NewRouter(planhttp.RouterConfig{
		Catalog:        planhttp.NewCatalogHandler(a.catalog, a.calculator, a.coupons, timeout, a.logger),
		Carts:          planhttp.NewCartHandler(a.carts, timeout, a.logger),
		Checkout:       planhttp.NewCheckoutHandler(a.carts, timeout, a.logger),
		Metrics:        a.metrics,
		RequestTimeout: timeout,
		AccessLog:      true,
	})
}
