package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-bookstore-orders/internal/config"
	"github.com/ariefcatur/go-bookstore-orders/internal/httpx"
	"github.com/ariefcatur/go-bookstore-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-bookstore-orders/internal/kafka"
	"github.com/ariefcatur/go-bookstore-orders/internal/logging"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/payment"
	"github.com/ariefcatur/go-bookstore-orders/internal/postgres"
	"github.com/ariefcatur/go-bookstore-orders/internal/reconcile"
	"github.com/ariefcatur/go-bookstore-orders/internal/redisx"
	"github.com/ariefcatur/go-bookstore-orders/internal/sepay"
	"github.com/ariefcatur/go-bookstore-orders/internal/statuscache"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	var (
		repo    orders.Repository
		ledger  inventory.Ledger
		catalog inventory.Catalog
	)
	switch cfg.StoreBackend {
	case "memory":
		mem := inventory.NewMemoryLedger()
		for id, b := range cfg.SeedBooks {
			mem.Put(id, b.Stock)
			mem.SetPrice(id, b.Price)
		}
		repo, ledger, catalog = orders.NewMemoryRepository(), mem, mem
		logger.Warn("using in-memory store", zap.Int("seeded_books", len(cfg.SeedBooks)))
	default:
		if cfg.MigrateOnStart {
			if err := postgres.Migrate(cfg.PostgresDSN, logger); err != nil {
				logger.Fatal("migrate", zap.Error(err))
			}
		}
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.ServiceName, logger)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
		pg := &inventory.PgLedger{DB: db}
		repo, ledger, catalog = &orders.PgRepository{DB: db}, pg, pg
	}

	// Redis
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redisx.New(cfg.RedisAddr, cfg.ServiceName)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, status cache and webhook replay degraded", zap.Error(err))
		}
	}

	// Kafka producer
	var opts []orders.Option
	var prod *kafkax.Producer
	if cfg.EventsEnabled && len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, 1024, logger)
		prod.Start(ctx)
		opts = append(opts, orders.WithEvents(&kafkax.EventPublisher{Sink: prod, Service: cfg.ServiceName}))
	}

	mgr := orders.NewManager(repo, ledger, catalog, logger, opts...)

	account := payment.BankAccount{
		Number:   cfg.SePay.AccountNumber,
		Name:     cfg.SePay.AccountName,
		BankCode: cfg.SePay.BankCode,
	}
	source := sepay.NewClient(cfg.SePay.APIURL, cfg.SePay.APIToken, cfg.SePay.AccountNumber, nil)
	if !source.Configured() {
		logger.Warn("sepay transaction api not configured, polling reports pending")
	}
	var (
		gwOpts []reconcile.Option
		status *statuscache.Store
	)
	if rdb != nil {
		status = statuscache.NewStore(rdb)
		gwOpts = append(gwOpts,
			reconcile.WithReplayStore(redisx.NewReplayStore(rdb)),
			reconcile.WithStatusCache(status),
		)
	}
	gw := reconcile.NewGateway(mgr, payment.NewMatcher(cfg.NumericFallback), source, reconcile.Config{
		Account:     account,
		PollLimit:   cfg.PollLimit,
		PollTimeout: cfg.PollTimeout,
	}, logger, gwOpts...)

	// HTTP
	router := httpx.NewRouter(logger)
	(&httpx.OrdersHandler{Manager: mgr, Status: status, Log: logger}).Register(router)
	(&httpx.BooksHandler{Ledger: ledger}).Register(router)
	(&httpx.PaymentHandler{Orders: mgr, Gateway: gw}).Register(router)
	(&httpx.WebhookHandler{Gateway: gw, APIKey: cfg.SePay.WebhookAPIKey, Log: logger}).Register(router)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server exit", zap.Error(err))
	}

	if prod != nil {
		prod.Close()      // stop accepting, flush inbox
		prod.WaitClosed() // drain
	}
}
