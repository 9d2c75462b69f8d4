package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bookstore-orders/internal/config"
	kafkax "github.com/ariefcatur/go-bookstore-orders/internal/kafka"
	"github.com/ariefcatur/go-bookstore-orders/internal/logging"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/redisx"
	"github.com/ariefcatur/go-bookstore-orders/internal/statuscache"
)

// worker projects order events into the Redis status cache read by
// GET /orders/{id}/status.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.ServiceName+"-worker")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redisx.New(cfg.RedisAddr, cfg.WorkerGroup)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis ping", zap.Error(err))
	}

	proj := &statuscache.Projector{
		Store:   statuscache.NewStore(rdb),
		Redis:   rdb,
		Service: cfg.WorkerGroup,
		Log:     logger.Named("projector"),
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.WorkerGroup, orders.AllTopics, cfg.WorkerCount, logger)

	logger.Info("status projector started",
		zap.String("group", cfg.WorkerGroup),
		zap.Strings("topics", orders.AllTopics),
		zap.Int("workers", cfg.WorkerCount),
	)
	if err := cons.Start(ctx, proj.Handle); err != nil {
		logger.Error("consumer exit", zap.Error(err))
	}
	logger.Info("status projector stopped")
}
