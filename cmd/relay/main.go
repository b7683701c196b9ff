package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/flowmesh/reliable-commands/internal/broker"
	"github.com/flowmesh/reliable-commands/internal/config"
	"github.com/flowmesh/reliable-commands/internal/logger"
	"github.com/flowmesh/reliable-commands/internal/relay"
	"github.com/flowmesh/reliable-commands/internal/store"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// cmd/relay is the standalone sweep process: a dedicated binary so the
// periodic outbox drain can scale and restart independently of cmd/server
// and cmd/executor, adapted from the teacher's cmd/poller.
func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger("relay")
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	outboxStore := store.NewOutboxStore(gdb)
	mq := broker.NewKafkaCommandQueue(cfg.Kafka.Brokers)
	events := broker.NewKafkaEventPublisher(cfg.Kafka.Brokers)

	r := relay.New(outboxStore, mq, events, log)
	scheduler := relay.NewSweepScheduler(r, cfg.Timeout.SweepInterval, cfg.Timeout.SweepBatchSize, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infow("reliable-commands relay started", "interval", cfg.Timeout.SweepInterval, "batch", cfg.Timeout.SweepBatchSize)
	scheduler.Run(ctx)
	log.Info("reliable-commands relay shutting down")
}
