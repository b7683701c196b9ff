package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/flowmesh/reliable-commands/internal/broker"
	"github.com/flowmesh/reliable-commands/internal/cache"
	"github.com/flowmesh/reliable-commands/internal/config"
	"github.com/flowmesh/reliable-commands/internal/consumer"
	"github.com/flowmesh/reliable-commands/internal/executor"
	"github.com/flowmesh/reliable-commands/internal/logger"
	"github.com/flowmesh/reliable-commands/internal/model"
	"github.com/flowmesh/reliable-commands/internal/outboxfactory"
	"github.com/flowmesh/reliable-commands/internal/relay"
	"github.com/flowmesh/reliable-commands/internal/store"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// commandNames lists every command this process has a registered Handler
// for; each gets its own consumer group reading its own queue.
var commandNames = []string{"CreateUser", "PlaceOrder"}

func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger("executor")
	if err != nil {
		panic(fmt.Errorf("init logger: %v", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(&model.Command{}, &model.InboxEntry{}, &model.OutboxRow{}, &model.DlqEntry{}); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}
	commandCache := cache.New(rdb)

	commandStore := store.NewCommandStore(gdb)
	inboxStore := store.NewInboxStore(gdb)
	outboxStore := store.NewOutboxStore(gdb)
	dlqStore := store.NewDlqStore(gdb)
	factory := outboxfactory.New(cfg.Messaging)

	mq := broker.NewKafkaCommandQueue(cfg.Kafka.Brokers)
	events := broker.NewKafkaEventPublisher(cfg.Kafka.Brokers)
	r := relay.New(outboxStore, mq, events, log)
	fastPath := relay.NewFastPathPublisher(r)

	registry := executor.NewRegistry()
	executor.RegisterSampleHandlers(registry)

	exec := executor.New(inboxStore, commandStore, outboxStore, dlqStore, registry, fastPath, factory,
		cfg.Messaging, cfg.Timeout.CommandLease, gdb, commandCache, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, name := range commandNames {
		queue := cfg.Messaging.CommandQueueName(name)
		reader := consumer.NewKafkaReader(cfg.Kafka.Brokers, queue, "reliable-commands-executor-"+name)
		cons := consumer.NewCommandConsumer(reader, exec, name, log)
		go func(name string) {
			log.Infow("command consumer started", "name", name)
			if err := cons.Run(ctx); err != nil {
				log.Errorw("command consumer stopped", "name", name, "error", err)
			}
		}(name)
	}

	log.Info("reliable-commands executor running")
	<-ctx.Done()
	log.Info("reliable-commands executor shutting down")
}
