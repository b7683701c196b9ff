package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/flowmesh/reliable-commands/internal/broker"
	"github.com/flowmesh/reliable-commands/internal/bus"
	"github.com/flowmesh/reliable-commands/internal/cache"
	"github.com/flowmesh/reliable-commands/internal/config"
	"github.com/flowmesh/reliable-commands/internal/consumer"
	"github.com/flowmesh/reliable-commands/internal/logger"
	"github.com/flowmesh/reliable-commands/internal/model"
	"github.com/flowmesh/reliable-commands/internal/outboxfactory"
	"github.com/flowmesh/reliable-commands/internal/relay"
	"github.com/flowmesh/reliable-commands/internal/response"
	"github.com/flowmesh/reliable-commands/internal/store"
	httptransport "github.com/flowmesh/reliable-commands/internal/transport/http"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. load config
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger("server")
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(&model.Command{}, &model.InboxEntry{}, &model.OutboxRow{}, &model.DlqEntry{}); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. stores, factory, relay
	commandStore := store.NewCommandStore(gdb)
	outboxStore := store.NewOutboxStore(gdb)
	dlqStore := store.NewDlqStore(gdb)
	factory := outboxfactory.New(cfg.Messaging)

	mq := broker.NewKafkaCommandQueue(cfg.Kafka.Brokers)
	events := broker.NewKafkaEventPublisher(cfg.Kafka.Brokers)
	r := relay.New(outboxStore, mq, events, log)
	fastPath := relay.NewFastPathPublisher(r)
	scheduler := relay.NewSweepScheduler(r, cfg.Timeout.SweepInterval, cfg.Timeout.SweepBatchSize, log)

	// 6. command bus, response registry, cache
	commandBus := bus.New(commandStore, outboxStore, factory, fastPath, gdb)
	responses := response.New()
	commandCache := cache.New(rdb)

	// 7. reply listener, co-located so the synchronous wait has something to
	// complete it
	replyReader := consumer.NewKafkaReader(cfg.Kafka.Brokers, cfg.Messaging.ReplyQueue, "reliable-commands-reply-listener")
	replyListener := consumer.NewReplyListener(replyReader, responses, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scheduler.Run(ctx)
	go func() {
		if err := replyListener.Run(ctx); err != nil {
			log.Errorw("reply listener stopped", "error", err)
		}
	}()

	// 8. gin router
	router := httptransport.NewRouter(commandBus, responses, commandCache, commandStore, dlqStore,
		cfg.Messaging, cfg.Timeout, cfg.RateLimit, rdb, log)

	// 9. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("reliable-commands server listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
