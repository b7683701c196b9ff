package http

import (
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/flowmesh/reliable-commands/internal/bus"
	"github.com/flowmesh/reliable-commands/internal/cache"
	"github.com/flowmesh/reliable-commands/internal/config"
	"github.com/flowmesh/reliable-commands/internal/response"
	"github.com/flowmesh/reliable-commands/internal/store"
)

func NewRouter(
	commandBus *bus.CommandBus,
	responses *response.Registry,
	commandCache *cache.CommandCache,
	commands store.CommandStore,
	dlq store.DlqStore,
	messaging config.MessagingConfig,
	timeout config.TimeoutConfig,
	rl config.RateLimitConfig,
	rdb *redis.Client,
	log *zap.SugaredLogger,
) *gin.Engine {
	r := gin.New()
	r.Use(LoggingMiddleware(log))
	r.Use(LocalRateLimitMiddleware(rl.RPS, rl.Burst))
	r.Use(RedisRateLimitMiddleware(rdb, rl))

	h := &Handler{
		bus:       commandBus,
		responses: responses,
		cache:     commandCache,
		commands:  commands,
		dlq:       dlq,
		messaging: messaging,
		timeout:   timeout,
		log:       log,
	}
	RegisterHandlers(r, h)
	return r
}
