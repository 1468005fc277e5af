package modules

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"xixu.io/notifier/internal/api/handlers"
	"xixu.io/notifier/internal/config"
	"xixu.io/notifier/internal/directory"
	"xixu.io/notifier/internal/events"
	"xixu.io/notifier/internal/infrastructure"
	"xixu.io/notifier/internal/notification"
	"xixu.io/notifier/internal/pkg/logger"
	"xixu.io/notifier/internal/pkg/worker"
)

// Infrastructure holds shared cross-cutting dependencies for all modules.
// It is a provider, not a Module.
type Infrastructure struct {
	Config    *config.Config
	Location  *time.Location
	Pools     *worker.Pools
	Mongo     *mongo.Client
	Directory *directory.MongoDirectory
	// DB is nil when database.enabled is false.
	DB      *infrastructure.DatabaseClients
	Redis   *redis.Client
	Emitter *notification.Emitter
	LogSink notification.LogSink
}

// NewInfrastructure connects to the directory, the dispatch log database and
// the event bus, and creates the worker pools.
func NewInfrastructure(ctx context.Context, cfg *config.Config) (_ *Infrastructure, err error) {
	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, fmt.Errorf("load scheduler timezone: %w", err)
	}

	infra := &Infrastructure{Config: cfg, Location: loc, Emitter: notification.NewEmitter()}
	defer func() {
		if err != nil {
			infra.Close(context.Background())
		}
	}()

	infra.Mongo, err = directory.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("init directory: %w", err)
	}
	infra.Directory = directory.NewMongoDirectory(infra.Mongo.Database(cfg.Mongo.Database))

	sinks := notification.MultiLogSink{notification.ZapLogSink{}}
	if cfg.Database.Enabled {
		infra.DB, err = infrastructure.NewDatabaseClients(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
		if cfg.Database.AutoMigrate {
			if err = infra.DB.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		sinks = append(sinks, infra.DB.Logs)
	}
	infra.LogSink = sinks

	if cfg.Events.Enabled {
		infra.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Events.RedisAddr,
			Password: cfg.Events.RedisPassword,
			DB:       cfg.Events.RedisDB,
		})
		if pingErr := infra.Redis.Ping(ctx).Err(); pingErr != nil {
			// Event forwarding is best-effort; publish errors are logged per event.
			logger.Warn("redis unreachable at startup", zap.String("addr", cfg.Events.RedisAddr), zap.Error(pingErr))
		}
		infra.Emitter.Subscribe("redis", events.NewRedisPublisher(infra.Redis, cfg.Events.Channel).Handle)
	}

	infra.Pools, err = worker.NewPools(worker.PoolConfig{
		GeneralPoolSize:  cfg.Worker.GeneralPoolSize,
		DeliveryPoolSize: cfg.Worker.DeliveryPoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	return infra, nil
}

// HealthChecks returns a readiness probe per connected dependency.
func (i *Infrastructure) HealthChecks() map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{}
	if i.Mongo != nil {
		checks["mongo"] = func(ctx context.Context) error { return i.Mongo.Ping(ctx, nil) }
	}
	if i.DB != nil {
		checks["postgres"] = i.DB.Pool.Ping
	}
	if i.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return i.Redis.Ping(ctx).Err() }
	}
	return checks
}

// Close releases infra resources in reverse dependency order.
func (i *Infrastructure) Close(ctx context.Context) {
	if i == nil {
		return
	}
	if i.Pools != nil {
		i.Pools.Shutdown()
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	if i.DB != nil {
		i.DB.Close()
	}
	if i.Mongo != nil {
		if err := i.Mongo.Disconnect(ctx); err != nil {
			logger.Warn("failed to disconnect mongo", zap.Error(err))
		}
	}
}
