// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/bourses/internal/app/system/indexes"
	"github.com/dalemusser/bourses/internal/app/system/timeouts"
	"github.com/dalemusser/bourses/internal/app/system/validators"
	"github.com/dalemusser/waffle/config"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ConnectDB connects to MongoDB and, when configured, Redis.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	opts := options.Client().
		ApplyURI(appCfg.MongoURI).
		SetAppName("bourses")
	if appCfg.MongoMaxPoolSize > 0 {
		opts.SetMaxPoolSize(appCfg.MongoMaxPoolSize)
	}
	if appCfg.MongoMinPoolSize > 0 {
		opts.SetMinPoolSize(appCfg.MongoMinPoolSize)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		logger.Error("MongoDB connect failed", zap.Error(err))
		return DBDeps{}, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), logger, "mongo ping")
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		logger.Error("MongoDB ping failed", zap.Error(err))
		return DBDeps{}, fmt.Errorf("ping mongo: %w", err)
	}
	logger.Info("connected to MongoDB", zap.String("database", appCfg.MongoDatabase))

	deps := DBDeps{
		MongoClient:   client,
		MongoDatabase: client.Database(appCfg.MongoDatabase),
		background:    &background{},
	}

	if appCfg.RedisURL == "" {
		logger.Info("redis_url not set, fiscal lookup cache disabled")
		return deps, nil
	}

	ropts, err := redis.ParseURL(appCfg.RedisURL)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return DBDeps{}, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := redis.NewClient(ropts)

	rctx, rcancel := timeouts.WithTimeout(ctx, timeouts.Ping(), logger, "redis ping")
	defer rcancel()
	if err := rdb.Ping(rctx).Err(); err != nil {
		// Start without the cache.
		logger.Warn("redis unreachable, fiscal lookup cache disabled", zap.Error(err))
		_ = rdb.Close()
		return deps, nil
	}
	deps.Redis = rdb
	logger.Info("connected to Redis", zap.String("addr", ropts.Addr))

	return deps, nil
}

// EnsureSchema creates the JSON schema validators and indexes.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Batch(), logger, "ensure schema")
	defer cancel()

	if err := validators.EnsureAll(ctx, deps.MongoDatabase); err != nil {
		logger.Error("ensure validators failed", zap.Error(err))
		return err
	}
	if err := indexes.EnsureAll(ctx, deps.MongoDatabase); err != nil {
		logger.Error("ensure indexes failed", zap.Error(err))
		return err
	}
	logger.Info("schema ensured")
	return nil
}
