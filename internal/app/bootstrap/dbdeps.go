// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/bourses/internal/app/system/mailer"
	"github.com/dalemusser/bourses/internal/app/system/ratelimit"
	"github.com/dalemusser/bourses/internal/app/system/workers"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	// Redis is nil when redis_url is blank.
	Redis *redis.Client

	// background is filled in by Startup and BuildHandler and drained by
	// Shutdown. Hooks receive DBDeps by value, so it is shared by pointer.
	background *background
}

type background struct {
	runner  *workers.Runner
	mail    *mailer.Dispatcher
	limiter *ratelimit.Limiter
}
