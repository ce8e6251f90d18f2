// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops background work, lets queued e-mails go out, then closes
// Redis and MongoDB.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if bg := deps.background; bg != nil {
		if bg.runner != nil {
			bg.runner.Stop()
		}
		if bg.limiter != nil {
			bg.limiter.Stop()
		}
		if bg.mail != nil {
			done := make(chan struct{})
			go func() {
				bg.mail.Close()
				close(done)
			}()
			select {
			case <-done:
			case <-ctx.Done():
				logger.Warn("shutdown deadline reached with e-mails still queued")
			}
		}
	}

	if deps.Redis != nil {
		if err := deps.Redis.Close(); err != nil {
			logger.Warn("redis close failed", zap.Error(err))
		}
	}

	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}
