// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	applicationstore "github.com/dalemusser/bourses/internal/app/store/applications"
	"github.com/dalemusser/bourses/internal/app/system/tasks"
	"github.com/dalemusser/bourses/internal/app/system/timeouts"
	"github.com/dalemusser/bourses/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It applies
// timeout overrides from the environment and starts the background jobs.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if n := timeouts.ConfigureFromEnv(); n > 0 {
		logger.Info("timeouts configured from environment",
			zap.Int("overrides", n),
			zap.Any("timeouts", timeouts.Current()))
	}

	runner := workers.NewRunner(logger, timeouts.Medium(),
		tasks.LeaseReaperJob(applicationstore.New(deps.MongoDatabase), logger, appCfg.LeaseReaperInterval),
	)
	runner.Start()
	if deps.background != nil {
		deps.background.runner = runner
	}
	return nil
}
