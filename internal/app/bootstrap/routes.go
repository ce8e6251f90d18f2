// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"time"

	applicationsfeature "github.com/dalemusser/bourses/internal/app/features/applications"
	errorsfeature "github.com/dalemusser/bourses/internal/app/features/errors"
	healthfeature "github.com/dalemusser/bourses/internal/app/features/health"
	institutionsfeature "github.com/dalemusser/bourses/internal/app/features/institutions"
	"github.com/dalemusser/bourses/internal/app/system/metrics"
	"github.com/dalemusser/bourses/internal/app/system/ratelimit"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. It builds the record service and its
// collaborators, then mounts:
//   - /health and /metrics for operators
//   - /api/institutions, with each institution's applications nested
//   - /api/applications for single-application operations
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	c, err := buildComponents(appCfg, deps, m, logger)
	if err != nil {
		logger.Error("service init failed", zap.Error(err))
		return nil, err
	}
	if deps.background != nil {
		deps.background.mail = c.mail
	}

	// Create error logger for handlers.
	errLog := errorsfeature.NewErrorLogger(logger)

	r := chi.NewRouter()

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, redisCmdable(deps), logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	appsHandler := applicationsfeature.NewHandler(c.records, c.history, errLog, logger)
	if appCfg.SubmitRateLimit > 0 {
		appsHandler.Submissions = ratelimit.New(appCfg.SubmitRateLimit, time.Minute)
		if deps.background != nil {
			deps.background.limiter = appsHandler.Submissions
		}
	}

	instHandler := institutionsfeature.NewHandler(c.institutions, c.audit, errLog, logger)
	r.Mount("/api/institutions", institutionsfeature.Routes(instHandler, applicationsfeature.InstitutionRoutes(appsHandler)))

	r.Mount("/api/applications", applicationsfeature.Routes(appsHandler))

	return r, nil
}

// redisCmdable returns deps.Redis as an interface, nil when unset.
func redisCmdable(deps DBDeps) redis.Cmdable {
	if deps.Redis == nil {
		return nil
	}
	return deps.Redis
}
