// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/visadesk/internal/app/store/ratelimit"
	"github.com/dalemusser/visadesk/internal/app/system/tasks"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs once after DB connections and schema/index setup are complete,
// but before the HTTP handler is built and requests are served.
//
// Returning a non-nil error will abort startup and prevent the server from
// starting.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	// Indexes and seed data are handled in EnsureSchema.
	startTaskRunner(appCfg, deps, logger)
	return nil
}

// taskRunner is the global task runner instance, used for graceful shutdown.
var taskRunner *tasks.Runner

// startTaskRunner registers the cleanup jobs and starts the runner.
func startTaskRunner(appCfg AppConfig, deps DBDeps, logger *zap.Logger) {
	db := deps.MongoDatabase
	taskRunner = tasks.New(logger)
	taskRunner.SetObserver(deps.Metrics.JobFinished)

	limiter := ratelimit.New(db, appCfg.RateLimitLoginAttempts, appCfg.RateLimitLoginWindow, appCfg.RateLimitLoginLockout)
	taskRunner.Register(tasks.RateLimitCleanupJob(limiter, logger))
	taskRunner.Register(tasks.StaleDraftCleanupJob(db, logger, appCfg.DraftRetention))
	taskRunner.Register(tasks.NotificationCleanupJob(db, logger, appCfg.NotificationRetention))
	taskRunner.Register(tasks.CounterAuditJob(db, logger))

	taskRunner.Start()
}
