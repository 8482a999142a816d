package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/pennywise-app/pennywise/internal/jobs"
)

// ReconcileRunner runs one legacy/RBAC reconciliation pass.
type ReconcileRunner interface {
	Run(ctx context.Context) error
}

// NewReconcileHandler adapts the reconciler into an Asynq handler.
func NewReconcileHandler(runner ReconcileRunner, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		tracker := metrics.Track(TaskRBACReconcile)
		err := runner.Run(ctx)
		if err != nil {
			logger.Error("reconcile job", slog.Any("error", err))
		} else {
			logger.Info("reconcile job completed")
		}
		return tracker.End(err)
	}
}
