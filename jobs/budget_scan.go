package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/pennywise-app/pennywise/internal/jobs"
)

// BudgetScanner reports how many budgets exceeded their cap for a month.
type BudgetScanner interface {
	ScanExceeded(ctx context.Context, month string) (int, error)
}

// NewBudgetScanHandler adapts the budget scanner into an Asynq handler.
func NewBudgetScanHandler(scanner BudgetScanner, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		tracker := metrics.Track(TaskBudgetScan)

		var payload BudgetScanPayload
		if len(task.Payload()) > 0 {
			if err := json.Unmarshal(task.Payload(), &payload); err != nil {
				logger.Error("budget scan payload", slog.Any("error", err))
				return tracker.End(err)
			}
		}
		month := payload.Month
		if month == "" {
			month = CurrentMonth()
		}

		exceeded, err := scanner.ScanExceeded(ctx, month)
		if err != nil {
			logger.Error("budget scan", slog.String("month", month), slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("budget scan completed",
			slog.String("month", month),
			slog.Int("exceeded", exceeded))
		return tracker.End(nil)
	}
}
