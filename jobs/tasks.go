package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRBACReconcile realigns the legacy role flags with the RBAC tables.
	TaskRBACReconcile = "rbac:reconcile"
	// TaskBudgetScan flags budgets whose month-to-date spending passed the cap.
	TaskBudgetScan = "budgets:scan"
)

// NewReconcileTask constructs the reconciliation task. It carries no
// payload; the routine always operates on the full store.
func NewReconcileTask() *asynq.Task {
	return asynq.NewTask(TaskRBACReconcile, nil)
}

// BudgetScanPayload selects the month to scan.
type BudgetScanPayload struct {
	Month string `json:"month"`
}

// NewBudgetScanTask constructs a budget scan task. An empty month means the
// current month at execution time.
func NewBudgetScanTask(month string) (*asynq.Task, error) {
	data, err := json.Marshal(BudgetScanPayload{Month: month})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBudgetScan, data), nil
}

// CurrentMonth returns the scan default in YYYY-MM form.
func CurrentMonth() string {
	return time.Now().UTC().Format("2006-01")
}
