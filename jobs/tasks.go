package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReportsWarmup precomputes the current daily report.
	TaskReportsWarmup = "reports:warmup"
	// TaskLowStockScan counts stock items under the low-stock threshold.
	TaskLowStockScan = "inventory:low_stock_scan"
	// TaskIdempotencyCleanup deletes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// ReportsWarmupPayload selects the day to warm. A zero Day means today.
type ReportsWarmupPayload struct {
	Day time.Time `json:"day,omitempty"`
}

// LowStockScanPayload overrides the configured threshold when Threshold is set.
type LowStockScanPayload struct {
	Threshold string `json:"threshold,omitempty"`
}

// IdempotencyCleanupPayload overrides the configured retention when set.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention,omitempty"`
}

// NewReportsWarmupTask constructs a reports warmup task.
func NewReportsWarmupTask(payload ReportsWarmupPayload) (*asynq.Task, error) {
	return newTask(TaskReportsWarmup, payload)
}

// NewLowStockScanTask constructs a low-stock scan task.
func NewLowStockScanTask(payload LowStockScanPayload) (*asynq.Task, error) {
	return newTask(TaskLowStockScan, payload)
}

// NewIdempotencyCleanupTask constructs an idempotency cleanup task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, payload)
}

func newTask(typ string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, body, asynq.Queue(QueueDefault)), nil
}
