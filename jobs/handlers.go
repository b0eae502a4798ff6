package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/internal/reports"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// ReportWarmer computes and caches report summaries.
type ReportWarmer interface {
	Summary(ctx context.Context, from time.Time, period shared.Period) (reports.Summary, error)
}

// LowStockLister lists stock items under a threshold.
type LowStockLister interface {
	LowStock(ctx context.Context, threshold decimal.Decimal) ([]inventory.StockItem, error)
}

// LowStockGauge records the number of low stock items.
type LowStockGauge interface {
	SetLowStockItems(n int)
}

// KeyCleaner removes idempotency keys older than a retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Handlers bundles the task handlers and their dependencies.
type Handlers struct {
	Reports   ReportWarmer
	Stock     LowStockLister
	Gauge     LowStockGauge
	Keys      KeyCleaner
	Threshold decimal.Decimal
	Retention time.Duration
	Logger    *slog.Logger
	// Metrics may be nil, in which case runs are not measured.
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// TaskTypes lists the task types the worker handles.
func TaskTypes() []string {
	return []string{TaskReportsWarmup, TaskLowStockScan, TaskIdempotencyCleanup}
}

// TaskHandlers lists the handlers for worker registration.
func (h *Handlers) TaskHandlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskReportsWarmup, Handler: h.HandleReportsWarmup},
		{Type: TaskLowStockScan, Handler: h.HandleLowStockScan},
		{Type: TaskIdempotencyCleanup, Handler: h.HandleIdempotencyCleanup},
	}
}

// HandleReportsWarmup precomputes the daily summary so the first dashboard
// load of the day reads from cache.
func (h *Handlers) HandleReportsWarmup(ctx context.Context, t *asynq.Task) (err error) {
	var payload ReportsWarmupPayload
	if err := decode(t, &payload); err != nil {
		return err
	}
	run := h.Metrics.Start(TaskReportsWarmup)
	defer func() { err = run.Finish(err) }()
	if h.Reports == nil {
		return errors.New("reports warmup: service not configured")
	}

	day := payload.Day
	if day.IsZero() {
		day = h.now()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	summary, err := h.Reports.Summary(ctx, day, shared.PeriodDaily)
	if err != nil {
		h.logger(TaskReportsWarmup).Error("warm report", slog.Any("error", err))
		return err
	}
	h.logger(TaskReportsWarmup).Info("report warmed",
		slog.Time("from", summary.From),
		slog.Int64("orders", summary.TotalOrders))
	return nil
}

// HandleLowStockScan logs every item under the threshold and publishes the
// count.
func (h *Handlers) HandleLowStockScan(ctx context.Context, t *asynq.Task) (err error) {
	var payload LowStockScanPayload
	if err := decode(t, &payload); err != nil {
		return err
	}
	run := h.Metrics.Start(TaskLowStockScan)
	defer func() { err = run.Finish(err) }()
	if h.Stock == nil {
		return errors.New("low stock scan: inventory not configured")
	}

	threshold := h.Threshold
	if payload.Threshold != "" {
		parsed, perr := decimal.NewFromString(payload.Threshold)
		if perr != nil {
			return errors.Join(perr, asynq.SkipRetry)
		}
		threshold = parsed
	}
	items, err := h.Stock.LowStock(ctx, threshold)
	if err != nil {
		return err
	}
	logger := h.logger(TaskLowStockScan)
	for _, item := range items {
		logger.Warn("low stock",
			slog.Int64("item_id", item.ID),
			slog.String("item", item.Name),
			slog.String("quantity", item.Quantity.String()),
			slog.String("units", item.Units))
	}
	run.Items(len(items))
	if h.Gauge != nil {
		h.Gauge.SetLowStockItems(len(items))
	}
	logger.Info("low stock scan complete", slog.Int("items", len(items)), slog.String("threshold", threshold.String()))
	return nil
}

// HandleIdempotencyCleanup deletes keys past retention.
func (h *Handlers) HandleIdempotencyCleanup(ctx context.Context, t *asynq.Task) (err error) {
	var payload IdempotencyCleanupPayload
	if err := decode(t, &payload); err != nil {
		return err
	}
	run := h.Metrics.Start(TaskIdempotencyCleanup)
	defer func() { err = run.Finish(err) }()
	if h.Keys == nil {
		return errors.New("idempotency cleanup: store not configured")
	}

	retention := h.Retention
	if payload.Retention > 0 {
		retention = payload.Retention
	}
	removed, err := h.Keys.Cleanup(ctx, retention)
	if err != nil {
		return err
	}
	run.Items(int(removed))
	h.logger(TaskIdempotencyCleanup).Info("idempotency keys removed", slog.Int64("removed", removed), slog.Duration("retention", retention))
	return nil
}

// decode tolerates an empty payload. Malformed payloads are not retried.
func decode(t *asynq.Task, dest any) error {
	if len(t.Payload()) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload(), dest); err != nil {
		return errors.Join(err, asynq.SkipRetry)
	}
	return nil
}

func (h *Handlers) logger(job string) *slog.Logger {
	if h.Logger != nil {
		return h.Logger.With(slog.String("job", job))
	}
	return slog.Default().With(slog.String("job", job))
}

func (h *Handlers) now() time.Time {
	if h.clock != nil {
		return h.clock()
	}
	return time.Now().UTC()
}
