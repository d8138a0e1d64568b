package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"tokopos/backend/internal/metrics"
	"tokopos/backend/internal/store"
)

// Expirer is the part of the order service the jobs drive.
type Expirer interface {
	ExpireOrder(ctx context.Context, id string) (bool, error)
	ExpireStalePending(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// OrderJobs handles expiry and sweep tasks.
type OrderJobs struct {
	orders     Expirer
	logger     *slog.Logger
	metrics    *metrics.Metrics
	staleAfter time.Duration
	sweepLimit int
}

func NewOrderJobs(orders Expirer, staleAfter time.Duration, logger *slog.Logger, m *metrics.Metrics) *OrderJobs {
	if logger == nil {
		logger = slog.Default()
	}
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return &OrderJobs{
		orders:     orders,
		logger:     logger.With(slog.String("component", "jobs")),
		metrics:    m,
		staleAfter: staleAfter,
		sweepLimit: 200,
	}
}

func (j *OrderJobs) HandleExpire(ctx context.Context, t *asynq.Task) error {
	var payload ExpireOrderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.OrderID == "" {
		j.logger.WarnContext(ctx, "dropping malformed expiry task", slog.Any("error", err))
		return j.metrics.ObserveJob(TaskExpireOrder, fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry))
	}

	expired, err := j.orders.ExpireOrder(ctx, payload.OrderID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		j.logger.InfoContext(ctx, "expiry skipped, order is gone", slog.String("order_id", payload.OrderID))
		return j.metrics.ObserveJob(TaskExpireOrder, nil)
	case err != nil:
		return j.metrics.ObserveJob(TaskExpireOrder, fmt.Errorf("expire order %s: %w", payload.OrderID, err))
	}

	if expired {
		j.logger.InfoContext(ctx, "pending order expired", slog.String("order_id", payload.OrderID))
	}
	return j.metrics.ObserveJob(TaskExpireOrder, nil)
}

func (j *OrderJobs) HandleSweep(ctx context.Context, _ *asynq.Task) error {
	n, err := j.orders.ExpireStalePending(ctx, j.staleAfter, j.sweepLimit)
	if err != nil {
		return j.metrics.ObserveJob(TaskSweepPending, fmt.Errorf("sweep pending orders: %w", err))
	}
	if n > 0 {
		j.logger.InfoContext(ctx, "stale pending orders expired",
			slog.Int("count", n),
			slog.Duration("older_than", j.staleAfter))
	}
	return j.metrics.ObserveJob(TaskSweepPending, nil)
}
