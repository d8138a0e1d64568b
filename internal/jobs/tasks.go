// Package jobs runs the background side of the order lifecycle on asynq:
// delayed expiry of unpaid gateway orders and a periodic pending sweep.
package jobs

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	QueueDefault = "default"

	// TaskExpireOrder expires one order if it is still PENDING.
	TaskExpireOrder = "orders:expire"
	// TaskSweepPending expires every PENDING order older than the cutoff.
	TaskSweepPending = "orders:sweep_pending"
)

type ExpireOrderPayload struct {
	OrderID string `json:"order_id"`
}

func NewExpireOrderTask(orderID string) (*asynq.Task, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("jobs: order id is required")
	}
	body, err := json.Marshal(ExpireOrderPayload{OrderID: orderID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExpireOrder, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

func NewSweepPendingTask() *asynq.Task {
	return asynq.NewTask(TaskSweepPending, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}

func expireTaskID(orderID string) string {
	return "expire:" + orderID
}
