package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client submits lifecycle tasks to the queue.
type Client struct {
	client enqueuer
}

func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// ScheduleExpiry enqueues an expiry check for orderID after delay. One expiry
// task exists per order; scheduling it again keeps the first one.
func (c *Client) ScheduleExpiry(ctx context.Context, orderID string, delay time.Duration) error {
	task, err := NewExpireOrderTask(orderID)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.ProcessIn(delay), asynq.TaskID(expireTaskID(orderID)))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// EnqueueSweep requests an immediate pending sweep.
func (c *Client) EnqueueSweep(ctx context.Context) error {
	_, err := c.client.EnqueueContext(ctx, NewSweepPendingTask())
	return err
}

func (c *Client) Close() error {
	return c.client.Close()
}
