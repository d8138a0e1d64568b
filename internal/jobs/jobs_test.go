package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/service"
	"tokopos/backend/internal/store"
	"tokopos/backend/internal/store/memory"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	return &asynq.TaskInfo{ID: "t1", Type: task.Type()}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func optionValue(opts []asynq.Option, typ asynq.OptionType) (any, bool) {
	for _, o := range opts {
		if o.Type() == typ {
			return o.Value(), true
		}
	}
	return nil, false
}

func TestScheduleExpiryUsesDelayAndTaskID(t *testing.T) {
	fake := &fakeEnqueuer{}
	c := &Client{client: fake}

	require.NoError(t, c.ScheduleExpiry(context.Background(), "ord-1", 15*time.Minute))
	require.Len(t, fake.tasks, 1)
	assert.Equal(t, TaskExpireOrder, fake.tasks[0].Type())

	var payload ExpireOrderPayload
	require.NoError(t, json.Unmarshal(fake.tasks[0].Payload(), &payload))
	assert.Equal(t, "ord-1", payload.OrderID)

	delay, ok := optionValue(fake.opts[0], asynq.ProcessInOpt)
	require.True(t, ok)
	assert.Equal(t, 15*time.Minute, delay)
	id, ok := optionValue(fake.opts[0], asynq.TaskIDOpt)
	require.True(t, ok)
	assert.Equal(t, "expire:ord-1", id)
}

func TestScheduleExpiryTreatsDuplicateAsScheduled(t *testing.T) {
	c := &Client{client: &fakeEnqueuer{err: fmt.Errorf("enqueue: %w", asynq.ErrTaskIDConflict)}}
	assert.NoError(t, c.ScheduleExpiry(context.Background(), "ord-1", time.Minute))

	broken := errors.New("redis unavailable")
	c = &Client{client: &fakeEnqueuer{err: broken}}
	assert.ErrorIs(t, c.ScheduleExpiry(context.Background(), "ord-1", time.Minute), broken)

	assert.Error(t, c.ScheduleExpiry(context.Background(), " ", time.Minute))
}

type jobsFixture struct {
	svc     *service.Service
	repo    *memory.Store
	jobs    *OrderJobs
	product domain.Product
}

func newJobsFixture(t *testing.T) *jobsFixture {
	t.Helper()
	repo := memory.New()
	svc := service.New(repo, nil, nil, nil)
	p, err := repo.CreateProduct(context.Background(), domain.Product{Name: "Teh Manis", Price: 5000, Stock: 10})
	require.NoError(t, err)
	return &jobsFixture{svc: svc, repo: repo, jobs: NewOrderJobs(svc, time.Minute, nil, nil), product: *p}
}

func (f *jobsFixture) order(t *testing.T, method string) domain.Order {
	t.Helper()
	ctx := service.WithActor(context.Background(), domain.Actor{Username: "kasir1", Role: domain.RoleCashier})
	o, err := f.svc.CreateOrder(ctx, domain.CreateOrderRequest{
		PaymentMethod: method,
		Items:         []domain.OrderLineRequest{{ProductID: f.product.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	return o
}

func TestHandleExpireMovesPendingOrder(t *testing.T) {
	f := newJobsFixture(t)
	pending := f.order(t, "GATEWAY")
	paid := f.order(t, "CASH")

	for _, id := range []string{pending.ID, paid.ID} {
		task, err := NewExpireOrderTask(id)
		require.NoError(t, err)
		require.NoError(t, f.jobs.HandleExpire(context.Background(), task))
	}

	got, err := f.svc.GetOrder(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, got.PaymentStatus)

	got, err = f.svc.GetOrder(context.Background(), paid.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, got.PaymentStatus)

	p, err := f.repo.GetProduct(context.Background(), f.product.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, p.Stock)
}

func TestHandleExpireSkipsMissingOrderAndBadPayload(t *testing.T) {
	f := newJobsFixture(t)

	task, err := NewExpireOrderTask("ord-missing")
	require.NoError(t, err)
	assert.NoError(t, f.jobs.HandleExpire(context.Background(), task))

	err = f.jobs.HandleExpire(context.Background(), asynq.NewTask(TaskExpireOrder, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

type failingExpirer struct{}

func (failingExpirer) ExpireOrder(context.Context, string) (bool, error) {
	return false, fmt.Errorf("%w: order moved concurrently", store.ErrConflict)
}

func (failingExpirer) ExpireStalePending(context.Context, time.Duration, int) (int, error) {
	return 0, errors.New("db down")
}

func TestHandlersReturnRetryableErrors(t *testing.T) {
	j := NewOrderJobs(failingExpirer{}, 0, nil, nil)
	task, err := NewExpireOrderTask("ord-1")
	require.NoError(t, err)

	err = j.HandleExpire(context.Background(), task)
	require.ErrorIs(t, err, store.ErrConflict)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	assert.Error(t, j.HandleSweep(context.Background(), NewSweepPendingTask()))
}

func TestHandleSweepExpiresStaleOrders(t *testing.T) {
	f := newJobsFixture(t)
	first := f.order(t, "GATEWAY")

	f.jobs.staleAfter = -time.Minute
	require.NoError(t, f.jobs.HandleSweep(context.Background(), NewSweepPendingTask()))

	got, err := f.svc.GetOrder(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, got.PaymentStatus)
}
