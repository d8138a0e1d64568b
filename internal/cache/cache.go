package cache

import (
	"context"
	"time"

	"tokopos/backend/internal/domain"
)

// StatusCache holds recent payment status snapshots keyed by gateway order id.
type StatusCache interface {
	Get(ctx context.Context, gatewayOrderID string) (*domain.StatusSnapshot, bool, error)
	Set(ctx context.Context, gatewayOrderID string, value *domain.StatusSnapshot, ttl time.Duration) error
	Delete(ctx context.Context, gatewayOrderID string) error
}

type NoopStatusCache struct{}

func (NoopStatusCache) Get(_ context.Context, _ string) (*domain.StatusSnapshot, bool, error) {
	return nil, false, nil
}

func (NoopStatusCache) Set(_ context.Context, _ string, _ *domain.StatusSnapshot, _ time.Duration) error {
	return nil
}

func (NoopStatusCache) Delete(_ context.Context, _ string) error { return nil }

// StatusInvalidator drops cached snapshots whenever an order changes, so a
// poll never serves a status older than the last committed transition.
type StatusInvalidator struct {
	Cache StatusCache
}

func (i StatusInvalidator) PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error {
	if i.Cache == nil || event.GatewayOrderID == "" {
		return nil
	}
	return i.Cache.Delete(ctx, event.GatewayOrderID)
}
