// Package events fans order lifecycle changes out to downstream consumers.
package events

import (
	"context"
	"errors"

	"tokopos/backend/internal/domain"
)

// Publisher receives order events after the change has been committed.
type Publisher interface {
	PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error
}

type Noop struct{}

func (Noop) PublishOrderEvent(context.Context, domain.OrderEvent) error { return nil }

// Fanout delivers to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.PublishOrderEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
