// Package inventory answers availability questions and applies manual
// stock adjustments on top of the repository's atomic stock primitive.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/store"
)

type Stock interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error)
}

type Ledger struct {
	stock Stock
}

func NewLedger(stock Stock) *Ledger {
	return &Ledger{stock: stock}
}

// CheckAvailable reports whether qty units can currently be taken. The
// answer is advisory; nothing is reserved.
func (l *Ledger) CheckAvailable(ctx context.Context, productID string, qty int) (bool, error) {
	if _, err := l.Availability(ctx, productID, qty); err != nil {
		if isShortfall(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Availability returns the product when qty is in stock, or an
// *store.InsufficientStockError describing the shortfall.
func (l *Ledger) Availability(ctx context.Context, productID string, qty int) (*domain.Product, error) {
	if qty < 1 {
		return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrValidation)
	}
	product, err := l.stock.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.Stock < qty {
		return product, &store.InsufficientStockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Available:   product.Stock,
			Requested:   qty,
		}
	}
	return product, nil
}

// Adjust moves stock by delta; a result below zero fails without writing.
func (l *Ledger) Adjust(ctx context.Context, productID string, delta int) (*domain.Product, error) {
	if delta == 0 {
		return nil, fmt.Errorf("%w: delta must be non-zero", domain.ErrValidation)
	}
	return l.stock.AdjustStock(ctx, productID, delta)
}

func isShortfall(err error) bool {
	var shortfall *store.InsufficientStockError
	return errors.As(err, &shortfall)
}
