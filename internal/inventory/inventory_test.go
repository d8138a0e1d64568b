package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/store"
	"tokopos/backend/internal/store/memory"
)

func setup(t *testing.T, stock int) (*Ledger, domain.Product) {
	t.Helper()
	repo := memory.New()
	p, err := repo.CreateProduct(context.Background(), domain.Product{Name: "Kopi Susu", Price: 18000, Stock: stock})
	require.NoError(t, err)
	return NewLedger(repo), *p
}

func TestCheckAvailable(t *testing.T) {
	ledger, p := setup(t, 5)
	ctx := context.Background()

	ok, err := ledger.CheckAvailable(ctx, p.ID, 5)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ledger.CheckAvailable(ctx, p.ID, 6)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = ledger.CheckAvailable(ctx, "missing", 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAvailabilityReportsShortfall(t *testing.T) {
	ledger, p := setup(t, 2)

	_, err := ledger.Availability(context.Background(), p.ID, 3)
	var shortfall *store.InsufficientStockError
	require.True(t, errors.As(err, &shortfall))
	assert.Equal(t, "Kopi Susu", shortfall.ProductName)
	assert.Equal(t, 2, shortfall.Available)
	assert.Equal(t, 3, shortfall.Requested)
}

func TestAdjust(t *testing.T) {
	ledger, p := setup(t, 2)
	ctx := context.Background()

	got, err := ledger.Adjust(ctx, p.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)

	_, err = ledger.Adjust(ctx, p.ID, -6)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)

	_, err = ledger.Adjust(ctx, p.ID, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
