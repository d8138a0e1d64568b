package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/store"
)

func newProduct(t *testing.T, s *Store, name string, stock int) domain.Product {
	t.Helper()
	p, err := s.CreateProduct(context.Background(), domain.Product{Name: name, Price: 10000, Stock: stock})
	require.NoError(t, err)
	return *p
}

func TestAdjustStockRejectsNegative(t *testing.T) {
	s := New()
	p := newProduct(t, s, "Kopi", 3)

	_, err := s.AdjustStock(context.Background(), p.ID, -5)
	var shortfall *store.InsufficientStockError
	require.True(t, errors.As(err, &shortfall))
	assert.Equal(t, "Kopi", shortfall.ProductName)
	assert.Equal(t, 3, shortfall.Available)
	assert.Equal(t, 5, shortfall.Requested)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)

	got, err := s.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock)
}

func TestAdjustStockUnknownProduct(t *testing.T) {
	_, err := New().AdjustStock(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPaidOrderDecrementIsAllOrNothing(t *testing.T) {
	s := New()
	ctx := context.Background()
	plenty := newProduct(t, s, "Teh", 10)
	scarce := newProduct(t, s, "Roti", 1)

	_, err := s.CreateOrder(ctx, domain.Order{
		ReferenceCode: "TRX-20260101-001",
		PaymentMethod: domain.PaymentCash,
		PaymentStatus: domain.StatusPaid,
		Items: []domain.LineItem{
			{ProductID: plenty.ID, Quantity: 2},
			{ProductID: scarce.ID, Quantity: 2},
		},
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	got, _ := s.GetProduct(ctx, plenty.ID)
	assert.Equal(t, 10, got.Stock)
	_, err = s.FindOrderByReference(ctx, "TRX-20260101-001")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDuplicateLinesAggregateAgainstStock(t *testing.T) {
	s := New()
	p := newProduct(t, s, "Mie", 3)

	_, err := s.CreateOrder(context.Background(), domain.Order{
		ReferenceCode: "TRX-20260101-002",
		PaymentMethod: domain.PaymentCash,
		PaymentStatus: domain.StatusPaid,
		Items: []domain.LineItem{
			{ProductID: p.ID, Quantity: 2},
			{ProductID: p.ID, Quantity: 2},
		},
	})
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
}

func TestReferenceCodeIsUnique(t *testing.T) {
	s := New()
	p := newProduct(t, s, "Air", 10)
	order := domain.Order{
		ReferenceCode: "TRX-20260101-003",
		PaymentMethod: domain.PaymentGateway,
		PaymentStatus: domain.StatusPending,
		Items:         []domain.LineItem{{ProductID: p.ID, Quantity: 1}},
	}
	_, err := s.CreateOrder(context.Background(), order)
	require.NoError(t, err)
	_, err = s.CreateOrder(context.Background(), order)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestUpdateOrderAppliesEffectOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := newProduct(t, s, "Susu", 5)
	order, err := s.CreateOrder(ctx, domain.Order{
		ReferenceCode: "TRX-20260101-004",
		PaymentMethod: domain.PaymentGateway,
		PaymentStatus: domain.StatusPending,
		Items:         []domain.LineItem{{ProductID: p.ID, Quantity: 2}},
	})
	require.NoError(t, err)

	toPaid := func(current domain.Order) (domain.OrderChange, error) {
		tr, err := domain.PlanTransition(current.PaymentStatus, domain.StatusPaid)
		return domain.OrderChange{Transition: tr}, err
	}
	for i := 0; i < 3; i++ {
		_, err := s.UpdateOrder(ctx, order.ID, toPaid)
		require.NoError(t, err)
	}

	got, _ := s.GetProduct(ctx, p.ID)
	assert.Equal(t, 3, got.Stock)
}

func TestUpdateOrderRejectsStaleTransition(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := newProduct(t, s, "Gula", 5)
	order, err := s.CreateOrder(ctx, domain.Order{
		ReferenceCode: "TRX-20260101-005",
		PaymentMethod: domain.PaymentGateway,
		PaymentStatus: domain.StatusPending,
		Items:         []domain.LineItem{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = s.UpdateOrder(ctx, order.ID, func(domain.Order) (domain.OrderChange, error) {
		return domain.OrderChange{Transition: domain.Transition{From: domain.StatusPaid, To: domain.StatusFailed, Effect: domain.StockRestore}}, nil
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	got, _ := s.GetProduct(ctx, p.ID)
	assert.Equal(t, 5, got.Stock)
}

func TestConcurrentAdjustmentsNeverGoNegative(t *testing.T) {
	s := New()
	p := newProduct(t, s, "Keripik", 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AdjustStock(context.Background(), p.ID, -1); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	got, _ := s.GetProduct(context.Background(), p.ID)
	assert.Equal(t, 10, ok)
	assert.Equal(t, 0, got.Stock)
}

func TestDeleteProductReferencedByOrder(t *testing.T) {
	s := New()
	p := newProduct(t, s, "Coklat", 4)
	_, err := s.CreateOrder(context.Background(), domain.Order{
		ReferenceCode: "TRX-20260101-006",
		PaymentMethod: domain.PaymentCash,
		PaymentStatus: domain.StatusPaid,
		Items:         []domain.LineItem{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteProduct(context.Background(), p.ID), store.ErrConflict)
}

func TestNewSeededHasRoles(t *testing.T) {
	users, err := NewSeeded().ListUsers(context.Background())
	require.NoError(t, err)
	roles := map[domain.Role]bool{}
	for _, u := range users {
		roles[u.Role] = true
	}
	assert.True(t, roles[domain.RoleAdmin])
	assert.True(t, roles[domain.RoleManager])
	assert.True(t, roles[domain.RoleCashier])
}
