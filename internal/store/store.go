package store

import (
	"context"
	"errors"
	"fmt"

	"tokopos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("conflict")
)

// InsufficientStockError carries the shortfall for the product that blocked
// an adjustment.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", e.ProductName, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// OrderMutation inspects the locked order and returns the change to persist.
// Returning an error aborts the unit of work with nothing written.
type OrderMutation func(current domain.Order) (domain.OrderChange, error)

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	// AdjustStock applies delta atomically and fails with *InsufficientStockError
	// when the result would be negative.
	AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error)

	// CreateOrder persists the order and its items. A PAID order decrements
	// stock for every item in the same unit of work.
	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	FindOrderByGatewayID(ctx context.Context, gatewayOrderID string) (*domain.Order, error)
	FindOrderByReference(ctx context.Context, referenceCode string) (*domain.Order, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	// UpdateOrder locks the order, asks mutate for a change, applies its stock
	// effect and persists the new status together.
	UpdateOrder(ctx context.Context, id string, mutate OrderMutation) (*domain.Order, error)
	// DeleteOrder removes the order; mutate may request a stock restore.
	DeleteOrder(ctx context.Context, id string, mutate OrderMutation) (*domain.Order, error)

	CreateLedgerEntry(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error)
	GetLedgerEntry(ctx context.Context, id string) (*domain.LedgerEntry, error)
	ListLedgerEntries(ctx context.Context, entryType domain.LedgerEntryType, limit int) ([]domain.LedgerEntry, error)
	DeleteLedgerEntry(ctx context.Context, id string) error
	// RecordStockPurchase writes the expense and, when qty > 0, restocks the
	// product in one unit of work.
	RecordStockPurchase(ctx context.Context, entry domain.LedgerEntry, productID string, qty int) (*domain.LedgerEntry, *domain.Product, error)
	FinancialTotals(ctx context.Context) (domain.FinancialTotals, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)
}
