package service

import (
	"context"
	"fmt"
	"strings"

	"tokopos/backend/internal/domain"
)

// CreateExpense records a manual expense. Income only ever comes from paid
// orders, so INCOME entries cannot be created by hand.
func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseRequest) (domain.LedgerEntry, error) {
	req.Description = strings.TrimSpace(req.Description)
	if err := s.validateStruct(req); err != nil {
		return domain.LedgerEntry{}, err
	}
	if req.Type != "" {
		entryType, err := domain.ParseLedgerEntryType(req.Type)
		if err != nil {
			return domain.LedgerEntry{}, err
		}
		if entryType != domain.LedgerExpense {
			return domain.LedgerEntry{}, fmt.Errorf("%w: only EXPENSE entries can be created manually", domain.ErrValidation)
		}
	}

	actor := actorOrSystem(ctx)
	entry, err := s.repo.CreateLedgerEntry(ctx, domain.LedgerEntry{
		Type:        domain.LedgerExpense,
		Source:      domain.SourceManual,
		Description: req.Description,
		Amount:      req.Amount,
		CreatedBy:   actor.Username,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	s.logAudit(ctx, "expense_create", "ledger_entry", entry.ID, fmt.Sprintf("amount=%d", entry.Amount))
	return *entry, nil
}

// RecordStockPurchase books the purchase as an expense and, for a known
// product with a positive quantity, restocks it in the same unit of work.
func (s *Service) RecordStockPurchase(ctx context.Context, req domain.StockPurchaseRequest) (domain.StockPurchaseResponse, error) {
	if err := requireRole(ctx, domain.RoleManager, domain.RoleAdmin); err != nil {
		return domain.StockPurchaseResponse{}, err
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	req.ProductName = strings.TrimSpace(req.ProductName)
	if err := s.validateStruct(req); err != nil {
		return domain.StockPurchaseResponse{}, err
	}

	name := req.ProductName
	if req.ProductID != "" {
		product, err := s.repo.GetProduct(ctx, req.ProductID)
		if err != nil {
			return domain.StockPurchaseResponse{}, err
		}
		name = product.Name
	}
	qty := 0
	if req.ProductID != "" {
		qty = req.Quantity
	}

	actor := actorOrSystem(ctx)
	entry, product, err := s.repo.RecordStockPurchase(ctx, domain.LedgerEntry{
		Type:        domain.LedgerExpense,
		Source:      domain.SourceStockPurchase,
		Description: stockPurchaseDescription(name, req.SupplierName, req.Notes),
		Amount:      req.TotalAmount,
		CreatedBy:   actor.Username,
		CreatedAt:   s.now(),
	}, req.ProductID, qty)
	if err != nil {
		return domain.StockPurchaseResponse{}, err
	}

	s.logAudit(ctx, "stock_purchase", "ledger_entry", entry.ID, fmt.Sprintf("product=%s,qty=%d,amount=%d", req.ProductID, qty, entry.Amount))
	return domain.StockPurchaseResponse{Entry: *entry, Product: product}, nil
}

func stockPurchaseDescription(product, supplier, notes string) string {
	var b strings.Builder
	b.WriteString("Stock purchase: ")
	b.WriteString(product)
	if supplier = strings.TrimSpace(supplier); supplier != "" {
		b.WriteString(" (Supplier: " + supplier + ")")
	}
	if notes = strings.TrimSpace(notes); notes != "" {
		b.WriteString(" - " + notes)
	}
	return b.String()
}

func (s *Service) ListLedgerEntries(ctx context.Context, entryType string, limit int) ([]domain.LedgerEntry, error) {
	if err := requireRole(ctx, domain.RoleManager, domain.RoleAdmin); err != nil {
		return nil, err
	}
	var parsed domain.LedgerEntryType
	if entryType != "" {
		t, err := domain.ParseLedgerEntryType(entryType)
		if err != nil {
			return nil, err
		}
		parsed = t
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListLedgerEntries(ctx, parsed, limit)
}

func (s *Service) GetLedgerEntry(ctx context.Context, id string) (domain.LedgerEntry, error) {
	entry, err := s.repo.GetLedgerEntry(ctx, id)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	return *entry, nil
}

func (s *Service) DeleteLedgerEntry(ctx context.Context, id string) error {
	if err := requireRole(ctx, domain.RoleManager, domain.RoleAdmin); err != nil {
		return err
	}
	entry, err := s.repo.GetLedgerEntry(ctx, id)
	if err != nil {
		return err
	}
	if entry.Type != domain.LedgerExpense {
		return fmt.Errorf("%w: only EXPENSE entries can be deleted", domain.ErrValidation)
	}
	if err := s.repo.DeleteLedgerEntry(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "ledger_delete", "ledger_entry", id, fmt.Sprintf("amount=%d,description=%s", entry.Amount, entry.Description))
	return nil
}

func (s *Service) FinancialSummary(ctx context.Context) (domain.FinancialSummary, error) {
	totals, err := s.repo.FinancialTotals(ctx)
	if err != nil {
		return domain.FinancialSummary{}, err
	}
	income := totals.PaidOrderTotal + totals.LedgerIncome
	expense := totals.ManualExpense + totals.StockPurchaseExpense
	return domain.FinancialSummary{
		TotalIncome:          income,
		TotalExpense:         expense,
		NetIncome:            income - expense,
		PaidOrders:           totals.PaidOrderCount,
		ManualExpense:        totals.ManualExpense,
		StockPurchaseExpense: totals.StockPurchaseExpense,
	}, nil
}
