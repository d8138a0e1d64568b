package service

import (
	"context"
	"fmt"
	"strings"

	"tokopos/backend/internal/domain"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireRole(ctx, domain.RoleManager, domain.RoleAdmin); err != nil {
		return domain.Product{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validateStruct(req); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:  req.Name,
		Price: req.Price,
		Stock: req.InitialStock,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%d,stock=%d", created.Name, created.Price, created.Stock))
	return *created, nil
}

// UpdateProduct changes name and price only; stock moves through AdjustStock.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireRole(ctx, domain.RoleManager, domain.RoleAdmin); err != nil {
		return domain.Product{}, err
	}
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		req.Name = &trimmed
	}
	if err := s.validateStruct(req); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	changes := make([]string, 0, 2)
	if req.Name != nil && *req.Name != existing.Name {
		changes = append(changes, fmt.Sprintf("name:%s->%s", existing.Name, *req.Name))
		existing.Name = *req.Name
	}
	if req.Price != nil && *req.Price != existing.Price {
		changes = append(changes, fmt.Sprintf("price:%d->%d", existing.Price, *req.Price))
		existing.Price = *req.Price
	}
	if len(changes) == 0 {
		return *existing, nil
	}

	updated, err := s.repo.UpdateProduct(ctx, *existing)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_update", "product", updated.ID, strings.Join(changes, ","))
	return *updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", "product", id, "")
	return nil
}

// AdjustStock applies a manual stock correction through the inventory ledger.
func (s *Service) AdjustStock(ctx context.Context, id string, req domain.StockAdjustmentRequest) (domain.Product, error) {
	if err := requireRole(ctx, domain.RoleManager, domain.RoleAdmin); err != nil {
		return domain.Product{}, err
	}
	if err := s.validateStruct(req); err != nil {
		return domain.Product{}, err
	}

	product, err := s.inventory.Adjust(ctx, id, req.Delta)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "stock_adjust", "product", id, fmt.Sprintf("delta=%d,stock=%d,reason=%s", req.Delta, product.Stock, strings.TrimSpace(req.Reason)))
	return *product, nil
}
