package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/store"
)

// CreateOrder validates every line against current stock, prices the lines
// and persists the order. CASH orders are PAID on creation and decrement
// stock in the same unit of work; GATEWAY orders start PENDING.
func (s *Service) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	if err := s.validateStruct(req); err != nil {
		return domain.Order{}, err
	}
	method, err := domain.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return domain.Order{}, err
	}

	// Repeated product ids are checked against their combined quantity.
	requested := make(map[string]int, len(req.Items))
	ids := make([]string, 0, len(req.Items))
	for _, line := range req.Items {
		id := strings.TrimSpace(line.ProductID)
		if _, seen := requested[id]; !seen {
			ids = append(ids, id)
		}
		requested[id] += int(line.Quantity)
	}

	products := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		product, err := s.inventory.Availability(ctx, id, requested[id])
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Order{}, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
			}
			return domain.Order{}, err
		}
		products[id] = *product
	}

	items := make([]domain.LineItem, 0, len(req.Items))
	var total int64
	for _, line := range req.Items {
		product := products[strings.TrimSpace(line.ProductID)]
		unitPrice := line.UnitPrice
		if unitPrice == 0 {
			unitPrice = product.Price
		}
		if unitPrice > domain.MaxUnitPrice {
			return domain.Order{}, fmt.Errorf("%w: unit price of %s exceeds %d", domain.ErrValidation, product.Name, domain.MaxUnitPrice)
		}
		subtotal := int64(line.Quantity) * unitPrice
		items = append(items, domain.LineItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   unitPrice,
			Subtotal:    subtotal,
		})
		total += subtotal
	}
	if req.Total != 0 && req.Total != total {
		return domain.Order{}, fmt.Errorf("%w: total %d does not match line subtotals %d", domain.ErrValidation, req.Total, total)
	}

	status := domain.StatusPending
	if method == domain.PaymentCash {
		status = domain.StatusPaid
	}

	actor := actorOrSystem(ctx)
	cashierName := strings.TrimSpace(req.CashierName)
	if cashierName == "" {
		cashierName = actor.DisplayName
	}
	if cashierName == "" {
		cashierName = actor.Username
	}

	now := s.now()
	created, err := s.repo.CreateOrder(ctx, domain.Order{
		ReferenceCode:   s.refCode(now),
		PaymentMethod:   method,
		PaymentStatus:   status,
		Total:           total,
		CashierUsername: actor.Username,
		CashierName:     cashierName,
		CreatedAt:       now,
		Items:           items,
	})
	if err != nil {
		return domain.Order{}, err
	}

	tr := domain.Transition{To: status}
	if status == domain.StatusPaid {
		tr.Effect = domain.StockDecrement
	}
	s.recordTransition(ctx, *created, tr, "order_create")
	return *created, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

// FindOrderByReference resolves a gateway order id or a receipt reference.
func (s *Service) FindOrderByReference(ctx context.Context, reference string) (domain.Order, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return domain.Order{}, fmt.Errorf("%w: reference is required", domain.ErrValidation)
	}
	order, err := s.repo.FindOrderByGatewayID(ctx, reference)
	if errors.Is(err, store.ErrNotFound) {
		order, err = s.repo.FindOrderByReference(ctx, reference)
	}
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

func (s *Service) ListOrders(ctx context.Context, status string, method string, limit int) (domain.OrderListResponse, error) {
	filter := domain.OrderFilter{Limit: limit}
	if filter.Limit < 1 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if status != "" {
		parsed, err := domain.ParsePaymentStatus(status)
		if err != nil {
			return domain.OrderListResponse{}, err
		}
		filter.Status = parsed
	}
	if method != "" {
		parsed, err := domain.ParsePaymentMethod(method)
		if err != nil {
			return domain.OrderListResponse{}, err
		}
		filter.Method = parsed
	}

	orders, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return domain.OrderListResponse{}, err
	}
	return domain.OrderListResponse{Orders: orders}, nil
}

// ListPaymentOrders is the monitoring view over gateway orders.
func (s *Service) ListPaymentOrders(ctx context.Context, status string, limit int) ([]domain.PaymentOrderSummary, error) {
	if err := requireRole(ctx, domain.RoleManager, domain.RoleAdmin); err != nil {
		return nil, err
	}
	resp, err := s.ListOrders(ctx, status, string(domain.PaymentGateway), limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PaymentOrderSummary, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		out = append(out, domain.PaymentOrderSummary{
			ID:             o.ID,
			ReferenceCode:  o.ReferenceCode,
			Total:          o.Total,
			PaymentStatus:  o.PaymentStatus,
			PaymentMethod:  o.PaymentMethod,
			GatewayOrderID: o.GatewayOrderID,
			CreatedAt:      o.CreatedAt,
		})
	}
	return out, nil
}

// mutateOrder runs plan against the locked order and records the committed
// transition, if any.
func (s *Service) mutateOrder(ctx context.Context, id string, action string, plan store.OrderMutation) (domain.Order, domain.Transition, error) {
	var planned domain.Transition
	updated, err := s.repo.UpdateOrder(ctx, id, func(current domain.Order) (domain.OrderChange, error) {
		change, err := plan(current)
		if err != nil {
			return domain.OrderChange{}, err
		}
		planned = change.Transition
		return change, nil
	})
	if err != nil {
		return domain.Order{}, domain.Transition{}, err
	}
	s.recordTransition(ctx, *updated, planned, action)
	return *updated, planned, nil
}

// ConfirmCashPayment settles a pending cash order.
func (s *Service) ConfirmCashPayment(ctx context.Context, id string) (domain.Order, error) {
	order, _, err := s.mutateOrder(ctx, id, "confirm_cash", func(current domain.Order) (domain.OrderChange, error) {
		if current.PaymentMethod != domain.PaymentCash {
			return domain.OrderChange{}, fmt.Errorf("%w: order %s is paid via %s", domain.ErrInvalidPaymentMethod, current.ReferenceCode, current.PaymentMethod)
		}
		if current.PaymentStatus != domain.StatusPending {
			return domain.OrderChange{}, fmt.Errorf("%w: order %s is %s", domain.ErrInvalidState, current.ReferenceCode, current.PaymentStatus)
		}
		tr, err := domain.PlanTransition(current.PaymentStatus, domain.StatusPaid)
		return domain.OrderChange{Transition: tr}, err
	})
	return order, err
}

// UpdatePaymentStatus is the manual status override. Moving a PAID order to
// FAILED or EXPIRED restocks, so it needs manager approval.
func (s *Service) UpdatePaymentStatus(ctx context.Context, id string, status string, managerApproved bool) (domain.Order, error) {
	next, err := domain.ParsePaymentStatus(status)
	if err != nil {
		return domain.Order{}, err
	}

	order, _, err := s.mutateOrder(ctx, id, "payment_status_update", func(current domain.Order) (domain.OrderChange, error) {
		tr, err := domain.PlanTransition(current.PaymentStatus, next)
		if err != nil {
			return domain.OrderChange{}, err
		}
		if tr.Effect == domain.StockRestore && !managerApproved {
			return domain.OrderChange{}, domain.ErrApprovalRequired
		}
		return domain.OrderChange{Transition: tr}, nil
	})
	return order, err
}

// DeleteOrder removes an order; a PAID order is cancelled first so its stock
// comes back.
func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return err
	}

	var planned domain.Transition
	deleted, err := s.repo.DeleteOrder(ctx, id, func(current domain.Order) (domain.OrderChange, error) {
		if current.PaymentStatus != domain.StatusPaid {
			return domain.OrderChange{}, nil
		}
		tr, err := domain.PlanTransition(current.PaymentStatus, domain.StatusFailed)
		planned = tr
		return domain.OrderChange{Transition: tr}, err
	})
	if err != nil {
		return err
	}

	s.recordTransition(ctx, *deleted, planned, "order_cancel_on_delete")
	s.logAudit(ctx, "order_delete", "order", deleted.ID, deleted.ReferenceCode)
	return nil
}

// CheckOrderStock compares each line of the order with current stock.
func (s *Service) CheckOrderStock(ctx context.Context, id string) (domain.StockCheck, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.StockCheck{}, err
	}

	requested := make(map[string]int, len(order.Items))
	names := make(map[string]string, len(order.Items))
	ids := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		if _, seen := requested[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		requested[item.ProductID] += int(item.Quantity)
		names[item.ProductID] = item.ProductName
	}

	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.StockCheck{}, err
	}

	check := domain.StockCheck{OrderID: order.ID, Available: true, Lines: make([]domain.StockCheckLine, 0, len(ids))}
	for _, pid := range ids {
		line := domain.StockCheckLine{ProductID: pid, ProductName: names[pid], Requested: requested[pid]}
		if p, ok := products[pid]; ok {
			line.ProductName = p.Name
			line.InStock = p.Stock
		}
		line.Sufficient = line.InStock >= line.Requested
		if !line.Sufficient {
			check.Available = false
		}
		check.Lines = append(check.Lines, line)
	}
	return check, nil
}

// AttachGatewayOrder binds the gateway-facing id to a pending gateway order.
func (s *Service) AttachGatewayOrder(ctx context.Context, id string, gatewayOrderID string) (domain.Order, error) {
	order, _, err := s.mutateOrder(ctx, id, "gateway_attach", func(current domain.Order) (domain.OrderChange, error) {
		if err := CanStartPayment(current); err != nil {
			return domain.OrderChange{}, err
		}
		return domain.OrderChange{
			Transition:     domain.Transition{From: current.PaymentStatus, To: current.PaymentStatus},
			GatewayOrderID: gatewayOrderID,
		}, nil
	})
	if err == nil {
		s.logAudit(ctx, "gateway_attach", "order", order.ID, gatewayOrderID)
	}
	return order, err
}

// CanStartPayment holds for PENDING orders settled through the gateway.
func CanStartPayment(order domain.Order) error {
	if order.PaymentMethod != domain.PaymentGateway {
		return fmt.Errorf("%w: order %s is paid via %s", domain.ErrInvalidPaymentMethod, order.ReferenceCode, order.PaymentMethod)
	}
	if order.PaymentStatus != domain.StatusPending {
		return fmt.Errorf("%w: order %s is %s", domain.ErrInvalidState, order.ReferenceCode, order.PaymentStatus)
	}
	return nil
}

// ApplyGatewayStatus moves the order identified by the gateway id to next and
// stores the raw notification. The gateway may settle or abandon a PENDING
// order; it cannot take a PAID order anywhere else.
func (s *Service) ApplyGatewayStatus(ctx context.Context, gatewayOrderID string, next domain.PaymentStatus, raw string) (domain.Order, domain.Transition, error) {
	found, err := s.repo.FindOrderByGatewayID(ctx, gatewayOrderID)
	if err != nil {
		return domain.Order{}, domain.Transition{}, err
	}

	return s.mutateOrder(ctx, found.ID, "gateway_notification", func(current domain.Order) (domain.OrderChange, error) {
		if current.PaymentStatus == domain.StatusPaid && next != domain.StatusPaid {
			return domain.OrderChange{}, fmt.Errorf("%w: gateway cannot move paid order %s to %s", domain.ErrInvalidState, current.ReferenceCode, next)
		}
		tr, err := domain.PlanTransition(current.PaymentStatus, next)
		if err != nil {
			return domain.OrderChange{}, err
		}
		return domain.OrderChange{Transition: tr, GatewayResponse: raw}, nil
	})
}

// ExpireOrder moves a still-PENDING order to EXPIRED. Any other status is
// left alone and reported as not expired.
func (s *Service) ExpireOrder(ctx context.Context, id string) (bool, error) {
	_, tr, err := s.mutateOrder(ctx, id, "order_expire", func(current domain.Order) (domain.OrderChange, error) {
		if current.PaymentStatus != domain.StatusPending {
			return domain.OrderChange{Transition: domain.Transition{From: current.PaymentStatus, To: current.PaymentStatus}}, nil
		}
		tr, err := domain.PlanTransition(current.PaymentStatus, domain.StatusExpired)
		return domain.OrderChange{Transition: tr}, err
	})
	if err != nil {
		return false, err
	}
	return tr.Changed(), nil
}

// ExpireStalePending expires PENDING orders created before now-olderThan.
func (s *Service) ExpireStalePending(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	if limit < 1 {
		limit = 100
	}
	stale, err := s.repo.ListOrders(ctx, domain.OrderFilter{
		Status:        domain.StatusPending,
		CreatedBefore: s.now().Add(-olderThan),
		Limit:         limit,
	})
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, order := range stale {
		ok, err := s.ExpireOrder(ctx, order.ID)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to expire pending order",
				slog.String("order_id", order.ID),
				slog.Any("error", err))
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}
