package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/store"
	"tokopos/backend/internal/xid"
)

// Store is the in-process Repository used for dev mode and tests. A single
// mutex serialises every write, so each method is its own unit of work.
type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	orders          map[string]*domain.Order
	orderByGateway  map[string]string
	orderByRef      map[string]string
	ledger          map[string]domain.LedgerEntry
	usersByUsername map[string]domain.UserAccount
	auditLogs       []domain.AuditLog
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		orders:          make(map[string]*domain.Order),
		orderByGateway:  make(map[string]string),
		orderByRef:      make(map[string]string),
		ledger:          make(map[string]domain.LedgerEntry),
		usersByUsername: make(map[string]domain.UserAccount),
		auditLogs:       make([]domain.AuditLog, 0, 128),
	}
}

// seedUsers builds the demo accounts. Passwords come from SEED_ADMIN_PASSWORD,
// SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD; dev defaults apply otherwise.
func seedUsers() map[string]domain.UserAccount {
	accounts := []struct {
		username string
		display  string
		envKey   string
		fallback string
		role     domain.Role
	}{
		{"admin", "Administrator", "SEED_ADMIN_PASSWORD", "admin123", domain.RoleAdmin},
		{"manager", "Store Manager", "SEED_MANAGER_PASSWORD", "manager123", domain.RoleManager},
		{"cashier", "Kasir 1", "SEED_CASHIER_PASSWORD", "cashier123", domain.RoleCashier},
	}

	now := time.Now().UTC()
	users := make(map[string]domain.UserAccount, len(accounts))
	defaulted := false
	for _, a := range accounts {
		password := os.Getenv(a.envKey)
		if password == "" {
			password = a.fallback
			defaulted = true
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			panic(fmt.Sprintf("memory store: hash seed password for %s: %v", a.username, err))
		}
		users[a.username] = domain.UserAccount{
			Username:    a.username,
			DisplayName: a.display,
			Password:    string(hash),
			Role:        a.role,
			Active:      true,
			CreatedAt:   now,
		}
	}
	if defaulted {
		slog.Warn("memory store is using default dev credentials", "hint", "set SEED_*_PASSWORD to override")
	}
	return users
}

// NewSeeded returns a store with a small demo catalogue and the demo accounts.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	for _, p := range []domain.Product{
		{ID: "prd-kopi-susu", Name: "Kopi Susu", Price: 18000, Stock: 50},
		{ID: "prd-teh-manis", Name: "Es Teh Manis", Price: 8000, Stock: 80},
		{ID: "prd-roti-bakar", Name: "Roti Bakar", Price: 15000, Stock: 30},
		{ID: "prd-mie-goreng", Name: "Mie Goreng", Price: 22000, Stock: 25},
		{ID: "prd-air-mineral", Name: "Air Mineral 600ml", Price: 5000, Stock: 120},
	} {
		p.CreatedAt, p.UpdatedAt = now, now
		s.products[p.ID] = p
	}
	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price < 1 || product.Stock < 0 {
		return nil, domain.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	now := time.Now().UTC()
	product.CreatedAt, product.UpdatedAt = now, now
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price < 1 {
		return nil, domain.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	existing.Name = product.Name
	existing.Price = product.Price
	existing.UpdatedAt = time.Now().UTC()
	s.products[existing.ID] = existing
	return &existing, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	for _, order := range s.orders {
		for _, item := range order.Items {
			if item.ProductID == id {
				return fmt.Errorf("%w: product %s is referenced by order %s", store.ErrConflict, id, order.ReferenceCode)
			}
		}
	}
	delete(s.products, id)
	return nil
}

func (s *Store) AdjustStock(_ context.Context, id string, delta int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.applyDeltasLocked(map[string]int{id: delta}); err != nil {
		return nil, err
	}
	product := s.products[id]
	return &product, nil
}

// applyDeltasLocked validates every delta before writing any, so a failure
// leaves all products untouched.
func (s *Store) applyDeltasLocked(deltas map[string]int) error {
	ids := make([]string, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		product, ok := s.products[id]
		if !ok {
			return fmt.Errorf("product %s: %w", id, store.ErrNotFound)
		}
		if product.Stock+deltas[id] < 0 {
			return &store.InsufficientStockError{
				ProductID:   id,
				ProductName: product.Name,
				Available:   product.Stock,
				Requested:   -deltas[id],
			}
		}
	}

	now := time.Now().UTC()
	for _, id := range ids {
		product := s.products[id]
		product.Stock += deltas[id]
		product.UpdatedAt = now
		s.products[id] = product
	}
	return nil
}

func effectDeltas(items []domain.LineItem, effect domain.StockEffect) map[string]int {
	sign := 0
	switch effect {
	case domain.StockDecrement:
		sign = -1
	case domain.StockRestore:
		sign = 1
	}
	if sign == 0 {
		return nil
	}
	deltas := make(map[string]int, len(items))
	for _, item := range items {
		deltas[item.ProductID] += sign * int(item.Quantity)
	}
	return deltas
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	if len(order.Items) == 0 || order.ReferenceCode == "" {
		return nil, domain.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orderByRef[order.ReferenceCode]; exists {
		return nil, fmt.Errorf("%w: reference %s", store.ErrConflict, order.ReferenceCode)
	}
	if order.GatewayOrderID != "" {
		if _, exists := s.orderByGateway[order.GatewayOrderID]; exists {
			return nil, fmt.Errorf("%w: gateway order %s", store.ErrConflict, order.GatewayOrderID)
		}
	}
	if order.PaymentStatus == domain.StatusPaid {
		if err := s.applyDeltasLocked(effectDeltas(order.Items, domain.StockDecrement)); err != nil {
			return nil, err
		}
	}

	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = order.CreatedAt

	stored := cloneOrder(order)
	s.orders[order.ID] = stored
	s.orderByRef[order.ReferenceCode] = order.ID
	if order.GatewayOrderID != "" {
		s.orderByGateway[order.GatewayOrderID] = order.ID
	}
	out := cloneOrder(*stored)
	return out, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrder(*order), nil
}

func (s *Store) FindOrderByGatewayID(ctx context.Context, gatewayOrderID string) (*domain.Order, error) {
	s.mu.RLock()
	id, ok := s.orderByGateway[gatewayOrderID]
	s.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.GetOrder(ctx, id)
}

func (s *Store) FindOrderByReference(ctx context.Context, referenceCode string) (*domain.Order, error) {
	s.mu.RLock()
	id, ok := s.orderByRef[referenceCode]
	s.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.GetOrder(ctx, id)
}

func (s *Store) ListOrders(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		if filter.Status != "" && order.PaymentStatus != filter.Status {
			continue
		}
		if filter.Method != "" && order.PaymentMethod != filter.Method {
			continue
		}
		if !filter.CreatedBefore.IsZero() && !order.CreatedAt.Before(filter.CreatedBefore) {
			continue
		}
		result = append(result, *cloneOrder(*order))
	}
	slices.SortFunc(result, func(a, b domain.Order) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) UpdateOrder(_ context.Context, id string, mutate store.OrderMutation) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	change, err := mutate(*cloneOrder(*order))
	if err != nil {
		return nil, err
	}
	if change.Transition.From != "" && change.Transition.From != order.PaymentStatus {
		return nil, fmt.Errorf("%w: order %s moved to %s concurrently", store.ErrConflict, id, order.PaymentStatus)
	}
	if change.GatewayOrderID != "" && change.GatewayOrderID != order.GatewayOrderID {
		if owner, taken := s.orderByGateway[change.GatewayOrderID]; taken && owner != order.ID {
			return nil, fmt.Errorf("%w: gateway order %s", store.ErrConflict, change.GatewayOrderID)
		}
	}
	if err := s.applyDeltasLocked(effectDeltas(order.Items, change.Transition.Effect)); err != nil {
		return nil, err
	}

	if change.Transition.Changed() {
		order.PaymentStatus = change.Transition.To
	}
	// Earlier gateway ids stay mapped: a session opened before a retry can still settle.
	if change.GatewayOrderID != "" && change.GatewayOrderID != order.GatewayOrderID {
		order.GatewayOrderID = change.GatewayOrderID
		s.orderByGateway[order.GatewayOrderID] = order.ID
	}
	if change.GatewayResponse != "" {
		order.GatewayResponse = change.GatewayResponse
	}
	order.UpdatedAt = time.Now().UTC()
	return cloneOrder(*order), nil
}

func (s *Store) DeleteOrder(_ context.Context, id string, mutate store.OrderMutation) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	change, err := mutate(*cloneOrder(*order))
	if err != nil {
		return nil, err
	}
	if err := s.applyDeltasLocked(effectDeltas(order.Items, change.Transition.Effect)); err != nil {
		return nil, err
	}

	delete(s.orders, id)
	delete(s.orderByRef, order.ReferenceCode)
	for gatewayOrderID, owner := range s.orderByGateway {
		if owner == id {
			delete(s.orderByGateway, gatewayOrderID)
		}
	}
	return cloneOrder(*order), nil
}

func (s *Store) CreateLedgerEntry(_ context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	if entry.Amount < 1 || strings.TrimSpace(entry.Description) == "" {
		return nil, domain.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.insertLedgerLocked(&entry)
	return &entry, nil
}

func (s *Store) insertLedgerLocked(entry *domain.LedgerEntry) {
	if entry.ID == "" {
		entry.ID = xid.New("led")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Source == "" {
		entry.Source = domain.SourceManual
	}
	s.ledger[entry.ID] = *entry
}

func (s *Store) GetLedgerEntry(_ context.Context, id string) (*domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.ledger[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &entry, nil
}

func (s *Store) ListLedgerEntries(_ context.Context, entryType domain.LedgerEntryType, limit int) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.LedgerEntry, 0, len(s.ledger))
	for _, entry := range s.ledger {
		if entryType != "" && entry.Type != entryType {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.LedgerEntry) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) DeleteLedgerEntry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ledger[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.ledger, id)
	return nil
}

func (s *Store) RecordStockPurchase(_ context.Context, entry domain.LedgerEntry, productID string, qty int) (*domain.LedgerEntry, *domain.Product, error) {
	if entry.Amount < 1 || qty < 0 {
		return nil, nil, domain.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var restocked *domain.Product
	if productID != "" {
		if _, ok := s.products[productID]; !ok {
			return nil, nil, fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
		}
		if qty > 0 {
			if err := s.applyDeltasLocked(map[string]int{productID: qty}); err != nil {
				return nil, nil, err
			}
		}
		product := s.products[productID]
		restocked = &product
		entry.ProductID = productID
	}
	s.insertLedgerLocked(&entry)
	return &entry, restocked, nil
}

func (s *Store) FinancialTotals(_ context.Context) (domain.FinancialTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var totals domain.FinancialTotals
	for _, order := range s.orders {
		if order.PaymentStatus != domain.StatusPaid {
			continue
		}
		totals.PaidOrderTotal += order.Total
		totals.PaidOrderCount++
	}
	for _, entry := range s.ledger {
		switch {
		case entry.Type == domain.LedgerIncome:
			totals.LedgerIncome += entry.Amount
		case entry.Source == domain.SourceStockPurchase:
			totals.StockPurchaseExpense += entry.Amount
		default:
			totals.ManualExpense += entry.Amount
		}
	}
	return totals, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return domain.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return domain.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, len(s.auditLogs))
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		result = append(result, s.auditLogs[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func cloneOrder(src domain.Order) *domain.Order {
	dst := src
	dst.Items = slices.Clone(src.Items)
	return &dst
}
