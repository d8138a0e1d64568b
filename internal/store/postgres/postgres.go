package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/store"
	"tokopos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) begin(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}

const productColumns = `id, name, price, stock, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Product{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	return result, rows.Err()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price < 1 || product.Stock < 0 {
		return nil, domain.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}

	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		INSERT INTO products (id, name, price, stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING `+productColumns,
		product.ID, product.Name, product.Price, product.Stock))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price < 1 {
		return nil, domain.ErrValidation
	}

	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, price = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.Name, product.Price))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: product %s is referenced by orders", store.ErrConflict, id)
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error) {
	return adjustStock(ctx, s.db, id, delta)
}

// adjustStock is a single conditional update, so the non-negative check and
// the write cannot interleave with another writer.
func adjustStock(ctx context.Context, q queryer, id string, delta int) (*domain.Product, error) {
	p, err := scanProduct(q.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING `+productColumns, id, delta))
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var name string
	var stock int
	err = q.QueryRowContext(ctx, `SELECT name, stock FROM products WHERE id = $1`, id).Scan(&name, &stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
		}
		return nil, err
	}
	return nil, &store.InsufficientStockError{
		ProductID:   id,
		ProductName: name,
		Available:   stock,
		Requested:   -delta,
	}
}

// applyEffect adjusts stock for every product of the order in id order so
// concurrent units of work lock rows consistently.
func applyEffect(ctx context.Context, q queryer, items []domain.LineItem, effect domain.StockEffect) error {
	sign := 0
	switch effect {
	case domain.StockDecrement:
		sign = -1
	case domain.StockRestore:
		sign = 1
	default:
		return nil
	}

	deltas := make(map[string]int, len(items))
	for _, item := range items {
		deltas[item.ProductID] += sign * int(item.Quantity)
	}
	ids := make([]string, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if _, err := adjustStock(ctx, q, id, deltas[id]); err != nil {
			return err
		}
	}
	return nil
}

const orderColumns = `id, reference_code, payment_method, payment_status, total,
	cashier_username, cashier_name, COALESCE(gateway_order_id, ''), COALESCE(gateway_response, ''),
	created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.ReferenceCode, &o.PaymentMethod, &o.PaymentStatus, &o.Total,
		&o.CashierUsername, &o.CashierName, &o.GatewayOrderID, &o.GatewayResponse,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return domain.Order{}, err
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if len(order.Items) == 0 || order.ReferenceCode == "" {
		return nil, domain.ErrValidation
	}
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.UpdatedAt = order.CreatedAt

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if order.PaymentStatus == domain.StatusPaid {
		if err := applyEffect(ctx, tx, order.Items, domain.StockDecrement); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, reference_code, payment_method, payment_status, total,
			cashier_username, cashier_name, gateway_order_id, gateway_response,
			created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
	`, order.ID, order.ReferenceCode, order.PaymentMethod, order.PaymentStatus, order.Total,
		order.CashierUsername, order.CashierName, nullIfEmpty(order.GatewayOrderID), nullIfEmpty(order.GatewayResponse),
		order.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	if order.GatewayOrderID != "" {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_gateway_ids (gateway_order_id, order_id) VALUES ($1, $2)
		`, order.GatewayOrderID, order.ID); err != nil {
			return nil, mapWriteError(err)
		}
	}

	for _, item := range order.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, order.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.Subtotal)
		if err != nil {
			return nil, mapWriteError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.findOrder(ctx, s.db, "id", id, false)
}

// FindOrderByGatewayID resolves any gateway id ever issued for an order, not
// only the latest one.
func (s *Store) FindOrderByGatewayID(ctx context.Context, gatewayOrderID string) (*domain.Order, error) {
	var orderID string
	err := s.db.QueryRowContext(ctx, `
		SELECT order_id FROM order_gateway_ids WHERE gateway_order_id = $1
	`, gatewayOrderID).Scan(&orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return s.findOrder(ctx, s.db, "id", orderID, false)
}

func (s *Store) FindOrderByReference(ctx context.Context, referenceCode string) (*domain.Order, error) {
	return s.findOrder(ctx, s.db, "reference_code", referenceCode, false)
}

// findOrder loads one order with its items; column is always a constant.
func (s *Store) findOrder(ctx context.Context, q queryer, column string, value string, forUpdate bool) (*domain.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE %s = $1`, orderColumns, column)
	if forUpdate {
		query += ` FOR UPDATE`
	}

	order, err := scanOrder(q.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := loadItems(ctx, q, []string{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	return &order, nil
}

func loadItems(ctx context.Context, q queryer, orderIDs []string) (map[string][]domain.LineItem, error) {
	result := make(map[string][]domain.LineItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return result, nil
	}

	rows, err := q.QueryContext(ctx, `
		SELECT order_id, product_id, product_name, quantity, unit_price, subtotal
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, id
	`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var orderID string
		var item domain.LineItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice, &item.Subtotal); err != nil {
			return nil, err
		}
		result[orderID] = append(result[orderID], item)
	}
	return result, rows.Err()
}

func (s *Store) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("payment_status = $%d", len(args)))
	}
	if filter.Method != "" {
		args = append(args, filter.Method)
		where = append(where, fmt.Sprintf("payment_method = $%d", len(args)))
	}
	if !filter.CreatedBefore.IsZero() {
		args = append(args, filter.CreatedBefore)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, 32)
	ids := make([]string, 0, 32)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	items, err := loadItems(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func (s *Store) UpdateOrder(ctx context.Context, id string, mutate store.OrderMutation) (*domain.Order, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	order, err := s.findOrder(ctx, tx, "id", id, true)
	if err != nil {
		return nil, err
	}
	change, err := mutate(*order)
	if err != nil {
		return nil, err
	}
	if change.Transition.From != "" && change.Transition.From != order.PaymentStatus {
		return nil, fmt.Errorf("%w: order %s moved to %s concurrently", store.ErrConflict, id, order.PaymentStatus)
	}
	if err := applyEffect(ctx, tx, order.Items, change.Transition.Effect); err != nil {
		return nil, err
	}

	if change.Transition.Changed() {
		order.PaymentStatus = change.Transition.To
	}
	if change.GatewayOrderID != "" && change.GatewayOrderID != order.GatewayOrderID {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_gateway_ids (gateway_order_id, order_id) VALUES ($1, $2)
		`, change.GatewayOrderID, id); err != nil {
			return nil, mapWriteError(err)
		}
		order.GatewayOrderID = change.GatewayOrderID
	}
	if change.GatewayResponse != "" {
		order.GatewayResponse = change.GatewayResponse
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE orders
		SET payment_status = $2, gateway_order_id = $3, gateway_response = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, id, order.PaymentStatus, nullIfEmpty(order.GatewayOrderID), nullIfEmpty(order.GatewayResponse)).Scan(&order.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

func (s *Store) DeleteOrder(ctx context.Context, id string, mutate store.OrderMutation) (*domain.Order, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	order, err := s.findOrder(ctx, tx, "id", id, true)
	if err != nil {
		return nil, err
	}
	change, err := mutate(*order)
	if err != nil {
		return nil, err
	}
	if err := applyEffect(ctx, tx, order.Items, change.Transition.Effect); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return order, nil
}

const ledgerColumns = `id, entry_type, source, description, amount, COALESCE(product_id, ''), created_by, created_at`

func scanLedgerEntry(row interface{ Scan(...any) error }) (domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	if err := row.Scan(&e.ID, &e.Type, &e.Source, &e.Description, &e.Amount, &e.ProductID, &e.CreatedBy, &e.CreatedAt); err != nil {
		return domain.LedgerEntry{}, err
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

func insertLedgerEntry(ctx context.Context, q queryer, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	if entry.ID == "" {
		entry.ID = xid.New("led")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Source == "" {
		entry.Source = domain.SourceManual
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, entry_type, source, description, amount, product_id, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.Type, entry.Source, entry.Description, entry.Amount, nullIfEmpty(entry.ProductID), entry.CreatedBy, entry.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &entry, nil
}

func (s *Store) CreateLedgerEntry(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	if entry.Amount < 1 || strings.TrimSpace(entry.Description) == "" {
		return nil, domain.ErrValidation
	}
	return insertLedgerEntry(ctx, s.db, entry)
}

func (s *Store) GetLedgerEntry(ctx context.Context, id string) (*domain.LedgerEntry, error) {
	e, err := scanLedgerEntry(s.db.QueryRowContext(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (s *Store) ListLedgerEntries(ctx context.Context, entryType domain.LedgerEntryType, limit int) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries`
	args := []any{}
	if entryType != "" {
		args = append(args, entryType)
		query += ` WHERE entry_type = $1`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0, 32)
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) DeleteLedgerEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ledger_entries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) RecordStockPurchase(ctx context.Context, entry domain.LedgerEntry, productID string, qty int) (*domain.LedgerEntry, *domain.Product, error) {
	if entry.Amount < 1 || qty < 0 {
		return nil, nil, domain.ErrValidation
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var product *domain.Product
	if productID != "" {
		// A zero delta still locks the row and proves the product exists.
		product, err = adjustStock(ctx, tx, productID, qty)
		if err != nil {
			return nil, nil, err
		}
		entry.ProductID = productID
	}

	created, err := insertLedgerEntry(ctx, tx, entry)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return created, product, nil
}

func (s *Store) FinancialTotals(ctx context.Context) (domain.FinancialTotals, error) {
	var totals domain.FinancialTotals
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total), 0), COUNT(*)
		FROM orders
		WHERE payment_status = $1
	`, domain.StatusPaid).Scan(&totals.PaidOrderTotal, &totals.PaidOrderCount)
	if err != nil {
		return domain.FinancialTotals{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE entry_type = 'INCOME'), 0),
			COALESCE(SUM(amount) FILTER (WHERE entry_type = 'EXPENSE' AND source <> 'STOCK_PURCHASE'), 0),
			COALESCE(SUM(amount) FILTER (WHERE entry_type = 'EXPENSE' AND source = 'STOCK_PURCHASE'), 0)
		FROM ledger_entries
	`).Scan(&totals.LedgerIncome, &totals.ManualExpense, &totals.StockPurchaseExpense)
	if err != nil {
		return domain.FinancialTotals{}, err
	}
	return totals, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return domain.ErrValidation
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, display_name, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,true,$5,now())
	`, user.Username, user.DisplayName, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, display_name, password, role, active, created_at
		FROM users
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))).Scan(
		&user.Username, &user.DisplayName, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, display_name, password, role, active, created_at
		FROM users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.DisplayName, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return domain.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func mapWriteError(err error) error {
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	case isForeignKeyViolation(err):
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	case isCheckViolation(err):
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return err
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool     { return pgCode(err) == "23505" }
func isForeignKeyViolation(err error) bool { return pgCode(err) == "23503" }
func isCheckViolation(err error) bool      { return pgCode(err) == "23514" }

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
