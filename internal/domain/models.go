package domain

import "time"

// Amounts are integer rupiah; the shop never deals in fractional units.

type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	Stock     int       `json:"stock"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name         string `json:"name" validate:"required,max=120"`
	Price        int64  `json:"price" validate:"gt=0,lte=1000000000000"`
	InitialStock int    `json:"initial_stock" validate:"gte=0"`
}

type ProductUpdateRequest struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Price *int64  `json:"price,omitempty" validate:"omitempty,gt=0,lte=1000000000000"`
}

type StockAdjustmentRequest struct {
	Delta  int    `json:"delta" validate:"ne=0"`
	Reason string `json:"reason" validate:"max=255"`
}

type LineItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int16  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Subtotal    int64  `json:"subtotal"`
}

type Order struct {
	ID              string        `json:"id"`
	ReferenceCode   string        `json:"reference_code"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	Total           int64         `json:"total"`
	CashierUsername string        `json:"cashier_username"`
	CashierName     string        `json:"cashier_name"`
	GatewayOrderID  string        `json:"gateway_order_id,omitempty"`
	GatewayResponse string        `json:"gateway_response,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	Items           []LineItem    `json:"items"`
}

// MaxUnitPrice bounds prices so that a full order total fits in int64. The
// validate tags on price fields repeat this value.
const MaxUnitPrice int64 = 1_000_000_000_000

type OrderLineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int16  `json:"quantity" validate:"gt=0"`
	UnitPrice int64  `json:"unit_price" validate:"gte=0,lte=1000000000000"`
}

type CreateOrderRequest struct {
	PaymentMethod string             `json:"payment_method" validate:"required"`
	Total         int64              `json:"total" validate:"gte=0"`
	CashierName   string             `json:"cashier_name" validate:"max=120"`
	Items         []OrderLineRequest `json:"items" validate:"required,min=1,max=200,dive"`
}

type UpdatePaymentStatusRequest struct {
	Status     string `json:"status" validate:"required"`
	ManagerPIN string `json:"manager_pin,omitempty"`
}

type OrderFilter struct {
	Status        PaymentStatus
	Method        PaymentMethod
	CreatedBefore time.Time
	Limit         int
}

type OrderListResponse struct {
	Orders []Order `json:"orders"`
}

type StockCheckLine struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Requested   int    `json:"requested"`
	InStock     int    `json:"in_stock"`
	Sufficient  bool   `json:"sufficient"`
}

type StockCheck struct {
	OrderID   string           `json:"order_id"`
	Available bool             `json:"available"`
	Lines     []StockCheckLine `json:"lines"`
}

// OrderChange is what a lifecycle command asks storage to persist for a locked order.
type OrderChange struct {
	Transition      Transition
	GatewayOrderID  string
	GatewayResponse string
}

type OrderEvent struct {
	OrderID        string        `json:"order_id"`
	ReferenceCode  string        `json:"reference_code"`
	GatewayOrderID string        `json:"gateway_order_id,omitempty"`
	From           PaymentStatus `json:"from,omitempty"`
	To             PaymentStatus `json:"to"`
	Effect         string        `json:"stock_effect"`
	Total          int64         `json:"total"`
	At             time.Time     `json:"at"`
}

type PaymentSession struct {
	OrderID        string    `json:"order_id"`
	ReferenceCode  string    `json:"reference_code"`
	GatewayOrderID string    `json:"gateway_order_id"`
	Amount         int64     `json:"amount"`
	Token          string    `json:"token"`
	RedirectURL    string    `json:"payment_url,omitempty"`
	QRString       string    `json:"qr_string,omitempty"`
	QRCodeURL      string    `json:"qr_code_url,omitempty"`
	StatusURL      string    `json:"status_url,omitempty"`
	FallbackURL    string    `json:"fallback_url,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type StatusSnapshot struct {
	GatewayOrderID  string        `json:"order_id"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	TransactionID   string        `json:"transaction_id"`
	ReferenceNumber string        `json:"reference_number"`
	Amount          int64         `json:"amount"`
}

type PaymentOrderSummary struct {
	ID             string        `json:"id"`
	ReferenceCode  string        `json:"reference_code"`
	Total          int64         `json:"total"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
	PaymentMethod  PaymentMethod `json:"payment_method"`
	GatewayOrderID string        `json:"gateway_order_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

type LedgerEntry struct {
	ID          string          `json:"id"`
	Type        LedgerEntryType `json:"type"`
	Source      LedgerSource    `json:"source"`
	Description string          `json:"description"`
	Amount      int64           `json:"amount"`
	ProductID   string          `json:"product_id,omitempty"`
	CreatedBy   string          `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
}

type ExpenseRequest struct {
	Type        string `json:"type,omitempty"`
	Description string `json:"description" validate:"required,max=255"`
	Amount      int64  `json:"amount" validate:"gt=0"`
}

type StockPurchaseRequest struct {
	ProductID    string `json:"product_id,omitempty"`
	ProductName  string `json:"product_name" validate:"required_without=ProductID,max=120"`
	Quantity     int    `json:"quantity" validate:"gte=0"`
	TotalAmount  int64  `json:"total_amount" validate:"gt=0"`
	SupplierName string `json:"supplier_name,omitempty" validate:"max=120"`
	Notes        string `json:"notes,omitempty" validate:"max=255"`
}

type StockPurchaseResponse struct {
	Entry   LedgerEntry `json:"entry"`
	Product *Product    `json:"product,omitempty"`
}

type FinancialTotals struct {
	PaidOrderTotal       int64
	PaidOrderCount       int64
	LedgerIncome         int64
	ManualExpense        int64
	StockPurchaseExpense int64
}

type FinancialSummary struct {
	TotalIncome          int64 `json:"total_income"`
	TotalExpense         int64 `json:"total_expense"`
	NetIncome            int64 `json:"net_income"`
	PaidOrders           int64 `json:"paid_orders"`
	ManualExpense        int64 `json:"manual_expense"`
	StockPurchaseExpense int64 `json:"stock_purchase_expense"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        Role   `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username    string
	DisplayName string
	Role        Role
}

type CashierCreateRequest struct {
	Username    string `json:"username" validate:"required,min=4,max=64"`
	DisplayName string `json:"display_name" validate:"max=120"`
	Password    string `json:"password" validate:"required,min=6"`
}

type CashierUser struct {
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username    string
	DisplayName string
	Password    string
	Role        Role
	Active      bool
	CreatedAt   time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     Role      `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
