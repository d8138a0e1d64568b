package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/metrics"
	"tokopos/backend/internal/payment"
	"tokopos/backend/internal/service"
	"tokopos/backend/internal/store"
)

// Payments is the gateway-facing side of the API.
type Payments interface {
	CreatePaymentSession(ctx context.Context, orderID string) (domain.PaymentSession, error)
	HandleNotification(ctx context.Context, raw []byte) string
	CheckStatus(ctx context.Context, reference string) (domain.StatusSnapshot, error)
}

type Options struct {
	AllowedOrigin  string
	RequestTimeout time.Duration
	Production     bool
	RateLimit      int
	LoginRateLimit int
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

type API struct {
	service  *service.Service
	payments Payments
	auth     *AuthManager
	logger   *slog.Logger
	metrics  *metrics.Metrics
	opts     Options
}

func New(svc *service.Service, payments Payments, auth *AuthManager, opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 300
	}
	if opts.LoginRateLimit <= 0 {
		opts.LoginRateLimit = 5
	}
	return &API{
		service:  svc,
		payments: payments,
		auth:     auth,
		logger:   opts.Logger.With(slog.String("component", "http")),
		metrics:  opts.Metrics,
		opts:     opts,
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(a.middlewareStack()...)

	r.Get("/healthz", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.With(httprate.Limit(a.opts.LoginRateLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(tooManyRequests),
		)).Post("/auth/login", a.handleLogin)

		r.Get("/products", a.requireAuth(a.handleListProducts))
		r.Post("/products", a.requireAuth(a.handleCreateProduct, domain.RoleManager, domain.RoleAdmin))
		r.Get("/products/{id}", a.requireAuth(a.handleGetProduct))
		r.Patch("/products/{id}", a.requireAuth(a.handleUpdateProduct, domain.RoleManager, domain.RoleAdmin))
		r.Delete("/products/{id}", a.requireAuth(a.handleDeleteProduct, domain.RoleAdmin))
		r.Post("/products/{id}/stock-adjustments", a.requireAuth(a.handleAdjustStock, domain.RoleManager, domain.RoleAdmin))

		r.Get("/orders", a.requireAuth(a.handleListOrders))
		r.Post("/orders", a.requireAuth(a.handleCreateOrder, domain.RoleCashier))
		r.Get("/orders/{id}", a.requireAuth(a.handleGetOrder))
		r.Delete("/orders/{id}", a.requireAuth(a.handleDeleteOrder, domain.RoleAdmin))
		r.Post("/orders/{id}/confirm-cash", a.requireAuth(a.handleConfirmCash, domain.RoleCashier))
		r.Put("/orders/{id}/payment-status", a.requireAuth(a.handleUpdatePaymentStatus))
		r.Get("/orders/{id}/stock-check", a.requireAuth(a.handleStockCheck))

		r.Post("/payments/sessions/{orderId}", a.requireAuth(a.handleCreatePaymentSession, domain.RoleCashier))
		r.With(httprate.Limit(120, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(tooManyRequests),
		)).Post("/payments/notifications", a.handlePaymentNotification)
		r.Get("/payments/status/{reference}", a.requireAuth(a.handlePaymentStatus))
		r.Get("/payments/orders", a.requireAuth(a.handlePaymentOrders, domain.RoleManager, domain.RoleAdmin))

		r.Get("/ledger", a.requireAuth(a.handleListLedger, domain.RoleManager, domain.RoleAdmin))
		r.Get("/ledger/summary", a.requireAuth(a.handleFinancialSummary))
		r.Get("/ledger/{id}", a.requireAuth(a.handleGetLedgerEntry))
		r.Delete("/ledger/{id}", a.requireAuth(a.handleDeleteLedgerEntry, domain.RoleManager, domain.RoleAdmin))
		r.Post("/ledger/expenses", a.requireAuth(a.handleCreateExpense))
		r.Post("/ledger/stock-purchases", a.requireAuth(a.handleStockPurchase, domain.RoleManager, domain.RoleAdmin))

		r.Get("/audit-logs", a.requireAuth(a.handleAuditLogs, domain.RoleAdmin))
		r.Get("/users/cashiers", a.requireAuth(a.handleListCashiers, domain.RoleAdmin))
		r.Post("/users/cashiers", a.requireAuth(a.handleCreateCashier, domain.RoleAdmin))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMethodNotAllowed(w)
	})
	return r
}

// requireAuth admits requests carrying a valid bearer token. With no roles
// listed any authenticated actor is admitted.
func (a *API) requireAuth(next http.HandlerFunc, roles ...domain.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !slices.Contains(roles, actor.Role) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.logger.InfoContext(r.Context(), "login rejected",
			slog.String("username", req.Username),
			slog.Any("error", err))
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := a.service.ListAuditLogs(r.Context(), parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) handleListCashiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"cashiers": a.auth.ListCashiers(r.Context())})
}

func (a *API) handleCreateCashier(w http.ResponseWriter, r *http.Request) {
	var req domain.CashierCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cashier, err := a.auth.CreateCashier(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"cashier": cashier})
}

// writeServiceError maps domain and storage errors onto HTTP statuses.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var shortfall *store.InsufficientStockError
	switch {
	case errors.As(err, &shortfall):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":        err.Error(),
			"product_id":   shortfall.ProductID,
			"product_name": shortfall.ProductName,
			"available":    shortfall.Available,
			"requested":    shortfall.Requested,
		})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrInsufficientStock), errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrInvalidPaymentMethod):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrApprovalRequired):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, payment.ErrGateway):
		a.logger.ErrorContext(r.Context(), "payment gateway failure", slog.Any("error", err))
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "payment gateway unavailable"})
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeError masks 5xx messages; 4xx messages are user-facing.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		slog.Error("internal error", slog.Int("status", status), slog.Any("error", err))
		msg = http.StatusText(status)
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
