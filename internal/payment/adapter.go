package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"tokopos/backend/internal/cache"
	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/metrics"
	"tokopos/backend/internal/store"
	"tokopos/backend/internal/xid"
)

// Orders is the slice of the order service the adapter drives.
type Orders interface {
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	AttachGatewayOrder(ctx context.Context, id string, gatewayOrderID string) (domain.Order, error)
	ApplyGatewayStatus(ctx context.Context, gatewayOrderID string, next domain.PaymentStatus, raw string) (domain.Order, domain.Transition, error)
	FindOrderByReference(ctx context.Context, reference string) (domain.Order, error)
}

// ExpiryScheduler arranges for a PENDING order to be expired later.
type ExpiryScheduler interface {
	ScheduleExpiry(ctx context.Context, orderID string, delay time.Duration) error
}

type Config struct {
	OrderPrefix     string
	SessionTTL      time.Duration
	CacheTTL        time.Duration
	ServerKey       string
	VerifySignature bool
}

const statusReadTimeout = 5 * time.Second

// Notification outcomes, also used as the metrics label.
const (
	OutcomeApplied        = "applied"
	OutcomeNoop           = "noop"
	OutcomeInvalidPayload = "invalid_payload"
	OutcomeBadSignature   = "bad_signature"
	OutcomeUnknownOrder   = "unknown_order"
	OutcomeRejected       = "rejected"
	OutcomeError          = "error"
)

type Adapter struct {
	orders    Orders
	gateway   Gateway
	cache     cache.StatusCache
	scheduler ExpiryScheduler
	cfg       Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	group     singleflight.Group
	now       func() time.Time
}

func NewAdapter(orders Orders, gateway Gateway, statusCache cache.StatusCache, scheduler ExpiryScheduler, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Adapter {
	if statusCache == nil {
		statusCache = cache.NoopStatusCache{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OrderPrefix == "" {
		cfg.OrderPrefix = "POS"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 15 * time.Minute
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Second
	}

	return &Adapter{
		orders:    orders,
		gateway:   gateway,
		cache:     statusCache,
		scheduler: scheduler,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "payment")),
		metrics:   m,
		tracer:    otel.Tracer("tokopos/backend/internal/payment"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreatePaymentSession opens a gateway session for a PENDING gateway order.
// The gateway-facing id is bound to the order before the provider is called.
func (a *Adapter) CreatePaymentSession(ctx context.Context, orderID string) (session domain.PaymentSession, err error) {
	ctx, span := a.tracer.Start(ctx, "payment.create_session", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if a.gateway == nil {
		return domain.PaymentSession{}, fmt.Errorf("%w: gateway is not configured", ErrGateway)
	}

	gatewayOrderID := fmt.Sprintf("%s-%s-%s", a.cfg.OrderPrefix, orderID, xid.Short(8))
	order, err := a.orders.AttachGatewayOrder(ctx, orderID, gatewayOrderID)
	if err != nil {
		return domain.PaymentSession{}, err
	}
	span.SetAttributes(attribute.String("gateway.order_id", gatewayOrderID))

	start := time.Now()
	result, err := a.gateway.CreateSession(ctx, SessionRequest{GatewayOrderID: gatewayOrderID, Amount: order.Total})
	a.metrics.ObserveGatewayCall("create_session", err, time.Since(start))
	if err != nil {
		a.logger.ErrorContext(ctx, "gateway session failed",
			slog.String("order_id", order.ID),
			slog.String("gateway_order_id", gatewayOrderID),
			slog.Any("error", err))
		if !errors.Is(err, ErrGateway) {
			err = fmt.Errorf("%w: %v", ErrGateway, err)
		}
		return domain.PaymentSession{}, err
	}

	if a.scheduler != nil {
		if err := a.scheduler.ScheduleExpiry(ctx, order.ID, a.cfg.SessionTTL); err != nil {
			a.logger.WarnContext(ctx, "failed to schedule order expiry",
				slog.String("order_id", order.ID),
				slog.Any("error", err))
		}
	}

	return domain.PaymentSession{
		OrderID:        order.ID,
		ReferenceCode:  order.ReferenceCode,
		GatewayOrderID: gatewayOrderID,
		Amount:         order.Total,
		Token:          result.Token,
		RedirectURL:    result.RedirectURL,
		QRString:       result.QRString,
		QRCodeURL:      result.QRCodeURL,
		StatusURL:      result.StatusURL,
		FallbackURL:    result.FallbackURL,
		ExpiresAt:      a.now().Add(a.cfg.SessionTTL),
	}, nil
}

// HandleNotification applies a gateway notification and reports what
// happened. It never fails: the gateway must always get an acknowledgement.
func (a *Adapter) HandleNotification(ctx context.Context, raw []byte) string {
	ctx, span := a.tracer.Start(ctx, "payment.notification")
	defer span.End()

	outcome := a.handleNotification(ctx, raw)
	span.SetAttributes(attribute.String("notification.outcome", outcome))
	a.metrics.ObserveNotification(outcome)
	return outcome
}

func (a *Adapter) handleNotification(ctx context.Context, raw []byte) string {
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil || strings.TrimSpace(n.OrderID) == "" {
		a.logger.WarnContext(ctx, "ignoring malformed gateway notification", slog.Any("error", err))
		return OutcomeInvalidPayload
	}
	log := a.logger.With(
		slog.String("gateway_order_id", n.OrderID),
		slog.String("transaction_status", n.TransactionStatus),
		slog.String("fraud_status", n.FraudStatus))

	if a.cfg.VerifySignature && !n.VerifySignature(a.cfg.ServerKey) {
		log.WarnContext(ctx, "gateway notification signature mismatch")
		return OutcomeBadSignature
	}

	next := MapStatus(n.TransactionStatus, n.FraudStatus)
	order, tr, err := a.orders.ApplyGatewayStatus(ctx, n.OrderID, next, string(raw))
	if delErr := a.cache.Delete(ctx, n.OrderID); delErr != nil {
		log.WarnContext(ctx, "failed to invalidate payment status cache", slog.Any("error", delErr))
	}

	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		log.WarnContext(ctx, "gateway notification for unknown order")
		return OutcomeUnknownOrder
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrConflict):
		log.WarnContext(ctx, "gateway notification not applied",
			slog.String("target", string(next)),
			slog.Any("error", err))
		return OutcomeRejected
	default:
		log.ErrorContext(ctx, "gateway notification failed", slog.Any("error", err))
		return OutcomeError
	}

	if !tr.Changed() {
		log.InfoContext(ctx, "gateway notification changed nothing",
			slog.String("order_id", order.ID),
			slog.String("status", string(order.PaymentStatus)))
		return OutcomeNoop
	}
	log.InfoContext(ctx, "gateway notification applied",
		slog.String("order_id", order.ID),
		slog.String("from", string(tr.From)),
		slog.String("to", string(tr.To)))
	return OutcomeApplied
}

// CheckStatus answers a status poll by gateway order id or reference code.
// Snapshots keyed by gateway order id are cached briefly; concurrent polls
// for the same reference share one store read.
func (a *Adapter) CheckStatus(ctx context.Context, reference string) (domain.StatusSnapshot, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return domain.StatusSnapshot{}, fmt.Errorf("%w: reference is required", domain.ErrValidation)
	}

	if cached, ok, err := a.cache.Get(ctx, reference); err != nil {
		a.logger.WarnContext(ctx, "payment status cache read failed",
			slog.String("reference", reference),
			slog.Any("error", err))
	} else if ok {
		return *cached, nil
	}

	v, err, _ := a.group.Do(reference, func() (any, error) {
		// Joined callers share this read; it is not bound to the first caller's cancellation.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusReadTimeout)
		defer cancel()

		order, err := a.orders.FindOrderByReference(ctx, reference)
		if err != nil {
			return domain.StatusSnapshot{}, err
		}
		snapshot := domain.StatusSnapshot{
			GatewayOrderID:  order.GatewayOrderID,
			PaymentStatus:   order.PaymentStatus,
			TransactionID:   order.ID,
			ReferenceNumber: order.ReferenceCode,
			Amount:          order.Total,
		}
		if order.GatewayOrderID == reference {
			if err := a.cache.Set(ctx, reference, &snapshot, a.cfg.CacheTTL); err != nil {
				a.logger.WarnContext(ctx, "payment status cache write failed",
					slog.String("reference", reference),
					slog.Any("error", err))
			}
		}
		return snapshot, nil
	})
	if err != nil {
		return domain.StatusSnapshot{}, err
	}
	return v.(domain.StatusSnapshot), nil
}
