package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/events"
	"tokopos/backend/internal/inventory"
	"tokopos/backend/internal/metrics"
	"tokopos/backend/internal/store"
	"tokopos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo      store.Repository
	inventory *inventory.Ledger
	publisher events.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	validate  *validator.Validate

	now     func() time.Time
	refCode func(time.Time) string
}

func New(repo store.Repository, publisher events.Publisher, logger *slog.Logger, m *metrics.Metrics) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		repo:      repo,
		inventory: inventory.NewLedger(repo),
		publisher: publisher,
		logger:    logger.With(slog.String("component", "service")),
		metrics:   m,
		validate:  validator.New(),
		now:       func() time.Time { return time.Now().UTC() },
		refCode: func(at time.Time) string {
			return domain.NewReferenceCode(at, rand.IntN(1000))
		},
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

func requireRole(ctx context.Context, roles ...domain.Role) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || !slices.Contains(roles, actor.Role) {
		return fmt.Errorf("%w: requires role %v", domain.ErrForbidden, roles)
	}
	return nil
}

func actorOrSystem(ctx context.Context) domain.Actor {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{Username: "system", Role: "system"}
	}
	return actor
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor := actorOrSystem(ctx)

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to write audit log",
			slog.String("action", action),
			slog.String("entity", entityType+"/"+entityID),
			slog.Any("error", err))
	}
}

// recordTransition runs after commit: metrics, audit and downstream events.
// None of these can undo the committed change, so failures are only logged.
func (s *Service) recordTransition(ctx context.Context, order domain.Order, tr domain.Transition, action string) {
	if !tr.Changed() {
		return
	}

	from := string(tr.From)
	if from == "" {
		from = "NONE"
	}
	s.metrics.ObserveTransition(from, string(tr.To))
	s.logAudit(ctx, action, "order", order.ID, fmt.Sprintf("%s->%s stock=%s", from, tr.To, tr.Effect))
	s.logger.InfoContext(ctx, "order status changed",
		slog.String("order_id", order.ID),
		slog.String("reference", order.ReferenceCode),
		slog.String("from", from),
		slog.String("to", string(tr.To)),
		slog.String("stock_effect", tr.Effect.String()))

	event := domain.OrderEvent{
		OrderID:        order.ID,
		ReferenceCode:  order.ReferenceCode,
		GatewayOrderID: order.GatewayOrderID,
		From:           tr.From,
		To:             tr.To,
		Effect:         tr.Effect.String(),
		Total:          order.Total,
		At:             s.now(),
	}
	if err := s.publisher.PublishOrderEvent(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish order event",
			slog.String("order_id", order.ID),
			slog.Any("error", err))
	}
}
