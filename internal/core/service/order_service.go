package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/shop/internal/core/domain"
	"github.com/rl1809/shop/internal/core/policy"
	"github.com/rl1809/shop/internal/port"
)

const tracerName = "github.com/rl1809/shop/internal/core/service"

type PlaceOrderRequest struct {
	RequestID string
	UserID    int64
	ProductID int64
	Quantity  int
}

type OrderService struct {
	db        port.DatabaseRepository
	cache     port.CacheRepository
	publisher port.EventPublisher
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewOrderService wires the order coordinator. cache and publisher may be nil,
// which disables request deduplication and event publishing.
func NewOrderService(db port.DatabaseRepository, cache port.CacheRepository, publisher port.EventPublisher, logger *zap.Logger) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{
		db:        db,
		cache:     cache,
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
	}
}

// PlaceOrder reserves stock and records the order in one transaction.
// A repeated RequestID returns domain.ErrDuplicateRequest together with the
// order ID of the first attempt once that attempt has committed.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "place_order")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user.id", req.UserID),
		attribute.Int64("product.id", req.ProductID),
		attribute.Int("order.quantity", req.Quantity),
	)

	orderID, err := s.placeOrder(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return orderID, err
	}

	span.SetAttributes(attribute.Int64("order.id", orderID))
	span.SetStatus(codes.Ok, "order placed")
	return orderID, nil
}

func (s *OrderService) placeOrder(ctx context.Context, req PlaceOrderRequest) (int64, error) {
	if req.Quantity <= 0 {
		return 0, domain.ErrInvalidQuantity
	}

	if _, err := authorize(ctx, s.db, req.UserID, policy.PermPlaceOrder); err != nil {
		return 0, err
	}

	var idempotencyKey string
	if req.RequestID != "" && s.cache != nil {
		idempotencyKey = fmt.Sprintf("order:%d:%s", req.UserID, req.RequestID)

		ok, err := s.cache.SetIdempotency(ctx, idempotencyKey)
		if err != nil {
			return 0, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			previous, err := s.cache.GetIdempotency(ctx, idempotencyKey)
			if err != nil {
				return 0, fmt.Errorf("idempotency lookup failed: %w", err)
			}
			return previous, domain.ErrDuplicateRequest
		}
	}

	placedAt := s.now().UTC()

	var (
		orderID int64
		item    domain.LineItem
	)
	err := s.db.WithinTx(ctx, func(ctx context.Context, uow port.UnitOfWork) error {
		unitPrice, err := uow.Reserve(ctx, req.ProductID, req.Quantity)
		if err != nil {
			return err
		}

		item = domain.LineItem{
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
			UnitPrice: unitPrice,
		}

		orderID, err = uow.Record(ctx, req.UserID, []domain.LineItem{item}, placedAt)
		return err
	})
	if err != nil {
		if idempotencyKey != "" {
			if releaseErr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), idempotencyKey); releaseErr != nil {
				s.logger.Warn("failed to release idempotency key",
					zap.String("key", idempotencyKey), zap.Error(releaseErr))
			}
		}
		return 0, err
	}

	if idempotencyKey != "" {
		if err := s.cache.CompleteIdempotency(context.WithoutCancel(ctx), idempotencyKey, orderID); err != nil {
			s.logger.Warn("failed to store idempotency result",
				zap.String("key", idempotencyKey), zap.Int64("order_id", orderID), zap.Error(err))
		}
	}

	event := domain.OrderPlacedEvent{
		OrderID:    orderID,
		UserID:     req.UserID,
		ProductID:  item.ProductID,
		Quantity:   item.Quantity,
		UnitPrice:  item.UnitPrice,
		TotalPrice: item.Total(),
		PlacedAt:   placedAt,
	}
	s.publish(ctx, event)

	s.logger.Info("order placed",
		zap.Int64("order_id", orderID),
		zap.Int64("user_id", req.UserID),
		zap.Int64("product_id", req.ProductID),
		zap.Int("quantity", req.Quantity),
		zap.String("total", event.TotalPrice.StringFixed(2)),
	)
	return orderID, nil
}

// publish never fails the order: it is already committed.
func (s *OrderService) publish(ctx context.Context, event domain.OrderPlacedEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("failed to publish order placed event",
			zap.Int64("order_id", event.OrderID), zap.Error(err))
	}
}

func (s *OrderService) OrdersForUser(ctx context.Context, actorID int64) ([]domain.Order, error) {
	if _, err := authorize(ctx, s.db, actorID, policy.PermViewOwnOrders); err != nil {
		return nil, err
	}
	return s.db.OrdersByUser(ctx, actorID)
}
