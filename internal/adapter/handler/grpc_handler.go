package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/shop/internal/core/domain"
	"github.com/rl1809/shop/internal/core/service"
)

// GRPCHandler serves internal callers that are trusted to supply user_id.
type GRPCHandler struct {
	orderService *service.OrderService
	logger       *zap.Logger
}

var _ OrderServiceServer = (*GRPCHandler)(nil)

func NewGRPCHandler(orderService *service.OrderService, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{orderService: orderService, logger: logger}
}

func (h *GRPCHandler) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResponse, error) {
	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	orderID, err := h.orderService.PlaceOrder(ctx, service.PlaceOrderRequest{
		RequestID: requestID,
		UserID:    req.UserID,
		ProductID: req.ProductID,
		Quantity:  int(req.Quantity),
	})
	if errors.Is(err, domain.ErrDuplicateRequest) {
		return &PlaceOrderResponse{
			Success: false,
			Message: "duplicate request",
			OrderID: orderID,
		}, nil
	}
	if err != nil {
		code := grpcCode(err)
		if code == codes.Internal {
			h.logger.Error("grpc place order failed",
				zap.String("request_id", requestID), zap.Int64("user_id", req.UserID), zap.Error(err))
			return nil, status.Error(code, "internal error")
		}
		return nil, status.Error(code, err.Error())
	}

	return &PlaceOrderResponse{
		Success: true,
		Message: "order placed successfully",
		OrderID: orderID,
	}, nil
}

func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidRole),
		errors.Is(err, domain.ErrInvalidProduct):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrInsufficientStock):
		return codes.FailedPrecondition
	case errors.Is(err, domain.ErrAccountBlocked),
		errors.Is(err, domain.ErrUnauthorized):
		return codes.PermissionDenied
	case errors.Is(err, domain.ErrDuplicateEmail),
		errors.Is(err, domain.ErrDuplicateRequest),
		errors.Is(err, domain.ErrProductInUse):
		return codes.AlreadyExists
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Internal
	}
}
