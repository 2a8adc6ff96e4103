package port

import (
	"context"

	"github.com/rl1809/shop/internal/core/domain"
)

type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event domain.OrderPlacedEvent) error
	Close() error
}
