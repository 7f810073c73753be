package port

import (
	"context"

	"github.com/rl1809/timed-flash-sale/internal/core/domain"
)

type OrderRepository interface {
	// TryInsert returns nil, nil when the user already has an order for the sale
	TryInsert(ctx context.Context, userID, flashSaleID string) (*domain.Order, error)

	// GetByUserAndSale returns nil, nil when no order exists
	GetByUserAndSale(ctx context.Context, userID, flashSaleID string) (*domain.Order, error)
}
