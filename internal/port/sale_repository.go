package port

import (
	"context"
	"time"

	"github.com/rl1809/timed-flash-sale/internal/core/domain"
)

type SaleRepository interface {
	// CreateSale inserts sale unless its window intersects an existing one,
	// in which case it returns domain.ErrOverlap
	CreateSale(ctx context.Context, sale domain.FlashSale) error

	// GetByID returns nil, nil when the sale does not exist
	GetByID(ctx context.Context, id string) (*domain.FlashSale, error)

	// ReserveOneUnit decrements remaining stock only if it is above zero
	ReserveOneUnit(ctx context.Context, id string) (bool, error)

	// ReleaseOneUnit undoes a reservation whose order insert failed
	ReleaseOneUnit(ctx context.Context, id string) error

	FindCurrent(ctx context.Context, now time.Time) (*domain.FlashSale, error)
	FindNext(ctx context.Context, now time.Time) (*domain.FlashSale, error)
	FindMostRecentEnded(ctx context.Context, now time.Time) (*domain.FlashSale, error)

	Ping(ctx context.Context) error
}
