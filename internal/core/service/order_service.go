package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rl1809/timed-flash-sale/internal/core/domain"
	"github.com/rl1809/timed-flash-sale/internal/port"
)

// cleanupTimeout bounds compensation that runs after the request is gone.
const cleanupTimeout = 5 * time.Second

// maxUserIDLength matches the orders.user_id column width.
const maxUserIDLength = 64

type OrderService struct {
	sales   port.SaleRepository
	orders  port.OrderRepository
	gate    port.StockGate
	metrics port.PurchaseMetrics
	logger  zerolog.Logger
	now     func() time.Time
}

// NewOrderService builds the purchase coordinator. gate and metrics may be nil.
func NewOrderService(
	sales port.SaleRepository,
	orders port.OrderRepository,
	gate port.StockGate,
	metrics port.PurchaseMetrics,
	logger zerolog.Logger,
) *OrderService {
	return &OrderService{
		sales:   sales,
		orders:  orders,
		gate:    gate,
		metrics: metrics,
		logger:  logger.With().Str("component", "order_service").Logger(),
		now:     time.Now,
	}
}

// Purchase reserves one unit of stock and records the order. A reservation
// whose order insert conflicts is released before ErrAlreadyPurchased is
// returned, so stock is never lost without a matching order.
func (s *OrderService) Purchase(ctx context.Context, flashSaleID, userID string) (*domain.Order, error) {
	started := time.Now()
	order, err := s.purchase(ctx, flashSaleID, userID)
	if s.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = domain.KindOf(err).String()
		}
		s.metrics.ObservePurchase(outcome, time.Since(started))
	}
	return order, err
}

func (s *OrderService) purchase(ctx context.Context, flashSaleID, userID string) (*domain.Order, error) {
	if flashSaleID == "" || userID == "" {
		return nil, domain.NewError(domain.KindValidation, "flashSaleId and userId are required")
	}
	if len(userID) > maxUserIDLength {
		return nil, domain.NewError(domain.KindValidation, "userId must be at most %d bytes", maxUserIDLength)
	}

	sale, err := s.sales.GetByID(ctx, flashSaleID)
	if err != nil {
		return nil, fmt.Errorf("get flash sale: %w", err)
	}
	if sale == nil {
		return nil, domain.NewError(domain.KindNotFound, "flash sale not found")
	}

	// Inside the window a sale without stock has ended early; buyers see
	// that as out of stock rather than not active.
	now := s.now()
	if !sale.InWindow(now) {
		return nil, domain.ErrNotActive
	}

	// Repeat buyers are turned away before touching stock. Concurrent repeats
	// that slip past this check are caught by the unique constraint below.
	existing, err := s.orders.GetByUserAndSale(ctx, userID, flashSaleID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrAlreadyPurchased
	}

	if !sale.IsActive(now) {
		return nil, domain.ErrOutOfStock
	}

	admitted, err := s.admit(ctx, flashSaleID, userID)
	if err != nil {
		return nil, err
	}

	// Compensation outlives the request so a client disconnect or handler
	// timeout cannot strand a reserved unit.
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	ok, err := s.sales.ReserveOneUnit(ctx, flashSaleID)
	if err != nil {
		s.releaseGate(cleanupCtx, admitted, flashSaleID, userID)
		return nil, fmt.Errorf("reserve stock: %w", err)
	}
	if !ok {
		s.releaseGate(cleanupCtx, admitted, flashSaleID, userID)
		return nil, domain.ErrOutOfStock
	}

	order, err := s.orders.TryInsert(ctx, userID, flashSaleID)
	if err != nil {
		return s.recoverInsert(cleanupCtx, admitted, flashSaleID, userID, err)
	}
	if order == nil {
		if err := s.compensate(cleanupCtx, admitted, flashSaleID, userID); err != nil {
			return nil, err
		}
		return nil, domain.ErrAlreadyPurchased
	}

	s.logger.Info().Str("order_id", order.ID).Str("sale_id", flashSaleID).Str("user_id", userID).Msg("order placed")
	return order, nil
}

// admit consults the gate. Gate failures fall through to the store.
func (s *OrderService) admit(ctx context.Context, flashSaleID, userID string) (bool, error) {
	if s.gate == nil {
		return false, nil
	}

	res, err := s.gate.Admit(ctx, flashSaleID, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("sale_id", flashSaleID).Msg("stock gate unavailable")
		return false, nil
	}

	switch res {
	case port.GateAdmitted:
		return true, nil
	case port.GateSoldOut:
		return false, domain.ErrOutOfStock
	case port.GateDuplicate:
		return false, domain.ErrAlreadyPurchased
	default:
		return false, nil
	}
}

// recoverInsert resolves an insert that failed with an infrastructure error.
// The insert may still have committed, so the order is looked up before the
// reservation is released.
func (s *OrderService) recoverInsert(ctx context.Context, admitted bool, flashSaleID, userID string, insertErr error) (*domain.Order, error) {
	existing, err := s.orders.GetByUserAndSale(ctx, userID, flashSaleID)
	if err != nil {
		s.logger.Error().Err(err).
			Str("sale_id", flashSaleID).
			Str("user_id", userID).
			Msg("CRITICAL order state unknown after failed insert, reservation kept")
		return nil, fmt.Errorf("insert order: %w", errors.Join(insertErr, err))
	}
	if existing != nil {
		return existing, nil
	}

	if err := s.compensate(ctx, admitted, flashSaleID, userID); err != nil {
		return nil, errors.Join(fmt.Errorf("insert order: %w", insertErr), err)
	}
	return nil, fmt.Errorf("insert order: %w", insertErr)
}

func (s *OrderService) compensate(ctx context.Context, admitted bool, flashSaleID, userID string) error {
	if err := s.sales.ReleaseOneUnit(ctx, flashSaleID); err != nil {
		s.logger.Error().Err(err).
			Str("sale_id", flashSaleID).
			Str("user_id", userID).
			Msg("CRITICAL stock release failed")
		return fmt.Errorf("release stock: %w", err)
	}
	s.releaseGate(ctx, admitted, flashSaleID, userID)
	s.logger.Debug().Str("sale_id", flashSaleID).Str("user_id", userID).Msg("released reserved unit")
	return nil
}

func (s *OrderService) releaseGate(ctx context.Context, admitted bool, flashSaleID, userID string) {
	if !admitted {
		return
	}
	if err := s.gate.Release(ctx, flashSaleID, userID); err != nil {
		s.logger.Warn().Err(err).Str("sale_id", flashSaleID).Str("user_id", userID).Msg("failed to release gate admission")
	}
}

func (s *OrderService) GetOrder(ctx context.Context, userID, flashSaleID string) (*domain.Order, error) {
	if flashSaleID == "" || userID == "" {
		return nil, domain.NewError(domain.KindValidation, "flashSaleId and userId are required")
	}
	if len(userID) > maxUserIDLength {
		return nil, domain.NewError(domain.KindValidation, "userId must be at most %d bytes", maxUserIDLength)
	}

	order, err := s.orders.GetByUserAndSale(ctx, userID, flashSaleID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, domain.NewError(domain.KindNotFound, "order not found")
	}
	return order, nil
}
