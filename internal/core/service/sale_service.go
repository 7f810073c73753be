package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rl1809/timed-flash-sale/internal/core/domain"
	"github.com/rl1809/timed-flash-sale/internal/port"
)

// Resolution is the sale most relevant at a given instant and its status.
// Sale is nil when Status is SaleStatusNone.
type Resolution struct {
	Sale   *domain.FlashSale `json:"flashSale"`
	Status domain.SaleStatus `json:"status"`
}

type SaleService struct {
	sales  port.SaleRepository
	gate   port.StockGate
	logger zerolog.Logger
	now    func() time.Time
}

// NewSaleService builds the sale admin and status service. gate may be nil.
func NewSaleService(sales port.SaleRepository, gate port.StockGate, logger zerolog.Logger) *SaleService {
	return &SaleService{
		sales:  sales,
		gate:   gate,
		logger: logger.With().Str("component", "sale_service").Logger(),
		now:    time.Now,
	}
}

func (s *SaleService) CreateSale(ctx context.Context, start, end time.Time, totalStock int) (*domain.FlashSale, error) {
	if start.IsZero() || end.IsZero() {
		return nil, domain.NewError(domain.KindValidation, "startTime and endTime are required")
	}
	if !start.Before(end) {
		return nil, domain.NewError(domain.KindValidation, "startTime must be before endTime")
	}
	if totalStock < 0 {
		return nil, domain.NewError(domain.KindValidation, "totalStock must not be negative")
	}

	now := s.now().UTC()
	sale := domain.FlashSale{
		ID:             uuid.NewString(),
		StartTime:      start.UTC(),
		EndTime:        end.UTC(),
		TotalStock:     totalStock,
		RemainingStock: totalStock,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.sales.CreateSale(ctx, sale); err != nil {
		return nil, err
	}

	if s.gate != nil {
		if err := s.gate.Prime(ctx, sale.ID, sale.TotalStock); err != nil {
			s.logger.Warn().Err(err).Str("sale_id", sale.ID).Msg("failed to prime stock gate")
		}
	}

	s.logger.Info().
		Str("sale_id", sale.ID).
		Time("start", sale.StartTime).
		Time("end", sale.EndTime).
		Int("stock", sale.TotalStock).
		Msg("flash sale created")

	return &sale, nil
}

// GetStatus picks the current sale, else the next upcoming one, else the most
// recently ended one.
func (s *SaleService) GetStatus(ctx context.Context, now time.Time) (Resolution, error) {
	current, err := s.sales.FindCurrent(ctx, now)
	if err != nil {
		return Resolution{}, fmt.Errorf("find current sale: %w", err)
	}
	if current != nil {
		return Resolution{Sale: current, Status: current.StatusAt(now)}, nil
	}

	next, err := s.sales.FindNext(ctx, now)
	if err != nil {
		return Resolution{}, fmt.Errorf("find next sale: %w", err)
	}
	if next != nil {
		return Resolution{Sale: next, Status: domain.SaleStatusUpcoming}, nil
	}

	previous, err := s.sales.FindMostRecentEnded(ctx, now)
	if err != nil {
		return Resolution{}, fmt.Errorf("find previous sale: %w", err)
	}
	if previous != nil {
		return Resolution{Sale: previous, Status: domain.SaleStatusEnded}, nil
	}

	return Resolution{Status: domain.SaleStatusNone}, nil
}

// CurrentStatus resolves against the service clock.
func (s *SaleService) CurrentStatus(ctx context.Context) (Resolution, error) {
	return s.GetStatus(ctx, s.now())
}

// SyncGate seeds the gate with the store's remaining stock for the sale that
// is current or next, without touching counters that already exist.
func (s *SaleService) SyncGate(ctx context.Context) error {
	if s.gate == nil {
		return nil
	}

	res, err := s.CurrentStatus(ctx)
	if err != nil {
		return err
	}
	if res.Sale == nil || res.Status == domain.SaleStatusEnded {
		return nil
	}

	if err := s.gate.SyncStock(ctx, res.Sale.ID, res.Sale.RemainingStock); err != nil {
		return fmt.Errorf("sync gate stock: %w", err)
	}
	s.logger.Info().Str("sale_id", res.Sale.ID).Int("stock", res.Sale.RemainingStock).Msg("stock gate synced")
	return nil
}

func (s *SaleService) Ping(ctx context.Context) error {
	return s.sales.Ping(ctx)
}
