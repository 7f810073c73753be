package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/timed-flash-sale/internal/core/domain"
)

// MemoryAdapter keeps sales and orders in process memory. Each operation holds
// the mutex for its whole duration, which gives the same atomicity the SQL
// adapters get from conditional updates and unique keys.
type MemoryAdapter struct {
	mu     sync.Mutex
	sales  map[string]*domain.FlashSale
	orders map[orderKey]domain.Order
}

type orderKey struct {
	userID      string
	flashSaleID string
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		sales:  make(map[string]*domain.FlashSale),
		orders: make(map[orderKey]domain.Order),
	}
}

func (m *MemoryAdapter) CreateSale(ctx context.Context, sale domain.FlashSale) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sales {
		if s.Overlaps(sale.StartTime, sale.EndTime) {
			return domain.ErrOverlap
		}
	}

	stored := sale
	m.sales[sale.ID] = &stored
	return nil
}

func (m *MemoryAdapter) GetByID(ctx context.Context, id string) (*domain.FlashSale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sales[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryAdapter) ReserveOneUnit(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sales[id]
	if !ok || s.RemainingStock <= 0 {
		return false, nil
	}
	s.RemainingStock--
	s.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *MemoryAdapter) ReleaseOneUnit(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sales[id]
	if !ok || s.RemainingStock >= s.TotalStock {
		return nil
	}
	s.RemainingStock++
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryAdapter) FindCurrent(ctx context.Context, now time.Time) (*domain.FlashSale, error) {
	return m.first(func(s *domain.FlashSale) bool { return s.InWindow(now) }, func(a, b *domain.FlashSale) bool {
		return a.ID < b.ID
	}), nil
}

func (m *MemoryAdapter) FindNext(ctx context.Context, now time.Time) (*domain.FlashSale, error) {
	return m.first(func(s *domain.FlashSale) bool { return s.StartTime.After(now) }, func(a, b *domain.FlashSale) bool {
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		return a.ID < b.ID
	}), nil
}

func (m *MemoryAdapter) FindMostRecentEnded(ctx context.Context, now time.Time) (*domain.FlashSale, error) {
	return m.first(func(s *domain.FlashSale) bool { return s.EndTime.Before(now) }, func(a, b *domain.FlashSale) bool {
		if !a.EndTime.Equal(b.EndTime) {
			return a.EndTime.After(b.EndTime)
		}
		return a.ID < b.ID
	}), nil
}

func (m *MemoryAdapter) first(match func(*domain.FlashSale) bool, less func(a, b *domain.FlashSale) bool) *domain.FlashSale {
	m.mu.Lock()
	defer m.mu.Unlock()

	var candidates []*domain.FlashSale
	for _, s := range m.sales {
		if match(s) {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool { return less(candidates[i], candidates[j]) })
	cp := *candidates[0]
	return &cp
}

func (m *MemoryAdapter) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryAdapter) TryInsert(ctx context.Context, userID, flashSaleID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := orderKey{userID: userID, flashSaleID: flashSaleID}
	if _, exists := m.orders[key]; exists {
		return nil, nil
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:          uuid.NewString(),
		UserID:      userID,
		FlashSaleID: flashSaleID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.orders[key] = order
	return &order, nil
}

func (m *MemoryAdapter) GetByUserAndSale(ctx context.Context, userID, flashSaleID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderKey{userID: userID, flashSaleID: flashSaleID}]
	if !ok {
		return nil, nil
	}
	return &order, nil
}
