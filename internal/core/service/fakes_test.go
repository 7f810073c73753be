package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/timed-flash-sale/internal/adapter/storage"
	"github.com/rl1809/timed-flash-sale/internal/core/domain"
	"github.com/rl1809/timed-flash-sale/internal/port"
)

// faultyStore wraps the memory store and injects failures.
type faultyStore struct {
	*storage.MemoryAdapter
	reserveErr    error
	insertErr     error
	insertCommits bool
	releaseErr    error
	hideOrders    bool
	releases      atomic.Int32

	lookupErrAfterInsert error
	insertAttempted      atomic.Bool

	// cancelAfterReserve fires once a unit is reserved. With honorContext the
	// store fails on a done context the way SQL drivers do.
	cancelAfterReserve context.CancelFunc
	honorContext       bool
}

func (f *faultyStore) ctxErr(ctx context.Context) error {
	if f.honorContext {
		return ctx.Err()
	}
	return nil
}

func newFaultyStore() *faultyStore {
	return &faultyStore{MemoryAdapter: storage.NewMemoryAdapter()}
}

func (f *faultyStore) ReserveOneUnit(ctx context.Context, id string) (bool, error) {
	if f.reserveErr != nil {
		return false, f.reserveErr
	}
	if err := f.ctxErr(ctx); err != nil {
		return false, err
	}
	ok, err := f.MemoryAdapter.ReserveOneUnit(ctx, id)
	if ok && f.cancelAfterReserve != nil {
		f.cancelAfterReserve()
	}
	return ok, err
}

func (f *faultyStore) ReleaseOneUnit(ctx context.Context, id string) error {
	f.releases.Add(1)
	if f.releaseErr != nil {
		return f.releaseErr
	}
	if err := f.ctxErr(ctx); err != nil {
		return err
	}
	return f.MemoryAdapter.ReleaseOneUnit(ctx, id)
}

func (f *faultyStore) TryInsert(ctx context.Context, userID, flashSaleID string) (*domain.Order, error) {
	f.insertAttempted.Store(true)
	if err := f.ctxErr(ctx); err != nil {
		return nil, err
	}
	if f.insertErr != nil {
		if f.insertCommits {
			f.MemoryAdapter.TryInsert(ctx, userID, flashSaleID)
		}
		return nil, f.insertErr
	}
	return f.MemoryAdapter.TryInsert(ctx, userID, flashSaleID)
}

func (f *faultyStore) GetByUserAndSale(ctx context.Context, userID, flashSaleID string) (*domain.Order, error) {
	if f.lookupErrAfterInsert != nil && f.insertAttempted.Load() {
		return nil, f.lookupErrAfterInsert
	}
	if err := f.ctxErr(ctx); err != nil {
		return nil, err
	}
	if f.hideOrders {
		return nil, nil
	}
	return f.MemoryAdapter.GetByUserAndSale(ctx, userID, flashSaleID)
}

// mockGate mirrors the Redis gate semantics in memory.
type mockGate struct {
	mu       sync.Mutex
	stock    map[string]int
	buyers   map[string]map[string]bool
	admitErr error
}

func newMockGate() *mockGate {
	return &mockGate{
		stock:  make(map[string]int),
		buyers: make(map[string]map[string]bool),
	}
}

func (g *mockGate) Prime(ctx context.Context, saleID string, stock int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stock[saleID] = stock
	g.buyers[saleID] = make(map[string]bool)
	return nil
}

func (g *mockGate) SyncStock(ctx context.Context, saleID string, stock int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.stock[saleID]; !ok {
		g.stock[saleID] = stock
	}
	return nil
}

func (g *mockGate) Admit(ctx context.Context, saleID, userID string) (port.GateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.admitErr != nil {
		return port.GateMiss, g.admitErr
	}
	if g.buyers[saleID][userID] {
		return port.GateDuplicate, nil
	}
	stock, ok := g.stock[saleID]
	if !ok {
		return port.GateMiss, nil
	}
	if stock <= 0 {
		return port.GateSoldOut, nil
	}
	g.stock[saleID] = stock - 1
	if g.buyers[saleID] == nil {
		g.buyers[saleID] = make(map[string]bool)
	}
	g.buyers[saleID][userID] = true
	return port.GateAdmitted, nil
}

func (g *mockGate) Release(ctx context.Context, saleID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.buyers[saleID][userID] {
		return nil
	}
	delete(g.buyers[saleID], userID)
	if _, ok := g.stock[saleID]; ok {
		g.stock[saleID]++
	}
	return nil
}

func (g *mockGate) admitted(saleID, userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.buyers[saleID][userID]
}

func (g *mockGate) stockOf(saleID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stock[saleID]
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (m *recordingMetrics) ObservePurchase(outcome string, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func seedSale(t *testing.T, store port.SaleRepository, start, end time.Time, stock int) domain.FlashSale {
	t.Helper()
	sale := domain.FlashSale{
		ID:             uuid.NewString(),
		StartTime:      start,
		EndTime:        end,
		TotalStock:     stock,
		RemainingStock: stock,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	require.NoError(t, store.CreateSale(context.Background(), sale))
	return sale
}

func remaining(t *testing.T, store port.SaleRepository, id string) int {
	t.Helper()
	sale, err := store.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, sale)
	return sale.RemainingStock
}
