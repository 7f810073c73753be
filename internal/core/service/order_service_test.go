package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/timed-flash-sale/internal/core/domain"
	"github.com/rl1809/timed-flash-sale/internal/port"
)

func newOrderServiceForTest(store *faultyStore, gate port.StockGate) *OrderService {
	return NewOrderService(store, store, gate, nil, zerolog.Nop())
}

func activeSale(t *testing.T, store *faultyStore, stock int) domain.FlashSale {
	now := time.Now()
	return seedSale(t, store, now.Add(-time.Hour), now.Add(time.Hour), stock)
}

func TestPurchase_Success(t *testing.T) {
	store := newFaultyStore()
	sale := activeSale(t, store, 10)
	svc := newOrderServiceForTest(store, nil)

	order, err := svc.Purchase(context.Background(), sale.ID, "user-1")
	require.NoError(t, err)
	require.NotNil(t, order)

	assert.NotEmpty(t, order.ID)
	assert.Equal(t, "user-1", order.UserID)
	assert.Equal(t, sale.ID, order.FlashSaleID)
	assert.Equal(t, 9, remaining(t, store, sale.ID))
}

func TestPurchase_Validation(t *testing.T) {
	svc := newOrderServiceForTest(newFaultyStore(), nil)

	_, err := svc.Purchase(context.Background(), "", "user-1")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Purchase(context.Background(), "sale-1", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestPurchase_NotFound(t *testing.T) {
	svc := newOrderServiceForTest(newFaultyStore(), nil)

	_, err := svc.Purchase(context.Background(), "missing", "user-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPurchase_NotActive(t *testing.T) {
	store := newFaultyStore()
	now := time.Now()
	upcoming := seedSale(t, store, now.Add(time.Hour), now.Add(2*time.Hour), 5)
	ended := seedSale(t, store, now.Add(-2*time.Hour), now.Add(-time.Hour), 5)
	svc := newOrderServiceForTest(store, nil)

	_, err := svc.Purchase(context.Background(), upcoming.ID, "user-1")
	assert.ErrorIs(t, err, domain.ErrNotActive)

	_, err = svc.Purchase(context.Background(), ended.ID, "user-1")
	assert.ErrorIs(t, err, domain.ErrNotActive)

	assert.Equal(t, 5, remaining(t, store, upcoming.ID))
	assert.Equal(t, 5, remaining(t, store, ended.ID))
}

func TestPurchase_InsufficientStock(t *testing.T) {
	store := newFaultyStore()
	sale := activeSale(t, store, 0)
	svc := newOrderServiceForTest(store, nil)

	_, err := svc.Purchase(context.Background(), sale.ID, "user-1")
	assert.ErrorIs(t, err, domain.ErrOutOfStock)
}

func TestPurchase_ReservationLostRace(t *testing.T) {
	store := newFaultyStore()
	sale := activeSale(t, store, 1)
	svc := newOrderServiceForTest(store, nil)

	// Stock drains between the activity check and the reservation.
	svc.now = func() time.Time {
		store.MemoryAdapter.ReserveOneUnit(context.Background(), sale.ID)
		return time.Now()
	}

	_, err := svc.Purchase(context.Background(), sale.ID, "user-1")
	assert.ErrorIs(t, err, domain.ErrOutOfStock)
	assert.Equal(t, 0, remaining(t, store, sale.ID))
}

func TestPurchase_DuplicateRequest(t *testing.T) {
	store := newFaultyStore()
	sale := activeSale(t, store, 10)
	svc := newOrderServiceForTest(store, nil)

	first, err := svc.Purchase(context.Background(), sale.ID, "user-1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = svc.Purchase(context.Background(), sale.ID, "user-1")
		assert.ErrorIs(t, err, domain.ErrAlreadyPurchased)
	}

	assert.Zero(t, store.releases.Load())
	assert.Equal(t, 9, remaining(t, store, sale.ID))

	order, err := svc.GetOrder(context.Background(), "user-1", sale.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, order.ID)
}

func TestPurchase_UniqueConflictCompensates(t *testing.T) {
	store := newFaultyStore()
	sale := activeSale(t, store, 10)
	svc := newOrderServiceForTest(store, nil)

	_, err := svc.Purchase(context.Background(), sale.ID, "user-1")
	require.NoError(t, err)

	// A concurrent repeat that passed the existing-order check.
	store.hideOrders = true
	_, err = svc.Purchase(context.Background(), sale.ID, "user-1")
	assert.ErrorIs(t, err, domain.ErrAlreadyPurchased)
	assert.Equal(t, int32(1), store.releases.Load())
	assert.Equal(t, 9, remaining(t, store, sale.ID))
}

func TestPurchase_CompensationFailure(t *testing.T) {
	store := newFaultyStore()
	sale := activeSale(t, store, 10)
	svc := newOrderServiceForTest(store, nil)

	_, err := svc.Purchase(context.Background(), sale.ID, "user-1")
	require.NoError(t, err)

	store.hideOrders = true
	store.releaseErr = errors.New("connection reset")
	_, err = svc.Purchase(context.Background(), sale.ID, "user-1")
	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
}

func TestPurchase_ReserveError(t *testing.T) {
	store := newFaultyStore()
	sale := activeSale(t, store, 10)
	store.reserveErr = errors.New("db down")
	svc := newOrderServiceForTest(store, nil)

	_, err := svc.Purchase(context.Background(), sale.ID, "user-1")
	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
	assert.Equal(t, 10, remaining(t, store, sale.ID))
}

func TestPurchase_InsertErrorReleasesUnit(t *testing.T) {
	store := newFaultyStore()
	sale := activeSale(t, store, 10)
	store.insertErr = errors.New("insert timeout")
	svc := newOrderServiceForTest(store, nil)

	_, err := svc.Purchase(context.Background(), sale.ID, "user-1")
	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
	assert.Equal(t, 10, remaining(t, store, sale.ID))
	assert.Equal(t, int32(1), store.releases.Load())
}

func TestPurchase_InsertErrorAfterCommitKeepsOrder(t *testing.T) {
	store := newFaultyStore()
	sale := activeSale(t, store, 10)
	store.insertErr = errors.New("connection lost after commit")
	store.insertCommits = true
	svc := newOrderServiceForTest(store, nil)

	order, err := svc.Purchase(context.Background(), sale.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", order.UserID)
	assert.Equal(t, 9, remaining(t, store, sale.ID))
	assert.Zero(t, store.releases.Load())
}

func TestPurchase_InsertErrorUnknownState(t *testing.T) {
	store := newFaultyStore()
	sale := activeSale(t, store, 10)
	store.insertErr = errors.New("insert timeout")
	store.lookupErrAfterInsert = errors.New("lookup timeout")
	svc := newOrderServiceForTest(store, nil)

	_, err := svc.Purchase(context.Background(), sale.ID, "user-1")
	require.Error(t, err)
	// The unit stays reserved rather than risking an oversell.
	assert.Equal(t, 9, remaining(t, store, sale.ID))
	assert.Zero(t, store.releases.Load())
}

func TestPurchase_CanceledAfterReserveReleasesUnit(t *testing.T) {
	store := newFaultyStore()
	sale := activeSale(t, store, 3)
	gate := newMockGate()
	require.NoError(t, gate.Prime(context.Background(), sale.ID, 3))
	svc := newOrderServiceForTest(store, gate)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store.honorContext = true
	store.cancelAfterReserve = cancel

	order, err := svc.Purchase(ctx, sale.ID, "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, order)

	assert.Equal(t, 3, remaining(t, store, sale.ID))
	assert.Equal(t, int32(1), store.releases.Load())
	assert.False(t, gate.admitted(sale.ID, "user-1"))
	assert.Equal(t, 3, gate.stockOf(sale.ID))

	// The buyer can retry once the request is gone.
	store.cancelAfterReserve = nil
	order, err = svc.Purchase(context.Background(), sale.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", order.UserID)
	assert.Equal(t, 2, remaining(t, store, sale.ID))
}

func TestPurchase_UserIDTooLong(t *testing.T) {
	store := newFaultyStore()
	sale := activeSale(t, store, 3)
	svc := newOrderServiceForTest(store, nil)
	longID := strings.Repeat("u", maxUserIDLength+1)

	_, err := svc.Purchase(context.Background(), sale.ID, longID)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 3, remaining(t, store, sale.ID))

	_, err = svc.GetOrder(context.Background(), longID, sale.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Purchase(context.Background(), sale.ID, strings.Repeat("u", maxUserIDLength))
	assert.NoError(t, err)
}

func TestPurchase_Concurrent(t *testing.T) {
	for _, withGate := range []bool{false, true} {
		t.Run(fmt.Sprintf("gate=%v", withGate), func(t *testing.T) {
			initialStock := 20
			totalRequests := 50

			store := newFaultyStore()
			sale := activeSale(t, store, initialStock)

			var gate *mockGate
			var svc *OrderService
			if withGate {
				gate = newMockGate()
				require.NoError(t, gate.Prime(context.Background(), sale.ID, initialStock))
				svc = newOrderServiceForTest(store, gate)
			} else {
				svc = newOrderServiceForTest(store, nil)
			}

			var successCount, outOfStockCount atomic.Int32
			var wg sync.WaitGroup

			for i := 0; i < totalRequests; i++ {
				wg.Add(1)
				go func(id int) {
					defer wg.Done()
					_, err := svc.Purchase(context.Background(), sale.ID, fmt.Sprintf("user-%d", id))
					if err == nil {
						successCount.Add(1)
					} else if errors.Is(err, domain.ErrOutOfStock) {
						outOfStockCount.Add(1)
					}
				}(i)
			}

			wg.Wait()

			assert.Equal(t, int32(initialStock), successCount.Load())
			assert.Equal(t, int32(totalRequests-initialStock), outOfStockCount.Load())
			assert.Equal(t, 0, remaining(t, store, sale.ID))
			if gate != nil {
				assert.Equal(t, 0, gate.stockOf(sale.ID))
			}
		})
	}
}

func TestPurchase_ConcurrentSameUser(t *testing.T) {
	store := newFaultyStore()
	sale := activeSale(t, store, 10)
	svc := newOrderServiceForTest(store, nil)

	var successCount, otherCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Purchase(context.Background(), sale.ID, "same-user")
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrAlreadyPurchased), errors.Is(err, domain.ErrOutOfStock):
			default:
				otherCount.Add(1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), successCount.Load())
	assert.Zero(t, otherCount.Load())
	assert.Equal(t, 9, remaining(t, store, sale.ID))
}

func TestPurchase_Gate(t *testing.T) {
	t.Run("sold out short-circuits the store", func(t *testing.T) {
		store := newFaultyStore()
		sale := activeSale(t, store, 5)
		gate := newMockGate()
		require.NoError(t, gate.Prime(context.Background(), sale.ID, 0))
		svc := newOrderServiceForTest(store, gate)

		_, err := svc.Purchase(context.Background(), sale.ID, "user-1")
		assert.ErrorIs(t, err, domain.ErrOutOfStock)
		assert.Equal(t, 5, remaining(t, store, sale.ID))
	})

	t.Run("duplicate buyer rejected", func(t *testing.T) {
		store := newFaultyStore()
		sale := activeSale(t, store, 5)
		gate := newMockGate()
		require.NoError(t, gate.Prime(context.Background(), sale.ID, 5))
		svc := newOrderServiceForTest(store, gate)

		_, err := svc.Purchase(context.Background(), sale.ID, "user-1")
		require.NoError(t, err)

		_, err = svc.Purchase(context.Background(), sale.ID, "user-1")
		assert.ErrorIs(t, err, domain.ErrAlreadyPurchased)
		assert.Equal(t, 4, remaining(t, store, sale.ID))
		assert.Equal(t, 4, gate.stockOf(sale.ID))
	})

	t.Run("miss falls through to store", func(t *testing.T) {
		store := newFaultyStore()
		sale := activeSale(t, store, 5)
		svc := newOrderServiceForTest(store, newMockGate())

		_, err := svc.Purchase(context.Background(), sale.ID, "user-1")
		require.NoError(t, err)
		assert.Equal(t, 4, remaining(t, store, sale.ID))
	})

	t.Run("gate error falls through to store", func(t *testing.T) {
		store := newFaultyStore()
		sale := activeSale(t, store, 5)
		gate := newMockGate()
		gate.admitErr = errors.New("redis down")
		svc := newOrderServiceForTest(store, gate)

		_, err := svc.Purchase(context.Background(), sale.ID, "user-1")
		require.NoError(t, err)
	})

	t.Run("store conflict returns gate admission", func(t *testing.T) {
		store := newFaultyStore()
		sale := activeSale(t, store, 5)
		svc := newOrderServiceForTest(store, nil)
		_, err := svc.Purchase(context.Background(), sale.ID, "user-1")
		require.NoError(t, err)

		// Gate primed after the order exists, as after a Redis flush, and a
		// repeat that raced past the existing-order check.
		store.hideOrders = true
		gate := newMockGate()
		require.NoError(t, gate.Prime(context.Background(), sale.ID, 4))
		svc = newOrderServiceForTest(store, gate)

		_, err = svc.Purchase(context.Background(), sale.ID, "user-1")
		assert.ErrorIs(t, err, domain.ErrAlreadyPurchased)
		assert.Equal(t, 4, remaining(t, store, sale.ID))
		assert.Equal(t, 4, gate.stockOf(sale.ID))
	})
}

func TestPurchase_Metrics(t *testing.T) {
	store := newFaultyStore()
	sale := activeSale(t, store, 1)
	m := &recordingMetrics{}
	svc := NewOrderService(store, store, nil, m, zerolog.Nop())

	svc.Purchase(context.Background(), sale.ID, "user-a")
	svc.Purchase(context.Background(), sale.ID, "user-b")
	svc.Purchase(context.Background(), "missing", "user-c")

	assert.Equal(t, []string{"success", "out_of_stock", "not_found"}, m.outcomes)
}

func TestGetOrder_NotFound(t *testing.T) {
	store := newFaultyStore()
	sale := activeSale(t, store, 1)
	svc := newOrderServiceForTest(store, nil)

	_, err := svc.GetOrder(context.Background(), "user-1", sale.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEndToEnd_SingleUnit(t *testing.T) {
	store := newFaultyStore()
	sales := NewSaleService(store, nil, zerolog.Nop())
	orders := newOrderServiceForTest(store, nil)
	ctx := context.Background()

	now := time.Now()
	sale, err := sales.CreateSale(ctx, now.Add(-time.Minute), now.Add(time.Hour), 1)
	require.NoError(t, err)

	_, err = orders.Purchase(ctx, sale.ID, "user-a")
	require.NoError(t, err)

	_, err = orders.Purchase(ctx, sale.ID, "user-b")
	assert.ErrorIs(t, err, domain.ErrOutOfStock)

	_, err = orders.Purchase(ctx, sale.ID, "user-a")
	assert.ErrorIs(t, err, domain.ErrAlreadyPurchased)

	assert.Equal(t, 0, remaining(t, store, sale.ID))

	res, err := sales.GetStatus(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusEnded, res.Status)
}
