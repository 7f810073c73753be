package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/timed-flash-sale/internal/adapter/storage"
	"github.com/rl1809/timed-flash-sale/internal/core/domain"
	"github.com/rl1809/timed-flash-sale/internal/core/service"
	"github.com/rl1809/timed-flash-sale/internal/logging"
	"github.com/rl1809/timed-flash-sale/internal/port"
)

func main() {
	stock := flag.Int("stock", 20, "units on sale")
	requests := flag.Int("requests", 50, "concurrent purchase attempts, one per user")
	redisAddr := flag.String("redis", "", "redis address for the stock gate (disabled when empty)")
	flag.Parse()

	ctx := context.Background()
	logger := logging.New("warn", true)

	store := storage.NewMemoryAdapter()

	var gate port.StockGate
	if *redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rdb.Close()
		gate = storage.NewRedisAdapter(rdb)
	}

	saleService := service.NewSaleService(store, gate, logger)
	orderService := service.NewOrderService(store, store, gate, nil, logger)

	now := time.Now()
	sale, err := saleService.CreateSale(ctx, now.Add(-time.Minute), now.Add(time.Hour), *stock)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create sale")
	}

	var successCount, outOfStockCount, otherCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *requests; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()

			_, err := orderService.Purchase(ctx, sale.ID, fmt.Sprintf("user-%d", userID))
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrOutOfStock):
				outOfStockCount.Add(1)
			default:
				otherCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	final, err := store.GetByID(ctx, sale.ID)
	if err != nil || final == nil {
		logger.Fatal().Err(err).Msg("failed to reload sale")
	}

	success := int(successCount.Load())
	soldOut := int(outOfStockCount.Load())

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", *stock)
	fmt.Printf("Total Requests:   %d\n", *requests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Out of stock:     %d\n", soldOut)
	fmt.Printf("Other failures:   %d\n", otherCount.Load())
	fmt.Printf("Remaining Stock:  %d\n", final.RemainingStock)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	expectSuccess := min(*stock, *requests)
	if success != expectSuccess || soldOut != *requests-expectSuccess || final.RemainingStock != *stock-expectSuccess {
		fmt.Printf("FAIL: expected %d success/%d out of stock/%d remaining\n",
			expectSuccess, *requests-expectSuccess, *stock-expectSuccess)
		os.Exit(1)
	}
	fmt.Println("PASS")
}
