package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/order-pipeline/internal/adapter/queue"
	"github.com/rl1809/order-pipeline/internal/adapter/storage"
	"github.com/rl1809/order-pipeline/internal/core/domain"
	"github.com/rl1809/order-pipeline/internal/core/service"
	"github.com/rl1809/order-pipeline/internal/port"
)

const (
	initialStock  = 20
	totalRequests = 50
)

// countingPublisher stands in for the queue when no Redis address is given.
type countingPublisher struct {
	n atomic.Int64
}

func (p *countingPublisher) Publish(ctx context.Context, body []byte, attrs map[string]string) (string, error) {
	return fmt.Sprintf("%d-0", p.n.Add(1)), nil
}

func main() {
	redisAddr := flag.String("redis", "", "publish confirmations to this Redis instance instead of discarding them")
	flag.Parse()

	ctx := context.Background()
	logger := zap.NewNop()

	products := storage.NewMemoryProductRepository(logger)
	orders := storage.NewMemoryOrderRepository(logger)

	var publisher port.MessagePublisher = &countingPublisher{}
	if *redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			fmt.Printf("failed to connect redis: %v\n", err)
			return
		}
		stream := "stress:orders:" + uuid.NewString()
		defer rdb.Del(ctx, stream)
		publisher = queue.NewRedisStreamQueue(rdb, queue.StreamConfig{Stream: stream}, logger)
	}

	product, err := products.Create(ctx, domain.NewProduct{
		Name:        "Flash Sale Item",
		Description: "Limited stock",
		Category:    "electronics",
		Price:       9900,
		Quantity:    initialStock,
		SKU:         "FLASH-1",
	})
	if err != nil {
		fmt.Printf("failed to seed product: %v\n", err)
		return
	}

	orderService := service.NewOrderService(products, orders, publisher,
		service.WithIdempotency(storage.NewMemoryIdempotencyGuard()))

	var successCount, rejectedCount, errorCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()

			_, err := orderService.PlaceOrder(ctx, service.PlaceOrderInput{
				RequestID: uuid.NewString(),
				UserID:    fmt.Sprintf("user-%d", userID),
				UserEmail: fmt.Sprintf("user-%d@example.com", userID),
				ProductID: product.ID,
				Quantity:  1,
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				rejectedCount.Add(1)
			default:
				errorCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	rejected := rejectedCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold Out:         %d\n", rejected)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == int32(initialStock) && rejected == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d orders succeeded, %d sold out\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d sold out, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, rejected)
	}

	final, _ := products.Get(ctx, product.ID)
	fmt.Printf("Final Stock: %d\n", final.Quantity)
	if final.Quantity == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", final.Quantity)
	}

	if n := orders.CountByProduct(product.ID); n == initialStock {
		fmt.Printf("PASS: %d orders recorded\n", n)
	} else {
		fmt.Printf("FAIL: Expected %d orders, got %d\n", initialStock, n)
	}
}
