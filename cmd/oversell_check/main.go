package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/allocation/internal/adapter/pubsub"
	"github.com/rl1809/allocation/internal/adapter/storage"
	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/core/service"
	"github.com/rl1809/allocation/internal/port"
)

const (
	mysqlDSN      = "root:root@tcp(localhost:3306)/allocation?parseTime=true&clientFoundRows=true"
	redisAddr     = "localhost:6379"
	batchQty      = 20
	totalRequests = 50
	maxRetries    = 10
)

// Hammers one SKU with concurrent Allocate commands and checks that the
// committed allocations never exceed the batch quantity. Conflicting
// commits are retried from scratch, as the unit of work contract requires.
func main() {
	ctx := context.Background()
	logger := zap.NewNop()

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		log.Fatalf("failed to open mysql: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}
	if err := storage.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("failed to ensure schema: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	uow := storage.NewMySQLUnitOfWorkStarter(db)
	bus, err := service.NewBus(uow, noopNotifier{}, pubsub.NewRedisPublisher(rdb), "stock@example.com", logger)
	if err != nil {
		log.Fatalf("failed to build bus: %v", err)
	}

	sku := "OVERSELL-CHECK-" + uuid.New().String()[:8]
	batchRef := "batch-" + sku
	if _, err := bus.Handle(ctx, domain.CreateBatch{Ref: batchRef, SKU: sku, Qty: batchQty}); err != nil {
		log.Fatalf("failed to create batch: %v", err)
	}

	var successCount, outOfStockCount, giveUpCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(orderID int) {
			defer wg.Done()

			cmd := domain.Allocate{
				OrderID: fmt.Sprintf("order-%d", orderID),
				SKU:     sku,
				Qty:     1,
			}
			for attempt := 0; attempt < maxRetries; attempt++ {
				_, err := bus.Handle(ctx, cmd)
				switch {
				case err == nil:
					successCount.Add(1)
					return
				case errors.Is(err, domain.ErrOutOfStock):
					outOfStockCount.Add(1)
					return
				case errors.Is(err, port.ErrConcurrentUpdate):
					continue
				default:
					log.Printf("order-%d failed: %v", orderID, err)
					giveUpCount.Add(1)
					return
				}
			}
			giveUpCount.Add(1)
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	var allocated int
	if err := db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(qty), 0) FROM allocations WHERE batch_reference = ?`, batchRef,
	).Scan(&allocated); err != nil {
		log.Fatalf("failed to count allocations: %v", err)
	}

	fmt.Println("========== OVERSELL CHECK RESULTS ==========")
	fmt.Printf("Batch Quantity:    %d\n", batchQty)
	fmt.Printf("Total Requests:    %d\n", totalRequests)
	fmt.Printf("Allocated:         %d\n", successCount.Load())
	fmt.Printf("Out Of Stock:      %d\n", outOfStockCount.Load())
	fmt.Printf("Gave Up:           %d\n", giveUpCount.Load())
	fmt.Printf("Duration:          %v\n", elapsed)
	fmt.Println("============================================")

	if allocated <= batchQty {
		fmt.Printf("PASS: %d units allocated, batch holds %d\n", allocated, batchQty)
	} else {
		fmt.Printf("FAIL: oversold, %d units allocated against %d\n", allocated, batchQty)
	}
}

type noopNotifier struct{}

func (noopNotifier) Send(ctx context.Context, destination, message string) error { return nil }
