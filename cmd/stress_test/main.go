package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/shop/internal/app"
	"github.com/rl1809/shop/internal/config"
	"github.com/rl1809/shop/internal/core/domain"
	"github.com/rl1809/shop/internal/core/service"
)

func main() {
	store := flag.String("store", config.StoreMemory, "store to hit: memory or mysql")
	dsn := flag.String("dsn", "", "MySQL DSN (defaults to SHOP_MYSQL_DSN or the local default)")
	redisAddr := flag.String("redis", "", "Redis address; empty disables deduplication")
	initialStock := flag.Int("stock", 20, "initial stock")
	totalRequests := flag.Int("requests", 50, "number of single-unit orders")
	workers := flag.Int("workers", 16, "concurrent workers")
	flag.Parse()

	cfg := config.Default()
	cfg.Store = *store
	cfg.Redis.Addr = *redisAddr
	cfg.Auth.JWTSecret = "stress-test"
	if *dsn != "" {
		cfg.MySQL.DSN = *dsn
	} else if v := os.Getenv("SHOP_MYSQL_DSN"); v != "" {
		cfg.MySQL.DSN = v
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx := context.Background()

	infra, err := app.NewInfrastructure(ctx, cfg, zap.NewNop())
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}
	defer infra.Close()

	if err := infra.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	// Fresh user and product so runs against a shared database don't interfere
	user, err := infra.DB.CreateUser(ctx, domain.User{
		Email:     fmt.Sprintf("stress-%s@example.com", uuid.NewString()),
		Role:      domain.RoleCustomer,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Fatalf("failed to create user: %v", err)
	}
	product, err := infra.DB.CreateProduct(ctx, domain.Product{
		Name:      "stress-item",
		Price:     decimal.RequireFromString("1.50"),
		Stock:     *initialStock,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Fatalf("failed to create product: %v", err)
	}

	pool, err := ants.NewPool(*workers)
	if err != nil {
		log.Fatalf("failed to create pool: %v", err)
	}
	defer pool.Release()

	// Counters
	var successCount atomic.Int32
	var soldOutCount atomic.Int32
	var errorCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()

			_, err := infra.Orders.PlaceOrder(ctx, service.PlaceOrderRequest{
				RequestID: uuid.NewString(),
				UserID:    user.ID,
				ProductID: product.ID,
				Quantity:  1,
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				errorCount.Add(1)
				log.Printf("unexpected error: %v", err)
			}
		})
		if err != nil {
			wg.Done()
			log.Fatalf("failed to submit task: %v", err)
		}
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Store:            %s\n", cfg.Store)
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOut)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	expectedSuccess := min(*initialStock, *totalRequests)
	failed := false

	// Assertions
	if int(success) == expectedSuccess && int(soldOut) == *totalRequests-expectedSuccess {
		fmt.Printf("PASS: Exactly %d orders succeeded, %d sold out\n", success, soldOut)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d sold out, got %d/%d\n",
			expectedSuccess, *totalRequests-expectedSuccess, success, soldOut)
		failed = true
	}

	final, err := infra.DB.GetProduct(ctx, product.ID)
	if err != nil {
		log.Fatalf("failed to read final stock: %v", err)
	}
	fmt.Printf("Final Stock:      %d\n", final.Stock)

	if final.Stock == *initialStock-expectedSuccess {
		fmt.Println("PASS: Stock matches successful orders")
	} else {
		fmt.Printf("FAIL: Expected stock %d, got %d\n", *initialStock-expectedSuccess, final.Stock)
		failed = true
	}

	orders, err := infra.DB.OrdersByUser(ctx, user.ID)
	if err != nil {
		log.Fatalf("failed to read orders: %v", err)
	}
	if len(orders) == int(success) {
		fmt.Printf("PASS: %d orders recorded\n", len(orders))
	} else {
		fmt.Printf("FAIL: Expected %d recorded orders, got %d\n", success, len(orders))
		failed = true
	}

	if failed {
		os.Exit(1)
	}
}
