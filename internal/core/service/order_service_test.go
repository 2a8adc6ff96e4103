package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rl1809/shop/internal/adapter/storage"
	"github.com/rl1809/shop/internal/core/domain"
)

func TestPlaceOrder_Success(t *testing.T) {
	db := storage.NewMemoryAdapter()
	customer := seedUser(t, db, "klant@example.com", domain.RoleCustomer)
	product := seedProduct(t, db, "1.5", 10)
	publisher := &mockPublisher{}
	svc := NewOrderService(db, nil, publisher, nil)

	orderID, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: customer.ID, ProductID: product.ID, Quantity: 3,
	})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if orderID == 0 {
		t.Error("expected non-zero order ID")
	}

	if stock := stockOf(t, db, product.ID); stock != 7 {
		t.Errorf("expected stock 7, got %d", stock)
	}

	if publisher.count() != 1 {
		t.Fatalf("expected 1 published event, got %d", publisher.count())
	}
	event := publisher.events[0]
	if event.OrderID != orderID || event.Quantity != 3 {
		t.Errorf("unexpected event: %+v", event)
	}
	if !event.TotalPrice.Equal(decimal.RequireFromString("4.5")) {
		t.Errorf("expected total 4.5, got %s", event.TotalPrice)
	}
}

func TestPlaceOrder_Scenario(t *testing.T) {
	db := storage.NewMemoryAdapter()
	customer := seedUser(t, db, "klant@example.com", domain.RoleCustomer)
	product := seedProduct(t, db, "1.5", 100)
	svc := NewOrderService(db, nil, nil, nil)
	ctx := context.Background()

	orderID, err := svc.PlaceOrder(ctx, PlaceOrderRequest{UserID: customer.ID, ProductID: product.ID, Quantity: 30})
	if err != nil {
		t.Fatalf("first order failed: %v", err)
	}
	if stock := stockOf(t, db, product.ID); stock != 70 {
		t.Errorf("expected stock 70, got %d", stock)
	}

	orders, err := svc.OrdersForUser(ctx, customer.ID)
	if err != nil {
		t.Fatalf("OrdersForUser failed: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != orderID {
		t.Fatalf("expected order %d, got %+v", orderID, orders)
	}
	if !orders[0].TotalPrice.Equal(decimal.NewFromInt(45)) {
		t.Errorf("expected total 45.0, got %s", orders[0].TotalPrice)
	}

	_, err = svc.PlaceOrder(ctx, PlaceOrderRequest{UserID: customer.ID, ProductID: product.ID, Quantity: 80})
	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got: %v", err)
	}
	if stockErr.Available != 70 {
		t.Errorf("expected available 70, got %d", stockErr.Available)
	}
	if stock := stockOf(t, db, product.ID); stock != 70 {
		t.Errorf("expected stock unchanged at 70, got %d", stock)
	}
}

func TestPlaceOrder_UnitPriceSnapshot(t *testing.T) {
	db := storage.NewMemoryAdapter()
	customer := seedUser(t, db, "klant@example.com", domain.RoleCustomer)
	product := seedProduct(t, db, "2.00", 10)
	svc := NewOrderService(db, nil, nil, nil)
	ctx := context.Background()

	if _, err := svc.PlaceOrder(ctx, PlaceOrderRequest{UserID: customer.ID, ProductID: product.ID, Quantity: 2}); err != nil {
		t.Fatalf("order failed: %v", err)
	}

	orders, _ := svc.OrdersForUser(ctx, customer.ID)
	if len(orders) != 1 || len(orders[0].Items) != 1 {
		t.Fatalf("expected one order with one item, got %+v", orders)
	}
	if !orders[0].Items[0].UnitPrice.Equal(decimal.RequireFromString("2.00")) {
		t.Errorf("expected unit price 2.00, got %s", orders[0].Items[0].UnitPrice)
	}
}

func TestPlaceOrder_InvalidQuantity(t *testing.T) {
	db := storage.NewMemoryAdapter()
	customer := seedUser(t, db, "klant@example.com", domain.RoleCustomer)
	product := seedProduct(t, db, "1.5", 10)
	cache := newMockCacheRepo()
	svc := NewOrderService(db, cache, nil, nil)

	for _, qty := range []int{0, -1, -100} {
		_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
			RequestID: "req-1", UserID: customer.ID, ProductID: product.ID, Quantity: qty,
		})
		if !errors.Is(err, domain.ErrInvalidQuantity) {
			t.Errorf("quantity %d: expected ErrInvalidQuantity, got: %v", qty, err)
		}
	}

	if stock := stockOf(t, db, product.ID); stock != 10 {
		t.Errorf("expected stock 10, got %d", stock)
	}
	if len(cache.entries) != 0 {
		t.Errorf("expected no idempotency claims, got %d", len(cache.entries))
	}
}

func TestPlaceOrder_NotFound(t *testing.T) {
	db := storage.NewMemoryAdapter()
	customer := seedUser(t, db, "klant@example.com", domain.RoleCustomer)
	svc := NewOrderService(db, nil, nil, nil)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: customer.ID, ProductID: 404, Quantity: 1})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	db := storage.NewMemoryAdapter()
	customer := seedUser(t, db, "klant@example.com", domain.RoleCustomer)
	product := seedProduct(t, db, "1.5", 0)
	svc := NewOrderService(db, nil, nil, nil)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: customer.ID, ProductID: product.ID, Quantity: 1})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock, got: %v", err)
	}
}

func TestPlaceOrder_BlockedUser(t *testing.T) {
	db := storage.NewMemoryAdapter()
	customer := seedUser(t, db, "klant@example.com", domain.RoleCustomer)
	product := seedProduct(t, db, "1.5", 10)
	db.ToggleBlock(context.Background(), customer.ID)
	svc := NewOrderService(db, nil, nil, nil)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: customer.ID, ProductID: product.ID, Quantity: 1})
	if !errors.Is(err, domain.ErrAccountBlocked) {
		t.Errorf("expected ErrAccountBlocked, got: %v", err)
	}
	if stock := stockOf(t, db, product.ID); stock != 10 {
		t.Errorf("expected stock 10, got %d", stock)
	}
}

func TestPlaceOrder_UnknownUser(t *testing.T) {
	db := storage.NewMemoryAdapter()
	product := seedProduct(t, db, "1.5", 10)
	svc := NewOrderService(db, nil, nil, nil)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: 77, ProductID: product.ID, Quantity: 1})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got: %v", err)
	}
}

func TestPlaceOrder_RecorderFailureRestoresStock(t *testing.T) {
	mem := storage.NewMemoryAdapter()
	customer := seedUser(t, mem, "klant@example.com", domain.RoleCustomer)
	product := seedProduct(t, mem, "1.5", 10)
	recordErr := errors.New("disk full")
	cache := newMockCacheRepo()
	publisher := &mockPublisher{}
	svc := NewOrderService(&failingRecorderDB{MemoryAdapter: mem, err: recordErr}, cache, publisher, nil)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		RequestID: "req-1", UserID: customer.ID, ProductID: product.ID, Quantity: 4,
	})
	if !errors.Is(err, recordErr) {
		t.Fatalf("expected recorder error, got: %v", err)
	}

	if stock := stockOf(t, mem, product.ID); stock != 10 {
		t.Errorf("expected stock restored to 10, got %d", stock)
	}
	if len(cache.entries) != 0 {
		t.Error("expected idempotency claim to be released")
	}
	if publisher.count() != 0 {
		t.Error("expected no event for a failed order")
	}
}

func TestPlaceOrder_DuplicateRequest(t *testing.T) {
	db := storage.NewMemoryAdapter()
	customer := seedUser(t, db, "klant@example.com", domain.RoleCustomer)
	product := seedProduct(t, db, "1.5", 10)
	svc := NewOrderService(db, newMockCacheRepo(), nil, nil)
	ctx := context.Background()

	// First request
	firstID, err := svc.PlaceOrder(ctx, PlaceOrderRequest{RequestID: "req-1", UserID: customer.ID, ProductID: product.ID, Quantity: 1})
	if err != nil {
		t.Fatalf("first purchase failed: %v", err)
	}

	// Duplicate request with same requestID
	secondID, err := svc.PlaceOrder(ctx, PlaceOrderRequest{RequestID: "req-1", UserID: customer.ID, ProductID: product.ID, Quantity: 1})
	if !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Errorf("expected ErrDuplicateRequest, got: %v", err)
	}
	if secondID != firstID {
		t.Errorf("expected original order %d, got %d", firstID, secondID)
	}

	// Stock should only be decremented once
	if stock := stockOf(t, db, product.ID); stock != 9 {
		t.Errorf("expected stock 9, got %d", stock)
	}
}

func TestPlaceOrder_CompletesKeyAfterContextCanceled(t *testing.T) {
	mem := storage.NewMemoryAdapter()
	customer := seedUser(t, mem, "klant@example.com", domain.RoleCustomer)
	product := seedProduct(t, mem, "1.5", 10)
	cache := newMockCacheRepo()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := NewOrderService(&cancelAfterCommitDB{MemoryAdapter: mem, cancel: cancel}, cache, nil, nil)

	orderID, err := svc.PlaceOrder(ctx, PlaceOrderRequest{RequestID: "req-1", UserID: customer.ID, ProductID: product.ID, Quantity: 1})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	// A retry must see the committed order, not the pending marker.
	retryID, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{RequestID: "req-1", UserID: customer.ID, ProductID: product.ID, Quantity: 1})
	if !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got: %v", err)
	}
	if retryID != orderID {
		t.Errorf("expected original order %d, got %d", orderID, retryID)
	}
}

func TestPlaceOrder_CacheFailure(t *testing.T) {
	db := storage.NewMemoryAdapter()
	customer := seedUser(t, db, "klant@example.com", domain.RoleCustomer)
	product := seedProduct(t, db, "1.5", 10)
	cache := newMockCacheRepo()
	cache.failSet = true
	svc := NewOrderService(db, cache, nil, nil)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{RequestID: "req-1", UserID: customer.ID, ProductID: product.ID, Quantity: 1})
	if err == nil {
		t.Fatal("expected error when idempotency store fails")
	}
	if stock := stockOf(t, db, product.ID); stock != 10 {
		t.Errorf("expected stock 10, got %d", stock)
	}
}

func TestPlaceOrder_PublishFailureKeepsOrder(t *testing.T) {
	db := storage.NewMemoryAdapter()
	customer := seedUser(t, db, "klant@example.com", domain.RoleCustomer)
	product := seedProduct(t, db, "1.5", 10)
	svc := NewOrderService(db, nil, &mockPublisher{err: errors.New("broker down")}, nil)

	if _, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: customer.ID, ProductID: product.ID, Quantity: 2}); err != nil {
		t.Fatalf("expected success despite publish failure, got: %v", err)
	}
	if stock := stockOf(t, db, product.ID); stock != 8 {
		t.Errorf("expected stock 8, got %d", stock)
	}
}

func TestPlaceOrder_Concurrent(t *testing.T) {
	initialStock := 20
	totalRequests := 50

	db := storage.NewMemoryAdapter()
	customer := seedUser(t, db, "klant@example.com", domain.RoleCustomer)
	product := seedProduct(t, db, "1.5", initialStock)
	svc := NewOrderService(db, newMockCacheRepo(), nil, nil)

	var successCount atomic.Int32
	var failCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
				RequestID: fmt.Sprintf("req-%d", id),
				UserID:    customer.ID,
				ProductID: product.ID,
				Quantity:  1,
			})
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, domain.ErrInsufficientStock) {
				failCount.Add(1)
			} else {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}

	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}
	if failCount.Load() != int32(totalRequests-initialStock) {
		t.Errorf("expected %d failures, got %d", totalRequests-initialStock, failCount.Load())
	}
	if stock := stockOf(t, db, product.ID); stock != 0 {
		t.Errorf("expected stock 0, got %d", stock)
	}
}

func TestPlaceOrder_ConcurrentMixedQuantities(t *testing.T) {
	db := storage.NewMemoryAdapter()
	customer := seedUser(t, db, "klant@example.com", domain.RoleCustomer)
	product := seedProduct(t, db, "1.5", 10)
	svc := NewOrderService(db, nil, nil, nil)

	// 8 requests of 3 units against 10 in stock: exactly 3 fit.
	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: customer.ID, ProductID: product.ID, Quantity: 3})
			if err == nil {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != 3 {
		t.Errorf("expected 3 successes, got %d", successCount.Load())
	}
	if stock := stockOf(t, db, product.ID); stock != 1 {
		t.Errorf("expected stock 1, got %d", stock)
	}
}

func TestOrdersForUser_OnlyOwnOrders(t *testing.T) {
	db := storage.NewMemoryAdapter()
	alice := seedUser(t, db, "alice@example.com", domain.RoleCustomer)
	bob := seedUser(t, db, "bob@example.com", domain.RoleSeller)
	product := seedProduct(t, db, "1.5", 10)
	svc := NewOrderService(db, nil, nil, nil)
	ctx := context.Background()

	svc.PlaceOrder(ctx, PlaceOrderRequest{UserID: alice.ID, ProductID: product.ID, Quantity: 1})
	svc.PlaceOrder(ctx, PlaceOrderRequest{UserID: bob.ID, ProductID: product.ID, Quantity: 2})

	orders, err := svc.OrdersForUser(ctx, bob.ID)
	if err != nil {
		t.Fatalf("OrdersForUser failed: %v", err)
	}
	if len(orders) != 1 || orders[0].UserID != bob.ID {
		t.Errorf("expected only bob's order, got %+v", orders)
	}
}
