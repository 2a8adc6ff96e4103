package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/shop/internal/adapter/storage"
	"github.com/rl1809/shop/internal/core/domain"
	"github.com/rl1809/shop/internal/port"
)

func recordAt(t *testing.T, db *storage.MemoryAdapter, userID, productID int64, at time.Time) {
	t.Helper()
	err := db.WithinTx(context.Background(), func(ctx context.Context, uow port.UnitOfWork) error {
		_, err := uow.Record(ctx, userID, []domain.LineItem{{
			ProductID: productID, Quantity: 1, UnitPrice: decimal.NewFromInt(1),
		}}, at)
		return err
	})
	if err != nil {
		t.Fatalf("record order failed: %v", err)
	}
}

func TestReport_SalesLastSevenDays(t *testing.T) {
	db := storage.NewMemoryAdapter()
	admin := seedUser(t, db, "admin@example.com", domain.RoleAdmin)
	product := seedProduct(t, db, "1.0", 100)

	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	recordAt(t, db, admin.ID, product.ID, now)
	recordAt(t, db, admin.ID, product.ID, now.Add(-time.Hour))
	recordAt(t, db, admin.ID, product.ID, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC))
	// Outside the window
	recordAt(t, db, admin.ID, product.ID, time.Date(2024, 3, 3, 23, 59, 0, 0, time.UTC))

	svc := NewReportService(db)
	sales, err := svc.SalesLastSevenDays(context.Background(), admin.ID, now)
	if err != nil {
		t.Fatalf("SalesLastSevenDays failed: %v", err)
	}

	want := []domain.DailySales{
		{Date: "2024-03-04", Count: 1},
		{Date: "2024-03-05", Count: 0},
		{Date: "2024-03-06", Count: 0},
		{Date: "2024-03-07", Count: 0},
		{Date: "2024-03-08", Count: 0},
		{Date: "2024-03-09", Count: 0},
		{Date: "2024-03-10", Count: 2},
	}
	if len(sales) != len(want) {
		t.Fatalf("expected %d days, got %d", len(want), len(sales))
	}
	for i := range want {
		if sales[i] != want[i] {
			t.Errorf("day %d: expected %+v, got %+v", i, want[i], sales[i])
		}
	}
}

func TestReport_SalesEmpty(t *testing.T) {
	db := storage.NewMemoryAdapter()
	admin := seedUser(t, db, "admin@example.com", domain.RoleAdmin)
	svc := NewReportService(db)

	sales, err := svc.SalesLastSevenDays(context.Background(), admin.ID, time.Now())
	if err != nil {
		t.Fatalf("SalesLastSevenDays failed: %v", err)
	}
	if len(sales) != 7 {
		t.Fatalf("expected 7 days, got %d", len(sales))
	}
	for _, day := range sales {
		if day.Count != 0 {
			t.Errorf("expected zero count on %s, got %d", day.Date, day.Count)
		}
	}
}

func TestReport_RequiresAdmin(t *testing.T) {
	db := storage.NewMemoryAdapter()
	seller := seedUser(t, db, "seller@example.com", domain.RoleSeller)
	svc := NewReportService(db)
	ctx := context.Background()

	if _, err := svc.SalesLastSevenDays(ctx, seller.ID, time.Now()); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got: %v", err)
	}
	if _, err := svc.RecentOrders(ctx, seller.ID, 5); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got: %v", err)
	}
}

func TestReport_RecentOrders(t *testing.T) {
	db := storage.NewMemoryAdapter()
	admin := seedUser(t, db, "admin@example.com", domain.RoleAdmin)
	product := seedProduct(t, db, "1.0", 100)

	base := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		recordAt(t, db, admin.ID, product.ID, base.Add(time.Duration(i)*time.Minute))
	}

	svc := NewReportService(db)
	orders, err := svc.RecentOrders(context.Background(), admin.ID, 0)
	if err != nil {
		t.Fatalf("RecentOrders failed: %v", err)
	}
	if len(orders) != 10 {
		t.Fatalf("expected default limit of 10, got %d", len(orders))
	}
	if !orders[0].CreatedAt.Equal(base.Add(11 * time.Minute)) {
		t.Errorf("expected newest order first, got %s", orders[0].CreatedAt)
	}

	orders, _ = svc.RecentOrders(context.Background(), admin.ID, 3)
	if len(orders) != 3 {
		t.Errorf("expected 3 orders, got %d", len(orders))
	}
}
