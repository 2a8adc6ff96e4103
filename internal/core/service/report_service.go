package service

import (
	"context"
	"time"

	"github.com/rl1809/shop/internal/core/domain"
	"github.com/rl1809/shop/internal/core/policy"
	"github.com/rl1809/shop/internal/port"
)

const (
	salesWindowDays    = 7
	defaultRecentLimit = 10
)

type reportStore interface {
	port.UserRepository
	port.OrderRepository
}

type ReportService struct {
	db reportStore
}

func NewReportService(db reportStore) *ReportService {
	return &ReportService{db: db}
}

// SalesLastSevenDays counts orders per UTC calendar day, oldest first,
// ending with the day containing now. Days without orders report zero.
func (s *ReportService) SalesLastSevenDays(ctx context.Context, actorID int64, now time.Time) ([]domain.DailySales, error) {
	if _, err := authorize(ctx, s.db, actorID, policy.PermViewSales); err != nil {
		return nil, err
	}

	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	since := today.AddDate(0, 0, -(salesWindowDays - 1))

	counts, err := s.db.CountOrdersByDay(ctx, since)
	if err != nil {
		return nil, err
	}

	sales := make([]domain.DailySales, 0, salesWindowDays)
	for i := 0; i < salesWindowDays; i++ {
		day := since.AddDate(0, 0, i).Format(time.DateOnly)
		sales = append(sales, domain.DailySales{Date: day, Count: counts[day]})
	}
	return sales, nil
}

func (s *ReportService) RecentOrders(ctx context.Context, actorID int64, limit int) ([]domain.Order, error) {
	if _, err := authorize(ctx, s.db, actorID, policy.PermViewSales); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return s.db.RecentOrders(ctx, limit)
}
