package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/shop/internal/core/domain"
	"github.com/rl1809/shop/internal/core/policy"
	"github.com/rl1809/shop/internal/port"
)

type catalogStore interface {
	port.ProductRepository
	port.UserRepository
}

type CatalogService struct {
	db     catalogStore
	logger *zap.Logger
}

func NewCatalogService(db catalogStore, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{db: db, logger: logger}
}

func (s *CatalogService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.db.ListProducts(ctx)
}

func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.db.GetProduct(ctx, id)
}

func (s *CatalogService) AddProduct(ctx context.Context, actorID int64, name string, price decimal.Decimal, stock int) (domain.Product, error) {
	if _, err := authorize(ctx, s.db, actorID, policy.PermManageCatalog); err != nil {
		return domain.Product{}, err
	}

	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return domain.Product{}, fmt.Errorf("%w: name is required", domain.ErrInvalidProduct)
	case price.IsNegative():
		return domain.Product{}, fmt.Errorf("%w: price must not be negative", domain.ErrInvalidProduct)
	case stock < 0:
		return domain.Product{}, fmt.Errorf("%w: stock must not be negative", domain.ErrInvalidProduct)
	}

	now := time.Now().UTC()
	product, err := s.db.CreateProduct(ctx, domain.Product{
		Name:      name,
		Price:     price.Round(2),
		Stock:     stock,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.Info("product added",
		zap.Int64("actor_id", actorID),
		zap.Int64("product_id", product.ID),
		zap.String("name", product.Name),
		zap.Int("stock", product.Stock),
	)
	return product, nil
}

// UpdateStock overwrites the stock level; it is a correction, not a reservation.
func (s *CatalogService) UpdateStock(ctx context.Context, actorID, productID int64, stock int) error {
	if _, err := authorize(ctx, s.db, actorID, policy.PermManageCatalog); err != nil {
		return err
	}
	if stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", domain.ErrInvalidProduct)
	}

	if err := s.db.SetStock(ctx, productID, stock); err != nil {
		return err
	}

	s.logger.Info("stock updated",
		zap.Int64("actor_id", actorID), zap.Int64("product_id", productID), zap.Int("stock", stock))
	return nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, actorID, productID int64) error {
	if _, err := authorize(ctx, s.db, actorID, policy.PermManageCatalog); err != nil {
		return err
	}

	if err := s.db.DeleteProduct(ctx, productID); err != nil {
		return err
	}

	s.logger.Info("product deleted", zap.Int64("actor_id", actorID), zap.Int64("product_id", productID))
	return nil
}
