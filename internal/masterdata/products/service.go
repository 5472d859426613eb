package products

import (
	"context"

	"github.com/meridian-erp/meridian-erp/internal/masterdata/shared"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, internalShared.Validationf("invalid product id")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, product Product) (Product, error) {
	if err := s.validate(product); err != nil {
		return Product{}, err
	}
	return s.repo.Create(ctx, product)
}

func (s *Service) Update(ctx context.Context, id int64, product Product) error {
	if id <= 0 {
		return internalShared.Validationf("invalid product id")
	}
	if err := s.validate(product); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, product)
}

// Delete refuses to remove a product that still holds stock anywhere.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return internalShared.Validationf("invalid product id")
	}
	held, err := s.repo.HasStock(ctx, id)
	if err != nil {
		return err
	}
	if held {
		return internalShared.BusinessRulef("product %d still holds stock", id)
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) validate(product Product) error {
	if product.Code == "" {
		return internalShared.Validationf("product code is required")
	}
	if product.Name == "" {
		return internalShared.Validationf("product name is required")
	}
	if product.Unit == "" {
		return internalShared.Validationf("product unit is required")
	}
	if product.SellingPrice.IsNegative() || product.CostPrice.IsNegative() {
		return internalShared.Validationf("prices cannot be negative")
	}
	return nil
}
