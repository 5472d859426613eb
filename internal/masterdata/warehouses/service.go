package warehouses

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

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Warehouse, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, internalShared.Validationf("invalid warehouse id")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	if err := s.validate(warehouse); err != nil {
		return Warehouse{}, err
	}
	created, err := s.repo.Create(ctx, warehouse)
	if err != nil {
		return Warehouse{}, err
	}
	if warehouse.IsDefault {
		if err := s.repo.SetDefault(ctx, created.ID); err != nil {
			return Warehouse{}, err
		}
		created.IsDefault = true
	}
	return created, nil
}

func (s *Service) Update(ctx context.Context, id int64, warehouse Warehouse) error {
	if id <= 0 {
		return internalShared.Validationf("invalid warehouse id")
	}
	if err := s.validate(warehouse); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, warehouse)
}

// SetDefault promotes a warehouse to the document default.
func (s *Service) SetDefault(ctx context.Context, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, internalShared.Validationf("invalid warehouse id")
	}
	if err := s.repo.SetDefault(ctx, id); err != nil {
		return Warehouse{}, err
	}
	return s.repo.Get(ctx, id)
}

// Delete refuses to remove the default warehouse or one that still holds stock.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return internalShared.Validationf("invalid warehouse id")
	}
	warehouse, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if warehouse.IsDefault {
		return internalShared.BusinessRulef("cannot delete the default warehouse")
	}
	held, err := s.repo.HasStock(ctx, id)
	if err != nil {
		return err
	}
	if held {
		return internalShared.BusinessRulef("warehouse %d still holds stock", id)
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) validate(warehouse Warehouse) error {
	if warehouse.Code == "" {
		return internalShared.Validationf("warehouse code is required")
	}
	if warehouse.Name == "" {
		return internalShared.Validationf("warehouse name is required")
	}
	return nil
}
