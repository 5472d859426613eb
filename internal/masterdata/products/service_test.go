package products

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/masterdata/shared"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	nextID   int64
	products map[int64]Product
	stocked  map[int64]bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{nextID: 1, products: map[int64]Product{}, stocked: map[int64]bool{}}
}

func (m *memoryRepo) List(_ context.Context, _ shared.ListFilters) ([]Product, int, error) {
	out := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Product, error) {
	p, ok := m.products[id]
	if !ok {
		return Product{}, internalShared.NotFoundf("product %d", id)
	}
	return p, nil
}

func (m *memoryRepo) Create(_ context.Context, p Product) (Product, error) {
	for _, existing := range m.products {
		if existing.Code == p.Code {
			return Product{}, internalShared.Duplicatef("product code %s already exists", p.Code)
		}
	}
	p.ID = m.nextID
	m.nextID++
	m.products[p.ID] = p
	return p, nil
}

func (m *memoryRepo) Update(_ context.Context, id int64, p Product) error {
	if _, ok := m.products[id]; !ok {
		return internalShared.NotFoundf("product %d", id)
	}
	p.ID = id
	m.products[id] = p
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.products[id]; !ok {
		return internalShared.NotFoundf("product %d", id)
	}
	delete(m.products, id)
	return nil
}

func (m *memoryRepo) HasStock(_ context.Context, id int64) (bool, error) {
	return m.stocked[id], nil
}

func TestDuplicateCodeRejected(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, Product{Code: "SKU-1", Name: "Widget", Unit: "pcs"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, Product{Code: "SKU-1", Name: "Widget Copy", Unit: "pcs"})
	require.ErrorIs(t, err, internalShared.ErrDuplicate)
}

func TestDeleteGuardedByStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, Product{Code: "SKU-2", Name: "Gadget", Unit: "pcs"})
	require.NoError(t, err)
	repo.stocked[p.ID] = true

	err = svc.Delete(ctx, p.ID)
	require.ErrorIs(t, err, internalShared.ErrBusinessRule)

	repo.stocked[p.ID] = false
	require.NoError(t, svc.Delete(ctx, p.ID))
}

func TestValidation(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, Product{Name: "No Code", Unit: "pcs"})
	require.ErrorIs(t, err, internalShared.ErrValidation)

	_, err = svc.Create(ctx, Product{Code: "SKU-3", Name: "Bad Price", Unit: "pcs",
		SellingPrice: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, internalShared.ErrValidation)
}
