package warehouses

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/masterdata/shared"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	nextID     int64
	warehouses map[int64]Warehouse
	stocked    map[int64]bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{nextID: 1, warehouses: map[int64]Warehouse{}, stocked: map[int64]bool{}}
}

func (m *memoryRepo) List(_ context.Context, _ shared.ListFilters) ([]Warehouse, int, error) {
	out := make([]Warehouse, 0, len(m.warehouses))
	for _, w := range m.warehouses {
		out = append(out, w)
	}
	return out, len(out), nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Warehouse, error) {
	w, ok := m.warehouses[id]
	if !ok {
		return Warehouse{}, internalShared.NotFoundf("warehouse %d", id)
	}
	return w, nil
}

func (m *memoryRepo) Create(_ context.Context, w Warehouse) (Warehouse, error) {
	w.ID = m.nextID
	m.nextID++
	m.warehouses[w.ID] = w
	return w, nil
}

func (m *memoryRepo) Update(_ context.Context, id int64, w Warehouse) error {
	cur, ok := m.warehouses[id]
	if !ok {
		return internalShared.NotFoundf("warehouse %d", id)
	}
	w.ID = id
	w.IsDefault = cur.IsDefault
	m.warehouses[id] = w
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.warehouses[id]; !ok {
		return internalShared.NotFoundf("warehouse %d", id)
	}
	delete(m.warehouses, id)
	return nil
}

func (m *memoryRepo) SetDefault(_ context.Context, id int64) error {
	target, ok := m.warehouses[id]
	if !ok || !target.IsActive {
		return internalShared.NotFoundf("active warehouse %d", id)
	}
	for wid, w := range m.warehouses {
		w.IsDefault = wid == id
		m.warehouses[wid] = w
	}
	return nil
}

func (m *memoryRepo) HasStock(_ context.Context, id int64) (bool, error) {
	return m.stocked[id], nil
}

func TestSetDefaultDemotesOthers(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	a, err := svc.Create(ctx, Warehouse{Code: "WH-A", Name: "Main", IsDefault: true, IsActive: true})
	require.NoError(t, err)
	require.True(t, a.IsDefault)

	b, err := svc.Create(ctx, Warehouse{Code: "WH-B", Name: "Annex", IsActive: true})
	require.NoError(t, err)

	promoted, err := svc.SetDefault(ctx, b.ID)
	require.NoError(t, err)
	require.True(t, promoted.IsDefault)

	prev, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	require.False(t, prev.IsDefault)
}

func TestDeleteGuards(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	def, err := svc.Create(ctx, Warehouse{Code: "WH-A", Name: "Main", IsDefault: true, IsActive: true})
	require.NoError(t, err)
	stocked, err := svc.Create(ctx, Warehouse{Code: "WH-B", Name: "Annex", IsActive: true})
	require.NoError(t, err)
	repo.stocked[stocked.ID] = true
	empty, err := svc.Create(ctx, Warehouse{Code: "WH-C", Name: "Spare", IsActive: true})
	require.NoError(t, err)

	err = svc.Delete(ctx, def.ID)
	require.ErrorIs(t, err, internalShared.ErrBusinessRule)

	err = svc.Delete(ctx, stocked.ID)
	require.ErrorIs(t, err, internalShared.ErrBusinessRule)

	require.NoError(t, svc.Delete(ctx, empty.ID))
	_, err = svc.Get(ctx, empty.ID)
	require.ErrorIs(t, err, internalShared.ErrNotFound)
}

func TestValidation(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, Warehouse{Name: "No Code"})
	require.ErrorIs(t, err, internalShared.ErrValidation)

	_, err = svc.Create(ctx, Warehouse{Code: "WH-X"})
	require.ErrorIs(t, err, internalShared.ErrValidation)
}
