package production

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	boms       map[int64]BOM
	components map[int64][]BOMComponent
	orders     map[int64]Order
	orderItems map[int64][]OrderItem
	phases     []Phase
	stocks     map[string]inventory.Stock
	movements  []inventory.Movement
	sequences  map[string]int
	nextID     int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		boms:       make(map[int64]BOM),
		components: make(map[int64][]BOMComponent),
		orders:     make(map[int64]Order),
		orderItems: make(map[int64][]OrderItem),
		stocks:     make(map[string]inventory.Stock),
		sequences:  make(map[string]int),
	}
}

func stockKey(warehouseID, productID int64) string {
	return fmt.Sprintf("%d:%d", warehouseID, productID)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetBOM(ctx context.Context, id int64) (BOM, error) {
	bom, ok := r.boms[id]
	if !ok {
		return BOM{}, shared.NotFoundf("bill of materials %d", id)
	}
	bom.Components = r.components[id]
	return bom, nil
}

func (r *memoryRepo) ListBOMs(ctx context.Context, productID int64) ([]BOM, error) {
	var out []BOM
	for id, bom := range r.boms {
		if bom.ProductID == productID {
			bom.Components = r.components[id]
			out = append(out, bom)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetOrder(ctx context.Context, id int64) (Order, error) {
	order, ok := r.orders[id]
	if !ok {
		return Order{}, shared.NotFoundf("production order %d", id)
	}
	order.Items = r.orderItems[id]
	return order, nil
}

func (r *memoryRepo) ListOrders(ctx context.Context, filter OrderFilter) ([]Order, int, error) {
	var out []Order
	for _, order := range r.orders {
		if filter.Type != "" && order.Type != filter.Type {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		out = append(out, order)
	}
	return out, len(out), nil
}

func (r *memoryRepo) ListPhases(ctx context.Context, orderID int64) ([]Phase, error) {
	var out []Phase
	for _, p := range r.phases {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryRepo) History(ctx context.Context, productID int64, limit int) ([]Order, error) {
	var out []Order
	for _, order := range r.orders {
		if order.ProductID == productID && order.Status == StatusCompleted {
			out = append(out, order)
		}
	}
	return out, nil
}

func (r *memoryRepo) AvailableQuantity(ctx context.Context, warehouseID, productID int64) (decimal.Decimal, error) {
	if stock, ok := r.stocks[stockKey(warehouseID, productID)]; ok {
		return stock.Available(), nil
	}
	return decimal.Zero, nil
}

func (r *memoryRepo) Statistics(ctx context.Context) (Statistics, error) {
	stats := Statistics{OrdersByStatus: make(map[OrderStatus]int)}
	for _, order := range r.orders {
		stats.OrdersByStatus[order.Status]++
		if order.Status == StatusCompleted && order.Type == TypeAssembly {
			stats.TotalOutput = stats.TotalOutput.Add(order.ActualQuantity)
		}
	}
	return stats, nil
}

func (tx *memoryTx) GetStockForUpdate(ctx context.Context, warehouseID, productID int64) (inventory.Stock, error) {
	if stock, ok := tx.repo.stocks[stockKey(warehouseID, productID)]; ok {
		return stock, nil
	}
	return inventory.Stock{}, inventory.ErrStockNotFound
}

func (tx *memoryTx) CreateStock(ctx context.Context, stock inventory.Stock) (inventory.Stock, error) {
	tx.repo.nextID++
	stock.ID = tx.repo.nextID
	tx.repo.stocks[stockKey(stock.WarehouseID, stock.ProductID)] = stock
	return stock, nil
}

func (tx *memoryTx) UpdateStock(ctx context.Context, stock inventory.Stock) error {
	tx.repo.stocks[stockKey(stock.WarehouseID, stock.ProductID)] = stock
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m inventory.Movement) (inventory.Movement, error) {
	tx.repo.nextID++
	m.ID = tx.repo.nextID
	tx.repo.movements = append(tx.repo.movements, m)
	return m, nil
}

func (tx *memoryTx) GetBOMForUpdate(ctx context.Context, id int64) (BOM, error) {
	return tx.repo.GetBOM(ctx, id)
}

func (tx *memoryTx) InsertBOM(ctx context.Context, bom BOM) (BOM, error) {
	tx.repo.nextID++
	bom.ID = tx.repo.nextID
	bom.Components = nil
	tx.repo.boms[bom.ID] = bom
	return bom, nil
}

func (tx *memoryTx) UpdateBOM(ctx context.Context, bom BOM) error {
	bom.Components = nil
	tx.repo.boms[bom.ID] = bom
	return nil
}

func (tx *memoryTx) ReplaceComponents(ctx context.Context, bomID int64, components []BOMComponent) ([]BOMComponent, error) {
	stored := make([]BOMComponent, 0, len(components))
	for _, c := range components {
		tx.repo.nextID++
		c.ID = tx.repo.nextID
		c.BOMID = bomID
		stored = append(stored, c)
	}
	tx.repo.components[bomID] = stored
	return stored, nil
}

func (tx *memoryTx) DeactivateOtherBOMs(ctx context.Context, productID, exceptID int64) error {
	for id, bom := range tx.repo.boms {
		if bom.ProductID == productID && id != exceptID && bom.IsActive {
			bom.IsActive = false
			tx.repo.boms[id] = bom
		}
	}
	return nil
}

func (tx *memoryTx) GetActiveBOM(ctx context.Context, productID int64) (BOM, error) {
	for id, bom := range tx.repo.boms {
		if bom.ProductID == productID && bom.IsActive {
			bom.Components = tx.repo.components[id]
			return bom, nil
		}
	}
	return BOM{}, shared.NotFoundf("active bill of materials for product %d", productID)
}

func (tx *memoryTx) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	order, ok := tx.repo.orders[id]
	if !ok {
		return Order{}, shared.NotFoundf("production order %d", id)
	}
	return order, nil
}

func (tx *memoryTx) InsertOrder(ctx context.Context, order Order) (Order, error) {
	tx.repo.nextID++
	order.ID = tx.repo.nextID
	order.Items = nil
	tx.repo.orders[order.ID] = order
	return order, nil
}

func (tx *memoryTx) UpdateOrder(ctx context.Context, order Order) error {
	order.Items = nil
	tx.repo.orders[order.ID] = order
	return nil
}

func (tx *memoryTx) InsertOrderItems(ctx context.Context, orderID int64, items []OrderItem) ([]OrderItem, error) {
	stored := make([]OrderItem, 0, len(items))
	for _, item := range items {
		tx.repo.nextID++
		item.ID = tx.repo.nextID
		item.OrderID = orderID
		stored = append(stored, item)
	}
	tx.repo.orderItems[orderID] = stored
	return stored, nil
}

func (tx *memoryTx) GetOrderItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	items := make([]OrderItem, len(tx.repo.orderItems[orderID]))
	copy(items, tx.repo.orderItems[orderID])
	return items, nil
}

func (tx *memoryTx) UpdateOrderItem(ctx context.Context, item OrderItem) error {
	items := tx.repo.orderItems[item.OrderID]
	for i := range items {
		if items[i].ID == item.ID {
			items[i] = item
		}
	}
	tx.repo.orderItems[item.OrderID] = items
	return nil
}

func (tx *memoryTx) InsertPhase(ctx context.Context, phase Phase) (Phase, error) {
	tx.repo.nextID++
	phase.ID = tx.repo.nextID
	tx.repo.phases = append(tx.repo.phases, phase)
	return phase, nil
}

func (tx *memoryTx) CompletePhase(ctx context.Context, orderID int64, phaseNumber int, completedAt time.Time) error {
	for i := range tx.repo.phases {
		if tx.repo.phases[i].OrderID == orderID && tx.repo.phases[i].PhaseNumber == phaseNumber {
			tx.repo.phases[i].Status = StatusCompleted
			at := completedAt
			tx.repo.phases[i].CompletedAt = &at
			return nil
		}
	}
	return shared.NotFoundf("phase %d of order %d", phaseNumber, orderID)
}

func (tx *memoryTx) NextOrderSequence(ctx context.Context, orderType OrderType, year string) (int, error) {
	key := string(orderType) + ":" + year
	tx.repo.sequences[key]++
	return tx.repo.sequences[key], nil
}

type memoryIdempotency struct {
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func seedStock(repo *memoryRepo, warehouseID, productID int64, qty string) {
	repo.nextID++
	repo.stocks[stockKey(warehouseID, productID)] = inventory.Stock{
		ID:          repo.nextID,
		WarehouseID: warehouseID,
		ProductID:   productID,
		Quantity:    dec(qty),
	}
}

// tableBOM is a two-component BOM for product 100: 4 legs + 1 top.
func tableBOM(isActive bool) BOMInput {
	return BOMInput{
		ProductID: 100,
		Version:   "v1",
		IsActive:  isActive,
		LaborCost: dec("5"),
		Components: []ComponentInput{
			{ProductID: 1, Quantity: dec("4"), UnitCost: dec("2")},
			{ProductID: 2, Quantity: dec("1"), UnitCost: dec("10"), IsVariable: true},
		},
	}
}

func TestBOMCostEngine(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	bom, err := svc.CreateBOM(ctx, tableBOM(true))
	require.NoError(t, err)
	// 4*2 + 1*10 = 18 material, +5 labor = 23 per unit.
	require.True(t, bom.EstimatedMaterialCost.Equal(dec("18")))
	require.True(t, bom.TotalCostPerUnit.Equal(dec("23")))
	require.True(t, bom.OutputQuantity.Equal(dec("1")))

	input := tableBOM(true)
	input.Components[0].UnitCost = dec("3")
	input.OverheadCost = dec("2")
	updated, err := svc.UpdateBOM(ctx, bom.ID, input)
	require.NoError(t, err)
	require.True(t, updated.EstimatedMaterialCost.Equal(dec("22")))
	require.True(t, updated.TotalCostPerUnit.Equal(dec("29")))
}

func TestActivatingBOMDeactivatesOthers(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	first, err := svc.CreateBOM(ctx, tableBOM(true))
	require.NoError(t, err)

	second := tableBOM(true)
	second.Version = "v2"
	created, err := svc.CreateBOM(ctx, second)
	require.NoError(t, err)
	require.True(t, created.IsActive)
	require.False(t, repo.boms[first.ID].IsActive)
}

func TestBOMValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()

	_, err := svc.CreateBOM(ctx, BOMInput{ProductID: 100, Version: "v1"})
	require.ErrorIs(t, err, shared.ErrValidation)

	input := tableBOM(false)
	input.Components[0].ProductID = 100
	_, err = svc.CreateBOM(ctx, input)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCheckAvailability(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	bom, err := svc.CreateBOM(ctx, tableBOM(true))
	require.NoError(t, err)

	seedStock(repo, 1, 1, "10")
	seedStock(repo, 1, 2, "1")

	report, err := svc.CheckAvailability(ctx, bom.ID, dec("2"), 1)
	require.NoError(t, err)
	require.False(t, report.CanProduce)
	require.Len(t, report.Components, 2)
	require.True(t, report.Components[0].IsAvailable) // 8 legs of 10
	require.False(t, report.Components[1].IsAvailable)
	require.True(t, report.Components[1].Shortage.Equal(dec("1")))
}

func TestAssemblyLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateBOM(ctx, tableBOM(true))
	require.NoError(t, err)
	seedStock(repo, 1, 1, "20")
	seedStock(repo, 1, 2, "5")

	order, err := svc.CreateAssembly(ctx, AssemblyInput{ProductID: 100, Quantity: dec("3"), WarehouseID: 1})
	require.NoError(t, err)
	require.Contains(t, order.Number, "ASM-")
	require.Equal(t, StatusDraft, order.Status)
	require.Len(t, order.Items, 2)
	require.True(t, order.Items[0].PlannedQuantity.Equal(dec("12")))
	require.True(t, order.Items[1].PlannedQuantity.Equal(dec("3")))
	require.True(t, order.MaterialCost.Equal(dec("54"))) // 12*2 + 3*10
	require.True(t, order.LaborCost.Equal(dec("15")))

	confirmed, err := svc.Confirm(ctx, order.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, confirmed.Status)
	require.True(t, repo.stocks[stockKey(1, 1)].ReservedQuantity.Equal(dec("12")))
	require.True(t, repo.stocks[stockKey(1, 2)].ReservedQuantity.Equal(dec("3")))

	// Confirmed orders cannot complete before starting.
	_, err = svc.CompleteAssembly(ctx, order.ID, 1, dec("3"), nil)
	require.ErrorIs(t, err, shared.ErrBusinessRule)

	started, err := svc.Start(ctx, order.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, started.Status)
	require.NotNil(t, started.StartedAt)

	// The variable component used one extra unit.
	completed, err := svc.CompleteAssembly(ctx, order.ID, 1, dec("3"), []ActualComponent{
		{ProductID: 2, Quantity: dec("4")},
	})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.True(t, completed.ActualQuantity.Equal(dec("3")))
	require.True(t, completed.MaterialCost.Equal(dec("64"))) // 12*2 + 4*10
	require.NotNil(t, completed.CompletedAt)
	require.NotNil(t, completed.CompletedBy)
	require.Equal(t, int64(1), *completed.CompletedBy)

	require.True(t, repo.stocks[stockKey(1, 1)].Quantity.Equal(dec("8")))
	require.True(t, repo.stocks[stockKey(1, 1)].ReservedQuantity.IsZero())
	require.True(t, repo.stocks[stockKey(1, 2)].Quantity.Equal(dec("1")))
	require.True(t, repo.stocks[stockKey(1, 100)].Quantity.Equal(dec("3")))

	// One production movement per component plus one for the output.
	var produced int
	for _, m := range repo.movements {
		if m.Type == inventory.MovementProduction {
			produced++
			require.Equal(t, "production_order", m.ReferenceType)
			require.Equal(t, completed.Number, m.ReferenceNumber)
		}
	}
	require.Equal(t, 3, produced)
}

func TestFixedComponentCannotDiverge(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateBOM(ctx, tableBOM(true))
	require.NoError(t, err)
	seedStock(repo, 1, 1, "20")
	seedStock(repo, 1, 2, "5")

	order, err := svc.CreateAssembly(ctx, AssemblyInput{ProductID: 100, Quantity: dec("1"), WarehouseID: 1})
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, order.ID, 1)
	require.NoError(t, err)
	_, err = svc.Start(ctx, order.ID, 1)
	require.NoError(t, err)

	// Component 1 is not variable.
	_, err = svc.CompleteAssembly(ctx, order.ID, 1, dec("1"), []ActualComponent{
		{ProductID: 1, Quantity: dec("5")},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestConfirmIsAllOrNothing(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateBOM(ctx, tableBOM(true))
	require.NoError(t, err)
	seedStock(repo, 1, 1, "20")
	seedStock(repo, 1, 2, "1")

	order, err := svc.CreateAssembly(ctx, AssemblyInput{ProductID: 100, Quantity: dec("2"), WarehouseID: 1})
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, order.ID, 1)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	// The coverable first component was not reserved either.
	require.True(t, repo.stocks[stockKey(1, 1)].ReservedQuantity.IsZero())
	require.Equal(t, StatusDraft, repo.orders[order.ID].Status)
}

func TestAssemblyRequiresActiveBOM(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateBOM(ctx, tableBOM(false))
	require.NoError(t, err)

	_, err = svc.CreateAssembly(ctx, AssemblyInput{ProductID: 100, Quantity: dec("1"), WarehouseID: 1})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCompleteTwiceIsGuarded(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, &memoryIdempotency{})
	ctx := context.Background()

	_, err := svc.CreateBOM(ctx, tableBOM(true))
	require.NoError(t, err)
	seedStock(repo, 1, 1, "20")
	seedStock(repo, 1, 2, "5")

	order, err := svc.CreateAssembly(ctx, AssemblyInput{ProductID: 100, Quantity: dec("1"), WarehouseID: 1})
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, order.ID, 1)
	require.NoError(t, err)
	_, err = svc.Start(ctx, order.ID, 1)
	require.NoError(t, err)

	_, err = svc.CompleteAssembly(ctx, order.ID, 1, dec("1"), nil)
	require.NoError(t, err)

	_, err = svc.CompleteAssembly(ctx, order.ID, 1, dec("1"), nil)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	require.True(t, repo.stocks[stockKey(1, 100)].Quantity.Equal(dec("1")))
}

func TestCancelReleasesReservations(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateBOM(ctx, tableBOM(true))
	require.NoError(t, err)
	seedStock(repo, 1, 1, "20")
	seedStock(repo, 1, 2, "5")

	order, err := svc.CreateAssembly(ctx, AssemblyInput{ProductID: 100, Quantity: dec("2"), WarehouseID: 1})
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, order.ID, 1)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, order.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.True(t, repo.stocks[stockKey(1, 1)].ReservedQuantity.IsZero())
	require.True(t, repo.stocks[stockKey(1, 2)].ReservedQuantity.IsZero())

	_, err = svc.Start(ctx, order.ID, 1)
	require.ErrorIs(t, err, shared.ErrBusinessRule)
}

func TestDisassemblyRecoversComponents(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateBOM(ctx, tableBOM(true))
	require.NoError(t, err)
	seedStock(repo, 1, 100, "4")

	order, err := svc.CreateDisassembly(ctx, DisassemblyInput{ProductID: 100, Quantity: dec("2"), WarehouseID: 1})
	require.NoError(t, err)
	require.Contains(t, order.Number, "DIS-")

	_, err = svc.Confirm(ctx, order.ID, 1)
	require.NoError(t, err)
	require.True(t, repo.stocks[stockKey(1, 100)].ReservedQuantity.Equal(dec("2")))

	// Disassembly completes straight from confirmed; one leg was damaged.
	completed, err := svc.CompleteDisassembly(ctx, order.ID, 1, []ActualComponent{
		{ProductID: 1, Quantity: dec("7")},
	})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedBy)
	require.Equal(t, int64(1), *completed.CompletedBy)

	require.True(t, repo.stocks[stockKey(1, 100)].Quantity.Equal(dec("2")))
	require.True(t, repo.stocks[stockKey(1, 100)].ReservedQuantity.IsZero())
	require.True(t, repo.stocks[stockKey(1, 1)].Quantity.Equal(dec("7")))
	require.True(t, repo.stocks[stockKey(1, 2)].Quantity.Equal(dec("2")))
}

func TestPhasedDisassembly(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateBOM(ctx, tableBOM(true))
	require.NoError(t, err)
	seedStock(repo, 1, 100, "10")

	parent, err := svc.CreateDisassembly(ctx, DisassemblyInput{ProductID: 100, Quantity: dec("2"), WarehouseID: 1})
	require.NoError(t, err)

	step, err := svc.CreateDisassembly(ctx, DisassemblyInput{
		ProductID:       100,
		Quantity:        dec("1"),
		WarehouseID:     1,
		ParentOrderID:   parent.ID,
		Phase:           1,
		PhaseName:       "legs first",
		PhaseComponents: []PhaseComponent{{ProductID: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, parent.ID, step.ParentOrderID)
	require.Len(t, step.Items, 1)
	require.Equal(t, int64(1), step.Items[0].ProductID)

	phases, err := svc.ListPhases(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, phases, 1)
	require.Equal(t, "legs first", phases[0].Name)
	require.Equal(t, StatusDraft, phases[0].Status)
	require.Len(t, phases[0].Components, 1)

	_, err = svc.CompleteDisassembly(ctx, step.ID, 1, nil)
	require.NoError(t, err)

	phases, err = svc.ListPhases(ctx, parent.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, phases[0].Status)
	require.NotNil(t, phases[0].CompletedAt)
}

func TestPhasedDisassemblyValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateBOM(ctx, tableBOM(true))
	require.NoError(t, err)

	_, err = svc.CreateDisassembly(ctx, DisassemblyInput{
		ProductID: 100, Quantity: dec("1"), WarehouseID: 1,
		ParentOrderID: 99,
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateDisassembly(ctx, DisassemblyInput{
		ProductID: 100, Quantity: dec("1"), WarehouseID: 1,
		Phase:           1,
		PhaseComponents: []PhaseComponent{{ProductID: 777}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}
