package inventory

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ErrStockNotFound indicates a missing stock row for a (warehouse, product) pair.
var ErrStockNotFound = errors.New("inventory: stock not found")

// LedgerStore is the minimal transactional surface the ledger mutates.
// The inventory TxRepository implements it, and so do the invoicing and
// production TxRepositories, which lets document engines move stock inside
// their own database transaction.
type LedgerStore interface {
	// GetStockForUpdate locks the row (SELECT ... FOR UPDATE) and returns it,
	// or ErrStockNotFound when the pair has never moved.
	GetStockForUpdate(ctx context.Context, warehouseID, productID int64) (Stock, error)
	CreateStock(ctx context.Context, stock Stock) (Stock, error)
	UpdateStock(ctx context.Context, stock Stock) error
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
}

// Change describes one stock mutation to be applied through the ledger.
type Change struct {
	WarehouseID     int64
	ProductID       int64
	Delta           decimal.Decimal
	Type            MovementType
	FromWarehouseID int64
	ToWarehouseID   int64
	ReferenceType   string
	ReferenceID     int64
	ReferenceNumber string
	Notes           string
	ActorID         int64
}

// Ledger applies stock mutations against a LedgerStore. It owns the
// read-modify-write discipline: lock, snapshot before, validate, persist,
// and emit exactly one movement row per change.
type Ledger struct{}

func (Ledger) lockOrCreate(ctx context.Context, store LedgerStore, warehouseID, productID int64) (Stock, error) {
	stock, err := store.GetStockForUpdate(ctx, warehouseID, productID)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, ErrStockNotFound) {
		return Stock{}, err
	}
	return store.CreateStock(ctx, Stock{WarehouseID: warehouseID, ProductID: productID})
}

// Apply mutates one stock row by change.Delta and records the movement.
// The resulting quantity must not go negative.
func (l Ledger) Apply(ctx context.Context, store LedgerStore, change Change) (Stock, Movement, error) {
	if change.WarehouseID == 0 || change.ProductID == 0 {
		return Stock{}, Movement{}, shared.Validationf("warehouse and product are required")
	}
	if change.Delta.IsZero() {
		return Stock{}, Movement{}, shared.Validationf("quantity change must be non-zero")
	}
	stock, err := l.lockOrCreate(ctx, store, change.WarehouseID, change.ProductID)
	if err != nil {
		return Stock{}, Movement{}, err
	}
	before := stock.Quantity
	after := before.Add(change.Delta)
	if after.IsNegative() {
		return Stock{}, Movement{}, shared.InsufficientStockf(
			"product %d in warehouse %d: have %s, removing %s",
			change.ProductID, change.WarehouseID, before.String(), change.Delta.Abs().String())
	}
	stock.Quantity = after
	if err := store.UpdateStock(ctx, stock); err != nil {
		return Stock{}, Movement{}, err
	}
	movement := Movement{
		WarehouseID:     change.WarehouseID,
		ProductID:       change.ProductID,
		Type:            change.Type,
		Quantity:        change.Delta,
		QuantityBefore:  before,
		QuantityAfter:   after,
		FromWarehouseID: change.FromWarehouseID,
		ToWarehouseID:   change.ToWarehouseID,
		ReferenceType:   change.ReferenceType,
		ReferenceID:     change.ReferenceID,
		ReferenceNumber: change.ReferenceNumber,
		Notes:           change.Notes,
		CreatedBy:       change.ActorID,
	}
	movement, err = store.InsertMovement(ctx, movement)
	if err != nil {
		return Stock{}, Movement{}, err
	}
	return stock, movement, nil
}

// ApplyDocumentMovement is the entry point for document engines (invoices,
// production orders) that move stock inside their own transaction. It requires
// a document reference so every resulting movement can be traced back.
func (l Ledger) ApplyDocumentMovement(ctx context.Context, store LedgerStore, change Change) (Stock, Movement, error) {
	if change.ReferenceType == "" || change.ReferenceNumber == "" {
		return Stock{}, Movement{}, shared.Validationf("document movements require a reference")
	}
	return l.Apply(ctx, store, change)
}

// Transfer atomically moves qty between two warehouses. Both rows are locked
// in ascending (warehouse_id, product_id) order so two transfers crossing in
// opposite directions cannot deadlock. Exactly two movement rows are emitted,
// each referencing the counterpart warehouse.
func (l Ledger) Transfer(ctx context.Context, store LedgerStore, input TransferInput) (TransferResult, error) {
	if input.FromWarehouseID == 0 || input.ToWarehouseID == 0 || input.ProductID == 0 {
		return TransferResult{}, shared.Validationf("source, destination and product are required")
	}
	if input.FromWarehouseID == input.ToWarehouseID {
		return TransferResult{}, shared.Validationf("cannot transfer to the same warehouse")
	}
	if !input.Quantity.IsPositive() {
		return TransferResult{}, shared.Validationf("transfer quantity must be positive")
	}

	// Stable lock order regardless of transfer direction.
	first, second := input.FromWarehouseID, input.ToWarehouseID
	if second < first {
		first, second = second, first
	}
	locked := make(map[int64]Stock, 2)
	for _, warehouseID := range []int64{first, second} {
		stock, err := l.lockOrCreate(ctx, store, warehouseID, input.ProductID)
		if err != nil {
			return TransferResult{}, err
		}
		locked[warehouseID] = stock
	}
	fromStock := locked[input.FromWarehouseID]
	toStock := locked[input.ToWarehouseID]

	if fromStock.Available().LessThan(input.Quantity) {
		return TransferResult{}, shared.InsufficientStockf(
			"product %d in warehouse %d: available %s, required %s",
			input.ProductID, input.FromWarehouseID, fromStock.Available().String(), input.Quantity.String())
	}

	fromBefore := fromStock.Quantity
	toBefore := toStock.Quantity
	fromStock.Quantity = fromBefore.Sub(input.Quantity)
	toStock.Quantity = toBefore.Add(input.Quantity)
	if err := store.UpdateStock(ctx, fromStock); err != nil {
		return TransferResult{}, err
	}
	if err := store.UpdateStock(ctx, toStock); err != nil {
		return TransferResult{}, err
	}

	out := Movement{
		WarehouseID:     input.FromWarehouseID,
		ProductID:       input.ProductID,
		Type:            MovementTransfer,
		Quantity:        input.Quantity.Neg(),
		QuantityBefore:  fromBefore,
		QuantityAfter:   fromStock.Quantity,
		FromWarehouseID: input.FromWarehouseID,
		ToWarehouseID:   input.ToWarehouseID,
		Notes:           input.Notes,
		CreatedBy:       input.ActorID,
	}
	in := Movement{
		WarehouseID:     input.ToWarehouseID,
		ProductID:       input.ProductID,
		Type:            MovementTransfer,
		Quantity:        input.Quantity,
		QuantityBefore:  toBefore,
		QuantityAfter:   toStock.Quantity,
		FromWarehouseID: input.FromWarehouseID,
		ToWarehouseID:   input.ToWarehouseID,
		Notes:           input.Notes,
		CreatedBy:       input.ActorID,
	}
	if _, err := store.InsertMovement(ctx, out); err != nil {
		return TransferResult{}, err
	}
	if _, err := store.InsertMovement(ctx, in); err != nil {
		return TransferResult{}, err
	}
	return TransferResult{FromStock: fromStock, ToStock: toStock}, nil
}

// Reserve sets qty aside on the locked stock row. Reservations never exceed
// the on-hand quantity.
func (l Ledger) Reserve(ctx context.Context, store LedgerStore, warehouseID, productID int64, qty decimal.Decimal) (Stock, error) {
	if !qty.IsPositive() {
		return Stock{}, shared.Validationf("reserve quantity must be positive")
	}
	stock, err := store.GetStockForUpdate(ctx, warehouseID, productID)
	if err != nil {
		if errors.Is(err, ErrStockNotFound) {
			return Stock{}, shared.InsufficientStockf(
				"product %d in warehouse %d: no stock on hand, required %s",
				productID, warehouseID, qty.String())
		}
		return Stock{}, err
	}
	if stock.Available().LessThan(qty) {
		return Stock{}, shared.InsufficientStockf(
			"product %d in warehouse %d: available %s, required %s",
			productID, warehouseID, stock.Available().String(), qty.String())
	}
	stock.ReservedQuantity = stock.ReservedQuantity.Add(qty)
	if err := store.UpdateStock(ctx, stock); err != nil {
		return Stock{}, err
	}
	return stock, nil
}

// Release gives back a reservation, clamping at zero so a stray double
// release can never drive reserved_quantity negative.
func (l Ledger) Release(ctx context.Context, store LedgerStore, warehouseID, productID int64, qty decimal.Decimal) (Stock, error) {
	if !qty.IsPositive() {
		return Stock{}, shared.Validationf("release quantity must be positive")
	}
	stock, err := store.GetStockForUpdate(ctx, warehouseID, productID)
	if err != nil {
		if errors.Is(err, ErrStockNotFound) {
			return Stock{}, shared.NotFoundf("stock for product %d in warehouse %d", productID, warehouseID)
		}
		return Stock{}, err
	}
	stock.ReservedQuantity = stock.ReservedQuantity.Sub(qty)
	if stock.ReservedQuantity.IsNegative() {
		stock.ReservedQuantity = decimal.Zero
	}
	if err := store.UpdateStock(ctx, stock); err != nil {
		return Stock{}, err
	}
	return stock, nil
}
