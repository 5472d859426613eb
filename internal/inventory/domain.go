package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementIn represents an inbound movement (purchase receipt).
	MovementIn MovementType = "in"
	// MovementOut represents an outbound movement (sales issue).
	MovementOut MovementType = "out"
	// MovementTransfer is used for warehouse-to-warehouse moves.
	MovementTransfer MovementType = "transfer"
	// MovementAdjustment indicates manual corrections and reversals.
	MovementAdjustment MovementType = "adjustment"
	// MovementProduction indicates assembly/disassembly consumption or output.
	MovementProduction MovementType = "production"
	// MovementReturn indicates customer/supplier returns.
	MovementReturn MovementType = "return"
)

// Stock tracks quantity per (warehouse, product) pair. Rows are created
// lazily on first movement and never deleted; quantity may drop to zero.
type Stock struct {
	ID               int64           `json:"id"`
	WarehouseID      int64           `json:"warehouse_id"`
	ProductID        int64           `json:"product_id"`
	Quantity         decimal.Decimal `json:"quantity"`
	ReservedQuantity decimal.Decimal `json:"reserved_quantity"`
	MinQuantity      decimal.Decimal `json:"min_quantity"`
	MaxQuantity      decimal.Decimal `json:"max_quantity"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Available returns quantity minus reservations.
func (s Stock) Available() decimal.Decimal {
	return s.Quantity.Sub(s.ReservedQuantity)
}

// IsLowStock reports whether quantity fell to or below the minimum threshold.
func (s Stock) IsLowStock() bool {
	return s.MinQuantity.IsPositive() && s.Quantity.LessThanOrEqual(s.MinQuantity)
}

// IsOutOfStock reports whether nothing is left on hand.
func (s Stock) IsOutOfStock() bool {
	return !s.Quantity.IsPositive()
}

// Movement is one immutable audit record of a stock quantity change.
// Rows are only ever inserted.
type Movement struct {
	ID              int64           `json:"id"`
	WarehouseID     int64           `json:"warehouse_id"`
	ProductID       int64           `json:"product_id"`
	Type            MovementType    `json:"movement_type"`
	Quantity        decimal.Decimal `json:"quantity"`
	QuantityBefore  decimal.Decimal `json:"quantity_before"`
	QuantityAfter   decimal.Decimal `json:"quantity_after"`
	FromWarehouseID int64           `json:"from_warehouse_id,omitempty"`
	ToWarehouseID   int64           `json:"to_warehouse_id,omitempty"`
	ReferenceType   string          `json:"reference_type,omitempty"`
	ReferenceID     int64           `json:"reference_id,omitempty"`
	ReferenceNumber string          `json:"reference_number,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedBy       int64           `json:"created_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// AdjustInput describes a manual stock adjustment.
type AdjustInput struct {
	WarehouseID int64
	ProductID   int64
	Quantity    decimal.Decimal
	Notes       string
	ActorID     int64
}

// TransferInput describes a transfer between warehouses.
type TransferInput struct {
	FromWarehouseID int64
	ToWarehouseID   int64
	ProductID       int64
	Quantity        decimal.Decimal
	Notes           string
	ActorID         int64
}

// ReservationInput identifies the stock row and quantity to reserve or release.
type ReservationInput struct {
	WarehouseID int64
	ProductID   int64
	Quantity    decimal.Decimal
	ActorID     int64
}

// TransferResult carries both updated stock rows.
type TransferResult struct {
	FromStock Stock `json:"from_stock"`
	ToStock   Stock `json:"to_stock"`
}

// StockFilter filters stock listings.
type StockFilter struct {
	WarehouseID int64
	ProductID   int64
	LowOnly     bool
	OutOnly     bool
	Page        int
	PerPage     int
}

// MovementFilter filters the movement log.
type MovementFilter struct {
	WarehouseID int64
	ProductID   int64
	Type        MovementType
	From        time.Time
	To          time.Time
	Limit       int
}

// Statistics summarises one warehouse (or all when WarehouseID is zero).
type Statistics struct {
	WarehouseID     int64           `json:"warehouse_id"`
	TotalProducts   int             `json:"total_products"`
	TotalItems      decimal.Decimal `json:"total_items"`
	TotalReserved   decimal.Decimal `json:"total_reserved"`
	TotalValue      decimal.Decimal `json:"total_value"`
	LowStockCount   int             `json:"low_stock_count"`
	OutOfStockCount int             `json:"out_of_stock_count"`
}
