package production

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType distinguishes assembly (build from components) from disassembly
// (recover components from a finished product).
type OrderType string

const (
	TypeAssembly    OrderType = "assembly"
	TypeDisassembly OrderType = "disassembly"
)

// OrderStatus is the production order lifecycle state.
type OrderStatus string

const (
	StatusDraft      OrderStatus = "draft"
	StatusConfirmed  OrderStatus = "confirmed"
	StatusInProgress OrderStatus = "in_progress"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// BOM is a bill of materials for one product. A product may carry several
// versions but at most one active BOM at a time.
type BOM struct {
	ID                    int64           `json:"id"`
	ProductID             int64           `json:"product_id"`
	Version               string          `json:"version"`
	IsActive              bool            `json:"is_active"`
	OutputQuantity        decimal.Decimal `json:"output_quantity"`
	LaborCost             decimal.Decimal `json:"labor_cost"`
	OverheadCost          decimal.Decimal `json:"overhead_cost"`
	EstimatedMaterialCost decimal.Decimal `json:"estimated_material_cost"`
	TotalCostPerUnit      decimal.Decimal `json:"total_cost_per_unit"`
	Notes                 string          `json:"notes,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
	Components            []BOMComponent  `json:"components,omitempty"`
}

// BOMComponent is one input line of a BOM. Variable components may be
// consumed in quantities differing from the plan at completion time.
type BOMComponent struct {
	ID         int64           `json:"id"`
	BOMID      int64           `json:"bom_id"`
	ProductID  int64           `json:"product_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	IsVariable bool            `json:"is_variable"`
	Sequence   int             `json:"sequence"`
}

// RecalculateCosts rederives the BOM cost fields from its components.
func (b *BOM) RecalculateCosts() {
	material := decimal.Zero
	for _, c := range b.Components {
		material = material.Add(c.Quantity.Mul(c.UnitCost))
	}
	b.EstimatedMaterialCost = material
	b.TotalCostPerUnit = material.Add(b.LaborCost).Add(b.OverheadCost)
}

// Order is a production order moving through
// draft -> confirmed -> in_progress -> completed | cancelled.
type Order struct {
	ID              int64           `json:"id"`
	Number          string          `json:"number"`
	Type            OrderType       `json:"order_type"`
	Status          OrderStatus     `json:"status"`
	ProductID       int64           `json:"product_id"`
	BOMID           int64           `json:"bom_id"`
	WarehouseID     int64           `json:"warehouse_id"`
	PlannedQuantity decimal.Decimal `json:"planned_quantity"`
	ActualQuantity  decimal.Decimal `json:"actual_quantity"`
	MaterialCost    decimal.Decimal `json:"material_cost"`
	LaborCost       decimal.Decimal `json:"labor_cost"`
	OverheadCost    decimal.Decimal `json:"overhead_cost"`
	ScheduledDate   time.Time       `json:"scheduled_date"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	CompletedBy     *int64          `json:"completed_by,omitempty"`
	ParentOrderID   int64           `json:"parent_order_id,omitempty"`
	Phase           int             `json:"phase,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedBy       int64           `json:"created_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Items           []OrderItem     `json:"items,omitempty"`
}

// OrderItem is one component line of an order, snapshotted from the BOM at
// creation time so later BOM edits cannot change a running order.
type OrderItem struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"order_id"`
	ProductID       int64           `json:"product_id"`
	PlannedQuantity decimal.Decimal `json:"planned_quantity"`
	ActualQuantity  decimal.Decimal `json:"actual_quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	IsVariable      bool            `json:"is_variable"`
	Reserved        bool            `json:"reserved"`
}

// Phase records one step of a phased disassembly: which components the step
// handled, captured as a JSON snapshot on the parent order.
type Phase struct {
	ID          int64            `json:"id"`
	OrderID     int64            `json:"order_id"`
	PhaseNumber int              `json:"phase_number"`
	Name        string           `json:"name"`
	Status      OrderStatus      `json:"status"`
	Components  []PhaseComponent `json:"components"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// PhaseComponent is one entry of a phase snapshot.
type PhaseComponent struct {
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// ComponentAvailability reports whether one component line can be covered.
type ComponentAvailability struct {
	ProductID   int64           `json:"product_id"`
	Required    decimal.Decimal `json:"required"`
	Available   decimal.Decimal `json:"available"`
	Shortage    decimal.Decimal `json:"shortage"`
	IsAvailable bool            `json:"is_available"`
}

// AvailabilityReport covers a whole BOM at a given build quantity.
type AvailabilityReport struct {
	BOMID       int64                   `json:"bom_id"`
	WarehouseID int64                   `json:"warehouse_id"`
	Quantity    decimal.Decimal         `json:"quantity"`
	CanProduce  bool                    `json:"can_produce"`
	Components  []ComponentAvailability `json:"components"`
}

// ComponentInput is one component on a BOM create/update request.
type ComponentInput struct {
	ProductID  int64
	Quantity   decimal.Decimal
	UnitCost   decimal.Decimal
	IsVariable bool
}

// BOMInput carries a BOM create/update request.
type BOMInput struct {
	ProductID      int64
	Version        string
	IsActive       bool
	OutputQuantity decimal.Decimal
	LaborCost      decimal.Decimal
	OverheadCost   decimal.Decimal
	Notes          string
	Components     []ComponentInput
	ActorID        int64
}

// AssemblyInput creates an assembly order from the product's active BOM.
type AssemblyInput struct {
	ProductID     int64
	Quantity      decimal.Decimal
	WarehouseID   int64
	ScheduledDate time.Time
	Notes         string
	ActorID       int64
}

// DisassemblyInput creates a disassembly order. ParentOrderID and Phase link
// a phased step to its parent order; PhaseComponents restricts the step to a
// subset of the BOM components.
type DisassemblyInput struct {
	ProductID       int64
	Quantity        decimal.Decimal
	WarehouseID     int64
	ScheduledDate   time.Time
	ParentOrderID   int64
	Phase           int
	PhaseName       string
	PhaseComponents []PhaseComponent
	Notes           string
	ActorID         int64
}

// ActualComponent reports the real consumption (assembly) or recovery
// (disassembly) of one component at completion time.
type ActualComponent struct {
	ProductID int64
	Quantity  decimal.Decimal
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	Type      OrderType
	Status    OrderStatus
	ProductID int64
	Page      int
	PerPage   int
}

// Statistics summarises production activity.
type Statistics struct {
	OrdersByStatus map[OrderStatus]int `json:"orders_by_status"`
	TotalOutput    decimal.Decimal     `json:"total_output"`
}
