package products

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a sellable or consumable item.
type Product struct {
	ID           int64           `json:"id"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Unit         string          `json:"unit"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	IsAssembly   bool            `json:"is_assembly"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
