package invoicing

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceType distinguishes sales from purchase invoices.
type InvoiceType string

const (
	TypeSales    InvoiceType = "sales"
	TypePurchase InvoiceType = "purchase"
)

// InvoiceStatus is the invoice lifecycle state.
type InvoiceStatus string

const (
	StatusDraft         InvoiceStatus = "draft"
	StatusPending       InvoiceStatus = "pending"
	StatusApproved      InvoiceStatus = "approved"
	StatusPartiallyPaid InvoiceStatus = "partially_paid"
	StatusPaid          InvoiceStatus = "paid"
	StatusCancelled     InvoiceStatus = "cancelled"
)

// PaymentTerms controls the due date offset from the invoice date.
type PaymentTerms string

const (
	TermsImmediate PaymentTerms = "immediate"
	TermsNet15     PaymentTerms = "net_15"
	TermsNet30     PaymentTerms = "net_30"
	TermsNet45     PaymentTerms = "net_45"
	TermsNet60     PaymentTerms = "net_60"
	TermsNet90     PaymentTerms = "net_90"
)

// DueDays returns the number of days the terms grant before payment is due.
func (t PaymentTerms) DueDays() int {
	switch t {
	case TermsNet15:
		return 15
	case TermsNet30:
		return 30
	case TermsNet45:
		return 45
	case TermsNet60:
		return 60
	case TermsNet90:
		return 90
	default:
		return 0
	}
}

// Invoice is the document header. Monetary fields are derived from the items
// plus header-level discount, tax and shipping, never stored independently.
type Invoice struct {
	ID                 int64           `json:"id"`
	Number             string          `json:"number"`
	Type               InvoiceType     `json:"invoice_type"`
	Status             InvoiceStatus   `json:"status"`
	ContactID          int64           `json:"contact_id"`
	WarehouseID        int64           `json:"warehouse_id"`
	InvoiceDate        time.Time       `json:"invoice_date"`
	DueDate            time.Time       `json:"due_date"`
	PaymentTerms       PaymentTerms    `json:"payment_terms"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	TaxPercentage      decimal.Decimal `json:"tax_percentage"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	TaxAmount          decimal.Decimal `json:"tax_amount"`
	ShippingCost       decimal.Decimal `json:"shipping_cost"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	PaidAmount         decimal.Decimal `json:"paid_amount"`
	BalanceDue         decimal.Decimal `json:"balance_due"`
	InventoryUpdated   bool            `json:"inventory_updated"`
	Notes              string          `json:"notes,omitempty"`
	ApprovedBy         int64           `json:"approved_by,omitempty"`
	ApprovedAt         *time.Time      `json:"approved_at,omitempty"`
	CreatedBy          int64           `json:"created_by,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	Items              []Item          `json:"items,omitempty"`
}

// Item is one invoice line.
type Item struct {
	ID                 int64           `json:"id"`
	InvoiceID          int64           `json:"invoice_id"`
	ProductID          int64           `json:"product_id"`
	Quantity           decimal.Decimal `json:"quantity"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	TaxPercentage      decimal.Decimal `json:"tax_percentage"`
	LineTotal          decimal.Decimal `json:"line_total"`
	SortOrder          int             `json:"sort_order"`
}

// Payment records money received or paid against an invoice.
type Payment struct {
	ID          int64           `json:"id"`
	InvoiceID   int64           `json:"invoice_id"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	PaymentDate time.Time       `json:"payment_date"`
	Reference   string          `json:"reference,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	CreatedBy   int64           `json:"created_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

var hundred = decimal.NewFromInt(100)

// CalculateLineTotal derives an item's line_total: gross minus the line
// discount, plus the line tax on the discounted amount.
func CalculateLineTotal(item Item) decimal.Decimal {
	gross := item.Quantity.Mul(item.UnitPrice)
	discount := gross.Mul(item.DiscountPercentage).Div(hundred)
	afterDiscount := gross.Sub(discount)
	tax := afterDiscount.Mul(item.TaxPercentage).Div(hundred)
	return afterDiscount.Add(tax)
}

// CalculateTotals recomputes every derived monetary field on the invoice from
// its items. Header discount applies to the subtotal, header tax to the
// discounted subtotal, shipping is added last.
func CalculateTotals(inv *Invoice) {
	subtotal := decimal.Zero
	for i := range inv.Items {
		inv.Items[i].LineTotal = CalculateLineTotal(inv.Items[i])
		subtotal = subtotal.Add(inv.Items[i].LineTotal)
	}
	inv.Subtotal = subtotal
	inv.DiscountAmount = subtotal.Mul(inv.DiscountPercentage).Div(hundred)
	afterDiscount := subtotal.Sub(inv.DiscountAmount)
	inv.TaxAmount = afterDiscount.Mul(inv.TaxPercentage).Div(hundred)
	inv.TotalAmount = afterDiscount.Add(inv.TaxAmount).Add(inv.ShippingCost)
	inv.BalanceDue = inv.TotalAmount.Sub(inv.PaidAmount)
}

// ItemInput is one line on a create/update request.
type ItemInput struct {
	ProductID          int64
	Quantity           decimal.Decimal
	UnitPrice          decimal.Decimal
	DiscountPercentage decimal.Decimal
	TaxPercentage      decimal.Decimal
}

// CreateInput carries a new invoice.
type CreateInput struct {
	Type               InvoiceType
	ContactID          int64
	WarehouseID        int64
	InvoiceDate        time.Time
	PaymentTerms       PaymentTerms
	DiscountPercentage decimal.Decimal
	TaxPercentage      decimal.Decimal
	ShippingCost       decimal.Decimal
	Notes              string
	Items              []ItemInput
	ActorID            int64
}

// UpdateInput carries header and line changes for a draft invoice.
type UpdateInput struct {
	ContactID          int64
	WarehouseID        int64
	InvoiceDate        time.Time
	PaymentTerms       PaymentTerms
	DiscountPercentage decimal.Decimal
	TaxPercentage      decimal.Decimal
	ShippingCost       decimal.Decimal
	Notes              string
	Items              []ItemInput
	ActorID            int64
}

// PaymentInput records a payment against an invoice.
type PaymentInput struct {
	Amount      decimal.Decimal
	Method      string
	PaymentDate time.Time
	Reference   string
	Notes       string
	ActorID     int64
}

// Filter narrows invoice listings.
type Filter struct {
	Type      InvoiceType
	Status    InvoiceStatus
	ContactID int64
	Page      int
	PerPage   int
}

// ContactRef is the slice of a contact the invoice engine needs.
type ContactRef struct {
	ID      int64
	Name    string
	Type    string
	Balance decimal.Decimal
}

// Contact types accepted per invoice type.
const (
	ContactCustomer = "customer"
	ContactSupplier = "supplier"
	ContactBoth     = "both"
)

// DashboardTotals summarises open and overdue exposure.
type DashboardTotals struct {
	DraftCount      int             `json:"draft_count"`
	ApprovedCount   int             `json:"approved_count"`
	OverdueCount    int             `json:"overdue_count"`
	TotalReceivable decimal.Decimal `json:"total_receivable"`
	TotalPayable    decimal.Decimal `json:"total_payable"`
}
