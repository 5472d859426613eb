package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// TxRepository is the transactional surface of the invoice engine. It embeds
// the inventory ledger store so stock movements triggered by approval and
// cancellation commit or roll back with the invoice itself.
type TxRepository interface {
	inventory.LedgerStore

	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	UpdateInvoice(ctx context.Context, inv Invoice) error
	ReplaceItems(ctx context.Context, invoiceID int64, items []Item) ([]Item, error)
	GetItems(ctx context.Context, invoiceID int64) ([]Item, error)
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	GetPaymentForUpdate(ctx context.Context, paymentID int64) (Payment, error)
	DeletePayment(ctx context.Context, paymentID int64) error
	GetContact(ctx context.Context, contactID int64) (ContactRef, error)
	// ApplyContactBalance shifts the contact's running balance by delta
	// within this transaction.
	ApplyContactBalance(ctx context.Context, contactID int64, delta decimal.Decimal) error
	// NextSequence returns the next number in the per-type monthly sequence.
	NextSequence(ctx context.Context, invoiceType InvoiceType, period string) (int, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, filter Filter) ([]Invoice, int, error)
	ListOverdue(ctx context.Context, asOf time.Time) ([]Invoice, error)
	ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error)
	DashboardTotals(ctx context.Context, asOf time.Time) (DashboardTotals, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards one-shot operations against replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service implements the invoice approval and cancellation engine.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	ledger      inventory.Ledger
	now         func() time.Time
}

// NewService builds Service. audit and idempotency may be nil.
func NewService(repo RepositoryPort, audit AuditPort, idempotency IdempotencyPort) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idempotency, now: time.Now}
}

func typePrefix(t InvoiceType) string {
	if t == TypePurchase {
		return "INV-P"
	}
	return "INV-S"
}

func validContactFor(t InvoiceType, contactType string) bool {
	if contactType == ContactBoth {
		return true
	}
	if t == TypeSales {
		return contactType == ContactCustomer
	}
	return contactType == ContactSupplier
}

func (s *Service) validateItems(items []ItemInput) error {
	if len(items) == 0 {
		return shared.Validationf("invoice requires at least one item")
	}
	for i, item := range items {
		if item.ProductID == 0 {
			return shared.Validationf("item %d: product is required", i+1)
		}
		if !item.Quantity.IsPositive() {
			return shared.Validationf("item %d: quantity must be positive", i+1)
		}
		if item.UnitPrice.IsNegative() {
			return shared.Validationf("item %d: unit price cannot be negative", i+1)
		}
	}
	return nil
}

func buildItems(inputs []ItemInput) []Item {
	items := make([]Item, 0, len(inputs))
	for i, in := range inputs {
		items = append(items, Item{
			ProductID:          in.ProductID,
			Quantity:           in.Quantity,
			UnitPrice:          in.UnitPrice,
			DiscountPercentage: in.DiscountPercentage,
			TaxPercentage:      in.TaxPercentage,
			SortOrder:          i,
		})
	}
	return items
}

// Create validates the contact against the invoice type, assigns the next
// number in the monthly sequence and persists the invoice with derived totals.
func (s *Service) Create(ctx context.Context, input CreateInput) (Invoice, error) {
	if input.Type != TypeSales && input.Type != TypePurchase {
		return Invoice{}, shared.Validationf("invoice type must be sales or purchase")
	}
	if input.ContactID == 0 || input.WarehouseID == 0 {
		return Invoice{}, shared.Validationf("contact and warehouse are required")
	}
	if err := s.validateItems(input.Items); err != nil {
		return Invoice{}, err
	}
	invoiceDate := input.InvoiceDate
	if invoiceDate.IsZero() {
		invoiceDate = s.now()
	}
	terms := input.PaymentTerms
	if terms == "" {
		terms = TermsImmediate
	}

	var created Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		contact, err := tx.GetContact(ctx, input.ContactID)
		if err != nil {
			return err
		}
		if !validContactFor(input.Type, contact.Type) {
			return shared.Validationf("contact %s cannot receive %s invoices", contact.Name, input.Type)
		}
		seq, err := tx.NextSequence(ctx, input.Type, invoiceDate.Format("200601"))
		if err != nil {
			return err
		}
		inv := Invoice{
			Number:             fmt.Sprintf("%s-%s-%04d", typePrefix(input.Type), invoiceDate.Format("200601"), seq),
			Type:               input.Type,
			Status:             StatusDraft,
			ContactID:          input.ContactID,
			WarehouseID:        input.WarehouseID,
			InvoiceDate:        invoiceDate,
			DueDate:            invoiceDate.AddDate(0, 0, terms.DueDays()),
			PaymentTerms:       terms,
			DiscountPercentage: input.DiscountPercentage,
			TaxPercentage:      input.TaxPercentage,
			ShippingCost:       input.ShippingCost,
			Notes:              input.Notes,
			CreatedBy:          input.ActorID,
			Items:              buildItems(input.Items),
		}
		CalculateTotals(&inv)
		created, err = tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		created.Items, err = tx.ReplaceItems(ctx, created.ID, inv.Items)
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, input.ActorID, "invoice.create", created)
	return created, nil
}

// Update rewrites header fields and items. Approved invoices whose stock has
// already moved can no longer be edited.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (Invoice, error) {
	if err := s.validateItems(input.Items); err != nil {
		return Invoice{}, err
	}
	var updated Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status == StatusCancelled {
			return shared.BusinessRulef("invoice %s is cancelled", inv.Number)
		}
		if inv.InventoryUpdated {
			return shared.BusinessRulef("invoice %s already moved stock and cannot be edited", inv.Number)
		}
		if input.ContactID != 0 && input.ContactID != inv.ContactID {
			contact, err := tx.GetContact(ctx, input.ContactID)
			if err != nil {
				return err
			}
			if !validContactFor(inv.Type, contact.Type) {
				return shared.Validationf("contact %s cannot receive %s invoices", contact.Name, inv.Type)
			}
			inv.ContactID = input.ContactID
		}
		if input.WarehouseID != 0 {
			inv.WarehouseID = input.WarehouseID
		}
		if !input.InvoiceDate.IsZero() {
			inv.InvoiceDate = input.InvoiceDate
		}
		if input.PaymentTerms != "" {
			inv.PaymentTerms = input.PaymentTerms
		}
		inv.DueDate = inv.InvoiceDate.AddDate(0, 0, inv.PaymentTerms.DueDays())
		inv.DiscountPercentage = input.DiscountPercentage
		inv.TaxPercentage = input.TaxPercentage
		inv.ShippingCost = input.ShippingCost
		inv.Notes = input.Notes
		inv.Items = buildItems(input.Items)
		CalculateTotals(&inv)
		if err := tx.UpdateInvoice(ctx, inv); err != nil {
			return err
		}
		inv.Items, err = tx.ReplaceItems(ctx, inv.ID, inv.Items)
		if err != nil {
			return err
		}
		updated = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, input.ActorID, "invoice.update", updated)
	return updated, nil
}

// balanceDelta returns the contact balance shift caused by approving the
// invoice. Sales increase what the customer owes, purchases increase what we
// owe the supplier.
func balanceDelta(t InvoiceType, total decimal.Decimal) decimal.Decimal {
	if t == TypeSales {
		return total
	}
	return total.Neg()
}

// paymentDelta is the contact balance shift caused by one payment.
func paymentDelta(t InvoiceType, amount decimal.Decimal) decimal.Decimal {
	if t == TypeSales {
		return amount.Neg()
	}
	return amount
}

// Approve moves the invoice to APPROVED, applies the stock movements for
// every line and shifts the contact balance, all in one transaction. A unique
// idempotency key makes concurrent double approval impossible.
func (s *Service) Approve(ctx context.Context, id, actorID int64) (Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	idemKey := "invoice:approve:" + inv.Number
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, "invoicing"); err != nil {
			return Invoice{}, err
		}
	}

	var approved Invoice
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != StatusDraft && inv.Status != StatusPending {
			return shared.BusinessRulef("invoice %s is %s and cannot be approved", inv.Number, inv.Status)
		}
		if inv.InventoryUpdated {
			return shared.BusinessRulef("invoice %s already moved stock", inv.Number)
		}
		items, err := tx.GetItems(ctx, inv.ID)
		if err != nil {
			return err
		}

		// Sales issue stock, so every line must be coverable before any
		// row is mutated.
		if inv.Type == TypeSales {
			for _, item := range items {
				stock, err := tx.GetStockForUpdate(ctx, inv.WarehouseID, item.ProductID)
				if err != nil {
					if errors.Is(err, inventory.ErrStockNotFound) {
						return shared.InsufficientStockf(
							"product %d in warehouse %d: no stock on hand, required %s",
							item.ProductID, inv.WarehouseID, item.Quantity.String())
					}
					return err
				}
				if stock.Available().LessThan(item.Quantity) {
					return shared.InsufficientStockf(
						"product %d in warehouse %d: available %s, required %s",
						item.ProductID, inv.WarehouseID, stock.Available().String(), item.Quantity.String())
				}
			}
		}

		movementType := inventory.MovementIn
		sign := decimal.NewFromInt(1)
		if inv.Type == TypeSales {
			movementType = inventory.MovementOut
			sign = sign.Neg()
		}
		for _, item := range items {
			_, _, err := s.ledger.ApplyDocumentMovement(ctx, tx, inventory.Change{
				WarehouseID:     inv.WarehouseID,
				ProductID:       item.ProductID,
				Delta:           item.Quantity.Mul(sign),
				Type:            movementType,
				ReferenceType:   "invoice",
				ReferenceID:     inv.ID,
				ReferenceNumber: inv.Number,
				ActorID:         actorID,
			})
			if err != nil {
				return err
			}
		}

		now := s.now()
		inv.Status = StatusApproved
		inv.InventoryUpdated = true
		inv.ApprovedBy = actorID
		inv.ApprovedAt = &now
		if err := tx.UpdateInvoice(ctx, inv); err != nil {
			return err
		}
		if err := tx.ApplyContactBalance(ctx, inv.ContactID, balanceDelta(inv.Type, inv.TotalAmount)); err != nil {
			return err
		}
		inv.Items = items
		approved = inv
		return nil
	})
	if err != nil {
		if s.idempotency != nil {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		return Invoice{}, err
	}
	s.record(ctx, actorID, "invoice.approve", approved)
	return approved, nil
}

// Cancel voids the invoice. When stock already moved, every line is reversed
// with an adjustment movement and the contact balance shift is undone.
func (s *Service) Cancel(ctx context.Context, id, actorID int64) (Invoice, error) {
	var cancelled Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status == StatusPaid {
			return shared.BusinessRulef("invoice %s is paid and cannot be cancelled", inv.Number)
		}
		if inv.Status == StatusCancelled {
			return shared.BusinessRulef("invoice %s is already cancelled", inv.Number)
		}
		if inv.PaidAmount.IsPositive() {
			return shared.BusinessRulef("invoice %s has payments; delete them first", inv.Number)
		}
		if inv.InventoryUpdated {
			items, err := tx.GetItems(ctx, inv.ID)
			if err != nil {
				return err
			}
			sign := decimal.NewFromInt(1)
			if inv.Type == TypePurchase {
				sign = sign.Neg()
			}
			for _, item := range items {
				_, _, err := s.ledger.ApplyDocumentMovement(ctx, tx, inventory.Change{
					WarehouseID:     inv.WarehouseID,
					ProductID:       item.ProductID,
					Delta:           item.Quantity.Mul(sign),
					Type:            inventory.MovementAdjustment,
					ReferenceType:   "invoice_cancellation",
					ReferenceID:     inv.ID,
					ReferenceNumber: inv.Number,
					ActorID:         actorID,
				})
				if err != nil {
					return err
				}
			}
			if err := tx.ApplyContactBalance(ctx, inv.ContactID, balanceDelta(inv.Type, inv.TotalAmount).Neg()); err != nil {
				return err
			}
		}
		inv.Status = StatusCancelled
		inv.InventoryUpdated = false
		if err := tx.UpdateInvoice(ctx, inv); err != nil {
			return err
		}
		cancelled = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	if s.idempotency != nil {
		// A cancelled invoice may be approved again after edits.
		_ = s.idempotency.Delete(ctx, "invoice:approve:"+cancelled.Number)
	}
	s.record(ctx, actorID, "invoice.cancel", cancelled)
	return cancelled, nil
}

// AddPayment records a payment, shifts the contact balance and advances the
// invoice to PARTIALLY_PAID or PAID.
func (s *Service) AddPayment(ctx context.Context, invoiceID int64, input PaymentInput) (Invoice, error) {
	if !input.Amount.IsPositive() {
		return Invoice{}, shared.Validationf("payment amount must be positive")
	}
	paymentDate := input.PaymentDate
	if paymentDate.IsZero() {
		paymentDate = s.now()
	}
	var updated Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status == StatusCancelled {
			return shared.BusinessRulef("invoice %s is cancelled", inv.Number)
		}
		if inv.Status == StatusDraft || inv.Status == StatusPending {
			return shared.BusinessRulef("invoice %s must be approved before payment", inv.Number)
		}
		if input.Amount.GreaterThan(inv.BalanceDue) {
			return shared.Validationf("payment %s exceeds balance due %s", input.Amount.String(), inv.BalanceDue.String())
		}
		if _, err := tx.InsertPayment(ctx, Payment{
			InvoiceID:   inv.ID,
			Amount:      input.Amount,
			Method:      input.Method,
			PaymentDate: paymentDate,
			Reference:   input.Reference,
			Notes:       input.Notes,
			CreatedBy:   input.ActorID,
		}); err != nil {
			return err
		}
		inv.PaidAmount = inv.PaidAmount.Add(input.Amount)
		inv.BalanceDue = inv.TotalAmount.Sub(inv.PaidAmount)
		if inv.BalanceDue.IsZero() {
			inv.Status = StatusPaid
		} else {
			inv.Status = StatusPartiallyPaid
		}
		if err := tx.UpdateInvoice(ctx, inv); err != nil {
			return err
		}
		if err := tx.ApplyContactBalance(ctx, inv.ContactID, paymentDelta(inv.Type, input.Amount)); err != nil {
			return err
		}
		updated = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, input.ActorID, "invoice.payment", updated)
	return updated, nil
}

// DeletePayment reverses a recorded payment exactly: paid amount, balance
// due, status and the contact balance all step back.
func (s *Service) DeletePayment(ctx context.Context, invoiceID, paymentID, actorID int64) (Invoice, error) {
	var updated Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		payment, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment.InvoiceID != inv.ID {
			return shared.Validationf("payment %d does not belong to invoice %s", paymentID, inv.Number)
		}
		if err := tx.DeletePayment(ctx, paymentID); err != nil {
			return err
		}
		inv.PaidAmount = inv.PaidAmount.Sub(payment.Amount)
		inv.BalanceDue = inv.TotalAmount.Sub(inv.PaidAmount)
		switch {
		case inv.PaidAmount.IsZero():
			inv.Status = StatusApproved
		case inv.BalanceDue.IsPositive():
			inv.Status = StatusPartiallyPaid
		default:
			inv.Status = StatusPaid
		}
		if err := tx.UpdateInvoice(ctx, inv); err != nil {
			return err
		}
		if err := tx.ApplyContactBalance(ctx, inv.ContactID, paymentDelta(inv.Type, payment.Amount).Neg()); err != nil {
			return err
		}
		updated = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, actorID, "invoice.payment_delete", updated)
	return updated, nil
}

// Get returns the invoice with its items.
func (s *Service) Get(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// List returns invoices matching the filter plus pagination metadata.
func (s *Service) List(ctx context.Context, filter Filter) ([]Invoice, shared.Pagination, error) {
	invoices, total, err := s.repo.ListInvoices(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return invoices, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// ListOverdue returns unpaid invoices past their due date.
func (s *Service) ListOverdue(ctx context.Context) ([]Invoice, error) {
	return s.repo.ListOverdue(ctx, s.now())
}

// ListPayments returns the payments recorded against an invoice.
func (s *Service) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	return s.repo.ListPayments(ctx, invoiceID)
}

// Dashboard returns open and overdue totals.
func (s *Service) Dashboard(ctx context.Context) (DashboardTotals, error) {
	return s.repo.DashboardTotals(ctx, s.now())
}

func (s *Service) record(ctx context.Context, actorID int64, action string, inv Invoice) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "invoice",
		EntityID: fmt.Sprintf("%d", inv.ID),
		Meta: map[string]any{
			"number": inv.Number,
			"status": string(inv.Status),
			"total":  inv.TotalAmount.String(),
		},
	})
}
