package invoicing

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
	invoices  map[int64]Invoice
	items     map[int64][]Item
	payments  map[int64]Payment
	contacts  map[int64]ContactRef
	stocks    map[string]inventory.Stock
	movements []inventory.Movement
	sequences map[string]int
	nextID    int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		invoices:  make(map[int64]Invoice),
		items:     make(map[int64][]Item),
		payments:  make(map[int64]Payment),
		contacts:  make(map[int64]ContactRef),
		stocks:    make(map[string]inventory.Stock),
		sequences: make(map[string]int),
	}
}

func stockKey(warehouseID, productID int64) string {
	return fmt.Sprintf("%d:%d", warehouseID, productID)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return Invoice{}, shared.NotFoundf("invoice %d", id)
	}
	inv.Items = r.items[id]
	return inv, nil
}

func (r *memoryRepo) ListInvoices(ctx context.Context, filter Filter) ([]Invoice, int, error) {
	var out []Invoice
	for _, inv := range r.invoices {
		if filter.Type != "" && inv.Type != filter.Type {
			continue
		}
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		out = append(out, inv)
	}
	return out, len(out), nil
}

func (r *memoryRepo) ListOverdue(ctx context.Context, asOf time.Time) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range r.invoices {
		open := inv.Status == StatusApproved || inv.Status == StatusPartiallyPaid
		if open && inv.DueDate.Before(asOf) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	var out []Payment
	for _, p := range r.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryRepo) DashboardTotals(ctx context.Context, asOf time.Time) (DashboardTotals, error) {
	return DashboardTotals{}, nil
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

func (tx *memoryTx) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	inv, ok := tx.repo.invoices[id]
	if !ok {
		return Invoice{}, shared.NotFoundf("invoice %d", id)
	}
	return inv, nil
}

func (tx *memoryTx) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	tx.repo.nextID++
	inv.ID = tx.repo.nextID
	inv.Items = nil
	tx.repo.invoices[inv.ID] = inv
	return inv, nil
}

func (tx *memoryTx) UpdateInvoice(ctx context.Context, inv Invoice) error {
	items := tx.repo.items[inv.ID]
	inv.Items = nil
	tx.repo.invoices[inv.ID] = inv
	tx.repo.items[inv.ID] = items
	return nil
}

func (tx *memoryTx) ReplaceItems(ctx context.Context, invoiceID int64, items []Item) ([]Item, error) {
	stored := make([]Item, 0, len(items))
	for _, item := range items {
		tx.repo.nextID++
		item.ID = tx.repo.nextID
		item.InvoiceID = invoiceID
		stored = append(stored, item)
	}
	tx.repo.items[invoiceID] = stored
	return stored, nil
}

func (tx *memoryTx) GetItems(ctx context.Context, invoiceID int64) ([]Item, error) {
	return tx.repo.items[invoiceID], nil
}

func (tx *memoryTx) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	tx.repo.nextID++
	p.ID = tx.repo.nextID
	tx.repo.payments[p.ID] = p
	return p, nil
}

func (tx *memoryTx) GetPaymentForUpdate(ctx context.Context, paymentID int64) (Payment, error) {
	p, ok := tx.repo.payments[paymentID]
	if !ok {
		return Payment{}, shared.NotFoundf("payment %d", paymentID)
	}
	return p, nil
}

func (tx *memoryTx) DeletePayment(ctx context.Context, paymentID int64) error {
	delete(tx.repo.payments, paymentID)
	return nil
}

func (tx *memoryTx) GetContact(ctx context.Context, contactID int64) (ContactRef, error) {
	ref, ok := tx.repo.contacts[contactID]
	if !ok {
		return ContactRef{}, shared.NotFoundf("contact %d", contactID)
	}
	return ref, nil
}

func (tx *memoryTx) ApplyContactBalance(ctx context.Context, contactID int64, delta decimal.Decimal) error {
	ref, ok := tx.repo.contacts[contactID]
	if !ok {
		return shared.NotFoundf("contact %d", contactID)
	}
	ref.Balance = ref.Balance.Add(delta)
	tx.repo.contacts[contactID] = ref
	return nil
}

func (tx *memoryTx) NextSequence(ctx context.Context, invoiceType InvoiceType, period string) (int, error) {
	key := string(invoiceType) + ":" + period
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

func seedContact(repo *memoryRepo, id int64, contactType string) {
	repo.contacts[id] = ContactRef{ID: id, Name: fmt.Sprintf("contact-%d", id), Type: contactType}
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

func salesInput(items ...ItemInput) CreateInput {
	return CreateInput{
		Type:        TypeSales,
		ContactID:   1,
		WarehouseID: 1,
		InvoiceDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Items:       items,
	}
}

func TestCreateComputesTotals(t *testing.T) {
	repo := newMemoryRepo()
	seedContact(repo, 1, ContactCustomer)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	input := salesInput(
		// 2 x 30 = 60, -10% = 54, +10% tax = 59.4
		ItemInput{ProductID: 1, Quantity: dec("2"), UnitPrice: dec("30"), DiscountPercentage: dec("10"), TaxPercentage: dec("10")},
		// 4 x 10 = 40
		ItemInput{ProductID: 2, Quantity: dec("4"), UnitPrice: dec("10")},
	)
	input.PaymentTerms = TermsNet30
	input.DiscountPercentage = dec("10") // header: 99.4 - 9.94 = 89.46
	input.TaxPercentage = dec("5")       // + 4.473 = 93.933
	input.ShippingCost = dec("6.067")    // = 100

	inv, err := svc.Create(ctx, input)
	require.NoError(t, err)
	require.Equal(t, "INV-S-202603-0001", inv.Number)
	require.Equal(t, StatusDraft, inv.Status)
	require.True(t, inv.Items[0].LineTotal.Equal(dec("59.4")))
	require.True(t, inv.Items[1].LineTotal.Equal(dec("40")))
	require.True(t, inv.Subtotal.Equal(dec("99.4")))
	require.True(t, inv.DiscountAmount.Equal(dec("9.94")))
	require.True(t, inv.TaxAmount.Equal(dec("4.473")))
	require.True(t, inv.TotalAmount.Equal(dec("100")))
	require.True(t, inv.BalanceDue.Equal(inv.TotalAmount.Sub(inv.PaidAmount)))
	require.Equal(t, inv.InvoiceDate.AddDate(0, 0, 30), inv.DueDate)

	second, err := svc.Create(ctx, salesInput(ItemInput{ProductID: 1, Quantity: dec("1"), UnitPrice: dec("5")}))
	require.NoError(t, err)
	require.Equal(t, "INV-S-202603-0002", second.Number)
}

func TestCreateRejectsWrongContactType(t *testing.T) {
	repo := newMemoryRepo()
	seedContact(repo, 1, ContactSupplier)
	svc := NewService(repo, nil, nil)

	_, err := svc.Create(context.Background(), salesInput(ItemInput{ProductID: 1, Quantity: dec("1"), UnitPrice: dec("5")}))
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateRequiresItems(t *testing.T) {
	repo := newMemoryRepo()
	seedContact(repo, 1, ContactCustomer)
	svc := NewService(repo, nil, nil)

	_, err := svc.Create(context.Background(), salesInput())
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestApproveSales(t *testing.T) {
	repo := newMemoryRepo()
	seedContact(repo, 1, ContactCustomer)
	seedStock(repo, 1, 1, "10")
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	inv, err := svc.Create(ctx, salesInput(ItemInput{ProductID: 1, Quantity: dec("4"), UnitPrice: dec("25")}))
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, inv.ID, 42)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.True(t, approved.InventoryUpdated)
	require.Equal(t, int64(42), approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)

	stock := repo.stocks[stockKey(1, 1)]
	require.True(t, stock.Quantity.Equal(dec("6")))

	require.Len(t, repo.movements, 1)
	m := repo.movements[0]
	require.Equal(t, inventory.MovementOut, m.Type)
	require.True(t, m.Quantity.Equal(dec("-4")))
	require.Equal(t, "invoice", m.ReferenceType)
	require.Equal(t, approved.Number, m.ReferenceNumber)

	// The customer now owes the full invoice amount.
	require.True(t, repo.contacts[1].Balance.Equal(dec("100")))
}

func TestApprovePurchase(t *testing.T) {
	repo := newMemoryRepo()
	seedContact(repo, 2, ContactBoth)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	inv, err := svc.Create(ctx, CreateInput{
		Type:        TypePurchase,
		ContactID:   2,
		WarehouseID: 1,
		Items:       []ItemInput{{ProductID: 3, Quantity: dec("5"), UnitPrice: dec("8")}},
	})
	require.NoError(t, err)
	require.Contains(t, inv.Number, "INV-P-")

	approved, err := svc.Approve(ctx, inv.ID, 1)
	require.NoError(t, err)

	// Purchases create stock rows lazily and receive goods.
	stock := repo.stocks[stockKey(1, 3)]
	require.True(t, stock.Quantity.Equal(dec("5")))
	require.Equal(t, inventory.MovementIn, repo.movements[0].Type)

	// We owe the supplier, so their balance moves negative.
	require.True(t, repo.contacts[2].Balance.Equal(approved.TotalAmount.Neg()))
}

func TestApproveSalesInsufficientStockIsAtomic(t *testing.T) {
	repo := newMemoryRepo()
	seedContact(repo, 1, ContactCustomer)
	seedStock(repo, 1, 1, "10")
	seedStock(repo, 1, 2, "1")
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	inv, err := svc.Create(ctx, salesInput(
		ItemInput{ProductID: 1, Quantity: dec("4"), UnitPrice: dec("25")},
		ItemInput{ProductID: 2, Quantity: dec("3"), UnitPrice: dec("10")},
	))
	require.NoError(t, err)

	_, err = svc.Approve(ctx, inv.ID, 1)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	// Availability is pre-validated for every line, so the coverable first
	// line must not have moved either.
	require.True(t, repo.stocks[stockKey(1, 1)].Quantity.Equal(dec("10")))
	require.True(t, repo.stocks[stockKey(1, 2)].Quantity.Equal(dec("1")))
	require.Empty(t, repo.movements)
	require.Equal(t, StatusDraft, repo.invoices[inv.ID].Status)
	require.True(t, repo.contacts[1].Balance.IsZero())
}

func TestApproveTwiceIsGuarded(t *testing.T) {
	repo := newMemoryRepo()
	seedContact(repo, 1, ContactCustomer)
	seedStock(repo, 1, 1, "10")
	idem := &memoryIdempotency{}
	svc := NewService(repo, nil, idem)
	ctx := context.Background()

	inv, err := svc.Create(ctx, salesInput(ItemInput{ProductID: 1, Quantity: dec("4"), UnitPrice: dec("25")}))
	require.NoError(t, err)

	_, err = svc.Approve(ctx, inv.ID, 1)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, inv.ID, 1)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	// Stock moved exactly once.
	require.True(t, repo.stocks[stockKey(1, 1)].Quantity.Equal(dec("6")))
	require.Len(t, repo.movements, 1)
}

func TestFailedApproveReleasesIdempotencyKey(t *testing.T) {
	repo := newMemoryRepo()
	seedContact(repo, 1, ContactCustomer)
	idem := &memoryIdempotency{}
	svc := NewService(repo, nil, idem)
	ctx := context.Background()

	inv, err := svc.Create(ctx, salesInput(ItemInput{ProductID: 1, Quantity: dec("4"), UnitPrice: dec("25")}))
	require.NoError(t, err)

	_, err = svc.Approve(ctx, inv.ID, 1)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	// Retry after restocking succeeds.
	seedStock(repo, 1, 1, "10")
	_, err = svc.Approve(ctx, inv.ID, 1)
	require.NoError(t, err)
}

func TestCancelRestoresStockAndBalance(t *testing.T) {
	repo := newMemoryRepo()
	seedContact(repo, 1, ContactCustomer)
	seedStock(repo, 1, 1, "10")
	svc := NewService(repo, nil, &memoryIdempotency{})
	ctx := context.Background()

	inv, err := svc.Create(ctx, salesInput(ItemInput{ProductID: 1, Quantity: dec("4"), UnitPrice: dec("25")}))
	require.NoError(t, err)
	_, err = svc.Approve(ctx, inv.ID, 1)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, inv.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.False(t, cancelled.InventoryUpdated)

	require.True(t, repo.stocks[stockKey(1, 1)].Quantity.Equal(dec("10")))
	require.True(t, repo.contacts[1].Balance.IsZero())

	// OUT on approval, ADJUSTMENT back on cancellation.
	require.Len(t, repo.movements, 2)
	reversal := repo.movements[1]
	require.Equal(t, inventory.MovementAdjustment, reversal.Type)
	require.True(t, reversal.Quantity.Equal(dec("4")))
	require.Equal(t, "invoice_cancellation", reversal.ReferenceType)
}

func TestCancelDraftSkipsInventory(t *testing.T) {
	repo := newMemoryRepo()
	seedContact(repo, 1, ContactCustomer)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	inv, err := svc.Create(ctx, salesInput(ItemInput{ProductID: 1, Quantity: dec("4"), UnitPrice: dec("25")}))
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, inv.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Empty(t, repo.movements)

	_, err = svc.Cancel(ctx, inv.ID, 1)
	require.ErrorIs(t, err, shared.ErrBusinessRule)
}

func TestPaymentLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	seedContact(repo, 1, ContactCustomer)
	seedStock(repo, 1, 1, "10")
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	inv, err := svc.Create(ctx, salesInput(ItemInput{ProductID: 1, Quantity: dec("4"), UnitPrice: dec("25")}))
	require.NoError(t, err)
	_, err = svc.Approve(ctx, inv.ID, 1)
	require.NoError(t, err)

	// Draft invoices cannot be paid; this one is approved. Pay 60 of 100.
	paid, err := svc.AddPayment(ctx, inv.ID, PaymentInput{Amount: dec("60"), Method: "bank_transfer"})
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyPaid, paid.Status)
	require.True(t, paid.BalanceDue.Equal(dec("40")))
	require.True(t, repo.contacts[1].Balance.Equal(dec("40")))

	// Overpaying the remainder is rejected.
	_, err = svc.AddPayment(ctx, inv.ID, PaymentInput{Amount: dec("41"), Method: "cash"})
	require.ErrorIs(t, err, shared.ErrValidation)

	paid, err = svc.AddPayment(ctx, inv.ID, PaymentInput{Amount: dec("40"), Method: "cash"})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)
	require.True(t, paid.BalanceDue.IsZero())
	require.True(t, repo.contacts[1].Balance.IsZero())

	// A paid invoice cannot be cancelled.
	_, err = svc.Cancel(ctx, inv.ID, 1)
	require.ErrorIs(t, err, shared.ErrBusinessRule)
}

func TestDeletePaymentReversesExactly(t *testing.T) {
	repo := newMemoryRepo()
	seedContact(repo, 1, ContactCustomer)
	seedStock(repo, 1, 1, "10")
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	inv, err := svc.Create(ctx, salesInput(ItemInput{ProductID: 1, Quantity: dec("4"), UnitPrice: dec("25")}))
	require.NoError(t, err)
	_, err = svc.Approve(ctx, inv.ID, 1)
	require.NoError(t, err)

	_, err = svc.AddPayment(ctx, inv.ID, PaymentInput{Amount: dec("100"), Method: "cash"})
	require.NoError(t, err)

	payments, err := svc.ListPayments(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)

	reverted, err := svc.DeletePayment(ctx, inv.ID, payments[0].ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, reverted.Status)
	require.True(t, reverted.PaidAmount.IsZero())
	require.True(t, reverted.BalanceDue.Equal(reverted.TotalAmount))
	require.True(t, repo.contacts[1].Balance.Equal(reverted.TotalAmount))
}

func TestUpdateBlockedOnceInventoryMoved(t *testing.T) {
	repo := newMemoryRepo()
	seedContact(repo, 1, ContactCustomer)
	seedStock(repo, 1, 1, "10")
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	inv, err := svc.Create(ctx, salesInput(ItemInput{ProductID: 1, Quantity: dec("4"), UnitPrice: dec("25")}))
	require.NoError(t, err)

	// Draft edits recompute totals.
	updated, err := svc.Update(ctx, inv.ID, UpdateInput{
		Items: []ItemInput{{ProductID: 1, Quantity: dec("2"), UnitPrice: dec("25")}},
	})
	require.NoError(t, err)
	require.True(t, updated.TotalAmount.Equal(dec("50")))

	_, err = svc.Approve(ctx, inv.ID, 1)
	require.NoError(t, err)

	_, err = svc.Update(ctx, inv.ID, UpdateInput{
		Items: []ItemInput{{ProductID: 1, Quantity: dec("1"), UnitPrice: dec("25")}},
	})
	require.ErrorIs(t, err, shared.ErrBusinessRule)
}

func TestPaymentRequiresApprovedInvoice(t *testing.T) {
	repo := newMemoryRepo()
	seedContact(repo, 1, ContactCustomer)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	inv, err := svc.Create(ctx, salesInput(ItemInput{ProductID: 1, Quantity: dec("1"), UnitPrice: dec("10")}))
	require.NoError(t, err)

	_, err = svc.AddPayment(ctx, inv.ID, PaymentInput{Amount: dec("10"), Method: "cash"})
	require.ErrorIs(t, err, shared.ErrBusinessRule)
}
