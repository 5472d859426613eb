package invoicing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists invoices in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	inventory.LedgerStore
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction. The
// wrapper carries the inventory ledger store so approvals move stock in the
// same transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("invoicing repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{LedgerStore: inventory.NewLedgerStore(tx), tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.String())
	return n
}

const invoiceColumns = `id, number, invoice_type, status, contact_id, warehouse_id, invoice_date, due_date,
	payment_terms, discount_percentage, tax_percentage, subtotal, discount_amount, tax_amount,
	shipping_cost, total_amount, paid_amount, balance_due, inventory_updated, COALESCE(notes, ''),
	COALESCE(approved_by, 0), approved_at, COALESCE(created_by, 0), created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var (
		inv                                    Invoice
		invoiceType, status, terms             string
		invoiceDate, dueDate                   pgtype.Timestamptz
		discPct, taxPct, subtotal, discAmt     pgtype.Numeric
		taxAmt, shipping, total, paid, balance pgtype.Numeric
		approvedAt                             pgtype.Timestamptz
		createdAt, updatedAt                   pgtype.Timestamptz
	)
	err := row.Scan(&inv.ID, &inv.Number, &invoiceType, &status, &inv.ContactID, &inv.WarehouseID,
		&invoiceDate, &dueDate, &terms, &discPct, &taxPct, &subtotal, &discAmt, &taxAmt,
		&shipping, &total, &paid, &balance, &inv.InventoryUpdated, &inv.Notes,
		&inv.ApprovedBy, &approvedAt, &inv.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return Invoice{}, err
	}
	inv.Type = InvoiceType(invoiceType)
	inv.Status = InvoiceStatus(status)
	inv.PaymentTerms = PaymentTerms(terms)
	inv.InvoiceDate = invoiceDate.Time
	inv.DueDate = dueDate.Time
	inv.DiscountPercentage = numericToDecimal(discPct)
	inv.TaxPercentage = numericToDecimal(taxPct)
	inv.Subtotal = numericToDecimal(subtotal)
	inv.DiscountAmount = numericToDecimal(discAmt)
	inv.TaxAmount = numericToDecimal(taxAmt)
	inv.ShippingCost = numericToDecimal(shipping)
	inv.TotalAmount = numericToDecimal(total)
	inv.PaidAmount = numericToDecimal(paid)
	inv.BalanceDue = numericToDecimal(balance)
	if approvedAt.Valid {
		t := approvedAt.Time
		inv.ApprovedAt = &t
	}
	inv.CreatedAt = createdAt.Time
	inv.UpdatedAt = updatedAt.Time
	return inv, nil
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, shared.NotFoundf("invoice %d", id)
		}
		return Invoice{}, err
	}
	return inv, nil
}

func (r *txRepository) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	row := r.tx.QueryRow(ctx, `
		INSERT INTO invoices (
			number, invoice_type, status, contact_id, warehouse_id, invoice_date, due_date,
			payment_terms, discount_percentage, tax_percentage, subtotal, discount_amount,
			tax_amount, shipping_cost, total_amount, paid_amount, balance_due,
			inventory_updated, notes, created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		RETURNING id, created_at, updated_at`,
		inv.Number, string(inv.Type), string(inv.Status), inv.ContactID, inv.WarehouseID,
		inv.InvoiceDate, inv.DueDate, string(inv.PaymentTerms),
		decimalToNumeric(inv.DiscountPercentage), decimalToNumeric(inv.TaxPercentage),
		decimalToNumeric(inv.Subtotal), decimalToNumeric(inv.DiscountAmount),
		decimalToNumeric(inv.TaxAmount), decimalToNumeric(inv.ShippingCost),
		decimalToNumeric(inv.TotalAmount), decimalToNumeric(inv.PaidAmount),
		decimalToNumeric(inv.BalanceDue), inv.InventoryUpdated, inv.Notes, inv.CreatedBy)
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&inv.ID, &createdAt, &updatedAt); err != nil {
		return Invoice{}, err
	}
	inv.CreatedAt = createdAt.Time
	inv.UpdatedAt = updatedAt.Time
	return inv, nil
}

func (r *txRepository) UpdateInvoice(ctx context.Context, inv Invoice) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE invoices SET
			contact_id = $1, warehouse_id = $2, invoice_date = $3, due_date = $4, payment_terms = $5,
			discount_percentage = $6, tax_percentage = $7, subtotal = $8, discount_amount = $9,
			tax_amount = $10, shipping_cost = $11, total_amount = $12, paid_amount = $13,
			balance_due = $14, status = $15, inventory_updated = $16, notes = $17,
			approved_by = NULLIF($18, 0), approved_at = $19, updated_at = now()
		WHERE id = $20`,
		inv.ContactID, inv.WarehouseID, inv.InvoiceDate, inv.DueDate, string(inv.PaymentTerms),
		decimalToNumeric(inv.DiscountPercentage), decimalToNumeric(inv.TaxPercentage),
		decimalToNumeric(inv.Subtotal), decimalToNumeric(inv.DiscountAmount),
		decimalToNumeric(inv.TaxAmount), decimalToNumeric(inv.ShippingCost),
		decimalToNumeric(inv.TotalAmount), decimalToNumeric(inv.PaidAmount),
		decimalToNumeric(inv.BalanceDue), string(inv.Status), inv.InventoryUpdated, inv.Notes,
		inv.ApprovedBy, inv.ApprovedAt, inv.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("invoice %d", inv.ID)
	}
	return nil
}

func (r *txRepository) ReplaceItems(ctx context.Context, invoiceID int64, items []Item) ([]Item, error) {
	if _, err := r.tx.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, invoiceID); err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(items))
	for _, item := range items {
		row := r.tx.QueryRow(ctx, `
			INSERT INTO invoice_items (invoice_id, product_id, quantity, unit_price,
				discount_percentage, tax_percentage, line_total, sort_order)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			RETURNING id`,
			invoiceID, item.ProductID, decimalToNumeric(item.Quantity), decimalToNumeric(item.UnitPrice),
			decimalToNumeric(item.DiscountPercentage), decimalToNumeric(item.TaxPercentage),
			decimalToNumeric(item.LineTotal), item.SortOrder)
		if err := row.Scan(&item.ID); err != nil {
			return nil, err
		}
		item.InvoiceID = invoiceID
		out = append(out, item)
	}
	return out, nil
}

func scanItems(rows pgx.Rows) ([]Item, error) {
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var (
			item                         Item
			qty, price, disc, tax, total pgtype.Numeric
		)
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.ProductID, &qty, &price, &disc, &tax, &total, &item.SortOrder); err != nil {
			return nil, err
		}
		item.Quantity = numericToDecimal(qty)
		item.UnitPrice = numericToDecimal(price)
		item.DiscountPercentage = numericToDecimal(disc)
		item.TaxPercentage = numericToDecimal(tax)
		item.LineTotal = numericToDecimal(total)
		items = append(items, item)
	}
	return items, rows.Err()
}

const itemQuery = `
	SELECT id, invoice_id, product_id, quantity, unit_price, discount_percentage,
	       tax_percentage, line_total, sort_order
	FROM invoice_items WHERE invoice_id = $1 ORDER BY sort_order`

func (r *txRepository) GetItems(ctx context.Context, invoiceID int64) ([]Item, error) {
	rows, err := r.tx.Query(ctx, itemQuery, invoiceID)
	if err != nil {
		return nil, err
	}
	return scanItems(rows)
}

func (r *txRepository) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	row := r.tx.QueryRow(ctx, `
		INSERT INTO invoice_payments (invoice_id, amount, method, payment_date, reference, notes, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, created_at`,
		p.InvoiceID, decimalToNumeric(p.Amount), p.Method, p.PaymentDate, p.Reference, p.Notes, p.CreatedBy)
	var createdAt pgtype.Timestamptz
	if err := row.Scan(&p.ID, &createdAt); err != nil {
		return Payment{}, err
	}
	p.CreatedAt = createdAt.Time
	return p, nil
}

func (r *txRepository) GetPaymentForUpdate(ctx context.Context, paymentID int64) (Payment, error) {
	row := r.tx.QueryRow(ctx, `
		SELECT id, invoice_id, amount, method, payment_date, COALESCE(reference, ''),
		       COALESCE(notes, ''), COALESCE(created_by, 0), created_at
		FROM invoice_payments WHERE id = $1 FOR UPDATE`, paymentID)
	var (
		p           Payment
		amount      pgtype.Numeric
		paymentDate pgtype.Timestamptz
		createdAt   pgtype.Timestamptz
	)
	if err := row.Scan(&p.ID, &p.InvoiceID, &amount, &p.Method, &paymentDate,
		&p.Reference, &p.Notes, &p.CreatedBy, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, shared.NotFoundf("payment %d", paymentID)
		}
		return Payment{}, err
	}
	p.Amount = numericToDecimal(amount)
	p.PaymentDate = paymentDate.Time
	p.CreatedAt = createdAt.Time
	return p, nil
}

func (r *txRepository) DeletePayment(ctx context.Context, paymentID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM invoice_payments WHERE id = $1`, paymentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("payment %d", paymentID)
	}
	return nil
}

func (r *txRepository) GetContact(ctx context.Context, contactID int64) (ContactRef, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT id, name, contact_type, current_balance FROM contacts WHERE id = $1`, contactID)
	var (
		ref     ContactRef
		balance pgtype.Numeric
	)
	if err := row.Scan(&ref.ID, &ref.Name, &ref.Type, &balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ContactRef{}, shared.NotFoundf("contact %d", contactID)
		}
		return ContactRef{}, err
	}
	ref.Balance = numericToDecimal(balance)
	return ref, nil
}

func (r *txRepository) ApplyContactBalance(ctx context.Context, contactID int64, delta decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE contacts SET current_balance = current_balance + $1, updated_at = now() WHERE id = $2`,
		decimalToNumeric(delta), contactID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("contact %d", contactID)
	}
	return nil
}

func (r *txRepository) NextSequence(ctx context.Context, invoiceType InvoiceType, period string) (int, error) {
	var seq int
	err := r.tx.QueryRow(ctx, `
		INSERT INTO invoice_sequences (invoice_type, period, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (invoice_type, period)
		DO UPDATE SET last_value = invoice_sequences.last_value + 1
		RETURNING last_value`,
		string(invoiceType), period).Scan(&seq)
	return seq, err
}

// GetInvoice reads an invoice with its items, without locking.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, shared.NotFoundf("invoice %d", id)
		}
		return Invoice{}, err
	}
	rows, err := r.pool.Query(ctx, itemQuery, id)
	if err != nil {
		return Invoice{}, err
	}
	inv.Items, err = scanItems(rows)
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// ListInvoices lists invoice headers matching the filter, newest first.
func (r *Repository) ListInvoices(ctx context.Context, filter Filter) ([]Invoice, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Type != "" {
		add("invoice_type = $%d", string(filter.Type))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.ContactID != 0 {
		add("contact_id = $%d", filter.ContactID)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM invoices`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 50
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	query := fmt.Sprintf(`SELECT %s FROM invoices%s ORDER BY invoice_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		invoiceColumns, where, len(args)+1, len(args)+2)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, total, rows.Err()
}

// ListOverdue lists unpaid invoices whose due date has passed.
func (r *Repository) ListOverdue(ctx context.Context, asOf time.Time) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE status IN ('approved', 'partially_paid') AND due_date < $1
		ORDER BY due_date`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// ListPayments lists payments for one invoice, oldest first.
func (r *Repository) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, invoice_id, amount, method, payment_date, COALESCE(reference, ''),
		       COALESCE(notes, ''), COALESCE(created_by, 0), created_at
		FROM invoice_payments WHERE invoice_id = $1 ORDER BY payment_date, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var (
			p           Payment
			amount      pgtype.Numeric
			paymentDate pgtype.Timestamptz
			createdAt   pgtype.Timestamptz
		)
		if err := rows.Scan(&p.ID, &p.InvoiceID, &amount, &p.Method, &paymentDate,
			&p.Reference, &p.Notes, &p.CreatedBy, &createdAt); err != nil {
			return nil, err
		}
		p.Amount = numericToDecimal(amount)
		p.PaymentDate = paymentDate.Time
		p.CreatedAt = createdAt.Time
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// DashboardTotals aggregates open and overdue exposure.
func (r *Repository) DashboardTotals(ctx context.Context, asOf time.Time) (DashboardTotals, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE status = 'draft'),
			count(*) FILTER (WHERE status IN ('approved', 'partially_paid')),
			count(*) FILTER (WHERE status IN ('approved', 'partially_paid') AND due_date < $1),
			COALESCE(sum(balance_due) FILTER (WHERE invoice_type = 'sales' AND status IN ('approved', 'partially_paid')), 0),
			COALESCE(sum(balance_due) FILTER (WHERE invoice_type = 'purchase' AND status IN ('approved', 'partially_paid')), 0)
		FROM invoices`, asOf)
	var (
		totals              DashboardTotals
		receivable, payable pgtype.Numeric
	)
	if err := row.Scan(&totals.DraftCount, &totals.ApprovedCount, &totals.OverdueCount, &receivable, &payable); err != nil {
		return DashboardTotals{}, err
	}
	totals.TotalReceivable = numericToDecimal(receivable)
	totals.TotalPayable = numericToDecimal(payable)
	return totals, nil
}
