package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

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

func nullInt64(v int64) pgtype.Int8 {
	return pgtype.Int8{Int64: v, Valid: v != 0}
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by the service.
type TxRepository interface {
	LedgerStore
}

type txRepository struct {
	tx pgx.Tx
}

// NewLedgerStore exposes the ledger persistence over an existing pgx
// transaction. Document engines embed it in their own TxRepository so their
// stock movements share the document's transaction.
func NewLedgerStore(tx pgx.Tx) LedgerStore {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const stockColumns = `id, warehouse_id, product_id, quantity, reserved_quantity, min_quantity, max_quantity, created_at, updated_at`

func scanStock(row pgx.Row) (Stock, error) {
	var (
		s                     Stock
		qty, reserved, mn, mx pgtype.Numeric
		createdAt, updatedAt  pgtype.Timestamptz
	)
	if err := row.Scan(&s.ID, &s.WarehouseID, &s.ProductID, &qty, &reserved, &mn, &mx, &createdAt, &updatedAt); err != nil {
		return Stock{}, err
	}
	s.Quantity = numericToDecimal(qty)
	s.ReservedQuantity = numericToDecimal(reserved)
	s.MinQuantity = numericToDecimal(mn)
	s.MaxQuantity = numericToDecimal(mx)
	s.CreatedAt = createdAt.Time
	s.UpdatedAt = updatedAt.Time
	return s, nil
}

func (r *txRepository) GetStockForUpdate(ctx context.Context, warehouseID, productID int64) (Stock, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+stockColumns+` FROM stocks WHERE warehouse_id = $1 AND product_id = $2 FOR UPDATE`,
		warehouseID, productID)
	stock, err := scanStock(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Stock{}, ErrStockNotFound
		}
		return Stock{}, err
	}
	return stock, nil
}

func (r *txRepository) CreateStock(ctx context.Context, stock Stock) (Stock, error) {
	row := r.tx.QueryRow(ctx, `
		INSERT INTO stocks (warehouse_id, product_id, quantity, reserved_quantity, min_quantity, max_quantity)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+stockColumns,
		stock.WarehouseID, stock.ProductID,
		decimalToNumeric(stock.Quantity), decimalToNumeric(stock.ReservedQuantity),
		decimalToNumeric(stock.MinQuantity), decimalToNumeric(stock.MaxQuantity))
	return scanStock(row)
}

func (r *txRepository) UpdateStock(ctx context.Context, stock Stock) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE stocks
		SET quantity = $1, reserved_quantity = $2, min_quantity = $3, max_quantity = $4, updated_at = now()
		WHERE id = $5`,
		decimalToNumeric(stock.Quantity), decimalToNumeric(stock.ReservedQuantity),
		decimalToNumeric(stock.MinQuantity), decimalToNumeric(stock.MaxQuantity), stock.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStockNotFound
	}
	return nil
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	row := r.tx.QueryRow(ctx, `
		INSERT INTO stock_movements (
			warehouse_id, product_id, movement_type, quantity, quantity_before, quantity_after,
			from_warehouse_id, to_warehouse_id, reference_type, reference_id, reference_number,
			notes, created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id, created_at`,
		m.WarehouseID, m.ProductID, string(m.Type),
		decimalToNumeric(m.Quantity), decimalToNumeric(m.QuantityBefore), decimalToNumeric(m.QuantityAfter),
		nullInt64(m.FromWarehouseID), nullInt64(m.ToWarehouseID),
		m.ReferenceType, nullInt64(m.ReferenceID), m.ReferenceNumber,
		m.Notes, nullInt64(m.CreatedBy))
	var createdAt pgtype.Timestamptz
	if err := row.Scan(&m.ID, &createdAt); err != nil {
		return Movement{}, err
	}
	m.CreatedAt = createdAt.Time
	return m, nil
}

// GetStock reads a single stock row without locking.
func (r *Repository) GetStock(ctx context.Context, warehouseID, productID int64) (Stock, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+stockColumns+` FROM stocks WHERE warehouse_id = $1 AND product_id = $2`,
		warehouseID, productID)
	stock, err := scanStock(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Stock{}, ErrStockNotFound
		}
		return Stock{}, err
	}
	return stock, nil
}

// ListStocks lists stock rows matching the filter, newest first, plus the
// total count for pagination.
func (r *Repository) ListStocks(ctx context.Context, filter StockFilter) ([]Stock, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.WarehouseID != 0 {
		add("warehouse_id = $%d", filter.WarehouseID)
	}
	if filter.ProductID != 0 {
		add("product_id = $%d", filter.ProductID)
	}
	if filter.LowOnly {
		conds = append(conds, "min_quantity > 0 AND quantity <= min_quantity")
	}
	if filter.OutOnly {
		conds = append(conds, "quantity <= 0")
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM stocks`+where, args...).Scan(&total); err != nil {
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
	query := fmt.Sprintf(`SELECT %s FROM stocks%s ORDER BY updated_at DESC LIMIT $%d OFFSET $%d`,
		stockColumns, where, len(args)+1, len(args)+2)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var stocks []Stock
	for rows.Next() {
		stock, err := scanStock(rows)
		if err != nil {
			return nil, 0, err
		}
		stocks = append(stocks, stock)
	}
	return stocks, total, rows.Err()
}

// ListMovements reads the movement log, newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.WarehouseID != 0 {
		add("warehouse_id = $%d", filter.WarehouseID)
	}
	if filter.ProductID != 0 {
		add("product_id = $%d", filter.ProductID)
	}
	if filter.Type != "" {
		add("movement_type = $%d", string(filter.Type))
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= $%d", filter.To)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	query := fmt.Sprintf(`
		SELECT id, warehouse_id, product_id, movement_type, quantity, quantity_before, quantity_after,
		       COALESCE(from_warehouse_id, 0), COALESCE(to_warehouse_id, 0),
		       COALESCE(reference_type, ''), COALESCE(reference_id, 0), COALESCE(reference_number, ''),
		       COALESCE(notes, ''), COALESCE(created_by, 0), created_at
		FROM stock_movements%s ORDER BY created_at DESC, id DESC LIMIT $%d`, where, len(args)+1)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		var (
			m                  Movement
			movementType       string
			qty, before, after pgtype.Numeric
			createdAt          pgtype.Timestamptz
		)
		if err := rows.Scan(&m.ID, &m.WarehouseID, &m.ProductID, &movementType,
			&qty, &before, &after,
			&m.FromWarehouseID, &m.ToWarehouseID,
			&m.ReferenceType, &m.ReferenceID, &m.ReferenceNumber,
			&m.Notes, &m.CreatedBy, &createdAt); err != nil {
			return nil, err
		}
		m.Type = MovementType(movementType)
		m.Quantity = numericToDecimal(qty)
		m.QuantityBefore = numericToDecimal(before)
		m.QuantityAfter = numericToDecimal(after)
		m.CreatedAt = createdAt.Time
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// Statistics aggregates the warehouse summary. warehouseID zero spans all
// warehouses. Stock value prices quantities at the product cost price.
func (r *Repository) Statistics(ctx context.Context, warehouseID int64) (Statistics, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT
			count(DISTINCT s.product_id),
			COALESCE(sum(s.quantity), 0),
			COALESCE(sum(s.reserved_quantity), 0),
			COALESCE(sum(s.quantity * p.cost_price), 0),
			count(*) FILTER (WHERE s.min_quantity > 0 AND s.quantity <= s.min_quantity),
			count(*) FILTER (WHERE s.quantity <= 0)
		FROM stocks s
		JOIN products p ON p.id = s.product_id
		WHERE $1::bigint = 0 OR s.warehouse_id = $1`, warehouseID)

	stats := Statistics{WarehouseID: warehouseID}
	var items, reserved, value pgtype.Numeric
	if err := row.Scan(&stats.TotalProducts, &items, &reserved, &value,
		&stats.LowStockCount, &stats.OutOfStockCount); err != nil {
		return Statistics{}, err
	}
	stats.TotalItems = numericToDecimal(items)
	stats.TotalReserved = numericToDecimal(reserved)
	stats.TotalValue = numericToDecimal(value)
	return stats, nil
}
