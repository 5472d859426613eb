package production

import (
	"context"
	"encoding/json"
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

// Repository persists production data in PostgreSQL.
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

// WithTx executes the callback inside a repeatable-read transaction carrying
// the inventory ledger store.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("production repository not initialised")
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

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const bomColumns = `id, product_id, version, is_active, output_quantity, labor_cost, overhead_cost,
	estimated_material_cost, total_cost_per_unit, COALESCE(notes, ''), created_at, updated_at`

func scanBOM(row pgx.Row) (BOM, error) {
	var (
		b                       BOM
		output, labor, overhead pgtype.Numeric
		material, perUnit       pgtype.Numeric
		createdAt, updatedAt    pgtype.Timestamptz
	)
	err := row.Scan(&b.ID, &b.ProductID, &b.Version, &b.IsActive, &output, &labor, &overhead,
		&material, &perUnit, &b.Notes, &createdAt, &updatedAt)
	if err != nil {
		return BOM{}, err
	}
	b.OutputQuantity = numericToDecimal(output)
	b.LaborCost = numericToDecimal(labor)
	b.OverheadCost = numericToDecimal(overhead)
	b.EstimatedMaterialCost = numericToDecimal(material)
	b.TotalCostPerUnit = numericToDecimal(perUnit)
	b.CreatedAt = createdAt.Time
	b.UpdatedAt = updatedAt.Time
	return b, nil
}

func loadComponents(ctx context.Context, q querier, bomID int64) ([]BOMComponent, error) {
	rows, err := q.Query(ctx, `
		SELECT id, bom_id, product_id, quantity, unit_cost, is_variable, sequence
		FROM bom_components WHERE bom_id = $1 ORDER BY sequence`, bomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var components []BOMComponent
	for rows.Next() {
		var (
			c         BOMComponent
			qty, cost pgtype.Numeric
		)
		if err := rows.Scan(&c.ID, &c.BOMID, &c.ProductID, &qty, &cost, &c.IsVariable, &c.Sequence); err != nil {
			return nil, err
		}
		c.Quantity = numericToDecimal(qty)
		c.UnitCost = numericToDecimal(cost)
		components = append(components, c)
	}
	return components, rows.Err()
}

func (r *txRepository) GetBOMForUpdate(ctx context.Context, id int64) (BOM, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+bomColumns+` FROM boms WHERE id = $1 FOR UPDATE`, id)
	bom, err := scanBOM(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BOM{}, shared.NotFoundf("bill of materials %d", id)
		}
		return BOM{}, err
	}
	bom.Components, err = loadComponents(ctx, r.tx, bom.ID)
	return bom, err
}

func (r *txRepository) InsertBOM(ctx context.Context, bom BOM) (BOM, error) {
	row := r.tx.QueryRow(ctx, `
		INSERT INTO boms (product_id, version, is_active, output_quantity, labor_cost, overhead_cost,
			estimated_material_cost, total_cost_per_unit, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id, created_at, updated_at`,
		bom.ProductID, bom.Version, bom.IsActive, decimalToNumeric(bom.OutputQuantity),
		decimalToNumeric(bom.LaborCost), decimalToNumeric(bom.OverheadCost),
		decimalToNumeric(bom.EstimatedMaterialCost), decimalToNumeric(bom.TotalCostPerUnit), bom.Notes)
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&bom.ID, &createdAt, &updatedAt); err != nil {
		return BOM{}, err
	}
	bom.CreatedAt = createdAt.Time
	bom.UpdatedAt = updatedAt.Time
	return bom, nil
}

func (r *txRepository) UpdateBOM(ctx context.Context, bom BOM) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE boms SET version = $1, is_active = $2, output_quantity = $3, labor_cost = $4,
			overhead_cost = $5, estimated_material_cost = $6, total_cost_per_unit = $7,
			notes = $8, updated_at = now()
		WHERE id = $9`,
		bom.Version, bom.IsActive, decimalToNumeric(bom.OutputQuantity),
		decimalToNumeric(bom.LaborCost), decimalToNumeric(bom.OverheadCost),
		decimalToNumeric(bom.EstimatedMaterialCost), decimalToNumeric(bom.TotalCostPerUnit),
		bom.Notes, bom.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("bill of materials %d", bom.ID)
	}
	return nil
}

func (r *txRepository) ReplaceComponents(ctx context.Context, bomID int64, components []BOMComponent) ([]BOMComponent, error) {
	if _, err := r.tx.Exec(ctx, `DELETE FROM bom_components WHERE bom_id = $1`, bomID); err != nil {
		return nil, err
	}
	out := make([]BOMComponent, 0, len(components))
	for _, c := range components {
		row := r.tx.QueryRow(ctx, `
			INSERT INTO bom_components (bom_id, product_id, quantity, unit_cost, is_variable, sequence)
			VALUES ($1,$2,$3,$4,$5,$6)
			RETURNING id`,
			bomID, c.ProductID, decimalToNumeric(c.Quantity), decimalToNumeric(c.UnitCost), c.IsVariable, c.Sequence)
		if err := row.Scan(&c.ID); err != nil {
			return nil, err
		}
		c.BOMID = bomID
		out = append(out, c)
	}
	return out, nil
}

func (r *txRepository) DeactivateOtherBOMs(ctx context.Context, productID, exceptID int64) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE boms SET is_active = false, updated_at = now() WHERE product_id = $1 AND id <> $2 AND is_active`,
		productID, exceptID)
	return err
}

func (r *txRepository) GetActiveBOM(ctx context.Context, productID int64) (BOM, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+bomColumns+` FROM boms WHERE product_id = $1 AND is_active`, productID)
	bom, err := scanBOM(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BOM{}, shared.NotFoundf("active bill of materials for product %d", productID)
		}
		return BOM{}, err
	}
	bom.Components, err = loadComponents(ctx, r.tx, bom.ID)
	return bom, err
}

const orderColumns = `id, number, order_type, status, product_id, bom_id, warehouse_id,
	planned_quantity, actual_quantity, material_cost, labor_cost, overhead_cost,
	scheduled_date, started_at, completed_at, completed_by, COALESCE(parent_order_id, 0),
	COALESCE(phase, 0), COALESCE(notes, ''), COALESCE(created_by, 0), created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o                               Order
		orderType, status               string
		planned, actual                 pgtype.Numeric
		material, labor, overhead       pgtype.Numeric
		scheduled, started, completedAt pgtype.Timestamptz
		createdAt, updatedAt            pgtype.Timestamptz
		completedBy                     pgtype.Int8
	)
	err := row.Scan(&o.ID, &o.Number, &orderType, &status, &o.ProductID, &o.BOMID, &o.WarehouseID,
		&planned, &actual, &material, &labor, &overhead,
		&scheduled, &started, &completedAt, &completedBy, &o.ParentOrderID, &o.Phase,
		&o.Notes, &o.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return Order{}, err
	}
	o.Type = OrderType(orderType)
	o.Status = OrderStatus(status)
	o.PlannedQuantity = numericToDecimal(planned)
	o.ActualQuantity = numericToDecimal(actual)
	o.MaterialCost = numericToDecimal(material)
	o.LaborCost = numericToDecimal(labor)
	o.OverheadCost = numericToDecimal(overhead)
	o.ScheduledDate = scheduled.Time
	if started.Valid {
		t := started.Time
		o.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		o.CompletedAt = &t
	}
	if completedBy.Valid {
		v := completedBy.Int64
		o.CompletedBy = &v
	}
	o.CreatedAt = createdAt.Time
	o.UpdatedAt = updatedAt.Time
	return o, nil
}

func (r *txRepository) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM production_orders WHERE id = $1 FOR UPDATE`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, shared.NotFoundf("production order %d", id)
		}
		return Order{}, err
	}
	return order, nil
}

func (r *txRepository) InsertOrder(ctx context.Context, order Order) (Order, error) {
	row := r.tx.QueryRow(ctx, `
		INSERT INTO production_orders (
			number, order_type, status, product_id, bom_id, warehouse_id,
			planned_quantity, actual_quantity, material_cost, labor_cost, overhead_cost,
			scheduled_date, parent_order_id, phase, notes, created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NULLIF($13,0),NULLIF($14,0),$15,$16)
		RETURNING id, created_at, updated_at`,
		order.Number, string(order.Type), string(order.Status), order.ProductID, order.BOMID,
		order.WarehouseID, decimalToNumeric(order.PlannedQuantity), decimalToNumeric(order.ActualQuantity),
		decimalToNumeric(order.MaterialCost), decimalToNumeric(order.LaborCost),
		decimalToNumeric(order.OverheadCost), order.ScheduledDate,
		order.ParentOrderID, order.Phase, order.Notes, order.CreatedBy)
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&order.ID, &createdAt, &updatedAt); err != nil {
		return Order{}, err
	}
	order.CreatedAt = createdAt.Time
	order.UpdatedAt = updatedAt.Time
	return order, nil
}

func (r *txRepository) UpdateOrder(ctx context.Context, order Order) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE production_orders SET
			status = $1, actual_quantity = $2, material_cost = $3, labor_cost = $4,
			overhead_cost = $5, started_at = $6, completed_at = $7, completed_by = $8,
			notes = $9, updated_at = now()
		WHERE id = $10`,
		string(order.Status), decimalToNumeric(order.ActualQuantity), decimalToNumeric(order.MaterialCost),
		decimalToNumeric(order.LaborCost), decimalToNumeric(order.OverheadCost),
		order.StartedAt, order.CompletedAt, order.CompletedBy, order.Notes, order.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("production order %d", order.ID)
	}
	return nil
}

func (r *txRepository) InsertOrderItems(ctx context.Context, orderID int64, items []OrderItem) ([]OrderItem, error) {
	out := make([]OrderItem, 0, len(items))
	for _, item := range items {
		row := r.tx.QueryRow(ctx, `
			INSERT INTO production_order_items (order_id, product_id, planned_quantity, actual_quantity,
				unit_cost, total_cost, is_variable, reserved)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			RETURNING id`,
			orderID, item.ProductID, decimalToNumeric(item.PlannedQuantity),
			decimalToNumeric(item.ActualQuantity), decimalToNumeric(item.UnitCost),
			decimalToNumeric(item.TotalCost), item.IsVariable, item.Reserved)
		if err := row.Scan(&item.ID); err != nil {
			return nil, err
		}
		item.OrderID = orderID
		out = append(out, item)
	}
	return out, nil
}

func scanOrderItems(rows pgx.Rows) ([]OrderItem, error) {
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		var (
			item                       OrderItem
			planned, actual, cost, tot pgtype.Numeric
		)
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &planned, &actual,
			&cost, &tot, &item.IsVariable, &item.Reserved); err != nil {
			return nil, err
		}
		item.PlannedQuantity = numericToDecimal(planned)
		item.ActualQuantity = numericToDecimal(actual)
		item.UnitCost = numericToDecimal(cost)
		item.TotalCost = numericToDecimal(tot)
		items = append(items, item)
	}
	return items, rows.Err()
}

const orderItemQuery = `
	SELECT id, order_id, product_id, planned_quantity, actual_quantity, unit_cost, total_cost,
	       is_variable, reserved
	FROM production_order_items WHERE order_id = $1 ORDER BY id`

func (r *txRepository) GetOrderItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := r.tx.Query(ctx, orderItemQuery, orderID)
	if err != nil {
		return nil, err
	}
	return scanOrderItems(rows)
}

func (r *txRepository) UpdateOrderItem(ctx context.Context, item OrderItem) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE production_order_items
		SET actual_quantity = $1, total_cost = $2, reserved = $3
		WHERE id = $4`,
		decimalToNumeric(item.ActualQuantity), decimalToNumeric(item.TotalCost), item.Reserved, item.ID)
	return err
}

func (r *txRepository) InsertPhase(ctx context.Context, phase Phase) (Phase, error) {
	snapshot, err := json.Marshal(phase.Components)
	if err != nil {
		return Phase{}, err
	}
	row := r.tx.QueryRow(ctx, `
		INSERT INTO production_phases (order_id, phase_number, name, status, components)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, created_at`,
		phase.OrderID, phase.PhaseNumber, phase.Name, string(phase.Status), snapshot)
	var createdAt pgtype.Timestamptz
	if err := row.Scan(&phase.ID, &createdAt); err != nil {
		return Phase{}, err
	}
	phase.CreatedAt = createdAt.Time
	return phase, nil
}

func (r *txRepository) CompletePhase(ctx context.Context, orderID int64, phaseNumber int, completedAt time.Time) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE production_phases SET status = $1, completed_at = $2
		WHERE order_id = $3 AND phase_number = $4`,
		string(StatusCompleted), completedAt, orderID, phaseNumber)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("phase %d of order %d", phaseNumber, orderID)
	}
	return nil
}

func (r *txRepository) NextOrderSequence(ctx context.Context, orderType OrderType, year string) (int, error) {
	var seq int
	err := r.tx.QueryRow(ctx, `
		INSERT INTO production_sequences (order_type, period, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (order_type, period)
		DO UPDATE SET last_value = production_sequences.last_value + 1
		RETURNING last_value`,
		string(orderType), year).Scan(&seq)
	return seq, err
}

// GetBOM reads a BOM with components, without locking.
func (r *Repository) GetBOM(ctx context.Context, id int64) (BOM, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+bomColumns+` FROM boms WHERE id = $1`, id)
	bom, err := scanBOM(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BOM{}, shared.NotFoundf("bill of materials %d", id)
		}
		return BOM{}, err
	}
	bom.Components, err = loadComponents(ctx, r.pool, bom.ID)
	return bom, err
}

// ListBOMs lists a product's BOM versions, active first.
func (r *Repository) ListBOMs(ctx context.Context, productID int64) ([]BOM, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+bomColumns+` FROM boms WHERE product_id = $1 ORDER BY is_active DESC, id DESC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var boms []BOM
	for rows.Next() {
		bom, err := scanBOM(rows)
		if err != nil {
			return nil, err
		}
		boms = append(boms, bom)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range boms {
		boms[i].Components, err = loadComponents(ctx, r.pool, boms[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return boms, nil
}

// GetOrder reads an order with its items, without locking.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM production_orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, shared.NotFoundf("production order %d", id)
		}
		return Order{}, err
	}
	rows, err := r.pool.Query(ctx, orderItemQuery, id)
	if err != nil {
		return Order{}, err
	}
	order.Items, err = scanOrderItems(rows)
	return order, err
}

// ListOrders lists orders matching the filter, newest first.
func (r *Repository) ListOrders(ctx context.Context, filter OrderFilter) ([]Order, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Type != "" {
		add("order_type = $%d", string(filter.Type))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.ProductID != 0 {
		add("product_id = $%d", filter.ProductID)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM production_orders`+where, args...).Scan(&total); err != nil {
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
	query := fmt.Sprintf(`SELECT %s FROM production_orders%s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)+1, len(args)+2)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	return orders, total, rows.Err()
}

// ListPhases lists the phase snapshots of an order in phase order.
func (r *Repository) ListPhases(ctx context.Context, orderID int64) ([]Phase, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, phase_number, name, status, components, started_at, completed_at, created_at
		FROM production_phases WHERE order_id = $1 ORDER BY phase_number`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var phases []Phase
	for rows.Next() {
		var (
			p                  Phase
			status             string
			snapshot           []byte
			started, completed pgtype.Timestamptz
			createdAt          pgtype.Timestamptz
		)
		if err := rows.Scan(&p.ID, &p.OrderID, &p.PhaseNumber, &p.Name, &status, &snapshot,
			&started, &completed, &createdAt); err != nil {
			return nil, err
		}
		p.Status = OrderStatus(status)
		if len(snapshot) > 0 {
			if err := json.Unmarshal(snapshot, &p.Components); err != nil {
				return nil, err
			}
		}
		if started.Valid {
			t := started.Time
			p.StartedAt = &t
		}
		if completed.Valid {
			t := completed.Time
			p.CompletedAt = &t
		}
		p.CreatedAt = createdAt.Time
		phases = append(phases, p)
	}
	return phases, rows.Err()
}

// History lists a product's completed orders, newest first.
func (r *Repository) History(ctx context.Context, productID int64, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM production_orders
		WHERE product_id = $1 AND status = 'completed'
		ORDER BY completed_at DESC LIMIT $2`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// AvailableQuantity reads quantity minus reservations, zero when the pair
// has never moved.
func (r *Repository) AvailableQuantity(ctx context.Context, warehouseID, productID int64) (decimal.Decimal, error) {
	var qty, reserved pgtype.Numeric
	err := r.pool.QueryRow(ctx,
		`SELECT quantity, reserved_quantity FROM stocks WHERE warehouse_id = $1 AND product_id = $2`,
		warehouseID, productID).Scan(&qty, &reserved)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return numericToDecimal(qty).Sub(numericToDecimal(reserved)), nil
}

// Statistics aggregates order counts by status and total completed output.
func (r *Repository) Statistics(ctx context.Context) (Statistics, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, count(*) FROM production_orders GROUP BY status`)
	if err != nil {
		return Statistics{}, err
	}
	defer rows.Close()

	stats := Statistics{OrdersByStatus: make(map[OrderStatus]int)}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return Statistics{}, err
		}
		stats.OrdersByStatus[OrderStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return Statistics{}, err
	}

	var output pgtype.Numeric
	err = r.pool.QueryRow(ctx, `
		SELECT COALESCE(sum(actual_quantity), 0) FROM production_orders
		WHERE status = 'completed' AND order_type = 'assembly'`).Scan(&output)
	if err != nil {
		return Statistics{}, err
	}
	stats.TotalOutput = numericToDecimal(output)
	return stats, nil
}
