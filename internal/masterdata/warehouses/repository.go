package warehouses

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/masterdata/shared"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Warehouse, int, error)
	Get(ctx context.Context, id int64) (Warehouse, error)
	Create(ctx context.Context, warehouse Warehouse) (Warehouse, error)
	Update(ctx context.Context, id int64, warehouse Warehouse) error
	Delete(ctx context.Context, id int64) error
	SetDefault(ctx context.Context, id int64) error
	HasStock(ctx context.Context, id int64) (bool, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const columns = `id, code, name, COALESCE(address, ''), is_default, is_active, created_at, updated_at`

func scan(row pgx.Row) (Warehouse, error) {
	var (
		w                    Warehouse
		createdAt, updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&w.ID, &w.Code, &w.Name, &w.Address, &w.IsDefault, &w.IsActive,
		&createdAt, &updatedAt); err != nil {
		return Warehouse{}, err
	}
	w.CreatedAt = createdAt.Time
	w.UpdatedAt = updatedAt.Time
	return w, nil
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Warehouse, int, error) {
	filters.Normalize()
	where := ` WHERE 1=1`
	args := []interface{}{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (name ILIKE $` + n + ` OR code ILIKE $` + n + `)`
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		where += ` AND is_active = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM warehouses`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + columns + ` FROM warehouses` + where + ` ORDER BY is_default DESC, name` +
		` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, filters.Limit, filters.Offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Warehouse
	for rows.Next() {
		w, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, w)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Warehouse, error) {
	w, err := scan(r.db.QueryRow(ctx, `SELECT `+columns+` FROM warehouses WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Warehouse{}, internalShared.NotFoundf("warehouse %d", id)
		}
		return Warehouse{}, err
	}
	return w, nil
}

func (r *repository) Create(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO warehouses (code, name, address, is_default, is_active)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, created_at, updated_at`,
		warehouse.Code, warehouse.Name, warehouse.Address, warehouse.IsDefault, warehouse.IsActive)
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&warehouse.ID, &createdAt, &updatedAt); err != nil {
		if isUniqueViolation(err) {
			return Warehouse{}, internalShared.Duplicatef("warehouse code %s already exists", warehouse.Code)
		}
		return Warehouse{}, err
	}
	warehouse.CreatedAt = createdAt.Time
	warehouse.UpdatedAt = updatedAt.Time
	return warehouse, nil
}

func (r *repository) Update(ctx context.Context, id int64, warehouse Warehouse) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE warehouses SET code = $1, name = $2, address = $3, is_active = $4, updated_at = now()
		WHERE id = $5`,
		warehouse.Code, warehouse.Name, warehouse.Address, warehouse.IsActive, id)
	if err != nil {
		if isUniqueViolation(err) {
			return internalShared.Duplicatef("warehouse code %s already exists", warehouse.Code)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return internalShared.NotFoundf("warehouse %d", id)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM warehouses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return internalShared.NotFoundf("warehouse %d", id)
	}
	return nil
}

// SetDefault demotes every other warehouse and promotes the target in a
// single transaction so there is always exactly one default.
func (r *repository) SetDefault(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE warehouses SET is_default = false, updated_at = now() WHERE is_default AND id <> $1`, id); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx,
		`UPDATE warehouses SET is_default = true, updated_at = now() WHERE id = $1 AND is_active`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return internalShared.NotFoundf("active warehouse %d", id)
	}
	return tx.Commit(ctx)
}

func (r *repository) HasStock(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM stocks WHERE warehouse_id = $1 AND quantity > 0)`, id).Scan(&exists)
	return exists, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
