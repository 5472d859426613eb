package products

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/masterdata/shared"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error)
	Get(ctx context.Context, id int64) (Product, error)
	Create(ctx context.Context, product Product) (Product, error)
	Update(ctx context.Context, id int64, product Product) error
	Delete(ctx context.Context, id int64) error
	HasStock(ctx context.Context, id int64) (bool, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const columns = `id, code, name, COALESCE(description, ''), unit, selling_price, cost_price,
	is_assembly, is_active, created_at, updated_at`

func scan(row pgx.Row) (Product, error) {
	var (
		p                    Product
		selling, cost        pgtype.Numeric
		createdAt, updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.Unit, &selling, &cost,
		&p.IsAssembly, &p.IsActive, &createdAt, &updatedAt); err != nil {
		return Product{}, err
	}
	p.SellingPrice = numericToDecimal(selling)
	p.CostPrice = numericToDecimal(cost)
	p.CreatedAt = createdAt.Time
	p.UpdatedAt = updatedAt.Time
	return p, nil
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

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
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
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + columns + ` FROM products` + where + ` ORDER BY name` +
		` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, filters.Limit, filters.Offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Product, error) {
	p, err := scan(r.db.QueryRow(ctx, `SELECT `+columns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, internalShared.NotFoundf("product %d", id)
		}
		return Product{}, err
	}
	return p, nil
}

func (r *repository) Create(ctx context.Context, product Product) (Product, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO products (code, name, description, unit, selling_price, cost_price, is_assembly, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id, created_at, updated_at`,
		product.Code, product.Name, product.Description, product.Unit,
		decimalToNumeric(product.SellingPrice), decimalToNumeric(product.CostPrice),
		product.IsAssembly, product.IsActive)
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&product.ID, &createdAt, &updatedAt); err != nil {
		if isUniqueViolation(err) {
			return Product{}, internalShared.Duplicatef("product code %s already exists", product.Code)
		}
		return Product{}, err
	}
	product.CreatedAt = createdAt.Time
	product.UpdatedAt = updatedAt.Time
	return product, nil
}

func (r *repository) Update(ctx context.Context, id int64, product Product) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE products SET code = $1, name = $2, description = $3, unit = $4,
			selling_price = $5, cost_price = $6, is_assembly = $7, is_active = $8, updated_at = now()
		WHERE id = $9`,
		product.Code, product.Name, product.Description, product.Unit,
		decimalToNumeric(product.SellingPrice), decimalToNumeric(product.CostPrice),
		product.IsAssembly, product.IsActive, id)
	if err != nil {
		if isUniqueViolation(err) {
			return internalShared.Duplicatef("product code %s already exists", product.Code)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return internalShared.NotFoundf("product %d", id)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return internalShared.NotFoundf("product %d", id)
	}
	return nil
}

func (r *repository) HasStock(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM stocks WHERE product_id = $1 AND quantity > 0)`, id).Scan(&exists)
	return exists, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
