package contacts

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
	List(ctx context.Context, filters shared.ListFilters) ([]Contact, int, error)
	Get(ctx context.Context, id int64) (Contact, error)
	Create(ctx context.Context, contact Contact) (Contact, error)
	Update(ctx context.Context, id int64, contact Contact) error
	Delete(ctx context.Context, id int64) error
	HasInvoices(ctx context.Context, id int64) (bool, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const columns = `id, code, name, contact_type, COALESCE(email, ''), COALESCE(phone, ''),
	COALESCE(address, ''), credit_limit, current_balance, is_active, created_at, updated_at`

func scan(row pgx.Row) (Contact, error) {
	var (
		c                    Contact
		limit, balance       pgtype.Numeric
		createdAt, updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.ContactType, &c.Email, &c.Phone, &c.Address,
		&limit, &balance, &c.IsActive, &createdAt, &updatedAt); err != nil {
		return Contact{}, err
	}
	c.CreditLimit = numericToDecimal(limit)
	c.CurrentBalance = numericToDecimal(balance)
	c.CreatedAt = createdAt.Time
	c.UpdatedAt = updatedAt.Time
	return c, nil
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

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Contact, int, error) {
	filters.Normalize()
	where := ` WHERE 1=1`
	args := []interface{}{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (name ILIKE $` + n + ` OR code ILIKE $` + n + `)`
	}
	if filters.ContactType != "" {
		args = append(args, filters.ContactType)
		n := strconv.Itoa(len(args))
		where += ` AND (contact_type = $` + n + ` OR contact_type = 'both')`
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		where += ` AND is_active = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM contacts`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + columns + ` FROM contacts` + where + ` ORDER BY name` +
		` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, filters.Limit, filters.Offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Contact, error) {
	c, err := scan(r.db.QueryRow(ctx, `SELECT `+columns+` FROM contacts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, internalShared.NotFoundf("contact %d", id)
		}
		return Contact{}, err
	}
	return c, nil
}

func (r *repository) Create(ctx context.Context, contact Contact) (Contact, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO contacts (code, name, contact_type, email, phone, address, credit_limit, current_balance, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,0,$8)
		RETURNING id, created_at, updated_at`,
		contact.Code, contact.Name, contact.ContactType, contact.Email, contact.Phone,
		contact.Address, decimalToNumeric(contact.CreditLimit), contact.IsActive)
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&contact.ID, &createdAt, &updatedAt); err != nil {
		if isUniqueViolation(err) {
			return Contact{}, internalShared.Duplicatef("contact code %s already exists", contact.Code)
		}
		return Contact{}, err
	}
	contact.CurrentBalance = decimal.Zero
	contact.CreatedAt = createdAt.Time
	contact.UpdatedAt = updatedAt.Time
	return contact, nil
}

// Update never touches current_balance, that column belongs to the invoice engine.
func (r *repository) Update(ctx context.Context, id int64, contact Contact) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE contacts SET code = $1, name = $2, contact_type = $3, email = $4, phone = $5,
			address = $6, credit_limit = $7, is_active = $8, updated_at = now()
		WHERE id = $9`,
		contact.Code, contact.Name, contact.ContactType, contact.Email, contact.Phone,
		contact.Address, decimalToNumeric(contact.CreditLimit), contact.IsActive, id)
	if err != nil {
		if isUniqueViolation(err) {
			return internalShared.Duplicatef("contact code %s already exists", contact.Code)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return internalShared.NotFoundf("contact %d", id)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM contacts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return internalShared.NotFoundf("contact %d", id)
	}
	return nil
}

func (r *repository) HasInvoices(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM invoices WHERE contact_id = $1)`, id).Scan(&exists)
	return exists, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
