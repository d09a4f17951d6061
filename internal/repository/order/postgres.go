package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"storefront/internal/db"
	"storefront/internal/domain"
)

type postgresRepo struct {
	pool *pgxpool.Pool
	q    db.Querier
	// lock adds FOR UPDATE to owner lookups; set inside WithinTx.
	lock bool
}

func NewPostgres(pool *pgxpool.Pool) Repository {
	return &postgresRepo{pool: pool, q: pool}
}

const orderColumns = `
id, profile_id, session_id, created_at, paid, status, stale, total_cost::text,
delivery_type, payment_type, full_name, phone, email, city, address
`

func (r *postgresRepo) Create(ctx context.Context, owner domain.Identity) (*domain.Order, error) {
	var (
		profileID *int64
		sessionID *string
	)
	if owner.ProfileID != nil {
		profileID = owner.ProfileID
	} else {
		if owner.SessionID == "" {
			return nil, fmt.Errorf("create order: %w", domain.NewValidationError("owner", "session or profile required"))
		}
		sid := owner.SessionID
		sessionID = &sid
	}

	q := `
INSERT INTO orders (profile_id, session_id)
VALUES ($1, $2)
RETURNING ` + orderColumns
	o, err := scanOrder(r.q.QueryRow(ctx, q, profileID, sessionID))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, domain.ErrAlreadyExists
		}
		return nil, err
	}
	return o, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	return r.fetch(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *postgresRepo) GetOpen(ctx context.Context, owner domain.Identity) (*domain.Order, error) {
	var (
		q   string
		arg any
	)
	if owner.ProfileID != nil {
		q = `SELECT ` + orderColumns + ` FROM orders WHERE profile_id = $1 AND NOT paid ORDER BY created_at DESC LIMIT 1`
		arg = *owner.ProfileID
	} else {
		if owner.SessionID == "" {
			return nil, domain.ErrNotFound
		}
		q = `SELECT ` + orderColumns + ` FROM orders WHERE session_id = $1 AND NOT paid ORDER BY created_at DESC LIMIT 1`
		arg = owner.SessionID
	}
	if r.lock {
		q += ` FOR UPDATE`
	}
	return r.fetch(ctx, q, arg)
}

func (r *postgresRepo) ListByProfile(ctx context.Context, profileID int64) ([]domain.Order, error) {
	rows, err := r.q.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE profile_id = $1 ORDER BY created_at DESC, id DESC`, profileID)
	if err != nil {
		return nil, err
	}
	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		lines, err := r.lines(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Lines = lines
	}
	return out, nil
}

func (r *postgresRepo) Save(ctx context.Context, o *domain.Order) error {
	return r.inTx(ctx, func(q db.Querier) error {
		cmd, err := q.Exec(ctx, `
UPDATE orders
SET profile_id = $2,
    session_id = $3,
    paid = $4,
    status = $5,
    stale = $6,
    total_cost = $7::numeric,
    delivery_type = $8,
    payment_type = $9,
    full_name = $10,
    phone = $11,
    email = $12,
    city = $13,
    address = $14
WHERE id = $1
`, o.ID, o.ProfileID, o.SessionID, o.Paid, o.Status, o.Stale, o.TotalCost.StringFixed(2),
			o.DeliveryType, o.PaymentType, o.FullName, o.Phone, o.Email, o.City, o.Address)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return domain.ErrAlreadyExists
			}
			return err
		}
		if cmd.RowsAffected() == 0 {
			return domain.ErrNotFound
		}

		if _, err := q.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, o.ID); err != nil {
			return err
		}
		for i, l := range o.Lines {
			if _, err := q.Exec(ctx, `
INSERT INTO order_items (order_id, product_id, count, unit_price, position)
VALUES ($1, $2, $3, $4::numeric, $5)
`, o.ID, l.ProductID, l.Quantity, l.UnitPrice.StringFixed(2), i); err != nil {
				return fmt.Errorf("insert line for product %d: %w", l.ProductID, err)
			}
		}
		return nil
	})
}

func (r *postgresRepo) MarkStale(ctx context.Context, owner domain.Identity) error {
	if owner.ProfileID != nil {
		_, err := r.q.Exec(ctx, `UPDATE orders SET stale = TRUE WHERE profile_id = $1 AND NOT paid`, *owner.ProfileID)
		return err
	}
	if owner.SessionID == "" {
		return nil
	}
	_, err := r.q.Exec(ctx, `UPDATE orders SET stale = TRUE WHERE session_id = $1 AND NOT paid`, owner.SessionID)
	return err
}

func (r *postgresRepo) MarkPaid(ctx context.Context, id int64) (*domain.Order, error) {
	var updated int64
	err := r.q.QueryRow(ctx, `
UPDATE orders
SET paid = TRUE,
    status = $2
WHERE id = $1
RETURNING id
`, id, domain.OrderStatusPaid).Scan(&updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return r.GetByID(ctx, updated)
}

func (r *postgresRepo) Delete(ctx context.Context, id int64) error {
	cmd, err := r.q.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) WithinTx(ctx context.Context, fn func(tx Repository) error) error {
	if _, nested := r.q.(pgx.Tx); nested {
		return fn(r)
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&postgresRepo{pool: r.pool, q: tx, lock: true}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// inTx runs fn in the current transaction, or a short one of its own.
func (r *postgresRepo) inTx(ctx context.Context, fn func(q db.Querier) error) error {
	if tx, ok := r.q.(pgx.Tx); ok {
		return fn(tx)
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *postgresRepo) fetch(ctx context.Context, q string, args ...any) (*domain.Order, error) {
	o, err := scanOrder(r.q.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	lines, err := r.lines(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Lines = lines
	return o, nil
}

func (r *postgresRepo) lines(ctx context.Context, orderID int64) ([]domain.OrderLine, error) {
	rows, err := r.q.Query(ctx, `
SELECT product_id, count, unit_price::text
FROM order_items
WHERE order_id = $1
ORDER BY position ASC, id ASC
`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OrderLine
	for rows.Next() {
		var (
			l     domain.OrderLine
			price string
		)
		if err := rows.Scan(&l.ProductID, &l.Quantity, &price); err != nil {
			return nil, err
		}
		if l.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse unit price: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o     domain.Order
		total string
	)
	if err := row.Scan(
		&o.ID,
		&o.ProfileID,
		&o.SessionID,
		&o.CreatedAt,
		&o.Paid,
		&o.Status,
		&o.Stale,
		&total,
		&o.DeliveryType,
		&o.PaymentType,
		&o.FullName,
		&o.Phone,
		&o.Email,
		&o.City,
		&o.Address,
	); err != nil {
		return nil, err
	}
	var err error
	if o.TotalCost, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse total cost: %w", err)
	}
	return &o, nil
}
