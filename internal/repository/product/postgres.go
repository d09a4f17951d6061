package product

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/domain"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &postgresRepo{pool: pool, logger: logger}
}

const selectProduct = `
SELECT p.id, p.title, p.price::text, p.created_at,
       s.id, s.name, s.sale_percent::text, s.date_from, s.date_to
FROM products p
LEFT JOIN sales s ON s.id = p.sale_id
`

func (r *postgresRepo) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, selectProduct+`WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *postgresRepo) GetByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	out := make(map[int64]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, selectProduct+`WHERE p.id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = *p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Upsert inserts a product, or updates it in place when p.ID is set and exists.
func (r *postgresRepo) Upsert(ctx context.Context, p domain.Product) (*domain.Product, error) {
	var saleID *int64
	if p.Sale != nil && p.Sale.ID != 0 {
		saleID = &p.Sale.ID
	}

	var id int64
	if p.ID == 0 {
		const q = `
INSERT INTO products (title, price, sale_id)
VALUES ($1, $2::numeric, $3)
RETURNING id
`
		if err := r.pool.QueryRow(ctx, q, p.Title, p.Price.String(), saleID).Scan(&id); err != nil {
			return nil, err
		}
	} else {
		const q = `
INSERT INTO products (id, title, price, sale_id)
VALUES ($1, $2, $3::numeric, $4)
ON CONFLICT (id) DO UPDATE
SET title = EXCLUDED.title,
    price = EXCLUDED.price,
    sale_id = EXCLUDED.sale_id
RETURNING id
`
		if err := r.pool.QueryRow(ctx, q, p.ID, p.Title, p.Price.String(), saleID).Scan(&id); err != nil {
			return nil, err
		}
		// explicit ids bypass the sequence
		if _, err := r.pool.Exec(ctx, `SELECT setval(pg_get_serial_sequence('products', 'id'), GREATEST((SELECT MAX(id) FROM products), 1))`); err != nil {
			return nil, fmt.Errorf("sync products sequence: %w", err)
		}
	}

	r.logger.Debug("product upserted", zap.Int64("id", id), zap.String("title", p.Title))
	return r.GetByID(ctx, id)
}

// UpsertSale matches sales by name.
func (r *postgresRepo) UpsertSale(ctx context.Context, s domain.Sale) (*domain.Sale, error) {
	from, to := s.DateFrom, s.DateTo
	if from.IsZero() {
		from = time.Now().UTC()
	}
	if to.IsZero() {
		to = from.Add(7 * 24 * time.Hour)
	}
	const q = `
INSERT INTO sales (name, sale_percent, date_from, date_to)
VALUES ($1, $2::numeric, $3, $4)
ON CONFLICT (name) DO UPDATE
SET sale_percent = EXCLUDED.sale_percent,
    date_from = EXCLUDED.date_from,
    date_to = EXCLUDED.date_to
RETURNING id, name, sale_percent::text, date_from, date_to
`
	var (
		out     domain.Sale
		percent string
	)
	if err := r.pool.QueryRow(ctx, q, s.Name, s.Percent.String(), from, to).Scan(
		&out.ID, &out.Name, &percent, &out.DateFrom, &out.DateTo,
	); err != nil {
		return nil, err
	}
	pct, err := decimal.NewFromString(percent)
	if err != nil {
		return nil, fmt.Errorf("parse sale percent: %w", err)
	}
	out.Percent = pct
	return &out, nil
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var (
		p           domain.Product
		price       string
		saleID      *int64
		saleName    *string
		salePercent *string
		saleFrom    *time.Time
		saleTo      *time.Time
	)
	if err := row.Scan(&p.ID, &p.Title, &price, &p.CreatedAt, &saleID, &saleName, &salePercent, &saleFrom, &saleTo); err != nil {
		return nil, err
	}
	var err error
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse price of product %d: %w", p.ID, err)
	}
	if saleID != nil {
		pct, err := decimal.NewFromString(*salePercent)
		if err != nil {
			return nil, fmt.Errorf("parse sale percent of product %d: %w", p.ID, err)
		}
		p.Sale = &domain.Sale{
			ID:       *saleID,
			Name:     *saleName,
			Percent:  pct,
			DateFrom: *saleFrom,
			DateTo:   *saleTo,
		}
	}
	return &p, nil
}
