package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/db"
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

const profileColumns = `id, username, password_hash, full_name, email, phone, balance::text, created_at`

func (r *postgresRepo) Create(ctx context.Context, p domain.Profile) (*domain.Profile, error) {
	q := `
INSERT INTO profiles (username, password_hash, full_name, email, phone)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + profileColumns
	out, err := scanProfile(r.pool.QueryRow(ctx, q, p.Username, p.PasswordHash, p.FullName, p.Email, p.Phone))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, domain.ErrAlreadyExists
		}
		r.logger.Error("create profile failed", zap.String("username", p.Username), zap.Error(err))
		return nil, err
	}
	return out, nil
}

func (r *postgresRepo) GetByUsername(ctx context.Context, username string) (*domain.Profile, error) {
	return r.fetch(ctx, `SELECT `+profileColumns+` FROM profiles WHERE username = $1`, username)
}

func (r *postgresRepo) GetByID(ctx context.Context, id int64) (*domain.Profile, error) {
	return r.fetch(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
}

func (r *postgresRepo) Update(ctx context.Context, p domain.Profile) (*domain.Profile, error) {
	q := `
UPDATE profiles
SET full_name = $2,
    email = $3,
    phone = $4
WHERE id = $1
RETURNING ` + profileColumns
	out, err := scanProfile(r.pool.QueryRow(ctx, q, p.ID, p.FullName, p.Email, p.Phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return out, nil
}

func (r *postgresRepo) UpdatePassword(ctx context.Context, id int64, hash string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE profiles SET password_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) fetch(ctx context.Context, q string, arg any) (*domain.Profile, error) {
	p, err := scanProfile(r.pool.QueryRow(ctx, q, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var (
		p       domain.Profile
		balance string
	)
	if err := row.Scan(&p.ID, &p.Username, &p.PasswordHash, &p.FullName, &p.Email, &p.Phone, &balance, &p.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	return &p, nil
}
