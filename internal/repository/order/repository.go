package order

import (
	"context"

	"storefront/internal/domain"
)

// Repository persists orders and their lines. Owner lookups honour the
// identity's profile when present, else its session id.
type Repository interface {
	// Create opens a new order for owner. ErrAlreadyExists means owner already has one.
	Create(ctx context.Context, owner domain.Identity) (*domain.Order, error)
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	// GetOpen returns the owner's unpaid order, or ErrNotFound.
	GetOpen(ctx context.Context, owner domain.Identity) (*domain.Order, error)
	ListByProfile(ctx context.Context, profileID int64) ([]domain.Order, error)
	// Save writes header fields and replaces all lines.
	Save(ctx context.Context, o *domain.Order) error
	// MarkStale flags the owner's open order, if any.
	MarkStale(ctx context.Context, owner domain.Identity) error
	MarkPaid(ctx context.Context, id int64) (*domain.Order, error)
	Delete(ctx context.Context, id int64) error
	// WithinTx runs fn against a transactional repository whose GetOpen
	// locks the returned row until commit.
	WithinTx(ctx context.Context, fn func(tx Repository) error) error
}
