package profile

import (
	"context"

	"storefront/internal/domain"
)

// Repository persists and fetches profiles.
type Repository interface {
	Create(ctx context.Context, p domain.Profile) (*domain.Profile, error)
	GetByUsername(ctx context.Context, username string) (*domain.Profile, error)
	GetByID(ctx context.Context, id int64) (*domain.Profile, error)
	// Update writes the contact fields (full name, email, phone).
	Update(ctx context.Context, p domain.Profile) (*domain.Profile, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
}
