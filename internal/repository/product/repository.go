package product

import (
	"context"

	"storefront/internal/domain"
)

// Repository reads catalog products and writes them for seeding/import.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	// GetByIDs returns the products that exist; unknown ids are absent from the map.
	GetByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
	Upsert(ctx context.Context, p domain.Product) (*domain.Product, error)
	UpsertSale(ctx context.Context, s domain.Sale) (*domain.Sale, error)
}
