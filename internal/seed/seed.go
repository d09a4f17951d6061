package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/domain"
)

// Catalog is the write side of the product repository.
type Catalog interface {
	Upsert(ctx context.Context, p domain.Product) (*domain.Product, error)
	UpsertSale(ctx context.Context, s domain.Sale) (*domain.Sale, error)
}

type productSeed struct {
	ID     int64
	Title  string
	Price  string
	OnSale bool
}

var products = []productSeed{
	{ID: 1, Title: "Demo T-Shirt", Price: "19.99"},
	{ID: 2, Title: "Demo Mug", Price: "12.99", OnSale: true},
	{ID: 3, Title: "Demo Notebook", Price: "5.00"},
	{ID: 4, Title: "Demo Pen", Price: "1.25", OnSale: true},
}

// Apply inserts basic seed data for manual testing. Products have fixed ids,
// so running it again updates them in place.
func Apply(ctx context.Context, catalog Catalog, now time.Time) (int, error) {
	sale, err := catalog.UpsertSale(ctx, domain.Sale{
		Name:     "demo-sale",
		Percent:  decimal.NewFromInt(15),
		DateFrom: now,
		DateTo:   now.Add(7 * 24 * time.Hour),
	})
	if err != nil {
		return 0, fmt.Errorf("upsert sale: %w", err)
	}

	for i, p := range products {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return i, fmt.Errorf("price of %s: %w", p.Title, err)
		}
		product := domain.Product{ID: p.ID, Title: p.Title, Price: price}
		if p.OnSale {
			product.Sale = sale
		}
		if _, err := catalog.Upsert(ctx, product); err != nil {
			return i, fmt.Errorf("upsert product %s: %w", p.Title, err)
		}
	}
	return len(products), nil
}
