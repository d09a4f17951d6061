package basket

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/metrics"
	"storefront/internal/service/catalog"
	"storefront/internal/tracing"
)

type store interface {
	LoadBasket(ctx context.Context, sessionID string) (domain.Basket, error)
	SaveBasket(ctx context.Context, sessionID string, b domain.Basket) error
	ClearBasket(ctx context.Context, sessionID string) error
}

type catalogLookup interface {
	Lookup(ctx context.Context, ids []int64) (map[int64]catalog.Entry, error)
}

type staleMarker interface {
	MarkStale(ctx context.Context, owner domain.Identity) error
}

// Service manages the visitor's basket, stored in their session.
type Service struct {
	store   store
	catalog catalogLookup
	orders  staleMarker
	logger  *zap.Logger
}

func New(s store, c catalogLookup, orders staleMarker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: s, catalog: c, orders: orders, logger: logger}
}

// Add puts quantity of productID into the basket. Unknown products are
// rejected with domain.ErrNotFound and leave the basket untouched.
func (s *Service) Add(ctx context.Context, ident domain.Identity, productID int64, quantity int) ([]domain.BasketItem, error) {
	ctx, span := tracing.StartSpan(ctx, "basket.Add")
	defer span.End()

	if quantity < 1 {
		return nil, domain.NewValidationError("count", "must be at least 1")
	}
	if quantity > domain.MaxQuantity {
		return nil, domain.NewValidationError("count", fmt.Sprintf("must be at most %d", domain.MaxQuantity))
	}
	found, err := s.catalog.Lookup(ctx, []int64{productID})
	if err != nil {
		return nil, err
	}
	if _, ok := found[productID]; !ok {
		return nil, fmt.Errorf("product %d: %w", productID, domain.ErrNotFound)
	}

	b, err := s.store.LoadBasket(ctx, ident.SessionID)
	if err != nil {
		return nil, err
	}
	if !b.Add(productID, quantity) {
		return nil, domain.NewValidationError("count", fmt.Sprintf("basket holds at most %d of one product", domain.MaxQuantity))
	}
	if err := s.persist(ctx, ident, b, "add"); err != nil {
		return nil, err
	}
	return s.describe(ctx, b)
}

// Remove takes quantity of productID out. Absent products are a no-op.
func (s *Service) Remove(ctx context.Context, ident domain.Identity, productID int64, quantity int) ([]domain.BasketItem, error) {
	ctx, span := tracing.StartSpan(ctx, "basket.Remove")
	defer span.End()

	if quantity < 1 {
		return nil, domain.NewValidationError("count", "must be at least 1")
	}
	b, err := s.store.LoadBasket(ctx, ident.SessionID)
	if err != nil {
		return nil, err
	}
	if b.Remove(productID, quantity) {
		if err := s.persist(ctx, ident, b, "remove"); err != nil {
			return nil, err
		}
	}
	return s.describe(ctx, b)
}

func (s *Service) Clear(ctx context.Context, ident domain.Identity) error {
	if err := s.store.ClearBasket(ctx, ident.SessionID); err != nil {
		return err
	}
	metrics.BasketMutationsTotal.WithLabelValues("clear").Inc()
	return nil
}

// List returns the basket decorated with current catalog data.
func (s *Service) List(ctx context.Context, ident domain.Identity) ([]domain.BasketItem, error) {
	b, err := s.store.LoadBasket(ctx, ident.SessionID)
	if err != nil {
		return nil, err
	}
	return s.describe(ctx, b)
}

// Contents returns the raw quantities.
func (s *Service) Contents(ctx context.Context, ident domain.Identity) (domain.Basket, error) {
	return s.store.LoadBasket(ctx, ident.SessionID)
}

// Merge adds every entry whose product still resolves, in one save,
// saturating at domain.MaxQuantity. It does not touch order state; login
// reconciliation owns that.
func (s *Service) Merge(ctx context.Context, ident domain.Identity, entries []domain.BasketEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ProductID)
	}
	found, err := s.catalog.Lookup(ctx, ids)
	if err != nil {
		return err
	}

	b, err := s.store.LoadBasket(ctx, ident.SessionID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if _, ok := found[e.ProductID]; !ok {
			s.logger.Debug("skipping merge of unknown product", zap.Int64("product_id", e.ProductID))
			continue
		}
		b.AddCapped(e.ProductID, e.Quantity)
	}
	if err := s.store.SaveBasket(ctx, ident.SessionID, b); err != nil {
		return err
	}
	metrics.BasketMutationsTotal.WithLabelValues("merge").Inc()
	return nil
}

func (s *Service) persist(ctx context.Context, ident domain.Identity, b domain.Basket, op string) error {
	if err := s.store.SaveBasket(ctx, ident.SessionID, b); err != nil {
		return err
	}
	metrics.BasketMutationsTotal.WithLabelValues(op).Inc()
	if err := s.orders.MarkStale(ctx, ident); err != nil {
		return fmt.Errorf("mark order stale: %w", err)
	}
	return nil
}

func (s *Service) describe(ctx context.Context, b domain.Basket) ([]domain.BasketItem, error) {
	entries := b.Entries()
	items := make([]domain.BasketItem, 0, len(entries))
	if len(entries) == 0 {
		return items, nil
	}
	found, err := s.catalog.Lookup(ctx, b.ProductIDs())
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		item := domain.BasketItem{BasketEntry: e}
		if c, ok := found[e.ProductID]; ok {
			item.Title = c.Title
			item.Price = c.UnitPrice
			item.SalePrice = c.SaleUnitPrice
			item.HasActiveSale = c.HasActiveSale
			item.Available = true
		}
		items = append(items, item)
	}
	return items, nil
}
