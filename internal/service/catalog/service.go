package catalog

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/cache"
	"storefront/internal/domain"
	"storefront/internal/metrics"
	"storefront/internal/tracing"
)

type productRepo interface {
	GetByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
}

// Entry is the pricing view of one product at lookup time.
type Entry struct {
	ProductID     int64
	Title         string
	UnitPrice     decimal.Decimal
	SaleUnitPrice decimal.Decimal
	HasActiveSale bool
}

// EffectivePrice is the sale price while a sale is active, else the regular price.
func (e Entry) EffectivePrice() decimal.Decimal {
	if e.HasActiveSale {
		return e.SaleUnitPrice
	}
	return e.UnitPrice
}

// Service resolves product ids to prices, with an optional read-through cache.
// Sale activity is evaluated at lookup time, so only products are cached.
type Service struct {
	repo   productRepo
	cache  cache.Cache
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// New builds a Service. A nil cache or zero ttl disables caching.
func New(repo productRepo, c cache.Cache, ttl time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		cache:  c,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// Lookup returns entries for the ids that exist. Missing ids are absent.
func (s *Service) Lookup(ctx context.Context, ids []int64) (map[int64]Entry, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Lookup")
	defer span.End()

	products := make(map[int64]domain.Product, len(ids))
	misses := ids
	if s.cachingEnabled() {
		misses = misses[:0:0]
		for _, id := range ids {
			if p, ok := s.fromCache(ctx, id); ok {
				products[id] = p
				continue
			}
			misses = append(misses, id)
		}
	}

	if len(misses) > 0 {
		found, err := s.repo.GetByIDs(ctx, misses)
		if err != nil {
			return nil, err
		}
		for id, p := range found {
			products[id] = p
			s.toCache(ctx, p)
		}
	}

	now := s.now()
	out := make(map[int64]Entry, len(products))
	for id, p := range products {
		out[id] = Entry{
			ProductID:     p.ID,
			Title:         p.Title,
			UnitPrice:     p.Price,
			SaleUnitPrice: p.SalePrice(),
			HasActiveSale: p.HasActiveSale(now),
		}
	}
	return out, nil
}

// Invalidate drops a cached product after it changes.
func (s *Service) Invalidate(ctx context.Context, id int64) error {
	if !s.cachingEnabled() {
		return nil
	}
	return s.cache.Delete(ctx, s.key(id))
}

func (s *Service) cachingEnabled() bool {
	return s.cache != nil && s.ttl > 0
}

func (s *Service) key(id int64) string {
	return s.cache.GenerateKey("product", strconv.FormatInt(id, 10))
}

func (s *Service) fromCache(ctx context.Context, id int64) (domain.Product, bool) {
	raw, err := s.cache.Get(ctx, s.key(id))
	if err != nil {
		s.logger.Warn("catalog cache read failed", zap.Int64("product_id", id), zap.Error(err))
		metrics.CatalogCacheRequestsTotal.WithLabelValues("error").Inc()
		return domain.Product{}, false
	}
	if raw == "" {
		metrics.CatalogCacheRequestsTotal.WithLabelValues("miss").Inc()
		return domain.Product{}, false
	}
	var p domain.Product
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.logger.Warn("catalog cache entry corrupt", zap.Int64("product_id", id), zap.Error(err))
		metrics.CatalogCacheRequestsTotal.WithLabelValues("error").Inc()
		return domain.Product{}, false
	}
	metrics.CatalogCacheRequestsTotal.WithLabelValues("hit").Inc()
	return p, true
}

func (s *Service) toCache(ctx context.Context, p domain.Product) {
	if !s.cachingEnabled() {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.key(p.ID), string(raw), s.ttl); err != nil {
		s.logger.Warn("catalog cache write failed", zap.Int64("product_id", p.ID), zap.Error(err))
	}
}
