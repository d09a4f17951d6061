package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"storefront/internal/broker"
	"storefront/internal/domain"
	"storefront/internal/metrics"
	orderrepo "storefront/internal/repository/order"
	"storefront/internal/service/catalog"
	"storefront/internal/tracing"
	"storefront/internal/validation"
)

type basketAccess interface {
	Contents(ctx context.Context, ident domain.Identity) (domain.Basket, error)
	Clear(ctx context.Context, ident domain.Identity) error
	Merge(ctx context.Context, ident domain.Identity, entries []domain.BasketEntry) error
}

type catalogLookup interface {
	Lookup(ctx context.Context, ids []int64) (map[int64]catalog.Entry, error)
}

type eventPublisher interface {
	PublishOrderSubmitted(ctx context.Context, event *broker.OrderSubmittedEvent) error
	PublishOrderPaid(ctx context.Context, event *broker.OrderPaidEvent) error
	PublishBasketMerged(ctx context.Context, event *broker.BasketMergedEvent) error
}

// Service runs checkout and order reconciliation.
type Service struct {
	repo     orderrepo.Repository
	basket   basketAccess
	catalog  catalogLookup
	events   eventPublisher
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

func New(repo orderrepo.Repository, basket basketAccess, c catalogLookup, events eventPublisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = broker.NewEventPublisher(broker.NopProducer{})
	}
	return &Service{
		repo:     repo,
		basket:   basket,
		catalog:  c,
		events:   events,
		validate: validation.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// SubmitOrder finds or opens the caller's order, rebuilds it when stale and
// stores fields when given. Invalid fields fail before anything is written.
func (s *Service) SubmitOrder(ctx context.Context, ident domain.Identity, fields *domain.ShippingFields) (*domain.Order, error) {
	ctx, span := tracing.StartSpan(ctx, "order.SubmitOrder")
	defer span.End()

	if fields != nil {
		if err := validation.Struct(s.validate, fields); err != nil {
			return nil, err
		}
	}

	o, err := s.openOrCreate(ctx, ident)
	if err != nil {
		return nil, err
	}

	dirty := false
	if o.Stale {
		if err := s.rebuild(ctx, ident, o); err != nil {
			return nil, err
		}
		dirty = true
	}
	if fields != nil {
		o.ApplyShipping(*fields)
		dirty = true
	}
	if dirty {
		if err := s.repo.Save(ctx, o); err != nil {
			return nil, fmt.Errorf("save order %d: %w", o.ID, err)
		}
	}

	metrics.OrdersSubmittedTotal.Inc()
	s.publish(ctx, func(ctx context.Context) error {
		return s.events.PublishOrderSubmitted(ctx, broker.NewOrderSubmitted(o, s.now()))
	})
	return o, nil
}

// GetOrder returns an order by id. A stale order read by its owner is
// rebuilt first.
func (s *Service) GetOrder(ctx context.Context, ident domain.Identity, id int64) (*domain.Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.State() == domain.OrderStale && ownedBy(o, ident) {
		if err := s.rebuild(ctx, ident, o); err != nil {
			return nil, err
		}
		if err := s.repo.Save(ctx, o); err != nil {
			return nil, fmt.Errorf("save order %d: %w", o.ID, err)
		}
	}
	return o, nil
}

// ListOrders returns the signed-in profile's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, ident domain.Identity) ([]domain.Order, error) {
	if !ident.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	return s.repo.ListByProfile(ctx, *ident.ProfileID)
}

// UpdateDetails stores checkout fields on an existing order.
func (s *Service) UpdateDetails(ctx context.Context, id int64, fields domain.ShippingFields) (*domain.Order, error) {
	if err := validation.Struct(s.validate, &fields); err != nil {
		return nil, err
	}
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	o.ApplyShipping(fields)
	if err := s.repo.Save(ctx, o); err != nil {
		return nil, fmt.Errorf("save order %d: %w", o.ID, err)
	}
	return o, nil
}

// Pay marks the order paid and then clears the caller's basket. The caller
// does not have to own the order. A failed clear is logged and does not undo
// or fail the payment.
// TODO: reject payment of orders the caller does not own; the storefront currently pays by id alone.
func (s *Service) Pay(ctx context.Context, ident domain.Identity, id int64) error {
	ctx, span := tracing.StartSpan(ctx, "order.Pay")
	defer span.End()

	o, err := s.repo.MarkPaid(ctx, id)
	if err != nil {
		return err
	}
	if err := s.basket.Clear(ctx, ident); err != nil {
		s.logger.Warn("clear basket after payment failed", zap.Int64("order_id", o.ID), zap.Error(err))
	}

	metrics.OrdersPaidTotal.Inc()
	s.publish(ctx, func(ctx context.Context) error {
		return s.events.PublishOrderPaid(ctx, broker.NewOrderPaid(o, s.now()))
	})
	s.logger.Info("order paid", zap.Int64("order_id", o.ID), zap.String("total", o.TotalCost.StringFixed(2)))
	return nil
}

func (s *Service) openOrCreate(ctx context.Context, ident domain.Identity) (*domain.Order, error) {
	o, err := s.repo.GetOpen(ctx, ident)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	o, err = s.repo.Create(ctx, ident)
	if errors.Is(err, domain.ErrAlreadyExists) {
		// lost a race with a concurrent request for the same owner
		return s.repo.GetOpen(ctx, ident)
	}
	return o, err
}

// publish never fails the caller; events are best effort.
func (s *Service) publish(ctx context.Context, fn func(ctx context.Context) error) {
	if err := fn(ctx); err != nil {
		s.logger.Warn("publish event failed", zap.Error(err))
	}
}

func ownedBy(o *domain.Order, ident domain.Identity) bool {
	if o.ProfileID != nil {
		return ident.ProfileID != nil && *ident.ProfileID == *o.ProfileID
	}
	return o.SessionID != nil && ident.ProfileID == nil && *o.SessionID == ident.SessionID
}
