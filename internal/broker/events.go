package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront/internal/domain"
)

const (
	EventTypeOrderSubmitted = "ORDER_SUBMITTED"
	EventTypeOrderPaid      = "ORDER_PAID"
	EventTypeBasketMerged   = "BASKET_MERGED"
)

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

func newBaseEvent(eventType string, now time.Time) BaseEvent {
	return BaseEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: now.UTC(),
	}
}

type OrderLineData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type OrderSubmittedEvent struct {
	BaseEvent
	OrderID   int64           `json:"order_id"`
	ProfileID *int64          `json:"profile_id,omitempty"`
	TotalCost decimal.Decimal `json:"total_cost"`
	Items     []OrderLineData `json:"items"`
}

type OrderPaidEvent struct {
	BaseEvent
	OrderID   int64           `json:"order_id"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

// BasketMergedEvent records which login reconciliation branch ran.
type BasketMergedEvent struct {
	BaseEvent
	ProfileID      int64  `json:"profile_id"`
	Branch         string `json:"branch"`
	SurvivingOrder *int64 `json:"surviving_order_id,omitempty"`
	DeletedOrder   *int64 `json:"deleted_order_id,omitempty"`
}

func NewOrderSubmitted(o *domain.Order, now time.Time) *OrderSubmittedEvent {
	items := make([]OrderLineData, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, OrderLineData{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	return &OrderSubmittedEvent{
		BaseEvent: newBaseEvent(EventTypeOrderSubmitted, now),
		OrderID:   o.ID,
		ProfileID: o.ProfileID,
		TotalCost: o.TotalCost,
		Items:     items,
	}
}

func NewOrderPaid(o *domain.Order, now time.Time) *OrderPaidEvent {
	return &OrderPaidEvent{
		BaseEvent: newBaseEvent(EventTypeOrderPaid, now),
		OrderID:   o.ID,
		TotalCost: o.TotalCost,
	}
}

func NewBasketMerged(profileID int64, branch string, surviving, deleted *int64, now time.Time) *BasketMergedEvent {
	return &BasketMergedEvent{
		BaseEvent:      newBaseEvent(EventTypeBasketMerged, now),
		ProfileID:      profileID,
		Branch:         branch,
		SurvivingOrder: surviving,
		DeletedOrder:   deleted,
	}
}

type producer interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher publishes storefront domain events.
type EventPublisher struct {
	producer producer
}

func NewEventPublisher(p producer) *EventPublisher {
	if p == nil {
		p = NopProducer{}
	}
	return &EventPublisher{producer: p}
}

func (ep *EventPublisher) PublishOrderSubmitted(ctx context.Context, event *OrderSubmittedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

func (ep *EventPublisher) PublishOrderPaid(ctx context.Context, event *OrderPaidEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

func (ep *EventPublisher) PublishBasketMerged(ctx context.Context, event *BasketMergedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("profile-%d", event.ProfileID), event)
}

func orderKey(id int64) string {
	return fmt.Sprintf("order-%d", id)
}
