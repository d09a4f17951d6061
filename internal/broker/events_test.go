package broker

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
)

type recordingProducer struct {
	keys   []string
	events []interface{}
}

func (r *recordingProducer) PublishEvent(_ context.Context, key string, event interface{}) error {
	r.keys = append(r.keys, key)
	r.events = append(r.events, event)
	return nil
}

func TestEventPublisher_KeysByOrder(t *testing.T) {
	rec := &recordingProducer{}
	pub := NewEventPublisher(rec)
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	order := &domain.Order{
		ID:        42,
		TotalCost: decimal.RequireFromString("20.00"),
		Lines:     []domain.OrderLine{{ProductID: 7, Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")}},
	}

	require.NoError(t, pub.PublishOrderSubmitted(context.Background(), NewOrderSubmitted(order, now)))
	require.NoError(t, pub.PublishOrderPaid(context.Background(), NewOrderPaid(order, now)))
	require.NoError(t, pub.PublishBasketMerged(context.Background(), NewBasketMerged(5, "both", nil, nil, now)))

	assert.Equal(t, []string{"order-42", "order-42", "profile-5"}, rec.keys)
	submitted, ok := rec.events[0].(*OrderSubmittedEvent)
	require.True(t, ok)
	assert.Equal(t, EventTypeOrderSubmitted, submitted.EventType)
	assert.NotEmpty(t, submitted.EventID)
	assert.Len(t, submitted.Items, 1)
	assert.Equal(t, now, submitted.Timestamp)
}

func TestNewEventPublisher_NilProducerDrops(t *testing.T) {
	pub := NewEventPublisher(nil)
	err := pub.PublishOrderPaid(context.Background(), NewOrderPaid(&domain.Order{ID: 1}, time.Now()))
	assert.NoError(t, err)
}
