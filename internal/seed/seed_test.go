package seed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
)

type recordingCatalog struct {
	products []domain.Product
	sales    []domain.Sale
	err      error
}

func (r *recordingCatalog) Upsert(_ context.Context, p domain.Product) (*domain.Product, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.products = append(r.products, p)
	return &p, nil
}

func (r *recordingCatalog) UpsertSale(_ context.Context, s domain.Sale) (*domain.Sale, error) {
	s.ID = 1
	r.sales = append(r.sales, s)
	return &s, nil
}

func TestApply(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	cat := &recordingCatalog{}

	n, err := Apply(context.Background(), cat, now)
	require.NoError(t, err)
	assert.Equal(t, len(products), n)
	require.Len(t, cat.sales, 1)
	assert.True(t, cat.sales[0].ActiveAt(now))

	onSale := 0
	for _, p := range cat.products {
		if p.Sale != nil {
			onSale++
			assert.Equal(t, int64(1), p.Sale.ID)
		}
	}
	assert.Equal(t, 2, onSale)
}

func TestApply_StopsOnError(t *testing.T) {
	cat := &recordingCatalog{err: errors.New("boom")}

	n, err := Apply(context.Background(), cat, time.Now())
	assert.Error(t, err)
	assert.Zero(t, n)
}
