package basket

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
	"storefront/internal/service/catalog"
	"storefront/internal/session"
)

type stubCatalog struct {
	entries map[int64]catalog.Entry
}

func (s *stubCatalog) Lookup(_ context.Context, ids []int64) (map[int64]catalog.Entry, error) {
	out := map[int64]catalog.Entry{}
	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

type recordingMarker struct {
	marked []domain.Identity
}

func (r *recordingMarker) MarkStale(_ context.Context, owner domain.Identity) error {
	r.marked = append(r.marked, owner)
	return nil
}

func newTestService(t *testing.T) (*Service, *recordingMarker, domain.Identity) {
	t.Helper()
	mgr := session.NewManager(session.NewMemoryStore(), time.Hour)
	sid, err := mgr.Start(context.Background())
	require.NoError(t, err)

	cat := &stubCatalog{entries: map[int64]catalog.Entry{
		7: {ProductID: 7, Title: "Seven", UnitPrice: decimal.RequireFromString("10.00"), SaleUnitPrice: decimal.RequireFromString("10.00")},
		3: {ProductID: 3, Title: "Three", UnitPrice: decimal.RequireFromString("5.00"), SaleUnitPrice: decimal.RequireFromString("4.00"), HasActiveSale: true},
	}}
	marker := &recordingMarker{}
	return New(mgr, cat, marker, nil), marker, domain.AnonymousIdentity(sid)
}

func TestAdd_CreatesAndIncrements(t *testing.T) {
	svc, marker, ident := newTestService(t)
	ctx := context.Background()

	items, err := svc.Add(ctx, ident, 7, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, "Seven", items[0].Title)
	assert.True(t, items[0].Available)

	items, err = svc.Add(ctx, ident, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Len(t, marker.marked, 2, "every mutation marks the open order stale")
}

func TestAdd_UnknownProductLeavesBasketUntouched(t *testing.T) {
	svc, marker, ident := newTestService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, ident, 404, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	b, err := svc.Contents(ctx, ident)
	require.NoError(t, err)
	assert.Empty(t, b)
	assert.Empty(t, marker.marked)
}

func TestAdd_RejectsNonPositiveQuantity(t *testing.T) {
	svc, _, ident := newTestService(t)
	_, err := svc.Add(context.Background(), ident, 7, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAdd_RejectsOverflowingQuantity(t *testing.T) {
	svc, marker, ident := newTestService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, ident, 7, math.MaxInt)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Add(ctx, ident, 7, domain.MaxQuantity)
	require.NoError(t, err)
	_, err = svc.Add(ctx, ident, 7, 1)
	assert.ErrorIs(t, err, domain.ErrValidation)

	b, err := svc.Contents(ctx, ident)
	require.NoError(t, err)
	assert.Equal(t, domain.Basket{7: domain.MaxQuantity}, b)
	assert.Len(t, marker.marked, 1, "refused adds must not mark orders stale")
}

func TestRemove_MoreThanHeldEmptiesBasket(t *testing.T) {
	svc, _, ident := newTestService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, ident, 7, 2)
	require.NoError(t, err)
	items, err := svc.Remove(ctx, ident, 7, 5)
	require.NoError(t, err)
	assert.Empty(t, items)

	b, err := svc.Contents(ctx, ident)
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestRemove_AbsentIsNoop(t *testing.T) {
	svc, marker, ident := newTestService(t)
	items, err := svc.Remove(context.Background(), ident, 7, 1)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Empty(t, marker.marked)
}

func TestAddRemove_QuantitiesStayPositive(t *testing.T) {
	svc, _, ident := newTestService(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	ids := []int64{3, 7}

	for i := 0; i < 300; i++ {
		id := ids[rng.Intn(len(ids))]
		qty := rng.Intn(3) + 1
		if rng.Intn(2) == 0 {
			_, err := svc.Add(ctx, ident, id, qty)
			require.NoError(t, err)
		} else {
			_, err := svc.Remove(ctx, ident, id, qty)
			require.NoError(t, err)
		}
		b, err := svc.Contents(ctx, ident)
		require.NoError(t, err)
		for pid, q := range b {
			require.GreaterOrEqualf(t, q, 1, "step %d product %d", i, pid)
		}
	}
}

func TestList_MarksVanishedProductsUnavailable(t *testing.T) {
	svc, _, ident := newTestService(t)
	ctx := context.Background()
	_, err := svc.Add(ctx, ident, 3, 1)
	require.NoError(t, err)

	delete(svc.catalog.(*stubCatalog).entries, 3)
	items, err := svc.List(ctx, ident)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.False(t, items[0].Available)
	assert.Equal(t, 1, items[0].Quantity)
}

func TestMerge_SkipsUnknownProducts(t *testing.T) {
	svc, marker, ident := newTestService(t)
	ctx := context.Background()
	_, err := svc.Add(ctx, ident, 3, 1)
	require.NoError(t, err)

	err = svc.Merge(ctx, ident, []domain.BasketEntry{{ProductID: 3, Quantity: 2}, {ProductID: 404, Quantity: 1}, {ProductID: 7, Quantity: 1}})
	require.NoError(t, err)

	b, err := svc.Contents(ctx, ident)
	require.NoError(t, err)
	assert.Equal(t, domain.Basket{3: 3, 7: 1}, b)
	assert.Len(t, marker.marked, 1, "merge must not mark orders stale")
}

func TestMerge_SaturatesAtMaxQuantity(t *testing.T) {
	svc, _, ident := newTestService(t)
	ctx := context.Background()
	_, err := svc.Add(ctx, ident, 7, domain.MaxQuantity-1)
	require.NoError(t, err)

	require.NoError(t, svc.Merge(ctx, ident, []domain.BasketEntry{{ProductID: 7, Quantity: 5}}))

	b, err := svc.Contents(ctx, ident)
	require.NoError(t, err)
	assert.Equal(t, domain.Basket{7: domain.MaxQuantity}, b)
}

func TestClear(t *testing.T) {
	svc, _, ident := newTestService(t)
	ctx := context.Background()
	_, err := svc.Add(ctx, ident, 7, 1)
	require.NoError(t, err)
	require.NoError(t, svc.Clear(ctx, ident))
	items, err := svc.List(ctx, ident)
	require.NoError(t, err)
	assert.Empty(t, items)
}
