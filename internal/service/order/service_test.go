package order

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
	orderrepo "storefront/internal/repository/order"
	"storefront/internal/service/basket"
	"storefront/internal/service/catalog"
	"storefront/internal/session"
)

// memRepo is an in-memory orderrepo.Repository with the same open-order
// uniqueness the database enforces.
type memRepo struct {
	nextID int64
	orders map[int64]*domain.Order
	stale  []domain.Identity
}

func newMemRepo() *memRepo {
	return &memRepo{nextID: 1, orders: map[int64]*domain.Order{}}
}

func copyOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Lines = append([]domain.OrderLine(nil), o.Lines...)
	return &c
}

func owns(o *domain.Order, owner domain.Identity) bool {
	if owner.ProfileID != nil {
		return o.ProfileID != nil && *o.ProfileID == *owner.ProfileID
	}
	return o.SessionID != nil && *o.SessionID == owner.SessionID
}

func (m *memRepo) insert(o *domain.Order) *domain.Order {
	o.ID = m.nextID
	m.nextID++
	m.orders[o.ID] = copyOrder(o)
	return o
}

func (m *memRepo) Create(_ context.Context, owner domain.Identity) (*domain.Order, error) {
	for _, o := range m.orders {
		if !o.Paid && owns(o, owner) {
			return nil, domain.ErrAlreadyExists
		}
	}
	o := &domain.Order{
		Status:       domain.OrderStatusAccepted,
		Stale:        true,
		TotalCost:    decimal.Zero,
		DeliveryType: domain.DefaultDeliveryType,
		PaymentType:  domain.DefaultPaymentType,
		CreatedAt:    time.Now(),
	}
	if owner.ProfileID != nil {
		o.AssignProfile(*owner.ProfileID)
	} else {
		sid := owner.SessionID
		o.SessionID = &sid
	}
	return copyOrder(m.insert(o)), nil
}

func (m *memRepo) GetByID(_ context.Context, id int64) (*domain.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyOrder(o), nil
}

func (m *memRepo) GetOpen(_ context.Context, owner domain.Identity) (*domain.Order, error) {
	for _, o := range m.orders {
		if !o.Paid && owns(o, owner) {
			return copyOrder(o), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memRepo) ListByProfile(_ context.Context, profileID int64) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range m.orders {
		if o.ProfileID != nil && *o.ProfileID == profileID {
			out = append(out, *copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memRepo) Save(_ context.Context, o *domain.Order) error {
	if _, ok := m.orders[o.ID]; !ok {
		return domain.ErrNotFound
	}
	m.orders[o.ID] = copyOrder(o)
	return nil
}

func (m *memRepo) MarkStale(_ context.Context, owner domain.Identity) error {
	m.stale = append(m.stale, owner)
	for _, o := range m.orders {
		if !o.Paid && owns(o, owner) {
			o.Stale = true
		}
	}
	return nil
}

func (m *memRepo) MarkPaid(_ context.Context, id int64) (*domain.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	o.MarkPaid()
	return copyOrder(o), nil
}

func (m *memRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.orders[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.orders, id)
	return nil
}

func (m *memRepo) WithinTx(_ context.Context, fn func(tx orderrepo.Repository) error) error {
	snapshot := make(map[int64]*domain.Order, len(m.orders))
	for id, o := range m.orders {
		snapshot[id] = copyOrder(o)
	}
	if err := fn(m); err != nil {
		m.orders = snapshot
		return err
	}
	return nil
}

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

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	svc     *Service
	repo    *memRepo
	baskets *basket.Service
	catalog *stubCatalog
	ident   domain.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mgr := session.NewManager(session.NewMemoryStore(), time.Hour)
	sid, err := mgr.Start(context.Background())
	require.NoError(t, err)

	cat := &stubCatalog{entries: map[int64]catalog.Entry{
		3: {ProductID: 3, Title: "Three", UnitPrice: price("5.00"), SaleUnitPrice: price("5.00")},
		4: {ProductID: 4, Title: "Four", UnitPrice: price("1.25"), SaleUnitPrice: price("1.25")},
		7: {ProductID: 7, Title: "Seven", UnitPrice: price("10.00"), SaleUnitPrice: price("10.00")},
		9: {ProductID: 9, Title: "Nine", UnitPrice: price("2.50"), SaleUnitPrice: price("2.50")},
		11: {ProductID: 11, Title: "Eleven", UnitPrice: price("10.00"), SaleUnitPrice: price("8.50"), HasActiveSale: true},
	}}
	repo := newMemRepo()
	baskets := basket.New(mgr, cat, repo, nil)
	return &fixture{
		svc:     New(repo, baskets, cat, nil, nil),
		repo:    repo,
		baskets: baskets,
		catalog: cat,
		ident:   domain.AnonymousIdentity(sid),
	}
}

func (f *fixture) seedOrder(owner domain.Identity, lines ...domain.OrderLine) *domain.Order {
	o := &domain.Order{Status: domain.OrderStatusAccepted, TotalCost: decimal.Zero}
	if owner.ProfileID != nil {
		o.AssignProfile(*owner.ProfileID)
	} else {
		sid := owner.SessionID
		o.SessionID = &sid
	}
	for _, l := range lines {
		o.Lines = append(o.Lines, l)
		o.TotalCost = o.TotalCost.Add(l.Total())
	}
	return f.repo.insert(o)
}

func TestSubmitOrder_BuildsLinesFromBasket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.baskets.Add(ctx, f.ident, 7, 2)
	require.NoError(t, err)

	o, err := f.svc.SubmitOrder(ctx, f.ident, nil)
	require.NoError(t, err)
	assert.True(t, price("20.00").Equal(o.TotalCost), "total %s", o.TotalCost)
	require.Len(t, o.Lines, 1)
	assert.Equal(t, int64(7), o.Lines[0].ProductID)
	assert.Equal(t, 2, o.Lines[0].Quantity)
	assert.Equal(t, domain.OrderFresh, o.State())

	stored, err := f.repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, stored.Stale)
}

func TestSubmitOrder_RebuildIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.baskets.Add(ctx, f.ident, 7, 1)
	require.NoError(t, err)
	_, err = f.baskets.Add(ctx, f.ident, 3, 3)
	require.NoError(t, err)

	first, err := f.svc.SubmitOrder(ctx, f.ident, nil)
	require.NoError(t, err)

	// force a second rebuild over the same basket
	require.NoError(t, f.repo.MarkStale(ctx, f.ident))
	second, err := f.svc.SubmitOrder(ctx, f.ident, nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Lines, second.Lines)
	assert.True(t, first.TotalCost.Equal(second.TotalCost))
	assert.True(t, price("25.00").Equal(second.TotalCost))
}

func TestSubmitOrder_UsesSalePrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.baskets.Add(ctx, f.ident, 11, 2)
	require.NoError(t, err)

	o, err := f.svc.SubmitOrder(ctx, f.ident, nil)
	require.NoError(t, err)
	require.Len(t, o.Lines, 1)
	assert.True(t, price("8.50").Equal(o.Lines[0].UnitPrice))
	assert.True(t, price("17.00").Equal(o.TotalCost))
}

func TestSubmitOrder_BasketChangeMarksStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.baskets.Add(ctx, f.ident, 7, 1)
	require.NoError(t, err)
	o, err := f.svc.SubmitOrder(ctx, f.ident, nil)
	require.NoError(t, err)

	_, err = f.baskets.Add(ctx, f.ident, 7, 1)
	require.NoError(t, err)
	stored, err := f.repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStale, stored.State())

	o, err = f.svc.SubmitOrder(ctx, f.ident, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, o.Lines[0].Quantity)
	assert.True(t, price("20.00").Equal(o.TotalCost))
}

func TestSubmitOrder_DropsVanishedProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.baskets.Add(ctx, f.ident, 7, 1)
	require.NoError(t, err)
	_, err = f.baskets.Add(ctx, f.ident, 9, 2)
	require.NoError(t, err)
	delete(f.catalog.entries, 9)

	o, err := f.svc.SubmitOrder(ctx, f.ident, nil)
	require.NoError(t, err)
	require.Len(t, o.Lines, 1)
	assert.Equal(t, int64(7), o.Lines[0].ProductID)
	assert.True(t, price("10.00").Equal(o.TotalCost))
}

func TestSubmitOrder_InvalidFieldsWriteNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.baskets.Add(ctx, f.ident, 7, 1)
	require.NoError(t, err)

	_, err = f.svc.SubmitOrder(ctx, f.ident, &domain.ShippingFields{FullName: "Ann", Phone: "abc"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "phone")
	assert.Contains(t, verr.Fields, "email")
	assert.Empty(t, f.repo.orders)
}

func TestSubmitOrder_StoresShippingFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.baskets.Add(ctx, f.ident, 7, 1)
	require.NoError(t, err)

	fields := domain.ShippingFields{
		FullName:     "Ann Lee",
		Phone:        "5550123",
		Email:        "ann@example.com",
		City:         "Springfield",
		Address:      "1 Main St",
		DeliveryType: "express",
		PaymentType:  "online",
	}
	o, err := f.svc.SubmitOrder(ctx, f.ident, &fields)
	require.NoError(t, err)

	stored, err := f.repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", stored.FullName)
	assert.Equal(t, "express", stored.DeliveryType)
	assert.Len(t, stored.Lines, 1)
}

func TestOnLogin_MergesBothOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const profileID = int64(5)

	_, err := f.baskets.Add(ctx, f.ident, 3, 1)
	require.NoError(t, err)
	anon := f.seedOrder(f.ident, domain.OrderLine{ProductID: 3, Quantity: 1, UnitPrice: price("5.00")})
	registered := domain.ProfileIdentity(f.ident.SessionID, profileID)
	u := f.seedOrder(registered,
		domain.OrderLine{ProductID: 3, Quantity: 2, UnitPrice: price("5.00")},
		domain.OrderLine{ProductID: 9, Quantity: 1, UnitPrice: price("2.50")},
	)

	branch, err := f.svc.OnLogin(ctx, f.ident.SessionID, profileID)
	require.NoError(t, err)
	assert.Equal(t, MergeBoth, branch)

	_, err = f.repo.GetByID(ctx, u.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	merged, err := f.repo.GetByID(ctx, anon.ID)
	require.NoError(t, err)
	require.NotNil(t, merged.ProfileID)
	assert.Equal(t, profileID, *merged.ProfileID)
	assert.Nil(t, merged.SessionID)
	assert.Equal(t, []domain.OrderLine{
		{ProductID: 3, Quantity: 3, UnitPrice: price("5.00")},
		{ProductID: 9, Quantity: 1, UnitPrice: price("2.50")},
	}, merged.Lines)
	assert.True(t, price("17.50").Equal(merged.TotalCost), "total %s", merged.TotalCost)

	b, err := f.baskets.Contents(ctx, registered)
	require.NoError(t, err)
	assert.Equal(t, domain.Basket{3: 3, 9: 1}, b)
}

func TestOnLogin_ProfileOnlyPushesLinesAndKeepsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const profileID = int64(8)

	registered := domain.ProfileIdentity(f.ident.SessionID, profileID)
	u := f.seedOrder(registered, domain.OrderLine{ProductID: 4, Quantity: 3, UnitPrice: price("1.25")})
	before, err := f.repo.GetByID(ctx, u.ID)
	require.NoError(t, err)

	branch, err := f.svc.OnLogin(ctx, f.ident.SessionID, profileID)
	require.NoError(t, err)
	assert.Equal(t, MergeProfileOnly, branch)

	b, err := f.baskets.Contents(ctx, registered)
	require.NoError(t, err)
	assert.Equal(t, domain.Basket{4: 3}, b)

	after, err := f.repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestOnLogin_AnonymousOnlyDeletesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.baskets.Add(ctx, f.ident, 7, 2)
	require.NoError(t, err)
	anon := f.seedOrder(f.ident, domain.OrderLine{ProductID: 7, Quantity: 2, UnitPrice: price("10.00")})

	branch, err := f.svc.OnLogin(ctx, f.ident.SessionID, 3)
	require.NoError(t, err)
	assert.Equal(t, MergeAnonymousOnly, branch)

	_, err = f.repo.GetByID(ctx, anon.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	b, err := f.baskets.Contents(ctx, f.ident)
	require.NoError(t, err)
	assert.Equal(t, domain.Basket{7: 2}, b)
}

func TestOnLogin_NoOrders(t *testing.T) {
	f := newFixture(t)

	branch, err := f.svc.OnLogin(context.Background(), f.ident.SessionID, 3)
	require.NoError(t, err)
	assert.Equal(t, MergeNone, branch)
	assert.Empty(t, f.repo.orders)
}

func TestPay_MarksPaidAndClearsBasket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.baskets.Add(ctx, f.ident, 7, 1)
	require.NoError(t, err)
	o := f.seedOrder(f.ident, domain.OrderLine{ProductID: 7, Quantity: 1, UnitPrice: price("10.00")})

	require.NoError(t, f.svc.Pay(ctx, f.ident, o.ID))

	paid, err := f.repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, paid.Paid)
	assert.Equal(t, "Paid", paid.Status)

	b, err := f.baskets.Contents(ctx, f.ident)
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestPay_UnknownOrderKeepsBasket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.baskets.Add(ctx, f.ident, 7, 1)
	require.NoError(t, err)

	err = f.svc.Pay(ctx, f.ident, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	b, err := f.baskets.Contents(ctx, f.ident)
	require.NoError(t, err)
	assert.Equal(t, domain.Basket{7: 1}, b)
}

type clearFailingBasket struct {
	*basket.Service
}

func (clearFailingBasket) Clear(context.Context, domain.Identity) error {
	return errors.New("session store down")
}

func TestPay_ClearFailureStillPays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := New(f.repo, clearFailingBasket{f.baskets}, f.catalog, nil, nil)

	_, err := f.baskets.Add(ctx, f.ident, 7, 1)
	require.NoError(t, err)
	o := f.seedOrder(f.ident, domain.OrderLine{ProductID: 7, Quantity: 1, UnitPrice: price("10.00")})

	require.NoError(t, svc.Pay(ctx, f.ident, o.ID))

	paid, err := f.repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, paid.Paid)
}

func TestSubmitOrder_BasketOverflowIsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.baskets.Add(ctx, f.ident, 7, domain.MaxQuantity)
	require.NoError(t, err)
	_, err = f.baskets.Add(ctx, f.ident, 7, 1)
	assert.ErrorIs(t, err, domain.ErrValidation)

	o, err := f.svc.SubmitOrder(ctx, f.ident, nil)
	require.NoError(t, err)
	require.Len(t, o.Lines, 1)
	assert.Equal(t, domain.MaxQuantity, o.Lines[0].Quantity)
	assert.True(t, o.TotalCost.IsPositive(), "total %s", o.TotalCost)
}

func TestListOrders_RequiresProfile(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ListOrders(context.Background(), f.ident)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestGetOrder_RebuildsStaleOrderForOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.baskets.Add(ctx, f.ident, 7, 1)
	require.NoError(t, err)
	o, err := f.svc.SubmitOrder(ctx, f.ident, nil)
	require.NoError(t, err)
	_, err = f.baskets.Add(ctx, f.ident, 9, 2)
	require.NoError(t, err)

	got, err := f.svc.GetOrder(ctx, f.ident, o.ID)
	require.NoError(t, err)
	assert.Len(t, got.Lines, 2)
	assert.True(t, price("15.00").Equal(got.TotalCost))
	assert.Equal(t, domain.OrderFresh, got.State())
}

func TestGetOrder_OtherVisitorSeesStoredLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o := f.seedOrder(domain.AnonymousIdentity("someone-else"), domain.OrderLine{ProductID: 7, Quantity: 1, UnitPrice: price("10.00")})
	require.NoError(t, f.repo.MarkStale(ctx, domain.AnonymousIdentity("someone-else")))

	got, err := f.svc.GetOrder(ctx, f.ident, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStale, got.State())
	assert.Len(t, got.Lines, 1)
}
