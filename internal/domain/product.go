package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Sale is a percentage discount valid inside [DateFrom, DateTo].
type Sale struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Percent  decimal.Decimal `json:"salePercent"`
	DateFrom time.Time       `json:"dateFrom"`
	DateTo   time.Time       `json:"dateTo"`
}

// ActiveAt reports whether the sale window contains t. Both bounds are inclusive.
func (s *Sale) ActiveAt(t time.Time) bool {
	if s == nil {
		return false
	}
	return !t.Before(s.DateFrom) && !t.After(s.DateTo)
}

// Product is the catalog read model consumed by the basket and order services.
type Product struct {
	ID        int64           `json:"id"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Sale      *Sale           `json:"sale,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// SalePrice is price * (100 - percent) / 100 rounded half-up to cents.
// Without a sale it returns the regular price.
func (p Product) SalePrice() decimal.Decimal {
	if p.Sale == nil {
		return p.Price
	}
	return p.Price.Mul(hundred.Sub(p.Sale.Percent)).Div(hundred).Round(2)
}

func (p Product) HasActiveSale(now time.Time) bool {
	return p.Sale.ActiveAt(now)
}

// EffectivePrice is the unit price an order is charged at now.
func (p Product) EffectivePrice(now time.Time) decimal.Decimal {
	if p.HasActiveSale(now) {
		return p.SalePrice()
	}
	return p.Price
}
