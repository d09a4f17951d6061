package domain

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// BasketEntry is one product line in a visitor's basket.
type BasketEntry struct {
	ProductID int64 `json:"id"`
	Quantity  int   `json:"count"`
}

// MaxQuantity is the largest count a single basket entry or order line may
// hold. It matches the order_items.count column.
const MaxQuantity = math.MaxInt32

// Basket maps product id to a quantity in [1, MaxQuantity]. Other
// quantities are never stored.
type Basket map[int64]int

// Add increments the entry for productID, creating it when absent. It
// reports false and leaves the basket unchanged when quantity is not
// positive or the entry would exceed MaxQuantity.
func (b Basket) Add(productID int64, quantity int) bool {
	if quantity <= 0 || quantity > MaxQuantity-b[productID] {
		return false
	}
	b[productID] += quantity
	return true
}

// AddCapped is Add that saturates at MaxQuantity instead of refusing.
func (b Basket) AddCapped(productID int64, quantity int) {
	if quantity <= 0 {
		return
	}
	if quantity > MaxQuantity-b[productID] {
		b[productID] = MaxQuantity
		return
	}
	b[productID] += quantity
}

// Remove decrements the entry and deletes it once quantity reaches the
// stored amount. It reports whether the basket changed.
func (b Basket) Remove(productID int64, quantity int) bool {
	current, ok := b[productID]
	if !ok || quantity <= 0 {
		return false
	}
	if quantity >= current {
		delete(b, productID)
		return true
	}
	b[productID] = current - quantity
	return true
}

// Entries returns the basket sorted by product id.
func (b Basket) Entries() []BasketEntry {
	out := make([]BasketEntry, 0, len(b))
	for id, qty := range b {
		out = append(out, BasketEntry{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func (b Basket) ProductIDs() []int64 {
	ids := make([]int64, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (b Basket) Clone() Basket {
	out := make(Basket, len(b))
	for id, qty := range b {
		out[id] = qty
	}
	return out
}

// BasketItem is a basket entry decorated with current catalog data.
// Available is false when the product no longer resolves.
type BasketItem struct {
	BasketEntry
	Title         string          `json:"title,omitempty"`
	Price         decimal.Decimal `json:"price"`
	SalePrice     decimal.Decimal `json:"salePrice"`
	HasActiveSale bool            `json:"hasActiveSale"`
	Available     bool            `json:"available"`
}
