package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderStatusAccepted = "accepted"
	OrderStatusPaid     = "Paid"

	DefaultDeliveryType = "paid"
	DefaultPaymentType  = "online"
)

// OrderState is derived from the paid and stale flags.
type OrderState string

const (
	OrderFresh OrderState = "fresh"
	OrderStale OrderState = "stale"
	OrderPaid  OrderState = "paid"
)

// OrderLine is one product in an order. UnitPrice is the price basis
// captured when the line was derived.
type OrderLine struct {
	ProductID int64           `json:"product"`
	Quantity  int             `json:"count"`
	UnitPrice decimal.Decimal `json:"price"`
}

func (l OrderLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// ShippingFields are the checkout details collected from the buyer.
type ShippingFields struct {
	FullName     string `json:"fullName" validate:"required,max=100"`
	Phone        string `json:"phone" validate:"required,numeric,min=5,max=20"`
	Email        string `json:"email" validate:"required,email,max=254"`
	City         string `json:"city" validate:"required,max=100"`
	Address      string `json:"address" validate:"required,max=100"`
	DeliveryType string `json:"deliveryType" validate:"required,max=30"`
	PaymentType  string `json:"paymentType" validate:"required,max=30"`
}

// Order is owned by exactly one of ProfileID or SessionID.
type Order struct {
	ID           int64           `json:"id"`
	ProfileID    *int64          `json:"profileId,omitempty"`
	SessionID    *string         `json:"-"`
	CreatedAt    time.Time       `json:"createdAt"`
	Paid         bool            `json:"paid"`
	Status       string          `json:"status"`
	Stale        bool            `json:"-"`
	TotalCost    decimal.Decimal `json:"totalCost"`
	DeliveryType string          `json:"deliveryType"`
	PaymentType  string          `json:"paymentType"`
	FullName     string          `json:"fullName"`
	Phone        string          `json:"phone"`
	Email        string          `json:"email"`
	City         string          `json:"city"`
	Address      string          `json:"address"`
	Lines        []OrderLine     `json:"products"`
}

func (o *Order) State() OrderState {
	switch {
	case o.Paid:
		return OrderPaid
	case o.Stale:
		return OrderStale
	default:
		return OrderFresh
	}
}

// AssignProfile moves ownership from the anonymous session to profileID.
func (o *Order) AssignProfile(profileID int64) {
	id := profileID
	o.ProfileID = &id
	o.SessionID = nil
}

func (o *Order) ApplyShipping(f ShippingFields) {
	o.FullName = f.FullName
	o.Phone = f.Phone
	o.Email = f.Email
	o.City = f.City
	o.Address = f.Address
	o.DeliveryType = f.DeliveryType
	o.PaymentType = f.PaymentType
}

// AbsorbLines folds other into the order, summing quantities per product
// up to MaxQuantity. TotalCost grows by each moved line's own price basis,
// not a fresh lookup.
func (o *Order) AbsorbLines(other []OrderLine) {
	index := make(map[int64]int, len(o.Lines))
	for i, l := range o.Lines {
		index[l.ProductID] = i
	}
	for _, l := range other {
		if l.Quantity <= 0 {
			continue
		}
		moved := l
		if i, ok := index[l.ProductID]; ok {
			moved.Quantity = min(l.Quantity, MaxQuantity-o.Lines[i].Quantity)
			o.Lines[i].Quantity += moved.Quantity
		} else {
			moved.Quantity = min(l.Quantity, MaxQuantity)
			index[l.ProductID] = len(o.Lines)
			o.Lines = append(o.Lines, moved)
		}
		o.TotalCost = o.TotalCost.Add(moved.Total())
	}
}

func (o *Order) MarkPaid() {
	o.Paid = true
	o.Status = OrderStatusPaid
}
