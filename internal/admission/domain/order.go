package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderType string

const (
	OrderTypeDineIn   OrderType = "dine_in"
	OrderTypeTakeout  OrderType = "takeout"
	OrderTypeDelivery OrderType = "delivery"
)

// Valid reports whether t is a known order type.
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeDineIn, OrderTypeTakeout, OrderTypeDelivery:
		return true
	}
	return false
}

type Order struct {
	ID              string
	TenantID        string
	OutletID        string
	CustomerID      string
	Type            OrderType
	Items           []OrderItem
	Status          OrderStatus
	Sequence        int64
	QueuePosition   int
	PromotionCode   string
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	Total           decimal.Decimal
	IdempotencyKey  string
	ScheduledAt     *time.Time
	StockConsumedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type OrderItem struct {
	MenuItemID string
	Name       string
	Quantity   int
	UnitPrice  decimal.Decimal
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Active reports whether the order still occupies a place in its outlet's queue.
func (o *Order) Active() bool {
	return !o.Status.Terminal()
}

// Admission is what the queue persists in one transaction when an order is accepted:
// the order row, the consumption of its whole ingredient demand and an optional
// promotion redemption.
type Admission struct {
	Order      *Order
	Demand     []Requirement
	Promotion  *Promotion
	Redemption *Redemption
}

// AdmitOutcome reports the result of persisting an Admission. Existing is set when the
// idempotency key matched an order admitted earlier; nothing was consumed in that case.
type AdmitOutcome struct {
	Order       *Order
	Existing    bool
	Consumption ConsumeResult
}
