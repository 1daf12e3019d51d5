package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type DiscountKind string

const (
	DiscountPercent DiscountKind = "percent"
	DiscountFixed   DiscountKind = "fixed"
)

// Promotion is a promotion catalog entry. Zero limits mean unlimited.
type Promotion struct {
	Code             string
	TenantID         string
	Description      string
	Kind             DiscountKind
	Value            decimal.Decimal
	MinOrderAmount   decimal.Decimal
	StartsAt         *time.Time
	EndsAt           *time.Time
	Active           bool
	UsageLimit       int
	PerCustomerLimit int
}

// ActiveAt reports whether the promotion is enabled and t lies in its window.
func (p *Promotion) ActiveAt(t time.Time) bool {
	if !p.Active {
		return false
	}
	if p.StartsAt != nil && t.Before(*p.StartsAt) {
		return false
	}
	if p.EndsAt != nil && !t.Before(*p.EndsAt) {
		return false
	}
	return true
}

// Discount is the amount taken off subtotal, never more than subtotal.
func (p *Promotion) Discount(subtotal decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch p.Kind {
	case DiscountPercent:
		d = subtotal.Mul(p.Value).Div(decimal.NewFromInt(100)).Round(2)
	default:
		d = p.Value
	}
	if d.GreaterThan(subtotal) {
		return subtotal
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// PromotionUsage counts persisted redemptions of one code.
type PromotionUsage struct {
	Total    int
	Customer int
}

// Redemption records that an admitted order used a promotion code.
type Redemption struct {
	TenantID   string
	Code       string
	CustomerID string
	OrderID    string
	At         time.Time
}

// LimitIssue returns the issue raised when u has reached one of the promotion's limits,
// or nil. The per-customer limit only applies to identified customers.
func (p *Promotion) LimitIssue(u PromotionUsage, customerID string) *Issue {
	if p.UsageLimit > 0 && u.Total >= p.UsageLimit {
		return &Issue{
			Check:   CheckPromotion,
			Code:    "usage_limit_reached",
			Message: fmt.Sprintf("promotion %s has reached its usage limit of %d", p.Code, p.UsageLimit),
		}
	}
	if p.PerCustomerLimit > 0 && customerID != "" && u.Customer >= p.PerCustomerLimit {
		return &Issue{
			Check:   CheckPromotion,
			Code:    "customer_limit_reached",
			Message: fmt.Sprintf("customer %s already used promotion %s %d time(s)", customerID, p.Code, u.Customer),
		}
	}
	return nil
}
