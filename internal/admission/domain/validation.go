package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Check names used in issues and metrics.
const (
	CheckStoreHours    = "store_hours"
	CheckInventory     = "inventory_availability"
	CheckPromotion     = "promotion"
	CheckDeliveryArea  = "delivery_area"
	CheckMinimumAmount = "minimum_order_amount"
)

// OrderRequest is an inbound order before admission.
type OrderRequest struct {
	TenantID       string
	OutletID       string
	CustomerID     string
	Type           OrderType
	Items          []OrderRequestItem
	ScheduledAt    *time.Time
	PromotionCode  string
	Address        *Address
	IdempotencyKey string
}

type OrderRequestItem struct {
	MenuItemID string
	Quantity   int
}

// Issue is one error or warning raised by a check.
type Issue struct {
	Check      string `json:"check"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	MenuItemID string `json:"menuItemId,omitempty"`
}

// ItemAvailability is the inventory verdict for one order line.
type ItemAvailability struct {
	MenuItemID string     `json:"menuItemId"`
	Name       string     `json:"name"`
	Quantity   int        `json:"quantity"`
	Available  bool       `json:"available"`
	Shortages  []Shortage `json:"shortages,omitempty"`
}

// ValidationResult is the merged verdict of every check. It is never persisted.
type ValidationResult struct {
	IsValid  bool               `json:"isValid"`
	Errors   []Issue            `json:"errors"`
	Warnings []Issue            `json:"warnings"`
	Items    []ItemAvailability `json:"perItemAvailability"`
	Subtotal decimal.Decimal    `json:"subtotal"`
	Discount decimal.Decimal    `json:"discount"`
	Total    decimal.Decimal    `json:"total"`
}

// HasError reports whether any error was raised by the named check.
func (r ValidationResult) HasError(check string) bool {
	for _, e := range r.Errors {
		if e.Check == check {
			return true
		}
	}
	return false
}
