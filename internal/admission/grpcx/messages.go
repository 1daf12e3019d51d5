package grpcx

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/kitchen-admission/internal/admission/domain"
)

type OrderLine struct {
	MenuItemID string `json:"menuItemId"`
	Quantity   int    `json:"quantity"`
}

type Address struct {
	Line1      string   `json:"line1,omitempty"`
	PostalCode string   `json:"postalCode,omitempty"`
	Lat        *float64 `json:"lat,omitempty"`
	Lng        *float64 `json:"lng,omitempty"`
}

type OrderRequest struct {
	TenantID       string      `json:"tenantId"`
	OutletID       string      `json:"outletId"`
	CustomerID     string      `json:"customerId"`
	OrderType      string      `json:"orderType"`
	Items          []OrderLine `json:"items"`
	ScheduledAt    *time.Time  `json:"scheduledAt,omitempty"`
	PromotionCode  string      `json:"promotionCode,omitempty"`
	Address        *Address    `json:"address,omitempty"`
	IdempotencyKey string      `json:"idempotencyKey,omitempty"`
}

type ValidateResponse struct {
	Result domain.ValidationResult `json:"result"`
}

// AdmitResponse reports a rejected order with Admitted false and the failed verdict,
// rather than as an error status.
type AdmitResponse struct {
	Admitted   bool                     `json:"admitted"`
	Existing   bool                     `json:"existing"`
	Order      *Order                   `json:"order,omitempty"`
	Validation *domain.ValidationResult `json:"validation,omitempty"`
}

type ProcessNextRequest struct {
	TenantID string `json:"tenantId"`
	OutletID string `json:"outletId"`
}

// ProcessNextResponse has no order when the outlet's queue is empty.
type ProcessNextResponse struct {
	Order *Order `json:"order,omitempty"`
}

type TransitionRequest struct {
	TenantID string `json:"tenantId"`
	OutletID string `json:"outletId"`
	OrderID  string `json:"orderId"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
}

type TransitionResponse struct {
	Order *Order `json:"order"`
}

type ConsumeLine struct {
	Name            string          `json:"name"`
	QuantityPerUnit decimal.Decimal `json:"quantityPerUnit"`
}

type ConsumeRequest struct {
	TenantID   string        `json:"tenantId"`
	OutletID   string        `json:"outletId"`
	Lines      []ConsumeLine `json:"lines"`
	Multiplier int           `json:"multiplier"`
}

type ConsumedLine struct {
	IngredientID string          `json:"ingredientId"`
	Name         string          `json:"name"`
	Consumed     decimal.Decimal `json:"consumed"`
	Remaining    decimal.Decimal `json:"remaining"`
}

type ConsumeResponse struct {
	Consumed  bool              `json:"consumed"`
	Lines     []ConsumedLine    `json:"lines"`
	Shortages []domain.Shortage `json:"shortages"`
}

type ReceiptLine struct {
	Name         string           `json:"name"`
	Quantity     decimal.Decimal  `json:"quantity"`
	UnitCost     decimal.Decimal  `json:"unitCost"`
	Unit         string           `json:"unit,omitempty"`
	MinimumStock *decimal.Decimal `json:"minimumStock,omitempty"`
	MaximumStock *decimal.Decimal `json:"maximumStock,omitempty"`
}

type ReceiveRequest struct {
	TenantID string        `json:"tenantId"`
	OutletID string        `json:"outletId"`
	Lines    []ReceiptLine `json:"lines"`
}

type ReceivedLine struct {
	Line         int             `json:"line"`
	ItemID       string          `json:"itemId"`
	Name         string          `json:"name"`
	CurrentStock decimal.Decimal `json:"currentStock"`
}

type RejectedLine struct {
	Line   int    `json:"line"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type ReceiveResponse struct {
	Processed []ReceivedLine `json:"processed"`
	Errors    []RejectedLine `json:"errors"`
}

type OrderItem struct {
	MenuItemID string          `json:"menuItemId"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
}

type Order struct {
	ID              string             `json:"id"`
	TenantID        string             `json:"tenantId"`
	OutletID        string             `json:"outletId"`
	CustomerID      string             `json:"customerId"`
	OrderType       domain.OrderType   `json:"orderType"`
	Status          domain.OrderStatus `json:"status"`
	Sequence        int64              `json:"sequence"`
	QueuePosition   int                `json:"queuePosition"`
	PromotionCode   string             `json:"promotionCode,omitempty"`
	Subtotal        decimal.Decimal    `json:"subtotal"`
	Discount        decimal.Decimal    `json:"discount"`
	Total           decimal.Decimal    `json:"total"`
	Items           []OrderItem        `json:"items"`
	StockConsumedAt *time.Time         `json:"stockConsumedAt,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

func toOrder(o *domain.Order) *Order {
	if o == nil {
		return nil
	}
	out := &Order{
		ID:              o.ID,
		TenantID:        o.TenantID,
		OutletID:        o.OutletID,
		CustomerID:      o.CustomerID,
		OrderType:       o.Type,
		Status:          o.Status,
		Sequence:        o.Sequence,
		QueuePosition:   o.QueuePosition,
		PromotionCode:   o.PromotionCode,
		Subtotal:        o.Subtotal,
		Discount:        o.Discount,
		Total:           o.Total,
		Items:           make([]OrderItem, 0, len(o.Items)),
		StockConsumedAt: o.StockConsumedAt,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for _, it := range o.Items {
		out.Items = append(out.Items, OrderItem{
			MenuItemID: it.MenuItemID,
			Name:       it.Name,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
		})
	}
	return out
}

func (r *OrderRequest) toDomain(tenantID string) domain.OrderRequest {
	req := domain.OrderRequest{
		TenantID:       tenantID,
		OutletID:       r.OutletID,
		CustomerID:     r.CustomerID,
		Type:           domain.OrderType(r.OrderType),
		ScheduledAt:    r.ScheduledAt,
		PromotionCode:  r.PromotionCode,
		IdempotencyKey: r.IdempotencyKey,
	}
	for _, it := range r.Items {
		req.Items = append(req.Items, domain.OrderRequestItem{MenuItemID: it.MenuItemID, Quantity: it.Quantity})
	}
	if a := r.Address; a != nil {
		req.Address = &domain.Address{Line1: a.Line1, PostalCode: a.PostalCode}
		if a.Lat != nil && a.Lng != nil {
			req.Address.Location = &domain.GeoPoint{Lat: *a.Lat, Lng: *a.Lng}
		}
	}
	return req
}
