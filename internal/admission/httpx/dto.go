package httpx

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/kitchen-admission/internal/admission/domain"
	"github.com/jcmexdev/kitchen-admission/internal/admission/statuslog"
)

type ReceiptRequest struct {
	Lines []ReceiptLineDTO `json:"lines" validate:"required,min=1"`
}

// ReceiptLineDTO is checked line by line by the ledger, so a bad line does not fail the
// whole receipt.
type ReceiptLineDTO struct {
	Name         string           `json:"name"`
	Quantity     decimal.Decimal  `json:"quantity"`
	UnitCost     decimal.Decimal  `json:"unitCost"`
	Unit         string           `json:"unit,omitempty"`
	MinimumStock *decimal.Decimal `json:"minimumStock,omitempty"`
	MaximumStock *decimal.Decimal `json:"maximumStock,omitempty"`
}

type ReceiptResponse struct {
	Processed []ReceiptOutcomeDTO `json:"processed"`
	Errors    []ReceiptErrorDTO   `json:"errors"`
}

type ReceiptOutcomeDTO struct {
	Line int              `json:"line"`
	Item InventoryItemDTO `json:"item"`
}

type ReceiptErrorDTO struct {
	Line   int    `json:"line"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type InventoryItemDTO struct {
	ID              string          `json:"id"`
	OutletID        string          `json:"outletId"`
	IngredientID    string          `json:"ingredientId"`
	Name            string          `json:"name"`
	Unit            string          `json:"unit,omitempty"`
	CurrentStock    decimal.Decimal `json:"currentStock"`
	MinimumStock    decimal.Decimal `json:"minimumStock"`
	MaximumStock    decimal.Decimal `json:"maximumStock"`
	UnitCost        decimal.Decimal `json:"unitCost"`
	LastRestockedAt *time.Time      `json:"lastRestockedAt,omitempty"`
}

type AvailabilityResponse struct {
	Name         string          `json:"name"`
	Available    bool            `json:"available"`
	CurrentStock decimal.Decimal `json:"currentStock"`
	MinimumStock decimal.Decimal `json:"minimumStock"`
	Shortage     decimal.Decimal `json:"shortage"`
}

type ConsumeRequest struct {
	Lines      []ConsumeLineDTO `json:"lines" validate:"required,min=1,dive"`
	Multiplier int              `json:"multiplier" validate:"gte=1"`
}

type ConsumeLineDTO struct {
	Name            string          `json:"name" validate:"required"`
	QuantityPerUnit decimal.Decimal `json:"quantityPerUnit"`
}

type ConsumeResponse struct {
	Consumed  bool              `json:"consumed"`
	Lines     []ConsumedLineDTO `json:"lines"`
	Shortages []domain.Shortage `json:"shortages"`
}

type ConsumedLineDTO struct {
	IngredientID string          `json:"ingredientId"`
	Name         string          `json:"name"`
	Consumed     decimal.Decimal `json:"consumed"`
	Remaining    decimal.Decimal `json:"remaining"`
}

type LowStockDTO struct {
	Item     InventoryItemDTO `json:"item"`
	Severity domain.Severity  `json:"severity"`
	Ratio    decimal.Decimal  `json:"ratio"`
}

type AvailabilityChangesResponse struct {
	Changed []domain.MenuAvailability `json:"changed"`
}

type MenuResponse struct {
	Items []domain.MenuAvailability `json:"items"`
}

type OrderRequestDTO struct {
	CustomerID    string         `json:"customerId" validate:"required"`
	OrderType     string         `json:"orderType" validate:"required"`
	Items         []OrderLineDTO `json:"items"`
	ScheduledAt   *time.Time     `json:"scheduledAt,omitempty"`
	PromotionCode string         `json:"promotionCode,omitempty"`
	Address       *AddressDTO    `json:"address,omitempty"`
}

// OrderLineDTO is not validated here: empty orders and bad quantities are reported by the
// inventory check together with every other problem.
type OrderLineDTO struct {
	MenuItemID string `json:"menuItemId"`
	Quantity   int    `json:"quantity"`
}

type AddressDTO struct {
	Line1      string   `json:"line1,omitempty"`
	PostalCode string   `json:"postalCode,omitempty"`
	Lat        *float64 `json:"lat,omitempty" validate:"omitempty,latitude"`
	Lng        *float64 `json:"lng,omitempty" validate:"omitempty,longitude"`
}

type OrderResponse struct {
	ID              string                   `json:"id"`
	TenantID        string                   `json:"tenantId"`
	OutletID        string                   `json:"outletId"`
	CustomerID      string                   `json:"customerId"`
	OrderType       domain.OrderType         `json:"orderType"`
	Status          domain.OrderStatus       `json:"status"`
	Sequence        int64                    `json:"sequence"`
	QueuePosition   int                      `json:"queuePosition"`
	PromotionCode   string                   `json:"promotionCode,omitempty"`
	Subtotal        decimal.Decimal          `json:"subtotal"`
	Discount        decimal.Decimal          `json:"discount"`
	Total           decimal.Decimal          `json:"total"`
	IdempotencyKey  string                   `json:"idempotencyKey,omitempty"`
	Items           []OrderItemResponse      `json:"items"`
	ScheduledAt     *time.Time               `json:"scheduledAt,omitempty"`
	StockConsumedAt *time.Time               `json:"stockConsumedAt,omitempty"`
	CreatedAt       time.Time                `json:"createdAt"`
	UpdatedAt       time.Time                `json:"updatedAt"`
	Existing        bool                     `json:"existing,omitempty"`
	Validation      *domain.ValidationResult `json:"validation,omitempty"`
}

type OrderItemResponse struct {
	MenuItemID string          `json:"menuItemId"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
}

type QueueResponse struct {
	Orders []OrderResponse `json:"orders"`
}

type StatusRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason,omitempty"`
}

type HistoryEntryDTO struct {
	From    domain.OrderStatus `json:"from,omitempty"`
	To      domain.OrderStatus `json:"to"`
	Reason  string             `json:"reason,omitempty"`
	TraceID string             `json:"traceId,omitempty"`
	At      time.Time          `json:"at"`
}

type MenuItemRequest struct {
	Name    string          `json:"name" validate:"required"`
	Price   decimal.Decimal `json:"price"`
	Outlets []string        `json:"outlets,omitempty"`
	Recipe  []RecipeLineDTO `json:"recipe" validate:"dive"`
}

type RecipeLineDTO struct {
	Name            string          `json:"name" validate:"required"`
	QuantityPerUnit decimal.Decimal `json:"quantityPerUnit"`
}

type MenuItemResponse struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Price   decimal.Decimal `json:"price"`
	Outlets []string        `json:"outlets"`
	Recipe  []RecipeLineOut `json:"recipe"`
}

type RecipeLineOut struct {
	IngredientID    string          `json:"ingredientId"`
	Name            string          `json:"name"`
	QuantityPerUnit decimal.Decimal `json:"quantityPerUnit"`
}

type ErrorResponse struct {
	Error      string                   `json:"error"`
	Message    string                   `json:"message,omitempty"`
	Shortages  []domain.Shortage        `json:"shortages,omitempty"`
	Validation *domain.ValidationResult `json:"validation,omitempty"`
}

func mapItem(i domain.InventoryItem) InventoryItemDTO {
	return InventoryItemDTO{
		ID:              i.ID,
		OutletID:        i.OutletID,
		IngredientID:    i.IngredientID,
		Name:            i.Name,
		Unit:            i.Unit,
		CurrentStock:    i.CurrentStock,
		MinimumStock:    i.MinimumStock,
		MaximumStock:    i.MaximumStock,
		UnitCost:        i.UnitCost,
		LastRestockedAt: i.LastRestockedAt,
	}
}

func mapConsume(res domain.ConsumeResult) ConsumeResponse {
	out := ConsumeResponse{
		Consumed:  res.Consumed,
		Lines:     make([]ConsumedLineDTO, 0, len(res.Lines)),
		Shortages: res.Shortages,
	}
	if out.Shortages == nil {
		out.Shortages = []domain.Shortage{}
	}
	for _, l := range res.Lines {
		out.Lines = append(out.Lines, ConsumedLineDTO{
			IngredientID: l.IngredientID,
			Name:         l.Name,
			Consumed:     l.Consumed,
			Remaining:    l.Remaining,
		})
	}
	return out
}

func mapOrderToResponse(o *domain.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemResponse{
			MenuItemID: it.MenuItemID,
			Name:       it.Name,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
		})
	}
	return OrderResponse{
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
		IdempotencyKey:  o.IdempotencyKey,
		Items:           items,
		ScheduledAt:     o.ScheduledAt,
		StockConsumedAt: o.StockConsumedAt,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func mapHistory(entries []statuslog.Entry) []HistoryEntryDTO {
	out := make([]HistoryEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntryDTO{From: e.From, To: e.To, Reason: e.Reason, TraceID: e.TraceID, At: e.At})
	}
	return out
}

func mapMenuItem(m *domain.MenuItem) MenuItemResponse {
	out := MenuItemResponse{
		ID:      m.ID,
		Name:    m.Name,
		Price:   m.Price,
		Outlets: m.OutletIDs,
		Recipe:  make([]RecipeLineOut, 0, len(m.Recipe)),
	}
	if out.Outlets == nil {
		out.Outlets = []string{}
	}
	for _, l := range m.Recipe {
		out.Recipe = append(out.Recipe, RecipeLineOut{
			IngredientID:    l.IngredientID,
			Name:            l.Name,
			QuantityPerUnit: l.QuantityPerUnit,
		})
	}
	return out
}

func (a *AddressDTO) toDomain() *domain.Address {
	if a == nil {
		return nil
	}
	addr := &domain.Address{Line1: a.Line1, PostalCode: a.PostalCode}
	if a.Lat != nil && a.Lng != nil {
		addr.Location = &domain.GeoPoint{Lat: *a.Lat, Lng: *a.Lng}
	}
	return addr
}
