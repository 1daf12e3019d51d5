package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Severity classifies a low-stock item.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
)

// Ingredient is the tenant-wide stable identity behind an ingredient name.
type Ingredient struct {
	ID       string
	TenantID string
	Name     string
}

// InventoryItem is the stock record of one ingredient at one outlet.
// CurrentStock never drops below zero.
type InventoryItem struct {
	ID              string
	TenantID        string
	OutletID        string
	IngredientID    string
	Name            string
	Unit            string
	CurrentStock    decimal.Decimal
	MinimumStock    decimal.Decimal
	MaximumStock    decimal.Decimal
	UnitCost        decimal.Decimal
	LastRestockedAt *time.Time
	Version         int64
}

// IsLow reports whether the item is at or below its minimum.
func (i InventoryItem) IsLow() bool {
	return i.CurrentStock.LessThanOrEqual(i.MinimumStock)
}

// Severity is CRITICAL at zero stock, WARNING when at or below minimum, empty otherwise.
func (i InventoryItem) Severity() Severity {
	switch {
	case i.CurrentStock.IsZero():
		return SeverityCritical
	case i.IsLow():
		return SeverityWarning
	default:
		return ""
	}
}

// StockRatio is currentStock/minimumStock, or zero when no minimum is configured.
func (i InventoryItem) StockRatio() decimal.Decimal {
	if !i.MinimumStock.IsPositive() {
		return decimal.Zero
	}
	return i.CurrentStock.DivRound(i.MinimumStock, 8)
}

// ReceiptLine is one line of a goods receipt.
type ReceiptLine struct {
	Name         string
	Quantity     decimal.Decimal
	UnitCost     decimal.Decimal
	Unit         string
	MinimumStock *decimal.Decimal
	MaximumStock *decimal.Decimal
}

// ReceiptOutcome reports one processed receipt line.
type ReceiptOutcome struct {
	Line int
	Item InventoryItem
}

// ReceiptError reports one rejected receipt line.
type ReceiptError struct {
	Line   int
	Name   string
	Reason string
	Err    error `json:"-"`
}

// ReceiveResult is the per-line report of Receive. Lines are independent.
type ReceiveResult struct {
	Processed []ReceiptOutcome
	Errors    []ReceiptError
}

// Requirement is an amount of one ingredient needed at an outlet.
type Requirement struct {
	IngredientID string
	Name         string
	Quantity     decimal.Decimal
}

// Shortage describes one ingredient that cannot cover its requirement.
type Shortage struct {
	IngredientID string          `json:"ingredientId,omitempty"`
	Name         string          `json:"name"`
	Required     decimal.Decimal `json:"required"`
	Available    decimal.Decimal `json:"available"`
	Shortage     decimal.Decimal `json:"shortage"`
}

// NewShortage fills the shortage amount from required and available.
func NewShortage(req Requirement, available decimal.Decimal) Shortage {
	return Shortage{
		IngredientID: req.IngredientID,
		Name:         req.Name,
		Required:     req.Quantity,
		Available:    available,
		Shortage:     req.Quantity.Sub(available),
	}
}

// Availability is the answer of a read-only stock check.
type Availability struct {
	Name         string
	Available    bool
	CurrentStock decimal.Decimal
	MinimumStock decimal.Decimal
	Shortage     decimal.Decimal
}

// ConsumedLine is one deducted ingredient of a successful consumption.
type ConsumedLine struct {
	IngredientID string
	Name         string
	Consumed     decimal.Decimal
	Remaining    decimal.Decimal
}

// ConsumeResult is the structured outcome of Consume. Consumed is false when any line was
// short; in that case Shortages lists every insufficient line and nothing was deducted.
type ConsumeResult struct {
	Consumed  bool
	Lines     []ConsumedLine
	Shortages []Shortage
}

// NormalizeName is the matching key between recipe ingredient names and inventory.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Key identifies the ingredient a requirement refers to: its id when bound, else its
// normalized name.
func (r Requirement) Key() string {
	if r.IngredientID != "" {
		return r.IngredientID
	}
	return "name:" + NormalizeName(r.Name)
}

// MergeRequirements sums requirements that refer to the same ingredient, keeping first-seen order.
func MergeRequirements(reqs []Requirement) []Requirement {
	index := make(map[string]int, len(reqs))
	merged := make([]Requirement, 0, len(reqs))
	for _, r := range reqs {
		key := r.Key()
		if i, ok := index[key]; ok {
			merged[i].Quantity = merged[i].Quantity.Add(r.Quantity)
			continue
		}
		index[key] = len(merged)
		merged = append(merged, r)
	}
	return merged
}

// PlanConsumption decides a check-and-deduct over merged requirements. stock holds the
// current record per Requirement.Key; a missing entry counts as zero stock. Either every
// line is deducted or none is, and then every short line is reported.
func PlanConsumption(reqs []Requirement, stock map[string]InventoryItem) ConsumeResult {
	var res ConsumeResult
	for _, r := range reqs {
		item, ok := stock[r.Key()]
		current := decimal.Zero
		if ok {
			current = item.CurrentStock
		}
		if current.LessThan(r.Quantity) {
			res.Shortages = append(res.Shortages, NewShortage(r, current))
			continue
		}
		res.Lines = append(res.Lines, ConsumedLine{
			IngredientID: item.IngredientID,
			Name:         displayName(r, item),
			Consumed:     r.Quantity,
			Remaining:    current.Sub(r.Quantity),
		})
	}
	if len(res.Shortages) > 0 {
		res.Lines = nil
		return res
	}
	res.Consumed = true
	return res
}

func displayName(r Requirement, item InventoryItem) string {
	if item.Name != "" {
		return item.Name
	}
	return r.Name
}

// LowStockItem is one entry of the low-stock report.
type LowStockItem struct {
	Item     InventoryItem
	Severity Severity
	Ratio    decimal.Decimal
}
