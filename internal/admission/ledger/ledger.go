// Package ledger is the per-outlet stock ledger: goods receipts, read-only availability
// checks, all-or-nothing consumption and low-stock reporting.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jcmexdev/kitchen-admission/internal/admission/domain"
	"github.com/jcmexdev/kitchen-admission/internal/admission/events"
	"github.com/jcmexdev/kitchen-admission/internal/admission/ports"
	"github.com/jcmexdev/kitchen-admission/internal/pkg/metrics"
)

var tracer = otel.Tracer("kitchen-admission/ledger")

// Repository is the storage port of the ledger.
type Repository interface {
	// ReceiveLine finds or creates the item and adds the quantity in one transaction.
	ReceiveLine(ctx context.Context, tenantID, outletID string, line domain.ReceiptLine, at time.Time) (domain.InventoryItem, error)
	// FindItemByName returns nil when the outlet has no record for the ingredient.
	FindItemByName(ctx context.Context, tenantID, outletID, name string) (*domain.InventoryItem, error)
	// ListItems lists one outlet, or the whole tenant when outletID is empty.
	ListItems(ctx context.Context, tenantID, outletID string) ([]domain.InventoryItem, error)
	// Consume checks and deducts every requirement atomically.
	Consume(ctx context.Context, tenantID, outletID string, reqs []domain.Requirement) (domain.ConsumeResult, error)
}

type Ledger struct {
	repo    Repository
	outlets ports.OutletDirectory
	pub     events.Publisher
	metrics *metrics.Metrics
	now     func() time.Time
}

// New builds a ledger. pub and m may be nil; then no events are emitted and no metrics
// are recorded.
func New(repo Repository, outlets ports.OutletDirectory, pub events.Publisher, m *metrics.Metrics) *Ledger {
	return &Ledger{
		repo:    repo,
		outlets: outlets,
		pub:     pub,
		metrics: m,
		now:     time.Now,
	}
}

// Receive applies every line independently. A rejected line does not abort its siblings;
// an unknown outlet or an infrastructure error aborts the call.
func (l *Ledger) Receive(ctx context.Context, tenantID, outletID string, lines []domain.ReceiptLine) (domain.ReceiveResult, error) {
	ctx, span := tracer.Start(ctx, "ledger.Receive")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("outlet.id", outletID),
		attribute.Int("receipt.lines", len(lines)),
	)

	var res domain.ReceiveResult
	if _, err := l.outlets.Outlet(ctx, tenantID, outletID); err != nil {
		span.RecordError(err)
		return res, err
	}

	var touched []string
	for i, line := range lines {
		line.Name = strings.TrimSpace(line.Name)
		if err := validateReceiptLine(line); err != nil {
			res.Errors = append(res.Errors, domain.ReceiptError{Line: i, Name: line.Name, Reason: err.Error(), Err: err})
			l.metrics.Receipt("rejected")
			continue
		}

		item, err := l.repo.ReceiveLine(ctx, tenantID, outletID, line, l.now())
		switch {
		case errors.Is(err, domain.ErrInvalidQuantity), errors.Is(err, domain.ErrConflict):
			res.Errors = append(res.Errors, domain.ReceiptError{Line: i, Name: line.Name, Reason: err.Error(), Err: err})
			l.metrics.Receipt("rejected")
			continue
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, "receive failed")
			l.publish(ctx, tenantID, outletID, touched, events.ReasonReceipt)
			return res, err
		}

		res.Processed = append(res.Processed, domain.ReceiptOutcome{Line: i, Item: item})
		touched = append(touched, item.IngredientID)
		l.metrics.Receipt("processed")
	}

	slog.InfoContext(ctx, "goods received",
		"tenant_id", tenantID, "outlet_id", outletID,
		"processed", len(res.Processed), "rejected", len(res.Errors))
	l.publish(ctx, tenantID, outletID, touched, events.ReasonReceipt)
	return res, nil
}

func validateReceiptLine(line domain.ReceiptLine) error {
	if line.Name == "" {
		return &domain.InvalidQuantityError{Field: "name", Reason: "is required"}
	}
	if !line.Quantity.IsPositive() {
		return &domain.InvalidQuantityError{Field: "quantity", Reason: "must be greater than zero, got " + line.Quantity.String()}
	}
	if line.UnitCost.IsNegative() {
		return &domain.InvalidQuantityError{Field: "unitCost", Reason: "must not be negative"}
	}
	if line.MinimumStock != nil && line.MinimumStock.IsNegative() {
		return &domain.InvalidQuantityError{Field: "minimumStock", Reason: "must not be negative"}
	}
	if line.MaximumStock != nil && line.MaximumStock.IsNegative() {
		return &domain.InvalidQuantityError{Field: "maximumStock", Reason: "must not be negative"}
	}
	return nil
}

// CheckAvailability is a pure read. An ingredient the outlet never received counts as zero stock.
func (l *Ledger) CheckAvailability(ctx context.Context, tenantID, outletID, name string, required decimal.Decimal) (domain.Availability, error) {
	if required.IsNegative() {
		return domain.Availability{}, &domain.InvalidQuantityError{Field: "required", Reason: "must not be negative"}
	}
	if _, err := l.outlets.Outlet(ctx, tenantID, outletID); err != nil {
		return domain.Availability{}, err
	}

	item, err := l.repo.FindItemByName(ctx, tenantID, outletID, name)
	if err != nil {
		return domain.Availability{}, err
	}

	a := domain.Availability{Name: name, CurrentStock: decimal.Zero, MinimumStock: decimal.Zero}
	if item != nil {
		a.Name = item.Name
		a.CurrentStock = item.CurrentStock
		a.MinimumStock = item.MinimumStock
	}
	a.Available = a.CurrentStock.GreaterThanOrEqual(required)
	if !a.Available {
		a.Shortage = required.Sub(a.CurrentStock)
	}
	return a, nil
}

// Consume deducts quantityPerUnit*multiplier for every line, or nothing at all. A short
// outcome is reported in the result, not as an error.
func (l *Ledger) Consume(ctx context.Context, tenantID, outletID string, lines []domain.RecipeLine, multiplier int) (domain.ConsumeResult, error) {
	ctx, span := tracer.Start(ctx, "ledger.Consume")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("outlet.id", outletID),
		attribute.Int("consume.multiplier", multiplier),
	)

	if multiplier <= 0 {
		return domain.ConsumeResult{}, &domain.InvalidQuantityError{Field: "multiplier", Reason: "must be greater than zero"}
	}
	if len(lines) == 0 {
		return domain.ConsumeResult{}, &domain.InvalidQuantityError{Field: "lines", Reason: "at least one recipe line is required"}
	}

	factor := decimal.NewFromInt(int64(multiplier))
	reqs := make([]domain.Requirement, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line.Name) == "" && line.IngredientID == "" {
			return domain.ConsumeResult{}, &domain.InvalidQuantityError{Field: "name", Reason: "is required"}
		}
		if !line.QuantityPerUnit.IsPositive() {
			return domain.ConsumeResult{}, &domain.InvalidQuantityError{
				Field:  "quantityPerUnit",
				Reason: line.Name + " must be greater than zero",
			}
		}
		reqs = append(reqs, domain.Requirement{
			IngredientID: line.IngredientID,
			Name:         strings.TrimSpace(line.Name),
			Quantity:     line.QuantityPerUnit.Mul(factor),
		})
	}

	if _, err := l.outlets.Outlet(ctx, tenantID, outletID); err != nil {
		return domain.ConsumeResult{}, err
	}

	res, err := l.repo.Consume(ctx, tenantID, outletID, reqs)
	if err != nil {
		result := "error"
		if errors.Is(err, domain.ErrConflict) {
			result = "conflict"
		}
		l.metrics.Consume(result)
		span.RecordError(err)
		span.SetStatus(codes.Error, "consume failed")
		return domain.ConsumeResult{}, err
	}

	if !res.Consumed {
		l.metrics.Consume("short")
		slog.WarnContext(ctx, "consumption rejected: insufficient stock",
			"tenant_id", tenantID, "outlet_id", outletID, "shortages", len(res.Shortages))
		return res, nil
	}

	l.metrics.Consume("consumed")
	ids := make([]string, 0, len(res.Lines))
	for _, line := range res.Lines {
		ids = append(ids, line.IngredientID)
	}
	l.publish(ctx, tenantID, outletID, ids, events.ReasonConsumption)
	return res, nil
}

// LowStockItems reports items at or below their minimum, most depleted first. An empty
// outletID covers every outlet of the tenant.
func (l *Ledger) LowStockItems(ctx context.Context, tenantID, outletID string) ([]domain.LowStockItem, error) {
	if outletID != "" {
		if _, err := l.outlets.Outlet(ctx, tenantID, outletID); err != nil {
			return nil, err
		}
	}

	items, err := l.repo.ListItems(ctx, tenantID, outletID)
	if err != nil {
		return nil, err
	}

	counts := map[string]map[domain.Severity]int{}
	low := make([]domain.LowStockItem, 0)
	for _, item := range items {
		if counts[item.OutletID] == nil {
			counts[item.OutletID] = map[domain.Severity]int{}
		}
		if !item.IsLow() {
			continue
		}
		sev := item.Severity()
		counts[item.OutletID][sev]++
		low = append(low, domain.LowStockItem{Item: item, Severity: sev, Ratio: item.StockRatio()})
	}

	sort.SliceStable(low, func(i, j int) bool {
		if c := low[i].Ratio.Cmp(low[j].Ratio); c != 0 {
			return c < 0
		}
		return domain.NormalizeName(low[i].Item.Name) < domain.NormalizeName(low[j].Item.Name)
	})

	for outlet, bySeverity := range counts {
		l.metrics.LowStock(outlet, string(domain.SeverityCritical), bySeverity[domain.SeverityCritical])
		l.metrics.LowStock(outlet, string(domain.SeverityWarning), bySeverity[domain.SeverityWarning])
	}
	return low, nil
}

func (l *Ledger) publish(ctx context.Context, tenantID, outletID string, ingredientIDs []string, reason events.Reason) {
	if l.pub == nil || len(ingredientIDs) == 0 {
		return
	}
	ev := events.StockChanged{
		TenantID:      tenantID,
		OutletID:      outletID,
		IngredientIDs: ingredientIDs,
		Reason:        reason,
		At:            l.now().UTC(),
	}
	if err := l.pub.Publish(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "failed to publish stock change",
			"tenant_id", tenantID, "outlet_id", outletID, "reason", reason, "error", err)
	}
}
