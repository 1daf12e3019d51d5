// Package validation runs the independent admission checks for an order request and
// merges them into one verdict.
package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jcmexdev/kitchen-admission/internal/admission/domain"
	"github.com/jcmexdev/kitchen-admission/internal/admission/ports"
	"github.com/jcmexdev/kitchen-admission/internal/pkg/metrics"
)

const (
	// Horizon is how far ahead an order may be scheduled.
	Horizon = 7 * 24 * time.Hour
	// pastTolerance absorbs clock skew between the client and the server.
	pastTolerance = time.Minute
)

var tracer = otel.Tracer("kitchen-admission/validation")

// StockChecker is the read side of the ledger.
type StockChecker interface {
	CheckAvailability(ctx context.Context, tenantID, outletID, name string, required decimal.Decimal) (domain.Availability, error)
}

// UsageCounter counts persisted promotion redemptions.
type UsageCounter interface {
	PromotionUsage(ctx context.Context, tenantID, code, customerID string) (domain.PromotionUsage, error)
}

// AvailabilityReader exposes the derived availability rows of an outlet.
type AvailabilityReader interface {
	AvailabilityForOutlet(ctx context.Context, tenantID, outletID string) (map[string]domain.MenuAvailability, error)
}

type Pipeline struct {
	outlets      ports.OutletDirectory
	menu         ports.MenuCatalog
	stock        StockChecker
	promotions   ports.PromotionCatalog
	usage        UsageCounter
	availability AvailabilityReader
	metrics      *metrics.Metrics
	now          func() time.Time
}

type Option func(*Pipeline)

// WithAvailability lets the inventory check warn when an item's derived availability
// flag disagrees with live stock.
func WithAvailability(r AvailabilityReader) Option {
	return func(p *Pipeline) { p.availability = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock overrides the pipeline's notion of now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func New(
	outlets ports.OutletDirectory,
	menu ports.MenuCatalog,
	stock StockChecker,
	promotions ports.PromotionCatalog,
	usage UsageCounter,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		outlets:    outlets,
		menu:       menu,
		stock:      stock,
		promotions: promotions,
		usage:      usage,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Line is an order line resolved against the menu catalog.
type Line struct {
	Item     domain.MenuItem
	Quantity int
}

// Evaluation is a validation result together with what the checks resolved, so that an
// admission does not have to look everything up again.
type Evaluation struct {
	Result    domain.ValidationResult
	Outlet    domain.Outlet
	Lines     []Line
	Demand    []domain.Requirement
	Promotion *domain.Promotion
	At        time.Time
}

// request is the shared, read-only input of every check.
type request struct {
	domain.OrderRequest
	outlet   domain.Outlet
	lines    []Line
	missing  []domain.Issue
	subtotal decimal.Decimal
	at       time.Time
	now      time.Time
}

type outcome struct {
	errors    []domain.Issue
	warnings  []domain.Issue
	items     []domain.ItemAvailability
	promotion *domain.Promotion
	discount  decimal.Decimal
}

func (o *outcome) fail(check, code, format string, args ...any) {
	o.errors = append(o.errors, domain.Issue{Check: check, Code: code, Message: fmt.Sprintf(format, args...)})
}

func (o *outcome) warn(check, code, format string, args ...any) {
	o.warnings = append(o.warnings, domain.Issue{Check: check, Code: code, Message: fmt.Sprintf(format, args...)})
}

type check struct {
	name string
	run  func(ctx context.Context, req *request) (outcome, error)
}

// Validate runs every check and merges their findings. Business failures are reported in
// the result; only lookups that fail for infrastructure reasons return an error.
func (p *Pipeline) Validate(ctx context.Context, req domain.OrderRequest) (domain.ValidationResult, error) {
	ev, err := p.Evaluate(ctx, req)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	return ev.Result, nil
}

// Evaluate is Validate returning the resolved lines, demand and promotion as well.
func (p *Pipeline) Evaluate(ctx context.Context, req domain.OrderRequest) (*Evaluation, error) {
	ctx, span := tracer.Start(ctx, "validation.Validate")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", req.TenantID),
		attribute.String("outlet.id", req.OutletID),
		attribute.Int("order.lines", len(req.Items)),
	)

	outlet, err := p.outlets.Outlet(ctx, req.TenantID, req.OutletID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	r := &request{OrderRequest: req, outlet: *outlet, now: p.now(), subtotal: decimal.Zero}
	r.at = r.now
	if req.ScheduledAt != nil {
		r.at = *req.ScheduledAt
	}
	if err := p.resolve(ctx, r); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "menu lookup failed")
		return nil, err
	}

	checks := []check{
		{domain.CheckStoreHours, p.storeHours},
		{domain.CheckInventory, p.inventory},
		{domain.CheckPromotion, p.promotion},
		{domain.CheckDeliveryArea, p.deliveryArea},
		{domain.CheckMinimumAmount, p.minimumAmount},
	}

	outcomes := make([]outcome, len(checks))
	errs := make([]error, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func(i int, c check) {
			defer wg.Done()
			outcomes[i], errs[i] = c.run(ctx, r)
		}(i, c)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "check failed")
		return nil, err
	}

	res := domain.ValidationResult{
		Errors:   []domain.Issue{},
		Warnings: []domain.Issue{},
		Items:    []domain.ItemAvailability{},
		Subtotal: r.subtotal,
		Discount: decimal.Zero,
	}
	ev := &Evaluation{Outlet: r.outlet, Lines: r.lines, At: r.at}
	for i, o := range outcomes {
		res.Errors = append(res.Errors, o.errors...)
		res.Warnings = append(res.Warnings, o.warnings...)
		res.Items = append(res.Items, o.items...)
		if len(o.errors) > 0 {
			p.metrics.ValidationFailure(checks[i].name)
		}
		if o.promotion != nil {
			ev.Promotion = o.promotion
			res.Discount = o.discount
		}
	}
	res.Total = res.Subtotal.Sub(res.Discount)
	res.IsValid = len(res.Errors) == 0

	for _, l := range r.lines {
		ev.Demand = append(ev.Demand, l.Item.Requirements(l.Quantity)...)
	}
	ev.Demand = domain.MergeRequirements(ev.Demand)
	ev.Result = res

	span.SetAttributes(
		attribute.Bool("validation.valid", res.IsValid),
		attribute.Int("validation.errors", len(res.Errors)),
		attribute.Int("validation.warnings", len(res.Warnings)),
	)
	if !res.IsValid {
		slog.InfoContext(ctx, "order request rejected",
			"tenant_id", req.TenantID, "outlet_id", req.OutletID, "errors", len(res.Errors))
	}
	return ev, nil
}

// resolve looks up every requested menu item. Unknown or unsold items and bad quantities
// become inventory issues rather than errors.
func (p *Pipeline) resolve(ctx context.Context, r *request) error {
	if len(r.Items) == 0 {
		r.missing = append(r.missing, domain.Issue{
			Check: domain.CheckInventory, Code: "empty_order", Message: "order has no items",
		})
	}
	for _, it := range r.Items {
		if it.Quantity <= 0 {
			r.missing = append(r.missing, domain.Issue{
				Check: domain.CheckInventory, Code: "invalid_quantity", MenuItemID: it.MenuItemID,
				Message: fmt.Sprintf("quantity of %s must be greater than zero, got %d", it.MenuItemID, it.Quantity),
			})
			continue
		}
		item, err := p.menu.MenuItem(ctx, r.TenantID, it.MenuItemID)
		if errors.Is(err, domain.ErrNotFound) {
			r.missing = append(r.missing, domain.Issue{
				Check: domain.CheckInventory, Code: "unknown_menu_item", MenuItemID: it.MenuItemID,
				Message: fmt.Sprintf("menu item %s does not exist", it.MenuItemID),
			})
			continue
		}
		if err != nil {
			return err
		}
		if !item.OfferedAt(r.OutletID) {
			r.missing = append(r.missing, domain.Issue{
				Check: domain.CheckInventory, Code: "not_offered", MenuItemID: it.MenuItemID,
				Message: fmt.Sprintf("%s is not sold at outlet %s", item.Name, r.OutletID),
			})
			continue
		}
		r.lines = append(r.lines, Line{Item: *item, Quantity: it.Quantity})
		r.subtotal = r.subtotal.Add(item.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return nil
}
