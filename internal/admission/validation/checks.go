package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jcmexdev/kitchen-admission/internal/admission/domain"
)

func (p *Pipeline) storeHours(_ context.Context, r *request) (outcome, error) {
	var o outcome
	const c = domain.CheckStoreHours

	if r.ScheduledAt != nil {
		if r.at.Before(r.now.Add(-pastTolerance)) {
			o.fail(c, "scheduled_in_past", "scheduled time %s is in the past", r.at.Format("2006-01-02 15:04"))
			return o, nil
		}
		if r.at.After(r.now.Add(Horizon)) {
			o.fail(c, "beyond_horizon", "orders can be scheduled at most %d days ahead", int(Horizon.Hours()/24))
			return o, nil
		}
	}
	if reason := r.outlet.ClosedReason(r.at); reason != "" {
		o.fail(c, "outlet_closed", "%s", reason)
	}
	return o, nil
}

// inventory checks every line against live stock, then the whole order's aggregated
// demand, since two lines may draw on the same ingredient.
func (p *Pipeline) inventory(ctx context.Context, r *request) (outcome, error) {
	var o outcome
	const c = domain.CheckInventory
	o.errors = append(o.errors, r.missing...)

	live := map[string]domain.Availability{}
	lookup := func(req domain.Requirement) (domain.Availability, error) {
		key := req.Key() + "@" + req.Quantity.String()
		if a, ok := live[key]; ok {
			return a, nil
		}
		a, err := p.stock.CheckAvailability(ctx, r.TenantID, r.OutletID, req.Name, req.Quantity)
		if err != nil {
			return a, err
		}
		live[key] = a
		return a, nil
	}

	var flags map[string]domain.MenuAvailability
	if p.availability != nil {
		var err error
		if flags, err = p.availability.AvailabilityForOutlet(ctx, r.TenantID, r.OutletID); err != nil {
			return o, err
		}
	}

	for _, line := range r.lines {
		verdict := domain.ItemAvailability{
			MenuItemID: line.Item.ID,
			Name:       line.Item.Name,
			Quantity:   line.Quantity,
			Available:  true,
		}
		for _, req := range domain.MergeRequirements(line.Item.Requirements(line.Quantity)) {
			a, err := lookup(req)
			if err != nil {
				return o, err
			}
			if !a.Available {
				verdict.Available = false
				verdict.Shortages = append(verdict.Shortages, domain.NewShortage(req, a.CurrentStock))
				code, format := "insufficient_stock", "%s: not enough %s (need %s, have %s)"
				if a.CurrentStock.IsZero() {
					code, format = "out_of_stock", "%s: %s is out of stock (need %s, have %s)"
				}
				o.errors = append(o.errors, domain.Issue{
					Check: c, Code: code, MenuItemID: line.Item.ID,
					Message: fmt.Sprintf(format, line.Item.Name, a.Name, req.Quantity, a.CurrentStock),
				})
				continue
			}
			if a.CurrentStock.Sub(req.Quantity).LessThanOrEqual(a.MinimumStock) {
				o.warnings = append(o.warnings, domain.Issue{
					Check: c, Code: "low_stock", MenuItemID: line.Item.ID,
					Message: fmt.Sprintf("%s: %s will be at or below its minimum of %s", line.Item.Name, a.Name, a.MinimumStock),
				})
			}
		}
		if flag, ok := flags[line.Item.ID]; ok && verdict.Available && !flag.InventoryAvailable {
			o.warnings = append(o.warnings, domain.Issue{
				Check: c, Code: "flagged_unavailable", MenuItemID: line.Item.ID,
				Message: fmt.Sprintf("%s is marked unavailable at outlet %s", line.Item.Name, r.OutletID),
			})
		}
		o.items = append(o.items, verdict)
	}

	if len(r.lines) > 1 {
		var demand []domain.Requirement
		for _, line := range r.lines {
			demand = append(demand, line.Item.Requirements(line.Quantity)...)
		}
		for _, req := range domain.MergeRequirements(demand) {
			a, err := lookup(req)
			if err != nil {
				return o, err
			}
			if !a.Available && !shortInLine(o.items, req) {
				o.errors = append(o.errors, domain.Issue{
					Check: c, Code: "insufficient_stock",
					Message: fmt.Sprintf("order needs %s %s in total, outlet has %s", req.Quantity, a.Name, a.CurrentStock),
				})
			}
		}
	}
	return o, nil
}

// shortInLine reports whether a single line already raised a shortage for the ingredient.
func shortInLine(items []domain.ItemAvailability, req domain.Requirement) bool {
	for _, it := range items {
		for _, s := range it.Shortages {
			if (req.IngredientID != "" && s.IngredientID == req.IngredientID) ||
				domain.NormalizeName(s.Name) == domain.NormalizeName(req.Name) {
				return true
			}
		}
	}
	return false
}

func (p *Pipeline) promotion(ctx context.Context, r *request) (outcome, error) {
	var o outcome
	const c = domain.CheckPromotion
	code := strings.TrimSpace(r.PromotionCode)
	if code == "" {
		return o, nil
	}

	promo, err := p.promotions.Promotion(ctx, r.TenantID, code)
	if errors.Is(err, domain.ErrNotFound) {
		o.fail(c, "unknown_promotion", "promotion %s does not exist", code)
		return o, nil
	}
	if err != nil {
		return o, err
	}

	if !promo.ActiveAt(r.at) {
		o.fail(c, "promotion_inactive", "promotion %s is not active", promo.Code)
		return o, nil
	}
	if r.subtotal.LessThan(promo.MinOrderAmount) {
		o.fail(c, "minimum_not_met", "promotion %s requires an order of at least %s", promo.Code, promo.MinOrderAmount.StringFixed(2))
		return o, nil
	}

	usage, err := p.usage.PromotionUsage(ctx, r.TenantID, promo.Code, r.CustomerID)
	if err != nil {
		return o, err
	}
	if issue := promo.LimitIssue(usage, r.CustomerID); issue != nil {
		o.errors = append(o.errors, *issue)
		return o, nil
	}

	o.promotion = promo
	o.discount = promo.Discount(r.subtotal)
	return o, nil
}

func (p *Pipeline) deliveryArea(_ context.Context, r *request) (outcome, error) {
	var o outcome
	const c = domain.CheckDeliveryArea
	if r.Type != domain.OrderTypeDelivery {
		return o, nil
	}
	if len(r.outlet.DeliveryZones) == 0 {
		o.fail(c, "no_delivery_zones", "outlet %s does not deliver", r.OutletID)
		return o, nil
	}
	if r.Address == nil {
		o.fail(c, "address_required", "delivery orders need an address")
		return o, nil
	}
	for _, z := range r.outlet.DeliveryZones {
		if z.Covers(*r.Address) {
			return o, nil
		}
	}
	o.fail(c, "outside_delivery_area", "address is outside every delivery zone of outlet %s", r.OutletID)
	return o, nil
}

func (p *Pipeline) minimumAmount(_ context.Context, r *request) (outcome, error) {
	var o outcome
	const c = domain.CheckMinimumAmount
	if !r.Type.Valid() {
		o.fail(c, "unknown_order_type", "unknown order type %q", r.Type)
		return o, nil
	}
	minimum := r.outlet.MinimumFor(r.Type)
	if r.subtotal.LessThan(minimum) {
		o.fail(c, "below_minimum", "%s orders at outlet %s must be at least %s, subtotal is %s",
			r.Type, r.OutletID, minimum.StringFixed(2), r.subtotal.StringFixed(2))
	}
	return o, nil
}
