// Package app wires the admission components together and implements the end-to-end
// order admission flow used by the transports.
package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jcmexdev/kitchen-admission/internal/admission/availability"
	"github.com/jcmexdev/kitchen-admission/internal/admission/catalog"
	"github.com/jcmexdev/kitchen-admission/internal/admission/domain"
	"github.com/jcmexdev/kitchen-admission/internal/admission/ledger"
	"github.com/jcmexdev/kitchen-admission/internal/admission/queue"
	"github.com/jcmexdev/kitchen-admission/internal/admission/validation"
	"github.com/jcmexdev/kitchen-admission/internal/pkg/metrics"
)

// IdempotencyIndex finds an order by the idempotency key it was admitted with.
type IdempotencyIndex interface {
	OrderByIdempotencyKey(ctx context.Context, tenantID, key string) (*domain.Order, error)
}

// Service is the admission engine as seen by the transports.
type Service struct {
	Ledger       *ledger.Ledger
	Availability *availability.Synchronizer
	Validation   *validation.Pipeline
	Queue        *queue.Queue
	Catalog      *catalog.Catalog

	idempotency IdempotencyIndex
	metrics     *metrics.Metrics
}

func New(
	l *ledger.Ledger,
	s *availability.Synchronizer,
	p *validation.Pipeline,
	q *queue.Queue,
	c *catalog.Catalog,
	idx IdempotencyIndex,
	m *metrics.Metrics,
) *Service {
	return &Service{
		Ledger:       l,
		Availability: s,
		Validation:   p,
		Queue:        q,
		Catalog:      c,
		idempotency:  idx,
		metrics:      m,
	}
}

// Admission is the outcome of Admit.
type Admission struct {
	Order      *domain.Order            `json:"-"`
	Existing   bool                     `json:"existing"`
	Validation *domain.ValidationResult `json:"validation,omitempty"`
}

// Admit validates the request and, when every check passes, enqueues the order and
// consumes its ingredients in one step. A failed validation is returned both in the
// result and as a *domain.ValidationError. Re-submitting an idempotency key returns the
// order admitted the first time without validating again.
func (s *Service) Admit(ctx context.Context, req domain.OrderRequest) (*Admission, error) {
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if req.IdempotencyKey != "" {
		existing, err := s.idempotency.OrderByIdempotencyKey(ctx, req.TenantID, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if err := domain.CheckReplay(existing, req.OutletID); err != nil {
				s.metrics.Order("conflict")
				return nil, err
			}
			o, err := s.Queue.Order(ctx, req.TenantID, existing.ID)
			if err != nil {
				return nil, err
			}
			s.metrics.Order("duplicate")
			return &Admission{Order: o, Existing: true}, nil
		}
	}

	ev, err := s.Validation.Evaluate(ctx, req)
	if err != nil {
		return nil, err
	}
	result := ev.Result
	if !result.IsValid {
		s.metrics.Order("rejected")
		return &Admission{Validation: &result}, &domain.ValidationError{Result: result}
	}

	order := &domain.Order{
		TenantID:       req.TenantID,
		OutletID:       req.OutletID,
		CustomerID:     req.CustomerID,
		Type:           req.Type,
		ScheduledAt:    req.ScheduledAt,
		IdempotencyKey: req.IdempotencyKey,
		Subtotal:       result.Subtotal,
		Discount:       result.Discount,
		Total:          result.Total,
	}
	for _, l := range ev.Lines {
		order.Items = append(order.Items, domain.OrderItem{
			MenuItemID: l.Item.ID,
			Name:       l.Item.Name,
			Quantity:   l.Quantity,
			UnitPrice:  l.Item.Price,
		})
	}

	adm := domain.Admission{Order: order, Demand: ev.Demand}
	if ev.Promotion != nil {
		order.PromotionCode = ev.Promotion.Code
		adm.Promotion = ev.Promotion
		adm.Redemption = &domain.Redemption{
			TenantID:   req.TenantID,
			Code:       ev.Promotion.Code,
			CustomerID: req.CustomerID,
		}
	}

	out, err := s.Queue.Enqueue(ctx, adm)
	if err != nil {
		return &Admission{Validation: &result}, err
	}
	if out.Existing {
		slog.InfoContext(ctx, "concurrent resubmission resolved to existing order", "order_id", out.Order.ID)
	}
	return &Admission{Order: out.Order, Existing: out.Existing, Validation: &result}, nil
}
