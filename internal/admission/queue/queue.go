// Package queue is the per-outlet fulfillment queue: admission of validated orders,
// FIFO processing and the order status state machine.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/kitchen-admission/internal/admission/domain"
	"github.com/jcmexdev/kitchen-admission/internal/admission/events"
	"github.com/jcmexdev/kitchen-admission/internal/admission/ports"
	"github.com/jcmexdev/kitchen-admission/internal/admission/statuslog"
	"github.com/jcmexdev/kitchen-admission/internal/pkg/keymutex"
	"github.com/jcmexdev/kitchen-admission/internal/pkg/metrics"
)

var tracer = otel.Tracer("kitchen-admission/queue")

type Repository interface {
	// Admit consumes the demand and inserts the order in one transaction.
	Admit(ctx context.Context, a domain.Admission) (domain.AdmitOutcome, error)
	Order(ctx context.Context, tenantID, orderID string) (*domain.Order, error)
	QueuePosition(ctx context.Context, tenantID, outletID string, sequence int64) (int, error)
	ActiveOrders(ctx context.Context, tenantID, outletID string) ([]domain.Order, error)
	ClaimNext(ctx context.Context, tenantID, outletID string, at time.Time) (*domain.Order, domain.OrderStatus, error)
	UpdateStatus(ctx context.Context, tenantID, orderID string, from, to domain.OrderStatus, at time.Time) error
}

type Queue struct {
	repo    Repository
	outlets ports.OutletDirectory
	history statuslog.Repository
	pub     events.Publisher
	metrics *metrics.Metrics
	locks   *keymutex.KeyMutex
	now     func() time.Time
}

// New builds a queue. history, pub and m may be nil.
func New(repo Repository, outlets ports.OutletDirectory, history statuslog.Repository, pub events.Publisher, m *metrics.Metrics) *Queue {
	return &Queue{
		repo:    repo,
		outlets: outlets,
		history: history,
		pub:     pub,
		metrics: m,
		locks:   keymutex.New(),
		now:     time.Now,
	}
}

func outletKey(tenantID, outletID string) string {
	return tenantID + "/" + outletID
}

// Enqueue admits an order: the whole ingredient demand is consumed and the order appended
// to its outlet's queue as PENDING, or nothing happens. A repeated idempotency key returns
// the order admitted the first time. Short stock returns an *InsufficientStockError.
func (q *Queue) Enqueue(ctx context.Context, a domain.Admission) (domain.AdmitOutcome, error) {
	o := a.Order
	ctx, span := tracer.Start(ctx, "queue.Enqueue")
	defer span.End()
	span.SetAttributes(attribute.String("tenant.id", o.TenantID), attribute.String("outlet.id", o.OutletID))

	if len(o.Items) == 0 {
		return domain.AdmitOutcome{}, &domain.InvalidQuantityError{Field: "items", Reason: "at least one item is required"}
	}
	if _, err := q.outlets.Outlet(ctx, o.TenantID, o.OutletID); err != nil {
		return domain.AdmitOutcome{}, err
	}

	unlock := q.locks.Lock(outletKey(o.TenantID, o.OutletID))
	defer unlock()

	now := q.now().UTC()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.Status = domain.StatusPending
	o.CreatedAt, o.UpdatedAt = now, now
	if a.Redemption != nil {
		a.Redemption.At = now
	}

	out, err := q.repo.Admit(ctx, a)
	switch {
	case errors.Is(err, domain.ErrValidationFailed):
		q.metrics.Order("rejected")
		return out, err
	case errors.Is(err, domain.ErrConflict):
		q.metrics.Order("conflict")
		slog.WarnContext(ctx, "idempotency key reused at another outlet", "outlet_id", o.OutletID, "error", err)
		return out, err
	case err != nil:
		q.metrics.Order("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "admit failed")
		return out, err
	}

	if out.Existing {
		q.metrics.Order("duplicate")
		if err := q.fillPosition(ctx, out.Order); err != nil {
			return out, err
		}
		slog.InfoContext(ctx, "order already admitted", "order_id", out.Order.ID, "idempotency_key", o.IdempotencyKey)
		return out, nil
	}

	if !out.Consumption.Consumed {
		q.metrics.Order("short")
		slog.WarnContext(ctx, "order rejected: insufficient stock",
			"tenant_id", o.TenantID, "outlet_id", o.OutletID, "shortages", len(out.Consumption.Shortages))
		return out, &domain.InsufficientStockError{Shortages: out.Consumption.Shortages}
	}

	q.metrics.Order("admitted")
	if err := q.fillPosition(ctx, out.Order); err != nil {
		return out, err
	}
	q.record(ctx, out.Order, "", domain.StatusPending, "admitted")
	q.publish(ctx, out.Order, out.Consumption)

	span.SetAttributes(attribute.String("order.id", out.Order.ID), attribute.Int("queue.position", out.Order.QueuePosition))
	slog.InfoContext(ctx, "order admitted",
		"tenant_id", o.TenantID, "outlet_id", o.OutletID, "order_id", out.Order.ID,
		"sequence", out.Order.Sequence, "position", out.Order.QueuePosition)
	return out, nil
}

// Order returns one order with its current queue position (0 once terminal).
func (q *Queue) Order(ctx context.Context, tenantID, orderID string) (*domain.Order, error) {
	o, err := q.repo.Order(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if err := q.fillPosition(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Position is the 1-based rank of the order among its outlet's non-terminal orders.
func (q *Queue) Position(ctx context.Context, tenantID, orderID string) (int, error) {
	o, err := q.Order(ctx, tenantID, orderID)
	if err != nil {
		return 0, err
	}
	return o.QueuePosition, nil
}

// Active lists the outlet's non-terminal orders in queue order.
func (q *Queue) Active(ctx context.Context, tenantID, outletID string) ([]domain.Order, error) {
	if _, err := q.outlets.Outlet(ctx, tenantID, outletID); err != nil {
		return nil, err
	}
	orders, err := q.repo.ActiveOrders(ctx, tenantID, outletID)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, nil
}

// ProcessNext moves the oldest PENDING or CONFIRMED order of the outlet to PREPARING. It
// returns nil when nothing is waiting.
func (q *Queue) ProcessNext(ctx context.Context, tenantID, outletID string) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "queue.ProcessNext")
	defer span.End()
	span.SetAttributes(attribute.String("tenant.id", tenantID), attribute.String("outlet.id", outletID))

	if _, err := q.outlets.Outlet(ctx, tenantID, outletID); err != nil {
		return nil, err
	}

	unlock := q.locks.Lock(outletKey(tenantID, outletID))
	defer unlock()

	o, from, err := q.repo.ClaimNext(ctx, tenantID, outletID, q.now().UTC())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if o == nil {
		return nil, nil
	}

	q.metrics.Transition(string(domain.StatusPreparing))
	q.record(ctx, o, from, domain.StatusPreparing, "process_next")
	if err := q.fillPosition(ctx, o); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "order picked up", "order_id", o.ID, "outlet_id", outletID, "from", from)
	return o, nil
}

// Transition moves an order of the outlet to status to. An order that belongs to another
// outlet is NotFound. Edges outside the lifecycle, delivering an order whose stock was
// never consumed, and losing a race against another change are all reported as
// *TransitionError.
func (q *Queue) Transition(ctx context.Context, tenantID, outletID, orderID string, to domain.OrderStatus, reason string) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "queue.Transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("outlet.id", outletID),
		attribute.String("order.id", orderID),
		attribute.String("order.to", string(to)),
	)

	if _, err := q.outlets.Outlet(ctx, tenantID, outletID); err != nil {
		return nil, err
	}
	o, err := q.repo.Order(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if o.OutletID != outletID {
		return nil, domain.NotFound("order", outletID+"/"+orderID)
	}
	if !to.Valid() {
		return nil, &domain.TransitionError{OrderID: orderID, From: o.Status, To: to, Reason: "unknown status"}
	}

	unlock := q.locks.Lock(outletKey(tenantID, outletID))
	defer unlock()

	// Re-read under the outlet lock; ProcessNext may have moved it meanwhile.
	if o, err = q.repo.Order(ctx, tenantID, orderID); err != nil {
		return nil, err
	}
	from := o.Status

	if !domain.CanTransition(from, to) {
		return nil, q.illegal(ctx, span, &domain.TransitionError{OrderID: orderID, From: from, To: to})
	}
	if to == domain.StatusDelivered && o.StockConsumedAt == nil {
		return nil, q.illegal(ctx, span, &domain.TransitionError{
			OrderID: orderID, From: from, To: to, Reason: "ingredients were never consumed",
		})
	}

	at := q.now().UTC()
	err = q.repo.UpdateStatus(ctx, tenantID, orderID, from, to, at)
	if errors.Is(err, domain.ErrConflict) {
		return nil, q.illegal(ctx, span, &domain.TransitionError{
			OrderID: orderID, From: from, To: to, Reason: "status changed concurrently",
		})
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("transition %s: %w", orderID, err)
	}

	o.Status, o.UpdatedAt = to, at
	q.metrics.Transition(string(to))
	q.record(ctx, o, from, to, reason)
	if err := q.fillPosition(ctx, o); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "order status changed", "order_id", orderID, "from", from, "to", to)
	return o, nil
}

// History returns the recorded status changes of an order, oldest first.
func (q *Queue) History(ctx context.Context, tenantID, orderID string) ([]statuslog.Entry, error) {
	if _, err := q.repo.Order(ctx, tenantID, orderID); err != nil {
		return nil, err
	}
	if q.history == nil {
		return []statuslog.Entry{}, nil
	}
	return q.history.History(ctx, tenantID, orderID)
}

// illegal logs a rejected transition at ERROR: callers should never attempt one.
func (q *Queue) illegal(ctx context.Context, span trace.Span, err *domain.TransitionError) error {
	span.SetStatus(codes.Error, "illegal transition")
	slog.ErrorContext(ctx, "illegal order status transition",
		"order_id", err.OrderID, "from", err.From, "to", err.To, "reason", err.Reason)
	return err
}

func (q *Queue) fillPosition(ctx context.Context, o *domain.Order) error {
	if !o.Active() {
		o.QueuePosition = 0
		return nil
	}
	pos, err := q.repo.QueuePosition(ctx, o.TenantID, o.OutletID, o.Sequence)
	if err != nil {
		return err
	}
	o.QueuePosition = pos
	return nil
}

func (q *Queue) record(ctx context.Context, o *domain.Order, from, to domain.OrderStatus, reason string) {
	if q.history == nil {
		return
	}
	if err := q.history.Save(ctx, statuslog.NewEntry(ctx, o, from, to, reason)); err != nil {
		slog.ErrorContext(ctx, "failed to record status change", "order_id", o.ID, "error", err)
	}
}

func (q *Queue) publish(ctx context.Context, o *domain.Order, res domain.ConsumeResult) {
	if q.pub == nil || len(res.Lines) == 0 {
		return
	}
	ids := make([]string, 0, len(res.Lines))
	for _, l := range res.Lines {
		ids = append(ids, l.IngredientID)
	}
	ev := events.StockChanged{
		TenantID:      o.TenantID,
		OutletID:      o.OutletID,
		IngredientIDs: ids,
		Reason:        events.ReasonAdmission,
		At:            q.now().UTC(),
	}
	if err := q.pub.Publish(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "failed to publish stock change", "order_id", o.ID, "error", err)
	}
}
