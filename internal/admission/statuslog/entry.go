// Package statuslog is the append-only history of order status changes.
//
// Every row carries the trace_id and span_id of the request that caused it, so a status
// change can be followed straight into the distributed trace.
package statuslog

import (
	"context"
	"time"

	"github.com/jcmexdev/kitchen-admission/internal/admission/domain"
)

// Entry is one status change of one order. From is empty for the admission itself.
type Entry struct {
	OrderID  string
	TenantID string
	OutletID string
	From     domain.OrderStatus
	To       domain.OrderStatus
	Reason   string
	TraceID  string
	SpanID   string
	At       time.Time
}

// NewEntry builds an entry stamped with the trace of ctx.
//
//	entry := statuslog.NewEntry(ctx, order, domain.StatusConfirmed, domain.StatusPreparing, "process_next")
//	_ = repo.Save(ctx, entry)
func NewEntry(ctx context.Context, o *domain.Order, from, to domain.OrderStatus, reason string) *Entry {
	ti := ExtractTraceInfo(ctx)
	return &Entry{
		OrderID:  o.ID,
		TenantID: o.TenantID,
		OutletID: o.OutletID,
		From:     from,
		To:       to,
		Reason:   reason,
		TraceID:  ti.TraceID,
		SpanID:   ti.SpanID,
		At:       time.Now().UTC(),
	}
}

// Repository persists entries. Save always appends.
type Repository interface {
	Save(ctx context.Context, entry *Entry) error
	History(ctx context.Context, tenantID, orderID string) ([]Entry, error)
}
