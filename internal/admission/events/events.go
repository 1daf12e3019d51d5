// Package events carries "stock changed for outlet X" notifications from the ledger and
// the queue to the availability recompute worker.
package events

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// ErrClosed is returned by a closed Source or Publisher.
var ErrClosed = errors.New("events: closed")

type Reason string

const (
	ReasonReceipt     Reason = "receipt"
	ReasonConsumption Reason = "consumption"
	ReasonAdmission   Reason = "admission"
	ReasonCatalog     Reason = "catalog"
)

// StockChanged says that stock or recipes behind an outlet's menu changed.
type StockChanged struct {
	TenantID      string    `json:"tenantId"`
	OutletID      string    `json:"outletId"`
	IngredientIDs []string  `json:"ingredientIds,omitempty"`
	Reason        Reason    `json:"reason"`
	At            time.Time `json:"at"`

	// Trace holds W3C trace context headers so the consumer can continue the trace.
	Trace map[string]string `json:"-"`
}

// Key identifies the outlet the event is about.
func (e StockChanged) Key() string {
	return e.TenantID + "/" + e.OutletID
}

// Inject stores the trace context of ctx into the event.
func (e *StockChanged) Inject(ctx context.Context) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) > 0 {
		e.Trace = carrier
	}
}

// Context returns parent enriched with the trace context carried by the event.
func (e StockChanged) Context(parent context.Context) context.Context {
	if len(e.Trace) == 0 {
		return parent
	}
	return otel.GetTextMapPropagator().Extract(parent, propagation.MapCarrier(e.Trace))
}

// Publisher emits events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev StockChanged) error
}

// Source yields events one at a time. Receive blocks until an event arrives, ctx is done
// or the source is closed.
type Source interface {
	Receive(ctx context.Context) (StockChanged, error)
	Close() error
}
