// Package metrics holds the Prometheus collectors of the admission engine. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	orders             *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	consume            *prometheus.CounterVec
	receipts           *prometheus.CounterVec
	lowStock           *prometheus.GaugeVec
	transitions        *prometheus.CounterVec
	availabilityFlips  *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admission_orders_total",
				Help: "Order admission attempts by result",
			},
			[]string{"result"},
		),
		validationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admission_validation_failures_total",
				Help: "Validation errors raised, by check",
			},
			[]string{"check"},
		),
		consume: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_consume_total",
				Help: "Stock consumption calls by result",
			},
			[]string{"result"},
		),
		receipts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_receipts_total",
				Help: "Goods receipt lines by result",
			},
			[]string{"result"},
		),
		lowStock: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ledger_low_stock_items",
				Help: "Items at or below minimum stock, by outlet and severity",
			},
			[]string{"outlet", "severity"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_transitions_total",
				Help: "Order status transitions by target status",
			},
			[]string{"to"},
		),
		availabilityFlips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "availability_changes_total",
				Help: "Menu availability flags flipped, by source",
			},
			[]string{"source"},
		),
	}
	reg.MustRegister(
		m.orders, m.validationFailures, m.consume, m.receipts,
		m.lowStock, m.transitions, m.availabilityFlips,
	)
	return m
}

func (m *Metrics) Order(result string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(result).Inc()
}

func (m *Metrics) ValidationFailure(check string) {
	if m == nil {
		return
	}
	m.validationFailures.WithLabelValues(check).Inc()
}

func (m *Metrics) Consume(result string) {
	if m == nil {
		return
	}
	m.consume.WithLabelValues(result).Inc()
}

func (m *Metrics) Receipt(result string) {
	if m == nil {
		return
	}
	m.receipts.WithLabelValues(result).Inc()
}

func (m *Metrics) LowStock(outlet, severity string, n int) {
	if m == nil {
		return
	}
	m.lowStock.WithLabelValues(outlet, severity).Set(float64(n))
}

func (m *Metrics) Transition(to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to).Inc()
}

func (m *Metrics) AvailabilityChanged(source string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.availabilityFlips.WithLabelValues(source).Add(float64(n))
}
