package domain

type OrderStatus string

const (
	StatusPending        OrderStatus = "PENDING"
	StatusConfirmed      OrderStatus = "CONFIRMED"
	StatusPreparing      OrderStatus = "PREPARING"
	StatusReadyForPickup OrderStatus = "READY_FOR_PICKUP"
	StatusOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	StatusDelivered      OrderStatus = "DELIVERED"
	StatusCancelled      OrderStatus = "CANCELLED"
)

// Transition is one allowed edge of the order lifecycle.
type Transition struct {
	Src OrderStatus
	Dst OrderStatus
}

// Transitions lists every allowed status change. CANCELLED is reachable from every
// non-terminal status; DELIVERED and CANCELLED have no outgoing edges.
var Transitions = []Transition{
	{Src: StatusPending, Dst: StatusConfirmed},
	{Src: StatusPending, Dst: StatusPreparing},
	{Src: StatusConfirmed, Dst: StatusPreparing},
	{Src: StatusPreparing, Dst: StatusReadyForPickup},
	{Src: StatusPreparing, Dst: StatusOutForDelivery},
	{Src: StatusReadyForPickup, Dst: StatusDelivered},
	{Src: StatusOutForDelivery, Dst: StatusDelivered},
	{Src: StatusPending, Dst: StatusCancelled},
	{Src: StatusConfirmed, Dst: StatusCancelled},
	{Src: StatusPreparing, Dst: StatusCancelled},
	{Src: StatusReadyForPickup, Dst: StatusCancelled},
	{Src: StatusOutForDelivery, Dst: StatusCancelled},
}

var allowed = func() map[Transition]bool {
	m := make(map[Transition]bool, len(Transitions))
	for _, t := range Transitions {
		m[t] = true
	}
	return m
}()

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReadyForPickup,
		StatusOutForDelivery, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Queued reports whether an order in status s is waiting to be picked by ProcessNext.
func (s OrderStatus) Queued() bool {
	return s == StatusPending || s == StatusConfirmed
}

// CanTransition reports whether from → to is an edge of the lifecycle.
func CanTransition(from, to OrderStatus) bool {
	return allowed[Transition{Src: from, Dst: to}]
}
