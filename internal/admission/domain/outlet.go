package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Window is an opening window in minutes after local midnight. Close may be smaller than
// Open for windows that run past midnight; Close of 1440 means midnight.
type Window struct {
	Open  int
	Close int
}

func (w Window) overnight() bool { return w.Close <= w.Open }

// FormatClock renders minutes after midnight as HH:MM.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", (minutes/60)%24, minutes%60)
}

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64
	Lng float64
}

// DistanceKm is the haversine distance between two points.
func (p GeoPoint) DistanceKm(q GeoPoint) float64 {
	const earthRadiusKm = 6371.0
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(q.Lat - p.Lat)
	dLng := rad(q.Lng - p.Lng)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(p.Lat))*math.Cos(rad(q.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Address is a delivery destination.
type Address struct {
	Line1      string
	PostalCode string
	Location   *GeoPoint
}

// DeliveryZone covers an address by postal code or by radius around a center.
type DeliveryZone struct {
	Name        string
	PostalCodes []string
	Center      *GeoPoint
	RadiusKm    float64
}

// Covers reports whether the address falls inside the zone.
func (z DeliveryZone) Covers(addr Address) bool {
	if addr.PostalCode != "" {
		for _, pc := range z.PostalCodes {
			if strings.EqualFold(strings.TrimSpace(pc), strings.TrimSpace(addr.PostalCode)) {
				return true
			}
		}
	}
	if z.Center != nil && addr.Location != nil && z.RadiusKm > 0 {
		return z.Center.DistanceKm(*addr.Location) <= z.RadiusKm
	}
	return false
}

// Outlet is the read-only view of a physical location supplied by the outlet directory.
type Outlet struct {
	ID            string
	TenantID      string
	Name          string
	Location      *time.Location
	Hours         map[time.Weekday]Window
	DeliveryZones []DeliveryZone
	MinimumOrder  map[OrderType]decimal.Decimal
}

func (o *Outlet) loc() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

// IsOpen reports whether t falls inside an opening window, including a window that
// started the previous day and runs past midnight.
func (o *Outlet) IsOpen(t time.Time) bool {
	local := t.In(o.loc())
	m := local.Hour()*60 + local.Minute()
	if w, ok := o.Hours[local.Weekday()]; ok {
		if w.overnight() {
			if m >= w.Open {
				return true
			}
		} else if m >= w.Open && m < w.Close {
			return true
		}
	}
	prev := (local.Weekday() + 6) % 7
	if w, ok := o.Hours[prev]; ok && w.overnight() && m < w.Close {
		return true
	}
	return false
}

// ClosedReason explains why the outlet is closed at t. It returns an empty string when open.
func (o *Outlet) ClosedReason(t time.Time) string {
	if o.IsOpen(t) {
		return ""
	}
	local := t.In(o.loc())
	w, ok := o.Hours[local.Weekday()]
	if !ok {
		return fmt.Sprintf("outlet %s is closed on %s", o.ID, local.Weekday())
	}
	m := local.Hour()*60 + local.Minute()
	if m < w.Open {
		return fmt.Sprintf("outlet %s opens at %s on %s", o.ID, FormatClock(w.Open), local.Weekday())
	}
	return fmt.Sprintf("outlet %s closes at %s on %s", o.ID, FormatClock(w.Close), local.Weekday())
}

// MinimumFor returns the minimum order amount for the order type, zero when unset.
func (o *Outlet) MinimumFor(t OrderType) decimal.Decimal {
	if o.MinimumOrder == nil {
		return decimal.Zero
	}
	return o.MinimumOrder[t]
}
