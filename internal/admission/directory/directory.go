// Package directory is the read-only outlet directory and promotion catalog, loaded from
// a YAML document:
//
//	tenants:
//	  - id: t1
//	    outlets:
//	      - id: downtown
//	        timezone: America/Mexico_City
//	        hours:
//	          monday: {open: "09:00", close: "22:00"}
//	          friday: {open: "18:00", close: "02:00"}
//	        delivery_zones:
//	          - name: centro
//	            postal_codes: ["06000", "06010"]
//	          - name: nearby
//	            center: {lat: 19.4326, lng: -99.1332}
//	            radius_km: 3
//	        minimum_order:
//	          delivery: "150.00"
//	    promotions:
//	      - code: WELCOME10
//	        kind: percent
//	        value: "10"
//	        min_order_amount: "100"
//	        usage_limit: 500
//	        per_customer_limit: 1
package directory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/jcmexdev/kitchen-admission/internal/admission/domain"
)

type document struct {
	Tenants []tenantDoc `yaml:"tenants"`
}

type tenantDoc struct {
	ID         string         `yaml:"id"`
	Outlets    []outletDoc    `yaml:"outlets"`
	Promotions []promotionDoc `yaml:"promotions"`
}

type outletDoc struct {
	ID            string               `yaml:"id"`
	Name          string               `yaml:"name"`
	Timezone      string               `yaml:"timezone"`
	Hours         map[string]windowDoc `yaml:"hours"`
	DeliveryZones []zoneDoc            `yaml:"delivery_zones"`
	MinimumOrder  map[string]string    `yaml:"minimum_order"`
}

type windowDoc struct {
	Open  string `yaml:"open"`
	Close string `yaml:"close"`
}

type zoneDoc struct {
	Name        string    `yaml:"name"`
	PostalCodes []string  `yaml:"postal_codes"`
	Center      *pointDoc `yaml:"center"`
	RadiusKm    float64   `yaml:"radius_km"`
}

type pointDoc struct {
	Lat float64 `yaml:"lat"`
	Lng float64 `yaml:"lng"`
}

type promotionDoc struct {
	Code             string     `yaml:"code"`
	Description      string     `yaml:"description"`
	Kind             string     `yaml:"kind"`
	Value            string     `yaml:"value"`
	MinOrderAmount   string     `yaml:"min_order_amount"`
	StartsAt         *time.Time `yaml:"starts_at"`
	EndsAt           *time.Time `yaml:"ends_at"`
	Active           *bool      `yaml:"active"`
	UsageLimit       int        `yaml:"usage_limit"`
	PerCustomerLimit int        `yaml:"per_customer_limit"`
}

// Directory serves outlets and promotions by tenant. It is safe for concurrent use.
type Directory struct {
	mu         sync.RWMutex
	outlets    map[string]map[string]domain.Outlet
	promotions map[string]map[string]domain.Promotion
}

func New() *Directory {
	return &Directory{
		outlets:    map[string]map[string]domain.Outlet{},
		promotions: map[string]map[string]domain.Promotion{},
	}
}

// Load reads and parses a directory file.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("directory: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a directory from a YAML document.
func Parse(data []byte) (*Directory, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("directory: decode: %w", err)
	}

	d := New()
	for _, t := range doc.Tenants {
		if t.ID == "" {
			return nil, fmt.Errorf("directory: tenant without id")
		}
		for _, od := range t.Outlets {
			o, err := od.toDomain(t.ID)
			if err != nil {
				return nil, fmt.Errorf("directory: tenant %q outlet %q: %w", t.ID, od.ID, err)
			}
			d.PutOutlet(o)
		}
		for _, pd := range t.Promotions {
			p, err := pd.toDomain(t.ID)
			if err != nil {
				return nil, fmt.Errorf("directory: tenant %q promotion %q: %w", t.ID, pd.Code, err)
			}
			d.PutPromotion(p)
		}
	}
	return d, nil
}

func (od outletDoc) toDomain(tenantID string) (domain.Outlet, error) {
	if od.ID == "" {
		return domain.Outlet{}, fmt.Errorf("missing id")
	}
	o := domain.Outlet{
		ID:           od.ID,
		TenantID:     tenantID,
		Name:         od.Name,
		Location:     time.UTC,
		Hours:        map[time.Weekday]domain.Window{},
		MinimumOrder: map[domain.OrderType]decimal.Decimal{},
	}
	if od.Timezone != "" {
		loc, err := time.LoadLocation(od.Timezone)
		if err != nil {
			return o, fmt.Errorf("timezone %q: %w", od.Timezone, err)
		}
		o.Location = loc
	}

	for day, w := range od.Hours {
		wd, ok := parseWeekday(day)
		if !ok {
			return o, fmt.Errorf("unknown weekday %q", day)
		}
		open, err := ParseClock(w.Open)
		if err != nil {
			return o, err
		}
		closing, err := ParseClock(w.Close)
		if err != nil {
			return o, err
		}
		o.Hours[wd] = domain.Window{Open: open, Close: closing}
	}

	for _, z := range od.DeliveryZones {
		zone := domain.DeliveryZone{Name: z.Name, PostalCodes: z.PostalCodes, RadiusKm: z.RadiusKm}
		if z.Center != nil {
			zone.Center = &domain.GeoPoint{Lat: z.Center.Lat, Lng: z.Center.Lng}
		}
		if len(zone.PostalCodes) == 0 && (zone.Center == nil || zone.RadiusKm <= 0) {
			return o, fmt.Errorf("delivery zone %q needs postal codes or a center and radius", z.Name)
		}
		o.DeliveryZones = append(o.DeliveryZones, zone)
	}

	for kind, amount := range od.MinimumOrder {
		t := domain.OrderType(strings.ToLower(kind))
		if !t.Valid() {
			return o, fmt.Errorf("minimum order for unknown order type %q", kind)
		}
		v, err := decimal.NewFromString(amount)
		if err != nil {
			return o, fmt.Errorf("minimum order for %s: %w", kind, err)
		}
		o.MinimumOrder[t] = v
	}
	return o, nil
}

func (pd promotionDoc) toDomain(tenantID string) (domain.Promotion, error) {
	if pd.Code == "" {
		return domain.Promotion{}, fmt.Errorf("missing code")
	}
	p := domain.Promotion{
		Code:             strings.ToUpper(pd.Code),
		TenantID:         tenantID,
		Description:      pd.Description,
		Kind:             domain.DiscountKind(strings.ToLower(pd.Kind)),
		StartsAt:         pd.StartsAt,
		EndsAt:           pd.EndsAt,
		Active:           pd.Active == nil || *pd.Active,
		UsageLimit:       pd.UsageLimit,
		PerCustomerLimit: pd.PerCustomerLimit,
	}
	switch p.Kind {
	case domain.DiscountPercent, domain.DiscountFixed:
	case "":
		p.Kind = domain.DiscountFixed
	default:
		return p, fmt.Errorf("unknown discount kind %q", pd.Kind)
	}

	var err error
	if p.Value, err = decimal.NewFromString(pd.Value); err != nil {
		return p, fmt.Errorf("value: %w", err)
	}
	if pd.MinOrderAmount != "" {
		if p.MinOrderAmount, err = decimal.NewFromString(pd.MinOrderAmount); err != nil {
			return p, fmt.Errorf("min_order_amount: %w", err)
		}
	}
	return p, nil
}

// ParseClock converts "HH:MM" into minutes after midnight. "24:00" is accepted as a
// closing time.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("clock %q: %w", s, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("clock %q: %w", s, err)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("clock %q: out of range", s)
	}
	return h*60 + m, nil
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

func parseWeekday(s string) (time.Weekday, bool) {
	wd, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]
	return wd, ok
}

// PutOutlet adds or replaces an outlet.
func (d *Directory) PutOutlet(o domain.Outlet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.outlets[o.TenantID] == nil {
		d.outlets[o.TenantID] = map[string]domain.Outlet{}
	}
	d.outlets[o.TenantID][o.ID] = o
}

// PutPromotion adds or replaces a promotion. Codes are case-insensitive.
func (d *Directory) PutPromotion(p domain.Promotion) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p.Code = strings.ToUpper(p.Code)
	if d.promotions[p.TenantID] == nil {
		d.promotions[p.TenantID] = map[string]domain.Promotion{}
	}
	d.promotions[p.TenantID][p.Code] = p
}

func (d *Directory) Outlet(_ context.Context, tenantID, outletID string) (*domain.Outlet, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	o, ok := d.outlets[tenantID][outletID]
	if !ok {
		return nil, domain.NotFound("outlet", tenantID+"/"+outletID)
	}
	return &o, nil
}

// Outlets lists the tenant's outlets ordered by id.
func (d *Directory) Outlets(_ context.Context, tenantID string) ([]domain.Outlet, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	byID, ok := d.outlets[tenantID]
	if !ok {
		return nil, domain.NotFound("tenant", tenantID)
	}
	out := make([]domain.Outlet, 0, len(byID))
	for _, o := range byID {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *Directory) Promotion(_ context.Context, tenantID, code string) (*domain.Promotion, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.promotions[tenantID][strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, domain.NotFound("promotion", code)
	}
	return &p, nil
}

// Tenants lists the ids of every tenant with at least one outlet, sorted.
func (d *Directory) Tenants() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.outlets))
	for id := range d.outlets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
