// Package testkit builds real stores and directories for package tests.
package testkit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/kitchen-admission/internal/admission/directory"
	"github.com/jcmexdev/kitchen-admission/internal/admission/domain"
	"github.com/jcmexdev/kitchen-admission/internal/admission/store/sqlite"
)

const Tenant = "tenant-1"

// Store opens a fresh SQLite database under t.TempDir.
func Store(t testing.TB) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "admission.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// AlwaysOpen is an outlet open around the clock in UTC.
func AlwaysOpen(id string) domain.Outlet {
	hours := map[time.Weekday]domain.Window{}
	for d := time.Sunday; d <= time.Saturday; d++ {
		hours[d] = domain.Window{Open: 0, Close: 24 * 60}
	}
	return domain.Outlet{
		ID:           id,
		TenantID:     Tenant,
		Name:         id,
		Location:     time.UTC,
		Hours:        hours,
		MinimumOrder: map[domain.OrderType]decimal.Decimal{},
	}
}

// Directory holds the given outlets and promotions.
func Directory(outlets []domain.Outlet, promotions ...domain.Promotion) *directory.Directory {
	d := directory.New()
	for _, o := range outlets {
		d.PutOutlet(o)
	}
	for _, p := range promotions {
		d.PutPromotion(p)
	}
	return d
}

// Dec parses a decimal literal and panics on malformed input.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
