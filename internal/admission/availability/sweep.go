package availability

import (
	"context"
	"log/slog"
	"time"

	"github.com/jcmexdev/kitchen-admission/internal/admission/domain"
)

// TenantDirectory enumerates every outlet the engine serves.
type TenantDirectory interface {
	Tenants() []string
	Outlets(ctx context.Context, tenantID string) ([]domain.Outlet, error)
}

// SweepTimeWindows applies opening hours to every outlet of every tenant and returns how
// many items changed. A failing outlet is logged and skipped.
func (s *Synchronizer) SweepTimeWindows(ctx context.Context, dir TenantDirectory) int {
	total := 0
	for _, tenantID := range dir.Tenants() {
		outlets, err := dir.Outlets(ctx, tenantID)
		if err != nil {
			slog.ErrorContext(ctx, "list outlets for time window sweep", "tenant_id", tenantID, "error", err)
			continue
		}
		for _, o := range outlets {
			changed, err := s.ApplyTimeWindow(ctx, tenantID, o.ID)
			if err != nil {
				slog.ErrorContext(ctx, "apply time window", "tenant_id", tenantID, "outlet_id", o.ID, "error", err)
				continue
			}
			total += len(changed)
		}
	}
	return total
}

// RunTimeWindows sweeps once right away and then on every tick until ctx is done.
func (s *Synchronizer) RunTimeWindows(ctx context.Context, dir TenantDirectory, every time.Duration) {
	s.SweepTimeWindows(ctx, dir)
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.SweepTimeWindows(ctx, dir); n > 0 {
				slog.InfoContext(ctx, "opening hours changed menu availability", "items", n)
			}
		}
	}
}
