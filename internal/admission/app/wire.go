package app

import (
	"github.com/jcmexdev/kitchen-admission/internal/admission/availability"
	"github.com/jcmexdev/kitchen-admission/internal/admission/catalog"
	"github.com/jcmexdev/kitchen-admission/internal/admission/events"
	"github.com/jcmexdev/kitchen-admission/internal/admission/ledger"
	"github.com/jcmexdev/kitchen-admission/internal/admission/ports"
	"github.com/jcmexdev/kitchen-admission/internal/admission/queue"
	"github.com/jcmexdev/kitchen-admission/internal/admission/statuslog"
	"github.com/jcmexdev/kitchen-admission/internal/admission/store/sqlite"
	"github.com/jcmexdev/kitchen-admission/internal/admission/validation"
	"github.com/jcmexdev/kitchen-admission/internal/pkg/cache"
	"github.com/jcmexdev/kitchen-admission/internal/pkg/metrics"
)

// Directory is the outlet directory and promotion catalog the engine reads from.
type Directory interface {
	ports.OutletDirectory
	ports.PromotionCatalog
}

// Deps are the collaborators Build wires the engine from. History, Publisher, Cache and
// Metrics may be nil.
type Deps struct {
	Store     *sqlite.Store
	Directory Directory
	History   statuslog.Repository
	Publisher events.Publisher
	Cache     cache.Cache
	Metrics   *metrics.Metrics
}

// Build assembles every component over one store.
func Build(d Deps) *Service {
	l := ledger.New(d.Store, d.Directory, d.Publisher, d.Metrics)
	s := availability.New(d.Store, d.Store, l, d.Directory, d.Cache, d.Metrics)
	p := validation.New(d.Directory, d.Store, l, d.Directory, d.Store,
		validation.WithAvailability(d.Store),
		validation.WithMetrics(d.Metrics))
	q := queue.New(d.Store, d.Directory, d.History, d.Publisher, d.Metrics)
	c := catalog.New(d.Store, d.Directory, d.Publisher)
	return New(l, s, p, q, c, d.Store, d.Metrics)
}
