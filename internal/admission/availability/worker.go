package availability

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jcmexdev/kitchen-admission/internal/admission/events"
)

// Worker turns stock change events into outlet recomputes. Events for an outlet that
// arrive while a recompute is pending are folded into that recompute.
type Worker struct {
	source       events.Source
	synchronizer *Synchronizer
	retryAfter   time.Duration

	mu      sync.Mutex
	pending map[string]events.StockChanged
	wake    chan struct{}
}

func NewWorker(source events.Source, s *Synchronizer) *Worker {
	return &Worker{
		source:       source,
		synchronizer: s,
		retryAfter:   time.Second,
		pending:      map[string]events.StockChanged{},
		wake:         make(chan struct{}, 1),
	}
}

// Run consumes events until ctx is done or the source is closed. It returns nil on a
// clean shutdown.
func (w *Worker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.drain(ctx)
	}()

	err := w.receive(ctx)
	cancel()
	wg.Wait()
	return err
}

func (w *Worker) receive(ctx context.Context) error {
	for {
		ev, err := w.source.Receive(ctx)
		switch {
		case err == nil:
		case errors.Is(err, events.ErrClosed), ctx.Err() != nil:
			return nil
		default:
			slog.ErrorContext(ctx, "failed to receive stock change", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.retryAfter):
			}
			continue
		}

		w.mu.Lock()
		w.pending[ev.Key()] = ev
		w.mu.Unlock()
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		}

		w.mu.Lock()
		batch := make([]events.StockChanged, 0, len(w.pending))
		for _, ev := range w.pending {
			batch = append(batch, ev)
		}
		w.pending = map[string]events.StockChanged{}
		w.mu.Unlock()

		sort.Slice(batch, func(i, j int) bool { return batch[i].Key() < batch[j].Key() })
		for _, ev := range batch {
			w.recompute(ctx, ev)
		}
	}
}

func (w *Worker) recompute(parent context.Context, ev events.StockChanged) {
	ctx := ev.Context(parent)
	changed, err := w.synchronizer.RecomputeForOutlet(ctx, ev.TenantID, ev.OutletID)
	if err != nil {
		slog.ErrorContext(ctx, "availability recompute failed",
			"tenant_id", ev.TenantID, "outlet_id", ev.OutletID, "reason", ev.Reason, "error", err)
		return
	}
	slog.DebugContext(ctx, "availability recomputed",
		"tenant_id", ev.TenantID, "outlet_id", ev.OutletID, "reason", ev.Reason, "changed", len(changed))
}
