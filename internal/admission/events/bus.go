package events

import (
	"context"
	"sync"
)

// Bus is an in-process Publisher and Source backed by a buffered channel.
type Bus struct {
	ch        chan StockChanged
	done      chan struct{}
	closeOnce sync.Once
}

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	return &Bus{
		ch:   make(chan StockChanged, buffer),
		done: make(chan struct{}),
	}
}

// Publish blocks while the buffer is full, until ctx is done or the bus is closed.
func (b *Bus) Publish(ctx context.Context, ev StockChanged) error {
	ev.Inject(ctx)
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	select {
	case b.ch <- ev:
		return nil
	case <-b.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) Receive(ctx context.Context) (StockChanged, error) {
	select {
	case ev := <-b.ch:
		return ev, nil
	case <-b.done:
		return StockChanged{}, ErrClosed
	case <-ctx.Done():
		return StockChanged{}, ctx.Err()
	}
}

func (b *Bus) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	return nil
}
