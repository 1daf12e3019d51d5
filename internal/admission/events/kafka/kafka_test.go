package kafka

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/kitchen-admission/internal/admission/events"
)

// loopback hands written messages straight to the reader side.
type loopback struct {
	msgs   chan kafkago.Message
	closed bool
}

func newLoopback() *loopback {
	return &loopback{msgs: make(chan kafkago.Message, 8)}
}

func (l *loopback) WriteMessage(_ context.Context, msg kafkago.Message) error {
	l.msgs <- msg
	return nil
}

func (l *loopback) ReadMessage(ctx context.Context) (*kafkago.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-l.msgs:
		if !ok {
			return nil, io.EOF
		}
		return &msg, nil
	}
}

func (l *loopback) Close() error {
	if !l.closed {
		l.closed = true
		close(l.msgs)
	}
	return nil
}

func TestPublishAndReceiveCarryTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "receipt")
	want := span.SpanContext().TraceID()
	span.End()

	bus := newLoopback()
	pub := NewPublisher(bus)
	src := NewSource(bus)

	ev := events.StockChanged{
		TenantID:      "t1",
		OutletID:      "o1",
		IngredientIDs: []string{"i1", "i2"},
		Reason:        events.ReasonReceipt,
		At:            time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, pub.Publish(ctx, ev))

	msg := <-bus.msgs
	assert.Equal(t, "t1/o1", string(msg.Key))
	bus.msgs <- msg

	got, err := src.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ev.Key(), got.Key())
	assert.Equal(t, ev.IngredientIDs, got.IngredientIDs)
	assert.Equal(t, events.ReasonReceipt, got.Reason)
	assert.True(t, ev.At.Equal(got.At))

	sc := trace.SpanContextFromContext(got.Context(context.Background()))
	assert.Equal(t, want, sc.TraceID())
}

func TestReceiveSkipsUndecodableMessages(t *testing.T) {
	bus := newLoopback()
	bus.msgs <- kafkago.Message{Key: []byte("x"), Value: []byte("not json")}
	require.NoError(t, NewPublisher(bus).Publish(context.Background(), events.StockChanged{
		TenantID: "t1", OutletID: "o2", Reason: events.ReasonCatalog,
	}))

	got, err := NewSource(bus).Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "o2", got.OutletID)
	assert.Nil(t, got.Trace)
}

func TestReceiveReportsClosedReader(t *testing.T) {
	bus := newLoopback()
	src := NewSource(bus)
	require.NoError(t, src.Close())

	_, err := src.Receive(context.Background())
	assert.True(t, errors.Is(err, events.ErrClosed))
}

func TestReceiveStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSource(newLoopback()).Receive(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConstructorsNeedBrokersAndTopic(t *testing.T) {
	_, err := NewWriter(Config{Topic: "stock"}, sdktrace.NewTracerProvider())
	assert.Error(t, err)
	_, err = NewReader(Config{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
}
