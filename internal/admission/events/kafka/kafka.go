// Package kafka carries StockChanged events over a Kafka topic so the availability worker
// can run out of process.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/kitchen-admission/internal/admission/events"
)

type Producer interface {
	WriteMessage(ctx context.Context, msg kafkago.Message) error
	Close() error
}

type Consumer interface {
	ReadMessage(ctx context.Context) (*kafkago.Message, error)
	Close() error
}

type Config struct {
	Brokers      []string
	Topic        string
	GroupID      string
	ClientID     string
	BatchTimeout time.Duration
}

// NewWriter returns a traced producer for cfg.Topic.
func NewWriter(cfg Config, tp trace.TracerProvider) (Producer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka: brokers and topic are required")
	}
	base := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: cfg.BatchTimeout,
	}
	w, err := otelkafka.NewWriter(base,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes(
			[]attribute.KeyValue{
				semconv.MessagingDestinationNameKey.String(cfg.Topic),
				attribute.String("messaging.kafka.client_id", cfg.ClientID),
			},
		),
	)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// NewReader returns a traced consumer-group reader for cfg.Topic.
func NewReader(cfg Config) (Consumer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka: brokers and topic are required")
	}
	base := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	})
	r, err := otelkafka.NewReader(base)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Publisher writes events keyed by outlet, so one outlet's events stay in order on a
// single partition.
type Publisher struct {
	producer Producer
}

func NewPublisher(p Producer) *Publisher {
	return &Publisher{producer: p}
}

func (p *Publisher) Publish(ctx context.Context, ev events.StockChanged) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode stock change: %w", err)
	}
	ev.Inject(ctx)
	msg := kafkago.Message{
		Key:   []byte(ev.Key()),
		Value: payload,
	}
	for k, v := range ev.Trace {
		msg.Headers = append(msg.Headers, kafkago.Header{Key: k, Value: []byte(v)})
	}
	if err := p.producer.WriteMessage(ctx, msg); err != nil {
		return fmt.Errorf("publish stock change for %s: %w", ev.Key(), err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}

// Source reads events from a consumer. Messages that do not decode are logged and skipped.
type Source struct {
	consumer Consumer
}

func NewSource(c Consumer) *Source {
	return &Source{consumer: c}
}

func (s *Source) Receive(ctx context.Context) (events.StockChanged, error) {
	for {
		msg, err := s.consumer.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return events.StockChanged{}, ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, kafkago.ErrGroupClosed) {
				return events.StockChanged{}, events.ErrClosed
			}
			return events.StockChanged{}, err
		}

		var ev events.StockChanged
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			slog.ErrorContext(ctx, "invalid stock change message",
				"error", err, "key", string(msg.Key), "partition", msg.Partition, "offset", msg.Offset)
			continue
		}
		if len(msg.Headers) > 0 {
			ev.Trace = make(map[string]string, len(msg.Headers))
			for _, h := range msg.Headers {
				ev.Trace[h.Key] = string(h.Value)
			}
		}
		return ev, nil
	}
}

func (s *Source) Close() error {
	return s.consumer.Close()
}
