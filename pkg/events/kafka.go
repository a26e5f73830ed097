package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"mercator-hq/spendcap/pkg/telemetry/tracing"
)

// messageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures a KafkaPublisher.
type KafkaConfig struct {
	// Brokers lists the bootstrap broker addresses.
	Brokers []string

	// Topic is the destination topic.
	// Default: "spend.recorded"
	Topic string

	// WriteTimeout bounds a single publish.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// KafkaPublisher writes spend events to a Kafka topic as JSON.
// Messages are keyed by resource ID so a resource's events stay ordered
// within a partition.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
}

// NewKafkaPublisher creates a publisher backed by a kafka-go Writer.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: cfg.WriteTimeout,
	}
	return newKafkaPublisher(writer, cfg.WriteTimeout), nil
}

func newKafkaPublisher(writer messageWriter, timeout time.Duration) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, timeout: timeout}
}

// PublishSpend encodes the event and writes it synchronously.
func (p *KafkaPublisher) PublishSpend(ctx context.Context, event SpendRecorded) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode spend event: %w", err)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(event.ResourceID),
		Value:   data,
		Time:    event.RecordedAt,
		Headers: traceHeaders(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to publish spend event: %w", err)
	}
	return nil
}

// traceHeaders carries the caller's trace context so consumers can join
// the trace that recorded the spend.
func traceHeaders(ctx context.Context) []kafka.Header {
	carrier := map[string]string{}
	tracing.InjectToMap(ctx, carrier)

	headers := make([]kafka.Header, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return headers
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
