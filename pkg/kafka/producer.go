package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Config holds Kafka configuration
type Config struct {
	Brokers        []string
	LifecycleTopic string
}

// ParseConfig parses a comma-separated broker string
func ParseConfig(brokers string, lifecycleTopic string) Config {
	brokerList := strings.Split(brokers, ",")
	for i := range brokerList {
		brokerList[i] = strings.TrimSpace(brokerList[i])
	}

	return Config{
		Brokers:        brokerList,
		LifecycleTopic: lifecycleTopic,
	}
}

// Producer handles producing messages to Kafka
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.LifecycleTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		// Allow Kafka to auto-create the topic in dev environments when it doesn't exist yet.
		// Without this, a first publish may fail with "Unknown Topic Or Partition".
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.LifecycleTopic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// LifecycleEventMessage is a sharing lifecycle event for downstream
// dataspace participants to react to.
type LifecycleEventMessage struct {
	Type          string    `json:"type"` // e.g. "request.approved", "contract.terminated"
	RequestID     string    `json:"request_id,omitempty"`
	ContractID    string    `json:"contract_id,omitempty"`
	TransferID    string    `json:"transfer_id,omitempty"`
	PublicationID string    `json:"publication_id,omitempty"`
	ProviderRole  string    `json:"provider_role,omitempty"`
	ConsumerRole  string    `json:"consumer_role,omitempty"`
	Status        string    `json:"status,omitempty"`
	Timestamp     time.Time `json:"timestamp"`

	// Tracing
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// PublishLifecycleEvent publishes a lifecycle event to the configured topic
func (p *Producer) PublishLifecycleEvent(ctx context.Context, evt *LifecycleEventMessage) error {
	ctx, span := tracing.StartSpan(ctx, "Kafka.PublishLifecycleEvent")
	defer span.End()

	if evt == nil {
		return fmt.Errorf("lifecycle event is nil")
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.topic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("event.type", evt.Type),
	)

	// Inject trace context into the message
	evt.TraceID = tracing.GetTraceID(ctx)
	evt.SpanID = tracing.GetSpanID(ctx)

	data, err := json.Marshal(evt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal event")
		return fmt.Errorf("failed to marshal lifecycle event: %w", err)
	}

	// Key by the entity the event is about so one entity's events stay ordered
	key := evt.ContractID
	if key == "" {
		key = evt.RequestID
	}
	if key == "" {
		key = evt.TransferID
	}

	headers := []kafka.Header{
		{Key: "type", Value: []byte(evt.Type)},
	}
	if evt.ProviderRole != "" {
		headers = append(headers, kafka.Header{Key: "provider_role", Value: []byte(evt.ProviderRole)})
	}
	if evt.ConsumerRole != "" {
		headers = append(headers, kafka.Header{Key: "consumer_role", Value: []byte(evt.ConsumerRole)})
	}

	// Add W3C trace context headers for distributed tracing
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}
	if tracestate := tracing.GetTraceState(ctx); tracestate != "" {
		headers = append(headers, kafka.Header{Key: "tracestate", Value: []byte(tracestate)})
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: headers,
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish event")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish to Kafka topic %s", p.topic)
		return err
	}

	span.SetStatus(codes.Ok, "event published")
	p.logger.WithContext(ctx).Debugf("Published lifecycle event to Kafka: type=%s key=%s trace=%s",
		evt.Type, key, evt.TraceID)

	return nil
}
