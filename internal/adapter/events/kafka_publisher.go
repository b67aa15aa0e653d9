package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/simaogato/cardguard-backend/internal/domain"
)

// messageWriter is the subset of *kafka.Writer used by the publisher
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher implements domain.EventPublisher on a Kafka topic.
// Messages are keyed by entity id so one card's or transaction's transitions stay ordered.
type KafkaPublisher struct {
	writer       messageWriter
	writeTimeout time.Duration
	logger       *zap.Logger
}

// NewKafkaPublisher creates a publisher writing to topic on brokers
func NewKafkaPublisher(brokers []string, topic string, writeTimeout time.Duration, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
	return newKafkaPublisher(writer, writeTimeout, logger)
}

func newKafkaPublisher(writer messageWriter, writeTimeout time.Duration, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{
		writer:       writer,
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// Publish writes one message per record in a single batch
func (p *KafkaPublisher) Publish(ctx context.Context, records ...domain.TransitionRecord) error {
	if len(records) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		value, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to serialize transition record: %w", err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(r.EntityID),
			Value: value,
			Time:  r.Timestamp,
			Headers: []kafka.Header{
				{Key: "content-type", Value: []byte("application/json")},
				{Key: "entity-kind", Value: []byte(r.Kind)},
			},
		})
	}

	if p.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.writeTimeout)
		defer cancel()
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("failed to publish transition records: %w", err)
	}

	p.logger.Debug("published transition records", zap.Int("count", len(messages)))

	return nil
}

// Close flushes and closes the underlying writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher implements domain.EventPublisher by logging records.
// Used when Kafka is disabled.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a LogPublisher
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

// Publish logs each record at info level
func (p *LogPublisher) Publish(_ context.Context, records ...domain.TransitionRecord) error {
	for _, r := range records {
		p.logger.Info("status transition",
			zap.String("kind", string(r.Kind)),
			zap.String("entity_id", r.EntityID),
			zap.String("from", r.PreviousStatus),
			zap.String("to", r.NewStatus),
			zap.String("reason", r.Reason),
			zap.Time("at", r.Timestamp))
	}
	return nil
}
