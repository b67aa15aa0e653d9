package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/simaogato/cardguard-backend/internal/domain"
)

type fakeWriter struct {
	messages    []kafka.Message
	hadDeadline bool
	err         error
	closed      bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	_, w.hadDeadline = ctx.Deadline()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

var at = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func records() []domain.TransitionRecord {
	return []domain.TransitionRecord{
		{
			Kind:           domain.EntityKindTransaction,
			EntityID:       "TXN-20240615-0000ABCD",
			PreviousStatus: "PENDING",
			NewStatus:      "APPROVED",
			Reason:         "controls passed",
			Timestamp:      at,
		},
		{
			Kind:           domain.EntityKindCard,
			EntityID:       "7b0e6c5e-98a4-4f2b-a2c4-2a9b3d1d7f10",
			PreviousStatus: "ACTIVE",
			NewStatus:      "LOCKED",
			Timestamp:      at,
		},
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	writer := &fakeWriter{}
	publisher := newKafkaPublisher(writer, time.Second, zaptest.NewLogger(t))

	require.NoError(t, publisher.Publish(context.Background(), records()...))
	require.Len(t, writer.messages, 2)
	assert.True(t, writer.hadDeadline)

	msg := writer.messages[0]
	assert.Equal(t, "TXN-20240615-0000ABCD", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	assert.Equal(t, []kafka.Header{
		{Key: "content-type", Value: []byte("application/json")},
		{Key: "entity-kind", Value: []byte("TRANSACTION")},
	}, msg.Headers)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "TRANSACTION", payload["kind"])
	assert.Equal(t, "PENDING", payload["previous_status"])
	assert.Equal(t, "APPROVED", payload["new_status"])
	assert.Equal(t, "controls passed", payload["reason"])
	assert.Equal(t, "2024-06-15T12:00:00Z", payload["timestamp"])

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal(writer.messages[1].Value, &second))
	assert.NotContains(t, second, "reason")
	assert.Equal(t, "CARD", string(writer.messages[1].Headers[1].Value))
}

func TestKafkaPublisher_NoRecords(t *testing.T) {
	writer := &fakeWriter{err: errors.New("must not be called")}
	publisher := newKafkaPublisher(writer, 0, nil)

	assert.NoError(t, publisher.Publish(context.Background()))
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	writer := &fakeWriter{err: kafka.LeaderNotAvailable}
	publisher := newKafkaPublisher(writer, 0, nil)

	err := publisher.Publish(context.Background(), records()[0])

	require.Error(t, err)
	assert.True(t, errors.Is(err, kafka.LeaderNotAvailable))
	assert.False(t, writer.hadDeadline, "no timeout configured")
}

func TestKafkaPublisher_Close(t *testing.T) {
	writer := &fakeWriter{}
	require.NoError(t, newKafkaPublisher(writer, 0, nil).Close())
	assert.True(t, writer.closed)
}

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	publisher := NewLogPublisher(zap.New(core))

	require.NoError(t, publisher.Publish(context.Background(), records()...))

	entries := logs.FilterMessage("status transition").All()
	require.Len(t, entries, 2)
	fields := entries[1].ContextMap()
	assert.Equal(t, "CARD", fields["kind"])
	assert.Equal(t, "ACTIVE", fields["from"])
	assert.Equal(t, "LOCKED", fields["to"])
}
