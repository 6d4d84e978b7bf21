package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// EventWriter publishes the notification event stream. Keys are entity
// IDs; the hash balancer pins each entity to one partition so consumers
// see its events in order.
type EventWriter struct {
	writer *kafka.Writer
}

func NewEventWriter(brokers []string, topic string) *EventWriter {
	return &EventWriter{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (w *EventWriter) Publish(ctx context.Context, key string, value []byte) error {
	err := w.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to publish event %q: %w", key, err)
	}
	return nil
}

func (w *EventWriter) Close() error {
	return w.writer.Close()
}

// EventReader tails the event stream, e.g. for the ops CLI or an
// analytics sink. Handler errors are logged and the read loop keeps
// going; the stream is observational, not transactional.
type EventReader struct {
	reader *kafka.Reader
	logger *slog.Logger
}

func NewEventReader(brokers []string, topic, groupID string, logger *slog.Logger) *EventReader {
	return &EventReader{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			Topic:       topic,
			GroupID:     groupID,
			StartOffset: kafka.LastOffset,
			MinBytes:    1,
			MaxBytes:    10e6,
		}),
		logger: logger,
	}
}

func (r *EventReader) Consume(ctx context.Context, handler func(key string, value []byte) error) {
	for {
		m, err := r.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("failed to read event", "error", err)
			continue
		}

		if err := handler(string(m.Key), m.Value); err != nil {
			r.logger.Error("event handler failed", "key", string(m.Key), "error", err)
		}
	}
}

func (r *EventReader) Close() error {
	return r.reader.Close()
}
