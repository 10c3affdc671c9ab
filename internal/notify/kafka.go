package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storage-backend/internal/models"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaDispatcher publishes the raw outbox payload to a topic, keyed by dedupe
// key so consumers can drop redeliveries. Retries are left to the worker.
type KafkaDispatcher struct {
	writer messageWriter
}

func NewKafkaDispatcher(brokers []string, topic string) (*KafkaDispatcher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: at least one broker required")
	}
	if topic == "" {
		return nil, errors.New("kafka: topic required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return &KafkaDispatcher{writer: w}, nil
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, entry models.OutboxEntry) error {
	msg := kafka.Message{
		Key:   []byte(entry.DedupeKey),
		Value: entry.Payload,
		Time:  entry.CreatedAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(entry.Type)},
		},
	}
	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish entry %d: %w", entry.ID, err)
	}
	return nil
}

func (d *KafkaDispatcher) Close() error {
	if d == nil || d.writer == nil {
		return nil
	}
	return d.writer.Close()
}
