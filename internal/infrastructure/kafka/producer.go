package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/example/storefront-sync/internal/activity"
	"github.com/segmentio/kafka-go"
)

// Producer publishes activity events to a Kafka topic, keyed by event key.
type Producer struct {
	writer *kafka.Writer
}

var _ activity.Publisher = (*Producer)(nil)

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
	}
	return &Producer{writer: writer}
}

func (p *Producer) Publish(ctx context.Context, e activity.Event) error {
	msg, err := encodeMessage(e)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func encodeMessage(e activity.Event) (kafka.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:     []byte(e.Key),
		Value:   data,
		Time:    e.OccurredAt,
		Headers: []kafka.Header{{Key: "event-type", Value: []byte(e.Type)}},
	}, nil
}
