package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// RecordedEvent is an activity event as read back from the topic; Data stays raw.
type RecordedEvent struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Key        string          `json:"key"`
	UserID     string          `json:"user_id"`
	Data       json.RawMessage `json:"data"`
	OccurredAt string          `json:"occurred_at"`
}

type EventHandler func(ctx context.Context, e RecordedEvent) error

// Consumer tails the activity topic for offline inspection.
type Consumer struct {
	reader *kafka.Reader
	log    logrus.FieldLogger
}

func NewConsumer(brokers []string, topic, groupID string, logger logrus.FieldLogger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, log: logger.WithField("component", "activity-consumer")}
}

func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.WithError(err).Warn("Error reading message")
			continue
		}

		e, err := decodeMessage(msg)
		if err != nil {
			c.log.WithError(err).WithField("offset", msg.Offset).Warn("Skipping undecodable message")
			continue
		}
		if err := handler(ctx, e); err != nil {
			c.log.WithError(err).WithField("event", e.Type).Warn("Error handling message")
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func decodeMessage(msg kafka.Message) (RecordedEvent, error) {
	var e RecordedEvent
	err := json.Unmarshal(msg.Value, &e)
	return e, err
}
