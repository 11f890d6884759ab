// activity-tail prints the storefront activity topic, one event per line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/storefront-sync/internal/config"
	"github.com/example/storefront-sync/internal/infrastructure/kafka"
	"github.com/example/storefront-sync/internal/logging"
)

const consumerGroup = "storefront-activity-tail"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log := logging.New(os.Getenv("LOG_LEVEL"))
	cfg, err := config.LoadClient(log)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if !cfg.ActivityEnabled() {
		log.Fatal("KAFKA_BROKERS is not set")
	}

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, consumerGroup, log)
	defer consumer.Close()

	log.WithField("topic", cfg.KafkaTopic).Info("Tailing activity events")
	err = consumer.Consume(ctx, func(_ context.Context, e kafka.RecordedEvent) error {
		_, err := fmt.Printf("%s %-24s user=%s key=%s %s\n", e.OccurredAt, e.Type, e.UserID, e.Key, e.Data)
		return err
	})
	if err != nil && ctx.Err() == nil {
		log.WithError(err).Error("Consumer stopped")
	}
	log.Info("Shutting down...")
}
