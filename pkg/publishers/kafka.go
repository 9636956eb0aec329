package publishers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/samvad-hq/channel-relay/internal/logger"
	"github.com/segmentio/kafka-go"
)

// kafkaWriter is the subset of *kafka.Writer used by kafkaPublisher.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaPublisher struct {
	id     string
	topic  string
	writer kafkaWriter
	log    logger.Logger
}

func newKafkaPublisher(_ context.Context, cfg PublisherConfig, log logger.Logger) (Publisher, error) {
	if cfg.Kafka == nil {
		return nil, fmt.Errorf("publisher %q missing kafka configuration", cfg.ID)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	return &kafkaPublisher{
		id:     cfg.ID,
		topic:  cfg.Kafka.Topic,
		writer: writer,
		log:    logger.Ensure(log),
	}, nil
}

func (k *kafkaPublisher) ID() string   { return k.id }
func (k *kafkaPublisher) Type() string { return TypeKafka }

// Publish keys messages by source channel so one channel's events stay ordered.
func (k *kafkaPublisher) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.SourceChannelID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(evt.ID)},
		},
	})
	if err != nil {
		k.log.ErrorObj("kafka publisher send failed", "publisher_kafka_error", map[string]any{
			"publisher_id": k.id,
			"topic":        k.topic,
			"event_id":     evt.ID,
			"error":        err.Error(),
		})
		return fmt.Errorf("write kafka message: %w", err)
	}
	k.log.DebugObj("kafka publisher delivered event", "publisher_kafka_delivery", map[string]any{
		"publisher_id": k.id,
		"topic":        k.topic,
		"event_id":     evt.ID,
	})
	return nil
}

func (k *kafkaPublisher) Close() error { return k.writer.Close() }
