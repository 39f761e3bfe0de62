package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"teslabox/internal/config"
	"teslabox/internal/logging"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one JSON message per event to the events topic.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
	now    func() time.Time
}

type eventMessage struct {
	Event       Event     `json:"event"`
	Payload     Payload   `json:"payload"`
	PublishedAt time.Time `json:"published_at"`
}

// NewKafkaPublisher builds a synchronous writer against cfg.Kafka.Brokers.
func NewKafkaPublisher(cfg *config.Config, logger *slog.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Kafka.Brokers...),
		Topic:                  cfg.Kafka.EventsTopic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(writer, cfg.Kafka.EventsTopic, logger)
}

func newKafkaPublisher(writer messageWriter, topic string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: writer,
		topic:  topic,
		logger: logging.NewComponentLogger(logger, "notifications").With(logging.String("topic", topic)),
		now:    time.Now,
	}
}

// Enabled reports whether a writer is attached.
func (k *KafkaPublisher) Enabled() bool { return k != nil && k.writer != nil }

// Publish encodes the event and writes it keyed by the payload id.
func (k *KafkaPublisher) Publish(ctx context.Context, event Event, fields Payload) error {
	if !k.Enabled() {
		return nil
	}
	now := k.now()
	body, err := json.Marshal(eventMessage{Event: event, Payload: fields, PublishedAt: now.UTC()})
	if err != nil {
		return fmt.Errorf("encode kafka event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(fields.String("id")),
		Value: body,
		Time:  now,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(event)},
			{Key: "source", Value: []byte("teslabox")},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka event: %w", err)
	}
	k.logger.Debug("event published", logging.String("event", string(event)))
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaPublisher) Close() error {
	if !k.Enabled() {
		return nil
	}
	return k.writer.Close()
}
