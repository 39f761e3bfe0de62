// Package intake consumes archive and stream requests from Kafka topics and
// pushes them onto the pipelines.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"teslabox/internal/archive"
	"teslabox/internal/config"
	"teslabox/internal/logging"
	"teslabox/internal/pipeline"
	"teslabox/internal/services"
	"teslabox/internal/stream"
)

const readRetryDelay = time.Second

// ArchivePusher accepts archive requests.
type ArchivePusher interface {
	Push(ctx context.Context, req archive.Request) error
}

// StreamPusher accepts stream requests.
type StreamPusher interface {
	Push(ctx context.Context, req stream.Request) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type handler func(ctx context.Context, value []byte) error

// errMalformed marks messages that can never be pushed.
var errMalformed = errors.New("malformed request")

// Consumer reads one topic and hands each message to a handler.
type Consumer struct {
	topic   string
	reader  messageReader
	handle  handler
	logger  *slog.Logger
	backoff time.Duration
}

// Intake owns one consumer per pipeline topic.
type Intake struct {
	consumers []*Consumer
	wg        sync.WaitGroup
}

// New builds consumers for the configured archive and stream topics.
func New(cfg *config.Config, archives ArchivePusher, streams StreamPusher, logger *slog.Logger) *Intake {
	logger = logging.NewComponentLogger(logger, "intake")
	newReader := func(topic string) *kafka.Reader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Kafka.Brokers,
			Topic:       topic,
			GroupID:     cfg.Kafka.GroupID,
			StartOffset: kafka.FirstOffset,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     time.Second,
		})
	}
	return &Intake{consumers: []*Consumer{
		newConsumer(cfg.Kafka.ArchiveTopic, newReader(cfg.Kafka.ArchiveTopic), ArchiveHandler(archives), logger),
		newConsumer(cfg.Kafka.StreamTopic, newReader(cfg.Kafka.StreamTopic), StreamHandler(streams), logger),
	}}
}

func newConsumer(topic string, reader messageReader, handle handler, logger *slog.Logger) *Consumer {
	return &Consumer{
		topic:   topic,
		reader:  reader,
		handle:  handle,
		logger:  logger.With(logging.String("topic", topic)),
		backoff: readRetryDelay,
	}
}

// Start launches every consumer. They stop when ctx is cancelled.
func (i *Intake) Start(ctx context.Context) {
	for _, c := range i.consumers {
		i.wg.Add(1)
		go func(c *Consumer) {
			defer i.wg.Done()
			c.Run(ctx)
		}(c)
	}
}

// Wait blocks until every consumer has exited and closed its reader.
func (i *Intake) Wait() { i.wg.Wait() }

// Run fetches messages until ctx ends. A message is committed once it has been
// queued or found malformed; other push failures retry the same message.
func (c *Consumer) Run(ctx context.Context) {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Debug("close reader", logging.Error(err))
		}
	}()
	c.logger.Info("intake consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.WarnWithContext(c.logger, "kafka fetch failed", "intake_fetch_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kafka brokers and topic"),
			)
			if !sleep(ctx, c.backoff) {
				return
			}
			continue
		}
		if !c.deliver(ctx, msg) {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Warn("commit failed", logging.Error(err), logging.Int64("offset", msg.Offset))
		}
	}
}

// deliver retries until the message is accepted or rejected for good. It
// reports false when ctx ended first.
func (c *Consumer) deliver(ctx context.Context, msg kafka.Message) bool {
	for {
		err := c.handle(ctx, msg.Value)
		switch {
		case err == nil:
			return true
		case errors.Is(err, errMalformed), errors.Is(err, services.ErrValidation), errors.Is(err, pipeline.ErrDuplicateJob):
			logging.WarnWithContext(c.logger, "request skipped", "intake_skipped",
				logging.Error(err),
				logging.Int64("offset", msg.Offset),
				logging.String(logging.FieldImpact, "the request is dropped"),
			)
			return true
		case ctx.Err() != nil:
			return false
		}
		c.logger.Warn("push failed; retrying", logging.Error(err), logging.Int64("offset", msg.Offset))
		if !sleep(ctx, c.backoff) {
			return false
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// ArchiveHandler decodes archive requests for p.
func ArchiveHandler(p ArchivePusher) func(context.Context, []byte) error {
	return func(ctx context.Context, value []byte) error {
		var req archive.Request
		if err := json.Unmarshal(value, &req); err != nil {
			return fmt.Errorf("%w: %v", errMalformed, err)
		}
		return p.Push(ctx, req)
	}
}

// StreamHandler decodes stream requests for p.
func StreamHandler(p StreamPusher) func(context.Context, []byte) error {
	return func(ctx context.Context, value []byte) error {
		var req stream.Request
		if err := json.Unmarshal(value, &req); err != nil {
			return fmt.Errorf("%w: %v", errMalformed, err)
		}
		return p.Push(ctx, req)
	}
}
