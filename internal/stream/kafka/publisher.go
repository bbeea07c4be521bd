// Package kafka publishes committed exchange events to a Kafka topic for
// consumers outside the Redis deployment.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/socialbet/internal/domain"
)

// Config configures the writer.
type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes LogEvents as JSON. Every event of one command shares the
// command's sequence as message key, so a command's events stay on one
// partition in emission order.
type Publisher struct {
	w      messageWriter
	logger *slog.Logger
}

func NewPublisher(cfg Config, logger *slog.Logger) *Publisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	if cfg.BatchTimeout > 0 {
		w.BatchTimeout = cfg.BatchTimeout
	}
	return newPublisher(w, logger)
}

func newPublisher(w messageWriter, logger *slog.Logger) *Publisher {
	return &Publisher{w: w, logger: logger.With(slog.String("component", "kafka_publisher"))}
}

// Publish writes events in one batch.
func (p *Publisher) Publish(ctx context.Context, events []domain.LogEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("kafka: marshal %s: %w", e.Kind, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(strconv.FormatUint(e.Seq, 10)),
			Value:   b,
			Time:    e.At,
			Headers: []kafka.Header{{Key: "kind", Value: []byte(e.Kind)}},
		})
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka: write %d messages: %w", len(msgs), err)
	}
	p.logger.DebugContext(ctx, "events published", slog.Int("count", len(msgs)))
	return nil
}

func (p *Publisher) Close() error {
	return p.w.Close()
}
