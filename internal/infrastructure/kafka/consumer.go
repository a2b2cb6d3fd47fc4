package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/honeynil/p2p-marketplace/internal/notify"
	"github.com/segmentio/kafka-go"
)

// messageReader is satisfied by *kafka.Reader.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer moves notifications from the notifications topic into a sink,
// normally the Redis inbox. Messages the sink rejects go to the DLQ topic.
type Consumer struct {
	reader messageReader
	dlq    messageWriter
	sink   notify.Notifier

	// backoff is multiplied by the attempt number between sink retries.
	backoff time.Duration
}

// maxAttempts bounds sink deliveries per message before it is dead-lettered.
const maxAttempts = 3

func DLQTopic(topic string) string {
	return topic + "-dlq"
}

func NewConsumer(brokers []string, topic, groupID string, sink notify.Notifier) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		dlq: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        DLQTopic(topic),
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		},
		sink:    sink,
		backoff: 500 * time.Millisecond,
	}
}

// Consume blocks until ctx is cancelled.
func (c *Consumer) Consume(ctx context.Context) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Kafka consumer stopped")
				return
			}
			slog.Error("failed to read Kafka message", "error", err)
			continue
		}

		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				// Left uncommitted, redelivered after restart.
				slog.Info("Kafka consumer stopped mid-delivery", "key", string(msg.Key))
				return
			}
			slog.Error("notification routed to DLQ", "topic", msg.Topic, "key", string(msg.Key), "error", err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			slog.Error("failed to commit Kafka message", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		}
	}
}

// handle delivers one message to the sink, retrying sink failures with a
// linear backoff. A non-nil error means the message was written to the DLQ,
// or that ctx ended before delivery.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	var env notify.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return c.deadLetter(ctx, msg, fmt.Errorf("unmarshal notification: %w", err))
	}
	if env.UserID == "" {
		return c.deadLetter(ctx, msg, errors.New("notification without recipient"))
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = c.sink.Notify(ctx, env.UserID, env.Notification)
		if lastErr == nil {
			slog.Info("notification delivered", "user_id", env.UserID, "type", env.Notification.Type, "attempt", attempt)
			return nil
		}
		slog.Warn("notification delivery failed",
			"user_id", env.UserID,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", lastErr)

		if attempt < maxAttempts {
			select {
			case <-time.After(time.Duration(attempt) * c.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return c.deadLetter(ctx, msg, lastErr)
}

func (c *Consumer) deadLetter(ctx context.Context, original kafka.Message, reason error) error {
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Key:   original.Key,
		Value: original.Value,
		Headers: []kafka.Header{
			{Key: "error", Value: []byte(reason.Error())},
		},
	})
	if err != nil {
		slog.Error("failed to write to DLQ", "key", string(original.Key), "error", err)
	}
	return reason
}

func (c *Consumer) Close() error {
	rerr := c.reader.Close()
	werr := c.dlq.Close()
	if rerr != nil {
		return rerr
	}
	return werr
}
