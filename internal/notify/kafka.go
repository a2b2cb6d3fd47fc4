package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/honeynil/p2p-marketplace/internal/models"
)

// Publisher is the slice of the Kafka producer the notifier needs.
type Publisher interface {
	Send(ctx context.Context, topic, key string, value []byte) error
}

// KafkaNotifier publishes notifications keyed by recipient, so one user's
// events stay ordered within a partition.
type KafkaNotifier struct {
	publisher Publisher
	topic     string
}

func NewKafkaNotifier(publisher Publisher, topic string) *KafkaNotifier {
	return &KafkaNotifier{publisher: publisher, topic: topic}
}

func (k *KafkaNotifier) Notify(ctx context.Context, userID string, n models.Notification) error {
	value, err := json.Marshal(Envelope{UserID: userID, Notification: n})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := k.publisher.Send(ctx, k.topic, userID, value); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}
