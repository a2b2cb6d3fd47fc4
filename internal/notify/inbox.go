package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/honeynil/p2p-marketplace/internal/infrastructure/redis"
	"github.com/honeynil/p2p-marketplace/internal/models"
)

const (
	InboxSize = 50
	InboxTTL  = 7 * 24 * time.Hour
)

// Inbox keeps the latest notifications of every user in a capped Redis list.
type Inbox struct {
	redis redis.RedisClient
}

func NewInbox(redisClient redis.RedisClient) *Inbox {
	return &Inbox{redis: redisClient}
}

func inboxKey(userID string) string {
	return fmt.Sprintf("user:%s:notifications", userID)
}

// Notify stores n at the head of the user's inbox.
func (i *Inbox) Notify(ctx context.Context, userID string, n models.Notification) error {
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := i.redis.PushCapped(ctx, inboxKey(userID), string(value), InboxSize, InboxTTL); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	return nil
}

// Recent returns up to limit notifications, newest first. Entries that no
// longer decode are skipped.
func (i *Inbox) Recent(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > InboxSize {
		limit = InboxSize
	}
	raw, err := i.redis.LRange(ctx, inboxKey(userID), 0, int64(limit-1))
	if err != nil {
		return nil, fmt.Errorf("failed to read notifications: %w", err)
	}

	out := make([]models.Notification, 0, len(raw))
	for _, item := range raw {
		var n models.Notification
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			slog.Warn("skipping malformed notification", "user_id", userID, "error", err)
			continue
		}
		out = append(out, n)
	}
	return out, nil
}
