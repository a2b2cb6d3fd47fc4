package service

import (
	"context"
	"log/slog"

	"github.com/honeynil/p2p-marketplace/internal/infrastructure/observability"
	"github.com/honeynil/p2p-marketplace/internal/models"
	"github.com/honeynil/p2p-marketplace/internal/notify"
)

// deliver hands n to the notifier. Failures are logged and counted; they never
// reach the caller, whose state change is already committed.
func deliver(ctx context.Context, notifier notify.Notifier, userID string, n models.Notification) {
	if notifier == nil {
		return
	}
	if err := notifier.Notify(ctx, userID, n); err != nil {
		observability.NotificationFailures.WithLabelValues(string(n.Type)).Inc()
		observability.WithContext(ctx).Error("failed to deliver notification",
			"user_id", userID,
			"type", n.Type,
			"error", err)
		return
	}
	slog.Debug("notification sent", "user_id", userID, "type", n.Type)
}
