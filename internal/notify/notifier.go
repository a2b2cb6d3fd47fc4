// Package notify shapes marketplace notifications and hands them to a
// transport. Delivery is best effort; callers log failures and move on.
package notify

import (
	"context"
	"sync"

	"github.com/honeynil/p2p-marketplace/internal/models"
)

// Notifier pushes an event to a single user.
type Notifier interface {
	Notify(ctx context.Context, userID string, n models.Notification) error
}

// Envelope is the unit carried over the notification transport.
type Envelope struct {
	UserID       string              `json:"user_id"`
	Notification models.Notification `json:"notification"`
}

// Recorder keeps every notification it receives. It never fails unless Err is set.
type Recorder struct {
	mu     sync.Mutex
	events []Envelope

	Err error
}

func (r *Recorder) Notify(_ context.Context, userID string, n models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, Envelope{UserID: userID, Notification: n})
	return nil
}

func (r *Recorder) Events() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Envelope(nil), r.events...)
}

// For returns the notifications delivered to userID, oldest first.
func (r *Recorder) For(userID string) []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Notification
	for _, e := range r.events {
		if e.UserID == userID {
			out = append(out, e.Notification)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
