package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/honeynil/p2p-marketplace/internal/infrastructure/redis"
	"github.com/honeynil/p2p-marketplace/internal/models"
)

// Sold listings are final and cached long. Anything else may still change
// under a concurrent write, so a stale entry must age out quickly.
const (
	soldListingCacheTTL = 10 * time.Minute
	openListingCacheTTL = 30 * time.Second
)

func listingCacheTTL(l *models.Listing) time.Duration {
	if l.Status == models.ListingSold {
		return soldListingCacheTTL
	}
	return openListingCacheTTL
}

func listingCacheKey(id string) string {
	return fmt.Sprintf("listing:%s", id)
}

// listingCache is a read-through cache in front of the listing repository.
// Redis errors degrade to a cache miss.
type listingCache struct {
	redis redis.RedisClient
}

func (c listingCache) get(ctx context.Context, id string) (*models.Listing, bool) {
	if c.redis == nil {
		return nil, false
	}
	raw, err := c.redis.Get(ctx, listingCacheKey(id))
	if err != nil {
		if !stderrors.Is(err, redis.ErrKeyNotFound) {
			slog.Warn("listing cache read failed", "listing_id", id, "error", err)
		}
		return nil, false
	}
	var l models.Listing
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		slog.Warn("dropping malformed cached listing", "listing_id", id, "error", err)
		c.invalidate(ctx, id)
		return nil, false
	}
	return &l, true
}

func (c listingCache) put(ctx context.Context, l *models.Listing) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(l)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, listingCacheKey(l.ID), string(data), listingCacheTTL(l)); err != nil {
		slog.Warn("listing cache write failed", "listing_id", l.ID, "error", err)
	}
}

func (c listingCache) invalidate(ctx context.Context, id string) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, listingCacheKey(id)); err != nil {
		slog.Warn("listing cache invalidation failed", "listing_id", id, "error", err)
	}
}
