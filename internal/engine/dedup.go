package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduplicator remembers delivery ids so a delivery GitHub retries after a
// timeout is only dispatched once within the TTL.
type Deduplicator struct {
	redisClient *redis.Client
	ttl         time.Duration
	logger      *slog.Logger
}

func NewDeduplicator(redisClient *redis.Client, ttl time.Duration, logger *slog.Logger) *Deduplicator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Deduplicator{redisClient: redisClient, ttl: ttl, logger: logger}
}

func dedupKey(deliveryID string) string {
	return fmt.Sprintf("delivery:%s", deliveryID)
}

// Claim reports whether this is the first time deliveryID is seen. Redis
// errors fail open: the delivery is treated as new.
func (d *Deduplicator) Claim(ctx context.Context, deliveryID string) bool {
	ok, err := d.redisClient.SetNX(ctx, dedupKey(deliveryID), time.Now().Unix(), d.ttl).Result()
	if err != nil {
		d.logger.Error("delivery dedup check failed", "error", err, "event_id", deliveryID)
		return true
	}
	return ok
}
