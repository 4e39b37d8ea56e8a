package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// DailyUsageCounter tracks per-day successful generations per account and
// feature. Daily ceilings are cheap enough to keep in redis; the durable
// monthly accounting lives in postgres.
type DailyUsageCounter struct {
	client RedisClient
}

func NewDailyUsageCounter(client RedisClient) *DailyUsageCounter {
	return &DailyUsageCounter{client: client}
}

func dailyKey(accountID, feature string, day time.Time) string {
	return fmt.Sprintf("usage:daily:%s:%s:%s", accountID, feature, day.UTC().Format("2006-01-02"))
}

// Get returns the count recorded today; a missing key is zero.
func (c *DailyUsageCounter) Get(ctx context.Context, accountID, feature string, now time.Time) (int64, error) {
	v, err := c.client.Get(ctx, dailyKey(accountID, feature, now))
	if err != nil {
		if errors.Is(err, Nil) {
			return 0, nil
		}
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Incr bumps today's counter. Keys expire after 48h so stale days clean
// themselves up.
func (c *DailyUsageCounter) Incr(ctx context.Context, accountID, feature string, now time.Time) error {
	key := dailyKey(accountID, feature, now)
	n, err := c.client.Incr(ctx, key)
	if err != nil {
		return err
	}
	if n == 1 {
		return c.client.Expire(ctx, key, 48*time.Hour)
	}
	return nil
}
