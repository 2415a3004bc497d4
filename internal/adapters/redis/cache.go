package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// AcquireBoxLock is the reservation fast path: losers of a race bail out on
// the SetNX before touching Postgres. The conditional update in the box
// ledger stays authoritative; a missing or stale lock never grants anything.
func (c *Cache) AcquireBoxLock(ctx context.Context, boxID, customerID int64, ttl time.Duration) (bool, error) {
	key := "boxlock:" + strconv.FormatInt(boxID, 10)
	res := c.client.SetNX(ctx, key, strconv.FormatInt(customerID, 10), ttl)
	return res.Val(), res.Err()
}

// ReleaseBoxLock drops the fast-path lock after a sale or sweep release so
// the next reserve attempt goes straight through.
func (c *Cache) ReleaseBoxLock(ctx context.Context, boxID int64) error {
	return c.client.Del(ctx, "boxlock:"+strconv.FormatInt(boxID, 10)).Err()
}
