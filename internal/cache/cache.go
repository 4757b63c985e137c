// Package cache provides a Redis-backed "recently observed" index over
// entities, used only to answer the admin API's /api/stats query without a
// Postgres round trip. Postgres remains the source of truth; this is a
// read-acceleration layer only.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"go-polyglot-persistence/internal/store"
)

const recentKey = "robserver:recent"

// Client wraps the Redis client and exposes domain-level operations.
type Client struct {
	rdb      *redis.Client
	capacity int64
}

// New creates a Redis client and verifies the connection with a PING.
// capacity bounds how many identities the recency set retains.
func New(addr string, capacity int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: ping: %w", err)
	}

	return &Client{rdb: rdb, capacity: int64(capacity)}, nil
}

// Close shuts down the underlying connection pool.
func (c *Client) Close() error { return c.rdb.Close() }

// Touch records an observation of e, scored by its last-seen time so Recent
// can return the most recently active identities first. The set is trimmed
// to capacity on every call — cheaper than per-key TTLs for a ranked view,
// and naturally bounded without needing individual expirations.
func (c *Client) Touch(ctx context.Context, e store.Entity) error {
	member := memberKey(e)
	score := float64(time.Now().Unix())

	if err := c.rdb.ZAdd(ctx, recentKey, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("cache: zadd: %w", err)
	}
	if err := c.rdb.ZRemRangeByRank(ctx, recentKey, 0, -c.capacity-1).Err(); err != nil {
		return fmt.Errorf("cache: trim: %w", err)
	}
	return nil
}

// Recent returns up to n recently observed identity tuples, most recent
// first.
func (c *Client) Recent(ctx context.Context, n int) ([]store.Identity, error) {
	members, err := c.rdb.ZRevRange(ctx, recentKey, 0, int64(n)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("cache: zrevrange: %w", err)
	}

	out := make([]store.Identity, 0, len(members))
	for _, m := range members {
		id, ok := parseMemberKey(m)
		if ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// memberKey/parseMemberKey encode a store.Identity as a single delimited
// string, since Redis sorted set members are flat strings. "|" cannot
// appear in a routing key or exchange name in practice, but a malformed
// member is simply skipped by parseMemberKey rather than trusted.
func memberKey(e store.Entity) string {
	return fmt.Sprintf("%d|%s|%s|%s", e.ID, e.VHost, e.Exchange, e.RoutingKey)
}

func parseMemberKey(s string) (store.Identity, bool) {
	parts := strings.SplitN(s, "|", 4)
	if len(parts) != 4 {
		return store.Identity{}, false
	}
	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return store.Identity{}, false
	}
	return store.Identity{ID: id, VHost: parts[1], Exchange: parts[2], RoutingKey: parts[3]}, true
}
