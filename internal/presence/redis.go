package presence

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	refsPrefix = "presence:refs:" // presence:refs:{identity} - session refcount
	onlineKey  = "presence:online" // sorted set scored by last-seen unix time
)

// Redis is a Store shared across processes. Each identity carries a session
// refcount key and a last-seen score in a sorted set; entries whose score
// falls behind the TTL are treated as dead and pruned, so an abruptly killed
// process cannot leave an identity online forever.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis creates a redis-backed presence store. ttl bounds how long an
// identity survives without a heartbeat.
func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

func (r *Redis) Add(ctx context.Context, identity string) (bool, error) {
	n, err := r.rdb.Incr(ctx, refsPrefix+identity).Result()
	if err != nil {
		return false, fmt.Errorf("incr refs: %w", err)
	}
	pipe := r.rdb.Pipeline()
	pipe.Expire(ctx, refsPrefix+identity, r.ttl)
	pipe.ZAdd(ctx, onlineKey, redis.Z{Score: float64(time.Now().Unix()), Member: identity})
	if _, err := pipe.Exec(ctx); err != nil {
		return n == 1, fmt.Errorf("register online: %w", err)
	}
	return n == 1, nil
}

func (r *Redis) Remove(ctx context.Context, identity string) (bool, error) {
	n, err := r.rdb.Decr(ctx, refsPrefix+identity).Result()
	if err != nil {
		return false, fmt.Errorf("decr refs: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	pipe := r.rdb.Pipeline()
	pipe.Del(ctx, refsPrefix+identity)
	pipe.ZRem(ctx, onlineKey, identity)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("unregister online: %w", err)
	}
	return true, nil
}

func (r *Redis) Members(ctx context.Context) ([]string, error) {
	cutoff := time.Now().Add(-r.ttl).Unix()

	// Opportunistic prune of entries that stopped heartbeating.
	r.rdb.ZRemRangeByScore(ctx, onlineKey, "-inf", strconv.FormatInt(cutoff-1, 10))

	members, err := r.rdb.ZRangeByScore(ctx, onlineKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(cutoff, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("range online: %w", err)
	}
	sort.Strings(members)
	return members, nil
}

func (r *Redis) Heartbeat(ctx context.Context, identity string) error {
	pipe := r.rdb.Pipeline()
	pipe.Expire(ctx, refsPrefix+identity, r.ttl)
	pipe.ZAdd(ctx, onlineKey, redis.Z{Score: float64(time.Now().Unix()), Member: identity})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}
