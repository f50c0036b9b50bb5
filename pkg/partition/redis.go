package partition

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

const (
	// redisNameSet is the Redis set holding all known partition names.
	redisNameSet = "cachegw:partitions"

	// redisEntryPrefix prefixes every entry key:
	// cachegw:p:<partition>:<key>
	redisEntryPrefix = "cachegw:p:"

	// redisScanCount is the batch size used when enumerating a partition's
	// entry keys during Drop.
	redisScanCount = 200
)

// RedisBackend is a Backend backed by Redis. Entries are stored as JSON under
// prefixed keys; partition names are tracked in a Redis set so they can be
// enumerated for eviction.
type RedisBackend struct {
	redis *redis.Client
}

// NewRedisBackend creates a Redis-backed partition store.
func NewRedisBackend(redisClient *redis.Client) *RedisBackend {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisBackend{redis: redisClient}
}

func redisEntryKey(name, key string) string {
	return redisEntryPrefix + name + ":" + key
}

// Open registers the partition name. Idempotent; existing entries are kept.
func (b *RedisBackend) Open(ctx context.Context, name string) error {
	if err := b.redis.SAdd(ctx, redisNameSet, name).Err(); err != nil {
		return fmt.Errorf("redis sadd: %w", err)
	}
	return nil
}

// Get returns the entry stored under key, or ErrMiss.
func (b *RedisBackend) Get(ctx context.Context, name, key string) (*Entry, error) {
	data, err := b.redis.Get(ctx, redisEntryKey(name, key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal cache entry: %w", err)
	}
	return &entry, nil
}

// Put stores the entry under key. The partition name is registered so that a
// lazily created partition still shows up in Names.
func (b *RedisBackend) Put(ctx context.Context, name, key string, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	pipe := b.redis.TxPipeline()
	pipe.SAdd(ctx, redisNameSet, name)
	pipe.Set(ctx, redisEntryKey(name, key), data, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Names lists all registered partition names in sorted order.
func (b *RedisBackend) Names(ctx context.Context) ([]string, error) {
	names, err := b.redis.SMembers(ctx, redisNameSet).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Drop deletes all entries under the partition prefix, then unregisters the
// name. Reads racing the deletion observe misses.
func (b *RedisBackend) Drop(ctx context.Context, name string) error {
	match := redisEntryKey(name, "*")
	var cursor uint64
	for {
		keys, next, err := b.redis.Scan(ctx, cursor, match, redisScanCount).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := b.redis.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if err := b.redis.SRem(ctx, redisNameSet, name).Err(); err != nil {
		return fmt.Errorf("redis srem: %w", err)
	}
	return nil
}
