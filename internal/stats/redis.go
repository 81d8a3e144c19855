package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/csvimport/internal/core"
)

const maxUpdateRetries = 10

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisStore keeps run records as JSON strings with a TTL, so expiry needs
// no sweeping.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisClient parses url and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

// NewRedisStore creates a store. ttl <= 0 uses DefaultTTL.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = "csvimport"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(k core.RunKey) string {
	return fmt.Sprintf("%s:stats:%s:%s", r.prefix, k.PageID, k.OperationID)
}

func (r *RedisStore) Get(ctx context.Context, key core.RunKey) (core.RunStats, error) {
	return r.load(ctx, r.client, r.key(key))
}

func (r *RedisStore) Init(ctx context.Context, key core.RunKey, st core.RunStats) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	if err := r.client.Set(ctx, r.key(key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("init stats: %w", err)
	}
	return nil
}

// Update runs an optimistic WATCH/MULTI cycle, retrying when another
// writer touched the key in between.
func (r *RedisStore) Update(ctx context.Context, key core.RunKey, fn func(*core.RunStats) error) (core.RunStats, error) {
	k := r.key(key)
	var result core.RunStats

	txf := func(tx *redis.Tx) error {
		st, err := r.load(ctx, tx, k)
		if err != nil {
			return err
		}
		if err := fn(&st); err != nil {
			return err
		}
		data, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("encode stats: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, data, r.ttl)
			return nil
		})
		if err == nil {
			result = st
		}
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return core.RunStats{}, err
		}
		return result, nil
	}
	return core.RunStats{}, fmt.Errorf("update stats %s: too much contention", key)
}

func (r *RedisStore) Clear(ctx context.Context, key core.RunKey) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("clear stats: %w", err)
	}
	return nil
}

func (r *RedisStore) load(ctx context.Context, c stringGetter, k string) (core.RunStats, error) {
	data, err := c.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.RunStats{}, nil
	}
	if err != nil {
		return core.RunStats{}, fmt.Errorf("get stats: %w", err)
	}
	return decodeStats(data)
}
