// accolade/pkg/cache/redis.go

package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"rgehrsitz/accolade/pkg/logging"
)

type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and checks the connection.
func NewRedisCache(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	logging.Logger.Info().Str("addr", addr).Int("db", db).Msg("Connecting to Redis cache")

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, cacheError("connect to redis", err, addr)
	}

	logging.Logger.Info().Str("addr", addr).Msg("Connected to Redis cache")
	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) (int, error) {
	data, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, cacheError("get", err, key)
	}
	n, err := strconv.Atoi(data)
	if err != nil {
		return 0, cacheError("decode", err, key)
	}
	return n, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value int, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return cacheError("set", err, key)
	}
	return nil
}

func (c *RedisCache) GetOrCreate(ctx context.Context, key string, ttl time.Duration, seed SeedFunc) (int, error) {
	n, err := c.Get(ctx, key)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return n, err
	}

	value, err := seed()
	if err != nil {
		return 0, err
	}

	stored, err := c.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return 0, cacheError("create", err, key)
	}
	if stored {
		logging.Logger.Debug().Str("key", key).Int("value", value).Msg("Seeded counter")
		return value, nil
	}
	return c.Get(ctx, key)
}

func (c *RedisCache) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, cacheError("scan", err, prefix)
	}
	return keys, nil
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return cacheError("delete", err, fmt.Sprint(keys))
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func cacheError(op string, err error, key string) error {
	return logging.NewError(logging.ErrorTypeCache, op+" failed", err, map[string]interface{}{"key": key})
}
