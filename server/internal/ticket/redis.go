package ticket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ws-ticket:"

// RedisBackend stores tickets as Redis strings with an expiry.
type RedisBackend struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisBackend stores tickets in client for ttl.
func NewRedisBackend(client redis.Cmdable, ttl time.Duration) *RedisBackend {
	return &RedisBackend{client: client, ttl: ttl}
}

// DialRedis connects to the Redis server at url and checks it answers.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (b *RedisBackend) Put(ctx context.Context, ticket, value string) error {
	return b.client.Set(ctx, keyPrefix+ticket, value, b.ttl).Err()
}

// Take uses GETDEL so lookup and removal are a single atomic command.
func (b *RedisBackend) Take(ctx context.Context, ticket string) (string, error) {
	v, err := b.client.GetDel(ctx, keyPrefix+ticket).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}
