package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores the session as one hash so several terminals on the
// same machine or a shared kiosk host see the same login.
type RedisBackend struct {
	client *redis.Client
	key    string
}

func NewRedisBackend(ctx context.Context, addr, password string, db int, key string) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisBackend{client: client, key: key}, nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func (b *RedisBackend) Load(ctx context.Context) (map[string]string, error) {
	values, err := b.client.HGetAll(ctx, b.key).Result()
	if err != nil {
		return nil, err
	}
	return values, nil
}

// Save replaces the hash in one transaction and lets redis expire it with
// the credential.
func (b *RedisBackend) Save(ctx context.Context, values map[string]string) error {
	fields := make(map[string]interface{}, len(values))
	for key, value := range values {
		fields[key] = value
	}
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, b.key)
		pipe.HSet(ctx, b.key, fields)
		if raw := values[KeyExpiresAt]; raw != "" {
			if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
				pipe.ExpireAt(ctx, b.key, time.Unix(unix, 0))
			}
		}
		return nil
	})
	return err
}

func (b *RedisBackend) Clear(ctx context.Context) error {
	return b.client.Del(ctx, b.key).Err()
}
